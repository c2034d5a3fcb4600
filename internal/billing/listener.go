package billing

// Listener receives task progress and outcomes. Callbacks run on the task
// goroutine and must not block.
type Listener interface {
	OnError(task TaskType, msg string)
	OnGetItems()
	OnItemPurchased(sku string, active bool)
	ShowProgress(task TaskType)
	DismissProgress(task TaskType)
}

// SetListener registers l, replacing any previous listener.
func (h *Helper) SetListener(l Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listener = l
}

// ResetListener clears the listener only if l is the one registered.
func (h *Helper) ResetListener(l Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == l {
		h.listener = nil
	}
}

func (h *Helper) currentListener() Listener {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.listener
}

func (h *Helper) notifyError(task TaskType, msg string) {
	if l := h.currentListener(); l != nil {
		l.OnError(task, msg)
	}
}

func (h *Helper) notifyGetItems() {
	if l := h.currentListener(); l != nil {
		l.OnGetItems()
	}
}

func (h *Helper) notifyItemPurchased(sku string, active bool) {
	if l := h.currentListener(); l != nil {
		l.OnItemPurchased(sku, active)
	}
}

func (h *Helper) notifyShowProgress(task TaskType) {
	if l := h.currentListener(); l != nil {
		l.ShowProgress(task)
	}
}

func (h *Helper) notifyDismissProgress(task TaskType) {
	if l := h.currentListener(); l != nil {
		l.DismissProgress(task)
	}
}
