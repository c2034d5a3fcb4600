package billing

import (
	"context"
	"time"
)

// Entitlements is the set of product flags as the helper reports them.
type Entitlements struct {
	FullVersion   bool `json:"fullVersion"`
	LiveUpdates   bool `json:"liveUpdates"`
	DepthContours bool `json:"depthContours"`
	ContourLines  bool `json:"contourLines"`
}

// Status summarizes the helper for the API.
type Status struct {
	Available        bool         `json:"available"`
	DeveloperBuild   bool         `json:"developerBuild"`
	ActiveTask       *TaskType    `json:"activeTask,omitempty"`
	InventoryPending bool         `json:"inventoryPending"`
	HasInventory     bool         `json:"hasInventory"`
	LastValidation   *time.Time   `json:"lastValidation,omitempty"`
	NeedInventory    bool         `json:"needInventory"`
	Registered       bool         `json:"registered"`
	UserID           string       `json:"userId,omitempty"`
	Email            string       `json:"email,omitempty"`
	UserName         string       `json:"userName,omitempty"`
	Entitlements     Entitlements `json:"entitlements"`
	Catalog          CatalogView  `json:"catalog"`
}

// Status returns a snapshot of gate, identity and entitlement state.
func (h *Helper) Status(ctx context.Context) Status {
	s := Status{
		Available:        h.Available(),
		DeveloperBuild:   h.cfg.DeveloperBuild,
		InventoryPending: h.gate.Pending(),
		NeedInventory:    h.NeedRequestInventory(ctx),
		Entitlements:     h.entitlements(ctx),
		Catalog:          h.catalog.View(),
	}

	if task, busy := h.gate.Active(); busy {
		s.ActiveTask = &task
	}

	h.mu.Lock()
	if !h.lastValidation.IsZero() {
		last := h.lastValidation
		s.LastValidation = &last
	}
	s.Registered = h.token != ""
	h.mu.Unlock()

	s.HasInventory = s.LastValidation != nil
	s.UserID, _ = h.settings.GetString(ctx, KeyUserID)
	s.Email, _ = h.settings.GetString(ctx, KeyUserEmail)
	s.UserName, _ = h.settings.GetString(ctx, KeyUserName)
	s.Registered = s.Registered && s.UserID != ""
	return s
}

func (h *Helper) entitlements(ctx context.Context) Entitlements {
	return Entitlements{
		FullVersion:   h.IsFullVersionPurchased(ctx),
		LiveUpdates:   h.IsSubscribedToLiveUpdates(ctx),
		DepthContours: h.IsDepthContoursPurchased(ctx),
		ContourLines:  h.IsContourLinesPurchased(ctx),
	}
}

// ReadEntitlements reads the stored flags without a helper.
func ReadEntitlements(ctx context.Context, s Settings) (Entitlements, error) {
	var e Entitlements
	var err error
	if e.FullVersion, err = s.GetBool(ctx, KeyFullVersionPurchased); err != nil {
		return e, err
	}
	if e.LiveUpdates, err = s.GetBool(ctx, KeyLiveUpdatesPurchased); err != nil {
		return e, err
	}
	if e.DepthContours, err = s.GetBool(ctx, KeyDepthContoursPurchased); err != nil {
		return e, err
	}
	if e.ContourLines, err = s.GetBool(ctx, KeyContourLinesPurchased); err != nil {
		return e, err
	}
	return e, nil
}

// ResetIdentity forgets the registered user so the next live updates purchase
// registers again.
func ResetIdentity(ctx context.Context, s Settings) error {
	for _, key := range []string{KeyUserID, KeyUserToken, KeyPurchaseTokensSent} {
		if err := s.SetString(ctx, key, ""); err != nil {
			return err
		}
	}
	return nil
}
