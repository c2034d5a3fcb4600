package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"map-manager/internal/logging"
	"map-manager/internal/metrics"
)

const (
	// PurchaseValidationPeriod is how long an inventory result stays fresh.
	PurchaseValidationPeriod = 24 * time.Hour
	// SubscriptionHoldingTime is how long a vanished subscription stays entitled.
	SubscriptionHoldingTime = 3 * 24 * time.Hour

	// countryNone is the preferred-country value meaning "no donation country".
	countryNone = "none"
)

// Config holds the static billing configuration.
type Config struct {
	DeveloperBuild bool
	Enabled        bool
	Package        string
	Version        string
	Lang           string
}

// Helper runs inventory and purchase tasks one at a time.
type Helper struct {
	cfg      Config
	client   *Client
	platform Platform
	settings Settings
	catalog  *Catalog
	gate     *TaskGate
	log      logging.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu                 sync.Mutex
	closed             bool
	listener           Listener
	token              string
	inventoryRequested bool
	lastValidation     time.Time
}

// NewHelper creates a helper and loads the stored user token. A nil catalog
// uses NewCatalog.
func NewHelper(ctx context.Context, cfg Config, client *Client, platform Platform, settings Settings, catalog *Catalog) (*Helper, error) {
	if catalog == nil {
		catalog = NewCatalog()
	}

	token, err := settings.GetString(ctx, KeyUserToken)
	if err != nil {
		return nil, fmt.Errorf("load user token: %w", err)
	}

	taskCtx, cancel := context.WithCancel(context.Background())
	h := &Helper{
		cfg:      cfg,
		client:   client,
		platform: platform,
		settings: settings,
		catalog:  catalog,
		gate:     &TaskGate{},
		log:      logging.For("billing"),
		now:      time.Now,
		ctx:      taskCtx,
		cancel:   cancel,
		token:    token,
	}
	return h, nil
}

// Gate exposes the task gate.
func (h *Helper) Gate() *TaskGate {
	return h.gate
}

// Catalog exposes the product catalog.
func (h *Helper) Catalog() *Catalog {
	return h.catalog
}

// Token returns the current user token.
func (h *Helper) Token() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.token
}

// Available reports whether tasks can run at all.
func (h *Helper) Available() bool {
	return !h.cfg.DeveloperBuild && h.cfg.Enabled
}

// Wait blocks until every started task, including latched replays, finishes.
func (h *Helper) Wait() {
	h.wg.Wait()
}

// Close cancels in-flight tasks, waits for them and closes the platform.
func (h *Helper) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	h.cancel()
	h.wg.Wait()
	return h.platform.Close()
}

// taskError carries the message shown to the listener.
type taskError struct {
	msg string
	err error
}

func (e *taskError) Error() string { return e.msg }
func (e *taskError) Unwrap() error { return e.err }

func userError(msg string, err error) error {
	return &taskError{msg: msg, err: err}
}

// start validates availability, claims the gate and runs fn in a goroutine.
func (h *Helper) start(task TaskType, fn func(ctx context.Context) error) error {
	if !h.Available() {
		h.notifyDismissProgress(task)
		return ErrBillingUnavailable
	}

	release, ok := h.gate.Acquire(task)
	if !ok {
		active, _ := h.gate.Active()
		h.log.Warn("Already processing task: %s. Exit.", active)
		metrics.BillingGateRejections.WithLabelValues(task.String()).Inc()
		if task == TaskRequestInventory {
			metrics.BillingInventoryLatched.Inc()
		}
		return ErrTaskInProgress
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		release()
		return ErrClosed
	}
	h.wg.Add(1)
	h.mu.Unlock()

	metrics.BillingGateBusy.Set(1)
	h.log.Debug("task %s started", task)
	h.notifyShowProgress(task)
	go h.run(task, release, fn)
	return nil
}

func (h *Helper) run(task TaskType, release func() bool, fn func(ctx context.Context) error) {
	start := time.Now()
	result := "success"

	defer h.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			result = "panic"
			h.log.Error("task %s panicked: %v", task, r)
			h.fail(task, fmt.Errorf("internal error: %v", r))
		}
		metrics.BillingTasksTotal.WithLabelValues(task.String(), result).Inc()
		metrics.BillingTaskDuration.WithLabelValues(task.String()).Observe(time.Since(start).Seconds())
		metrics.BillingGateBusy.Set(0)
		h.updateEntitlementMetrics()

		if release() {
			h.replayInventory()
		}
	}()

	if err := fn(h.ctx); err != nil {
		result = "error"
		h.fail(task, err)
	}
}

func (h *Helper) fail(task TaskType, err error) {
	h.notifyDismissProgress(task)
	if errors.Is(err, context.Canceled) && h.ctx.Err() != nil {
		h.log.Info("task %s cancelled", task)
		return
	}
	h.log.Error("**** %s failed: %v", task, err)
	h.notifyError(task, err.Error())
}

func (h *Helper) replayInventory() {
	if h.ctx.Err() != nil {
		return
	}
	h.log.Debug("replaying latched inventory request")
	metrics.BillingInventoryReplays.Inc()
	if err := h.RequestInventory(); err != nil {
		h.log.Warn("latched inventory request not started: %v", err)
	}
}

// RequestInventory refreshes entitlements from the platform.
func (h *Helper) RequestInventory() error {
	return h.start(TaskRequestInventory, h.requestInventory)
}

func (h *Helper) requestInventory(ctx context.Context) error {
	info := h.userInfo(ctx)

	skus, err := h.client.ActiveSubscriptions(ctx, h.cfg.Package, info)
	if err == nil || errors.Is(err, ErrMalformedResponse) {
		// The service answered; an unreadable body still counts as a request.
		h.mu.Lock()
		h.inventoryRequested = true
		h.mu.Unlock()
	}
	if err != nil {
		h.log.Warn("active subscriptions request failed: %v", err)
	}
	for _, sku := range skus {
		if h.catalog.UpgradeSubscription(sku) {
			h.log.Info("catalog upgraded with subscription %s", sku)
		}
	}

	owned, err := h.platform.QueryPurchases(ctx)
	if err != nil {
		return fmt.Errorf("query purchases: %w", err)
	}

	unsent, err := h.applyInventory(ctx, owned)
	if err != nil {
		return fmt.Errorf("apply inventory: %w", err)
	}

	if len(unsent) > 0 {
		if err := h.sendTokens(ctx, unsent, info); err != nil {
			h.log.Warn("sending purchase tokens failed: %v", err)
		}
	}

	h.mu.Lock()
	h.lastValidation = h.now()
	h.mu.Unlock()

	h.notifyDismissProgress(TaskRequestInventory)
	h.notifyGetItems()
	h.log.Debug("inventory query finished: %d owned purchases", len(owned))
	return nil
}

// applyInventory records ownership from owned and returns subscription
// purchases whose tokens were never sent.
func (h *Helper) applyInventory(ctx context.Context, owned []PurchaseInfo) ([]PurchaseInfo, error) {
	bySKU := make(map[string]PurchaseInfo, len(owned))
	for _, p := range owned {
		bySKU[p.SKU] = p
	}

	w := h.writer(ctx)
	view := h.catalog.View()

	oneTime := []struct {
		sku    string
		key    string
		render bool
	}{
		{view.FullVersion.SKU, KeyFullVersionPurchased, false},
		{view.DepthContours.SKU, KeyDepthContoursPurchased, true},
		{view.ContourLines.SKU, KeyContourLinesPurchased, false},
	}
	for _, p := range oneTime {
		if _, ok := bySKU[p.sku]; ok {
			h.catalog.SetState(p.sku, StatePurchased)
			w.setBool(p.key, true)
			if p.render {
				w.setBool(KeyRenderDepthContours, true)
			}
		} else {
			h.catalog.SetState(p.sku, StateNotPurchased)
		}
	}

	sent, err := h.settings.GetString(ctx, KeyPurchaseTokensSent)
	if err != nil {
		return nil, err
	}
	tokensSent := parseTokenSet(sent)

	var unsent []PurchaseInfo
	subscribed := false
	for _, sku := range h.catalog.LiveUpdateSKUs() {
		p, ok := bySKU[sku]
		if !ok {
			h.catalog.SetState(sku, StateNotPurchased)
			continue
		}
		subscribed = true
		h.catalog.SetState(sku, StatePurchased)
		if !tokensSent[sku] {
			unsent = append(unsent, p)
		}
	}

	if subscribed {
		w.setBool(KeyLiveUpdatesPurchased, true)
		w.setInt64(KeyLiveUpdatesCancelledTime, 0)
		return unsent, w.err
	}

	wasSubscribed, err := h.settings.GetBool(ctx, KeyLiveUpdatesPurchased)
	if err != nil {
		return nil, err
	}
	if wasSubscribed {
		h.holdCancelledSubscription(ctx, w)
	}
	return unsent, w.err
}

// holdCancelledSubscription records when a subscription vanished and revokes
// it once SubscriptionHoldingTime has passed.
func (h *Helper) holdCancelledSubscription(ctx context.Context, w *settingsWriter) {
	cancelled, err := h.settings.GetInt64(ctx, KeyLiveUpdatesCancelledTime)
	if err != nil {
		w.fail(err)
		return
	}

	now := h.now()
	if cancelled == 0 {
		h.log.Info("live updates subscription no longer reported; holding entitlement")
		w.setInt64(KeyLiveUpdatesCancelledTime, now.UnixMilli())
		w.setBool(KeyLiveUpdatesCancelledFirstDlg, false)
		w.setBool(KeyLiveUpdatesCancelledSecondDlg, false)
		return
	}

	if now.Sub(time.UnixMilli(cancelled)) > SubscriptionHoldingTime {
		h.log.Info("live updates subscription holding time expired; revoking entitlement")
		w.setBool(KeyLiveUpdatesPurchased, false)
		depth, err := h.settings.GetBool(ctx, KeyDepthContoursPurchased)
		if err != nil {
			w.fail(err)
			return
		}
		if !depth {
			w.setBool(KeyRenderDepthContours, false)
		}
	}
}

// sendTokens reports purchases for verification. A SKU is recorded as sent
// whenever the service answered, even with a rejection.
func (h *Helper) sendTokens(ctx context.Context, purchases []PurchaseInfo, info UserInfo) error {
	userID, err := h.settings.GetString(ctx, KeyUserID)
	if err != nil {
		return err
	}
	email, err := h.settings.GetString(ctx, KeyUserEmail)
	if err != nil {
		return err
	}
	if userID == "" {
		return ErrEmptyUserID
	}
	token := h.Token()

	sentStr, err := h.settings.GetString(ctx, KeyPurchaseTokensSent)
	if err != nil {
		return err
	}
	sent := parseTokenSet(sentStr)

	var firstErr error
	for _, p := range purchases {
		resp, err := h.client.SendPurchase(ctx, PurchasedRequest{
			UserID:   userID,
			Token:    token,
			Email:    email,
			Purchase: p,
		}, info)
		if err == nil || errors.Is(err, ErrPurchaseRejected) || errors.Is(err, ErrMalformedResponse) {
			sent[p.SKU] = true
		}
		if err != nil {
			h.log.Error("SendToken Error: %v (userId=%s sku=%s orderId=%s)", err, userID, p.SKU, p.OrderID)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := h.processPurchased(ctx, resp); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := h.settings.SetString(ctx, KeyPurchaseTokensSent, joinTokenSet(sent)); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// processPurchased applies identity fields returned by the verification endpoint.
func (h *Helper) processPurchased(ctx context.Context, resp PurchasedResponse) error {
	w := h.writer(ctx)

	if resp.VisibleName != nil && *resp.VisibleName != "" {
		w.setString(KeyUserName, *resp.VisibleName)
		w.setBool(KeyHideUserName, false)
	} else {
		w.setBool(KeyHideUserName, true)
	}

	if resp.PreferredCountry != nil {
		country := *resp.PreferredCountry
		current, err := h.settings.GetString(ctx, KeyCountryDownloadName)
		if err != nil {
			return err
		}
		if current != country {
			w.setString(KeyCountryDownloadName, country)
			if country != countryNone {
				w.setString(KeyUserCountry, country)
			}
		}
	}

	if resp.Email != nil {
		w.setString(KeyUserEmail, *resp.Email)
	}
	return w.err
}

// LiveUpdatesRequest is a live updates subscription purchase. Empty fields
// and a nil HideUserName keep the stored values.
type LiveUpdatesRequest struct {
	SKU                 string `json:"sku"`
	Email               string `json:"email,omitempty"`
	UserName            string `json:"userName,omitempty"`
	CountryDownloadName string `json:"countryDownloadName,omitempty"`
	HideUserName        *bool  `json:"hideUserName,omitempty"`
}

// PurchaseLiveUpdates registers the user if needed, runs the platform purchase
// and verifies it. An empty SKU selects the default subscription.
func (h *Helper) PurchaseLiveUpdates(req LiveUpdatesRequest) error {
	if req.SKU == "" {
		req.SKU = h.catalog.DefaultLiveUpdatesSKU()
	}
	if !h.catalog.IsLiveUpdates(req.SKU) {
		return fmt.Errorf("%w: %s", ErrUnknownSKU, req.SKU)
	}
	return h.start(TaskPurchaseLiveUpdates, func(ctx context.Context) error {
		return h.purchaseLiveUpdates(ctx, req)
	})
}

func (h *Helper) purchaseLiveUpdates(ctx context.Context, req LiveUpdatesRequest) error {
	w := h.writer(ctx)
	if req.Email != "" {
		w.setString(KeyUserEmail, req.Email)
	}
	if req.UserName != "" {
		w.setString(KeyUserName, req.UserName)
	}
	if req.CountryDownloadName != "" {
		w.setString(KeyCountryDownloadName, req.CountryDownloadName)
	}
	if req.HideUserName != nil {
		w.setBool(KeyHideUserName, *req.HideUserName)
	}
	if w.err != nil {
		return w.err
	}
	profile, err := h.profile(ctx)
	if err != nil {
		return err
	}
	info := h.userInfo(ctx)

	userID, err := h.settings.GetString(ctx, KeyUserID)
	if err != nil {
		return err
	}
	token := h.Token()

	if userID == "" || token == "" {
		reg, err := h.client.Register(ctx, RegisterRequest{
			VisibleName:      profile.VisibleName,
			HideUserName:     profile.HideUserName,
			PreferredCountry: profile.PreferredCountry,
			Email:            profile.Email,
		}, info)
		switch {
		case errors.Is(err, ErrMalformedResponse):
			detail := strings.TrimPrefix(err.Error(), ErrMalformedResponse.Error()+": ")
			return userError("JSON parsing error: "+detail, err)
		case err != nil && userID != "":
			return userError("User token is empty.", err)
		case err != nil:
			return userError("Cannot retrieve userId from server.", err)
		}

		userID, token = reg.UserID, reg.Token
		w.setString(KeyUserID, userID)
		w.setString(KeyUserToken, token)
		if w.err != nil {
			return w.err
		}
		h.mu.Lock()
		h.token = token
		h.mu.Unlock()
		h.log.Debug("UserId=%s", userID)
	}

	if userID == "" || token == "" {
		return userError("Empty userId", ErrEmptyUserID)
	}

	h.log.Debug("Launching purchase flow for live updates subscription for userId=%s", userID)
	purchase, err := h.platform.LaunchPurchase(ctx, req.SKU, userID+" "+token)
	if err != nil {
		return fmt.Errorf("purchase %s: %w", req.SKU, err)
	}
	h.catalog.SetState(purchase.SKU, StatePurchased)

	if err := h.sendTokens(ctx, []PurchaseInfo{purchase}, info); err != nil {
		return userError("Purchase verification failed: "+err.Error(), err)
	}

	active, err := h.settings.GetBool(ctx, KeyLiveUpdatesPurchased)
	if err != nil {
		return err
	}
	w.setBool(KeyLiveUpdatesPurchased, true)
	w.setBool(KeyRenderDepthContours, true)
	w.setInt64(KeyLiveUpdatesCancelledTime, 0)
	w.setBool(KeyLiveUpdatesCancelledFirstDlg, false)
	w.setBool(KeyLiveUpdatesCancelledSecondDlg, false)
	if w.err != nil {
		return w.err
	}

	h.notifyDismissProgress(TaskPurchaseLiveUpdates)
	h.notifyItemPurchased(purchase.SKU, active)
	return nil
}

// PurchaseFullVersion buys the full version.
func (h *Helper) PurchaseFullVersion() error {
	return h.purchaseProduct(TaskPurchaseFullVersion, h.catalog.View().FullVersion.SKU, KeyFullVersionPurchased)
}

// PurchaseDepthContours buys sea depth contours and enables their rendering.
func (h *Helper) PurchaseDepthContours() error {
	return h.purchaseProduct(TaskPurchaseDepthContours, h.catalog.View().DepthContours.SKU, KeyDepthContoursPurchased, KeyRenderDepthContours)
}

// PurchaseContourLines buys contour lines.
func (h *Helper) PurchaseContourLines() error {
	return h.purchaseProduct(TaskPurchaseContourLines, h.catalog.View().ContourLines.SKU, KeyContourLinesPurchased)
}

func (h *Helper) purchaseProduct(task TaskType, sku string, keys ...string) error {
	return h.start(task, func(ctx context.Context) error {
		if _, err := h.platform.LaunchPurchase(ctx, sku, ""); err != nil {
			return fmt.Errorf("purchase %s: %w", sku, err)
		}
		h.catalog.SetState(sku, StatePurchased)

		w := h.writer(ctx)
		for _, key := range keys {
			w.setBool(key, true)
		}
		if w.err != nil {
			return w.err
		}

		h.notifyDismissProgress(task)
		h.notifyItemPurchased(sku, false)
		return nil
	})
}

// IsFullVersionPurchased reports the full version entitlement.
func (h *Helper) IsFullVersionPurchased(ctx context.Context) bool {
	return h.entitled(ctx, KeyFullVersionPurchased)
}

// IsSubscribedToLiveUpdates reports the live updates entitlement.
func (h *Helper) IsSubscribedToLiveUpdates(ctx context.Context) bool {
	return h.entitled(ctx, KeyLiveUpdatesPurchased)
}

// IsDepthContoursPurchased reports the sea depth contours entitlement.
func (h *Helper) IsDepthContoursPurchased(ctx context.Context) bool {
	return h.entitled(ctx, KeyDepthContoursPurchased)
}

// IsContourLinesPurchased reports the contour lines entitlement.
func (h *Helper) IsContourLinesPurchased(ctx context.Context) bool {
	return h.entitled(ctx, KeyContourLinesPurchased)
}

// IsPurchased reports the entitlement behind sku.
func (h *Helper) IsPurchased(ctx context.Context, sku string) bool {
	switch {
	case h.catalog.IsFullVersion(sku):
		return h.IsFullVersionPurchased(ctx)
	case h.catalog.IsLiveUpdates(sku):
		return h.IsSubscribedToLiveUpdates(ctx)
	case h.catalog.IsDepthContours(sku):
		return h.IsDepthContoursPurchased(ctx)
	case h.catalog.IsContourLines(sku):
		return h.IsContourLinesPurchased(ctx)
	default:
		return false
	}
}

func (h *Helper) entitled(ctx context.Context, key string) bool {
	if h.cfg.DeveloperBuild {
		return true
	}
	v, err := h.settings.GetBool(ctx, key)
	if err != nil {
		h.log.Warn("failed to read %s: %v", key, err)
		return false
	}
	return v
}

// HasInventory reports whether an inventory query has completed.
func (h *Helper) HasInventory() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.lastValidation.IsZero()
}

// NeedRequestInventory reports whether an inventory query is due: not yet made
// in this process and either a subscription has unsent tokens or the last
// validation is stale.
func (h *Helper) NeedRequestInventory(ctx context.Context) bool {
	h.mu.Lock()
	requested := h.inventoryRequested
	last := h.lastValidation
	h.mu.Unlock()

	if requested {
		return false
	}
	if h.IsSubscribedToLiveUpdates(ctx) {
		sent, err := h.settings.GetString(ctx, KeyPurchaseTokensSent)
		if err == nil && sent == "" {
			return true
		}
	}
	return h.now().Sub(last) > PurchaseValidationPeriod
}

func (h *Helper) userInfo(ctx context.Context) UserInfo {
	info := UserInfo{Version: h.cfg.Version, Lang: h.cfg.Lang}
	install, err := LoadInstallInfo(ctx, h.settings, h.now())
	if err != nil {
		h.log.Warn("failed to load install info: %v", err)
		return info
	}
	info.FirstInstalledDays = install.FirstInstalledDays
	info.NumberOfStarts = install.NumberOfStarts
	info.AppID = install.ID
	return info
}

func (h *Helper) updateEntitlementMetrics() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for product, key := range map[string]string{
		"full_version":   KeyFullVersionPurchased,
		"live_updates":   KeyLiveUpdatesPurchased,
		"depth_contours": KeyDepthContoursPurchased,
		"contour_lines":  KeyContourLinesPurchased,
	} {
		v := 0.0
		if h.entitled(ctx, key) {
			v = 1
		}
		metrics.BillingEntitlements.WithLabelValues(product).Set(v)
	}
}

// settingsWriter applies a series of writes, keeping the first error.
type settingsWriter struct {
	ctx context.Context
	s   Settings
	err error
}

// profile reads the stored registration identity. An unset country is sent
// as "none".
func (h *Helper) profile(ctx context.Context) (RegisterRequest, error) {
	var p RegisterRequest
	var err error
	if p.VisibleName, err = h.settings.GetString(ctx, KeyUserName); err != nil {
		return p, err
	}
	if p.Email, err = h.settings.GetString(ctx, KeyUserEmail); err != nil {
		return p, err
	}
	if p.PreferredCountry, err = h.settings.GetString(ctx, KeyCountryDownloadName); err != nil {
		return p, err
	}
	if p.PreferredCountry == "" {
		p.PreferredCountry = countryNone
	}
	if p.HideUserName, err = h.settings.GetBool(ctx, KeyHideUserName); err != nil {
		return p, err
	}
	return p, nil
}

func (h *Helper) writer(ctx context.Context) *settingsWriter {
	return &settingsWriter{ctx: ctx, s: h.settings}
}

func (w *settingsWriter) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *settingsWriter) setBool(key string, v bool) {
	if w.err == nil {
		w.fail(w.s.SetBool(w.ctx, key, v))
	}
}

func (w *settingsWriter) setString(key, v string) {
	if w.err == nil {
		w.fail(w.s.SetString(w.ctx, key, v))
	}
}

func (w *settingsWriter) setInt64(key string, v int64) {
	if w.err == nil {
		w.fail(w.s.SetInt64(w.ctx, key, v))
	}
}
