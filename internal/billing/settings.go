package billing

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Persisted settings keys.
const (
	KeyFullVersionPurchased   = "full_version_purchased"
	KeyLiveUpdatesPurchased   = "live_updates_purchased"
	KeyDepthContoursPurchased = "depth_contours_purchased"
	KeyContourLinesPurchased  = "contour_lines_purchased"
	KeyRenderDepthContours    = "render_depth_contours"

	KeyUserID              = "billing_user_id"
	KeyUserToken           = "billing_user_token"
	KeyUserEmail           = "billing_user_email"
	KeyUserName            = "billing_user_name"
	KeyHideUserName        = "billing_hide_user_name"
	KeyCountryDownloadName = "billing_user_country_download_name"
	KeyUserCountry         = "billing_user_country"
	KeyPurchaseTokensSent  = "billing_purchase_tokens_sent"

	KeyLiveUpdatesCancelledTime      = "live_updates_purchase_cancelled_time"
	KeyLiveUpdatesCancelledFirstDlg  = "live_updates_purchase_cancelled_first_dlg_shown"
	KeyLiveUpdatesCancelledSecondDlg = "live_updates_purchase_cancelled_second_dlg_shown"

	KeyInstallID        = "install_id"
	KeyFirstInstallTime = "first_install_time"
	KeyNumberOfStarts   = "number_of_starts"
)

// Settings is the persisted key/value store used for entitlements and identity.
// Missing keys read as the zero value.
type Settings interface {
	GetBool(ctx context.Context, key string) (bool, error)
	SetBool(ctx context.Context, key string, value bool) error
	GetString(ctx context.Context, key string) (string, error)
	SetString(ctx context.Context, key, value string) error
	GetInt64(ctx context.Context, key string) (int64, error)
	SetInt64(ctx context.Context, key string, value int64) error
}

// MemorySettings is a Settings implementation backed by a map.
type MemorySettings struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemorySettings returns an empty in-memory settings store.
func NewMemorySettings() *MemorySettings {
	return &MemorySettings{values: make(map[string]string)}
}

func (m *MemorySettings) GetBool(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[key] == "true", nil
}

func (m *MemorySettings) SetBool(_ context.Context, key string, value bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = strconv.FormatBool(value)
	return nil
}

func (m *MemorySettings) GetString(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[key], nil
}

func (m *MemorySettings) SetString(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemorySettings) GetInt64(_ context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok || v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func (m *MemorySettings) SetInt64(_ context.Context, key string, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = strconv.FormatInt(value, 10)
	return nil
}

// parseTokenSet splits the ";"-joined set of SKUs whose tokens were sent.
func parseTokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, sku := range strings.Split(s, ";") {
		if sku != "" {
			set[sku] = true
		}
	}
	return set
}

func joinTokenSet(set map[string]bool) string {
	skus := make([]string, 0, len(set))
	for sku := range set {
		skus = append(skus, sku)
	}
	slices.Sort(skus)
	return strings.Join(skus, ";")
}

// InstallInfo describes this installation for the remote service.
type InstallInfo struct {
	ID                 string    `json:"id"`
	FirstInstallTime   time.Time `json:"firstInstallTime"`
	NumberOfStarts     int64     `json:"numberOfStarts"`
	FirstInstalledDays int64     `json:"firstInstalledDays"`
}

// RecordStart increments the start counter, assigning an install id and first
// install time on the first run.
func RecordStart(ctx context.Context, s Settings, now time.Time) (InstallInfo, error) {
	id, err := s.GetString(ctx, KeyInstallID)
	if err != nil {
		return InstallInfo{}, err
	}
	if id == "" {
		v7, err := uuid.NewV7()
		if err != nil {
			return InstallInfo{}, err
		}
		id = v7.String()
		if err := s.SetString(ctx, KeyInstallID, id); err != nil {
			return InstallInfo{}, err
		}
	}

	first, err := s.GetInt64(ctx, KeyFirstInstallTime)
	if err != nil {
		return InstallInfo{}, err
	}
	if first == 0 {
		first = now.UnixMilli()
		if err := s.SetInt64(ctx, KeyFirstInstallTime, first); err != nil {
			return InstallInfo{}, err
		}
	}

	starts, err := s.GetInt64(ctx, KeyNumberOfStarts)
	if err != nil {
		return InstallInfo{}, err
	}
	starts++
	if err := s.SetInt64(ctx, KeyNumberOfStarts, starts); err != nil {
		return InstallInfo{}, err
	}

	return installInfo(id, first, starts, now), nil
}

// LoadInstallInfo reads install info without counting a start.
func LoadInstallInfo(ctx context.Context, s Settings, now time.Time) (InstallInfo, error) {
	id, err := s.GetString(ctx, KeyInstallID)
	if err != nil {
		return InstallInfo{}, err
	}
	first, err := s.GetInt64(ctx, KeyFirstInstallTime)
	if err != nil {
		return InstallInfo{}, err
	}
	starts, err := s.GetInt64(ctx, KeyNumberOfStarts)
	if err != nil {
		return InstallInfo{}, err
	}
	return installInfo(id, first, starts, now), nil
}

func installInfo(id string, firstMillis, starts int64, now time.Time) InstallInfo {
	info := InstallInfo{ID: id, NumberOfStarts: starts}
	if firstMillis > 0 {
		info.FirstInstallTime = time.UnixMilli(firstMillis)
		info.FirstInstalledDays = int64(now.Sub(info.FirstInstallTime) / (24 * time.Hour))
	}
	return info
}
