package billing

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Platform is the store-side billing integration.
type Platform interface {
	// LaunchPurchase runs the purchase flow for sku and returns the completed
	// purchase. payload is attached to the order as developer payload.
	LaunchPurchase(ctx context.Context, sku, payload string) (PurchaseInfo, error)
	// QueryPurchases returns every purchase the platform reports as owned.
	QueryPurchases(ctx context.Context) ([]PurchaseInfo, error)
	Close() error
}

// OwnedPurchase is a purchase kept by a PurchaseStore.
type OwnedPurchase struct {
	PurchaseInfo
	Payload     string    `json:"payload"`
	PurchasedAt time.Time `json:"purchasedAt"`
}

// PurchaseStore persists purchases made through SandboxPlatform.
type PurchaseStore interface {
	SavePurchase(ctx context.Context, p OwnedPurchase) error
	ListPurchases(ctx context.Context) ([]OwnedPurchase, error)
	DeletePurchase(ctx context.Context, sku string) error
}

// SandboxPlatform approves every purchase of a known SKU without contacting a
// store. Order ids and purchase tokens are UUIDv7 strings.
type SandboxPlatform struct {
	store PurchaseStore
	known func(sku string) bool
	now   func() time.Time
}

// NewSandboxPlatform creates a sandbox platform accepting the SKUs of catalog.
func NewSandboxPlatform(store PurchaseStore, catalog *Catalog) *SandboxPlatform {
	return &SandboxPlatform{
		store: store,
		known: catalog.Known,
		now:   time.Now,
	}
}

// LaunchPurchase records a purchase of sku. Buying an owned SKU returns the
// existing purchase.
func (p *SandboxPlatform) LaunchPurchase(ctx context.Context, sku, payload string) (PurchaseInfo, error) {
	if !p.known(sku) {
		return PurchaseInfo{}, fmt.Errorf("%w: %s", ErrUnknownSKU, sku)
	}

	owned, err := p.store.ListPurchases(ctx)
	if err != nil {
		return PurchaseInfo{}, fmt.Errorf("list purchases: %w", err)
	}
	if i := slices.IndexFunc(owned, func(o OwnedPurchase) bool { return o.SKU == sku }); i >= 0 {
		return owned[i].PurchaseInfo, nil
	}

	orderID, err := uuid.NewV7()
	if err != nil {
		return PurchaseInfo{}, err
	}
	token, err := uuid.NewV7()
	if err != nil {
		return PurchaseInfo{}, err
	}

	info := PurchaseInfo{
		SKU:           sku,
		OrderID:       "SANDBOX." + orderID.String(),
		PurchaseToken: token.String(),
	}
	if err := p.store.SavePurchase(ctx, OwnedPurchase{
		PurchaseInfo: info,
		Payload:      payload,
		PurchasedAt:  p.now(),
	}); err != nil {
		return PurchaseInfo{}, fmt.Errorf("save purchase: %w", err)
	}
	return info, nil
}

// QueryPurchases lists stored purchases.
func (p *SandboxPlatform) QueryPurchases(ctx context.Context) ([]PurchaseInfo, error) {
	owned, err := p.store.ListPurchases(ctx)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	out := make([]PurchaseInfo, len(owned))
	for i, o := range owned {
		out[i] = o.PurchaseInfo
	}
	return out, nil
}

// Close implements Platform.
func (p *SandboxPlatform) Close() error {
	return nil
}

// MemoryPurchaseStore is a PurchaseStore backed by a slice.
type MemoryPurchaseStore struct {
	mu        sync.Mutex
	purchases []OwnedPurchase
}

// NewMemoryPurchaseStore returns an empty store.
func NewMemoryPurchaseStore() *MemoryPurchaseStore {
	return &MemoryPurchaseStore{}
}

func (m *MemoryPurchaseStore) SavePurchase(_ context.Context, p OwnedPurchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purchases = slices.DeleteFunc(m.purchases, func(o OwnedPurchase) bool { return o.SKU == p.SKU })
	m.purchases = append(m.purchases, p)
	return nil
}

func (m *MemoryPurchaseStore) ListPurchases(context.Context) ([]OwnedPurchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.purchases), nil
}

func (m *MemoryPurchaseStore) DeletePurchase(_ context.Context, sku string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purchases = slices.DeleteFunc(m.purchases, func(o OwnedPurchase) bool { return o.SKU == sku })
	return nil
}
