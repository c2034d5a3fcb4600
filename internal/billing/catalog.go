package billing

import (
	"slices"
	"sync"
)

// Default product identifiers.
const (
	SKUFullVersion   = "osmand_full_version_price"
	SKUDepthContours = "net.osmand.seadepth_plus"
	SKUContourLines  = "net.osmand.contourlines"

	SKULiveUpdatesMonthly = "osm_live_subscription_monthly_full"
	SKULiveUpdates3Months = "osm_live_subscription_3_months_full"
	SKULiveUpdatesAnnual  = "osm_live_subscription_annual_full"
	SKULiveUpdatesLegacy  = "osm_live_subscription_2"
)

// Product is one purchasable item and its known state.
type Product struct {
	SKU          string        `json:"sku"`
	Subscription bool          `json:"subscription"`
	State        PurchaseState `json:"state"`
}

// Catalog holds the products offered and their ownership state.
type Catalog struct {
	mu            sync.RWMutex
	fullVersion   Product
	depthContours Product
	contourLines  Product
	liveUpdates   []Product
}

// NewCatalog returns the default product set.
func NewCatalog() *Catalog {
	c := &Catalog{
		fullVersion:   Product{SKU: SKUFullVersion},
		depthContours: Product{SKU: SKUDepthContours},
		contourLines:  Product{SKU: SKUContourLines},
	}
	for _, sku := range []string{SKULiveUpdatesMonthly, SKULiveUpdates3Months, SKULiveUpdatesAnnual, SKULiveUpdatesLegacy} {
		c.liveUpdates = append(c.liveUpdates, Product{SKU: sku, Subscription: true})
	}
	return c
}

// IsFullVersion reports whether sku is the full version product.
func (c *Catalog) IsFullVersion(sku string) bool {
	return sku == c.fullVersion.SKU
}

// IsDepthContours reports whether sku is the sea depth contours product.
func (c *Catalog) IsDepthContours(sku string) bool {
	return sku == c.depthContours.SKU
}

// IsContourLines reports whether sku is the contour lines product.
func (c *Catalog) IsContourLines(sku string) bool {
	return sku == c.contourLines.SKU
}

// IsLiveUpdates reports whether sku is one of the live updates subscriptions.
func (c *Catalog) IsLiveUpdates(sku string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.liveUpdatesIndex(sku) >= 0
}

// Known reports whether sku is in the catalog.
func (c *Catalog) Known(sku string) bool {
	return c.IsFullVersion(sku) || c.IsDepthContours(sku) || c.IsContourLines(sku) || c.IsLiveUpdates(sku)
}

// DefaultLiveUpdatesSKU is offered when a purchase names no subscription.
func (c *Catalog) DefaultLiveUpdatesSKU() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.liveUpdates[0].SKU
}

// UpgradeSubscription appends sku to the live updates list when unknown and
// reports whether it was added.
func (c *Catalog) UpgradeSubscription(sku string) bool {
	if sku == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.liveUpdatesIndex(sku) >= 0 {
		return false
	}
	c.liveUpdates = append(c.liveUpdates, Product{SKU: sku, Subscription: true})
	return true
}

// SetState records the ownership state of sku. Unknown SKUs are ignored.
func (c *Catalog) SetState(sku string, state PurchaseState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case sku == c.fullVersion.SKU:
		c.fullVersion.State = state
	case sku == c.depthContours.SKU:
		c.depthContours.State = state
	case sku == c.contourLines.SKU:
		c.contourLines.State = state
	default:
		if i := c.liveUpdatesIndex(sku); i >= 0 {
			c.liveUpdates[i].State = state
		}
	}
}

// LiveUpdateSKUs returns the subscription SKUs in catalog order.
func (c *Catalog) LiveUpdateSKUs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.liveUpdates))
	for i, p := range c.liveUpdates {
		out[i] = p.SKU
	}
	return out
}

func (c *Catalog) liveUpdatesIndex(sku string) int {
	return slices.IndexFunc(c.liveUpdates, func(p Product) bool { return p.SKU == sku })
}

// CatalogView is a point-in-time copy of the catalog.
type CatalogView struct {
	FullVersion   Product   `json:"fullVersion"`
	DepthContours Product   `json:"depthContours"`
	ContourLines  Product   `json:"contourLines"`
	LiveUpdates   []Product `json:"liveUpdates"`
}

// View copies the catalog.
func (c *Catalog) View() CatalogView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CatalogView{
		FullVersion:   c.fullVersion,
		DepthContours: c.depthContours,
		ContourLines:  c.contourLines,
		LiveUpdates:   slices.Clone(c.liveUpdates),
	}
}
