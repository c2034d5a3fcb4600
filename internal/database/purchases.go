package database

import (
	"context"
	"time"

	"map-manager/internal/billing"
)

// SavePurchase stores a sandbox purchase, replacing any previous one for the
// same SKU.
func (d *Database) SavePurchase(ctx context.Context, p billing.OwnedPurchase) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("save_purchase", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO sandbox_purchases (order_id, sku, purchase_token, payload, purchased_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(sku) DO UPDATE SET
			order_id = excluded.order_id,
			purchase_token = excluded.purchase_token,
			payload = excluded.payload,
			purchased_at = excluded.purchased_at
	`, p.OrderID, p.SKU, p.PurchaseToken, p.Payload, p.PurchasedAt.UnixMilli())
	return err
}

// ListPurchases returns stored sandbox purchases, oldest first. Purchases
// stored in the same millisecond keep insertion order.
func (d *Database) ListPurchases(ctx context.Context) ([]billing.OwnedPurchase, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_purchases", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT order_id, sku, purchase_token, payload, purchased_at
		FROM sandbox_purchases ORDER BY purchased_at, rowid
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.OwnedPurchase
	for rows.Next() {
		var p billing.OwnedPurchase
		var purchasedAt int64
		if err = rows.Scan(&p.OrderID, &p.SKU, &p.PurchaseToken, &p.Payload, &purchasedAt); err != nil {
			return nil, err
		}
		p.PurchasedAt = time.UnixMilli(purchasedAt)
		out = append(out, p)
	}
	err = rows.Err()
	return out, err
}

// DeletePurchase removes the sandbox purchase of sku.
func (d *Database) DeletePurchase(ctx context.Context, sku string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_purchase", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "DELETE FROM sandbox_purchases WHERE sku = ?", sku)
	return err
}
