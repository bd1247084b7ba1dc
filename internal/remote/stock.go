package remote

import (
	"context"
	"fmt"
	"sort"
	"time"

	"frostflow/internal/models"
)

// InsertStockEntry records an owner stock receipt. The row is immutable; the
// product quantity moves via the backend trigger, not here.
func (g *Gateway) InsertStockEntry(ctx context.Context, entry models.StockEntry) (*models.StockEntry, error) {
	var created models.StockEntry
	query := fmt.Sprintf(`
		INSERT INTO %s
			(product_id, quantity, input_quantity, unit_type, total_weight,
			 unit_cost, unit_price, box_price, total_cost, logistics_fee,
			 reference_note, recorded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING *`, g.table("stock_in"))

	err := g.write(ctx, "insert_stock_entry", func(ctx context.Context) error {
		return g.db.GetContext(ctx, &created, query,
			entry.ProductID, entry.Quantity, entry.InputQuantity, entry.UnitType,
			entry.TotalWeight, entry.UnitCost, entry.UnitPrice, entry.BoxPrice,
			entry.TotalCost, entry.LogisticsFee, entry.ReferenceNote, entry.RecordedBy)
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// InsertStaffStockEntry records a staff stock receipt into its own table so
// reconciliation can compare it against the owner side.
func (g *Gateway) InsertStaffStockEntry(ctx context.Context, entry models.StaffStockEntry) (*models.StaffStockEntry, error) {
	var created models.StaffStockEntry
	query := fmt.Sprintf(`
		INSERT INTO %s (product_id, quantity, unit_type, damaged_qty, notes, recorded_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *`, g.table("stock_in_staff"))

	err := g.write(ctx, "insert_staff_stock_entry", func(ctx context.Context) error {
		return g.db.GetContext(ctx, &created, query,
			entry.ProductID, entry.Quantity, entry.UnitType,
			entry.DamagedQty, entry.Notes, entry.RecordedBy)
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// RecentStaffEntries fetches the last few receipts recorded by one user.
func (g *Gateway) RecentStaffEntries(ctx context.Context, userID string, limit int) ([]models.StaffStockEntry, error) {
	var entries []models.StaffStockEntry
	query := fmt.Sprintf(`
		SELECT * FROM %s WHERE recorded_by = $1
		ORDER BY created_at DESC LIMIT $2`, g.table("stock_in_staff"))

	err := g.readRetry(ctx, "recent_staff_entries", func(ctx context.Context) error {
		entries = entries[:0]
		return g.db.SelectContext(ctx, &entries, query, userID, limit)
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ProductHistory merges owner receipts (IN) and sales (OUT) for one product,
// newest first.
func (g *Gateway) ProductHistory(ctx context.Context, productID string) ([]models.ProductHistoryItem, error) {
	var stockIn []models.StockEntry
	inQuery := fmt.Sprintf(`SELECT * FROM %s WHERE product_id = $1`, g.table("stock_in"))
	err := g.readRetry(ctx, "product_history_in", func(ctx context.Context) error {
		stockIn = stockIn[:0]
		return g.db.SelectContext(ctx, &stockIn, inQuery, productID)
	})
	if err != nil {
		return nil, err
	}

	var sales []models.Sale
	outQuery := fmt.Sprintf(`
		SELECT id, product_id, quantity, unit_type, total_price,
		       payment_method, status, recorded_by, created_at
		FROM %s WHERE product_id = $1`, g.table("sales"))
	err = g.readRetry(ctx, "product_history_out", func(ctx context.Context) error {
		sales = sales[:0]
		return g.db.SelectContext(ctx, &sales, outQuery, productID)
	})
	if err != nil {
		return nil, err
	}

	history := make([]models.ProductHistoryItem, 0, len(stockIn)+len(sales))
	for _, in := range stockIn {
		note := in.ReferenceNote
		if note == "" {
			note = "Stock Added"
		}
		history = append(history, models.ProductHistoryItem{
			ID:          in.ID,
			Date:        in.CreatedAt,
			Type:        "IN",
			Quantity:    in.Quantity,
			Unit:        in.UnitType,
			OriginalQty: in.InputQuantity,
			Note:        note,
		})
	}
	for _, out := range sales {
		history = append(history, models.ProductHistoryItem{
			ID:       out.ID,
			Date:     out.CreatedAt,
			Type:     "OUT",
			Quantity: out.Quantity,
			Unit:     out.UnitType,
			Note:     fmt.Sprintf("Sold via %s", out.PaymentMethod),
		})
	}
	sort.Slice(history, func(i, j int) bool {
		return history[i].Date.After(history[j].Date)
	})
	return history, nil
}

// DailyEntryStatus reports whether the owner and the staff side have each
// submitted at least one receipt today.
func (g *Gateway) DailyEntryStatus(ctx context.Context) (models.DailyEntryStatus, error) {
	var status models.DailyEntryStatus
	dayStart := time.Now().UTC().Truncate(24 * time.Hour)

	ownerQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE created_at >= $1`, g.table("stock_in"))
	staffQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE created_at >= $1`, g.table("stock_in_staff"))

	err := g.readRetry(ctx, "daily_entry_status", func(ctx context.Context) error {
		var ownerCount, staffCount int
		if err := g.db.GetContext(ctx, &ownerCount, ownerQuery, dayStart); err != nil {
			return err
		}
		if err := g.db.GetContext(ctx, &staffCount, staffQuery, dayStart); err != nil {
			return err
		}
		status.OwnerReady = ownerCount > 0
		status.SalesReady = staffCount > 0
		return nil
	})
	return status, err
}

// StockExpenses fetches owner receipts (which carry the cost columns) within
// a date range, newest first.
func (g *Gateway) StockExpenses(ctx context.Context, start, end time.Time) ([]models.StockEntry, error) {
	var entries []models.StockEntry
	query := fmt.Sprintf(`
		SELECT * FROM %s
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at DESC`, g.table("stock_in"))

	err := g.readRetry(ctx, "stock_expenses", func(ctx context.Context) error {
		entries = entries[:0]
		return g.db.SelectContext(ctx, &entries, query, start, end)
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
