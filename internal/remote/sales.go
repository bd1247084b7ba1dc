package remote

import (
	"context"
	"fmt"
	"time"

	"frostflow/internal/models"
)

// SalesHistory fetches sales within a date range joined with product and
// staff names, newest first.
func (g *Gateway) SalesHistory(ctx context.Context, start, end time.Time) ([]models.Sale, error) {
	var sales []models.Sale
	query := fmt.Sprintf(`
		SELECT s.id, s.product_id, s.quantity, s.unit_type, s.total_price,
		       s.payment_method, s.status, s.recorded_by, s.created_at,
		       p.name AS product_name, u.name AS recorded_name
		FROM %s s
		JOIN %s p ON p.id = s.product_id
		LEFT JOIN %s u ON u.id = s.recorded_by
		WHERE s.created_at >= $1 AND s.created_at <= $2
		ORDER BY s.created_at DESC`,
		g.table("sales"), g.table("products"), g.table("users"))

	err := g.readRetry(ctx, "sales_history", func(ctx context.Context) error {
		sales = sales[:0]
		return g.db.SelectContext(ctx, &sales, query, start, end)
	})
	if err != nil {
		return nil, err
	}
	return sales, nil
}

// RecentSales fetches the most recent sales joined with product names.
func (g *Gateway) RecentSales(ctx context.Context, limit int) ([]models.Sale, error) {
	var sales []models.Sale
	query := fmt.Sprintf(`
		SELECT s.id, s.product_id, s.quantity, s.unit_type, s.total_price,
		       s.payment_method, s.status, s.recorded_by, s.created_at,
		       p.name AS product_name
		FROM %s s
		JOIN %s p ON p.id = s.product_id
		ORDER BY s.created_at DESC LIMIT $1`,
		g.table("sales"), g.table("products"))

	err := g.readRetry(ctx, "recent_sales", func(ctx context.Context) error {
		sales = sales[:0]
		return g.db.SelectContext(ctx, &sales, query, limit)
	})
	if err != nil {
		return nil, err
	}
	return sales, nil
}

// MarkSaleVoided transitions a sale to voided. Conditional on the sale not
// already being voided so a repeated void cannot return stock twice.
func (g *Gateway) MarkSaleVoided(ctx context.Context, saleID string) error {
	query := fmt.Sprintf(`UPDATE %s SET status = $1 WHERE id = $2 AND status <> $1`,
		g.table("sales"))

	return g.write(ctx, "mark_sale_voided", func(ctx context.Context) error {
		res, err := g.db.ExecContext(ctx, query, models.SaleStatusVoided, saleID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// SalesMetrics aggregates the all-time sales dashboard numbers.
func (g *Gateway) SalesMetrics(ctx context.Context) (models.SalesMetrics, error) {
	var metrics models.SalesMetrics
	query := fmt.Sprintf(`
		SELECT COALESCE(SUM(total_price), 0) AS total_sales_value,
		       COALESCE(SUM(quantity), 0)    AS total_units_sold
		FROM %s`, g.table("sales"))

	err := g.readRetry(ctx, "sales_metrics", func(ctx context.Context) error {
		row := g.db.QueryRowxContext(ctx, query)
		return row.Scan(&metrics.TotalSalesValue, &metrics.TotalUnitsSold)
	})
	return metrics, err
}

// TodaySalesMetrics aggregates today's sales numbers.
func (g *Gateway) TodaySalesMetrics(ctx context.Context) (models.SalesMetrics, error) {
	var metrics models.SalesMetrics
	dayStart := time.Now().UTC().Truncate(24 * time.Hour)
	query := fmt.Sprintf(`
		SELECT COALESCE(SUM(total_price), 0) AS total_sales_value,
		       COALESCE(SUM(quantity), 0)    AS total_units_sold
		FROM %s WHERE created_at >= $1`, g.table("sales"))

	err := g.readRetry(ctx, "today_sales_metrics", func(ctx context.Context) error {
		row := g.db.QueryRowxContext(ctx, query, dayStart)
		return row.Scan(&metrics.TotalSalesValue, &metrics.TotalUnitsSold)
	})
	return metrics, err
}
