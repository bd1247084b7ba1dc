package remote

import (
	"context"
	"fmt"

	"frostflow/internal/models"
)

// DashboardMetrics aggregates inventory value and counts over active products.
func (g *Gateway) DashboardMetrics(ctx context.Context, lowStockThreshold float64) (models.DashboardMetrics, error) {
	var metrics models.DashboardMetrics
	query := fmt.Sprintf(`
		SELECT COALESCE(SUM(unit * unit_price), 0)          AS total_value,
		       COUNT(*) FILTER (WHERE unit < $1)            AS low_stock,
		       COUNT(*)                                     AS total_items
		FROM %s WHERE is_active = true`, g.table("products"))

	err := g.readRetry(ctx, "dashboard_metrics", func(ctx context.Context) error {
		row := g.db.QueryRowxContext(ctx, query, lowStockThreshold)
		return row.Scan(&metrics.TotalValue, &metrics.LowStock, &metrics.TotalItems)
	})
	return metrics, err
}

// UnreadNotifications fetches unread notification rows, newest first.
func (g *Gateway) UnreadNotifications(ctx context.Context) ([]models.Notification, error) {
	var notifications []models.Notification
	query := fmt.Sprintf(`
		SELECT * FROM %s WHERE is_read = false
		ORDER BY created_at DESC`, g.table("notifications"))

	err := g.readRetry(ctx, "unread_notifications", func(ctx context.Context) error {
		notifications = notifications[:0]
		return g.db.SelectContext(ctx, &notifications, query)
	})
	if err != nil {
		return nil, err
	}
	return notifications, nil
}

// MarkNotificationRead flags one notification as read.
func (g *Gateway) MarkNotificationRead(ctx context.Context, id string) error {
	query := fmt.Sprintf(`UPDATE %s SET is_read = true WHERE id = $1`, g.table("notifications"))

	return g.write(ctx, "mark_notification_read", func(ctx context.Context) error {
		_, err := g.db.ExecContext(ctx, query, id)
		return err
	})
}

// StaffList fetches all non-owner users, newest first.
func (g *Gateway) StaffList(ctx context.Context) ([]models.UserProfile, error) {
	var users []models.UserProfile
	query := fmt.Sprintf(`
		SELECT * FROM %s WHERE role <> 'owner'
		ORDER BY created_at DESC`, g.table("users"))

	err := g.readRetry(ctx, "staff_list", func(ctx context.Context) error {
		users = users[:0]
		return g.db.SelectContext(ctx, &users, query)
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// SetStaffActive toggles a staff account's active flag.
func (g *Gateway) SetStaffActive(ctx context.Context, userID string, isActive bool) error {
	query := fmt.Sprintf(`UPDATE %s SET is_active = $1 WHERE id = $2`, g.table("users"))

	return g.write(ctx, "set_staff_active", func(ctx context.Context) error {
		res, err := g.db.ExecContext(ctx, query, isActive, userID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// LatestAIReport fetches the most recent AI stock report, if any.
func (g *Gateway) LatestAIReport(ctx context.Context) (*models.AIStockReport, error) {
	var report models.AIStockReport
	query := fmt.Sprintf(`
		SELECT * FROM %s ORDER BY created_at DESC LIMIT 1`, g.table("ai_stock_reports"))

	err := g.readRetry(ctx, "latest_ai_report", func(ctx context.Context) error {
		return g.db.GetContext(ctx, &report, query)
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}
