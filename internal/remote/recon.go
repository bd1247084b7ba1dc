package remote

import (
	"context"
	"encoding/json"
	"fmt"

	"frostflow/internal/models"
)

// ListPendingMismatches fetches all mismatches whose status is neither match
// nor resolved, newest first, joined with the product's current name and
// on-hand quantity. The joined quantity is the baseline the resolution delta
// is applied to.
func (g *Gateway) ListPendingMismatches(ctx context.Context) ([]models.ReconciliationMismatch, error) {
	var mismatches []models.ReconciliationMismatch
	query := fmt.Sprintf(`
		SELECT r.id, r.product_id, r.system_quantity, r.staff_quantity,
		       r.owner_quantity, r.difference, r.status, r.created_at,
		       p.name AS product_name, p.unit AS product_unit
		FROM %s r
		JOIN %s p ON p.id = r.product_id
		WHERE r.status NOT IN ($1, $2)
		ORDER BY r.created_at DESC`,
		g.table("reconciliation"), g.table("products"))

	err := g.readRetry(ctx, "list_pending_mismatches", func(ctx context.Context) error {
		mismatches = mismatches[:0]
		return g.db.SelectContext(ctx, &mismatches, query,
			models.MismatchStatusMatch, models.MismatchStatusResolved)
	})
	if err != nil {
		return nil, err
	}
	return mismatches, nil
}

// GetMismatchStatus reads the current status of one mismatch row.
func (g *Gateway) GetMismatchStatus(ctx context.Context, id string) (string, error) {
	var status string
	query := fmt.Sprintf(`SELECT status FROM %s WHERE id = $1`, g.table("reconciliation"))

	err := g.readRetry(ctx, "get_mismatch_status", func(ctx context.Context) error {
		return g.db.GetContext(ctx, &status, query, id)
	})
	return status, err
}

// MarkMismatchResolved transitions the mismatch to resolved. The transition is
// conditional on the row still being pending, so a racing second resolver
// observes zero affected rows.
func (g *Gateway) MarkMismatchResolved(ctx context.Context, id string) error {
	query := fmt.Sprintf(`UPDATE %s SET status = $1 WHERE id = $2 AND status NOT IN ($1, $3)`,
		g.table("reconciliation"))

	return g.write(ctx, "mark_mismatch_resolved", func(ctx context.Context) error {
		res, err := g.db.ExecContext(ctx, query,
			models.MismatchStatusResolved, id, models.MismatchStatusMatch)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// InsertAuditLog appends one audit row. Before/after snapshots are stored as
// serialized JSON and never mutated afterwards.
func (g *Gateway) InsertAuditLog(ctx context.Context, tableName, recordID, action, changedBy string, beforeData, afterData interface{}) error {
	beforeJSON, err := json.Marshal(beforeData)
	if err != nil {
		return fmt.Errorf("failed to marshal before snapshot: %w", err)
	}
	afterJSON, err := json.Marshal(afterData)
	if err != nil {
		return fmt.Errorf("failed to marshal after snapshot: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (table_name, record_id, action, changed_by, before_data, after_data)
		VALUES ($1, $2, $3, $4, $5, $6)`, g.table("audit_logs"))

	return g.write(ctx, "insert_audit_log", func(ctx context.Context) error {
		_, err := g.db.ExecContext(ctx, query,
			tableName, recordID, action, changedBy, string(beforeJSON), string(afterJSON))
		return err
	})
}
