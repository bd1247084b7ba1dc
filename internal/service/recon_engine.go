package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"frostflow/internal/models"
	"frostflow/internal/remote"
	"frostflow/internal/toast"
	"frostflow/internal/util"

	"go.uber.org/zap"
)

// DefaultCriticalDifference classifies a mismatch as critical for display.
const DefaultCriticalDifference = 5

// Resolution policies: whose count becomes the agreed-upon true quantity.
const (
	ResolutionOwner  = "owner"
	ResolutionSales  = "sales"
	ResolutionManual = "manual"
)

var (
	// ErrResolutionInFlight is returned when a second resolve for the same
	// mismatch arrives before the first finishes.
	ErrResolutionInFlight = errors.New("resolution already in flight for this mismatch")

	// ErrAlreadyResolved is returned when the mismatch is no longer pending.
	ErrAlreadyResolved = errors.New("mismatch already resolved")

	// ErrNegativeQuantity is returned when a resolution would push the
	// on-hand quantity below zero. Rejected before any remote write.
	ErrNegativeQuantity = errors.New("resolution would make quantity negative")
)

// ReconGateway is the slice of the remote gateway the engine depends on.
type ReconGateway interface {
	ListPendingMismatches(ctx context.Context) ([]models.ReconciliationMismatch, error)
	GetMismatchStatus(ctx context.Context, id string) (string, error)
	AdjustProductUnit(ctx context.Context, id string, unit float64) error
	MarkMismatchResolved(ctx context.Context, id string) error
	InsertAuditLog(ctx context.Context, tableName, recordID, action, changedBy string, beforeData, afterData interface{}) error
}

// ResolutionLocker is the cross-process guard. Satisfied by the redis client;
// may be nil, in which case only the in-process single-flight applies.
type ResolutionLocker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

// ReconEngine surfaces pending mismatches and commits exactly one resolution
// per mismatch: a quantity adjustment, an audit entry, and a status
// transition. The three writes are sequential with no transaction around
// them; a failure after the first leaves an adjusted quantity with an
// unresolved mismatch, which is surfaced rather than rolled back.
type ReconEngine struct {
	gateway ReconGateway
	locker  ResolutionLocker
	toast   toast.Notifier
	logger  *zap.Logger
	lockTTL time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewReconEngine creates the engine. locker may be nil.
func NewReconEngine(gateway ReconGateway, locker ResolutionLocker, notifier toast.Notifier, lockTTL time.Duration) *ReconEngine {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &ReconEngine{
		gateway:  gateway,
		locker:   locker,
		toast:    notifier,
		logger:   util.GetLogger(),
		lockTTL:  lockTTL,
		inflight: make(map[string]struct{}),
	}
}

// ListPending fetches all unresolved mismatches, newest first, each joined
// with its product's current name and quantity.
func (e *ReconEngine) ListPending(ctx context.Context) ([]models.ReconciliationMismatch, error) {
	ctx, span := util.StartSpan(ctx, "ReconEngine.ListPending")
	defer span.End()
	return e.gateway.ListPendingMismatches(ctx)
}

// Critical reports whether a mismatch exceeds the critical difference.
func Critical(m models.ReconciliationMismatch) bool {
	return m.Difference > DefaultCriticalDifference
}

// ResolutionDelta computes the signed quantity delta for a resolution policy.
// The contract is delta-based throughout: the delta is what must be added to
// the product's current quantity (as captured in the mismatch join) to reach
// the agreed-upon true count.
func ResolutionDelta(m models.ReconciliationMismatch, policy string, manualTarget float64) (float64, error) {
	var target float64
	switch policy {
	case ResolutionOwner:
		target = m.OwnerQuantity
	case ResolutionSales:
		target = m.StaffQuantity
	case ResolutionManual:
		target = manualTarget
	default:
		return 0, fmt.Errorf("unknown resolution policy: %q", policy)
	}
	return target - m.ProductUnit, nil
}

// DefaultResolutionNote fills the audit note when the resolver left it empty.
func DefaultResolutionNote(policy string) string {
	switch policy {
	case ResolutionOwner:
		return "Owner count accepted via Admin"
	case ResolutionSales:
		return "Sales count accepted via Admin"
	default:
		return "Manual Admin Override"
	}
}

// Resolve commits a resolution: writes unit = currentUnit + delta, appends an
// audit entry with the before/after quantities, and marks the mismatch
// resolved. currentUnit is the quantity captured in the mismatch join at
// fetch time, not re-read before the write.
//
// Guards, all checked before the first remote write:
//   - the resulting quantity must not be negative;
//   - a per-mismatch in-process single-flight rejects overlapping calls;
//   - a cross-process lock (when a locker is configured) serializes racing
//     resolvers;
//   - a fresh status read rejects a mismatch another resolver already closed.
func (e *ReconEngine) Resolve(ctx context.Context, m models.ReconciliationMismatch, delta float64, note string, actorID string) error {
	ctx, span := util.StartSpan(ctx, "ReconEngine.Resolve")
	defer span.End()

	start := time.Now()
	defer func() {
		util.ResolutionLatency.Observe(time.Since(start).Seconds())
	}()

	newUnit := m.ProductUnit + delta
	if newUnit < 0 {
		util.MismatchResolutionsFailed.WithLabelValues("negative_quantity").Inc()
		return ErrNegativeQuantity
	}
	if !m.Pending() {
		util.MismatchResolutionsFailed.WithLabelValues("already_resolved").Inc()
		return ErrAlreadyResolved
	}

	e.mu.Lock()
	if _, busy := e.inflight[m.ID]; busy {
		e.mu.Unlock()
		util.MismatchResolutionsFailed.WithLabelValues("in_flight").Inc()
		return ErrResolutionInFlight
	}
	e.inflight[m.ID] = struct{}{}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.inflight, m.ID)
		e.mu.Unlock()
	}()

	if e.locker != nil {
		lockKey := "reconciliation:" + m.ID
		acquired, err := e.locker.AcquireLock(ctx, lockKey, e.lockTTL)
		if err != nil {
			e.logger.Warn("Resolution lock unavailable, relying on local guard",
				zap.String("mismatch_id", m.ID), zap.Error(err))
		} else if !acquired {
			util.MismatchResolutionsFailed.WithLabelValues("locked").Inc()
			return ErrResolutionInFlight
		} else {
			defer func() {
				if err := e.locker.ReleaseLock(context.Background(), lockKey); err != nil {
					e.logger.Warn("Failed to release resolution lock",
						zap.String("mismatch_id", m.ID), zap.Error(err))
				}
			}()
		}
	}

	// The caller's mismatch may be stale; a racing resolver can have closed
	// it between fetch and this call.
	status, err := e.gateway.GetMismatchStatus(ctx, m.ID)
	if err != nil {
		util.MismatchResolutionsFailed.WithLabelValues("status_check").Inc()
		return fmt.Errorf("failed to check mismatch status: %w", err)
	}
	if status == models.MismatchStatusResolved || status == models.MismatchStatusMatch {
		util.MismatchResolutionsFailed.WithLabelValues("already_resolved").Inc()
		return ErrAlreadyResolved
	}

	if err := e.gateway.AdjustProductUnit(ctx, m.ProductID, newUnit); err != nil {
		util.MismatchResolutionsFailed.WithLabelValues("quantity_write").Inc()
		e.toast.Show("Failed to resolve mismatch", toast.SeverityError)
		return fmt.Errorf("failed to adjust product quantity: %w", err)
	}

	// From here on the quantity change has taken effect; failures below are
	// surfaced but not rolled back.
	if err := e.gateway.InsertAuditLog(ctx,
		"reconciliation", m.ID,
		fmt.Sprintf("RESOLVED_MISMATCH: %s", note),
		actorID,
		map[string]interface{}{"Product": m.ProductName, "Quantity": m.ProductUnit},
		map[string]interface{}{"Product": m.ProductName, "Quantity": newUnit},
	); err != nil {
		util.MismatchResolutionsFailed.WithLabelValues("audit_write").Inc()
		e.toast.Show("Mismatch adjustment applied but audit failed", toast.SeverityError)
		return fmt.Errorf("quantity adjusted but audit log failed: %w", err)
	}

	if err := e.gateway.MarkMismatchResolved(ctx, m.ID); err != nil {
		util.MismatchResolutionsFailed.WithLabelValues("status_write").Inc()
		e.toast.Show("Mismatch adjustment applied but status update failed", toast.SeverityError)
		return fmt.Errorf("quantity adjusted but status update failed: %w", err)
	}

	util.MismatchesResolvedTotal.Inc()
	e.logger.Info("Mismatch resolved",
		zap.String("mismatch_id", m.ID),
		zap.String("product_id", m.ProductID),
		zap.Float64("before", m.ProductUnit),
		zap.Float64("after", newUnit),
		zap.Float64("delta", delta))
	e.toast.Show("Mismatch resolved successfully", toast.SeveritySuccess)
	return nil
}

var _ ReconGateway = (*remote.Gateway)(nil)
