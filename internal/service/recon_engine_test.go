package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"frostflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type auditCall struct {
	tableName string
	recordID  string
	action    string
	changedBy string
	before    interface{}
	after     interface{}
}

type fakeReconGateway struct {
	mu sync.Mutex

	status    string
	statusErr error
	adjustErr error
	markErr   error
	auditErr  error

	adjustCalls []float64
	auditCalls  []auditCall
	markCalls   int
}

func (f *fakeReconGateway) ListPendingMismatches(ctx context.Context) ([]models.ReconciliationMismatch, error) {
	return nil, nil
}

func (f *fakeReconGateway) GetMismatchStatus(ctx context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return "", f.statusErr
	}
	return f.status, nil
}

func (f *fakeReconGateway) AdjustProductUnit(ctx context.Context, id string, unit float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.adjustErr != nil {
		return f.adjustErr
	}
	f.adjustCalls = append(f.adjustCalls, unit)
	return nil
}

func (f *fakeReconGateway) MarkMismatchResolved(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.markCalls++
	f.status = models.MismatchStatusResolved
	return nil
}

func (f *fakeReconGateway) InsertAuditLog(ctx context.Context, tableName, recordID, action, changedBy string, beforeData, afterData interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.auditErr != nil {
		return f.auditErr
	}
	f.auditCalls = append(f.auditCalls, auditCall{tableName, recordID, action, changedBy, beforeData, afterData})
	return nil
}

type fakeLocker struct {
	mu    sync.Mutex
	held  map[string]bool
	err   error
	deny  bool
	locks int
}

func (f *fakeLocker) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.deny {
		return false, nil
	}
	if f.held == nil {
		f.held = make(map[string]bool)
	}
	if f.held[lockKey] {
		return false, nil
	}
	f.held[lockKey] = true
	f.locks++
	return true, nil
}

func (f *fakeLocker) ReleaseLock(ctx context.Context, lockKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, lockKey)
	return nil
}

func mismatch(unit, owner, staff float64) models.ReconciliationMismatch {
	return models.ReconciliationMismatch{
		ID:            "mm-1",
		ProductID:     "prod-1",
		ProductName:   "Chicken Breast",
		ProductUnit:   unit,
		OwnerQuantity: owner,
		StaffQuantity: staff,
		Difference:    owner - staff,
		Status:        models.MismatchStatusMismatch,
	}
}

func TestResolutionDelta(t *testing.T) {
	m := mismatch(100, 110, 95)

	delta, err := ResolutionDelta(m, ResolutionOwner, 0)
	require.NoError(t, err)
	assert.Equal(t, 10.0, delta)

	delta, err = ResolutionDelta(m, ResolutionSales, 0)
	require.NoError(t, err)
	assert.Equal(t, -5.0, delta)

	delta, err = ResolutionDelta(m, ResolutionManual, 102)
	require.NoError(t, err)
	assert.Equal(t, 2.0, delta)

	_, err = ResolutionDelta(m, "split-the-difference", 0)
	assert.Error(t, err)
}

func TestCritical(t *testing.T) {
	m := mismatch(100, 110, 95)
	m.Difference = 5
	assert.False(t, Critical(m))
	m.Difference = 5.5
	assert.True(t, Critical(m))
}

func TestResolveAppliesDeltaAndAudits(t *testing.T) {
	gw := &fakeReconGateway{status: models.MismatchStatusMismatch}
	e := NewReconEngine(gw, nil, discardNotifier{}, 0)

	m := mismatch(100, 110, 95)
	delta, err := ResolutionDelta(m, ResolutionOwner, 0)
	require.NoError(t, err)

	require.NoError(t, e.Resolve(context.Background(), m, delta, "Owner count accepted via Admin", "user-7"))

	require.Len(t, gw.adjustCalls, 1)
	assert.Equal(t, 110.0, gw.adjustCalls[0])
	assert.Equal(t, 1, gw.markCalls)
	assert.Equal(t, models.MismatchStatusResolved, gw.status)

	require.Len(t, gw.auditCalls, 1)
	audit := gw.auditCalls[0]
	assert.Equal(t, "reconciliation", audit.tableName)
	assert.Equal(t, "mm-1", audit.recordID)
	assert.Equal(t, "RESOLVED_MISMATCH: Owner count accepted via Admin", audit.action)
	assert.Equal(t, "user-7", audit.changedBy)
	assert.Equal(t, map[string]interface{}{"Product": "Chicken Breast", "Quantity": 100.0}, audit.before)
	assert.Equal(t, map[string]interface{}{"Product": "Chicken Breast", "Quantity": 110.0}, audit.after)
}

func TestResolveRejectsNegativeQuantityBeforeAnyWrite(t *testing.T) {
	gw := &fakeReconGateway{status: models.MismatchStatusMismatch}
	e := NewReconEngine(gw, nil, discardNotifier{}, 0)

	m := mismatch(3, 110, 95)
	err := e.Resolve(context.Background(), m, -4, "", "user-7")
	require.ErrorIs(t, err, ErrNegativeQuantity)

	assert.Empty(t, gw.adjustCalls)
	assert.Empty(t, gw.auditCalls)
	assert.Equal(t, 0, gw.markCalls)
}

func TestResolveZeroResultAllowed(t *testing.T) {
	gw := &fakeReconGateway{status: models.MismatchStatusMismatch}
	e := NewReconEngine(gw, nil, discardNotifier{}, 0)

	m := mismatch(4, 0, 0)
	require.NoError(t, e.Resolve(context.Background(), m, -4, "", "user-7"))
	require.Len(t, gw.adjustCalls, 1)
	assert.Equal(t, 0.0, gw.adjustCalls[0])
}

func TestResolveRejectsNonPendingInput(t *testing.T) {
	gw := &fakeReconGateway{status: models.MismatchStatusResolved}
	e := NewReconEngine(gw, nil, discardNotifier{}, 0)

	m := mismatch(100, 110, 95)
	m.Status = models.MismatchStatusResolved
	err := e.Resolve(context.Background(), m, 10, "", "user-7")
	require.ErrorIs(t, err, ErrAlreadyResolved)
	assert.Empty(t, gw.adjustCalls)
}

func TestResolveRejectsStaleMismatch(t *testing.T) {
	// The caller's copy still says MISMATCH, but another resolver already
	// closed it remotely.
	gw := &fakeReconGateway{status: models.MismatchStatusResolved}
	e := NewReconEngine(gw, nil, discardNotifier{}, 0)

	err := e.Resolve(context.Background(), mismatch(100, 110, 95), 10, "", "user-7")
	require.ErrorIs(t, err, ErrAlreadyResolved)
	assert.Empty(t, gw.adjustCalls)
}

func TestResolveExactlyOnceUnderConcurrency(t *testing.T) {
	gw := &fakeReconGateway{status: models.MismatchStatusMismatch}
	e := NewReconEngine(gw, &fakeLocker{}, discardNotifier{}, 0)
	m := mismatch(100, 110, 95)

	const resolvers = 8
	var wg sync.WaitGroup
	results := make([]error, resolvers)
	for i := 0; i < resolvers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results[n] = e.Resolve(context.Background(), m, 10, "", "user-7")
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrResolutionInFlight), errors.Is(err, ErrAlreadyResolved):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Len(t, gw.adjustCalls, 1)
	assert.Equal(t, 1, gw.markCalls)
	assert.Len(t, gw.auditCalls, 1)
}

func TestResolveSecondCallAfterSuccess(t *testing.T) {
	gw := &fakeReconGateway{status: models.MismatchStatusMismatch}
	e := NewReconEngine(gw, nil, discardNotifier{}, 0)
	m := mismatch(100, 110, 95)

	require.NoError(t, e.Resolve(context.Background(), m, 10, "", "user-7"))

	// The stale list entry is resolved again; the fresh status check stops it.
	err := e.Resolve(context.Background(), m, 10, "", "user-7")
	require.ErrorIs(t, err, ErrAlreadyResolved)
	assert.Len(t, gw.adjustCalls, 1)
}

func TestResolveLockDenied(t *testing.T) {
	gw := &fakeReconGateway{status: models.MismatchStatusMismatch}
	e := NewReconEngine(gw, &fakeLocker{deny: true}, discardNotifier{}, 0)

	err := e.Resolve(context.Background(), mismatch(100, 110, 95), 10, "", "user-7")
	require.ErrorIs(t, err, ErrResolutionInFlight)
	assert.Empty(t, gw.adjustCalls)
}

func TestResolveLockErrorFallsBackToLocalGuard(t *testing.T) {
	gw := &fakeReconGateway{status: models.MismatchStatusMismatch}
	locker := &fakeLocker{err: errors.New("redis down")}
	e := NewReconEngine(gw, locker, discardNotifier{}, 0)

	require.NoError(t, e.Resolve(context.Background(), mismatch(100, 110, 95), 10, "", "user-7"))
	assert.Len(t, gw.adjustCalls, 1)
}

func TestResolveLockReleasedAfterResolve(t *testing.T) {
	gw := &fakeReconGateway{status: models.MismatchStatusMismatch}
	locker := &fakeLocker{}
	e := NewReconEngine(gw, locker, discardNotifier{}, 0)

	require.NoError(t, e.Resolve(context.Background(), mismatch(100, 110, 95), 10, "", "user-7"))

	locker.mu.Lock()
	defer locker.mu.Unlock()
	assert.Empty(t, locker.held)
}

func TestResolveSurfacesStatusWriteFailure(t *testing.T) {
	gw := &fakeReconGateway{status: models.MismatchStatusMismatch, markErr: errors.New("conn reset")}
	e := NewReconEngine(gw, nil, discardNotifier{}, 0)

	err := e.Resolve(context.Background(), mismatch(100, 110, 95), 10, "", "user-7")
	require.Error(t, err)

	// Quantity and audit writes already landed and are not undone.
	assert.Len(t, gw.adjustCalls, 1)
	assert.Len(t, gw.auditCalls, 1)
	assert.Equal(t, 0, gw.markCalls)
}

func TestDefaultResolutionNote(t *testing.T) {
	assert.Equal(t, "Owner count accepted via Admin", DefaultResolutionNote(ResolutionOwner))
	assert.Equal(t, "Sales count accepted via Admin", DefaultResolutionNote(ResolutionSales))
	assert.Equal(t, "Manual Admin Override", DefaultResolutionNote(ResolutionManual))
}
