package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"frostflow/internal/models"
	"frostflow/internal/remote"
	"frostflow/internal/toast"
	"frostflow/internal/util"
	"frostflow/internal/webhook"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrDuplicateSubmission is returned when a sale with the same idempotency
// key was already forwarded.
var ErrDuplicateSubmission = errors.New("duplicate sale submission")

// ErrSaleAlreadyVoided is returned when a sale was voided before this call.
var ErrSaleAlreadyVoided = errors.New("sale already voided")

// SalesGateway is the slice of the remote gateway the sales service uses.
type SalesGateway interface {
	SalesHistory(ctx context.Context, start, end time.Time) ([]models.Sale, error)
	RecentSales(ctx context.Context, limit int) ([]models.Sale, error)
	MarkSaleVoided(ctx context.Context, saleID string) error
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	AdjustProductUnit(ctx context.Context, id string, unit float64) error
	InsertAuditLog(ctx context.Context, tableName, recordID, action, changedBy string, beforeData, afterData interface{}) error
	SalesMetrics(ctx context.Context) (models.SalesMetrics, error)
	TodaySalesMetrics(ctx context.Context) (models.SalesMetrics, error)
}

// IdempotencyStore deduplicates sale submissions across processes. Satisfied
// by the redis client; may be nil.
type IdempotencyStore interface {
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	CheckIdempotencyKey(ctx context.Context, key string) (bool, error)
}

// SalesService records and voids sales. Recording goes through the automation
// webhook: the receiver inserts the sale row and decrements product stock,
// and the change echoes back through the realtime subscription. Voiding is a
// direct, synchronous path like mismatch resolution.
type SalesService struct {
	gateway SalesGateway
	webhook *webhook.Client
	idem    IdempotencyStore
	toast   toast.Notifier
	logger  *zap.Logger
}

// NewSalesService creates the sales service. idem may be nil.
func NewSalesService(gateway SalesGateway, hook *webhook.Client, idem IdempotencyStore, notifier toast.Notifier) *SalesService {
	return &SalesService{
		gateway: gateway,
		webhook: hook,
		idem:    idem,
		toast:   notifier,
		logger:  util.GetLogger(),
	}
}

// RecordSale forwards a sale to the automation webhook, deduplicating by
// idempotency key. A key is generated when the caller did not supply one.
func (s *SalesService) RecordSale(ctx context.Context, payload models.DailySalesPayload, idempotencyKey string) error {
	ctx, span := util.StartSpan(ctx, "SalesService.RecordSale")
	defer span.End()

	if payload.ProductID == "" || payload.Quantity <= 0 {
		return fmt.Errorf("%w: product and quantity required", ErrInvalidStockEntry)
	}

	if idempotencyKey == "" {
		idempotencyKey = uuid.New().String()
	}

	if s.idem != nil {
		seen, err := s.idem.CheckIdempotencyKey(ctx, idempotencyKey)
		if err != nil {
			s.logger.Warn("Idempotency check failed, continuing", zap.Error(err))
		} else if seen {
			s.logger.Info("Duplicate sale submission ignored",
				zap.String("idempotency_key", idempotencyKey))
			return ErrDuplicateSubmission
		}
	}

	if err := s.webhook.SendDailySales(ctx, payload); err != nil {
		s.toast.Show("Failed to record sale", toast.SeverityError)
		return err
	}

	if s.idem != nil {
		if err := s.idem.SetIdempotencyKey(ctx, idempotencyKey, "1", 24*time.Hour); err != nil {
			s.logger.Warn("Failed to store idempotency key", zap.Error(err))
		}
	}
	return nil
}

// History fetches sales in a date range joined with product and staff names.
func (s *SalesService) History(ctx context.Context, start, end time.Time) ([]models.Sale, error) {
	return s.gateway.SalesHistory(ctx, start, end)
}

// Recent fetches the latest sales.
func (s *SalesService) Recent(ctx context.Context, limit int) ([]models.Sale, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.gateway.RecentSales(ctx, limit)
}

// VoidSale marks a sale voided, returns its quantity to stock, and writes an
// audit entry with the reason. The void transition is conditional, so a
// repeated call cannot return stock twice. As with mismatch resolution the
// three writes are sequential; a failure after the first is surfaced, not
// rolled back.
func (s *SalesService) VoidSale(ctx context.Context, saleID, productID string, quantityToReturn float64, reason, actorID string) error {
	ctx, span := util.StartSpan(ctx, "SalesService.VoidSale")
	defer span.End()

	if quantityToReturn <= 0 {
		return fmt.Errorf("%w: quantity to return must be positive", ErrInvalidStockEntry)
	}

	if err := s.gateway.MarkSaleVoided(ctx, saleID); err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			return ErrSaleAlreadyVoided
		}
		s.toast.Show("Failed to void sale", toast.SeverityError)
		return fmt.Errorf("failed to void sale: %w", err)
	}

	product, err := s.gateway.GetProduct(ctx, productID)
	if err != nil {
		s.toast.Show("Sale voided but stock return failed", toast.SeverityError)
		return fmt.Errorf("sale voided but product lookup failed: %w", err)
	}

	newUnit := product.Unit + quantityToReturn
	if err := s.gateway.AdjustProductUnit(ctx, productID, newUnit); err != nil {
		s.toast.Show("Sale voided but stock return failed", toast.SeverityError)
		return fmt.Errorf("sale voided but stock return failed: %w", err)
	}

	if err := s.gateway.InsertAuditLog(ctx,
		"sales", saleID,
		fmt.Sprintf("VOID_TRANSACTION: %s", reason),
		actorID,
		map[string]interface{}{
			"sale_id":      saleID,
			"product_id":   productID,
			"product_name": product.Name,
			"quantity":     quantityToReturn,
			"status":       models.SaleStatusCompleted,
		},
		map[string]interface{}{
			"status":               models.SaleStatusVoided,
			"reason":               reason,
			"returned_to_stock_at": time.Now().UTC(),
		},
	); err != nil {
		s.toast.Show("Sale voided but audit failed", toast.SeverityError)
		return fmt.Errorf("sale voided but audit log failed: %w", err)
	}

	util.SalesVoidedTotal.Inc()
	s.logger.Info("Sale voided",
		zap.String("sale_id", saleID),
		zap.String("product_id", productID),
		zap.Float64("returned", quantityToReturn))
	s.toast.Show("Sale voided and stock returned", toast.SeveritySuccess)
	return nil
}

// Metrics returns the all-time sales dashboard numbers.
func (s *SalesService) Metrics(ctx context.Context) (models.SalesMetrics, error) {
	return s.gateway.SalesMetrics(ctx)
}

// TodayMetrics returns today's sales dashboard numbers.
func (s *SalesService) TodayMetrics(ctx context.Context) (models.SalesMetrics, error) {
	return s.gateway.TodaySalesMetrics(ctx)
}

var (
	_ SalesGateway   = (*remote.Gateway)(nil)
	_ StockGateway   = (*remote.Gateway)(nil)
	_ ProductGateway = (*remote.Gateway)(nil)
)
