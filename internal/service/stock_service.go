package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"frostflow/internal/models"
	"frostflow/internal/toast"
	"frostflow/internal/util"
	"frostflow/internal/webhook"

	"go.uber.org/zap"
)

// ErrInvalidStockEntry is returned when a receipt fails basic validation.
var ErrInvalidStockEntry = errors.New("invalid stock entry")

// StockGateway is the slice of the remote gateway the stock service uses.
type StockGateway interface {
	InsertStockEntry(ctx context.Context, entry models.StockEntry) (*models.StockEntry, error)
	InsertStaffStockEntry(ctx context.Context, entry models.StaffStockEntry) (*models.StaffStockEntry, error)
	RecentStaffEntries(ctx context.Context, userID string, limit int) ([]models.StaffStockEntry, error)
	ProductHistory(ctx context.Context, productID string) ([]models.ProductHistoryItem, error)
	DailyEntryStatus(ctx context.Context) (models.DailyEntryStatus, error)
	StockExpenses(ctx context.Context, start, end time.Time) ([]models.StockEntry, error)
}

// StockService records stock receipts. Owner receipts go straight to the
// stock_in table; staff receipts are stored in stock_in_staff and forwarded
// to the automation webhook, whose trigger eventually moves product.unit and
// echoes back through the realtime subscription. Neither path mutates the
// product quantity directly.
type StockService struct {
	gateway StockGateway
	webhook *webhook.Client
	toast   toast.Notifier
	logger  *zap.Logger
}

// NewStockService creates the stock service.
func NewStockService(gateway StockGateway, hook *webhook.Client, notifier toast.Notifier) *StockService {
	return &StockService{
		gateway: gateway,
		webhook: hook,
		toast:   notifier,
		logger:  util.GetLogger(),
	}
}

// RecordOwnerEntry validates and inserts an owner stock receipt.
func (s *StockService) RecordOwnerEntry(ctx context.Context, entry models.StockEntry) (*models.StockEntry, error) {
	ctx, span := util.StartSpan(ctx, "StockService.RecordOwnerEntry")
	defer span.End()

	if entry.ProductID == "" || entry.Quantity <= 0 || entry.UnitType == "" {
		return nil, fmt.Errorf("%w: product, quantity and unit type required", ErrInvalidStockEntry)
	}

	created, err := s.gateway.InsertStockEntry(ctx, entry)
	if err != nil {
		s.toast.Show("Failed to record stock entry", toast.SeverityError)
		return nil, err
	}

	s.logger.Info("Owner stock entry recorded",
		zap.String("entry_id", created.ID),
		zap.String("product_id", created.ProductID),
		zap.Float64("quantity", created.Quantity))
	return created, nil
}

// RecordStaffEntry inserts a staff receipt and forwards it to the automation
// webhook. Webhook failure after a successful insert is reported but does not
// undo the insert; the row is the staff side's count of record.
func (s *StockService) RecordStaffEntry(ctx context.Context, entry models.StaffStockEntry) (*models.StaffStockEntry, error) {
	ctx, span := util.StartSpan(ctx, "StockService.RecordStaffEntry")
	defer span.End()

	if entry.ProductID == "" || entry.Quantity <= 0 || entry.UnitType == "" {
		return nil, fmt.Errorf("%w: product, quantity and unit type required", ErrInvalidStockEntry)
	}

	created, err := s.gateway.InsertStaffStockEntry(ctx, entry)
	if err != nil {
		s.toast.Show("Failed to record stock entry", toast.SeverityError)
		return nil, err
	}

	payload := models.StaffStockPayload{
		ProductID:  created.ProductID,
		Quantity:   created.Quantity,
		UnitType:   created.UnitType,
		DamagedQty: created.DamagedQty,
		Notes:      created.Notes,
		RecordedBy: created.RecordedBy,
	}
	if err := s.webhook.SendSalesStock(ctx, payload); err != nil {
		s.logger.Error("Staff stock entry saved but webhook delivery failed",
			zap.String("entry_id", created.ID),
			zap.Error(err))
		s.toast.Show("Entry saved, automation delivery failed", toast.SeverityError)
	}

	return created, nil
}

// RecentStaffEntries fetches the recorder's latest receipts for the recent
// log view.
func (s *StockService) RecentStaffEntries(ctx context.Context, userID string, limit int) ([]models.StaffStockEntry, error) {
	if limit <= 0 {
		limit = 5
	}
	return s.gateway.RecentStaffEntries(ctx, userID, limit)
}

// ProductHistory returns the merged IN/OUT movement history for one product.
func (s *StockService) ProductHistory(ctx context.Context, productID string) ([]models.ProductHistoryItem, error) {
	return s.gateway.ProductHistory(ctx, productID)
}

// DailyEntryStatus reports whether both reporters have submitted today.
func (s *StockService) DailyEntryStatus(ctx context.Context) (models.DailyEntryStatus, error) {
	return s.gateway.DailyEntryStatus(ctx)
}

// Expenses returns owner receipts with cost data in a date range.
func (s *StockService) Expenses(ctx context.Context, start, end time.Time) ([]models.StockEntry, error) {
	return s.gateway.StockExpenses(ctx, start, end)
}
