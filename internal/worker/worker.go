package worker

import (
	"context"

	"frostflow/internal/broker"
	"frostflow/internal/models"
	"frostflow/internal/service"
	"frostflow/internal/util"

	"go.uber.org/zap"
)

// ProductSyncWorker owns the realtime product subscription and is the only
// caller of the store's merge handler, so every change event flows through a
// single dispatcher rather than competing handlers mutating the cache.
type ProductSyncWorker struct {
	consumer *broker.Consumer
	store    *service.ProductStore
	logger   *zap.Logger
	sub      *broker.Subscription
}

// NewProductSyncWorker creates the merge-loop worker.
func NewProductSyncWorker(consumer *broker.Consumer, store *service.ProductStore) *ProductSyncWorker {
	return &ProductSyncWorker{
		consumer: consumer,
		store:    store,
		logger:   util.GetLogger(),
	}
}

// Start opens the products subscription and begins merging change events.
func (w *ProductSyncWorker) Start(ctx context.Context) {
	w.logger.Info("Starting product sync worker")

	w.sub = broker.Subscribe(ctx, w.consumer, "products", broker.EventAll,
		func(ctx context.Context, event models.ChangeEvent) error {
			change, err := models.DecodeProductChange(event)
			if err != nil {
				w.logger.Error("Failed to decode product change",
					zap.String("event_id", event.EventID),
					zap.Error(err))
				// Undecodable payloads are dropped; redelivery cannot fix them.
				return nil
			}
			w.store.ApplyChange(change)
			return nil
		})
}

// Stop releases the subscription. Safe to call more than once.
func (w *ProductSyncWorker) Stop() error {
	w.logger.Info("Stopping product sync worker")
	if w.sub == nil {
		return nil
	}
	return w.sub.Close()
}
