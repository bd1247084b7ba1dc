package broker

import (
	"context"
	"sync"

	"frostflow/internal/models"
)

// EventMask selects which change types a subscription delivers.
type EventMask uint8

const (
	EventInsert EventMask = 1 << iota
	EventUpdate
	EventDelete

	EventAll = EventInsert | EventUpdate | EventDelete
)

func (m EventMask) matches(eventType string) bool {
	switch eventType {
	case models.ChangeInsert:
		return m&EventInsert != 0
	case models.ChangeUpdate:
		return m&EventUpdate != 0
	case models.ChangeDelete:
		return m&EventDelete != 0
	}
	return false
}

// Subscription is an open realtime channel for one table. The component that
// opened it owns it and must Close it exactly once on teardown; Close is
// idempotent so repeated mount/unmount cycles cannot leak handlers.
type Subscription struct {
	cancel    context.CancelFunc
	consumer  *Consumer
	closeOnce sync.Once
	done      chan struct{}
	err       error
}

// Subscribe opens a realtime channel on the consumer, invoking handler for
// every event of the given table matching the mask. Events for other tables
// are committed and skipped. Delivery is at-least-once in broker order.
func Subscribe(ctx context.Context, consumer *Consumer, table string, mask EventMask, handler EventHandler) *Subscription {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		cancel:   cancel,
		consumer: consumer,
		done:     make(chan struct{}),
	}

	go func() {
		defer close(sub.done)
		sub.err = consumer.StartConsuming(subCtx, func(ctx context.Context, event models.ChangeEvent) error {
			if event.Table != table || !mask.matches(event.EventType) {
				return nil
			}
			return handler(ctx, event)
		})
	}()

	return sub
}

// Close releases the channel. Safe to call more than once; only the first
// call has effect.
func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		err = s.consumer.Close()
	})
	return err
}
