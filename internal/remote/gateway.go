package remote

import (
	"context"
	"fmt"
	"time"

	"frostflow/internal/util"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	opTimeout    = 10 * time.Second
	readAttempts = 3
	retryBackoff = 500 * time.Millisecond
)

// Gateway is the typed access layer for the frostflow schema. It owns no
// state beyond the connection pool; all business logic stays with its callers.
type Gateway struct {
	db     *sqlx.DB
	schema string
	logger *zap.Logger
}

// NewGateway connects to the backend and verifies the connection.
func NewGateway(databaseURL, schema string) (*Gateway, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Gateway{db: db, schema: schema, logger: util.GetLogger()}, nil
}

// Close closes the connection pool.
func (g *Gateway) Close() error {
	return g.db.Close()
}

// table returns the schema-qualified table name.
func (g *Gateway) table(name string) string {
	return g.schema + "." + name
}

// withTimeout applies the per-operation wall-clock budget.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}

// readRetry runs a read up to readAttempts times with linear backoff
// (attempt × retryBackoff). Writes never go through here.
func (g *Gateway) readRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= readAttempts; attempt++ {
		opCtx, cancel := withTimeout(ctx)
		err = classify(op, fn(opCtx))
		cancel()
		if err == nil || !retryable(err) {
			return err
		}
		if attempt < readAttempts {
			util.GatewayRetriesTotal.WithLabelValues(op).Inc()
			g.logger.Warn("Retrying read",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Error(err))
			select {
			case <-time.After(time.Duration(attempt) * retryBackoff):
			case <-ctx.Done():
				return classify(op, ctx.Err())
			}
		}
	}
	return err
}

// write runs a single non-retried write under the operation timeout.
func (g *Gateway) write(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	opCtx, cancel := withTimeout(ctx)
	defer cancel()
	return classify(op, fn(opCtx))
}
