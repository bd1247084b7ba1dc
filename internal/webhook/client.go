package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"frostflow/internal/models"
	"frostflow/internal/util"

	"go.uber.org/zap"
)

// Client posts stock and sales payloads to the automation workflow. The
// receiver applies the business triggers (quantity increments/decrements);
// this service relies on the resulting realtime UPDATE flowing back through
// the change subscription rather than mutating quantities itself.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a webhook client for the automation base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  util.GetLogger(),
	}
}

// SendSalesStock posts a staff stock receipt for asynchronous processing.
func (c *Client) SendSalesStock(ctx context.Context, payload models.StaffStockPayload) error {
	return c.post(ctx, "/stock-sales-entry", payload)
}

// SendDailySales posts a sale for asynchronous processing.
func (c *Client) SendDailySales(ctx context.Context, payload models.DailySalesPayload) error {
	return c.post(ctx, "/sales-entry", payload)
}

func (c *Client) post(ctx context.Context, endpoint string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		util.WebhookDeliveriesTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		util.WebhookDeliveriesTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	util.WebhookDeliveriesTotal.WithLabelValues(endpoint, "ok").Inc()
	c.logger.Info("Webhook delivered", zap.String("endpoint", endpoint))
	return nil
}
