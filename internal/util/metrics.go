package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProductsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "frostflow_products_total",
		Help: "Number of active products in the store cache",
	})

	LowStockProducts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "frostflow_low_stock_products",
		Help: "Number of products with 0 < unit < low-stock threshold",
	})

	OutOfStockProducts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "frostflow_out_of_stock_products",
		Help: "Number of products with zero on-hand quantity",
	})

	ProductCategories = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "frostflow_product_categories",
		Help: "Number of distinct product categories in the cache",
	})

	CacheRollbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frostflow_cache_rollbacks_total",
		Help: "Total optimistic cache rollbacks after failed remote writes",
	}, []string{"operation"})

	ChangeEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frostflow_change_events_total",
		Help: "Realtime change events applied to the product cache",
	}, []string{"event_type"})

	ChangeEventsDeduped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frostflow_change_events_deduped_total",
		Help: "Realtime inserts dropped because the row was already cached",
	})

	MismatchesResolvedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frostflow_mismatches_resolved_total",
		Help: "Total reconciliation mismatches resolved",
	})

	MismatchResolutionsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frostflow_mismatch_resolutions_failed_total",
		Help: "Total failed mismatch resolutions",
	}, []string{"reason"})

	ResolutionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "frostflow_resolution_latency_seconds",
		Help:    "Latency of mismatch resolution operations",
		Buckets: prometheus.DefBuckets,
	})

	GatewayRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frostflow_gateway_retries_total",
		Help: "Read retries issued against the remote backend",
	}, []string{"operation"})

	WebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frostflow_webhook_deliveries_total",
		Help: "Automation webhook deliveries by endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	SalesVoidedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frostflow_sales_voided_total",
		Help: "Total sales voided with stock returned",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
