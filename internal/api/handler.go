package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"frostflow/internal/models"
	"frostflow/internal/remote"
	"frostflow/internal/service"
	"frostflow/internal/toast"
	"frostflow/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains the HTTP handlers.
type Handler struct {
	store   *service.ProductStore
	recon   *service.ReconEngine
	stock   *service.StockService
	sales   *service.SalesService
	gateway *remote.Gateway
	toasts  *toast.Sink

	lowStockThreshold float64
}

// NewHandler creates the HTTP handler set.
func NewHandler(
	store *service.ProductStore,
	recon *service.ReconEngine,
	stock *service.StockService,
	sales *service.SalesService,
	gateway *remote.Gateway,
	toasts *toast.Sink,
	lowStockThreshold float64,
) *Handler {
	if lowStockThreshold <= 0 {
		lowStockThreshold = service.DefaultLowStockThreshold
	}
	return &Handler{
		store:             store,
		recon:             recon,
		stock:             stock,
		sales:             sales,
		gateway:           gateway,
		toasts:            toasts,
		lowStockThreshold: lowStockThreshold,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products", h.listProducts)
		v1.POST("/products", h.addProduct)
		v1.POST("/products/reload", h.reloadProducts)
		v1.PATCH("/products/:id", h.updateProduct)
		v1.DELETE("/products/:id", h.removeProduct)
		v1.GET("/products/:id/history", h.productHistory)

		v1.POST("/stock-entries", h.recordOwnerEntry)
		v1.POST("/staff-stock-entries", h.recordStaffEntry)
		v1.GET("/staff-stock-entries/recent", h.recentStaffEntries)
		v1.GET("/stock/daily-status", h.dailyEntryStatus)
		v1.GET("/stock/expenses", h.stockExpenses)

		v1.GET("/reconciliation", h.listMismatches)
		v1.POST("/reconciliation/:id/resolve", h.resolveMismatch)

		v1.POST("/sales", h.recordSale)
		v1.GET("/sales/recent", h.recentSales)
		v1.GET("/sales/history", h.salesHistory)
		v1.POST("/sales/:id/void", h.voidSale)

		v1.GET("/dashboard/metrics", h.dashboardMetrics)
		v1.GET("/dashboard/sales", h.salesMetrics)
		v1.GET("/dashboard/sales/today", h.todaySalesMetrics)

		v1.GET("/notifications", h.unreadNotifications)
		v1.POST("/notifications/:id/read", h.markNotificationRead)

		v1.GET("/staff", h.staffList)
		v1.PATCH("/staff/:id", h.setStaffActive)

		v1.GET("/ai-report", h.latestAIReport)
		v1.GET("/toasts", h.drainToasts)
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().Unix()})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	if !h.store.Initialized() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "loading"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "time": time.Now().Unix()})
}

// actorID is the opaque identity supplied by the session collaborator. It is
// only ever used as recorded_by / changed_by on writes.
func actorID(c *gin.Context) string {
	return c.GetHeader("X-Actor-Id")
}

func (h *Handler) listProducts(c *gin.Context) {
	if err := h.store.Load(c.Request.Context(), false); err != nil && !h.store.Initialized() {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"products": h.store.Products(),
		"metrics":  h.store.Metrics(),
	})
}

func (h *Handler) reloadProducts(c *gin.Context) {
	if err := h.store.Load(c.Request.Context(), true); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": h.store.Products()})
}

func (h *Handler) addProduct(c *gin.Context) {
	var req models.NewProduct
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if req.CreatedBy == "" {
		req.CreatedBy = actorID(c)
	}

	product, err := h.store.Add(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) updateProduct(c *gin.Context) {
	var patch models.ProductPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if patch.IsEmpty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Empty patch"})
		return
	}

	product, err := h.store.Update(c.Request.Context(), c.Param("id"), patch, actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) removeProduct(c *gin.Context) {
	if err := h.store.Remove(c.Request.Context(), c.Param("id"), actorID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) productHistory(c *gin.Context) {
	history, err := h.stock.ProductHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

func (h *Handler) recordOwnerEntry(c *gin.Context) {
	var entry models.StockEntry
	if err := c.ShouldBindJSON(&entry); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if entry.RecordedBy == "" {
		entry.RecordedBy = actorID(c)
	}

	created, err := h.stock.RecordOwnerEntry(c.Request.Context(), entry)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) recordStaffEntry(c *gin.Context) {
	var entry models.StaffStockEntry
	if err := c.ShouldBindJSON(&entry); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if entry.RecordedBy == "" {
		entry.RecordedBy = actorID(c)
	}

	created, err := h.stock.RecordStaffEntry(c.Request.Context(), entry)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) recentStaffEntries(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "5"))
	entries, err := h.stock.RecentStaffEntries(c.Request.Context(), actorID(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *Handler) dailyEntryStatus(c *gin.Context) {
	status, err := h.stock.DailyEntryStatus(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) stockExpenses(c *gin.Context) {
	start, end, ok := dateRange(c)
	if !ok {
		return
	}
	entries, err := h.stock.Expenses(c.Request.Context(), start, end)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expenses": entries})
}

func (h *Handler) listMismatches(c *gin.Context) {
	mismatches, err := h.recon.ListPending(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	critical := 0
	for _, m := range mismatches {
		if service.Critical(m) {
			critical++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"mismatches": mismatches,
		"total":      len(mismatches),
		"critical":   critical,
	})
}

type resolveRequest struct {
	Policy         string  `json:"policy" binding:"required"`
	ManualQuantity float64 `json:"manual_quantity"`
	Note           string  `json:"note"`
}

func (h *Handler) resolveMismatch(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	mismatches, err := h.recon.ListPending(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	var mismatch *models.ReconciliationMismatch
	for i := range mismatches {
		if mismatches[i].ID == c.Param("id") {
			mismatch = &mismatches[i]
			break
		}
	}
	if mismatch == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Mismatch not found or not pending"})
		return
	}

	delta, err := service.ResolutionDelta(*mismatch, req.Policy, req.ManualQuantity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	note := req.Note
	if note == "" {
		note = service.DefaultResolutionNote(req.Policy)
	}

	if err := h.recon.Resolve(c.Request.Context(), *mismatch, delta, note, actorID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   models.MismatchStatusResolved,
		"new_unit": mismatch.ProductUnit + delta,
	})
}

func (h *Handler) recordSale(c *gin.Context) {
	var payload models.DailySalesPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if payload.RecordedBy == "" {
		payload.RecordedBy = actorID(c)
	}

	err := h.sales.RecordSale(c.Request.Context(), payload, c.GetHeader("Idempotency-Key"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "forwarded"})
}

func (h *Handler) recentSales(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	sales, err := h.sales.Recent(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sales": sales})
}

func (h *Handler) salesHistory(c *gin.Context) {
	start, end, ok := dateRange(c)
	if !ok {
		return
	}
	sales, err := h.sales.History(c.Request.Context(), start, end)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sales": sales})
}

type voidSaleRequest struct {
	ProductID string  `json:"product_id" binding:"required"`
	Quantity  float64 `json:"quantity" binding:"required"`
	Reason    string  `json:"reason" binding:"required"`
}

func (h *Handler) voidSale(c *gin.Context) {
	var req voidSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	err := h.sales.VoidSale(c.Request.Context(), c.Param("id"), req.ProductID, req.Quantity, req.Reason, actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.SaleStatusVoided})
}

func (h *Handler) dashboardMetrics(c *gin.Context) {
	metrics, err := h.gateway.DashboardMetrics(c.Request.Context(), h.lowStockThreshold)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, metrics)
}

func (h *Handler) salesMetrics(c *gin.Context) {
	metrics, err := h.sales.Metrics(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, metrics)
}

func (h *Handler) todaySalesMetrics(c *gin.Context) {
	metrics, err := h.sales.TodayMetrics(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, metrics)
}

func (h *Handler) unreadNotifications(c *gin.Context) {
	notifications, err := h.gateway.UnreadNotifications(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

func (h *Handler) markNotificationRead(c *gin.Context) {
	if err := h.gateway.MarkNotificationRead(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) staffList(c *gin.Context) {
	staff, err := h.gateway.StaffList(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"staff": staff})
}

type staffStatusRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

func (h *Handler) setStaffActive(c *gin.Context) {
	var req staffStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if err := h.gateway.SetStaffActive(c.Request.Context(), c.Param("id"), *req.IsActive); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) latestAIReport(c *gin.Context) {
	report, err := h.gateway.LatestAIReport(c.Request.Context())
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{"report": nil})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

func (h *Handler) drainToasts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"toasts": h.toasts.Drain()})
}

func dateRange(c *gin.Context) (time.Time, time.Time, bool) {
	start, err := time.Parse(time.RFC3339, c.Query("start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid start date"})
		return time.Time{}, time.Time{}, false
	}
	end, err := time.Parse(time.RFC3339, c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid end date"})
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// respondError maps the gateway/service error taxonomy onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var ve *remote.ValidationError
	var te *remote.TimeoutError

	switch {
	case errors.As(err, &ve), errors.Is(err, service.ErrInvalidStockEntry),
		errors.Is(err, service.ErrNegativeQuantity):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, remote.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrResolutionInFlight),
		errors.Is(err, service.ErrAlreadyResolved),
		errors.Is(err, service.ErrSaleAlreadyVoided),
		errors.Is(err, service.ErrDuplicateSubmission):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &te):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
