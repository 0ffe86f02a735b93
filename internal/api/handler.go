package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"checkout-engine/internal/apperr"
	"checkout-engine/internal/auth"
	"checkout-engine/internal/callback"
	"checkout-engine/internal/service"
	"checkout-engine/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the handler
type Options struct {
	SignatureHeader          string
	DefaultLowStockThreshold int
}

// Handler contains HTTP handlers
type Handler struct {
	orderService *service.OrderService
	ledger       *service.InventoryLedger
	callbacks    *callback.Pipeline
	jwtService   *auth.JWTService
	opts         Options
	checks       map[string]Pinger
	logger       *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orderService *service.OrderService,
	ledger *service.InventoryLedger,
	callbacks *callback.Pipeline,
	jwtService *auth.JWTService,
	opts Options,
) *Handler {
	if opts.SignatureHeader == "" {
		opts.SignatureHeader = callback.DefaultSignatureHeader
	}
	return &Handler{
		orderService: orderService,
		ledger:       ledger,
		callbacks:    callbacks,
		jwtService:   jwtService,
		opts:         opts,
		checks:       make(map[string]Pinger),
		logger:       util.GetLogger(),
	}
}

// AddReadinessCheck registers a dependency for /ready
func (h *Handler) AddReadinessCheck(name string, p Pinger) {
	h.checks[name] = p
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	// Provider callbacks authenticate by origin and signature, not by token
	payments := v1.Group("/payments")
	{
		payments.POST("/callback", h.paymentCallback(callback.KindResult))
		payments.POST("/timeout", h.paymentCallback(callback.KindTimeout))
	}

	customer := v1.Group("", auth.RequireAuth(h.jwtService))
	{
		customer.POST("/checkout", h.checkout)
		customer.GET("/orders", h.listOrders)
		customer.GET("/orders/:id", h.getOrder)
		customer.GET("/orders/:id/payment", h.getPayment)
		customer.POST("/orders/:id/cancel", h.cancelOrder)
	}

	admin := v1.Group("/admin", auth.RequireAuth(h.jwtService), auth.RequireRole(auth.RoleAdmin))
	{
		admin.GET("/orders/:id", h.adminGetOrder)
		admin.POST("/orders/:id/cancel", h.adminCancelOrder)
		admin.POST("/orders/:id/status", h.advanceOrder)
		admin.POST("/orders/:id/return", h.acceptReturn)
		admin.POST("/orders/:id/refund", h.refundOrder)
		admin.DELETE("/orders/:id", h.deleteOrder)

		admin.GET("/inventory/:productId", h.getInventory)
		admin.POST("/inventory/:productId", h.stockProduct)
		admin.POST("/inventory/:productId/restock", h.restockProduct)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			deps[name] = err.Error()
			continue
		}
		deps[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	c.JSON(status, gin.H{
		"status":       state,
		"dependencies": deps,
		"time":         time.Now().Unix(),
	})
}

// respondError maps an engine error to its status and code
func (h *Handler) respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, gin.H{
		"error": err.Error(),
		"code":  apperr.Code(err),
	})
}

func (h *Handler) badRequest(c *gin.Context, message string, err error) {
	body := gin.H{"error": message, "code": "invalid_argument"}
	if err != nil {
		body["details"] = err.Error()
	}
	c.JSON(http.StatusBadRequest, body)
}

func parseID(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
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
