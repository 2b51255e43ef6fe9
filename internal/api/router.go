package api

import (
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
	"github.com/vladislavdragonenkov/retailops/internal/service/idempotency"
	"github.com/vladislavdragonenkov/retailops/internal/service/order"
)

// Dependencies — зависимости HTTP-слоя.
type Dependencies struct {
	Orders    *order.Service
	OrderRead domain.OrderReader
	Inventory domain.InventoryReader
	Stores    domain.StoreReader
	Outbox    domain.OutboxRepository
	Alerts    domain.AlertRepository
	Audit     domain.AuditReader
	Reports   domain.ReportsReader
	Guard     *idempotency.Guard
	Logger    *log.Entry
}

type handlers struct {
	deps     Dependencies
	validate *validatorv10.Validate
	logger   *log.Entry
}

// NewRouter собирает gin-роутер со всеми маршрутами API.
func NewRouter(deps Dependencies) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "api")
	}

	h := &handlers{
		deps:     deps,
		validate: validatorv10.New(),
		logger:   logger,
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/orders", h.createOrder)
		apiGroup.GET("/orders", h.listOrders)
		apiGroup.GET("/orders/:id", h.getOrder)
		apiGroup.POST("/orders/:id/confirm", h.confirmOrder)
		apiGroup.POST("/orders/:id/cancel", h.cancelOrder)

		apiGroup.GET("/stores", h.listStores)
		apiGroup.GET("/stores/:id/inventory", h.listInventory)

		apiGroup.GET("/alerts", h.listAlerts)
		apiGroup.POST("/alerts/:id/ack", h.acknowledgeAlert)
		apiGroup.POST("/alerts/:id/resolve", h.resolveAlert)

		apiGroup.GET("/outbox", h.listOutbox)
		apiGroup.GET("/outbox/stats", h.outboxStats)
		apiGroup.POST("/outbox/:id/requeue", h.requeueOutboxEvent)

		apiGroup.GET("/audit", h.listAudit)

		apiGroup.GET("/reports/critical-stock", h.criticalStockReport)
		apiGroup.GET("/reports/orders-summary", h.ordersSummaryReport)
		apiGroup.GET("/reports/top-skus", h.topSKUsReport)
	}

	return r
}

// requestLogger пишет одну структурированную строку на запрос.
func requestLogger(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(log.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		if c.Writer.Status() >= 500 {
			entry.Error("request failed")
		} else {
			entry.Info("request handled")
		}
	}
}
