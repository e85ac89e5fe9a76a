package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/clinicore/dispensary/internal/server/handlers"
)

// New wires the Gin engine with required routes and middlewares.
func New(catalogHandler *handlers.CatalogHandler, orderHandler *handlers.OrderHandler, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	r.POST("/medications", catalogHandler.CreateMedication)
	r.GET("/medications", catalogHandler.ListMedications)
	r.GET("/medications/:id/batches", catalogHandler.ListBatches)
	r.POST("/medications/:id/batches", catalogHandler.ReceiveBatch)
	r.GET("/medications/:id/stock", catalogHandler.StockLevel)

	r.POST("/orders", orderHandler.CreateOrder)
	r.GET("/orders/:id", orderHandler.GetOrder)
	r.POST("/orders/:id/invoice", orderHandler.LinkInvoice)
	r.POST("/orders/:id/propose", orderHandler.Propose)
	r.POST("/orders/:id/dispense", orderHandler.Commit)
	r.POST("/orders/:id/cancel", orderHandler.Cancel)
	r.GET("/orders/:id/dispenses", orderHandler.ListDispenses)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
