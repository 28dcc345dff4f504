package app

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/liuxiaoxue22/market/internal/handler"
	"github.com/liuxiaoxue22/market/pkg/logger"
)

// RouterDeps 路由依赖
type RouterDeps struct {
	Order  *handler.OrderHandler
	Market *handler.MarketHandler
	Health *handler.HealthHandler
	Env    string
}

// NewRouter 构建 gin 路由
func NewRouter(deps *RouterDeps) *gin.Engine {
	if deps.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), accessLog())

	engine.GET("/health/live", deps.Health.Live)
	engine.GET("/health/ready", deps.Health.Ready)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/api/v1")
	{
		orders := v1.Group("/orders")
		{
			orders.POST("/sell", deps.Order.Sell)
			orders.POST("/buy", deps.Order.Buy)
			orders.POST("/cancel", deps.Order.Cancel)
			orders.GET("/:id", deps.Order.Detail)
			orders.GET("", deps.Order.List)
		}
		v1.GET("/market/dot_price", deps.Market.DotPrice)
	}

	return engine
}

// accessLog 访问日志中间件
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
