// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cargoquote/internal/http/handlers"
	"cargoquote/internal/http/middleware"
	"cargoquote/internal/metrics"
)

type RouterDeps struct {
	Quotes      handlers.QuoteService
	Market      handlers.MarketService
	Routes      handlers.RouteService
	Acceptor    handlers.Acceptor
	RouteLog    handlers.RouteHistory
	Analytics   handlers.AnalyticsReader
	CORSOrigins []string
	Logger      *zap.Logger
}

func NewRouter(d RouterDeps) *gin.Engine {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logging(logger), middleware.Recovery(logger))
	r.Use(cors.New(corsConfig(d.CORSOrigins)))

	quoteHandler := handlers.NewQuoteHandler(d.Quotes, d.Acceptor)
	r.POST("/api/quotes", quoteHandler.Create)
	r.POST("/api/quotes/dynamic", quoteHandler.Dynamic)
	r.POST("/api/quotes/:id/accept", quoteHandler.Accept)

	marketHandler := handlers.NewMarketHandler(d.Market)
	r.PUT("/api/market/prices", marketHandler.UpdatePrices)
	r.GET("/api/market/prices", marketHandler.Prices)
	r.PUT("/api/customers/:id/profile", marketHandler.UpsertProfile)
	r.POST("/api/customers/:id/recommendations", marketHandler.Recommendations)

	routeHandler := handlers.NewRouteHandler(d.Routes, d.RouteLog)
	r.POST("/api/routes", routeHandler.Create)
	r.POST("/api/routes/batch", routeHandler.Batch)
	r.GET("/api/routes/history", routeHandler.History)

	analyticsHandler := handlers.NewAnalyticsHandler(d.Analytics)
	r.GET("/api/analytics", analyticsHandler.Get)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	return r
}

// corsConfig allows every origin for "*" (without credentials), otherwise only the listed ones.
func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader},
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
