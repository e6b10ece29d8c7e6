package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"cargoquote/internal/modules/history"
)

type AnalyticsReader interface {
	Analytics(ctx context.Context, period string) history.AggregateStats
}

type AnalyticsHandler struct {
	analytics AnalyticsReader
}

func NewAnalyticsHandler(analytics AnalyticsReader) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// Get serves getAnalytics. An unknown period means the last 30 days.
func (h *AnalyticsHandler) Get(c *gin.Context) {
	period := c.DefaultQuery("period", "month")
	writeJSON(c, http.StatusOK, h.analytics.Analytics(c.Request.Context(), period))
}
