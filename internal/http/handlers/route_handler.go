// README: Route handlers for single and batch planning plus route history.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cargoquote/internal/modules/history"
	"cargoquote/internal/modules/routing"
)

const defaultHistoryLimit = 50

type RouteService interface {
	GetRoute(ctx context.Context, req routing.RouteRequest) (routing.RoutePlan, error)
	BatchRoutes(ctx context.Context, reqs []routing.RouteRequest) ([]routing.BatchItem, error)
}

type RouteHistory interface {
	RecentRoutes(ctx context.Context, limit int) []history.RouteRecord
}

type RouteHandler struct {
	routes  RouteService
	history RouteHistory
}

func NewRouteHandler(routes RouteService, hist RouteHistory) *RouteHandler {
	return &RouteHandler{routes: routes, history: hist}
}

func (h *RouteHandler) Create(c *gin.Context) {
	var req routing.RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	plan, err := h.routes.GetRoute(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, plan)
}

type batchRoutesReq struct {
	Requests []routing.RouteRequest `json:"requests"`
}

func (h *RouteHandler) Batch(c *gin.Context) {
	var req batchRoutesReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	items, err := h.routes.BatchRoutes(c.Request.Context(), req.Requests)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"results": items})
}

func (h *RouteHandler) History(c *gin.Context) {
	limit := defaultHistoryLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	records := h.history.RecentRoutes(c.Request.Context(), limit)
	writeJSON(c, http.StatusOK, gin.H{"routes": records, "count": len(records)})
}
