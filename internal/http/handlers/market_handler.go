// README: Market price and customer profile handlers.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"cargoquote/internal/modules/pricing"
)

type MarketService interface {
	MarketPrices(ctx context.Context) pricing.MarketData
	UpdateMarketPrices(ctx context.Context, updates []pricing.MarketPriceUpdate) (pricing.MarketData, error)
	UpsertCustomerProfile(ctx context.Context, p pricing.CustomerProfile) (pricing.CustomerProfile, error)
	PriceRecommendations(ctx context.Context, customerID string, prefs []pricing.RoutePreference) (pricing.PriceRecommendations, error)
}

type MarketHandler struct {
	market MarketService
}

func NewMarketHandler(market MarketService) *MarketHandler {
	return &MarketHandler{market: market}
}

type updatePricesReq struct {
	Prices []pricing.MarketPriceUpdate `json:"prices"`
}

func (h *MarketHandler) UpdatePrices(c *gin.Context) {
	var req updatePricesReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	md, err := h.market.UpdateMarketPrices(c.Request.Context(), req.Prices)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, md)
}

func (h *MarketHandler) Prices(c *gin.Context) {
	writeJSON(c, http.StatusOK, h.market.MarketPrices(c.Request.Context()))
}

func (h *MarketHandler) UpsertProfile(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid customer id")
		return
	}
	var p pricing.CustomerProfile
	if err := c.ShouldBindJSON(&p); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	p.CustomerID = id
	saved, err := h.market.UpsertCustomerProfile(c.Request.Context(), p)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, saved)
}

type recommendationsReq struct {
	Routes []pricing.RoutePreference `json:"routes"`
}

func (h *MarketHandler) Recommendations(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid customer id")
		return
	}
	var req recommendationsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	recs, err := h.market.PriceRecommendations(c.Request.Context(), id, req.Routes)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, recs)
}
