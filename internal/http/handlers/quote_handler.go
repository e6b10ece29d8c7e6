// README: Quote handlers for pricing, the dynamic price table and acceptance.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cargoquote/internal/modules/pricing"
)

type QuoteService interface {
	GetQuote(ctx context.Context, req pricing.QuoteRequest) (pricing.QuoteResult, error)
	DynamicPricing(ctx context.Context, routes []string, timeframe string) (pricing.DynamicPriceTable, error)
}

type Acceptor interface {
	MarkAccepted(ctx context.Context, quoteID, orderID string, at time.Time) error
}

type QuoteHandler struct {
	quotes   QuoteService
	acceptor Acceptor
	now      func() time.Time
}

func NewQuoteHandler(quotes QuoteService, acceptor Acceptor) *QuoteHandler {
	return &QuoteHandler{quotes: quotes, acceptor: acceptor, now: time.Now}
}

func (h *QuoteHandler) Create(c *gin.Context) {
	var req pricing.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	q, err := h.quotes.GetQuote(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, q)
}

type dynamicPricingReq struct {
	Routes    []string `json:"routes"`
	Timeframe string   `json:"timeframe"`
}

func (h *QuoteHandler) Dynamic(c *gin.Context) {
	var req dynamicPricingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	table, err := h.quotes.DynamicPricing(c.Request.Context(), req.Routes, req.Timeframe)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, table)
}

type acceptQuoteReq struct {
	OrderID    string     `json:"orderId"`
	AcceptedAt *time.Time `json:"acceptedAt"`
}

func (h *QuoteHandler) Accept(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid quote id")
		return
	}
	var req acceptQuoteReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json")
			return
		}
	}
	at := h.now()
	if req.AcceptedAt != nil {
		at = *req.AcceptedAt
	}
	if err := h.acceptor.MarkAccepted(c.Request.Context(), id, req.OrderID, at); err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"quoteId": id, "accepted": true})
}
