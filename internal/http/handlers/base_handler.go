// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cargoquote/internal/log"
	"cargoquote/internal/modules/history"
	"cargoquote/internal/modules/pricing"
	"cargoquote/internal/modules/routing"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID accepts uuids and other short opaque ids.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeServiceError maps sentinel errors to status codes. Anything unknown is a 500
// and the cause is logged rather than echoed.
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pricing.ErrInvalidRequest),
		errors.Is(err, routing.ErrInvalidRequest),
		errors.Is(err, history.ErrInvalidQuoteID):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, history.ErrQuoteNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	default:
		log.L(c.Request.Context()).Error("request failed", zap.Error(err))
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
