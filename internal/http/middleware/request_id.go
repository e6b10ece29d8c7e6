// README: Request id middleware; echoes or mints X-Request-ID and stores it on the request context.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"cargoquote/internal/log"
)

const RequestIDHeader = "X-Request-ID"

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(log.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}
