package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

const ctxRequestID = "gridledger_request_id"

// RequestID returns a Gin middleware that propagates an incoming
// X-Request-ID or assigns a fresh UUID, echoing it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestIDFromCtx returns the id assigned by RequestID, or "".
func RequestIDFromCtx(c *gin.Context) string {
	return c.GetString(ctxRequestID)
}
