package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/tabwall/internal/logging"
	"github.com/GriffinCanCode/tabwall/internal/shared/id"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// RequestID tags every request with an id and echoes it in the response.
// An incoming UUID or request ULID is kept; anything else is replaced.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if !wellFormed(rid) {
			rid = id.NewRequestID().String()
		}
		c.Set(requestIDKey, rid)
		c.Header(RequestIDHeader, rid)
		c.Next()
	}
}

func wellFormed(rid string) bool {
	if rid == "" || len(rid) > 64 {
		return false
	}
	if _, err := uuid.Parse(rid); err == nil {
		return true
	}
	_, err := id.Timestamp(rid)
	return err == nil
}

// GetRequestID returns the id set by RequestID.
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// Logger logs one line per request with its id.
func Logger(log *logging.Logger) gin.HandlerFunc {
	log = logging.OrNop(log).Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", GetRequestID(c)),
		}
		switch {
		case c.Writer.Status() >= 500:
			log.Error("Request failed", fields...)
		case len(c.Errors) > 0:
			log.Warn("Request errored", append(fields, zap.String("errors", c.Errors.String()))...)
		default:
			log.Debug("Request served", fields...)
		}
	}
}
