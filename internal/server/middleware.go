// Package server exposes the HTTP/JSON API over the kernel: tranche
// operations, dry-run limit views, the redemption queue, and admin mark
// injection, plus the health and metrics endpoints.
package server

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"TrancheVault/internal/apperrors"
	"TrancheVault/internal/observability"
)

// ErrorHandler maps AppErrors pushed onto the gin context to their HTTP
// status; anything else becomes a 500.
func ErrorHandler(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) {
			appErr = apperrors.New(apperrors.ErrInternal, err.Error(), err)
		}

		evt := log.Warn()
		if appErr.HTTPStatus >= 500 {
			evt = log.Error()
		}
		evt.Err(appErr).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Str("code", string(appErr.Type)).
			Msg("request failed")

		c.JSON(appErr.HTTPStatus, appErr)
	}
}

// RequestMetrics records per-route counters and latency.
func RequestMetrics(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
