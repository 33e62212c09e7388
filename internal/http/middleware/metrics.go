package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-hydration/internal/observability"
)

// Metrics instruments HTTP request counts and latency when metrics are enabled.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return m.GinMiddleware()
}
