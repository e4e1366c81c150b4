package middleware

import (
	"net/http"
	"time"

	"solana-ledger-gateway/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// MetricsMiddleware creates a middleware that tracks request metrics per matched route
func MetricsMiddleware(metricsCollector *metrics.MetricsCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		metricsCollector.RecordRequest()

		// Deferred so a panicking handler is still counted; recovery runs further out and writes the 500 later
		defer func() {
			status := c.Writer.Status()
			recovered := recover()
			if recovered != nil {
				status = http.StatusInternalServerError
			}

			// FullPath is empty for unmatched requests, which keeps label cardinality bounded
			metricsCollector.RecordRequestComplete(c.FullPath(), status, time.Since(startTime))

			if recovered != nil {
				panic(recovered)
			}
		}()

		c.Next()
	}
}
