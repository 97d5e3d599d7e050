package middleware

import (
	"time"

	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// AccessLogMiddleware emits one structured line per request on the system
// channel.
func AccessLogMiddleware(logger *logging.ChanneledLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log := logger.System().Info
		if c.Writer.Status() >= 500 {
			log = logger.System().Error
		}
		log("Request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"requestId", GetRequestID(c),
			"tenantId", c.GetHeader("X-Tenant-ID"))
	}
}
