package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	ResponseTimeHeader   = "X-Response-Time"
	ResponseTimeMsHeader = "X-Response-Time-Ms"
)

// timingWriter stamps the response-time headers just before the first byte goes out,
// since headers set after the body is written are silently dropped.
type timingWriter struct {
	gin.ResponseWriter
	start   time.Time
	stamped bool
}

func (w *timingWriter) stamp() {
	if w.stamped || w.ResponseWriter.Written() {
		return
	}
	w.stamped = true

	duration := time.Since(w.start)
	w.Header().Set(ResponseTimeHeader, duration.String())
	w.Header().Set(ResponseTimeMsHeader, strconv.FormatInt(duration.Milliseconds(), 10))
}

func (w *timingWriter) WriteHeaderNow() {
	w.stamp()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *timingWriter) Write(data []byte) (int, error) {
	w.stamp()
	return w.ResponseWriter.Write(data)
}

func (w *timingWriter) WriteString(s string) (int, error) {
	w.stamp()
	return w.ResponseWriter.WriteString(s)
}

// PerformanceMiddleware adds X-Response-Time headers measuring time until the response is written
func PerformanceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		w := &timingWriter{ResponseWriter: c.Writer, start: time.Now()}
		c.Writer = w

		c.Next()

		// Handlers that never wrote a body are flushed by gin after this returns
		w.stamp()
	}
}
