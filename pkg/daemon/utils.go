package daemon

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ginLogger logs every request through logrus. Successful requests are
// logged at debug level since remote runs poll channels constantly.
func ginLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// handlers may rewrite the path
		path := c.Request.URL.Path
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := logger.WithFields(logrus.Fields{
			"status":  status,
			"latency": time.Since(start).Round(time.Microsecond).String(),
			"method":  c.Request.Method,
			"path":    path,
			"bytes":   max(c.Writer.Size(), 0),
		})
		if q := c.Request.URL.RawQuery; q != "" {
			entry = entry.WithField("query", q)
		}

		switch {
		case len(c.Errors) > 0 && status >= http.StatusInternalServerError:
			entry.Error(c.Errors.ByType(gin.ErrorTypePrivate).String())
		case status >= http.StatusBadRequest:
			entry.Warn("request failed")
		default:
			entry.Debug("request served")
		}
	}
}
