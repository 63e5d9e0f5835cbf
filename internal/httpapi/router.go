// Package httpapi hosts the MCP endpoint next to health and metrics routes.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/WangQiHao-Charlie/thc6gw/internal/observability"
	"github.com/WangQiHao-Charlie/thc6gw/pkg/driver"
)

// Options configures NewRouter.
type Options struct {
	// Path the MCP handler is mounted at, e.g. /mcp.
	Path    string
	Metrics bool
	Logger  zerolog.Logger

	Service   string
	Version   string
	Endpoints int

	// Stats reports live child-process counters on /healthz when set.
	Stats func() driver.Metrics
}

// NewRouter returns a gin engine serving mcp at opts.Path.
func NewRouter(mcp http.Handler, opts Options) *gin.Engine {
	startedAt := time.Now()
	r := gin.New()

	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		opts.Logger.Error().
			Str("path", c.Request.URL.Path).
			Interface("panic", recovered).
			Msg("http handler panicked")
		c.AbortWithStatus(http.StatusInternalServerError)
	}))
	r.Use(observability.RequestLogger(opts.Logger))
	if opts.Metrics {
		observability.RegisterMetrics()
		r.Use(observability.RequestMetricsMiddleware())
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	r.GET("/healthz", func(c *gin.Context) {
		body := gin.H{
			"status":    "ok",
			"uptime":    time.Since(startedAt).String(),
			"service":   opts.Service,
			"version":   opts.Version,
			"endpoints": opts.Endpoints,
		}
		if opts.Stats != nil {
			m := opts.Stats()
			body["active"] = m.Active
			body["succeeded"] = m.Success
			body["failed"] = m.Failure
		}
		c.JSON(http.StatusOK, body)
	})

	// Streamable HTTP uses POST for requests, GET for the server stream and
	// DELETE to end a session.
	r.Any(opts.Path, gin.WrapH(mcp))
	return r
}
