package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "thc6gw",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "thc6gw",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	toolInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "thc6gw",
			Subsystem: "tool",
			Name:      "inflight",
			Help:      "Child processes currently running.",
		},
		[]string{"endpoint"},
	)
	toolInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "thc6gw",
			Subsystem: "tool",
			Name:      "invocations_total",
			Help:      "Tool invocations by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)
	toolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "thc6gw",
			Subsystem: "tool",
			Name:      "duration_seconds",
			Help:      "Wall time of tool invocations in seconds.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"endpoint", "outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, toolInflight, toolInvocations, toolDuration)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// ToolRecorder feeds driver telemetry into the tool collectors.
type ToolRecorder struct{}

func NewToolRecorder() ToolRecorder {
	RegisterMetrics()
	return ToolRecorder{}
}

func (ToolRecorder) ExecStarted(endpoint string) {
	toolInflight.WithLabelValues(endpoint).Inc()
}

func (ToolRecorder) ExecFinished(endpoint, outcome string, d time.Duration) {
	toolInflight.WithLabelValues(endpoint).Dec()
	toolInvocations.WithLabelValues(endpoint, outcome).Inc()
	toolDuration.WithLabelValues(endpoint, outcome).Observe(d.Seconds())
}
