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
			Namespace: "magicctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "magicctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	hookInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "magicctl",
			Subsystem: "hooks",
			Name:      "invocations_total",
			Help:      "Hook invocations by outcome.",
		},
		[]string{"hook", "outcome"},
	)
	hookDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "magicctl",
			Subsystem: "hooks",
			Name:      "duration_seconds",
			Help:      "Hook duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"hook"},
	)
	scriptRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "magicctl",
			Subsystem: "maintenance",
			Name:      "runs_total",
			Help:      "Maintenance script runs by outcome.",
		},
		[]string{"script", "outcome"},
	)
	storageCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "magicctl",
			Subsystem: "swift",
			Name:      "operations_total",
			Help:      "Object storage operations by outcome.",
		},
		[]string{"op", "outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			hookInvocations,
			hookDuration,
			scriptRuns,
			storageCommands,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordHook(hook string, duration time.Duration, err error) {
	RegisterMetrics()
	hookInvocations.WithLabelValues(hook, outcome(err)).Inc()
	hookDuration.WithLabelValues(hook).Observe(duration.Seconds())
}

func RecordScript(script string, err error) {
	RegisterMetrics()
	scriptRuns.WithLabelValues(script, outcome(err)).Inc()
}

func RecordStorage(op string, err error) {
	RegisterMetrics()
	storageCommands.WithLabelValues(op, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
