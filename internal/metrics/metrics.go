package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const namespace = "pkgbind"

// Registry collects every pkgbind metric; it is served on /metrics.
var Registry = prometheus.NewRegistry()

var (
	BuiltinCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "builtin_calls_total",
		Help:      "Builtin invocations.",
	}, []string{"builtin"})

	BuiltinFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "builtin_rejected_total",
		Help:      "Builtin invocations rejected by argument checks.",
	}, []string{"builtin"})

	BuiltinDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "builtin_duration_seconds",
		Help:      "Builtin execution time.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"builtin"})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method and status code.",
	}, []string{"method", "code"})

	HTTPActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "http_requests_active",
		Help:      "HTTP requests in flight.",
	})

	RepoRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "repo_refresh_total",
		Help:      "Repository metadata refreshes by result.",
	}, []string{"result"})
)

func init() {
	Registry.MustRegister(
		BuiltinCalls, BuiltinFailures, BuiltinDuration,
		HTTPRequests, HTTPActive, RepoRefreshes,
		collectors.NewGoCollector(),
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
}

// Totals is a cheap summary reported by the health endpoint.
type Totals struct {
	Requests       int64
	Errors         int64
	ActiveRequests int64
	ResponseTimeMs int64
}

var totals Totals

func IncrementRequests() {
	atomic.AddInt64(&totals.Requests, 1)
}

func IncrementErrors() {
	atomic.AddInt64(&totals.Errors, 1)
}

func IncrementActiveRequests() {
	atomic.AddInt64(&totals.ActiveRequests, 1)
	HTTPActive.Inc()
}

func DecrementActiveRequests() {
	atomic.AddInt64(&totals.ActiveRequests, -1)
	HTTPActive.Dec()
}

func RecordResponseTime(duration time.Duration) {
	atomic.StoreInt64(&totals.ResponseTimeMs, duration.Milliseconds())
}

func GetTotals() Totals {
	return Totals{
		Requests:       atomic.LoadInt64(&totals.Requests),
		Errors:         atomic.LoadInt64(&totals.Errors),
		ActiveRequests: atomic.LoadInt64(&totals.ActiveRequests),
		ResponseTimeMs: atomic.LoadInt64(&totals.ResponseTimeMs),
	}
}
