package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RPCOutcome classifies a finished upstream call
type RPCOutcome string

const (
	RPCOutcomeOK      RPCOutcome = "ok"
	RPCOutcomeError   RPCOutcome = "error"
	RPCOutcomeTimeout RPCOutcome = "timeout"
)

// Metrics is a point-in-time snapshot of the gateway counters
type Metrics struct {
	// Request metrics
	TotalRequests      int64 `json:"total_requests"`
	SuccessfulRequests int64 `json:"successful_requests"`
	FailedRequests     int64 `json:"failed_requests"`
	ActiveRequests     int64 `json:"active_requests"`

	// Response time metrics
	AverageResponseTime time.Duration `json:"average_response_time"`
	MinResponseTime     time.Duration `json:"min_response_time"`
	MaxResponseTime     time.Duration `json:"max_response_time"`

	// RPC metrics
	RPCCalls       int64         `json:"rpc_calls"`
	RPCFailures    int64         `json:"rpc_failures"`
	RPCTimeouts    int64         `json:"rpc_timeouts"`
	AverageRPCTime time.Duration `json:"average_rpc_time"`
}

// MetricsCollector provides thread-safe metrics collection. Counters are kept
// in-process for the status endpoint and mirrored into a Prometheus registry.
type MetricsCollector struct {
	totalRequests      atomic.Int64
	successfulRequests atomic.Int64
	failedRequests     atomic.Int64
	activeRequests     atomic.Int64
	rpcCalls           atomic.Int64
	rpcFailures        atomic.Int64
	rpcTimeouts        atomic.Int64

	mu                sync.RWMutex
	completed         int64
	totalResponseTime time.Duration
	minResponseTime   time.Duration
	maxResponseTime   time.Duration
	totalRPCTime      time.Duration
	startTime         time.Time

	registry         *prometheus.Registry
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	httpInFlight     prometheus.Gauge
	rpcCallsTotal    *prometheus.CounterVec
	rpcCallDurations *prometheus.HistogramVec
}

const maxDuration = time.Duration(^uint64(0) >> 1)

// NewMetricsCollector creates a new metrics collector with its own registry
func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{
		minResponseTime: maxDuration,
		startTime:       time.Now(),
		registry:        prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger_gateway",
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route and status code.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ledger_gateway",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ledger_gateway",
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served.",
		}),
		rpcCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger_gateway",
			Name:      "rpc_calls_total",
			Help:      "Upstream ledger RPC calls, by method and outcome.",
		}, []string{"method", "outcome"}),
		rpcCallDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ledger_gateway",
			Name:      "rpc_call_duration_seconds",
			Help:      "Upstream ledger RPC latency, by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	mc.registry.MustRegister(
		mc.httpRequests,
		mc.httpDuration,
		mc.httpInFlight,
		mc.rpcCallsTotal,
		mc.rpcCallDurations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return mc
}

// RecordRequest records a new request
func (mc *MetricsCollector) RecordRequest() {
	mc.totalRequests.Add(1)
	mc.activeRequests.Add(1)
	mc.httpInFlight.Inc()
}

// RecordRequestComplete records request completion. Status codes below 400 count as successful.
func (mc *MetricsCollector) RecordRequestComplete(route string, status int, duration time.Duration) {
	mc.activeRequests.Add(-1)
	mc.httpInFlight.Dec()

	if status < 400 {
		mc.successfulRequests.Add(1)
	} else {
		mc.failedRequests.Add(1)
	}

	if route == "" {
		route = "unmatched"
	}
	mc.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	mc.httpDuration.WithLabelValues(route).Observe(duration.Seconds())

	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.completed++
	mc.totalResponseTime += duration
	if duration < mc.minResponseTime {
		mc.minResponseTime = duration
	}
	if duration > mc.maxResponseTime {
		mc.maxResponseTime = duration
	}
}

// RecordRPCCall records one upstream call
func (mc *MetricsCollector) RecordRPCCall(method string, duration time.Duration, outcome RPCOutcome) {
	mc.rpcCalls.Add(1)
	switch outcome {
	case RPCOutcomeTimeout:
		mc.rpcTimeouts.Add(1)
		mc.rpcFailures.Add(1)
	case RPCOutcomeError:
		mc.rpcFailures.Add(1)
	}

	mc.rpcCallsTotal.WithLabelValues(method, string(outcome)).Inc()
	mc.rpcCallDurations.WithLabelValues(method).Observe(duration.Seconds())

	mc.mu.Lock()
	mc.totalRPCTime += duration
	mc.mu.Unlock()
}

// GetMetrics returns a copy of current metrics
func (mc *MetricsCollector) GetMetrics() *Metrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	m := &Metrics{
		TotalRequests:      mc.totalRequests.Load(),
		SuccessfulRequests: mc.successfulRequests.Load(),
		FailedRequests:     mc.failedRequests.Load(),
		ActiveRequests:     mc.activeRequests.Load(),
		MaxResponseTime:    mc.maxResponseTime,
		RPCCalls:           mc.rpcCalls.Load(),
		RPCFailures:        mc.rpcFailures.Load(),
		RPCTimeouts:        mc.rpcTimeouts.Load(),
	}

	if mc.completed > 0 {
		m.AverageResponseTime = mc.totalResponseTime / time.Duration(mc.completed)
		m.MinResponseTime = mc.minResponseTime
	}
	if m.RPCCalls > 0 {
		m.AverageRPCTime = mc.totalRPCTime / time.Duration(m.RPCCalls)
	}

	return m
}

// GetUptime returns the uptime since metrics collection started
func (mc *MetricsCollector) GetUptime() time.Duration {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return time.Since(mc.startTime)
}

// GetSuccessRate returns the success rate of completed requests as a percentage
func (mc *MetricsCollector) GetSuccessRate() float64 {
	successful := mc.successfulRequests.Load()
	total := successful + mc.failedRequests.Load()

	if total == 0 {
		return 0.0
	}

	return float64(successful) / float64(total) * 100.0
}

// Handler serves the registry in the Prometheus text format
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{Registry: mc.registry})
}
