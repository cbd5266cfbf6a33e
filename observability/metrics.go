package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	chainMetricsOnce sync.Once
	chainRegistry    *ChainMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "namechain",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "namechain",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total JSON-RPC module errors segmented by module, method, and error code.",
			}, []string{"module", "method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "namechain",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "namechain",
				Subsystem: "module",
				Name:      "throttles_total",
				Help:      "Count of module requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. code is the JSON-RPC
// error code, zero on success.
func (m *moduleMetrics) Observe(module, method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", code)).Inc()
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit".
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// ChainMetrics tracks block production and registry writes.
type ChainMetrics struct {
	blocks       prometheus.Counter
	height       prometheus.Gauge
	blockRefTime prometheus.Histogram
	calls        *prometheus.CounterVec
	mempool      prometheus.Gauge
}

// Chain returns the singleton chain metrics registry.
func Chain() *ChainMetrics {
	chainMetricsOnce.Do(func() {
		chainRegistry = &ChainMetrics{
			blocks: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "namechain",
				Subsystem: "chain",
				Name:      "blocks_total",
				Help:      "Number of blocks committed by this node.",
			}),
			height: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "namechain",
				Subsystem: "chain",
				Name:      "height",
				Help:      "Height of the best block.",
			}),
			blockRefTime: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "namechain",
				Subsystem: "chain",
				Name:      "block_ref_time",
				Help:      "Declared ref-time weight consumed per block.",
				Buckets:   prometheus.ExponentialBuckets(1e7, 4, 10),
			}),
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "namechain",
				Subsystem: "registry",
				Name:      "calls_total",
				Help:      "Dispatched registry calls segmented by call and status.",
			}, []string{"call", "status"}),
			mempool: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "namechain",
				Subsystem: "chain",
				Name:      "mempool_size",
				Help:      "Transactions waiting for inclusion.",
			}),
		}
		prometheus.MustRegister(
			chainRegistry.blocks,
			chainRegistry.height,
			chainRegistry.blockRefTime,
			chainRegistry.calls,
			chainRegistry.mempool,
		)
	})
	return chainRegistry
}

// RecordBlock records a committed block.
func (m *ChainMetrics) RecordBlock(height, refTime uint64) {
	if m == nil {
		return
	}
	m.blocks.Inc()
	m.height.Set(float64(height))
	m.blockRefTime.Observe(float64(refTime))
}

// RecordCall records the outcome of one dispatched call.
func (m *ChainMetrics) RecordCall(call, status string) {
	if m == nil {
		return
	}
	if call == "" {
		call = "unknown"
	}
	m.calls.WithLabelValues(call, status).Inc()
}

// SetMempoolSize reports the number of pending transactions.
func (m *ChainMetrics) SetMempoolSize(n int) {
	if m == nil {
		return
	}
	m.mempool.Set(float64(n))
}
