// Package observability exposes Prometheus metrics for the chat pipeline.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agentdesk"

type moduleMetrics struct {
	chatTotal     *prometheus.CounterVec
	chatDuration  *prometheus.HistogramVec
	chatSteps     prometheus.Histogram
	activeStreams prometheus.Gauge

	providerErrorsTotal *prometheus.CounterVec

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
	toolRejectedTotal     *prometheus.CounterVec

	historyWritesTotal  *prometheus.CounterVec
	historyDroppedTotal prometheus.Counter
	historyQueueSize    prometheus.Gauge
	historyPrunedTotal  prometheus.Counter

	rateLimitedTotal prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			chatTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "chat_total",
					Help:      "Chat turns by agent and terminal state.",
				},
				[]string{"agent", "state"},
			),
			chatDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "chat_duration_seconds",
					Help:      "Chat turn duration in seconds by agent.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"agent"},
			),
			chatSteps: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "chat_steps",
					Help:      "Model calls per chat turn.",
					Buckets:   []float64{1, 2, 3, 4, 5, 8, 13},
				},
			),
			activeStreams: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "active_streams",
					Help:      "Chat streams currently in flight.",
				},
			),
			providerErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "provider_errors_total",
					Help:      "Model provider failures by family.",
				},
				[]string{"family"},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "tool_execution_total",
					Help:      "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "tool_execution_duration_seconds",
					Help:      "Tool execution duration in seconds by tool.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			toolRejectedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "tool_rejected_total",
					Help:      "Tool requests rejected before execution by reason.",
				},
				[]string{"tool", "reason"},
			),
			historyWritesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "history_writes_total",
					Help:      "History turn writes by status.",
				},
				[]string{"status"},
			),
			historyDroppedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "history_dropped_total",
					Help:      "History batches dropped because the queue was full.",
				},
			),
			historyQueueSize: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "history_queue_size",
					Help:      "Pending history batches.",
				},
			),
			historyPrunedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "history_pruned_total",
					Help:      "Turns removed by the retention worker.",
				},
			),
			rateLimitedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "rate_limited_total",
					Help:      "Chat requests rejected by the rate limiter.",
				},
			),
		}

		prometheus.MustRegister(
			m.chatTotal,
			m.chatDuration,
			m.chatSteps,
			m.activeStreams,
			m.providerErrorsTotal,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.toolRejectedTotal,
			m.historyWritesTotal,
			m.historyDroppedTotal,
			m.historyQueueSize,
			m.historyPrunedTotal,
			m.rateLimitedTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler serves the default Prometheus registry.
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func StreamStarted() {
	getMetrics().activeStreams.Inc()
}

// RecordChat closes out one chat turn.
func RecordChat(agent, state string, steps int, duration time.Duration) {
	m := getMetrics()
	m.activeStreams.Dec()
	m.chatTotal.WithLabelValues(agent, state).Inc()
	m.chatDuration.WithLabelValues(agent).Observe(duration.Seconds())
	m.chatSteps.Observe(float64(steps))
}

func RecordProviderError(family string) {
	getMetrics().providerErrorsTotal.WithLabelValues(family).Inc()
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.toolExecutionTotal.WithLabelValues(tool, status).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func RecordToolRejected(tool, reason string) {
	getMetrics().toolRejectedTotal.WithLabelValues(tool, reason).Inc()
}

func RecordHistoryWrite(success bool) {
	status := "error"
	if success {
		status = "success"
	}
	getMetrics().historyWritesTotal.WithLabelValues(status).Inc()
}

func RecordHistoryDropped() {
	getMetrics().historyDroppedTotal.Inc()
}

func SetHistoryQueueSize(n int) {
	getMetrics().historyQueueSize.Set(float64(n))
}

func RecordHistoryPruned(n int64) {
	getMetrics().historyPrunedTotal.Add(float64(n))
}

func RecordRateLimited() {
	getMetrics().rateLimitedTotal.Inc()
}
