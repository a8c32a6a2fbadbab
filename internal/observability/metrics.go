package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions     prometheus.Gauge
	SessionEvents      *prometheus.CounterVec
	RateLimitRejects   *prometheus.CounterVec
	PipelineOutcomes   *prometheus.CounterVec
	ReplyOutcomes      *prometheus.CounterVec
	ProviderErrors     *prometheus.CounterVec
	TurnLatency        prometheus.Histogram
	DiscardedExchanges prometheus.Counter

	stages *latencyWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active call sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		RateLimitRejects: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejections_total",
			Help:      "Requests rejected by the rate limiter, by route and window scope.",
		}, []string{"route", "scope"}),
		PipelineOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_outcomes_total",
			Help:      "Audio pipeline runs by terminal stage and outcome.",
		}, []string{"stage", "outcome"}),
		ReplyOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reply_outcomes_total",
			Help:      "Replies by kind (generated, redirect, fallback).",
		}, []string{"kind"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider and code.",
		}, []string{"provider", "code"}),
		TurnLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_ms",
			Help:      "End-to-end process_audio latency in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
		}),
		DiscardedExchanges: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expired_exchanges_discarded_total",
			Help:      "Exchanges dropped because their session expired before end_session.",
		}),
		stages: newLatencyWindow(256),
	}
}

func (m *Metrics) ObserveTurnLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.TurnLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObservePipelineOutcome(stage, outcome string) {
	if m == nil {
		return
	}
	m.PipelineOutcomes.WithLabelValues(stage, outcome).Inc()
}

// ObserveReply counts a reply by kind and mirrors it as a "reply_<kind>"
// indicator on /v1/perf/latency.
func (m *Metrics) ObserveReply(kind string) {
	if m == nil {
		return
	}
	m.ReplyOutcomes.WithLabelValues(kind).Inc()
	m.stages.ObserveIndicator("reply_" + kind)
}

func (m *Metrics) ObserveProviderError(provider, code string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, code).Inc()
}

func (m *Metrics) ObserveSessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveRateLimitReject(route, scope string) {
	if m == nil {
		return
	}
	m.RateLimitRejects.WithLabelValues(route, scope).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

// ObserveTurnStage records a stage latency sample for /v1/perf/latency.
func (m *Metrics) ObserveTurnStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stages.Observe(stage, float64(d.Microseconds())/1000)
}

// SnapshotTurnStages is empty for a nil Metrics.
func (m *Metrics) SnapshotTurnStages() LatencySnapshot {
	if m == nil {
		return LatencySnapshot{GeneratedAt: time.Now().UTC(), Stages: []StageLatency{}}
	}
	return m.stages.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
