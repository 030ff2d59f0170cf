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
	ActiveSessions    prometheus.Gauge
	Turns             *prometheus.CounterVec
	WSMessages        *prometheus.CounterVec
	TransportErrors   *prometheus.CounterVec
	DecodeFallbacks   prometheus.Counter
	AttachmentMisses  prometheus.Counter
	SegmentsDelivered *prometheus.CounterVec
	StreamDuration    prometheus.Histogram
	TurnDuration      prometheus.Histogram

	turnStages *TurnStages
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		turnStages: NewTurnStages(256),
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active chat sessions.",
		}),
		Turns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed turns by outcome.",
		}, []string{"outcome"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		TransportErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "Completion transport errors by reason.",
		}, []string{"reason"}),
		DecodeFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelope_decode_fallbacks_total",
			Help:      "Replies that failed structured decoding and fell back to raw text.",
		}),
		AttachmentMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attachment_misses_total",
			Help:      "History attachments that could not be resolved during assembly.",
		}),
		SegmentsDelivered: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_delivered_total",
			Help:      "Reply segments delivered by kind.",
		}, []string{"kind"}),
		StreamDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_ms",
			Help:      "Completion stream duration in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000, 60000},
		}),
		TurnDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_ms",
			Help:      "End to end turn duration in milliseconds, including delivery pacing.",
			Buckets:   []float64{500, 1000, 2000, 4000, 8000, 15000, 30000, 60000, 120000},
		}),
	}
}

func (m *Metrics) ObserveTurnStage(stage string, d time.Duration) {
	m.turnStages.Observe(stage, d)
}

func (m *Metrics) ObserveTurnIndicator(name string) {
	m.turnStages.ObserveIndicator(name)
}

func (m *Metrics) SnapshotTurnStages() TurnStageSnapshot {
	return m.turnStages.Snapshot()
}

func (m *Metrics) ObserveStreamDuration(d time.Duration) {
	m.StreamDuration.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveTurnDuration(d time.Duration) {
	m.TurnDuration.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
