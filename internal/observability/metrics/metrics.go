// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voice_relay"

// UnknownToolLabel replaces the tool label for calls to tools that are not
// registered, so model-chosen names never become label values.
const UnknownToolLabel = "_unknown"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal   prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionsFailed  *prometheus.CounterVec
	SessionDuration prometheus.Histogram

	// Audio relay metrics
	InboundFrames  prometheus.Counter
	InboundBytes   prometheus.Counter
	OutboundFrames prometheus.Counter
	OutboundBytes  prometheus.Counter

	// Conversation metrics
	BargeIns        prometheus.Counter
	ModelErrors     *prometheus.CounterVec
	Transcripts     *prometheus.CounterVec
	MalformedEvents *prometheus.CounterVec

	// Tool metrics
	ToolCalls   *prometheus.CounterVec
	ToolLatency *prometheus.HistogramVec

	// Webhook metrics
	WebhookEvents *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// gRPC metrics
	GRPCRequests *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Session metrics
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of call sessions accepted",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of call sessions currently relaying",
		}),
		SessionsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_failed_total",
			Help:      "Total number of call sessions that failed during setup",
		}, []string{"reason"}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of call sessions in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		}),

		// Audio relay metrics
		InboundFrames: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_frames_total",
			Help:      "Total caller audio frames forwarded to the model",
		}),
		InboundBytes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_payload_bytes_total",
			Help:      "Total encoded caller audio payload bytes forwarded to the model",
		}),
		OutboundFrames: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_frames_total",
			Help:      "Total model audio frames forwarded to the caller",
		}),
		OutboundBytes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_payload_bytes_total",
			Help:      "Total encoded model audio payload bytes forwarded to the caller",
		}),

		// Conversation metrics
		BargeIns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "barge_ins_total",
			Help:      "Total number of caller interruptions handled",
		}),
		ModelErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_errors_total",
			Help:      "Total number of error events reported by the model",
		}, []string{"error_type"}),
		Transcripts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_total",
			Help:      "Total number of completed transcripts",
		}, []string{"role"}),
		MalformedEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_events_total",
			Help:      "Total number of events skipped because they could not be decoded",
		}, []string{"channel"}),

		// Tool metrics
		ToolCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool invocations requested by the model",
		}, []string{"tool", "outcome"}),
		ToolLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_latency_seconds",
			Help:      "Tool handler execution latency in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"tool"}),

		// Webhook metrics
		WebhookEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Total number of call-control webhook events received",
		}, []string{"event_type", "outcome"}),

		// Kafka publish metrics
		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		// gRPC metrics
		GRPCRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "Total number of gRPC requests served",
		}, []string{"method", "code"}),
	}
}

// RecordSessionStart records a new call session starting to relay.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a relaying session ending.
func (m *Metrics) RecordSessionEnd(durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSessionFailed records a session that never reached the relaying state.
func (m *Metrics) RecordSessionFailed(reason string) {
	m.SessionsFailed.WithLabelValues(reason).Inc()
}

// RecordInboundFrame records caller audio forwarded to the model.
func (m *Metrics) RecordInboundFrame(payloadBytes int) {
	m.InboundFrames.Inc()
	m.InboundBytes.Add(float64(payloadBytes))
}

// RecordOutboundFrame records model audio forwarded to the caller.
func (m *Metrics) RecordOutboundFrame(payloadBytes int) {
	m.OutboundFrames.Inc()
	m.OutboundBytes.Add(float64(payloadBytes))
}

// RecordBargeIn records a handled interruption.
func (m *Metrics) RecordBargeIn() {
	m.BargeIns.Inc()
}

// RecordModelError records an error event reported by the model.
func (m *Metrics) RecordModelError(errorType string) {
	if errorType == "" {
		errorType = "unknown"
	}
	m.ModelErrors.WithLabelValues(errorType).Inc()
}

// RecordTranscript records a completed transcript for the given role.
func (m *Metrics) RecordTranscript(role string) {
	m.Transcripts.WithLabelValues(role).Inc()
}

// RecordMalformedEvent records an event skipped on the given channel.
func (m *Metrics) RecordMalformedEvent(channel string) {
	m.MalformedEvents.WithLabelValues(channel).Inc()
}

// RecordToolCall records a tool invocation outcome.
func (m *Metrics) RecordToolCall(tool, outcome string, latencySeconds float64) {
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
	m.ToolLatency.WithLabelValues(tool).Observe(latencySeconds)
}

// RecordUnknownTool records a call to a tool that is not registered.
func (m *Metrics) RecordUnknownTool() {
	m.ToolCalls.WithLabelValues(UnknownToolLabel, "unknown").Inc()
}

// RecordWebhookEvent records a received webhook event.
func (m *Metrics) RecordWebhookEvent(eventType, outcome string) {
	if eventType == "" {
		eventType = "none"
	}
	m.WebhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordGRPCRequest records a served gRPC request.
func (m *Metrics) RecordGRPCRequest(method, code string) {
	m.GRPCRequests.WithLabelValues(method, code).Inc()
}
