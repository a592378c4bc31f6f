// Package metrics provides Prometheus metrics for the transcription runtime.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "livescribe"

// Metrics holds all Prometheus collectors.
type Metrics struct {
	SessionsStarted prometheus.Counter
	SessionsEnded   *prometheus.CounterVec
	SessionsActive  prometheus.Gauge

	AudioChunksSent    prometheus.Counter
	AudioChunksDropped prometheus.Counter
	AudioBytesSent     prometheus.Counter

	TranscriptsInterim prometheus.Counter
	TranscriptsFinal   prometheus.Counter
	KeepAlivesSent     prometheus.Counter
	ConnectionErrors   prometheus.Counter

	KeyFetches  *prometheus.CounterVec
	Corrections *prometheus.CounterVec
}

// Default is registered on the default Prometheus registry.
var Default = New(prometheus.DefaultRegisterer)

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of transcription sessions started",
		}),
		SessionsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Total number of transcription sessions ended",
		}, []string{"outcome"}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions currently holding a connection",
		}),
		AudioChunksSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_sent_total",
			Help:      "Audio chunks forwarded to the recognition backend",
		}),
		AudioChunksDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_dropped_total",
			Help:      "Audio chunks dropped because no connection was open",
		}),
		AudioBytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_sent_total",
			Help:      "Audio bytes forwarded to the recognition backend",
		}),
		TranscriptsInterim: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_interim_total",
			Help:      "Interim transcript events received",
		}),
		TranscriptsFinal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_final_total",
			Help:      "Final transcript events received",
		}),
		KeepAlivesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keepalives_sent_total",
			Help:      "Keep-alive messages sent",
		}),
		ConnectionErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_errors_total",
			Help:      "Connection-level errors reported by the backend",
		}),
		KeyFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_fetches_total",
			Help:      "API key fetch attempts",
		}, []string{"result"}),
		Corrections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrections_total",
			Help:      "Transcript correction requests",
		}, []string{"result"}),
	}
}

func (m *Metrics) RecordSessionStart() {
	m.SessionsStarted.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session ending with outcome "stopped" or "error".
func (m *Metrics) RecordSessionEnd(outcome string) {
	m.SessionsActive.Dec()
	m.SessionsEnded.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordChunkSent(bytes int) {
	m.AudioChunksSent.Inc()
	m.AudioBytesSent.Add(float64(bytes))
}

func (m *Metrics) RecordChunkDropped() {
	m.AudioChunksDropped.Inc()
}

func (m *Metrics) RecordTranscript(final bool) {
	if final {
		m.TranscriptsFinal.Inc()
		return
	}
	m.TranscriptsInterim.Inc()
}

func (m *Metrics) RecordKeepAlive() {
	m.KeepAlivesSent.Inc()
}

func (m *Metrics) RecordConnectionError() {
	m.ConnectionErrors.Inc()
}

// RecordKeyFetch records a key fetch with result "ok", "not_configured" or "error".
func (m *Metrics) RecordKeyFetch(result string) {
	m.KeyFetches.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordCorrection(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Corrections.WithLabelValues(result).Inc()
}
