package orchestrator

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the process-wide Prometheus registry for the counters spec.md
// §4.3/§4.7 ask to be observable. It is a read-only collaborator: nothing
// in the arbiter or manager branches on a metric value.
type Metrics struct {
	AgentsActive    prometheus.Gauge
	RoomsActive     prometheus.Gauge
	SpeakersActive  prometheus.Gauge
	LLMInvocations  *prometheus.CounterVec // labeled by model tag
	TTSInvocations  prometheus.Counter
	STTInvocations  prometheus.Counter
	TokensGenerated *prometheus.CounterVec // labeled by model tag
	TurnQueueDepth  prometheus.Gauge
	ForcedStops     prometheus.Counter
	EventsDropped   prometheus.Counter
}

// NewMetrics registers a fresh set of collectors on reg (use
// prometheus.NewRegistry() in tests to avoid collisions with the default
// global registry).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AgentsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roomcast_agents_active", Help: "Number of agents currently registered.",
		}),
		RoomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roomcast_rooms_active", Help: "Number of rooms with at least one attached agent.",
		}),
		SpeakersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roomcast_speakers_active", Help: "Number of rooms with a current speaker.",
		}),
		LLMInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomcast_llm_invocations_total", Help: "LLM adapter calls, by model tag.",
		}, []string{"model"}),
		TTSInvocations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomcast_tts_invocations_total", Help: "TTS adapter calls.",
		}),
		STTInvocations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomcast_stt_invocations_total", Help: "STT adapter calls.",
		}),
		TokensGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomcast_llm_tokens_total", Help: "LLM tokens accounted, by model tag.",
		}, []string{"model"}),
		TurnQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roomcast_turn_queue_depth", Help: "Turn-queue depth last set by any one room's arbiter (not summed across rooms).",
		}),
		ForcedStops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomcast_forced_stops_total", Help: "Speaker turns ended by the speaking-time-limit timer.",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomcast_events_dropped_total", Help: "Observer events dropped because a subscriber channel was full.",
		}),
	}
	reg.MustRegister(m.AgentsActive, m.RoomsActive, m.SpeakersActive, m.LLMInvocations,
		m.TTSInvocations, m.STTInvocations, m.TokensGenerated, m.TurnQueueDepth, m.ForcedStops, m.EventsDropped)
	return m
}

// NewNoOpMetrics returns a Metrics backed by a private registry, for tests
// and embeddings that don't care about Prometheus exposition.
func NewNoOpMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
