package orchestrator

import "time"

// Config aggregates every process-wide knob enumerated in spec.md §6 as
// named fields — no open-ended dictionaries cross the core boundary
// (spec.md §9 "Dynamic configuration objects").
type Config struct {
	GlobalAgentCap   int
	PerRoomAgentCap  int
	HistoryCap       int
	TurnQueueCap     int
	SpeechQueueCap   int
	SpeakingTimeLimit time.Duration
	ConfidenceFloor  float64
	LLMMinInterval   time.Duration
	LLMTimeout       time.Duration
	TTSTimeout       time.Duration
	STTTimeout       time.Duration
	MediaTimeout     time.Duration
	MediaReconnectAttempts int
	EgressBufferSize int
	IngressBucket    time.Duration
	VADRMSThreshold  float64
	ConversationLogCap int
}

// DefaultConfig returns every default named in spec.md §6.
func DefaultConfig() Config {
	return Config{
		GlobalAgentCap:         10,
		PerRoomAgentCap:        5,
		HistoryCap:             DefaultHistoryCap,
		TurnQueueCap:           16,
		SpeechQueueCap:         8,
		SpeakingTimeLimit:      30 * time.Second,
		ConfidenceFloor:        0.7,
		LLMMinInterval:         2000 * time.Millisecond,
		LLMTimeout:             30 * time.Second,
		TTSTimeout:             15 * time.Second,
		STTTimeout:             30 * time.Second,
		MediaTimeout:           10 * time.Second,
		MediaReconnectAttempts: 5,
		EgressBufferSize:       4096,
		IngressBucket:          1000 * time.Millisecond,
		VADRMSThreshold:        0.5,
		ConversationLogCap:     1000,
	}
}
