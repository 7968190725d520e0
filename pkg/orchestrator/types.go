package orchestrator

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the closed set of states an Agent can be in (spec.md §3).
type Status string

const (
	StatusIdle       Status = "idle"
	StatusListening  Status = "listening"
	StatusThinking   Status = "thinking"
	StatusSpeaking   Status = "speaking"
	StatusProcessing Status = "processing"
)

// MessageKind is the closed set of message kinds kept in history/logs.
type MessageKind string

const (
	KindInboundText   MessageKind = "inbound-text"
	KindOutboundText  MessageKind = "outbound-text"
	KindInboundVoice  MessageKind = "inbound-voice"
	KindOutboundVoice MessageKind = "outbound-voice"
	KindSystem        MessageKind = "system"
)

// Voice selects a TTS voice profile.
type Voice string

const (
	VoiceF1 Voice = "F1"
	VoiceF2 Voice = "F2"
	VoiceF3 Voice = "F3"
	VoiceF4 Voice = "F4"
	VoiceF5 Voice = "F5"
	VoiceM1 Voice = "M1"
	VoiceM2 Voice = "M2"
	VoiceM3 Voice = "M3"
	VoiceM4 Voice = "M4"
	VoiceM5 Voice = "M5"
)

// Language selects the STT/TTS language.
type Language string

const (
	LanguageEn Language = "en"
	LanguageEs Language = "es"
	LanguageFr Language = "fr"
	LanguageDe Language = "de"
	LanguageIt Language = "it"
	LanguagePt Language = "pt"
	LanguageJa Language = "ja"
	LanguageZh Language = "zh"
)

// BroadcastDest marks a message as destined for every agent in a room.
const BroadcastDest = "*"

// Message is one entry in an agent's rolling history or a room's log
// (spec.md §3 "Message").
type Message struct {
	ID       string      `json:"id"`
	Kind     MessageKind `json:"kind"`
	Content  string      `json:"content"`
	OriginID string      `json:"origin_id"`
	DestID   string      `json:"dest_id,omitempty"`
	At       time.Time   `json:"at"`

	Confidence       float64 `json:"confidence,omitempty"`
	ResponseLatencyMs int64  `json:"response_latency_ms,omitempty"`
	ProviderModelTag string  `json:"provider_model,omitempty"`
}

// NewMessage builds a Message with a generated id and the current time.
func NewMessage(kind MessageKind, content, originID, destID string) Message {
	return Message{
		ID:       uuid.NewString(),
		Kind:     kind,
		Content:  content,
		OriginID: originID,
		DestID:   destID,
		At:       time.Now(),
	}
}

// AgentConfig is the per-agent named option struct (spec.md §6): no
// open-ended dictionaries cross the core boundary.
type AgentConfig struct {
	LLMProvider         string
	LLMModel            string
	LLMTemperature      float64
	MaxReplyLength      int
	TTSProvider         string
	TTSVoice            Voice
	TTSRate             float64
	TTSPitch            float64
	STTProvider         string
	Language            Language
	MinWordsToInterrupt int
}

// DefaultAgentConfig returns the spec's default per-agent configuration.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		LLMTemperature:      0.7,
		MaxReplyLength:      1024,
		TTSVoice:            VoiceF1,
		TTSRate:             1.0,
		TTSPitch:            1.0,
		Language:            LanguageEn,
		MinWordsToInterrupt: 1,
	}
}

// AgentMetrics accumulates the per-agent counters named in spec.md §3.
type AgentMetrics struct {
	MessageCount   int64
	LLMInvocations int64
	TTSInvocations int64
	VoiceTurnCount int64
}

// Agent is a persona-bound logical participant with a rolling message
// history and a per-agent voice state (spec.md §3 "Agent").
//
// Created by the Agent Manager; mutated by the agent's own processing
// paths, the arbiter's status transitions and the Agent Manager's
// attach/detach; destroyed by the Agent
// Manager. All field access outside this file goes through the exported
// methods so mutation stays serialized per invariant in spec.md §5.
type Agent struct {
	ID      string
	Persona string

	mu           sync.Mutex
	config       AgentConfig
	roomID       string
	status       Status
	lastActivity time.Time
	history      []Message
	historyCap   int
	metrics      AgentMetrics

	llm LLMProvider
	tts TTSProvider
	stt STTProvider

	rateGate    *rateGate
	speechCap   chan struct{} // bounded per-agent speech queue (spec.md §5)
	promMetrics *Metrics
	logger      Logger
}

// DefaultHistoryCap is the default bound on an agent's rolling history
// (spec.md §3, "last N entries; default N=100").
const DefaultHistoryCap = 100

// NewAgent constructs an Agent. Called only by the Agent Manager.
func NewAgent(id, persona string, cfg AgentConfig, llm LLMProvider, tts TTSProvider, stt STTProvider, historyCap, minLLMIntervalMs, speechQueueCap int, metrics *Metrics, logger Logger) *Agent {
	if historyCap <= 0 {
		historyCap = DefaultHistoryCap
	}
	if speechQueueCap <= 0 {
		speechQueueCap = 8
	}
	if metrics == nil {
		metrics = NewNoOpMetrics()
	}
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &Agent{
		ID:           id,
		Persona:      persona,
		config:       cfg,
		status:       StatusIdle,
		lastActivity: time.Now(),
		historyCap:   historyCap,
		llm:          llm,
		tts:          tts,
		stt:          stt,
		rateGate:     newRateGate(time.Duration(minLLMIntervalMs) * time.Millisecond),
		speechCap:    make(chan struct{}, speechQueueCap),
		promMetrics:  metrics,
		logger:       logger,
	}
}

// STT returns the agent's configured speech-to-text provider, or nil.
func (a *Agent) STT() STTProvider {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stt
}

// Status returns the agent's current status.
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// RoomID returns the room the agent is currently attached to, or "".
func (a *Agent) RoomID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.roomID
}

// Config returns a copy of the agent's current configuration.
func (a *Agent) Config() AgentConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.config
}

// Metrics returns a copy of the agent's accumulated metrics.
func (a *Agent) Metrics() AgentMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.metrics
}

// History returns a copy of the agent's rolling message history.
func (a *Agent) History() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Message, len(a.history))
	copy(out, a.history)
	return out
}

// setStatus is called by the agent's own processing paths, by the Agent
// Manager on attach/detach, and through the arbiter's backend.
func (a *Agent) setStatus(s Status) {
	a.mu.Lock()
	a.status = s
	a.lastActivity = time.Now()
	a.mu.Unlock()
}

func (a *Agent) setRoomID(roomID string) {
	a.mu.Lock()
	a.roomID = roomID
	a.mu.Unlock()
}

// appendHistory FIFO-trims at the configured cap (spec.md §3 invariant 6).
func (a *Agent) appendHistory(msg Message) {
	a.mu.Lock()
	a.history = append(a.history, msg)
	if len(a.history) > a.historyCap {
		a.history = a.history[len(a.history)-a.historyCap:]
	}
	a.metrics.MessageCount++
	a.mu.Unlock()
}

// textHistoryForPrompt returns up to the last `n` text messages (the agent's
// own kinds used as chat turns), oldest first (spec.md §4.5).
func (a *Agent) textHistoryForPrompt(n int) []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	var text []Message
	for _, m := range a.history {
		if m.Kind == KindInboundText || m.Kind == KindOutboundText {
			text = append(text, m)
		}
	}
	if len(text) > n {
		text = text[len(text)-n:]
	}
	return text
}

// Room is the per-room state the Room Arbiter owns (spec.md §3 "Room").
type Room struct {
	ID string

	mu          sync.Mutex
	agents      map[string]struct{}
	cap         int
	speaker     string // agent id, "" when idle
	speakingAt  time.Time
	queue       []turnRequest
	queueCap    int
	log         []LogEntry
	logCap      int
}

// LogEntry is one transcript or utterance entry in a room's conversation
// log (spec.md §4.6 "Transcript log").
type LogEntry struct {
	At         time.Time
	Kind       string // "transcript" | "utterance"
	OriginID   string
	Text       string
	Confidence float64
}

type turnRequest struct {
	agentID string
	text    string
}

// NewRoom constructs a Room. Called only by the Agent Manager on first
// attachment (spec.md §3, "Created lazily on first attachment").
func NewRoom(id string, agentCap, queueCap, logCap int) *Room {
	return &Room{
		ID:       id,
		agents:   make(map[string]struct{}),
		cap:      agentCap,
		queueCap: queueCap,
		logCap:   logCap,
	}
}

// Agents returns the set of agent ids currently attached to the room.
func (r *Room) Agents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.agents))
	for id := range r.agents {
		out = append(out, id)
	}
	return out
}

func (r *Room) agentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.agents)
}

func (r *Room) hasAgent(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.agents[id]
	return ok
}

func (r *Room) addAgent(id string) {
	r.mu.Lock()
	r.agents[id] = struct{}{}
	r.mu.Unlock()
}

func (r *Room) removeAgent(id string) {
	r.mu.Lock()
	delete(r.agents, id)
	r.mu.Unlock()
}

// CurrentSpeaker returns the id of the agent currently speaking, or "".
func (r *Room) CurrentSpeaker() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.speaker
}

// QueueLen returns the current turn-queue depth.
func (r *Room) QueueLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Log returns a copy of the room's conversation log.
func (r *Room) Log() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LogEntry, len(r.log))
	copy(out, r.log)
	return out
}

// appendLog bounds the log at logCap, oldest dropped (spec.md §4.6).
func (r *Room) appendLog(e LogEntry) {
	r.mu.Lock()
	r.log = append(r.log, e)
	if len(r.log) > r.logCap {
		r.log = r.log[len(r.log)-r.logCap:]
	}
	r.mu.Unlock()
}
