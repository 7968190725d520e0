package orchestrator

import (
	"context"
	"sync"
)

// MediaClientFactory builds the per-binding MediaRoomClient used to join an
// agent into a room's media session (spec.md §4.4). Injected by the process
// entrypoint so the core never imports a concrete transport SDK.
type MediaClientFactory func(ctx context.Context, agentID, roomID string) (MediaRoomClient, error)

// EgressChunker splits synthesized audio into the frames handed to a
// MediaRoomClient producer channel. Injected so the core never imports a
// concrete codec package; pkg/audio's egress pipeline is the production
// implementation.
type EgressChunker func(audio AudioBytes, frameBytes int) [][]byte

// IngressChain is one consumed peer's decode/bucket/accumulate pipeline: it
// takes raw payloads as read off a MediaRoomClient consumer sink and, via
// the callback it was built with, emits finalized voiced PCM segments ready
// for an STTProvider (spec.md §4.3's ingress data-flow).
type IngressChain interface {
	Write(payload []byte)
}

// IngressChainFactory builds a fresh IngressChain for one consumed peer.
// vad should be a dedicated instance per peer (see VADProvider.Clone).
// Injected so the core never imports a concrete codec/VAD-bucketing
// package; pkg/audio's RoomIngressChain is the production implementation.
type IngressChainFactory func(vad VADProvider, onSegment func([]byte)) (IngressChain, error)

// ManagerStats is the snapshot spec.md §4.7's stats() operation returns.
type ManagerStats struct {
	AgentCount int
	RoomCount  int
}

// binding holds the per-agent resources live only while attached to a room:
// its media client and the cancellation/producer bookkeeping for whatever
// turn it is currently speaking.
type binding struct {
	agent *Agent
	media MediaRoomClient

	mu         sync.Mutex
	cancel     context.CancelFunc
	producerID string

	ingressCancel context.CancelFunc
}

// AgentManager is the top-level registry of spec.md §4.7: it owns every
// Agent and Room, enforces the global and per-room caps, and wires each
// room's RoomArbiter to the agents attached to it. All exported methods are
// safe for concurrent use.
type AgentManager struct {
	mu       sync.Mutex
	agents   map[string]*Agent
	rooms    map[string]*Room
	arbiters map[string]*RoomArbiter
	bindings map[string]*binding // keyed by agent id

	cfg      Config
	emitter  *Emitter
	metrics  *Metrics
	logger   Logger

	llmProviders map[string]LLMProvider
	ttsProviders map[string]TTSProvider
	sttProviders map[string]STTProvider

	mediaFactory   MediaClientFactory
	chunker        EgressChunker
	ingressFactory IngressChainFactory
}

// NewAgentManager constructs an empty manager. The provider maps are keyed
// by the name an AgentConfig requests (AgentConfig.LLMProvider /
// .TTSProvider / .STTProvider). ingressFactory may be nil, in which case
// AttachAgentToRoom never starts a room-audio consumer loop even for agents
// configured with an STT provider — useful for text-only deployments and
// for tests that drive transcripts directly through SubmitTranscript.
func NewAgentManager(
	cfg Config,
	emitter *Emitter,
	metrics *Metrics,
	logger Logger,
	llmProviders map[string]LLMProvider,
	ttsProviders map[string]TTSProvider,
	sttProviders map[string]STTProvider,
	mediaFactory MediaClientFactory,
	chunker EgressChunker,
	ingressFactory IngressChainFactory,
) *AgentManager {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if metrics == nil {
		metrics = NewNoOpMetrics()
	}
	if emitter == nil {
		emitter = NewEmitter(metrics)
	}
	return &AgentManager{
		agents:         make(map[string]*Agent),
		rooms:          make(map[string]*Room),
		arbiters:       make(map[string]*RoomArbiter),
		bindings:       make(map[string]*binding),
		cfg:            cfg,
		emitter:        emitter,
		metrics:        metrics,
		logger:         logger,
		llmProviders:   llmProviders,
		ttsProviders:   ttsProviders,
		sttProviders:   sttProviders,
		mediaFactory:   mediaFactory,
		chunker:        chunker,
		ingressFactory: ingressFactory,
	}
}

// CreateAgent implements spec.md §4.7 "create-agent(persona, id?, config)".
func (m *AgentManager) CreateAgent(id, persona string, cfg AgentConfig) (*Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.agents) >= m.cfg.GlobalAgentCap {
		return nil, NewError(KindCapacityExceeded, "manager.create-agent", nil)
	}
	if id == "" {
		id = newAgentID()
	} else if _, exists := m.agents[id]; exists {
		return nil, NewError(KindAlreadyExists, "manager.create-agent", nil)
	}
	if persona == "" {
		return nil, NewError(KindInvalidArgument, "manager.create-agent", nil)
	}

	var llm LLMProvider
	if cfg.LLMProvider != "" {
		llm = m.llmProviders[cfg.LLMProvider]
		if llm == nil {
			return nil, NewError(KindProviderUnavailable, "manager.create-agent", nil)
		}
	}
	var tts TTSProvider
	if cfg.TTSProvider != "" {
		tts = m.ttsProviders[cfg.TTSProvider]
		if tts == nil {
			return nil, NewError(KindProviderUnavailable, "manager.create-agent", nil)
		}
	}
	var stt STTProvider
	if cfg.STTProvider != "" {
		stt = m.sttProviders[cfg.STTProvider]
		if stt == nil {
			return nil, NewError(KindProviderUnavailable, "manager.create-agent", nil)
		}
	}

	agent := NewAgent(id, persona, cfg, llm, tts, stt, m.cfg.HistoryCap, int(m.cfg.LLMMinInterval.Milliseconds()), m.cfg.SpeechQueueCap, m.metrics, m.logger)
	m.agents[id] = agent
	m.metrics.AgentsActive.Set(float64(len(m.agents)))
	m.emitter.Emit(Event{Type: EventAgentCreated, AgentID: id, Data: persona})
	return agent, nil
}

// DeleteAgent implements spec.md §4.7 "delete-agent(id)": detaches first if
// attached, then removes the agent from the registry.
func (m *AgentManager) DeleteAgent(id string) error {
	m.mu.Lock()
	agent, ok := m.agents[id]
	m.mu.Unlock()
	if !ok {
		return NewError(KindNotFound, "manager.delete-agent", nil)
	}

	if agent.RoomID() != "" {
		if err := m.DetachAgentFromRoom(id); err != nil {
			return err
		}
	}

	m.mu.Lock()
	delete(m.agents, id)
	m.metrics.AgentsActive.Set(float64(len(m.agents)))
	m.mu.Unlock()

	m.emitter.Emit(Event{Type: EventAgentDeleted, AgentID: id})
	return nil
}

// AttachAgentToRoom implements spec.md §4.7 "attach-agent-to-room(id, room)".
// Rooms are created lazily on first attachment (spec.md §3).
func (m *AgentManager) AttachAgentToRoom(ctx context.Context, agentID, roomID string) error {
	m.mu.Lock()
	agent, ok := m.agents[agentID]
	if !ok {
		m.mu.Unlock()
		return NewError(KindNotFound, "manager.attach-agent-to-room", nil)
	}
	if agent.RoomID() != "" {
		m.mu.Unlock()
		return NewError(KindAlreadyExists, "manager.attach-agent-to-room", nil)
	}
	room, ok := m.rooms[roomID]
	if !ok {
		room = NewRoom(roomID, m.cfg.PerRoomAgentCap, m.cfg.TurnQueueCap, m.cfg.ConversationLogCap)
		m.rooms[roomID] = room
	}
	if room.agentCount() >= room.cap {
		m.mu.Unlock()
		return NewError(KindCapacityExceeded, "manager.attach-agent-to-room", nil)
	}
	if _, ok := m.arbiters[roomID]; !ok {
		backend := &managerBackend{mgr: m, roomID: roomID}
		m.arbiters[roomID] = NewRoomArbiter(room, backend, m.emitter, m.metrics, m.cfg, m.logger)
	}
	m.mu.Unlock()

	var media MediaRoomClient
	var err error
	if m.mediaFactory != nil {
		media, err = m.mediaFactory(ctx, agentID, roomID)
		if err != nil {
			return NewError(KindTransportUnavailable, "manager.attach-agent-to-room", err)
		}
	}

	room.addAgent(agentID)
	agent.setRoomID(roomID)
	agent.setStatus(StatusListening)

	bd := &binding{agent: agent, media: media}

	stt := agent.STT()
	if media != nil && stt != nil && m.ingressFactory != nil {
		ingressCtx, cancel := context.WithCancel(context.Background())
		bd.ingressCancel = cancel
		go m.runIngress(ingressCtx, agent, roomID, media, stt)
	}

	m.mu.Lock()
	m.bindings[agentID] = bd
	m.metrics.RoomsActive.Set(float64(len(m.rooms)))
	m.mu.Unlock()

	m.emitter.Emit(Event{Type: EventRoomJoined, AgentID: agentID, RoomID: roomID})
	return nil
}

// DetachAgentFromRoom implements spec.md §4.7 "detach-agent-from-room(id)".
func (m *AgentManager) DetachAgentFromRoom(agentID string) error {
	m.mu.Lock()
	agent, ok := m.agents[agentID]
	if !ok {
		m.mu.Unlock()
		return NewError(KindNotFound, "manager.detach-agent-from-room", nil)
	}
	roomID := agent.RoomID()
	if roomID == "" {
		m.mu.Unlock()
		return NewError(KindNotFound, "manager.detach-agent-from-room", nil)
	}
	room := m.rooms[roomID]
	arbiter := m.arbiters[roomID]
	b := m.bindings[agentID]
	delete(m.bindings, agentID)
	m.mu.Unlock()

	if arbiter != nil {
		arbiter.NotifyDetach(agentID)
	}
	if room != nil {
		room.removeAgent(agentID)
	}
	agent.setRoomID("")
	agent.setStatus(StatusIdle)

	if b != nil && b.ingressCancel != nil {
		b.ingressCancel()
	}
	if b != nil && b.media != nil {
		_ = b.media.Leave(context.Background())
	}

	m.mu.Lock()
	if room != nil && room.agentCount() == 0 {
		if arbiter != nil {
			arbiter.Stop()
		}
		delete(m.arbiters, roomID)
		delete(m.rooms, roomID)
	}
	m.metrics.RoomsActive.Set(float64(len(m.rooms)))
	m.mu.Unlock()

	m.emitter.Emit(Event{Type: EventRoomLeft, AgentID: agentID, RoomID: roomID})
	return nil
}

// RequestSpeak implements spec.md §4.7 "request-speak(id, text)" by
// forwarding to the agent's room arbiter.
func (m *AgentManager) RequestSpeak(agentID, text string) error {
	_, arbiter, err := m.agentArbiter(agentID)
	if err != nil {
		return err
	}
	return arbiter.RequestSpeak(agentID, text)
}

// CancelSpeak implements spec.md §4.7 "cancel-speak(id)".
func (m *AgentManager) CancelSpeak(agentID string) error {
	_, arbiter, err := m.agentArbiter(agentID)
	if err != nil {
		return err
	}
	arbiter.CancelSpeak(agentID)
	return nil
}

// SubmitTranscript feeds a finalized transcript into roomID's arbiter for
// response-triggering consideration (spec.md §4.6).
func (m *AgentManager) SubmitTranscript(roomID, originID, text string, confidence float64) error {
	m.mu.Lock()
	arbiter, ok := m.arbiters[roomID]
	m.mu.Unlock()
	if !ok {
		return NewError(KindNotFound, "manager.submit-transcript", nil)
	}
	arbiter.SubmitTranscript(originID, text, confidence)
	return nil
}

func (m *AgentManager) agentArbiter(agentID string) (*Agent, *RoomArbiter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[agentID]
	if !ok {
		return nil, nil, NewError(KindNotFound, "manager", nil)
	}
	roomID := agent.RoomID()
	arbiter, ok := m.arbiters[roomID]
	if !ok {
		return nil, nil, NewError(KindNotFound, "manager", nil)
	}
	return agent, arbiter, nil
}

// ListAgents implements spec.md §4.7 "list-agents(room?)"; an empty roomID
// returns every agent.
func (m *AgentManager) ListAgents(roomID string) []*Agent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Agent, 0, len(m.agents))
	for _, a := range m.agents {
		if roomID == "" || a.RoomID() == roomID {
			out = append(out, a)
		}
	}
	return out
}

// GetAgent implements spec.md §4.7 "get-agent(id)".
func (m *AgentManager) GetAgent(id string) (*Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[id]
	if !ok {
		return nil, NewError(KindNotFound, "manager.get-agent", nil)
	}
	return agent, nil
}

// GetRoom implements spec.md §4.7 "get-room(id)".
func (m *AgentManager) GetRoom(id string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		return nil, NewError(KindNotFound, "manager.get-room", nil)
	}
	return room, nil
}

// Stats implements spec.md §4.7 "stats()".
func (m *AgentManager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ManagerStats{AgentCount: len(m.agents), RoomCount: len(m.rooms)}
}

func (m *AgentManager) binding(agentID string) *binding {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bindings[agentID]
}

// managerBackend adapts AgentManager to the per-room SpeakerBackend contract
// the RoomArbiter drives (spec.md §4.6). roomID scopes EligibleResponders.
type managerBackend struct {
	mgr    *AgentManager
	roomID string
}

func (b *managerBackend) StartSpeaking(ctx context.Context, agentID, text string, onDone func(error)) (string, error) {
	bd := b.mgr.binding(agentID)
	if bd == nil {
		return "", NewError(KindNotFound, "backend.start-speaking", nil)
	}
	turnCtx, cancel := context.WithCancel(context.Background())
	bd.mu.Lock()
	bd.cancel = cancel
	bd.producerID = ""
	bd.mu.Unlock()

	go func() {
		audio, err := bd.agent.Speak(turnCtx, text)
		if err != nil {
			onDone(err)
			return
		}
		if bd.media == nil || b.mgr.chunker == nil {
			onDone(nil)
			return
		}
		frames := b.mgr.chunker(audio, b.mgr.cfg.EgressBufferSize)
		frameCh := make(chan []byte)
		go func() {
			defer close(frameCh)
			for _, f := range frames {
				select {
				case frameCh <- f:
				case <-turnCtx.Done():
					return
				}
			}
		}()
		pid, err := bd.media.Produce(turnCtx, frameCh)
		if err != nil {
			onDone(err)
			return
		}
		bd.mu.Lock()
		bd.producerID = pid
		bd.mu.Unlock()
		onDone(nil)
	}()

	return agentID, nil
}

func (b *managerBackend) StopSpeaking(ctx context.Context, agentID, producerID string) {
	bd := b.mgr.binding(agentID)
	if bd == nil {
		return
	}
	bd.mu.Lock()
	cancel := bd.cancel
	pid := bd.producerID
	bd.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	bd.agent.AbortSpeech()
	if bd.media != nil && pid != "" {
		_ = bd.media.StopProduce(ctx, pid)
	}
}

func (b *managerBackend) MarkListening(agentID string) {
	bd := b.mgr.binding(agentID)
	if bd == nil {
		return
	}
	bd.agent.setStatus(StatusListening)
}

func (b *managerBackend) EligibleResponders() []string {
	b.mgr.mu.Lock()
	room, ok := b.mgr.rooms[b.roomID]
	b.mgr.mu.Unlock()
	if !ok {
		return nil
	}
	var out []string
	for _, id := range room.Agents() {
		bd := b.mgr.binding(id)
		if bd != nil && bd.agent.Status() == StatusListening {
			out = append(out, id)
		}
	}
	return out
}

func (b *managerBackend) RequestReply(ctx context.Context, agentID, text, originID string, onReply func(Message)) {
	bd := b.mgr.binding(agentID)
	if bd == nil {
		onReply(Message{})
		return
	}
	go func() {
		onReply(bd.agent.QueueSpeech(ctx, text, originID))
	}()
}
