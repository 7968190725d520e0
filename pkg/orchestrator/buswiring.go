package orchestrator

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/lokutor-ai/roomcast/pkg/bus"
)

// BusBinder translates the control/event topics of spec.md §6 onto an
// AgentManager: inbound control messages become manager calls, and every
// manager-emitted Event is re-published as its matching JSON event topic.
// Generalizes the teacher's `cmd/agent/main.go` env-driven single-process
// wiring into a long-lived, bus-addressable front door.
type BusBinder struct {
	mgr     *AgentManager
	bus     bus.Bus
	emitter *Emitter
	logger  Logger

	controlSubs []bus.Subscription
	stopEvents  chan struct{}
}

// NewBusBinder constructs a binder. Call Start to begin consuming.
func NewBusBinder(mgr *AgentManager, b bus.Bus, emitter *Emitter, logger Logger) *BusBinder {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &BusBinder{mgr: mgr, bus: b, emitter: emitter, logger: logger, stopEvents: make(chan struct{})}
}

// Start subscribes to every control topic in spec.md §6 and begins
// forwarding manager events onto their matching event topics.
func (bnd *BusBinder) Start(ctx context.Context) error {
	subs := []struct {
		topic   string
		handler bus.HandlerFunc
	}{
		{bus.TopicAgentCreate, bnd.onAgentCreate},
		{bus.TopicAgentDelete, bnd.onAgentDelete},
		{bus.TopicAgentJoinRoom, bnd.onAgentJoinRoom},
		{bus.TopicAgentLeaveRoom, bnd.onAgentLeaveRoom},
		{bus.TopicAgentSpeak, bnd.onAgentSpeak},
		{bus.TopicAgentStopSpeak, bnd.onAgentStopSpeak},
		{bus.TopicTranscriptionFinal, bnd.onTranscriptionFinal},
	}
	for _, s := range subs {
		sub, err := bnd.bus.Subscribe(ctx, s.topic, s.handler)
		if err != nil {
			return err
		}
		bnd.controlSubs = append(bnd.controlSubs, sub)
	}

	events, _ := bnd.emitter.Subscribe()
	go bnd.forwardEvents(events)
	return nil
}

// Stop unsubscribes from every control topic and stops event forwarding.
func (bnd *BusBinder) Stop(ctx context.Context) {
	for _, sub := range bnd.controlSubs {
		_ = bnd.bus.Unsubscribe(ctx, sub)
	}
	close(bnd.stopEvents)
}

func (bnd *BusBinder) forwardEvents(events <-chan Event) {
	topics := map[EventType]string{
		EventAgentCreated:        bus.TopicAgentCreated,
		EventAgentDeleted:        bus.TopicAgentDeleted,
		EventAgentStatusChanged:  bus.TopicAgentStatusChanged,
		EventSpeakingStart:       bus.TopicAgentSpeakingStart,
		EventSpeakingEnd:         bus.TopicAgentSpeakingEnd,
		EventConversationMsg:     bus.TopicConversationMessage,
		EventTranscriptionUpdate: bus.TopicTranscriptionUpdate,
		EventRoomJoined:          bus.TopicRoomJoined,
		EventRoomLeft:            bus.TopicRoomLeft,
	}
	for {
		select {
		case <-bnd.stopEvents:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			topic, known := topics[ev.Type]
			if !known {
				continue
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				bnd.logger.Warn("event marshal failed", "type", ev.Type, "error", err)
				continue
			}
			if err := bnd.bus.Publish(context.Background(), topic, payload); err != nil {
				bnd.logger.Warn("event publish failed", "topic", topic, "error", err)
			}
		}
	}
}

type createPayload struct {
	Persona string       `json:"persona"`
	ID      string       `json:"id,omitempty"`
	Config  *AgentConfig `json:"config,omitempty"`
}

func (bnd *BusBinder) onAgentCreate(ctx context.Context, payload []byte) {
	var p createPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		bnd.logger.Warn("agent.create: bad payload", "error", err)
		return
	}
	cfg := DefaultAgentConfig()
	if p.Config != nil {
		cfg = *p.Config
	}
	if _, err := bnd.mgr.CreateAgent(p.ID, p.Persona, cfg); err != nil {
		bnd.logger.Warn("agent.create failed", "error", err)
	}
}

type idPayload struct {
	ID string `json:"id"`
}

func (bnd *BusBinder) onAgentDelete(ctx context.Context, payload []byte) {
	var p idPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		bnd.logger.Warn("agent.delete: bad payload", "error", err)
		return
	}
	if err := bnd.mgr.DeleteAgent(p.ID); err != nil {
		bnd.logger.Warn("agent.delete failed", "id", p.ID, "error", err)
	}
}

type joinRoomPayload struct {
	ID   string `json:"id"`
	Room string `json:"room"`
}

func (bnd *BusBinder) onAgentJoinRoom(ctx context.Context, payload []byte) {
	var p joinRoomPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		bnd.logger.Warn("agent.join-room: bad payload", "error", err)
		return
	}
	if err := bnd.mgr.AttachAgentToRoom(ctx, p.ID, p.Room); err != nil {
		bnd.logger.Warn("agent.join-room failed", "id", p.ID, "room", p.Room, "error", err)
	}
}

func (bnd *BusBinder) onAgentLeaveRoom(ctx context.Context, payload []byte) {
	var p idPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		bnd.logger.Warn("agent.leave-room: bad payload", "error", err)
		return
	}
	if err := bnd.mgr.DetachAgentFromRoom(p.ID); err != nil {
		bnd.logger.Warn("agent.leave-room failed", "id", p.ID, "error", err)
	}
}

type speakPayload struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func (bnd *BusBinder) onAgentSpeak(ctx context.Context, payload []byte) {
	var p speakPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		bnd.logger.Warn("agent.speak: bad payload", "error", err)
		return
	}
	if err := bnd.mgr.RequestSpeak(p.ID, p.Text); err != nil {
		bnd.logger.Warn("agent.speak failed", "id", p.ID, "error", err)
	}
}

func (bnd *BusBinder) onAgentStopSpeak(ctx context.Context, payload []byte) {
	var p idPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		bnd.logger.Warn("agent.stop-speak: bad payload", "error", err)
		return
	}
	if err := bnd.mgr.CancelSpeak(p.ID); err != nil {
		bnd.logger.Warn("agent.stop-speak failed", "id", p.ID, "error", err)
	}
}

type transcriptionFinalPayload struct {
	Session    string  `json:"session"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Ts         int64   `json:"ts,omitempty"`
}

// roomFromSession recovers the room id a streaming STT session belongs to.
// Publishers of transcription.final name sessions "<room>-<suffix>" (see the
// worked example in spec.md §8, `"R-s1"` for room `"R"`); the room id is the
// text before the first '-', so a room id that itself contains '-' is cut
// short.
func roomFromSession(session string) string {
	if i := strings.IndexByte(session, '-'); i >= 0 {
		return session[:i]
	}
	return session
}

func (bnd *BusBinder) onTranscriptionFinal(ctx context.Context, payload []byte) {
	var p transcriptionFinalPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		bnd.logger.Warn("transcription.final: bad payload", "error", err)
		return
	}
	room := roomFromSession(p.Session)
	if err := bnd.mgr.SubmitTranscript(room, p.Session, p.Text, p.Confidence); err != nil {
		bnd.logger.Warn("transcription.final failed", "room", room, "error", err)
	}
}
