package orchestrator

import (
	"context"
	"math/rand"
	"time"
)

// SpeakerBackend is the per-binding hook the Room Arbiter drives to turn a
// text utterance into produced room audio, without the arbiter itself
// touching providers or the media client (spec.md §4.6, §5 "Suspension
// must not hold the room arbiter's serialization point"). The Agent
// Manager's Binding type is the concrete implementation: it owns the
// Agent, its MediaRoomClient and its two Audio Pipelines.
type SpeakerBackend interface {
	// StartSpeaking begins TTS synthesis and egress production for text on
	// agentID's behalf. It must return immediately; onDone is invoked
	// exactly once, from a goroutine, when production finishes (nil error)
	// or fails (non-nil error).
	StartSpeaking(ctx context.Context, agentID, text string, onDone func(error)) (producerID string, err error)
	// StopSpeaking force-ends an in-progress turn (stop-called or
	// forced-stop). It is safe to call even if production already finished.
	StopSpeaking(ctx context.Context, agentID, producerID string)
	// MarkListening transitions an agent back to the listening status once
	// its turn (or a declined responder selection) is over.
	MarkListening(agentID string)
	// EligibleResponders returns ids of agents attached to the room whose
	// status is currently `listening` (spec.md §4.6 rule 2).
	EligibleResponders() []string
	// RequestReply asks agentID to produce a text reply to text (the
	// agent-side half of spec.md §4.6 "Turn triggering from transcripts"
	// step 3); onReply is invoked exactly once with the reply message
	// (empty Content if the agent declined).
	RequestReply(ctx context.Context, agentID, text, originID string, onReply func(Message))
}

// arbiterCmd is the closed set of inputs the single dispatch goroutine
// consumes, serializing all mutation of one room's state (spec.md §5).
type arbiterCmd struct {
	kind string // "speak" | "cancel" | "transcript" | "speakEnded" | "replyReady" | "timeout" | "detach"
	requestSpeak
	cancelSpeak
	transcriptIn
	speakEndedMsg
	replyReadyMsg
	timeoutMsg
	detachMsg
	reply chan interface{}
}

type requestSpeak struct {
	agentID string
	text    string
}

type cancelSpeak struct {
	agentID string
}

type transcriptIn struct {
	originID   string
	text       string
	confidence float64
}

type speakEndedMsg struct {
	agentID    string
	generation int
	err        error
	reason     string // "stop-called" | "forced-stop" | "tts-failure" (also used for a media Produce failure)
}

type replyReadyMsg struct {
	agentID string
	msg     Message
}

type timeoutMsg struct {
	agentID    string
	generation int
}

type detachMsg struct {
	agentID string
}

// RoomArbiter is the per-room serialized controller of speaking turns
// (spec.md §4.6). One instance runs one dispatch goroutine per room.
type RoomArbiter struct {
	room    *Room
	backend SpeakerBackend
	emitter *Emitter
	metrics *Metrics
	cfg     Config
	logger  Logger

	cmds chan arbiterCmd
	done chan struct{}

	// current-turn state, touched only from the dispatch goroutine.
	curProducerID string
	curGeneration int
	curTimer      *time.Timer

	rng *rand.Rand
}

// NewRoomArbiter starts a room's dispatch goroutine.
func NewRoomArbiter(room *Room, backend SpeakerBackend, emitter *Emitter, metrics *Metrics, cfg Config, logger Logger) *RoomArbiter {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if metrics == nil {
		metrics = NewNoOpMetrics()
	}
	a := &RoomArbiter{
		room:    room,
		backend: backend,
		emitter: emitter,
		metrics: metrics,
		cfg:     cfg,
		logger:  logger,
		cmds:    make(chan arbiterCmd, 64),
		done:    make(chan struct{}),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	go a.loop()
	return a
}

// Stop terminates the dispatch goroutine. Safe to call once.
func (a *RoomArbiter) Stop() {
	close(a.done)
}

func (a *RoomArbiter) loop() {
	for {
		select {
		case <-a.done:
			return
		case cmd := <-a.cmds:
			a.dispatch(cmd)
		}
	}
}

func (a *RoomArbiter) dispatch(cmd arbiterCmd) {
	switch cmd.kind {
	case "speak":
		err := a.handleRequestSpeak(cmd.requestSpeak.agentID, cmd.requestSpeak.text)
		if cmd.reply != nil {
			cmd.reply <- err
		}
	case "cancel":
		a.handleCancel(cmd.cancelSpeak.agentID)
		if cmd.reply != nil {
			cmd.reply <- nil
		}
	case "transcript":
		a.handleTranscript(cmd.transcriptIn)
	case "speakEnded":
		a.handleSpeakEnded(cmd.speakEndedMsg)
	case "replyReady":
		a.handleReplyReady(cmd.replyReadyMsg)
	case "timeout":
		a.handleTimeout(cmd.timeoutMsg)
	case "detach":
		a.handleDetach(cmd.detachMsg.agentID)
	}
}

// RequestSpeak issues a speak request (spec.md §4.6 rules 1-2) and blocks
// until the arbiter has processed it (returns Busy if the queue is full).
func (a *RoomArbiter) RequestSpeak(agentID, text string) error {
	if text == "" {
		return NewError(KindInvalidArgument, "arbiter.request-speak", nil)
	}
	reply := make(chan interface{}, 1)
	a.cmds <- arbiterCmd{kind: "speak", requestSpeak: requestSpeak{agentID: agentID, text: text}, reply: reply}
	if err, ok := (<-reply).(error); ok && err != nil {
		return err
	}
	return nil
}

// CancelSpeak cancels agentID's current or queued turn.
func (a *RoomArbiter) CancelSpeak(agentID string) {
	reply := make(chan interface{}, 1)
	a.cmds <- arbiterCmd{kind: "cancel", cancelSpeak: cancelSpeak{agentID: agentID}, reply: reply}
	<-reply
}

// SubmitTranscript feeds a finalized transcript for response-triggering
// consideration (spec.md §4.6 "Turn triggering from transcripts").
func (a *RoomArbiter) SubmitTranscript(originID, text string, confidence float64) {
	a.cmds <- arbiterCmd{kind: "transcript", transcriptIn: transcriptIn{originID: originID, text: text, confidence: confidence}}
}

// NotifyDetach tells the arbiter an agent left the room, so it can be
// dropped from the queue and from the speaker slot if applicable
// (spec.md §4.6 rule 3, §3 invariant 4).
func (a *RoomArbiter) NotifyDetach(agentID string) {
	a.cmds <- arbiterCmd{kind: "detach", detachMsg: detachMsg{agentID: agentID}}
}

func (a *RoomArbiter) handleRequestSpeak(agentID, text string) error {
	if !a.room.hasAgent(agentID) {
		return NewError(KindNotFound, "arbiter.request-speak", nil)
	}
	if a.room.CurrentSpeaker() == "" {
		a.startSpeaking(agentID, text)
		return nil
	}
	a.room.mu.Lock()
	if len(a.room.queue) >= a.room.queueCap {
		a.room.mu.Unlock()
		return NewError(KindBusy, "arbiter.request-speak", nil)
	}
	a.room.queue = append(a.room.queue, turnRequest{agentID: agentID, text: text})
	a.room.mu.Unlock()
	a.metrics.TurnQueueDepth.Set(float64(a.room.QueueLen()))
	return nil
}

func (a *RoomArbiter) startSpeaking(agentID, text string) {
	a.room.mu.Lock()
	a.room.speaker = agentID
	a.room.speakingAt = time.Now()
	a.room.mu.Unlock()
	a.metrics.SpeakersActive.Inc()

	a.curGeneration++
	gen := a.curGeneration

	producerID, err := a.backend.StartSpeaking(context.Background(), agentID, text, func(err error) {
		reason := "stop-called"
		if err != nil {
			reason = "tts-failure"
		}
		a.cmds <- arbiterCmd{kind: "speakEnded", speakEndedMsg: speakEndedMsg{agentID: agentID, generation: gen, err: err, reason: reason}}
	})
	if err != nil {
		a.finishTurn(agentID, "tts-failure")
		return
	}
	a.curProducerID = producerID

	a.emitter.Emit(Event{Type: EventSpeakingStart, AgentID: agentID, RoomID: a.room.ID, Data: map[string]string{"text": text}})

	a.curTimer = time.AfterFunc(a.cfg.SpeakingTimeLimit, func() {
		a.cmds <- arbiterCmd{kind: "timeout", timeoutMsg: timeoutMsg{agentID: agentID, generation: gen}}
	})
}

func (a *RoomArbiter) handleSpeakEnded(m speakEndedMsg) {
	if m.generation != a.curGeneration || a.room.CurrentSpeaker() != m.agentID {
		return // stale completion from a superseded turn
	}
	a.finishTurn(m.agentID, m.reason)
}

func (a *RoomArbiter) handleTimeout(m timeoutMsg) {
	if m.generation != a.curGeneration || a.room.CurrentSpeaker() != m.agentID {
		return
	}
	a.backend.StopSpeaking(context.Background(), m.agentID, a.curProducerID)
	a.metrics.ForcedStops.Inc()
	a.room.appendLog(LogEntry{At: time.Now(), Kind: "utterance", OriginID: m.agentID, Text: "forced-stop"})
	a.finishTurn(m.agentID, "forced-stop")
}

// finishTurn closes out the current speaker slot, emits speaking.end, and
// drains the queue (spec.md §4.6 rule 3, "Speaking time limit").
func (a *RoomArbiter) finishTurn(agentID, reason string) {
	if a.curTimer != nil {
		a.curTimer.Stop()
		a.curTimer = nil
	}
	a.room.mu.Lock()
	a.room.speaker = ""
	a.room.mu.Unlock()
	a.curProducerID = ""
	a.metrics.SpeakersActive.Dec()

	a.backend.MarkListening(agentID)
	a.emitter.Emit(Event{Type: EventSpeakingEnd, AgentID: agentID, RoomID: a.room.ID, Data: map[string]string{"reason": reason}})

	a.drainQueue()
}

// drainQueue pops the head of the queue and starts it; agents no longer
// attached are dropped and the next is considered (spec.md §4.6 rule 3).
func (a *RoomArbiter) drainQueue() {
	for {
		a.room.mu.Lock()
		if len(a.room.queue) == 0 {
			a.room.mu.Unlock()
			a.metrics.TurnQueueDepth.Set(0)
			return
		}
		next := a.room.queue[0]
		a.room.queue = a.room.queue[1:]
		a.room.mu.Unlock()
		a.metrics.TurnQueueDepth.Set(float64(a.room.QueueLen()))

		if !a.room.hasAgent(next.agentID) {
			continue // dropped: no longer attached
		}
		a.startSpeaking(next.agentID, next.text)
		return
	}
}

func (a *RoomArbiter) handleCancel(agentID string) {
	if a.room.CurrentSpeaker() == agentID {
		a.backend.StopSpeaking(context.Background(), agentID, a.curProducerID)
		a.finishTurn(agentID, "stop-called")
		return
	}
	a.room.mu.Lock()
	for i, tr := range a.room.queue {
		if tr.agentID == agentID {
			a.room.queue = append(a.room.queue[:i], a.room.queue[i+1:]...)
			break
		}
	}
	a.room.mu.Unlock()
}

// handleTranscript implements spec.md §4.6 "Turn triggering from
// transcripts".
func (a *RoomArbiter) handleTranscript(t transcriptIn) {
	a.room.appendLog(LogEntry{At: time.Now(), Kind: "transcript", OriginID: t.originID, Text: t.text, Confidence: t.confidence})
	a.emitter.Emit(Event{Type: EventTranscriptionUpdate, RoomID: a.room.ID, Data: map[string]interface{}{"origin": t.originID, "text": t.text, "confidence": t.confidence}})

	if t.confidence < a.cfg.ConfidenceFloor {
		return // below floor: logged only, never triggers a reply
	}
	if a.room.CurrentSpeaker() != "" {
		return // a speaker is already active: ignore for response purposes
	}

	candidates := a.backend.EligibleResponders()
	if len(candidates) == 0 {
		return
	}
	responder := candidates[a.rng.Intn(len(candidates))]

	a.backend.RequestReply(context.Background(), responder, t.text, t.originID, func(msg Message) {
		a.cmds <- arbiterCmd{kind: "replyReady", replyReadyMsg: replyReadyMsg{agentID: responder, msg: msg}}
	})
}

func (a *RoomArbiter) handleReplyReady(m replyReadyMsg) {
	if m.msg.Content == "" {
		return // agent declined; arbiter remains idle (spec.md §4.6 "Failure semantics")
	}
	a.emitter.Emit(Event{Type: EventConversationMsg, AgentID: m.agentID, RoomID: a.room.ID, Data: m.msg})
	if err := a.handleRequestSpeak(m.agentID, m.msg.Content); err != nil {
		a.logger.Warn("queued reply could not be spoken", "agent", m.agentID, "room", a.room.ID, "error", err)
	}
}

func (a *RoomArbiter) handleDetach(agentID string) {
	if a.room.CurrentSpeaker() == agentID {
		a.backend.StopSpeaking(context.Background(), agentID, a.curProducerID)
		a.finishTurn(agentID, "stop-called")
		return
	}
	a.room.mu.Lock()
	filtered := a.room.queue[:0]
	for _, tr := range a.room.queue {
		if tr.agentID != agentID {
			filtered = append(filtered, tr)
		}
	}
	a.room.queue = filtered
	a.room.mu.Unlock()
}
