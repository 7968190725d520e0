package orchestrator

import (
	"context"
	"time"
)

// participantPollInterval is how often runIngress re-lists a room's media
// participants to discover peers that joined after the agent attached.
const participantPollInterval = 2 * time.Second

// runIngress drives the room-audio half of spec.md §4.3's data-flow diagram
// for one attached agent: poll the media client's roster, consume each
// remote peer, and run consumed audio through the ingress chain into STT.
// It returns when ctx is cancelled (on detach).
func (m *AgentManager) runIngress(ctx context.Context, agent *Agent, roomID string, media MediaRoomClient, stt STTProvider) {
	if media == nil || stt == nil || m.ingressFactory == nil {
		return
	}

	seen := make(map[string]struct{})
	ticker := time.NewTicker(participantPollInterval)
	defer ticker.Stop()

	m.pollAndConsume(ctx, agent, roomID, media, stt, seen)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pollAndConsume(ctx, agent, roomID, media, stt, seen)
		}
	}
}

// pollAndConsume lists the room's current participants and spawns one
// consumePeer goroutine per peer not already being consumed.
func (m *AgentManager) pollAndConsume(ctx context.Context, agent *Agent, roomID string, media MediaRoomClient, stt STTProvider, seen map[string]struct{}) {
	participants, err := media.ListParticipants(ctx)
	if err != nil {
		m.logger.Warn("ingress: list participants failed", "agent", agent.ID, "room", roomID, "error", err)
		return
	}
	for _, p := range participants {
		if p.Kind != "peer" {
			continue
		}
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		go m.consumePeer(ctx, agent, roomID, p.ID, media, stt)
	}
}

// consumePeer consumes one remote peer's audio for the lifetime of ctx,
// decoding and VAD-bucketing it through a fresh IngressChain and handing
// every finalized voiced segment to the agent's STT provider, then the
// room's arbiter (spec.md §4.3 ingress -> §4.6 "Turn triggering from
// transcripts"). Each finalized segment is transcribed in its own goroutine
// so a slow STT call never stalls consumption of the peer's next audio.
func (m *AgentManager) consumePeer(ctx context.Context, agent *Agent, roomID, peerID string, media MediaRoomClient, stt STTProvider) {
	_, sink, err := media.Consume(ctx, peerID, 0)
	if err != nil {
		m.logger.Warn("ingress: consume failed", "agent", agent.ID, "room", roomID, "peer", peerID, "error", err)
		return
	}

	vad := DefaultRMSVAD(m.cfg).Clone()
	chain, err := m.ingressFactory(vad, func(segment []byte) {
		go m.transcribeSegment(ctx, agent, roomID, peerID, stt, segment)
	})
	if err != nil {
		m.logger.Warn("ingress: build chain failed", "agent", agent.ID, "room", roomID, "peer", peerID, "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sink:
			if !ok {
				return
			}
			chain.Write(payload)
		}
	}
}

// transcribeSegment runs one finalized voiced segment through stt and
// submits the result to roomID's arbiter.
func (m *AgentManager) transcribeSegment(ctx context.Context, agent *Agent, roomID, peerID string, stt STTProvider, segment []byte) {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.STTTimeout)
	defer cancel()

	result, err := stt.Transcribe(callCtx, segment, agent.Config().Language)
	if err != nil {
		m.logger.Warn("ingress: transcribe failed", "room", roomID, "peer", peerID, "error", err)
		return
	}
	m.metrics.STTInvocations.Inc()
	if err := m.SubmitTranscript(roomID, peerID, result.Text, result.Confidence); err != nil {
		m.logger.Warn("ingress: submit transcript failed", "room", roomID, "peer", peerID, "error", err)
	}
}
