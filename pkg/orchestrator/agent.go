package orchestrator

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

const fallbackReply = "Sorry, I'm having trouble responding right now."

// promptHistoryDepth is the number of past text messages fed to the LLM as
// chat turns (spec.md §4.5). The bundled LLM adapters map each message to a
// user or assistant role by its kind; the origin id is not passed to the
// model.
const promptHistoryDepth = 10

// ProcessText implements spec.md §4.5 "process-text": sets status
// processing, appends the inbound message, asks the LLM, appends the
// outbound reply, sets status back to idle. On LLM failure it returns the
// fixed fallback reply without touching status-visible failure state
// beyond returning to idle.
func (a *Agent) ProcessText(ctx context.Context, msg Message) Message {
	a.setStatus(StatusProcessing)
	defer a.setStatus(StatusIdle)

	a.appendHistory(msg)

	reply, err := a.generate(ctx)
	if err != nil {
		a.logger.Warn("llm generation failed, using fallback", "agent", a.ID, "error", err)
		reply = fallbackReply
	}

	out := NewMessage(KindOutboundText, reply, a.ID, msg.OriginID)
	a.appendHistory(out)
	return out
}

// generate builds the LLM prompt (persona as system directive, last N text
// messages as chat turns) and enforces the per-agent rate gate.
func (a *Agent) generate(ctx context.Context) (string, error) {
	if a.llm == nil {
		return "", NewError(KindProviderUnavailable, "agent.generate", errLLMNotConfigured)
	}
	if !a.rateGate.Allow() {
		return "", NewError(KindRateLimited, "agent.generate", nil)
	}

	cfg := a.Config()
	history := a.textHistoryForPrompt(promptHistoryDepth)

	result, err := a.llm.Generate(ctx, a.Persona, history, cfg)
	if err != nil {
		return "", NewError(KindProviderError, "agent.generate", err)
	}

	modelTag := result.ModelTag
	if modelTag == "" {
		modelTag = cfg.LLMModel
	}
	if modelTag == "" {
		modelTag = a.llm.Name()
	}
	a.promMetrics.LLMInvocations.WithLabelValues(modelTag).Inc()
	a.promMetrics.TokensGenerated.WithLabelValues(modelTag).Add(float64(result.TokenCount))

	a.mu.Lock()
	a.metrics.LLMInvocations++
	a.mu.Unlock()

	return result.Reply, nil
}

// Speak implements spec.md §4.5 "speak": sets status speaking, asks TTS,
// returns bytes, restores status to idle on exit regardless of outcome.
func (a *Agent) Speak(ctx context.Context, text string) (AudioBytes, error) {
	a.setStatus(StatusSpeaking)
	defer a.setStatus(StatusIdle)

	if a.tts == nil {
		return AudioBytes{}, NewError(KindProviderUnavailable, "agent.speak", errTTSNotConfigured)
	}

	cfg := a.Config()
	audio, err := a.tts.Synthesize(ctx, text, cfg)
	if err != nil {
		return AudioBytes{}, NewError(KindProviderError, "agent.speak", err)
	}

	a.promMetrics.TTSInvocations.Inc()

	a.mu.Lock()
	a.metrics.TTSInvocations++
	a.metrics.VoiceTurnCount++
	a.mu.Unlock()

	return audio, nil
}

// ProcessVoice handles a finalized transcript attributed to a remote
// speaker: it is appended to history as an inbound-voice message and the
// caller (the Room Arbiter) decides whether to trigger a reply
// (spec.md §4.6 "Turn triggering from transcripts").
func (a *Agent) ProcessVoice(transcript TranscriptResult, originID string) Message {
	msg := NewMessage(KindInboundVoice, transcript.Text, originID, a.ID)
	msg.Confidence = transcript.Confidence
	a.appendHistory(msg)
	return msg
}

// QueueSpeech asks the agent to produce a reply to `text` and returns the
// outbound message the arbiter should speak; it is the voice-turn analogue
// of ProcessText, fed by the arbiter rather than a direct caller
// (spec.md §4.5 "queue-speech"). A bounded number of concurrent speech
// requests may be in flight per agent (spec.md §5's speech queue); a
// request beyond that bound is declined immediately rather than queued,
// returned the same empty-content way the arbiter already treats any other
// declined turn (spec.md §4.6 "Failure semantics").
func (a *Agent) QueueSpeech(ctx context.Context, text, originID string) Message {
	select {
	case a.speechCap <- struct{}{}:
		defer func() { <-a.speechCap }()
	default:
		a.logger.Warn("speech queue full, declining turn", "agent", a.ID, "error", NewError(KindBusy, "agent.queue-speech", nil))
		return Message{}
	}

	inbound := NewMessage(KindInboundVoice, text, originID, a.ID)
	a.appendHistory(inbound)

	a.setStatus(StatusThinking)
	reply, err := a.generate(ctx)
	a.setStatus(StatusIdle)

	if err != nil || strings.TrimSpace(reply) == "" {
		a.logger.Info("agent declined to respond", "agent", a.ID, "error", err)
		return Message{}
	}

	out := NewMessage(KindOutboundVoice, reply, a.ID, BroadcastDest)
	a.appendHistory(out)
	return out
}

// AbortSpeech asks the agent's TTS provider to cancel in-flight synthesis.
// Called by the Room Arbiter's backend on a forced-stop or cancel-speak so
// the provider stops streaming audio the room no longer wants.
func (a *Agent) AbortSpeech() {
	a.mu.Lock()
	tts := a.tts
	a.mu.Unlock()
	if tts != nil {
		_ = tts.Abort()
	}
}

// UpdateConfig implements spec.md §4.5 "update-config": replaces
// configuration and re-binds the voice profile; history is never touched.
func (a *Agent) UpdateConfig(newCfg AgentConfig) {
	a.mu.Lock()
	a.config = newCfg
	a.mu.Unlock()
}

// newAgentID generates a stable unique agent id when the caller does not
// supply one (spec.md §4.7 "create-agent(persona, id?, config)").
func newAgentID() string { return uuid.NewString() }
