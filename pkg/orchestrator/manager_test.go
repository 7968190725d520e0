package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeLLM struct{ reply string }

func (f *fakeLLM) Generate(ctx context.Context, persona string, history []Message, cfg AgentConfig) (LLMResult, error) {
	return LLMResult{Reply: f.reply}, nil
}
func (f *fakeLLM) Available() bool { return true }
func (f *fakeLLM) Name() string    { return "fake-llm" }

type fakeTTS struct{}

func (f *fakeTTS) Synthesize(ctx context.Context, text string, cfg AgentConfig) (AudioBytes, error) {
	return AudioBytes{Data: []byte(text)}, nil
}
func (f *fakeTTS) StreamSynthesize(ctx context.Context, text string, cfg AgentConfig, onChunk func([]byte) error) error {
	return onChunk([]byte(text))
}
func (f *fakeTTS) Abort() error   { return nil }
func (f *fakeTTS) Available() bool { return true }
func (f *fakeTTS) Name() string    { return "fake-tts" }

type fakeMediaClient struct{}

func (f *fakeMediaClient) Join(ctx context.Context, room, peerID string) error { return nil }
func (f *fakeMediaClient) Leave(ctx context.Context) error                     { return nil }
func (f *fakeMediaClient) Produce(ctx context.Context, audio <-chan []byte) (string, error) {
	go func() {
		for range audio {
		}
	}()
	return "producer-1", nil
}
func (f *fakeMediaClient) StopProduce(ctx context.Context, producerID string) error { return nil }
func (f *fakeMediaClient) Consume(ctx context.Context, peerOrProducerID string, duration int) (string, <-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return "consumer-1", ch, nil
}
func (f *fakeMediaClient) StopConsume(ctx context.Context, consumerID string) error { return nil }
func (f *fakeMediaClient) ListParticipants(ctx context.Context) ([]Participant, error) {
	return nil, nil
}
func (f *fakeMediaClient) State() MediaClientState { return MediaActive }

type fakeSTT struct{ text string }

func (f *fakeSTT) Transcribe(ctx context.Context, audio []byte, lang Language) (TranscriptResult, error) {
	return TranscriptResult{Text: f.text, Confidence: 0.95}, nil
}
func (f *fakeSTT) Available() bool { return true }
func (f *fakeSTT) Name() string    { return "fake-stt" }

// fakeIngressChain feeds every payload handed to Write straight to onSegment,
// standing in for the real decode/VAD/accumulate chain in pkg/audio.
type fakeIngressChain struct {
	onSegment func([]byte)
}

func (c *fakeIngressChain) Write(payload []byte) { c.onSegment(payload) }

// singlePayloadMediaClient's Consume yields exactly one payload, then closes,
// so a test can observe one full ingress round-trip without a real codec.
type singlePayloadMediaClient struct {
	fakeMediaClient
	peers []Participant
}

func (f *singlePayloadMediaClient) Consume(ctx context.Context, peerOrProducerID string, duration int) (string, <-chan []byte, error) {
	ch := make(chan []byte, 1)
	ch <- []byte("payload")
	close(ch)
	return "consumer-1", ch, nil
}

func (f *singlePayloadMediaClient) ListParticipants(ctx context.Context) ([]Participant, error) {
	return f.peers, nil
}

func newTestManager(t *testing.T, cfg Config) *AgentManager {
	t.Helper()
	llmProviders := map[string]LLMProvider{"fake": &fakeLLM{reply: "hi there"}}
	ttsProviders := map[string]TTSProvider{"fake": &fakeTTS{}}
	mediaFactory := func(ctx context.Context, agentID, roomID string) (MediaRoomClient, error) {
		return &fakeMediaClient{}, nil
	}
	chunker := func(audio AudioBytes, frameBytes int) [][]byte { return [][]byte{audio.Data} }
	return NewAgentManager(cfg, nil, nil, nil, llmProviders, ttsProviders, nil, mediaFactory, chunker, nil)
}

func TestAgentManager_CreateAttachSpeakDetachDelete(t *testing.T) {
	cfg := DefaultConfig()
	mgr := newTestManager(t, cfg)

	agentCfg := DefaultAgentConfig()
	agentCfg.LLMProvider = "fake"
	agentCfg.TTSProvider = "fake"

	agent, err := mgr.CreateAgent("a1", "a friendly assistant", agentCfg)
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if agent.ID != "a1" {
		t.Errorf("expected id a1, got %s", agent.ID)
	}

	if err := mgr.AttachAgentToRoom(context.Background(), "a1", "room-1"); err != nil {
		t.Fatalf("AttachAgentToRoom: %v", err)
	}

	if err := mgr.AttachAgentToRoom(context.Background(), "a1", "room-2"); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists re-attaching, got %v", err)
	}

	room, err := mgr.GetRoom("room-1")
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
	if !room.hasAgent("a1") {
		t.Error("expected a1 attached to room-1")
	}

	if err := mgr.RequestSpeak("a1", "hello room"); err != nil {
		t.Fatalf("RequestSpeak: %v", err)
	}

	stats := mgr.Stats()
	if stats.AgentCount != 1 || stats.RoomCount != 1 {
		t.Errorf("expected 1 agent/1 room, got %+v", stats)
	}

	if err := mgr.DetachAgentFromRoom("a1"); err != nil {
		t.Fatalf("DetachAgentFromRoom: %v", err)
	}
	if _, err := mgr.GetRoom("room-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected room-1 to be cleaned up once empty, got %v", err)
	}

	if err := mgr.DeleteAgent("a1"); err != nil {
		t.Fatalf("DeleteAgent: %v", err)
	}
	if _, err := mgr.GetAgent("a1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected a1 deleted, got %v", err)
	}
}

func TestAgentManager_CreateAgentCapExceeded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GlobalAgentCap = 1
	mgr := newTestManager(t, cfg)

	if _, err := mgr.CreateAgent("a1", "persona", DefaultAgentConfig()); err != nil {
		t.Fatalf("unexpected error creating first agent: %v", err)
	}
	if _, err := mgr.CreateAgent("a2", "persona", DefaultAgentConfig()); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("expected ErrCapacityExceeded, got %v", err)
	}
}

func TestAgentManager_CreateAgentDuplicateID(t *testing.T) {
	mgr := newTestManager(t, DefaultConfig())
	if _, err := mgr.CreateAgent("a1", "persona", DefaultAgentConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := mgr.CreateAgent("a1", "persona", DefaultAgentConfig()); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestAgentManager_AttachUnknownAgentNotFound(t *testing.T) {
	mgr := newTestManager(t, DefaultConfig())
	err := mgr.AttachAgentToRoom(context.Background(), "ghost", "room-1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAgentManager_PerRoomCapExceeded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PerRoomAgentCap = 1
	mgr := newTestManager(t, cfg)

	if _, err := mgr.CreateAgent("a1", "persona", DefaultAgentConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := mgr.CreateAgent("a2", "persona", DefaultAgentConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mgr.AttachAgentToRoom(context.Background(), "a1", "room-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := mgr.AttachAgentToRoom(context.Background(), "a2", "room-1")
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("expected ErrCapacityExceeded, got %v", err)
	}
}

func TestAgentManager_SubmitTranscriptUnknownRoom(t *testing.T) {
	mgr := newTestManager(t, DefaultConfig())
	err := mgr.SubmitTranscript("ghost-room", "user-1", "hi", 0.9)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAgentManager_AttachStartsIngressAndSubmitsTranscript(t *testing.T) {
	cfg := DefaultConfig()
	llmProviders := map[string]LLMProvider{"fake": &fakeLLM{reply: "hi there"}}
	sttProviders := map[string]STTProvider{"fake": &fakeSTT{text: "hello from the room"}}
	peer := singlePayloadMediaClient{peers: []Participant{{ID: "peer-1", Kind: "peer"}}}
	mediaFactory := func(ctx context.Context, agentID, roomID string) (MediaRoomClient, error) {
		return &peer, nil
	}
	chunker := func(audio AudioBytes, frameBytes int) [][]byte { return [][]byte{audio.Data} }
	ingressFactory := func(vad VADProvider, onSegment func([]byte)) (IngressChain, error) {
		return &fakeIngressChain{onSegment: onSegment}, nil
	}
	mgr := NewAgentManager(cfg, nil, nil, nil, llmProviders, nil, sttProviders, mediaFactory, chunker, ingressFactory)

	agentCfg := DefaultAgentConfig()
	agentCfg.LLMProvider = "fake"
	agentCfg.STTProvider = "fake"
	if _, err := mgr.CreateAgent("a1", "persona", agentCfg); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if err := mgr.AttachAgentToRoom(context.Background(), "a1", "room-1"); err != nil {
		t.Fatalf("AttachAgentToRoom: %v", err)
	}

	room, err := mgr.GetRoom("room-1")
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		for _, e := range room.Log() {
			if e.Kind == "transcript" && e.Text == "hello from the room" {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected a transcript from the consumed peer to reach the room log")
}

func TestAgentManager_ListAgentsFiltersByRoom(t *testing.T) {
	mgr := newTestManager(t, DefaultConfig())
	if _, err := mgr.CreateAgent("a1", "persona", DefaultAgentConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := mgr.CreateAgent("a2", "persona", DefaultAgentConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mgr.AttachAgentToRoom(context.Background(), "a1", "room-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	inRoom := mgr.ListAgents("room-1")
	if len(inRoom) != 1 || inRoom[0].ID != "a1" {
		t.Errorf("expected only a1 in room-1, got %v", inRoom)
	}

	all := mgr.ListAgents("")
	if len(all) != 2 {
		t.Errorf("expected 2 agents total, got %d", len(all))
	}
}
