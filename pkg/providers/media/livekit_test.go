package media

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lokutor-ai/roomcast/pkg/orchestrator"
)

func TestLiveKitClient_JoinUnreachableSurfacesMediaUnrecoverable(t *testing.T) {
	cfg := orchestrator.DefaultConfig()
	cfg.MediaReconnectAttempts = 2

	c := NewLiveKitClient("ws://127.0.0.1:1", "key", "secret", cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := c.Join(ctx, "room-1", "agent-1")
	if err == nil {
		t.Fatal("expected an error dialing an unreachable LiveKit server")
	}
	if !errors.Is(err, orchestrator.ErrMediaUnrecoverable) {
		t.Errorf("expected ErrMediaUnrecoverable, got %v", err)
	}
	if c.State() != orchestrator.MediaClosed {
		t.Errorf("expected state MediaClosed after exhausting retries, got %s", c.State())
	}
}

func TestLiveKitClient_StopProduceUnknownProducer(t *testing.T) {
	c := NewLiveKitClient("ws://127.0.0.1:1", "key", "secret", orchestrator.DefaultConfig(), nil)
	err := c.StopProduce(context.Background(), "does-not-exist")
	if !errors.Is(err, orchestrator.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLiveKitClient_ConsumeWithoutSubscribedTrack(t *testing.T) {
	c := NewLiveKitClient("ws://127.0.0.1:1", "key", "secret", orchestrator.DefaultConfig(), nil)
	_, _, err := c.Consume(context.Background(), "unknown-peer", 0)
	if !errors.Is(err, orchestrator.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
