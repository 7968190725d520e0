package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/lokutor-ai/roomcast/pkg/bus"
)

func TestBusBinder_AgentCreateJoinSpeakRoundTrip(t *testing.T) {
	mgr := newTestManager(t, DefaultConfig())
	b := bus.NewInMemoryBus()
	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer b.Disconnect(context.Background())

	emitter := NewEmitter(NewNoOpMetrics())
	binder := NewBusBinder(mgr, b, emitter, nil)
	if err := binder.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer binder.Stop(context.Background())

	createPayload, _ := json.Marshal(map[string]interface{}{"id": "a1", "persona": "a helpful assistant"})
	if err := b.Publish(context.Background(), bus.TopicAgentCreate, createPayload); err != nil {
		t.Fatalf("Publish agent.create: %v", err)
	}

	waitForT(t, func() bool {
		_, err := mgr.GetAgent("a1")
		return err == nil
	})

	joinPayload, _ := json.Marshal(map[string]string{"id": "a1", "room": "room-1"})
	if err := b.Publish(context.Background(), bus.TopicAgentJoinRoom, joinPayload); err != nil {
		t.Fatalf("Publish agent.join-room: %v", err)
	}

	waitForT(t, func() bool {
		room, err := mgr.GetRoom("room-1")
		return err == nil && room.hasAgent("a1")
	})
}

func TestBusBinder_EventsForwardToEventTopics(t *testing.T) {
	mgr := newTestManager(t, DefaultConfig())
	b := bus.NewInMemoryBus()
	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer b.Disconnect(context.Background())

	emitter := NewEmitter(NewNoOpMetrics())
	binder := NewBusBinder(mgr, b, emitter, nil)
	if err := binder.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer binder.Stop(context.Background())

	received := make(chan []byte, 1)
	if _, err := b.Subscribe(context.Background(), bus.TopicAgentCreated, func(ctx context.Context, payload []byte) {
		received <- payload
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if _, err := mgr.CreateAgent("a1", "persona", DefaultAgentConfig()); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	select {
	case payload := <-received:
		var ev Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if ev.AgentID != "a1" {
			t.Errorf("expected event for a1, got %s", ev.AgentID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for agent.created event")
	}
}

func waitForT(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}
