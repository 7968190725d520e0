package bus

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestInMemoryBus_PublishDeliversToSubscriber(t *testing.T) {
	b := NewInMemoryBus()
	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	received := make(chan []byte, 1)
	sub, err := b.Subscribe(context.Background(), "topic.a", func(ctx context.Context, payload []byte) {
		received <- payload
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := b.Publish(context.Background(), "topic.a", []byte("hello")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case payload := <-received:
		if string(payload) != "hello" {
			t.Errorf("expected hello, got %s", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	if err := b.Unsubscribe(context.Background(), sub); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
}

func TestInMemoryBus_FanOutToMultipleSubscribers(t *testing.T) {
	b := NewInMemoryBus()
	var mu sync.Mutex
	var count int

	for i := 0; i < 3; i++ {
		if _, err := b.Subscribe(context.Background(), "topic.fan", func(ctx context.Context, payload []byte) {
			mu.Lock()
			count++
			mu.Unlock()
		}); err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
	}

	if err := b.Publish(context.Background(), "topic.fan", []byte("x")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		c := count
		mu.Unlock()
		if c == 3 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected 3 deliveries, got %d", count)
}

func TestInMemoryBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewInMemoryBus()
	received := make(chan []byte, 4)
	sub, err := b.Subscribe(context.Background(), "topic.b", func(ctx context.Context, payload []byte) {
		received <- payload
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := b.Unsubscribe(context.Background(), sub); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if err := b.Publish(context.Background(), "topic.b", []byte("should not arrive")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case payload := <-received:
		t.Fatalf("unexpected delivery after unsubscribe: %s", payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestInMemoryBus_PublishReturnsBackpressureOnFullSubscriber(t *testing.T) {
	b := NewInMemoryBus()
	block := make(chan struct{})
	if _, err := b.Subscribe(context.Background(), "topic.full", func(ctx context.Context, payload []byte) {
		<-block // never returns during the test, so the channel never drains
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer close(block)

	var lastErr error
	for i := 0; i < 70; i++ {
		lastErr = b.Publish(context.Background(), "topic.full", []byte("x"))
		if lastErr == ErrBackpressure {
			return
		}
	}
	t.Fatalf("expected ErrBackpressure once the subscriber's channel filled, last error: %v", lastErr)
}

func TestInMemoryBus_PublishAfterDisconnectFails(t *testing.T) {
	b := NewInMemoryBus()
	if err := b.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if err := b.Publish(context.Background(), "topic.c", []byte("x")); err == nil {
		t.Error("expected Publish on a disconnected bus to fail")
	}
	if _, err := b.Subscribe(context.Background(), "topic.c", func(ctx context.Context, payload []byte) {}); err == nil {
		t.Error("expected Subscribe on a disconnected bus to fail")
	}
}
