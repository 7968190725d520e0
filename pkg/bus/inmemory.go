package bus

import (
	"context"
	"fmt"
	"sync"
)

// InMemoryBus fans a topic's publishes out to every handler subscribed to
// it, within one process. Generalized from the teacher's pack-mate
// `lookatitude-beluga-ai/pkg/orchestration/internal/messagebus.ChannelMessageBus`:
// same per-topic channel-per-subscriber shape, but each Subscribe call gets
// its own goroutine and handle rather than one shared channel per topic, so
// Unsubscribe actually works and slow handlers can't starve others on the
// same topic.
type InMemoryBus struct {
	mu      sync.RWMutex
	closed  bool
	nextID  int
	subs    map[string]map[int]*inMemSub
}

type inMemSub struct {
	topic  string
	ch     chan []byte
	cancel context.CancelFunc
}

func (s *inMemSub) Topic() string { return s.topic }

// NewInMemoryBus constructs a ready-to-use in-process bus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{subs: make(map[string]map[int]*inMemSub)}
}

// Connect is a no-op; the in-memory bus has no external resource to dial.
func (b *InMemoryBus) Connect(ctx context.Context) error { return nil }

// Disconnect closes every subscriber channel and marks the bus closed.
func (b *InMemoryBus) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, byID := range b.subs {
		for _, s := range byID {
			s.cancel()
			close(s.ch)
		}
	}
	b.subs = make(map[string]map[int]*inMemSub)
	return nil
}

// Publish delivers payload to every handler currently subscribed to topic.
// The send to each subscriber's channel never blocks the caller (spec.md
// §4.1, "publish is non-blocking from the caller's view"): a subscriber
// whose channel is full has the message dropped for it, and Publish returns
// ErrBackpressure once every subscriber has been offered the payload,
// mirroring Emitter.Emit's drop-rather-than-block handling of slow
// observers.
func (b *InMemoryBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("bus: publish on closed bus")
	}
	var backpressure bool
	for _, s := range b.subs[topic] {
		select {
		case s.ch <- payload:
		default:
			backpressure = true
		}
	}
	if backpressure {
		return ErrBackpressure
	}
	return nil
}

// Subscribe registers handler on topic and starts its delivery goroutine.
func (b *InMemoryBus) Subscribe(ctx context.Context, topic string, handler HandlerFunc) (Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("bus: subscribe on closed bus")
	}
	id := b.nextID
	b.nextID++
	subCtx, cancel := context.WithCancel(context.Background())
	s := &inMemSub{topic: topic, ch: make(chan []byte, 64), cancel: cancel}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]*inMemSub)
	}
	b.subs[topic][id] = s
	b.mu.Unlock()

	go func() {
		for {
			select {
			case payload, ok := <-s.ch:
				if !ok {
					return
				}
				handler(subCtx, payload)
			case <-subCtx.Done():
				return
			}
		}
	}()

	return &inMemHandle{bus: b, id: id, sub: s}, nil
}

type inMemHandle struct {
	bus *InMemoryBus
	id  int
	sub *inMemSub
}

func (h *inMemHandle) Topic() string { return h.sub.topic }

// Unsubscribe stops delivery to the given handle and closes its channel.
func (b *InMemoryBus) Unsubscribe(ctx context.Context, sub Subscription) error {
	h, ok := sub.(*inMemHandle)
	if !ok {
		return fmt.Errorf("bus: foreign subscription handle")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	byID, ok := b.subs[h.sub.topic]
	if !ok {
		return nil
	}
	if s, ok := byID[h.id]; ok {
		s.cancel()
		close(s.ch)
		delete(byID, h.id)
	}
	return nil
}
