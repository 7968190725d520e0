package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig names the connection knobs, grounded on
// `BaSui01-agentflow/agent/persistence.RedisMessageStore`'s `NewClient`
// construction (Addr/Password/DB/PoolSize).
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// RedisBus implements Bus over Redis Pub/Sub, answering the TODO left in
// the pack's in-memory bus ("Explore other bus implementations (e.g., NATS,
// Redis Pub/Sub)") for multi-process deployments where the Agent Manager
// and a media/transcription producer live in separate processes.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus dials Redis and pings it once to fail fast on misconfiguration
// (same check as the pack's `RedisMessageStore`).
func NewRedisBus(ctx context.Context, cfg RedisConfig) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("bus: connect to redis: %w", err)
	}
	return &RedisBus{client: client}, nil
}

// Connect is a no-op beyond construction; NewRedisBus already verified
// connectivity.
func (b *RedisBus) Connect(ctx context.Context) error { return nil }

// Disconnect closes the underlying client.
func (b *RedisBus) Disconnect(ctx context.Context) error {
	return b.client.Close()
}

// Publish implements spec.md §4.1's "publish(topic, payload-bytes)" over a
// Redis PUBLISH.
func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.client.Publish(ctx, topic, payload).Err()
}

type redisSub struct {
	topic  string
	pubsub *redis.PubSub
	cancel context.CancelFunc
}

func (s *redisSub) Topic() string { return s.topic }

// Subscribe opens a Redis channel subscription and dispatches every message
// to handler on its own goroutine, matching spec.md §5's "handlers are
// invoked on the bus's worker context".
func (b *RedisBus) Subscribe(ctx context.Context, topic string, handler HandlerFunc) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("bus: subscribe %s: %w", topic, err)
	}

	workCtx, cancel := context.WithCancel(context.Background())
	ch := pubsub.Channel()
	go func() {
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler(workCtx, []byte(msg.Payload))
			case <-workCtx.Done():
				return
			}
		}
	}()

	return &redisSub{topic: topic, pubsub: pubsub, cancel: cancel}, nil
}

// Unsubscribe closes the Redis subscription and stops its dispatch
// goroutine.
func (b *RedisBus) Unsubscribe(ctx context.Context, sub Subscription) error {
	s, ok := sub.(*redisSub)
	if !ok {
		return fmt.Errorf("bus: foreign subscription handle")
	}
	s.cancel()
	return s.pubsub.Close()
}
