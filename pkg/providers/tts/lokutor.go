package tts

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lokutor-ai/roomcast/pkg/orchestrator"
)

const defaultCacheSize = 256

// LokutorTTS streams synthesized speech over a persistent websocket,
// matching the teacher's own client's wire technique exactly. Adds an LRU
// cache keyed on (voice, language, text) so repeated phrases — persona
// greetings, filler lines — skip a synthesis round trip entirely.
type LokutorTTS struct {
	apiKey string
	host   string
	scheme string

	mu   sync.Mutex
	conn *websocket.Conn

	cache *lru.Cache[string, orchestrator.AudioBytes]
}

func NewLokutorTTS(apiKey string) *LokutorTTS {
	cache, _ := lru.New[string, orchestrator.AudioBytes](defaultCacheSize)
	return &LokutorTTS{
		apiKey: apiKey,
		host:   "api.lokutor.com",
		scheme: "wss",
		cache:  cache,
	}
}

func (t *LokutorTTS) Name() string { return "lokutor" }

func (t *LokutorTTS) Available() bool { return t.apiKey != "" }

func (t *LokutorTTS) getConn(ctx context.Context) (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return t.conn, nil
	}

	u := url.URL{Scheme: t.scheme, Host: t.host, Path: "/ws", RawQuery: "api_key=" + t.apiKey}
	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to lokutor: %w", err)
	}

	t.conn = conn
	return conn, nil
}

func cacheKey(text string, cfg orchestrator.AgentConfig) string {
	h := sha1.Sum([]byte(string(cfg.TTSVoice) + "|" + string(cfg.Language) + "|" + text))
	return hex.EncodeToString(h[:])
}

// Synthesize implements orchestrator.TTSProvider, serving from the LRU
// cache when the same (voice, language, text) tuple was synthesized before.
func (t *LokutorTTS) Synthesize(ctx context.Context, text string, cfg orchestrator.AgentConfig) (orchestrator.AudioBytes, error) {
	key := cacheKey(text, cfg)
	if t.cache != nil {
		if cached, ok := t.cache.Get(key); ok {
			return cached, nil
		}
	}

	var audio []byte
	err := t.StreamSynthesize(ctx, text, cfg, func(chunk []byte) error {
		audio = append(audio, chunk...)
		return nil
	})
	if err != nil {
		return orchestrator.AudioBytes{}, err
	}

	result := orchestrator.AudioBytes{Data: audio, Format: "pcm16/24000/1", SampleRate: 24000, Channels: 1}
	if t.cache != nil {
		t.cache.Add(key, result)
	}
	return result, nil
}

// StreamSynthesize implements orchestrator.TTSProvider. Kept uncached:
// callers that want lower-latency playback via streaming accept paying for
// synthesis on every call, trading the cache hit for a head start on audio.
func (t *LokutorTTS) StreamSynthesize(ctx context.Context, text string, cfg orchestrator.AgentConfig, onChunk func([]byte) error) error {
	conn, err := t.getConn(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	req := map[string]interface{}{
		"text":    text,
		"voice":   string(cfg.TTSVoice),
		"lang":    string(cfg.Language),
		"speed":   cfg.TTSRate,
		"pitch":   cfg.TTSPitch,
		"steps":   5,
		"version": "versa-1.0",
	}

	if err := wsjson.Write(ctx, conn, req); err != nil {
		t.conn = nil
		conn.Close(websocket.StatusAbnormalClosure, "failed to write json")
		return fmt.Errorf("failed to send synthesis request: %w", err)
	}

	for {
		messageType, payload, err := conn.Read(ctx)
		if err != nil {
			t.conn = nil
			conn.Close(websocket.StatusAbnormalClosure, "failed to read")
			return fmt.Errorf("failed to read from lokutor: %w", err)
		}

		switch messageType {
		case websocket.MessageBinary:
			if err := onChunk(payload); err != nil {
				return err
			}
		case websocket.MessageText:
			msg := string(payload)
			if msg == "EOS" {
				return nil
			}
			if len(msg) >= 4 && msg[:4] == "ERR:" {
				return fmt.Errorf("lokutor error: %s", msg)
			}
		}
	}
}

// Abort implements orchestrator.TTSProvider by dropping the current
// connection so any in-flight StreamSynthesize read fails immediately
// rather than finishing a turn the room no longer wants spoken.
func (t *LokutorTTS) Abort() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		err := t.conn.Close(websocket.StatusNormalClosure, "aborted")
		t.conn = nil
		return err
	}
	return nil
}

func (t *LokutorTTS) Close() error {
	return t.Abort()
}
