// Command roomcast runs the Agent Manager as a long-lived, bus-addressable
// process: it wires every configured provider and the LiveKit Media-Room
// Client factory behind a BusBinder and blocks until terminated.
//
// Generalizes the teacher's cmd/agent/main.go (env-var provider selection,
// godotenv.Load, a single local-mic/speaker loop bound to one session) into
// a process with no local audio device at all — every room attaches over
// the bus and speaks through LiveKit.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"net/http"

	"github.com/lokutor-ai/roomcast/pkg/audio"
	"github.com/lokutor-ai/roomcast/pkg/bus"
	"github.com/lokutor-ai/roomcast/pkg/orchestrator"
	llmProvider "github.com/lokutor-ai/roomcast/pkg/providers/llm"
	"github.com/lokutor-ai/roomcast/pkg/providers/media"
	sttProvider "github.com/lokutor-ai/roomcast/pkg/providers/stt"
	ttsProvider "github.com/lokutor-ai/roomcast/pkg/providers/tts"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: no .env file found, using system environment variables")
	}

	zlog, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("zap: %v", err)
	}
	defer zlog.Sync()
	logger := orchestrator.NewZapLogger(zlog)

	reg := prometheus.NewRegistry()
	metrics := orchestrator.NewMetrics(reg)
	emitter := orchestrator.NewEmitter(metrics)

	llmProviders := buildLLMProviders()
	ttsProviders := buildTTSProviders()
	sttProviders := buildSTTProviders()

	livekitURL := os.Getenv("LIVEKIT_URL")
	livekitKey := os.Getenv("LIVEKIT_API_KEY")
	livekitSecret := os.Getenv("LIVEKIT_API_SECRET")
	if livekitURL == "" || livekitKey == "" {
		log.Fatal("Error: LIVEKIT_URL and LIVEKIT_API_KEY must be set")
	}

	cfg := orchestrator.DefaultConfig()

	mediaFactory := func(ctx context.Context, agentID, roomID string) (orchestrator.MediaRoomClient, error) {
		client := media.NewLiveKitClient(livekitURL, livekitKey, livekitSecret, cfg, logger)
		if err := client.Join(ctx, roomID, agentID); err != nil {
			return nil, err
		}
		return client, nil
	}

	chunker := audio.NewEgressPipeline().Chunk

	ingressFactory := func(vad orchestrator.VADProvider, onSegment func([]byte)) (orchestrator.IngressChain, error) {
		return audio.NewRoomIngressChain(vad, cfg.IngressBucket, onSegment)
	}

	mgr := orchestrator.NewAgentManager(cfg, emitter, metrics, logger, llmProviders, ttsProviders, sttProviders, mediaFactory, chunker, ingressFactory)

	theBus := buildBus()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := theBus.Connect(ctx); err != nil {
		log.Fatalf("bus connect: %v", err)
	}

	binder := orchestrator.NewBusBinder(mgr, theBus, emitter, logger)

	if err := binder.Start(ctx); err != nil {
		log.Fatalf("bus binder start: %v", err)
	}

	if port := os.Getenv("METRICS_PORT"); port != "" {
		go serveMetrics(port, reg, logger)
	}

	logger.Info("roomcast started", "llm_providers", keysOf(llmProviders), "stt_providers", keysOf(sttProviders), "tts_providers", keysOf(ttsProviders))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("roomcast shutting down")
	binder.Stop(ctx)
}

func buildLLMProviders() map[string]orchestrator.LLMProvider {
	providers := make(map[string]orchestrator.LLMProvider)
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		providers["openai"] = llmProvider.NewOpenAILLM(key, envOr("OPENAI_LLM_MODEL", "gpt-4o"))
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		providers["anthropic"] = llmProvider.NewAnthropicLLM(key, envOr("ANTHROPIC_LLM_MODEL", "claude-3-5-sonnet-20241022"))
	}
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		providers["groq"] = llmProvider.NewGroqLLM(key, envOr("GROQ_LLM_MODEL", "llama-3.3-70b-versatile"))
	}
	if len(providers) == 0 {
		log.Fatal("Error: at least one LLM provider API key must be set (OPENAI_API_KEY, ANTHROPIC_API_KEY, or GROQ_API_KEY)")
	}
	return providers
}

func buildSTTProviders() map[string]orchestrator.STTProvider {
	providers := make(map[string]orchestrator.STTProvider)
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		providers["openai"] = sttProvider.NewOpenAISTT(key, envOr("OPENAI_STT_MODEL", "whisper-1"))
	}
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		providers["groq"] = sttProvider.NewGroqSTT(key, envOr("GROQ_STT_MODEL", "whisper-large-v3-turbo"))
	}
	if key := os.Getenv("DEEPGRAM_API_KEY"); key != "" {
		providers["deepgram"] = sttProvider.NewDeepgramSTT(key)
		providers["deepgram-stream"] = sttProvider.NewDeepgramStreamSTT(key)
	}
	if key := os.Getenv("ASSEMBLYAI_API_KEY"); key != "" {
		providers["assemblyai"] = sttProvider.NewAssemblyAISTT(key)
	}
	if len(providers) == 0 {
		log.Fatal("Error: at least one STT provider API key must be set")
	}
	return providers
}

func buildTTSProviders() map[string]orchestrator.TTSProvider {
	key := os.Getenv("LOKUTOR_API_KEY")
	if key == "" {
		log.Fatal("Error: LOKUTOR_API_KEY must be set")
	}
	return map[string]orchestrator.TTSProvider{
		"lokutor": ttsProvider.NewLokutorTTS(key),
	}
}

func buildBus() bus.Bus {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return bus.NewInMemoryBus()
	}

	db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	redisBus, err := bus.NewRedisBus(context.Background(), bus.RedisConfig{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		PoolSize: 10,
	})
	if err != nil {
		log.Fatalf("redis bus: %v", err)
	}
	return redisBus
}

func serveMetrics(port string, reg *prometheus.Registry, logger orchestrator.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	addr := ":" + port
	logger.Info("metrics server listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "err", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func keysOf[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
