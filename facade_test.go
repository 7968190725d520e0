package roomcast

import (
	"context"
	"testing"
	"time"

	"github.com/lokutor-ai/roomcast/pkg/bus"
	"github.com/lokutor-ai/roomcast/pkg/orchestrator"
)

type facadeFakeLLM struct{}

func (facadeFakeLLM) Generate(ctx context.Context, persona string, history []orchestrator.Message, cfg orchestrator.AgentConfig) (orchestrator.LLMResult, error) {
	return orchestrator.LLMResult{Reply: "hello"}, nil
}
func (facadeFakeLLM) Available() bool { return true }
func (facadeFakeLLM) Name() string    { return "facade-fake-llm" }

func newTestClient(t *testing.T) *Client {
	t.Helper()
	metrics := orchestrator.NewNoOpMetrics()
	emitter := orchestrator.NewEmitter(metrics)
	llmProviders := map[string]orchestrator.LLMProvider{"fake": facadeFakeLLM{}}
	mgr := orchestrator.NewAgentManager(orchestrator.DefaultConfig(), emitter, metrics, nil, llmProviders, nil, nil, nil, nil, nil)
	client := New(mgr, bus.NewInMemoryBus(), emitter, nil)
	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { client.Stop(context.Background()) })
	return client
}

func TestClient_CreateAgentAndStats(t *testing.T) {
	client := newTestClient(t)

	cfg := orchestrator.DefaultAgentConfig()
	cfg.LLMProvider = "fake"
	agent, err := client.CreateAgent("a1", "a cheerful host", cfg)
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if agent.ID != "a1" {
		t.Errorf("expected a1, got %s", agent.ID)
	}

	stats := client.Stats()
	if stats.AgentCount != 1 {
		t.Errorf("expected 1 agent, got %d", stats.AgentCount)
	}

	got, err := client.Agent("a1")
	if err != nil || got.ID != "a1" {
		t.Errorf("expected to find a1, got %v err=%v", got, err)
	}
}

func TestClient_DeleteAgent(t *testing.T) {
	client := newTestClient(t)
	if _, err := client.CreateAgent("a1", "persona", orchestrator.DefaultAgentConfig()); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if err := client.DeleteAgent("a1"); err != nil {
		t.Fatalf("DeleteAgent: %v", err)
	}
	if _, err := client.Agent("a1"); err == nil {
		t.Error("expected a1 to be gone after DeleteAgent")
	}
}

func TestClient_StringReportsCounts(t *testing.T) {
	client := newTestClient(t)
	if _, err := client.CreateAgent("a1", "persona", orchestrator.DefaultAgentConfig()); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	s := client.String()
	if s != "roomcast.Client{agents=1 rooms=0}" {
		t.Errorf("expected counts agents=1 rooms=0, got %q", s)
	}
}
