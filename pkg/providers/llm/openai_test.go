package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lokutor-ai/roomcast/pkg/orchestrator"
)

func newTestOpenAICompat(t *testing.T, serverURL, name string) *OpenAICompatLLM {
	t.Helper()
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = serverURL
	return &OpenAICompatLLM{client: openai.NewClientWithConfig(cfg), model: "gpt-4o", name: name}
}

func TestOpenAICompatLLM_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Messages[0].Role != openai.ChatMessageRoleSystem {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		resp := openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "hello from openai"}},
			},
			Usage: openai.Usage{CompletionTokens: 4},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	l := newTestOpenAICompat(t, server.URL, "openai")
	history := []orchestrator.Message{{Kind: orchestrator.KindInboundText, Content: "hi"}}

	result, err := l.Generate(context.Background(), "a helpful persona", history, orchestrator.DefaultAgentConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Reply != "hello from openai" {
		t.Errorf("expected 'hello from openai', got %q", result.Reply)
	}
	if l.Name() != "openai" {
		t.Errorf("expected name 'openai', got %q", l.Name())
	}
}
