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

func TestOpenAICompatLLM_GeneratesViaGroqEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		resp := openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "hello from groq"}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	l := newTestOpenAICompat(t, server.URL, "groq")
	history := []orchestrator.Message{{Kind: orchestrator.KindInboundText, Content: "hi"}}

	result, err := l.Generate(context.Background(), "", history, orchestrator.DefaultAgentConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Reply != "hello from groq" {
		t.Errorf("expected 'hello from groq', got %q", result.Reply)
	}
	if l.Name() != "groq" {
		t.Errorf("expected name 'groq', got %q", l.Name())
	}
}
