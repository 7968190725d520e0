package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/lokutor-ai/roomcast/pkg/orchestrator"
)

func TestAnthropicLLM_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var req struct {
			Model  string `json:"model"`
			System []struct {
				Text string `json:"text"`
			} `json:"system"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if len(req.System) == 0 || req.System[0].Text != "a helpful persona" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		resp := map[string]interface{}{
			"id":          "msg_1",
			"type":        "message",
			"role":        "assistant",
			"model":       req.Model,
			"stop_reason": "end_turn",
			"content": []map[string]string{
				{"type": "text", "text": "hello from anthropic"},
			},
			"usage": map[string]int{"input_tokens": 5, "output_tokens": 3},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := anthropic.NewClient(option.WithAPIKey("test-key"), option.WithBaseURL(server.URL))
	l := &AnthropicLLM{client: &client, model: "claude-3"}

	history := []orchestrator.Message{
		{Kind: orchestrator.KindInboundText, Content: "hi"},
	}
	result, err := l.Generate(context.Background(), "a helpful persona", history, orchestrator.DefaultAgentConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Reply != "hello from anthropic" {
		t.Errorf("expected 'hello from anthropic', got %q", result.Reply)
	}
	if result.TokenCount != 3 {
		t.Errorf("expected token count 3, got %d", result.TokenCount)
	}
}
