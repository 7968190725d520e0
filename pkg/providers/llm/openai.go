package llm

import (
	"context"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lokutor-ai/roomcast/pkg/orchestrator"
)

const defaultOpenAIModel = openai.GPT4o

// OpenAICompatLLM implements orchestrator.LLMProvider against any
// OpenAI-compatible chat-completions endpoint. Generalizes the teacher's
// raw-HTTP `pkg/providers/llm/openai.go` client into
// `github.com/sashabaranov/go-openai`. Pointed at a non-default BaseURL it
// also serves Groq's OpenAI-compatible endpoint, the vendor the teacher's
// own `cmd/agent/main.go` already treated as interchangeable with OpenAI.
type OpenAICompatLLM struct {
	client *openai.Client
	model  string
	name   string
}

// NewOpenAILLM constructs a client against the default OpenAI API.
func NewOpenAILLM(apiKey, model string) *OpenAICompatLLM {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAICompatLLM{client: openai.NewClient(apiKey), model: model, name: "openai"}
}

// NewGroqLLM constructs a client against Groq's OpenAI-compatible endpoint.
func NewGroqLLM(apiKey, model string) *OpenAICompatLLM {
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = "https://api.groq.com/openai/v1"
	return &OpenAICompatLLM{client: openai.NewClientWithConfig(cfg), model: model, name: "groq"}
}

// Generate implements orchestrator.LLMProvider.
func (l *OpenAICompatLLM) Generate(ctx context.Context, persona string, history []orchestrator.Message, cfg orchestrator.AgentConfig) (orchestrator.LLMResult, error) {
	model := l.model
	if cfg.LLMModel != "" {
		model = cfg.LLMModel
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if persona != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: persona})
	}
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Kind == orchestrator.KindOutboundText || m.Kind == orchestrator.KindOutboundVoice {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float32(cfg.LLMTemperature),
	}
	if cfg.MaxReplyLength > 0 {
		req.MaxTokens = cfg.MaxReplyLength
	}

	resp, err := l.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return orchestrator.LLMResult{}, err
	}
	if len(resp.Choices) == 0 {
		return orchestrator.LLMResult{ModelTag: model}, nil
	}

	return orchestrator.LLMResult{
		Reply:      resp.Choices[0].Message.Content,
		ModelTag:   model,
		TokenCount: resp.Usage.CompletionTokens,
	}, nil
}

// Available reports whether the provider was constructed.
func (l *OpenAICompatLLM) Available() bool { return l.client != nil }

// Name identifies the concrete vendor behind this client.
func (l *OpenAICompatLLM) Name() string { return l.name }
