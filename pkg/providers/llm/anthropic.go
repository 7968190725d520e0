package llm

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/lokutor-ai/roomcast/pkg/orchestrator"
)

const defaultAnthropicModel = "claude-3-5-sonnet-20241022"
const defaultMaxTokens = 1024

// AnthropicLLM implements orchestrator.LLMProvider against the Anthropic
// Messages API. Generalizes the teacher's raw-HTTP
// `pkg/providers/llm/anthropic.go` client into a call through
// `github.com/anthropics/anthropic-sdk-go`.
type AnthropicLLM struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicLLM constructs a client. model defaults to Claude 3.5 Sonnet
// when empty.
func NewAnthropicLLM(apiKey, model string) *AnthropicLLM {
	if model == "" {
		model = defaultAnthropicModel
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicLLM{client: &client, model: model}
}

// Generate implements orchestrator.LLMProvider.
func (l *AnthropicLLM) Generate(ctx context.Context, persona string, history []orchestrator.Message, cfg orchestrator.AgentConfig) (orchestrator.LLMResult, error) {
	model := l.model
	if cfg.LLMModel != "" {
		model = cfg.LLMModel
	}
	maxTokens := int64(defaultMaxTokens)
	if cfg.MaxReplyLength > 0 {
		maxTokens = int64(cfg.MaxReplyLength)
	}

	messages := make([]anthropic.MessageParam, 0, len(history))
	for _, m := range history {
		block := anthropic.NewTextBlock(m.Content)
		if m.Kind == orchestrator.KindOutboundText || m.Kind == orchestrator.KindOutboundVoice {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}
	if len(messages) == 0 {
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock("Introduce yourself.")))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if persona != "" {
		params.System = []anthropic.TextBlockParam{{Text: persona}}
	}

	resp, err := l.client.Messages.New(ctx, params)
	if err != nil {
		return orchestrator.LLMResult{}, err
	}

	var reply strings.Builder
	for _, block := range resp.Content {
		if text := block.Text; text != "" {
			reply.WriteString(text)
		}
	}

	return orchestrator.LLMResult{
		Reply:      reply.String(),
		ModelTag:   model,
		TokenCount: int(resp.Usage.OutputTokens),
	}, nil
}

// Available reports whether the provider holds a client. NewAnthropicLLM
// always sets one, so this is true even when apiKey is empty.
func (l *AnthropicLLM) Available() bool { return l.client != nil }

// Name identifies the provider for metrics and logging.
func (l *AnthropicLLM) Name() string { return "anthropic" }
