package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tobin/anthology-api/internal/config"
	"github.com/tobin/anthology-api/internal/generation"
)

// anthropicMaxTokens bounds the response size of one completion call.
const anthropicMaxTokens = 2048

// AnthropicCompleter implements generation.Completer using the
// Anthropic Messages API.
type AnthropicCompleter struct {
	client       *anthropic.Client
	defaultModel string
	logger       *slog.Logger
}

// Ensure AnthropicCompleter implements the Completer interface.
var _ generation.Completer = (*AnthropicCompleter)(nil)

// NewAnthropicCompleter creates an Anthropic-backed completer from the
// LLM configuration.
func NewAnthropicCompleter(cfg config.LLMConfig, logger *slog.Logger) (*AnthropicCompleter, error) {
	if cfg.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("%w: anthropic API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey))

	return &AnthropicCompleter{
		client:       &client,
		defaultModel: cfg.ModelName,
		logger:       logger.With("component", "anthropic_completer"),
	}, nil
}

// Complete implements generation.Completer.
func (a *AnthropicCompleter) Complete(ctx context.Context, req generation.CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: anthropicMaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: req.System},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", generation.ErrExternalCall, err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		b.WriteString(block.Text)
	}

	text := b.String()
	if text == "" {
		return "", fmt.Errorf("%w: empty response", generation.ErrInvalidResponse)
	}

	return text, nil
}
