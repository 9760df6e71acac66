package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tobin/anthology-api/internal/config"
	"github.com/tobin/anthology-api/internal/generation"
)

// NewCompleter builds the configured completion client.
func NewCompleter(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (generation.Completer, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiCompleter(ctx, cfg, logger)
	case "anthropic":
		return NewAnthropicCompleter(cfg, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", generation.ErrInvalidConfig, cfg.Provider)
	}
}
