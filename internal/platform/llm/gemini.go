package llm

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/tobin/anthology-api/internal/config"
	"github.com/tobin/anthology-api/internal/generation"
	"google.golang.org/genai"
)

// GeminiCompleter implements generation.Completer using Google's Gemini
// API, with exponential-backoff retries on transient failures.
type GeminiCompleter struct {
	client            *genai.Client
	defaultModel      string
	maxRetries        int
	retryDelaySeconds int
	logger            *slog.Logger
}

// Ensure GeminiCompleter implements the Completer interface.
var _ generation.Completer = (*GeminiCompleter)(nil)

// NewGeminiCompleter creates a Gemini-backed completer from the LLM
// configuration.
func NewGeminiCompleter(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*GeminiCompleter, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 3
	}
	retryDelay := cfg.RetryDelaySeconds
	if retryDelay < 1 {
		retryDelay = 2
	}

	return &GeminiCompleter{
		client:            client,
		defaultModel:      cfg.ModelName,
		maxRetries:        maxRetries,
		retryDelaySeconds: retryDelay,
		logger:            logger.With("component", "gemini_completer"),
	}, nil
}

// Complete implements generation.Completer. API-level errors are
// retried with exponential backoff and jitter; an empty response is
// permanent and returned immediately.
func (g *GeminiCompleter) Complete(ctx context.Context, req generation.CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = g.defaultModel
	}

	genCfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(req.User), genCfg)
		if err == nil {
			text := resp.Text()
			if text == "" {
				return "", fmt.Errorf("%w: empty response", generation.ErrInvalidResponse)
			}
			return text, nil
		}

		lastErr = err
		g.logger.Warn("gemini call failed",
			"attempt", attempt+1,
			"max_attempts", g.maxRetries+1,
			"error", err)

		if attempt == g.maxRetries {
			break
		}

		// Exponential backoff with jitter:
		// delay = base * 2^attempt * (0.5 + rand(0, 0.5))
		backoff := float64(g.retryDelaySeconds) * math.Pow(2, float64(attempt))
		jitter := 0.5 + rng.Float64()*0.5
		delay := time.Duration(backoff * jitter * float64(time.Second))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", generation.ErrExternalCall, ctx.Err())
		}
	}

	return "", fmt.Errorf("%w: exceeded %d attempts: %v",
		generation.ErrTransientFailure, g.maxRetries+1, lastErr)
}
