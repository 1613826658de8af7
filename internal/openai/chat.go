package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/metrics"
)

// ChatClient produces answers from a chat model.
type ChatClient struct {
	api        ChatAPI
	model      string
	timeout    time.Duration
	maxRetries int
	backoff    func() backoff.BackOff
}

// NewChatClient creates a chat client for the OpenAI API.
func NewChatClient(cfg Config) (*ChatClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	return NewChatClientWithAPI(NewOpenAIAdapter(cfg), cfg), nil
}

// NewChatClientWithAPI creates a chat client over any ChatAPI.
func NewChatClientWithAPI(api ChatAPI, cfg Config) *ChatClient {
	cfg = cfg.withDefaults()
	return &ChatClient{
		api:        api,
		model:      cfg.ChatModel,
		timeout:    cfg.ChatTimeout,
		maxRetries: cfg.MaxRetries,
		backoff:    newBackOff,
	}
}

// Generate sends the system instruction and user message and returns the
// trimmed answer. Any failure is domain.ErrGeneration; no partial answer is returned.
func (c *ChatClient) Generate(ctx context.Context, system, user string) (string, error) {
	var result ChatResult
	err := retry(ctx, c.backoff(), c.maxRetries, c.timeout, func(ctx context.Context) error {
		var err error
		result, err = c.api.CreateChatCompletion(ctx, system, user)
		return err
	})
	metrics.GenerationRequestsTotal.WithLabelValues(c.model, statusLabel(err)).Inc()

	if err != nil {
		return "", domain.Wrap(domain.ErrGeneration, fmt.Errorf("chat completion: %w", err))
	}

	metrics.GenerationTokensTotal.WithLabelValues(c.model, "prompt").Add(float64(result.PromptTokens))
	metrics.GenerationTokensTotal.WithLabelValues(c.model, "completion").Add(float64(result.CompletionTokens))

	return strings.TrimSpace(result.Content), nil
}
