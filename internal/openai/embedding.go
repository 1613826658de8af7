package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/metrics"
)

// Client generates embeddings of a fixed dimension.
type Client struct {
	api        EmbeddingAPI
	model      string
	dimensions int
	timeout    time.Duration
	maxRetries int
	backoff    func() backoff.BackOff
}

// NewClient creates an embedding client for the OpenAI API.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	return NewClientWithAPI(NewOpenAIAdapter(cfg), cfg), nil
}

// NewClientWithAPI creates an embedding client over any EmbeddingAPI.
func NewClientWithAPI(api EmbeddingAPI, cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		api:        api,
		model:      cfg.EmbeddingModel,
		dimensions: cfg.EmbeddingDimensions,
		timeout:    cfg.EmbedTimeout,
		maxRetries: cfg.MaxRetries,
		backoff:    newBackOff,
	}
}

// Model returns the embedding model name.
func (c *Client) Model() string {
	return c.model
}

// Dimensions returns the length of every vector this client produces.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Embed returns the embedding of text. A transport or API failure is reported as
// domain.ErrEmbedding and a vector of the wrong length as domain.ErrDimensionMismatch,
// so callers can skip the single item.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	start := time.Now()
	var embedding []float32
	err := retry(ctx, c.backoff(), c.maxRetries, c.timeout, func(ctx context.Context) error {
		var err error
		embedding, err = c.api.CreateEmbeddings(ctx, text)
		return err
	})
	metrics.EmbeddingRequestDuration.WithLabelValues(c.model).Observe(time.Since(start).Seconds())
	metrics.EmbeddingRequestsTotal.WithLabelValues(c.model, statusLabel(err)).Inc()

	if err != nil {
		return nil, domain.Wrap(domain.ErrEmbedding, fmt.Errorf("failed to create embedding: %w", err))
	}

	if len(embedding) != c.dimensions {
		return nil, domain.Wrap(domain.ErrDimensionMismatch,
			fmt.Errorf("model %s returned %d dimensions, expected %d", c.model, len(embedding), c.dimensions))
	}

	return embedding, nil
}
