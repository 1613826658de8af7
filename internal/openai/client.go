package openai

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultEmbeddingModel is the model used for passage and query embeddings
	DefaultEmbeddingModel = string(openai.SmallEmbedding3)
	// DefaultEmbeddingDimensions is the vector length produced by the default model
	DefaultEmbeddingDimensions = 1536
	// DefaultChatModel answers questions from retrieved context
	DefaultChatModel = openai.GPT3Dot5Turbo

	defaultEmbedTimeout = 30 * time.Second
	defaultChatTimeout  = 60 * time.Second
	defaultMaxRetries   = 2
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrNoAPIKey is returned when no OpenAI API key is configured
	ErrNoAPIKey = errors.New("OpenAI API key not set")
	// ErrNoChoices is returned when a chat completion carries no choices
	ErrNoChoices = errors.New("no choices in chat completion response")
)

// EmbeddingAPI defines the interface for embedding generation
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, text string) ([]float32, error)
}

// ChatAPI sends a system instruction and a user message to a chat model.
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, system, user string) (ChatResult, error)
}

// ChatResult is the first choice of a chat completion plus token usage.
type ChatResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Config holds the endpoint and model settings for both clients.
type Config struct {
	APIKey              string
	BaseURL             string
	EmbeddingModel      string
	EmbeddingDimensions int
	ChatModel           string
	EmbedTimeout        time.Duration
	ChatTimeout         time.Duration
	// MaxRetries of zero selects the default; a negative value disables retries.
	MaxRetries int
}

func (c Config) withDefaults() Config {
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = DefaultEmbeddingModel
	}
	if c.EmbeddingDimensions <= 0 {
		c.EmbeddingDimensions = DefaultEmbeddingDimensions
	}
	if c.ChatModel == "" {
		c.ChatModel = DefaultChatModel
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = defaultEmbedTimeout
	}
	if c.ChatTimeout <= 0 {
		c.ChatTimeout = defaultChatTimeout
	}
	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = defaultMaxRetries
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	}
	return c
}

// OpenAIAdapter implements EmbeddingAPI and ChatAPI on top of go-openai.
type OpenAIAdapter struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	chatModel  string
}

// NewOpenAIAdapter creates an adapter. BaseURL may point at any OpenAI-compatible endpoint.
func NewOpenAIAdapter(cfg Config) *OpenAIAdapter {
	cfg = cfg.withDefaults()

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIAdapter{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      openai.EmbeddingModel(cfg.EmbeddingModel),
		dimensions: cfg.EmbeddingDimensions,
		chatModel:  cfg.ChatModel,
	}
}

// CreateEmbeddings calls the OpenAI API to create embeddings
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: a.model,
	}
	// only the text-embedding-3 family accepts an explicit dimension
	if strings.HasPrefix(string(a.model), "text-embedding-3") {
		req.Dimensions = a.dimensions
	}

	resp, err := a.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned")
	}

	return resp.Data[0].Embedding, nil
}

// CreateChatCompletion calls the chat completions endpoint with a two-message prompt.
func (a *OpenAIAdapter) CreateChatCompletion(ctx context.Context, system, user string) (ChatResult, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return ChatResult{}, err
	}

	if len(resp.Choices) == 0 {
		return ChatResult{}, ErrNoChoices
	}

	return ChatResult{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// retry runs op with a per-attempt timeout and bounded exponential backoff.
// Errors that retrying cannot fix are returned after the first attempt.
func retry(ctx context.Context, b backoff.BackOff, maxRetries int, timeout time.Duration, op func(ctx context.Context) error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)

	return backoff.Retry(func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		err := op(attemptCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

// isRetryable reports whether err is a transient failure: a timeout, a network
// error, rate limiting or a server-side error.
func isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500 || reqErr.HTTPStatusCode == 0
	}

	return false
}

func newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	return b
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
