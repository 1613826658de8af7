package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/metrics"
	"github.com/cloo-solutions/docqa/internal/telemetry"
	"github.com/cloo-solutions/docqa/internal/textclean"
)

// SystemPrompt restricts the chat model to the retrieved context.
const SystemPrompt = "Answer the question based only on the provided context."

// DefaultTopK is the number of passages retrieved when the caller does not say.
const DefaultTopK = 5

// Generator answers a prompt made of a system instruction and a user message.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// QueryLogRecorder stores a record of each answered question.
type QueryLogRecorder interface {
	Record(ctx context.Context, entry *domain.QueryLog) error
}

// QueryEngine answers questions from a user's index.
type QueryEngine struct {
	store     IndexStore
	embedder  Embedder
	generator Generator
	queryLog  QueryLogRecorder
	topK      int
	logger    *zap.Logger
}

// NewQueryEngine creates a QueryEngine. topK <= 0 selects DefaultTopK.
func NewQueryEngine(store IndexStore, embedder Embedder, generator Generator, topK int, logger *zap.Logger) *QueryEngine {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryEngine{
		store:     store,
		embedder:  embedder,
		generator: generator,
		topK:      topK,
		logger:    logger,
	}
}

// WithQueryLog records every question in log.
func (q *QueryEngine) WithQueryLog(log QueryLogRecorder) *QueryEngine {
	q.queryLog = log
	return q
}

// BuildContext joins passages nearest first, separated by a blank line.
func BuildContext(hits []domain.Hit) string {
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	return strings.Join(texts, "\n\n")
}

// BuildUserPrompt places the context block before the literal question.
func BuildUserPrompt(contextBlock, question string) string {
	return fmt.Sprintf("Context:\n%s\n\nQuestion:\n%s", contextBlock, question)
}

// Ask answers question from userID's index using the topK nearest passages.
// topK <= 0 selects the engine default.
func (q *QueryEngine) Ask(ctx context.Context, userID, question string, topK int) (result *domain.QueryResult, err error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(question) == "" {
		return nil, domain.ErrEmptyQuery
	}
	normalized := textclean.Normalize(question)
	if strings.TrimSpace(normalized) == "" {
		return nil, domain.ErrNoSearchableText
	}
	if topK <= 0 {
		topK = q.topK
	}

	ctx, span := telemetry.StartSpan(ctx, "query.ask", telemetry.SpanAttributes{
		UserID:    userID,
		Operation: "ask",
	})
	defer span.End()

	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
			span.SetError(err)
		}
		metrics.QueryDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
		q.record(ctx, userID, question, topK, result, err, time.Since(start))
	}()

	ix, err := q.store.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if model := ix.Manifest.Model; model != "" && model != q.embedder.Model() {
		return nil, domain.Wrap(domain.ErrModelMismatch,
			fmt.Errorf("index built with %q, embedder is %q", model, q.embedder.Model()))
	}

	embedding, err := q.embedder.Embed(ctx, normalized)
	if err != nil {
		return nil, err
	}

	hits, err := ix.Search(embedding, topK)
	if err != nil {
		return nil, err
	}
	telemetry.AddBreadcrumb(ctx, "query", fmt.Sprintf("retrieved %d passages", len(hits)))

	answer, err := q.generator.Generate(ctx, SystemPrompt, BuildUserPrompt(BuildContext(hits), question))
	if err != nil {
		return nil, err
	}

	return &domain.QueryResult{
		Answer:  answer,
		Sources: hits,
	}, nil
}

func (q *QueryEngine) record(ctx context.Context, userID, question string, topK int, result *domain.QueryResult, err error, elapsed time.Duration) {
	if q.queryLog == nil {
		return
	}
	entry := &domain.QueryLog{
		UserID:     userID,
		Query:      question,
		TopK:       topK,
		DurationMs: elapsed.Milliseconds(),
		Failed:     err != nil,
		CreatedAt:  time.Now().UTC(),
	}
	if result != nil {
		entry.Passages = len(result.Sources)
	}
	if recErr := q.queryLog.Record(context.WithoutCancel(ctx), entry); recErr != nil {
		q.logger.Warn("failed to record query log", zap.String("user_id", userID), zap.Error(recErr))
	}
}
