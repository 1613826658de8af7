package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/metrics"
	"github.com/cloo-solutions/docqa/internal/telemetry"
	"github.com/cloo-solutions/docqa/internal/textclean"
	"github.com/cloo-solutions/docqa/internal/userindex"
	"github.com/cloo-solutions/docqa/internal/vectorindex"
)

// Embedder maps text to a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Model() string
}

// PassageSplitter loads a document and splits it into passages.
type PassageSplitter interface {
	LoadAndSplit(ctx context.Context, path string) ([]domain.Passage, error)
}

// IndexStore persists user indexes.
type IndexStore interface {
	Save(ctx context.Context, userID string, vectors *vectorindex.Flat, passages []domain.Passage, model string) (userindex.Manifest, error)
	Load(ctx context.Context, userID string) (*userindex.Index, error)
	Delete(ctx context.Context, userID string) error
}

// BuildResult summarizes one index build.
type BuildResult struct {
	Manifest userindex.Manifest
	Passages int
	Skipped  int
}

// IndexBuilder turns a user's PDFs into a persisted user index.
type IndexBuilder struct {
	splitter PassageSplitter
	embedder Embedder
	store    IndexStore
	logger   *zap.Logger
}

// NewIndexBuilder creates an IndexBuilder.
func NewIndexBuilder(splitter PassageSplitter, embedder Embedder, store IndexStore, logger *zap.Logger) *IndexBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IndexBuilder{
		splitter: splitter,
		embedder: embedder,
		store:    store,
		logger:   logger,
	}
}

// Build chunks, normalizes and embeds every document in paths, then replaces
// the user's index with the result. Passages whose embedding fails are logged
// and skipped. If nothing could be embedded, domain.ErrEmptyIndex is returned
// and no index is written.
func (b *IndexBuilder) Build(ctx context.Context, userID string, paths []string) (result *BuildResult, err error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "index.build", telemetry.SpanAttributes{
		UserID:    userID,
		Operation: "build",
	})
	defer span.End()
	defer func() {
		switch {
		case err == nil:
			metrics.IndexBuildsTotal.WithLabelValues("ok").Inc()
		case errors.Is(err, domain.ErrEmptyIndex):
			metrics.IndexBuildsTotal.WithLabelValues("empty").Inc()
		default:
			metrics.IndexBuildsTotal.WithLabelValues("error").Inc()
			span.SetError(err)
		}
	}()

	var chunks []domain.Passage
	for _, path := range paths {
		passages, err := b.split(ctx, userID, path)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, passages...)
	}

	vectors, err := vectorindex.NewFlat(b.embedder.Dimensions())
	if err != nil {
		return nil, err
	}

	log := b.logger.With(zap.String("user_id", userID))
	kept := make([]domain.Passage, 0, len(chunks))
	skipped := 0

	for i, chunk := range chunks {
		text := textclean.Normalize(chunk.Text)
		if text == "" {
			continue
		}

		embedding, err := b.embedder.Embed(ctx, text)
		if err == nil {
			err = vectors.Add(embedding)
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			skipped++
			metrics.IndexSkippedChunksTotal.Inc()
			log.Warn("embedding failed for a chunk, skipping",
				zap.String("document", chunk.Source),
				zap.Int("page", chunk.Page),
				zap.Int("chunk", i),
				zap.Error(err))
			continue
		}

		kept = append(kept, domain.Passage{
			Text:     text,
			Source:   chunk.Source,
			Page:     chunk.Page,
			Position: len(kept),
		})
	}

	if len(kept) == 0 {
		log.Warn("no embeddings were created, index not written",
			zap.Int("chunks", len(chunks)),
			zap.Int("skipped", skipped))
		return nil, domain.ErrEmptyIndex
	}

	manifest, err := b.store.Save(ctx, userID, vectors, kept, b.embedder.Model())
	if err != nil {
		return nil, fmt.Errorf("save user index: %w", err)
	}

	metrics.IndexPassagesTotal.Add(float64(len(kept)))
	log.Info("user index built",
		zap.Int("documents", len(paths)),
		zap.Int("passages", len(kept)),
		zap.Int("skipped", skipped),
		zap.Bool("replicated", manifest.Replicated))

	return &BuildResult{
		Manifest: manifest,
		Passages: len(kept),
		Skipped:  skipped,
	}, nil
}

// split loads one document under its own span.
func (b *IndexBuilder) split(ctx context.Context, userID, path string) ([]domain.Passage, error) {
	name := filepath.Base(path)
	ctx, span := telemetry.StartSpan(ctx, "index.split", telemetry.SpanAttributes{
		UserID:    userID,
		Document:  name,
		Operation: "split",
	})
	defer span.End()

	passages, err := b.splitter.LoadAndSplit(ctx, path)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	telemetry.AddBreadcrumb(ctx, "index", fmt.Sprintf("%s split into %d passages", name, len(passages)))
	return passages, nil
}
