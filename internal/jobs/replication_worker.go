package jobs

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cloo-solutions/docqa/internal/userindex"
)

const (
	// MaxRetries is the number of failed replication attempts after which an
	// index generation is left alone until the user saves a new one or the
	// process restarts.
	MaxRetries = 3
)

// Replicator finds and uploads user indexes that only exist locally.
type Replicator interface {
	PendingReplication() ([]userindex.PendingIndex, error)
	Replicate(ctx context.Context, userID string) error
}

// ReplicationWorker replays the blob-store phase of index saves that failed.
type ReplicationWorker struct {
	store  Replicator
	logger *zap.Logger

	mu       sync.Mutex
	attempts map[string]retryState
}

// retryState counts failed replications of one index generation.
type retryState struct {
	generation string
	failures   int
}

// NewReplicationWorker creates a new ReplicationWorker instance
func NewReplicationWorker(store Replicator, logger *zap.Logger) *ReplicationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReplicationWorker{
		store:    store,
		logger:   logger,
		attempts: make(map[string]retryState),
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *ReplicationWorker) ProcessJobs(ctx context.Context) error {
	pending, err := w.store.PendingReplication()
	if err != nil {
		return fmt.Errorf("failed to list pending replications: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if a, ok := w.attempts[p.UserID]; ok && a.generation != p.Generation {
			delete(w.attempts, p.UserID)
		}
		if w.attempts[p.UserID].failures >= MaxRetries {
			continue
		}
		w.replicate(ctx, p)
	}

	return nil
}

func (w *ReplicationWorker) replicate(ctx context.Context, p userindex.PendingIndex) {
	log := w.logger.With(zap.String("user_id", p.UserID), zap.String("generation", p.Generation))

	if err := w.store.Replicate(ctx, p.UserID); err != nil {
		a := w.attempts[p.UserID]
		a.generation = p.Generation
		a.failures++
		w.attempts[p.UserID] = a
		attempt := a.failures
		if attempt >= MaxRetries {
			log.Error("replication exceeded max retries, giving up on this generation",
				zap.Int("max_retries", MaxRetries), zap.Error(err))
			return
		}
		log.Warn("replication failed, will retry",
			zap.Int("attempt", attempt), zap.Int("max_retries", MaxRetries), zap.Error(err))
		return
	}

	delete(w.attempts, p.UserID)
	log.Info("pending user index replicated")
}

// Attempts reports how many times replication of userID's current pending
// generation has failed.
func (w *ReplicationWorker) Attempts(userID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.attempts[userID].failures
}
