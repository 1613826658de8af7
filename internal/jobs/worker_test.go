package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/userindex"
)

// MockJobProcessor is a mock implementation of JobProcessor
type MockJobProcessor struct {
	mock.Mock
}

func (m *MockJobProcessor) ProcessJobs(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockReplicator is a mock implementation of Replicator
type MockReplicator struct {
	mock.Mock
}

func (m *MockReplicator) PendingReplication() ([]userindex.PendingIndex, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]userindex.PendingIndex), args.Error(1)
}

func pending(users ...string) []userindex.PendingIndex {
	out := make([]userindex.PendingIndex, len(users))
	for i, u := range users {
		out[i] = userindex.PendingIndex{UserID: u, Generation: "gen-1"}
	}
	return out
}

func (m *MockReplicator) Replicate(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// TestWorker_StartStop tests the worker start and stop functionality
func TestWorker_StartStop(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker(mockProcessor, 100*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(250 * time.Millisecond)

	worker.Stop()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

// TestWorker_ContextCancellation tests worker stops on context cancellation
func TestWorker_ContextCancellation(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(errors.New("transient"))

	worker := NewWorker(mockProcessor, 100*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(150 * time.Millisecond)

	cancel()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

func TestReplicationWorker_ProcessJobs_NothingPending(t *testing.T) {
	store := new(MockReplicator)
	store.On("PendingReplication").Return(pending(), nil)

	worker := NewReplicationWorker(store, nil)
	require.NoError(t, worker.ProcessJobs(context.Background()))

	store.AssertNotCalled(t, "Replicate", mock.Anything, mock.Anything)
}

func TestReplicationWorker_ProcessJobs_Success(t *testing.T) {
	ctx := context.Background()
	store := new(MockReplicator)
	store.On("PendingReplication").Return(pending("alice", "bob"), nil)
	store.On("Replicate", ctx, "alice").Return(nil)
	store.On("Replicate", ctx, "bob").Return(nil)

	worker := NewReplicationWorker(store, nil)
	require.NoError(t, worker.ProcessJobs(ctx))

	store.AssertExpectations(t)
	assert.Zero(t, worker.Attempts("alice"))
}

func TestReplicationWorker_ProcessJobs_FailureWithRetry(t *testing.T) {
	ctx := context.Background()
	store := new(MockReplicator)
	store.On("PendingReplication").Return(pending("alice"), nil)
	store.On("Replicate", ctx, "alice").Return(domain.ErrBlobStore).Once()
	store.On("Replicate", ctx, "alice").Return(nil).Once()

	worker := NewReplicationWorker(store, nil)

	require.NoError(t, worker.ProcessJobs(ctx))
	assert.Equal(t, 1, worker.Attempts("alice"))

	require.NoError(t, worker.ProcessJobs(ctx))
	assert.Zero(t, worker.Attempts("alice"), "success resets the attempt count")
	store.AssertNumberOfCalls(t, "Replicate", 2)
}

func TestReplicationWorker_ProcessJobs_MaxRetriesExceeded(t *testing.T) {
	ctx := context.Background()
	store := new(MockReplicator)
	store.On("PendingReplication").Return(pending("alice"), nil)
	store.On("Replicate", ctx, "alice").Return(domain.ErrBlobStore)

	worker := NewReplicationWorker(store, nil)
	for i := 0; i < MaxRetries+2; i++ {
		require.NoError(t, worker.ProcessJobs(ctx))
	}

	store.AssertNumberOfCalls(t, "Replicate", MaxRetries)
	assert.Equal(t, MaxRetries, worker.Attempts("alice"))
}

func TestReplicationWorker_ProcessJobs_NewGenerationResetsRetries(t *testing.T) {
	ctx := context.Background()
	store := new(MockReplicator)
	store.On("PendingReplication").Return(pending("alice"), nil).Times(MaxRetries + 1)
	store.On("PendingReplication").Return([]userindex.PendingIndex{{UserID: "alice", Generation: "gen-2"}}, nil)
	store.On("Replicate", ctx, "alice").Return(domain.ErrBlobStore).Times(MaxRetries)
	store.On("Replicate", ctx, "alice").Return(nil).Once()

	worker := NewReplicationWorker(store, nil)
	for i := 0; i < MaxRetries+1; i++ {
		require.NoError(t, worker.ProcessJobs(ctx))
	}
	store.AssertNumberOfCalls(t, "Replicate", MaxRetries)
	assert.Equal(t, MaxRetries, worker.Attempts("alice"))

	require.NoError(t, worker.ProcessJobs(ctx))
	store.AssertNumberOfCalls(t, "Replicate", MaxRetries+1)
	assert.Zero(t, worker.Attempts("alice"), "a newer generation is replicated despite earlier failures")
}

func TestReplicationWorker_ProcessJobs_OneFailureDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	store := new(MockReplicator)
	store.On("PendingReplication").Return(pending("alice", "bob"), nil)
	store.On("Replicate", ctx, "alice").Return(domain.ErrBlobStore)
	store.On("Replicate", ctx, "bob").Return(nil)

	worker := NewReplicationWorker(store, nil)
	require.NoError(t, worker.ProcessJobs(ctx))

	store.AssertExpectations(t)
	assert.Equal(t, 1, worker.Attempts("alice"))
	assert.Zero(t, worker.Attempts("bob"))
}

func TestReplicationWorker_ProcessJobs_ListError(t *testing.T) {
	store := new(MockReplicator)
	store.On("PendingReplication").Return(nil, errors.New("permission denied"))

	worker := NewReplicationWorker(store, nil)
	err := worker.ProcessJobs(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list pending replications")
}
