package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/storage"
	"github.com/cloo-solutions/docqa/internal/userindex"
)

const testDims = 3

// textVector derives a deterministic embedding from text.
func textVector(text string) []float32 {
	return []float32{float32(len(text)), float32(text[0]), float32(text[len(text)-1])}
}

// fakeEmbedder embeds deterministically and fails for texts listed in fail.
type fakeEmbedder struct {
	mu    sync.Mutex
	fail  map[string]error
	calls []string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	if err, ok := f.fail[text]; ok {
		return nil, err
	}
	return textVector(text), nil
}

func (f *fakeEmbedder) Dimensions() int { return testDims }
func (f *fakeEmbedder) Model() string   { return "fake-embedding" }

var errRateLimited = domain.Wrap(domain.ErrEmbedding, errors.New("429 rate limited"))

// MockSplitter mocks document loading and chunking
type MockSplitter struct {
	mock.Mock
}

func (m *MockSplitter) LoadAndSplit(ctx context.Context, path string) ([]domain.Passage, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Passage), args.Error(1)
}

// MockGenerator mocks the chat model
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	args := m.Called(ctx, system, user)
	return args.String(0), args.Error(1)
}

// MockBlobStore mocks the blob store used for uploads
type MockBlobStore struct {
	mock.Mock
}

func (m *MockBlobStore) Put(ctx context.Context, localPath, key string) error {
	args := m.Called(ctx, localPath, key)
	return args.Error(0)
}

func (m *MockBlobStore) DeletePrefix(ctx context.Context, prefix string) error {
	args := m.Called(ctx, prefix)
	return args.Error(0)
}

// MockSigningBlobStore is a blob store that can also sign download links
type MockSigningBlobStore struct {
	MockBlobStore
}

func (m *MockSigningBlobStore) GenerateDownloadURL(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

// newTestStore returns a user index store replicating into a temporary directory.
func newTestStore(t *testing.T) (*userindex.Store, *storage.LocalStore) {
	t.Helper()
	blobs := storage.NewLocalStore(t.TempDir())
	return userindex.NewStore(t.TempDir(), blobs, zap.NewNop()), blobs
}

func passages(source string, texts ...string) []domain.Passage {
	out := make([]domain.Passage, len(texts))
	for i, text := range texts {
		out[i] = domain.Passage{Text: text, Source: source, Page: 1}
	}
	return out
}
