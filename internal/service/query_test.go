package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docqa/internal/document"
	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/testutil"
	"github.com/cloo-solutions/docqa/internal/userindex"
	"github.com/cloo-solutions/docqa/internal/vectorindex"
)

// staticIndexStore serves a fixed index for every user.
type staticIndexStore struct {
	ix *userindex.Index
}

func (s *staticIndexStore) Save(context.Context, string, *vectorindex.Flat, []domain.Passage, string) (userindex.Manifest, error) {
	return userindex.Manifest{}, errors.New("read only")
}

func (s *staticIndexStore) Load(context.Context, string) (*userindex.Index, error) {
	return s.ix, nil
}

func (s *staticIndexStore) Delete(context.Context, string) error { return nil }

// MockQueryLog mocks the query log repository
type MockQueryLog struct {
	mock.Mock
}

func (m *MockQueryLog) Record(ctx context.Context, entry *domain.QueryLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func buildIndex(t *testing.T, store *userindex.Store, userID string, texts ...string) {
	t.Helper()
	splitter := new(MockSplitter)
	splitter.On("LoadAndSplit", mock.Anything, "doc.pdf").Return(passages("doc.pdf", texts...), nil)
	_, err := NewIndexBuilder(splitter, &fakeEmbedder{}, store, nil).Build(context.Background(), userID, []string{"doc.pdf"})
	require.NoError(t, err)
}

func TestBuildUserPrompt(t *testing.T) {
	got := BuildUserPrompt("first\n\nsecond", "What is it?")
	assert.Equal(t, "Context:\nfirst\n\nsecond\n\nQuestion:\nWhat is it?", got)
}

func TestBuildContext(t *testing.T) {
	assert.Equal(t, "", BuildContext(nil))

	hits := []domain.Hit{
		{Passage: domain.Passage{Text: "a", Source: "x.pdf"}, Distance: 1},
		{Passage: domain.Passage{Text: "b", Source: "x.pdf"}, Distance: 4},
	}
	assert.Equal(t, "a\n\nb", BuildContext(hits))
}

// modelEmbedder reports a different model name than fakeEmbedder.
type modelEmbedder struct {
	*fakeEmbedder
	model string
}

func (m modelEmbedder) Model() string { return m.model }

func TestQueryEngine_Ask_TopKLargerThanIndex(t *testing.T) {
	store, _ := newTestStore(t)
	buildIndex(t, store, "alice", "alpha passage", "beta passage", "gamma passage")

	generator := new(MockGenerator)
	generator.On("Generate", mock.Anything, SystemPrompt, mock.AnythingOfType("string")).Return("an answer", nil)

	engine := NewQueryEngine(store, &fakeEmbedder{}, generator, 0, nil)
	result, err := engine.Ask(context.Background(), "alice", "which passage?", 5)

	require.NoError(t, err)
	assert.Equal(t, "an answer", result.Answer)
	require.Len(t, result.Sources, 3)

	seen := map[string]bool{}
	for _, p := range result.Sources {
		assert.False(t, seen[p.Text], "passage %q returned twice", p.Text)
		seen[p.Text] = true
	}
	generator.AssertExpectations(t)
}

func TestQueryEngine_Ask_NearestFirst(t *testing.T) {
	store, _ := newTestStore(t)
	buildIndex(t, store, "alice", "a short one", "a much longer passage of text", "mid length text")

	generator := new(MockGenerator)
	generator.On("Generate", mock.Anything, SystemPrompt, mock.AnythingOfType("string")).Return("ok", nil)

	engine := NewQueryEngine(store, &fakeEmbedder{}, generator, 2, nil)
	result, err := engine.Ask(context.Background(), "alice", "a much longer passage of text", 0)

	require.NoError(t, err)
	require.Len(t, result.Sources, 2)
	assert.Equal(t, "a much longer passage of text", result.Sources[0].Text)
	assert.Equal(t, "doc.pdf", result.Sources[0].Source)
	assert.Zero(t, result.Sources[0].Distance)
	assert.Greater(t, result.Sources[1].Distance, result.Sources[0].Distance)
}

func TestQueryEngine_Ask_PromptUsesRawQuestion(t *testing.T) {
	store, _ := newTestStore(t)
	buildIndex(t, store, "alice", "Paris is the capital of France.")

	embedder := &fakeEmbedder{}
	generator := new(MockGenerator)
	question := "Où est Paris?"
	generator.On("Generate", mock.Anything, SystemPrompt,
		"Context:\nParis is the capital of France.\n\nQuestion:\n"+question).Return("In France.", nil)

	engine := NewQueryEngine(store, embedder, generator, 0, nil)
	result, err := engine.Ask(context.Background(), "alice", question, 0)

	require.NoError(t, err)
	assert.Equal(t, "In France.", result.Answer)
	assert.Equal(t, "O est Paris?", embedder.calls[len(embedder.calls)-1], "the embedded query is normalized")
	generator.AssertExpectations(t)
}

func TestQueryEngine_Ask_NoIndex(t *testing.T) {
	store, _ := newTestStore(t)
	generator := new(MockGenerator)
	embedder := &fakeEmbedder{}

	engine := NewQueryEngine(store, embedder, generator, 0, nil)
	result, err := engine.Ask(context.Background(), "nobody", "anything?", 0)

	assert.Nil(t, result)
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)
	assert.Empty(t, embedder.calls)
	generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

func TestQueryEngine_Ask_EmptyQuery(t *testing.T) {
	store, _ := newTestStore(t)
	engine := NewQueryEngine(store, &fakeEmbedder{}, new(MockGenerator), 0, nil)

	_, err := engine.Ask(context.Background(), "alice", "   ", 0)
	assert.ErrorIs(t, err, domain.ErrEmptyQuery)
}

func TestQueryEngine_Ask_NothingLeftAfterNormalization(t *testing.T) {
	store, _ := newTestStore(t)
	buildIndex(t, store, "alice", "The sky is blue.")

	embedder := &fakeEmbedder{}
	generator := new(MockGenerator)
	engine := NewQueryEngine(store, embedder, generator, 0, nil)
	calls := len(embedder.calls)

	result, err := engine.Ask(context.Background(), "alice", "天空是什么颜色", 0)

	assert.Nil(t, result)
	assert.ErrorIs(t, err, domain.ErrNoSearchableText)
	assert.Len(t, embedder.calls, calls, "nothing is sent to the embedder")
	generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

func TestQueryEngine_Ask_EmbeddingModelChanged(t *testing.T) {
	store, _ := newTestStore(t)
	buildIndex(t, store, "alice", "The sky is blue.")

	embedder := modelEmbedder{fakeEmbedder: &fakeEmbedder{}, model: "another-model"}
	generator := new(MockGenerator)
	engine := NewQueryEngine(store, embedder, generator, 0, nil)

	result, err := engine.Ask(context.Background(), "alice", "What color is the sky?", 0)

	assert.Nil(t, result)
	assert.ErrorIs(t, err, domain.ErrModelMismatch)
	assert.Empty(t, embedder.calls)
	generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

func TestQueryEngine_Ask_EmptyContextStillAnswers(t *testing.T) {
	flat, err := vectorindex.NewFlat(testDims)
	require.NoError(t, err)
	store := &staticIndexStore{ix: &userindex.Index{Vectors: flat}}

	generator := new(MockGenerator)
	generator.On("Generate", mock.Anything, SystemPrompt, "Context:\n\n\nQuestion:\nanything?").
		Return("I don't know.", nil)

	engine := NewQueryEngine(store, &fakeEmbedder{}, generator, 0, nil)
	result, err := engine.Ask(context.Background(), "alice", "anything?", 0)

	require.NoError(t, err)
	assert.Equal(t, "I don't know.", result.Answer)
	assert.Empty(t, result.Sources)
	generator.AssertExpectations(t)
}

func TestQueryEngine_Ask_GenerationFailure(t *testing.T) {
	store, _ := newTestStore(t)
	buildIndex(t, store, "alice", "some text")

	generator := new(MockGenerator)
	generator.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Return("", domain.Wrap(domain.ErrGeneration, errors.New("503 service unavailable")))

	engine := NewQueryEngine(store, &fakeEmbedder{}, generator, 0, nil)
	result, err := engine.Ask(context.Background(), "alice", "what?", 0)

	assert.Nil(t, result)
	assert.ErrorIs(t, err, domain.ErrGeneration)
}

func TestQueryEngine_Ask_EmbeddingFailure(t *testing.T) {
	store, _ := newTestStore(t)
	buildIndex(t, store, "alice", "some text")

	generator := new(MockGenerator)
	embedder := &fakeEmbedder{fail: map[string]error{"what?": errRateLimited}}

	engine := NewQueryEngine(store, embedder, generator, 0, nil)
	_, err := engine.Ask(context.Background(), "alice", "what?", 0)

	assert.ErrorIs(t, err, domain.ErrEmbedding)
	generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

func TestQueryEngine_Ask_RecordsQueryLog(t *testing.T) {
	store, _ := newTestStore(t)
	buildIndex(t, store, "alice", "one", "two")

	generator := new(MockGenerator)
	generator.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("answer", nil)

	queryLog := new(MockQueryLog)
	queryLog.On("Record", mock.Anything, mock.MatchedBy(func(e *domain.QueryLog) bool {
		return e.UserID == "alice" && e.Query == "q?" && e.TopK == 1 && e.Passages == 1 && !e.Failed
	})).Return(nil)

	engine := NewQueryEngine(store, &fakeEmbedder{}, generator, 0, nil).WithQueryLog(queryLog)
	_, err := engine.Ask(context.Background(), "alice", "q?", 1)

	require.NoError(t, err)
	queryLog.AssertExpectations(t)
}

func TestQueryEngine_Ask_QueryLogFailureIgnored(t *testing.T) {
	store, _ := newTestStore(t)
	buildIndex(t, store, "alice", "one")

	generator := new(MockGenerator)
	generator.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("answer", nil)
	queryLog := new(MockQueryLog)
	queryLog.On("Record", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	engine := NewQueryEngine(store, &fakeEmbedder{}, generator, 0, nil).WithQueryLog(queryLog)
	result, err := engine.Ask(context.Background(), "alice", "q?", 0)

	require.NoError(t, err)
	assert.Equal(t, "answer", result.Answer)
}

func TestUploadThenAsk_EndToEnd(t *testing.T) {
	ctx := context.Background()
	store, blobs := newTestStore(t)

	chunker, err := document.NewChunker(document.DefaultChunkConfig())
	require.NoError(t, err)
	builder := NewIndexBuilder(chunker, &fakeEmbedder{}, store, nil)
	uploads := NewUploadService(t.TempDir(), blobs, builder, store, nil, nil, nil)

	pdf := testutil.BuildPDF("The sky is blue.")
	_, err = uploads.Upload(ctx, "alice", []UploadFile{{Name: "sky.pdf", Content: strings.NewReader(string(pdf))}})
	require.NoError(t, err)

	var prompt string
	generator := new(MockGenerator)
	generator.On("Generate", mock.Anything, SystemPrompt, mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { prompt = args.String(2) }).
		Return("The sky is blue.", nil)

	engine := NewQueryEngine(store, &fakeEmbedder{}, generator, 0, nil)
	result, err := engine.Ask(ctx, "alice", "What color is the sky?", 0)
	require.NoError(t, err)

	require.Len(t, result.Sources, 1)
	assert.Equal(t, "The sky is blue.", strings.TrimSpace(BuildContext(result.Sources)))
	assert.Contains(t, prompt, "The sky is blue.")
	assert.True(t, strings.HasSuffix(prompt, "Question:\nWhat color is the sky?"))
	assert.Equal(t, "The sky is blue.", result.Answer)

	require.NoError(t, uploads.Reset(ctx, "alice"))

	_, err = engine.Ask(ctx, "alice", "What color is the sky?", 0)
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)
}
