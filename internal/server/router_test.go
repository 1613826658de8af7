package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docqa/internal/api/handlers"
	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/pagination"
	"github.com/cloo-solutions/docqa/internal/repository"
	"github.com/cloo-solutions/docqa/internal/service"
)

const testToken = "dqa_0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

type MockAuthValidator struct {
	mock.Mock
}

func (m *MockAuthValidator) ValidateAPIKey(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) Upload(ctx context.Context, userID string, files []service.UploadFile) (*service.UploadResult, error) {
	args := m.Called(ctx, userID, files)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.UploadResult), args.Error(1)
}

func (m *MockDocumentService) ListDocuments(ctx context.Context, userID string) ([]*domain.Document, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Document), args.Error(1)
}

func (m *MockDocumentService) Reset(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

type MockQueryService struct {
	mock.Mock
}

func (m *MockQueryService) Ask(ctx context.Context, userID, question string, topK int) (*domain.QueryResult, error) {
	args := m.Called(ctx, userID, question, topK)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.QueryResult), args.Error(1)
}

type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) CreateAPIKey(ctx context.Context, userID, name string) (string, error) {
	args := m.Called(ctx, userID, name)
	return args.String(0), args.Error(1)
}

func (m *MockAuthService) ListAPIKeys(ctx context.Context, userID string) ([]*domain.APIKey, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.APIKey), args.Error(1)
}

func (m *MockAuthService) RevokeAPIKey(ctx context.Context, keyID string) error {
	return m.Called(ctx, keyID).Error(0)
}

type MockHistoryService struct {
	mock.Mock
}

func (m *MockHistoryService) ListRecent(ctx context.Context, userID string, cursor *pagination.Cursor, limit int) (*repository.QueryLogPageResult, error) {
	args := m.Called(ctx, userID, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.QueryLogPageResult), args.Error(1)
}

type testRouter struct {
	handler   http.Handler
	validator *MockAuthValidator
	docs      *MockDocumentService
	query     *MockQueryService
	auth      *MockAuthService
	history   *MockHistoryService
}

func setupRouter(withKeys bool) *testRouter {
	tr := &testRouter{
		validator: new(MockAuthValidator),
		docs:      new(MockDocumentService),
		query:     new(MockQueryService),
		auth:      new(MockAuthService),
		history:   new(MockHistoryService),
	}

	cfg := RouterConfig{
		AuthValidator:   tr.validator,
		DocumentHandler: handlers.NewDocumentHandler(tr.docs),
		AskHandler:      handlers.NewAskHandler(tr.query),
	}
	if withKeys {
		cfg.AuthHandler = handlers.NewAuthHandler(tr.auth)
		cfg.HistoryHandler = handlers.NewHistoryHandler(tr.history)
	}

	tr.handler = NewRouter(cfg)
	return tr
}

func TestRouter_HealthEndpoint(t *testing.T) {
	tr := setupRouter(false)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	tr.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	tr := setupRouter(false)

	tr.handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	w := httptest.NewRecorder()
	tr.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "docqa_http_requests_total")
}

func TestRouter_AuthenticatedRoutes_RequireAuth(t *testing.T) {
	tr := setupRouter(true)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/documents"},
		{http.MethodGet, "/documents"},
		{http.MethodPost, "/ask"},
		{http.MethodPost, "/reset"},
		{http.MethodPost, "/apikeys"},
		{http.MethodGet, "/apikeys"},
		{http.MethodDelete, "/apikeys/123"},
		{http.MethodGet, "/history"},
	}

	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			req := httptest.NewRequest(route.method, route.path, nil)
			w := httptest.NewRecorder()

			tr.handler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}

	tr.validator.AssertExpectations(t)
}

func TestRouter_Ask_WithValidAuth(t *testing.T) {
	tr := setupRouter(false)

	tr.validator.On("ValidateAPIKey", mock.Anything, testToken).Return("alice", nil)
	tr.query.On("Ask", mock.Anything, "alice", "What color is the sky?", 0).
		Return(&domain.QueryResult{Answer: "Blue."}, nil)

	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"query":"What color is the sky?"}`))
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()

	tr.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Blue.")
	tr.validator.AssertExpectations(t)
	tr.query.AssertExpectations(t)
}

func TestRouter_Reset_WithValidAuth(t *testing.T) {
	tr := setupRouter(false)

	tr.validator.On("ValidateAPIKey", mock.Anything, testToken).Return("alice", nil)
	tr.docs.On("Reset", mock.Anything, "alice").Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/reset", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()

	tr.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	tr.docs.AssertExpectations(t)
}

func TestRouter_APIKeyRoutes_AbsentWithoutDatabase(t *testing.T) {
	tr := setupRouter(false)

	tr.validator.On("ValidateAPIKey", mock.Anything, testToken).Return("alice", nil)

	req := httptest.NewRequest(http.MethodGet, "/apikeys", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()

	tr.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_RevokeAPIKey(t *testing.T) {
	tr := setupRouter(true)

	tr.validator.On("ValidateAPIKey", mock.Anything, testToken).Return("alice", nil)
	tr.auth.On("ListAPIKeys", mock.Anything, "alice").Return([]*domain.APIKey{{ID: "key-1"}}, nil)
	tr.auth.On("RevokeAPIKey", mock.Anything, "key-1").Return(nil)

	req := httptest.NewRequest(http.MethodDelete, "/apikeys/key-1", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()

	tr.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	tr.auth.AssertExpectations(t)
}
