package openai

import (
	"context"
	"net/http"
	"testing"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docqa/internal/domain"
)

func newTestChatClient(api ChatAPI, retries int) *ChatClient {
	if retries == 0 {
		retries = -1
	}
	c := NewChatClientWithAPI(api, Config{MaxRetries: retries})
	c.backoff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return c
}

func TestChatClient_Generate_TrimsAnswer(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newTestChatClient(mockAPI, 0)

	mockAPI.On("CreateChatCompletion", mock.Anything, "system", "user").
		Return(ChatResult{Content: "  The sky is blue.\n", PromptTokens: 10, CompletionTokens: 5}, nil)

	answer, err := client.Generate(context.Background(), "system", "user")

	require.NoError(t, err)
	assert.Equal(t, "The sky is blue.", answer)
	mockAPI.AssertExpectations(t)
}

func TestChatClient_Generate_FailsClosed(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newTestChatClient(mockAPI, 1)

	mockAPI.On("CreateChatCompletion", mock.Anything, "system", "user").
		Return(ChatResult{Content: "partial"}, &openai.APIError{HTTPStatusCode: http.StatusInternalServerError})

	answer, err := client.Generate(context.Background(), "system", "user")

	assert.Empty(t, answer)
	assert.ErrorIs(t, err, domain.ErrGeneration)
	mockAPI.AssertNumberOfCalls(t, "CreateChatCompletion", 2)
}

func TestChatClient_Generate_NoChoices(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newTestChatClient(mockAPI, 2)

	mockAPI.On("CreateChatCompletion", mock.Anything, "s", "u").Return(ChatResult{}, ErrNoChoices)

	_, err := client.Generate(context.Background(), "s", "u")

	assert.ErrorIs(t, err, domain.ErrGeneration)
	assert.ErrorIs(t, err, ErrNoChoices)
	mockAPI.AssertNumberOfCalls(t, "CreateChatCompletion", 1)
}

func TestNewChatClient(t *testing.T) {
	_, err := NewChatClient(Config{})
	assert.Equal(t, ErrNoAPIKey, err)

	client, err := NewChatClient(Config{APIKey: "key", ChatModel: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", client.model)
}
