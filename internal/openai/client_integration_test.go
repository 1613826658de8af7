//go:build integration

package openai

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_Embed_RealAPI(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY not set, skipping integration test")
	}

	client, err := NewClient(Config{APIKey: apiKey})
	require.NoError(t, err)

	embedding, err := client.Embed(context.Background(), "This is a test document for generating embeddings.")

	require.NoError(t, err)
	assert.Len(t, embedding, DefaultEmbeddingDimensions)
}

func TestIntegration_Generate_RealAPI(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY not set, skipping integration test")
	}

	client, err := NewChatClient(Config{APIKey: apiKey})
	require.NoError(t, err)

	answer, err := client.Generate(context.Background(),
		"Answer the question based only on the provided context.",
		"Context:\nThe sky is blue.\n\nQuestion:\nWhat color is the sky?")

	require.NoError(t, err)
	assert.Contains(t, answer, "blue")
}
