//go:build integration

package openai

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_GenerateEmbedding_RealAPI(t *testing.T) {
	apiKey := os.Getenv("TUTOR_OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("TUTOR_OPENAI_API_KEY not set, skipping integration test")
	}

	client := NewClient(apiKey)
	ctx := context.Background()

	embedding, err := client.GenerateEmbedding(ctx, "Photosynthesis converts light into chemical energy.")
	require.NoError(t, err)
	assert.Len(t, embedding, DefaultEmbeddingDimensions)

	score, err := client.ScoreRelevance(ctx, "What does photosynthesis produce?", "Photosynthesis produces glucose and oxygen.")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}
