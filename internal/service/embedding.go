package service

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// CachedEmbedder memoizes query embeddings. A chat turn embeds the same
// query for the relevance gate, context retrieval and the homework guard.
type CachedEmbedder struct {
	client EmbeddingClient
	cache  *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps client with an LRU of the given size.
func NewCachedEmbedder(client EmbeddingClient, size int) (*CachedEmbedder, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &CachedEmbedder{client: client, cache: cache}, nil
}

func (e *CachedEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		return v, nil
	}
	v, err := e.client.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Add(text, v)
	return v, nil
}
