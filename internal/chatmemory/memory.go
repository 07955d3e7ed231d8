// Package chatmemory keeps the sliding window of recent exchanges the
// assistant sees for each conversation.
package chatmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloo-solutions/coursetutor/internal/domain"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	DefaultWindow        = 5
	defaultConversations = 10000
)

// InProcess holds windows in memory. The least recently used conversations
// are evicted once maxConversations is reached; an evicted conversation is
// rebuilt from its stored history on the next turn.
type InProcess struct {
	window int
	mu     sync.Mutex
	convs  *lru.Cache[string, []domain.Exchange]
}

func NewInProcess(window, maxConversations int) (*InProcess, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	if maxConversations <= 0 {
		maxConversations = defaultConversations
	}
	convs, err := lru.New[string, []domain.Exchange](maxConversations)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	return &InProcess{window: window, convs: convs}, nil
}

func (m *InProcess) Load(ctx context.Context, key string) ([]domain.Exchange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exchanges, _ := m.convs.Get(key)
	return append([]domain.Exchange(nil), exchanges...), nil
}

func (m *InProcess) Append(ctx context.Context, key string, ex domain.Exchange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	exchanges, _ := m.convs.Get(key)
	m.convs.Add(key, lastN(append(append([]domain.Exchange(nil), exchanges...), ex), m.window))
	return nil
}

func (m *InProcess) Reset(ctx context.Context, key string, exchanges []domain.Exchange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convs.Add(key, lastN(append([]domain.Exchange(nil), exchanges...), m.window))
	return nil
}

func (m *InProcess) Clear(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convs.Remove(key)
	return nil
}

func lastN(exchanges []domain.Exchange, n int) []domain.Exchange {
	if len(exchanges) <= n {
		return exchanges
	}
	return exchanges[len(exchanges)-n:]
}
