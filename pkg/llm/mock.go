package llm

import (
	"context"
	"sync"

	"github.com/parley-ai/parley/pkg/chat"
)

// Mock implements Provider for testing.
type Mock struct {
	// GenerateFunc is called when Generate is invoked.
	// If nil, returns a fixed reply.
	GenerateFunc func(ctx context.Context, history []chat.Message) (string, error)

	// HealthFunc is called when Health is invoked. Nil means healthy.
	HealthFunc func(ctx context.Context) error

	// Tracking
	mu        sync.Mutex
	histories [][]chat.Message
}

// NewMock creates a mock that always replies with the given text.
func NewMock(reply string) *Mock {
	return &Mock{
		GenerateFunc: func(ctx context.Context, history []chat.Message) (string, error) {
			return reply, nil
		},
	}
}

// WithError returns a mock that always returns the given error.
func WithError(err error) *Mock {
	return &Mock{
		GenerateFunc: func(ctx context.Context, history []chat.Message) (string, error) {
			return "", err
		},
		HealthFunc: func(ctx context.Context) error {
			return err
		},
	}
}

// Generate calls GenerateFunc and records the history it was given.
func (m *Mock) Generate(ctx context.Context, history []chat.Message) (string, error) {
	m.mu.Lock()
	snapshot := make([]chat.Message, len(history))
	copy(snapshot, history)
	m.histories = append(m.histories, snapshot)
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, history)
	}
	return "", ErrEmptyCompletion
}

// Health calls HealthFunc.
func (m *Mock) Health(ctx context.Context) error {
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Close is a no-op.
func (m *Mock) Close() error {
	return nil
}

// Histories returns a copy of every history passed to Generate.
func (m *Mock) Histories() [][]chat.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([][]chat.Message, len(m.histories))
	copy(result, m.histories)
	return result
}

// CallCount returns how many times Generate was invoked.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.histories)
}

// Verify Mock implements Provider at compile time.
var _ Provider = (*Mock)(nil)
