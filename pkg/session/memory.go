package session

import (
	"context"
	"sync"
	"time"

	"github.com/parley-ai/parley/pkg/chat"
)

// MemoryStore implements Store with a mutex-guarded in-process map.
// History is lost on restart; the per-session cap bounds memory growth.
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string][]chat.Message
	maxMessages int
}

// NewMemoryStore creates an in-memory session store with the default
// per-session message cap.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithCap(DefaultMaxMessages)
}

// NewMemoryStoreWithCap creates an in-memory store with an explicit
// per-session message cap. Zero disables eviction.
func NewMemoryStoreWithCap(maxMessages int) *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string][]chat.Message),
		maxMessages: maxMessages,
	}
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, sessionID string, role chat.Role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := append(s.sessions[sessionID], chat.Message{
		Role:      role,
		Content:   content,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	})

	// Evict oldest messages beyond the cap.
	if s.maxMessages > 0 && len(msgs) > s.maxMessages {
		over := len(msgs) - s.maxMessages
		msgs = append([]chat.Message(nil), msgs[over:]...)
	}

	s.sessions[sessionID] = msgs
	return nil
}

// History implements Store. The returned slice is a copy.
func (s *MemoryStore) History(ctx context.Context, sessionID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.sessions[sessionID]
	result := make([]chat.Message, len(msgs))
	copy(result, msgs)
	return result, nil
}

// Count implements Store.
func (s *MemoryStore) Count(ctx context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions[sessionID]), nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(ctx context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sessionID]; !exists {
		return false, nil
	}
	delete(s.sessions, sessionID)
	return true, nil
}

// SessionCount returns the number of live sessions.
func (s *MemoryStore) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string][]chat.Message)
	return nil
}

// Verify MemoryStore implements Store at compile time.
var _ Store = (*MemoryStore)(nil)
