// Package session provides conversation history storage keyed by an
// opaque caller-supplied session ID.
//
// Two backends are provided: a process-lifetime in-memory store and a
// Redis-backed store for deployments that need history to survive
// restarts. Both enforce a per-session message cap so long-lived
// sessions cannot grow without bound.
package session

import (
	"context"

	"github.com/parley-ai/parley/pkg/chat"
)

// DefaultMaxMessages is the per-session history cap. When a session
// exceeds it, the oldest messages are evicted. Zero disables the cap.
const DefaultMaxMessages = 200

// Store defines the session history interface consumed by the orchestrator.
type Store interface {
	// Append adds a message to the session, creating it lazily on first use.
	Append(ctx context.Context, sessionID string, role chat.Role, content string) error

	// History returns the session's ordered messages. A missing session
	// yields an empty slice, not an error.
	History(ctx context.Context, sessionID string) ([]chat.Message, error)

	// Count returns the number of messages in the session.
	Count(ctx context.Context, sessionID string) (int, error)

	// Clear removes the session entirely. Returns false if the session
	// did not exist; that is not an error.
	Clear(ctx context.Context, sessionID string) (bool, error)

	// Close releases any resources held by the store.
	Close() error
}
