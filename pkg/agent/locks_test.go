package agent

import (
	"context"
	"testing"

	"github.com/parley-ai/parley/pkg/llm"
	"github.com/parley-ai/parley/pkg/session"
	"github.com/parley-ai/parley/pkg/stt"
	"github.com/parley-ai/parley/pkg/tts"
)

func lockCount(a *Agent) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.locks)
}

func TestSessionLockEviction(t *testing.T) {
	ctx := context.Background()

	newTestAgent := func() *Agent {
		return New(stt.NewMockWithText("hi"), llm.NewMock("hello"), tts.NewMock(), session.NewMemoryStore())
	}

	t.Run("clear drops the session lock", func(t *testing.T) {
		a := newTestAgent()
		defer a.Close()

		a.ProcessTurn(ctx, "s1", []byte("audio"))
		a.ProcessTurn(ctx, "s2", []byte("audio"))
		if got := lockCount(a); got != 2 {
			t.Fatalf("expected 2 lock entries, got %d", got)
		}

		if _, err := a.Clear(ctx, "s1"); err != nil {
			t.Fatalf("clear: %v", err)
		}
		if got := lockCount(a); got != 1 {
			t.Errorf("expected 1 lock entry after clear, got %d", got)
		}
	})

	t.Run("clear of unknown session leaves the map alone", func(t *testing.T) {
		a := newTestAgent()
		defer a.Close()

		a.ProcessTurn(ctx, "s1", []byte("audio"))
		if _, err := a.Clear(ctx, "never-seen"); err != nil {
			t.Fatalf("clear: %v", err)
		}
		if got := lockCount(a); got != 1 {
			t.Errorf("expected 1 lock entry, got %d", got)
		}
	})

	t.Run("in-flight turn keeps its lock", func(t *testing.T) {
		a := newTestAgent()
		defer a.Close()

		a.ProcessTurn(ctx, "s1", []byte("audio"))

		// Hold the session's mutex as a turn in progress would.
		lock := a.sessionLock("s1")
		lock.Lock()

		if _, err := a.Clear(ctx, "s1"); err != nil {
			t.Fatalf("clear: %v", err)
		}
		if got := lockCount(a); got != 1 {
			t.Errorf("eviction should be skipped while held, got %d entries", got)
		}

		lock.Unlock()

		if _, err := a.Clear(ctx, "s1"); err != nil {
			t.Fatalf("clear: %v", err)
		}
		if got := lockCount(a); got != 0 {
			t.Errorf("expected lock entry dropped after release, got %d", got)
		}
	})

	t.Run("session reusable after clear", func(t *testing.T) {
		a := newTestAgent()
		defer a.Close()

		a.ProcessTurn(ctx, "s1", []byte("audio"))
		a.Clear(ctx, "s1")

		result := a.ProcessTurn(ctx, "s1", []byte("audio"))
		if result.HistoryLength != 2 {
			t.Errorf("expected fresh history of 2, got %d", result.HistoryLength)
		}
	})
}
