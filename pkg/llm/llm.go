// Package llm provides a unified interface for language-response providers.
//
// A provider takes the full ordered chat history for a session and returns
// the next assistant reply. The Gemini backend flattens history into a single
// text prompt (the conversation is replayed verbatim on every call); the
// OpenAI backend maps messages onto the vendor's native chat format. A Chain
// tries providers in order for availability.
//
// Example usage:
//
//	provider, _ := llm.NewGemini(
//	    llm.WithAPIKey(os.Getenv("GEMINI_API_KEY")),
//	)
//	defer provider.Close()
//
//	reply, _ := provider.Generate(ctx, history)
package llm

import (
	"context"

	"github.com/parley-ai/parley/pkg/chat"
)

// Provider defines the language-response interface.
type Provider interface {
	// Generate produces the next assistant reply for the given history.
	// History order is meaningful and is replayed in full on every call.
	Generate(ctx context.Context, history []chat.Message) (string, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}
