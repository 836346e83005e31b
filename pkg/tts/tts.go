// Package tts provides a unified interface for text-to-speech providers.
//
// The primary backend is Murf, which renders text on the vendor side and
// returns a URL to the generated audio artifact rather than raw bytes.
// All providers implement the Provider interface, enabling seamless
// switching without changing caller code.
//
// Example usage:
//
//	provider, _ := tts.NewMurf(
//	    tts.WithAPIKey(os.Getenv("MURF_API_KEY")),
//	    tts.WithVoice(os.Getenv("MURF_VOICE_ID")),
//	)
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, "Hello world")
//	// result.AudioURL points at the rendered audio file
package tts

import "context"

// Provider defines the TTS provider interface.
type Provider interface {
	// Synthesize converts text to speech on the vendor side and returns a
	// reference to the rendered audio. Empty input text yields a nil result
	// and nil error with no vendor call made.
	Synthesize(ctx context.Context, text string) (*SpeechResult, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// SpeechResult references a completed synthesis.
type SpeechResult struct {
	// AudioURL is the vendor-hosted URL of the rendered audio file.
	AudioURL string

	// CharCount is the number of characters actually synthesized
	// (after truncation, if any).
	CharCount int

	// Truncated reports whether the input text was cut to the payload cap
	// before the vendor call. Truncation is silent toward end users; this
	// flag exists for logging and diagnostics.
	Truncated bool

	// LatencyMs is the vendor round-trip time in milliseconds.
	LatencyMs int64
}

// VoiceStyle controls voice rendering for providers that support it.
type VoiceStyle struct {
	// Speed multiplier; 1.0 is the natural rate.
	Speed float64

	// Pitch multiplier; 1.0 is the natural pitch.
	Pitch float64
}

// DefaultVoiceStyle returns the neutral rendering settings.
func DefaultVoiceStyle() VoiceStyle {
	return VoiceStyle{Speed: 1.0, Pitch: 1.0}
}
