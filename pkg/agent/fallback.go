package agent

// Canned text used when a stage fails. The turn still completes; the
// caller sees which stage degraded through the errors block.
const (
	// TranscriptionFallbackText stands in for the user's words when the
	// speech-to-text stage fails.
	TranscriptionFallbackText = "I'm having trouble understanding the audio."

	// CriticalUserMessage and CriticalReply form the response when the
	// turn itself blows up outside any single stage.
	CriticalUserMessage = "Error processing audio"
	CriticalReply       = "I'm experiencing technical difficulties right now. Please try again later."
)

// FallbackReply picks the spoken reply matching the combination of
// failed stages. Every combination maps to a fixed message so the
// assistant always has something to say.
func FallbackReply(transcriptionFailed, llmFailed, ttsFailed bool) string {
	switch {
	case transcriptionFailed && llmFailed && ttsFailed:
		return "I'm experiencing technical difficulties with all services. Please try again later."
	case transcriptionFailed && llmFailed:
		return "I'm having trouble understanding your audio and processing requests right now. Please try again later."
	case transcriptionFailed && ttsFailed:
		return "I'm having trouble with audio processing right now. Please try again later."
	case llmFailed && ttsFailed:
		return "I'm having trouble processing and responding to requests right now. Please try again later."
	case transcriptionFailed:
		return "I'm having trouble understanding the audio right now. Please try again or speak more clearly."
	case llmFailed:
		return "I'm having trouble processing your request right now. Please try again later."
	case ttsFailed:
		return "I'm having trouble generating audio responses right now, but I can still process your requests."
	default:
		return "I'm having some technical difficulties right now. Please try again later."
	}
}
