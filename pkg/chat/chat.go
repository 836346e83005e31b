// Package chat defines the core conversation data model shared across
// the speech, language, and session packages.
package chat

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Label returns the prompt label used when flattening history
// into a single text prompt.
func (r Role) Label() string {
	if r == RoleUser {
		return "User"
	}
	return "AI"
}

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is a single entry in a session's conversation history.
// Messages are immutable once appended; append order is meaningful
// because history is replayed verbatim into LLM prompts.
type Message struct {
	Role      Role    `json:"role"`
	Content   string  `json:"content"`
	Timestamp float64 `json:"timestamp,omitempty"`
}

// StageErrors records per-stage failures for a single turn.
// A populated field means the stage failed and a fallback was used;
// the turn itself still completed.
type StageErrors struct {
	Transcription string `json:"transcription_error,omitempty"`
	LLM           string `json:"llm_error,omitempty"`
	TTS           string `json:"tts_error,omitempty"`
	Critical      string `json:"critical_error,omitempty"`
}

// Any reports whether any stage recorded an error.
func (e StageErrors) Any() bool {
	return e.Transcription != "" || e.LLM != "" || e.TTS != "" || e.Critical != ""
}

// TurnResult is the outcome of one orchestrated voice turn.
// It always carries best-effort content; callers must inspect Errors
// to know whether any stage degraded.
type TurnResult struct {
	SessionID     string      `json:"session_id"`
	Transcript    string      `json:"user_message"`
	Reply         string      `json:"assistant_response"`
	AudioURL      *string     `json:"audio_url"`
	HistoryLength int         `json:"chat_history_length"`
	InputType     string      `json:"input_type"`
	Errors        StageErrors `json:"errors"`
}

// History is a session's ordered message list as returned to clients.
type History struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
}
