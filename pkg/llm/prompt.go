package llm

import (
	"strings"

	"github.com/parley-ai/parley/pkg/chat"
)

// assistantCue is the trailing line that prompts the model to continue
// as the assistant.
const assistantCue = "AI:"

// FlattenHistory renders chat history as a single text prompt, one line
// per message as "<RoleLabel>: <content>", terminated with a trailing
// assistant cue line. This is how history reaches completion-style APIs
// that have no native conversation format.
func FlattenHistory(history []chat.Message) string {
	var b strings.Builder
	for _, msg := range history {
		b.WriteString(msg.Role.Label())
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	b.WriteString(assistantCue)
	return b.String()
}
