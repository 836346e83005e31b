package hub

import (
	"encoding/json"
	"testing"

	"github.com/parley-ai/parley/pkg/chat"
)

func TestNewTurnMessage(t *testing.T) {
	url := "https://vendor/audio/1.mp3"
	result := chat.TurnResult{
		SessionID:     "s1",
		Transcript:    "hi",
		Reply:         "hello",
		AudioURL:      &url,
		HistoryLength: 2,
		InputType:     "audio",
	}

	msg, err := NewTurnMessage(result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Type != JSONMessage {
		t.Error("expected JSON message type")
	}

	var event TurnEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if event.Type != "turn" {
		t.Errorf("expected type turn, got %q", event.Type)
	}
	if event.Turn.SessionID != "s1" || event.Turn.Reply != "hello" {
		t.Errorf("unexpected turn payload: %+v", event.Turn)
	}
}

func TestHubClientCount(t *testing.T) {
	h := New("test")
	if h.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", h.ClientCount())
	}
	if h.IsRunning() {
		t.Error("hub should not be running before Run")
	}
}
