// Package hub provides a thread-safe websocket broadcast hub using the
// channel-based fan-out pattern. The server uses one hub to push
// completed turn events to any number of live listeners.
package hub

import (
	"encoding/json"

	"github.com/parley-ai/parley/pkg/chat"
)

// MessageType indicates the websocket message format.
type MessageType int

const (
	// JSONMessage is a JSON-encoded message.
	JSONMessage MessageType = iota
	// BinaryMessage is raw binary data, such as audio chunks.
	BinaryMessage
)

// Message represents a message to be broadcast to clients.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage creates a JSON message from pre-encoded bytes.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage creates a binary message.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// TurnEvent is the envelope pushed to listeners when a turn completes.
type TurnEvent struct {
	Type string          `json:"type"`
	Turn chat.TurnResult `json:"turn"`
}

// NewTurnMessage encodes a completed turn as a broadcast message.
func NewTurnMessage(result chat.TurnResult) (Message, error) {
	data, err := json.Marshal(TurnEvent{Type: "turn", Turn: result})
	if err != nil {
		return Message{}, err
	}
	return NewJSONMessage(data), nil
}
