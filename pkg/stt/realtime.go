package stt

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	realtimeURL        = "wss://api.assemblyai.com/v2/realtime/ws"
	defaultSampleRate  = 16000
	realtimeDialWindow = 10 * time.Second
)

// Realtime streams audio to the AssemblyAI realtime websocket API and
// delivers partial and final transcripts through callbacks.
//
// Audio must be PCM16 mono at the configured sample rate. Callbacks are
// invoked from the read goroutine; keep them short or hand off.
type Realtime struct {
	apiKey     string
	sampleRate int
	url        string
	logger     *slog.Logger

	ws   *websocket.Conn
	wsMu sync.Mutex

	connected bool
	closed    bool

	// Callbacks
	OnTranscript func(text string, isFinal bool)
	OnError      func(err error)
	OnClose      func()
}

// NewRealtime creates a realtime transcriber. Connect must be called
// before sending audio.
func NewRealtime(apiKey string, opts ...RealtimeOption) (*Realtime, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}

	r := &Realtime{
		apiKey:     apiKey,
		sampleRate: defaultSampleRate,
		url:        realtimeURL,
		logger:     slog.Default().With("component", "stt.realtime"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RealtimeOption configures a Realtime transcriber.
type RealtimeOption func(*Realtime)

// WithSampleRate sets the PCM sample rate announced to the vendor.
func WithSampleRate(hz int) RealtimeOption {
	return func(r *Realtime) {
		r.sampleRate = hz
	}
}

// WithRealtimeURL overrides the vendor websocket endpoint.
func WithRealtimeURL(url string) RealtimeOption {
	return func(r *Realtime) {
		r.url = url
	}
}

// WithRealtimeLogger sets the structured logger.
func WithRealtimeLogger(logger *slog.Logger) RealtimeOption {
	return func(r *Realtime) {
		r.logger = logger.With("component", "stt.realtime")
	}
}

// Connect establishes the websocket session.
func (r *Realtime) Connect() error {
	url := fmt.Sprintf("%s?sample_rate=%d", r.url, r.sampleRate)

	header := make(map[string][]string)
	header["Authorization"] = []string{r.apiKey}

	dialer := websocket.Dialer{
		HandshakeTimeout: realtimeDialWindow,
	}

	ws, _, err := dialer.Dial(url, header)
	if err != nil {
		return WrapError(providerAssemblyAI, fmt.Errorf("realtime connect: %w", err))
	}

	r.ws = ws
	r.connected = true
	r.closed = false

	go r.handleMessages()

	r.logger.Info("realtime session connected", "sample_rate", r.sampleRate)
	return nil
}

// IsConnected returns true if the session is active.
func (r *Realtime) IsConnected() bool {
	r.wsMu.Lock()
	defer r.wsMu.Unlock()
	return r.connected
}

// SendAudio streams a chunk of PCM16 audio to the vendor.
func (r *Realtime) SendAudio(pcm16 []byte) error {
	r.wsMu.Lock()
	defer r.wsMu.Unlock()

	if !r.connected || r.ws == nil {
		return ErrNotConnected
	}

	msg := map[string]string{
		"audio_data": base64.StdEncoding.EncodeToString(pcm16),
	}
	if err := r.ws.WriteJSON(msg); err != nil {
		return WrapError(providerAssemblyAI, fmt.Errorf("send audio: %w", err))
	}
	return nil
}

// Close terminates the session, asking the vendor to flush a final
// transcript first.
func (r *Realtime) Close() error {
	r.wsMu.Lock()
	defer r.wsMu.Unlock()

	if r.closed || r.ws == nil {
		return nil
	}
	r.closed = true
	r.connected = false

	// Best effort: ask the vendor to finalize before tearing down.
	_ = r.ws.WriteJSON(map[string]bool{"terminate_session": true})
	return r.ws.Close()
}

// realtimeMessage is the inbound message shape for the realtime API.
type realtimeMessage struct {
	MessageType string  `json:"message_type"`
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	Error       string  `json:"error"`
}

// handleMessages reads vendor events until the connection drops.
func (r *Realtime) handleMessages() {
	r.wsMu.Lock()
	ws := r.ws
	r.wsMu.Unlock()

	defer func() {
		r.wsMu.Lock()
		r.connected = false
		r.wsMu.Unlock()
		if r.OnClose != nil {
			r.OnClose()
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			r.wsMu.Lock()
			closed := r.closed
			r.wsMu.Unlock()
			if !closed && r.OnError != nil {
				r.OnError(WrapError(providerAssemblyAI, err))
			}
			return
		}

		var msg realtimeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			r.logger.Warn("unparsable realtime message", "error", err)
			continue
		}

		switch msg.MessageType {
		case "PartialTranscript":
			if msg.Text != "" && r.OnTranscript != nil {
				r.OnTranscript(msg.Text, false)
			}
		case "FinalTranscript":
			if r.OnTranscript != nil {
				r.OnTranscript(msg.Text, true)
			}
		case "SessionTerminated":
			return
		default:
			if msg.Error != "" && r.OnError != nil {
				r.OnError(WrapError(providerAssemblyAI, fmt.Errorf("%s", msg.Error)))
			}
		}
	}
}
