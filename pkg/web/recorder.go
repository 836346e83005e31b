package web

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/parley-ai/parley/pkg/hub"
	"github.com/parley-ai/parley/pkg/stt"
)

// controlFrame is a JSON text frame on the audio socket.
// Clients send {"type":"start","mimeType":...} before streaming binary
// chunks and {"type":"stop"} when done.
type controlFrame struct {
	Type     string `json:"type"`
	MimeType string `json:"mimeType,omitempty"`
	Filename string `json:"filename,omitempty"`
	URL      string `json:"url,omitempty"`
}

// transcriptFrame carries a live transcription result back to the client.
type transcriptFrame struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// wsWriter serializes writes to one websocket connection. Transcript
// frames arrive from the transcriber's read goroutine while control
// replies come from the handler loop.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) writeJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(v)
}

// handleAudioWS receives a streamed recording over the websocket,
// writes it to the recordings directory, and, when a realtime
// transcriber is configured, feeds the same chunks to the vendor and
// relays transcripts back to the client as they arrive.
//
// Protocol:
//   - client sends {"type":"start","mimeType":"..."} (recommended)
//   - client sends binary audio chunks
//   - client sends {"type":"stop"} when done
//   - server replies {"type":"ready",...} after start and
//     {"type":"saved",...} once the file is on disk
//   - with live transcription enabled, the server interleaves
//     {"type":"transcript","text":...,"final":...} frames
func (s *Server) handleAudioWS(c *websocket.Conn) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	timestamp := time.Now().UTC().Format("20060102_150405")
	filename := sessionID + "_" + timestamp + ".webm"
	path := filepath.Join(s.recordingsDir, filename)

	logger := s.logger.With("session_id", sessionID, "file", filename)
	logger.Info("recorder connected")

	out := &wsWriter{conn: c}
	transcriber := s.startTranscriber(out, logger)

	var file *os.File
	openFile := func() bool {
		if file != nil {
			return true
		}
		f, err := os.Create(path)
		if err != nil {
			logger.Error("open recording file", "error", err)
			return false
		}
		file = f
		return true
	}

	defer func() {
		if transcriber != nil {
			transcriber.Close()
		}
		if file != nil {
			file.Close()
			logger.Info("recording saved")
			out.writeJSON(controlFrame{
				Type:     "saved",
				Filename: filename,
				URL:      "/recordings/" + filename,
			})
		}
		c.Close()
	}()

	for {
		msgType, data, err := c.ReadMessage()
		if err != nil {
			logger.Info("recorder disconnected")
			return
		}

		switch msgType {
		case websocket.TextMessage:
			var frame controlFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				logger.Warn("non-JSON control frame", "text", string(data))
				continue
			}

			switch frame.Type {
			case "start":
				if !openFile() {
					return
				}
				out.writeJSON(controlFrame{
					Type:     "ready",
					Filename: filename,
					URL:      "/recordings/" + filename,
				})
			case "stop", "end":
				return
			default:
				logger.Debug("control frame", "type", frame.Type)
			}

		case websocket.BinaryMessage:
			// Clients that skip "start" still get a file.
			if !openFile() {
				return
			}
			if _, err := file.Write(data); err != nil {
				logger.Error("write chunk", "error", err)
				return
			}
			if transcriber != nil {
				// Best effort: a vendor hiccup degrades to
				// record-only, it does not end the stream.
				if err := transcriber.SendAudio(data); err != nil {
					logger.Warn("live transcription send failed", "error", err)
				}
			}
		}
	}
}

// startTranscriber opens a live transcription session for one audio
// socket. Returns nil when live transcription is not configured or the
// vendor session cannot be established; recording proceeds either way.
func (s *Server) startTranscriber(out *wsWriter, logger *slog.Logger) *stt.Realtime {
	if s.newTranscriber == nil {
		return nil
	}

	transcriber, err := s.newTranscriber()
	if err != nil {
		logger.Warn("live transcription unavailable", "error", err)
		return nil
	}

	transcriber.OnTranscript = func(text string, isFinal bool) {
		if err := out.writeJSON(transcriptFrame{
			Type:  "transcript",
			Text:  text,
			Final: isFinal,
		}); err != nil {
			logger.Debug("transcript relay failed", "error", err)
		}
	}
	transcriber.OnError = func(err error) {
		logger.Warn("live transcription error", "error", err)
	}

	if err := transcriber.Connect(); err != nil {
		logger.Warn("live transcription connect failed", "error", err)
		return nil
	}
	return transcriber
}

// handleTurnsWS attaches a listener to the turn hub. The client
// receives a JSON turn event for every completed turn until it
// disconnects.
func (s *Server) handleTurnsWS(c *websocket.Conn) {
	client := hub.NewClient(s.turnHub, c)
	client.Run()
}
