package web_test

import (
	"encoding/base64"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/parley-ai/parley/pkg/agent"
	"github.com/parley-ai/parley/pkg/hub"
	"github.com/parley-ai/parley/pkg/llm"
	"github.com/parley-ai/parley/pkg/session"
	"github.com/parley-ai/parley/pkg/stt"
	"github.com/parley-ai/parley/pkg/tts"
	"github.com/parley-ai/parley/pkg/web"
)

// realtimeVendorStub fakes the realtime transcription vendor: each
// audio chunk comes back as a partial then a final transcript.
func realtimeVendorStub(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := gorilla.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()

		for {
			var msg map[string]interface{}
			if err := ws.ReadJSON(&msg); err != nil {
				return
			}
			if _, ok := msg["terminate_session"]; ok {
				ws.WriteJSON(map[string]string{"message_type": "SessionTerminated"})
				return
			}
			if encoded, ok := msg["audio_data"].(string); ok {
				chunk, _ := base64.StdEncoding.DecodeString(encoded)
				ws.WriteJSON(map[string]interface{}{
					"message_type": "PartialTranscript",
					"text":         string(chunk),
				})
				ws.WriteJSON(map[string]interface{}{
					"message_type": "FinalTranscript",
					"text":         string(chunk),
				})
			}
		}
	}))
}

// wsFrame is the superset of frames the audio socket can send back.
type wsFrame struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Final    bool   `json:"final"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

func readFrame(t *testing.T, conn *gorilla.Conn) wsFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame wsFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func TestAudioWSLiveTranscription(t *testing.T) {
	vendor := realtimeVendorStub(t)
	defer vendor.Close()

	recordings := t.TempDir()
	turnHub := hub.New("turns")
	a := agent.New(stt.NewMock(), llm.NewMock("hi"), tts.NewMock(), session.NewMemoryStore())
	srv := web.NewServer("0", a, turnHub,
		web.WithRecordingsDir(recordings),
		web.WithRealtimeTranscriber(func() (*stt.Realtime, error) {
			return stt.NewRealtime("key",
				stt.WithRealtimeURL("ws"+strings.TrimPrefix(vendor.URL, "http")),
			)
		}),
	)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.App().Listener(ln)
	defer srv.App().Shutdown()

	url := "ws://" + ln.Addr().String() + "/ws/audio?session_id=live"
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"type": "start", "mimeType": "audio/webm"}); err != nil {
		t.Fatalf("send start: %v", err)
	}

	ready := readFrame(t, conn)
	if ready.Type != "ready" {
		t.Fatalf("expected ready frame, got %q", ready.Type)
	}
	if !strings.HasPrefix(ready.URL, "/recordings/live_") {
		t.Errorf("unexpected recording URL %q", ready.URL)
	}

	if err := conn.WriteMessage(gorilla.BinaryMessage, []byte("hello stream")); err != nil {
		t.Fatalf("send chunk: %v", err)
	}

	partial := readFrame(t, conn)
	if partial.Type != "transcript" || partial.Final || partial.Text != "hello stream" {
		t.Errorf("unexpected partial frame: %+v", partial)
	}
	final := readFrame(t, conn)
	if final.Type != "transcript" || !final.Final || final.Text != "hello stream" {
		t.Errorf("unexpected final frame: %+v", final)
	}

	if err := conn.WriteJSON(map[string]string{"type": "stop"}); err != nil {
		t.Fatalf("send stop: %v", err)
	}

	saved := readFrame(t, conn)
	if saved.Type != "saved" {
		t.Fatalf("expected saved frame, got %q", saved.Type)
	}

	data, err := os.ReadFile(filepath.Join(recordings, saved.Filename))
	if err != nil {
		t.Fatalf("read recording: %v", err)
	}
	if string(data) != "hello stream" {
		t.Errorf("recording content %q", data)
	}
}

func TestAudioWSRecordOnly(t *testing.T) {
	recordings := t.TempDir()
	turnHub := hub.New("turns")
	a := agent.New(stt.NewMock(), llm.NewMock("hi"), tts.NewMock(), session.NewMemoryStore())
	// No transcriber configured: the socket is a plain recorder.
	srv := web.NewServer("0", a, turnHub, web.WithRecordingsDir(recordings))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.App().Listener(ln)
	defer srv.App().Shutdown()

	conn, _, err := gorilla.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/audio", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Skipping "start" still opens a file lazily on the first chunk.
	if err := conn.WriteMessage(gorilla.BinaryMessage, []byte("chunk-1")); err != nil {
		t.Fatalf("send chunk: %v", err)
	}
	if err := conn.WriteMessage(gorilla.BinaryMessage, []byte("chunk-2")); err != nil {
		t.Fatalf("send chunk: %v", err)
	}
	if err := conn.WriteJSON(map[string]string{"type": "stop"}); err != nil {
		t.Fatalf("send stop: %v", err)
	}

	saved := readFrame(t, conn)
	if saved.Type != "saved" {
		t.Fatalf("expected saved frame, got %q", saved.Type)
	}

	data, err := os.ReadFile(filepath.Join(recordings, saved.Filename))
	if err != nil {
		t.Fatalf("read recording: %v", err)
	}
	if string(data) != "chunk-1chunk-2" {
		t.Errorf("recording content %q", data)
	}
}
