package web_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/parley-ai/parley/pkg/agent"
	"github.com/parley-ai/parley/pkg/chat"
	"github.com/parley-ai/parley/pkg/hub"
	"github.com/parley-ai/parley/pkg/llm"
	"github.com/parley-ai/parley/pkg/session"
	"github.com/parley-ai/parley/pkg/stt"
	"github.com/parley-ai/parley/pkg/tts"
	"github.com/parley-ai/parley/pkg/web"
)

func newTestServer(t *testing.T, sttP stt.Provider, llmP llm.Provider, ttsP tts.Provider) *web.Server {
	t.Helper()
	turnHub := hub.New("turns")
	a := agent.New(sttP, llmP, ttsP, session.NewMemoryStore(),
		agent.WithTurnListener(turnHub.BroadcastTurn),
	)
	return web.NewServer("0", a, turnHub, web.WithRecordingsDir(t.TempDir()))
}

// audioUpload builds a multipart body with one audio file part.
func audioUpload(t *testing.T, contentType string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="clip.webm"`)
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	part.Write([]byte("fake-audio-bytes"))
	w.Close()

	return &buf, w.FormDataContentType()
}

func decodeTurn(t *testing.T, resp *http.Response) chat.TurnResult {
	t.Helper()
	defer resp.Body.Close()
	var result chat.TurnResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result
}

func TestAgentChat(t *testing.T) {
	t.Run("full turn", func(t *testing.T) {
		srv := newTestServer(t,
			stt.NewMockWithText("What's the weather?"),
			llm.NewMock("It's sunny today."),
			tts.NewMock(),
		)

		body, contentType := audioUpload(t, "audio/webm")
		req := httptest.NewRequest(http.MethodPost, "/agent/chat/s1", body)
		req.Header.Set("Content-Type", contentType)

		resp, err := srv.App().Test(req, -1)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}

		result := decodeTurn(t, resp)
		if result.SessionID != "s1" {
			t.Errorf("unexpected session_id %q", result.SessionID)
		}
		if result.Transcript != "What's the weather?" {
			t.Errorf("unexpected user_message %q", result.Transcript)
		}
		if result.Reply != "It's sunny today." {
			t.Errorf("unexpected assistant_response %q", result.Reply)
		}
		if result.AudioURL == nil {
			t.Error("expected audio_url")
		}
		if result.HistoryLength != 2 {
			t.Errorf("expected chat_history_length 2, got %d", result.HistoryLength)
		}
	})

	t.Run("content type parameters are ignored", func(t *testing.T) {
		srv := newTestServer(t, stt.NewMock(), llm.NewMock("hi"), tts.NewMock())

		body, contentType := audioUpload(t, "audio/webm;codecs=opus")
		req := httptest.NewRequest(http.MethodPost, "/agent/chat/s1", body)
		req.Header.Set("Content-Type", contentType)

		resp, err := srv.App().Test(req, -1)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected 200, got %d", resp.StatusCode)
		}
		resp.Body.Close()
	})

	t.Run("invalid file type", func(t *testing.T) {
		srv := newTestServer(t, stt.NewMock(), llm.NewMock("hi"), tts.NewMock())

		body, contentType := audioUpload(t, "text/plain")
		req := httptest.NewRequest(http.MethodPost, "/agent/chat/s1", body)
		req.Header.Set("Content-Type", contentType)

		resp, err := srv.App().Test(req, -1)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
		resp.Body.Close()
	})

	t.Run("missing file", func(t *testing.T) {
		srv := newTestServer(t, stt.NewMock(), llm.NewMock("hi"), tts.NewMock())

		req := httptest.NewRequest(http.MethodPost, "/agent/chat/s1", nil)
		resp, err := srv.App().Test(req, -1)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
		resp.Body.Close()
	})

	t.Run("degraded turn still returns 200", func(t *testing.T) {
		srv := newTestServer(t,
			stt.WithError(errors.New("stt down")),
			llm.NewMock("still here"),
			tts.NewMock(),
		)

		body, contentType := audioUpload(t, "audio/webm")
		req := httptest.NewRequest(http.MethodPost, "/agent/chat/s1", body)
		req.Header.Set("Content-Type", contentType)

		resp, err := srv.App().Test(req, -1)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}

		result := decodeTurn(t, resp)
		if result.Errors.Transcription == "" {
			t.Error("expected transcription error in response")
		}
		if result.Transcript != agent.TranscriptionFallbackText {
			t.Errorf("unexpected user_message %q", result.Transcript)
		}
	})
}

func TestHistoryEndpoints(t *testing.T) {
	srv := newTestServer(t, stt.NewMockWithText("hi"), llm.NewMock("hello"), tts.NewMock())

	runTurn := func(t *testing.T, sessionID string) {
		t.Helper()
		body, contentType := audioUpload(t, "audio/webm")
		req := httptest.NewRequest(http.MethodPost, "/agent/chat/"+sessionID, body)
		req.Header.Set("Content-Type", contentType)
		resp, err := srv.App().Test(req, -1)
		if err != nil {
			t.Fatalf("turn failed: %v", err)
		}
		resp.Body.Close()
	}

	t.Run("history reflects turns", func(t *testing.T) {
		runTurn(t, "h1")
		runTurn(t, "h1")

		req := httptest.NewRequest(http.MethodGet, "/agent/chat/h1/history", nil)
		resp, err := srv.App().Test(req, -1)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		var history chat.History
		if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
			t.Fatalf("decode history: %v", err)
		}
		if history.SessionID != "h1" {
			t.Errorf("unexpected session_id %q", history.SessionID)
		}
		if len(history.Messages) != 4 {
			t.Errorf("expected 4 messages, got %d", len(history.Messages))
		}
	})

	t.Run("history for unknown session is empty", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/agent/chat/unknown/history", nil)
		resp, err := srv.App().Test(req, -1)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		raw, _ := io.ReadAll(resp.Body)
		var history chat.History
		if err := json.Unmarshal(raw, &history); err != nil {
			t.Fatalf("decode history: %v", err)
		}
		if len(history.Messages) != 0 {
			t.Errorf("expected empty history, got %d messages", len(history.Messages))
		}
		if bytes.Contains(raw, []byte(`"messages":null`)) {
			t.Error("messages should encode as an empty array")
		}
	})

	t.Run("clear session", func(t *testing.T) {
		runTurn(t, "c1")

		req := httptest.NewRequest(http.MethodDelete, "/agent/chat/c1", nil)
		resp, err := srv.App().Test(req, -1)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		var body struct {
			Message   string `json:"message"`
			SessionID string `json:"session_id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Message != "Chat history cleared for session c1" {
			t.Errorf("unexpected message %q", body.Message)
		}
	})

	t.Run("clear unknown session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/agent/chat/never", nil)
		resp, err := srv.App().Test(req, -1)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		var body struct {
			Message string `json:"message"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		if body.Message != "No chat history found for session never" {
			t.Errorf("unexpected message %q", body.Message)
		}
	})
}

func TestHealth(t *testing.T) {
	t.Run("healthy with all keys and services", func(t *testing.T) {
		t.Setenv("ASSEMBLYAI_API_KEY", "k")
		t.Setenv("GEMINI_API_KEY", "k")
		t.Setenv("MURF_API_KEY", "k")
		t.Setenv("MURF_VOICE_ID", "v")

		srv := newTestServer(t, stt.NewMock(), llm.NewMock("hi"), tts.NewMock())

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, err := srv.App().Test(req, -1)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		var health struct {
			Status         string            `json:"status"`
			MissingAPIKeys []string          `json:"missing_api_keys"`
			Services       map[string]string `json:"services"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if health.Status != "healthy" {
			t.Errorf("expected healthy, got %s", health.Status)
		}
		if len(health.MissingAPIKeys) != 0 {
			t.Errorf("expected no missing keys, got %v", health.MissingAPIKeys)
		}
		if health.Services["stt_service"] != "available" {
			t.Errorf("unexpected stt status %q", health.Services["stt_service"])
		}
	})

	t.Run("down when every service is unavailable", func(t *testing.T) {
		t.Setenv("ASSEMBLYAI_API_KEY", "k")
		t.Setenv("GEMINI_API_KEY", "k")
		t.Setenv("MURF_API_KEY", "k")
		t.Setenv("MURF_VOICE_ID", "v")

		err := errors.New("vendor down")
		srv := newTestServer(t, stt.WithError(err), llm.WithError(err), tts.WithError(err))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, reqErr := srv.App().Test(req, -1)
		if reqErr != nil {
			t.Fatalf("request failed: %v", reqErr)
		}
		defer resp.Body.Close()

		var health struct {
			Status string `json:"status"`
		}
		json.NewDecoder(resp.Body).Decode(&health)
		if health.Status != "down" {
			t.Errorf("expected down, got %s", health.Status)
		}
	})
}
