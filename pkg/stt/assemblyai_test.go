package stt_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/parley-ai/parley/pkg/stt"
)

// fakeVendor simulates the AssemblyAI upload/transcript/poll endpoints.
// statuses is the sequence of job statuses returned by successive polls.
type fakeVendor struct {
	statuses []string
	text     string
	jobErr   string

	polls     atomic.Int64
	uploads   atomic.Int64
	submitted atomic.Int64
}

func (f *fakeVendor) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.uploads.Add(1)
		json.NewEncoder(w).Encode(map[string]string{"upload_url": "https://vendor/audio/abc"})
	})

	mux.HandleFunc("/transcript", func(w http.ResponseWriter, r *http.Request) {
		f.submitted.Add(1)
		json.NewEncoder(w).Encode(map[string]string{"id": "job-1"})
	})

	mux.HandleFunc("/transcript/job-1", func(w http.ResponseWriter, r *http.Request) {
		n := f.polls.Add(1)
		idx := int(n) - 1
		if idx >= len(f.statuses) {
			idx = len(f.statuses) - 1
		}
		status := f.statuses[idx]

		resp := map[string]any{"id": "job-1", "status": status}
		if status == "completed" {
			resp["text"] = f.text
			resp["confidence"] = 0.9
		}
		if status == "error" {
			resp["error"] = f.jobErr
		}
		json.NewEncoder(w).Encode(resp)
	})

	return httptest.NewServer(mux)
}

func newTestProvider(t *testing.T, baseURL string, opts ...stt.Option) *stt.AssemblyAI {
	t.Helper()
	base := []stt.Option{
		stt.WithAPIKey("test-key"),
		stt.WithBaseURL(baseURL),
		stt.WithPollInterval(time.Millisecond),
	}
	p, err := stt.NewAssemblyAI(append(base, opts...)...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return p
}

func TestAssemblyAITranscribe(t *testing.T) {
	t.Run("completes after queued and processing", func(t *testing.T) {
		vendor := &fakeVendor{
			statuses: []string{"queued", "processing", "completed"},
			text:     "hello",
		}
		srv := vendor.server(t)
		defer srv.Close()

		p := newTestProvider(t, srv.URL)
		defer p.Close()

		transcript, err := p.Transcribe(context.Background(), []byte("audio"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if transcript.Text != "hello" {
			t.Errorf("expected text hello, got %q", transcript.Text)
		}
		if vendor.polls.Load() != 3 {
			t.Errorf("expected 3 polls, got %d", vendor.polls.Load())
		}
		if vendor.uploads.Load() != 1 {
			t.Errorf("expected 1 upload, got %d", vendor.uploads.Load())
		}
	})

	t.Run("job error carries vendor message", func(t *testing.T) {
		vendor := &fakeVendor{
			statuses: []string{"queued", "error"},
			jobErr:   "audio format not supported",
		}
		srv := vendor.server(t)
		defer srv.Close()

		p := newTestProvider(t, srv.URL)
		defer p.Close()

		_, err := p.Transcribe(context.Background(), []byte("audio"))
		if err == nil {
			t.Fatal("expected error")
		}

		var jobErr *stt.JobError
		if !errors.As(err, &jobErr) {
			t.Fatalf("expected JobError, got %T: %v", err, err)
		}
		if jobErr.Message != "audio format not supported" {
			t.Errorf("expected vendor message, got %q", jobErr.Message)
		}
	})

	t.Run("empty transcript is ErrNoSpeech", func(t *testing.T) {
		vendor := &fakeVendor{
			statuses: []string{"completed"},
			text:     "   ",
		}
		srv := vendor.server(t)
		defer srv.Close()

		p := newTestProvider(t, srv.URL)
		defer p.Close()

		_, err := p.Transcribe(context.Background(), []byte("audio"))
		if !errors.Is(err, stt.ErrNoSpeech) {
			t.Errorf("expected ErrNoSpeech, got %v", err)
		}
	})

	t.Run("poll budget is bounded", func(t *testing.T) {
		vendor := &fakeVendor{
			statuses: []string{"processing"},
		}
		srv := vendor.server(t)
		defer srv.Close()

		p := newTestProvider(t, srv.URL, stt.WithMaxPollAttempts(3))
		defer p.Close()

		_, err := p.Transcribe(context.Background(), []byte("audio"))
		if !errors.Is(err, stt.ErrPollTimeout) {
			t.Errorf("expected ErrPollTimeout, got %v", err)
		}
		if vendor.polls.Load() != 3 {
			t.Errorf("expected exactly 3 polls, got %d", vendor.polls.Load())
		}
	})

	t.Run("context cancellation aborts polling", func(t *testing.T) {
		vendor := &fakeVendor{
			statuses: []string{"processing"},
		}
		srv := vendor.server(t)
		defer srv.Close()

		p := newTestProvider(t, srv.URL,
			stt.WithPollInterval(50*time.Millisecond),
			stt.WithMaxPollAttempts(100),
		)
		defer p.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := p.Transcribe(ctx, []byte("audio"))
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline error, got %v", err)
		}
	})
}

func TestAssemblyAIConfig(t *testing.T) {
	t.Run("requires API key", func(t *testing.T) {
		_, err := stt.NewAssemblyAI()
		if err != stt.ErrNoAPIKey {
			t.Errorf("expected ErrNoAPIKey, got %v", err)
		}
	})

	t.Run("functional options apply", func(t *testing.T) {
		cfg := stt.DefaultConfig()
		cfg.Apply(
			stt.WithAPIKey("k"),
			stt.WithPollInterval(5*time.Second),
			stt.WithMaxPollAttempts(7),
		)
		if cfg.APIKey != "k" {
			t.Errorf("expected key k, got %s", cfg.APIKey)
		}
		if cfg.PollInterval != 5*time.Second {
			t.Errorf("expected 5s interval, got %v", cfg.PollInterval)
		}
		if cfg.MaxPollAttempts != 7 {
			t.Errorf("expected 7 attempts, got %d", cfg.MaxPollAttempts)
		}
	})
}

func TestMockProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("default transcript", func(t *testing.T) {
		mock := stt.NewMock()
		transcript, err := mock.Transcribe(ctx, []byte("audio"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if transcript.Text == "" {
			t.Error("expected transcript text")
		}
		if mock.CallCount("Transcribe") != 1 {
			t.Errorf("expected 1 call, got %d", mock.CallCount("Transcribe"))
		}
	})

	t.Run("fixed text", func(t *testing.T) {
		mock := stt.NewMockWithText("What's the weather?")
		transcript, err := mock.Transcribe(ctx, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if transcript.Text != "What's the weather?" {
			t.Errorf("unexpected text %q", transcript.Text)
		}
	})

	t.Run("error mock", func(t *testing.T) {
		boom := errors.New("boom")
		mock := stt.WithError(boom)
		if _, err := mock.Transcribe(ctx, nil); !errors.Is(err, boom) {
			t.Errorf("expected boom, got %v", err)
		}
		if err := mock.Health(ctx); !errors.Is(err, boom) {
			t.Errorf("expected boom, got %v", err)
		}
	})
}
