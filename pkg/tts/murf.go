package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/parley-ai/parley/internal/httpc"
)

const (
	murfBaseURL  = "https://api.murf.ai/v1"
	providerMurf = "murf"
)

// Murf implements Provider for the Murf speech-generation API.
// The vendor renders audio server-side and returns a URL to the file.
type Murf struct {
	config  *Config
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// NewMurf creates a new Murf TTS provider.
func NewMurf(opts ...Option) (*Murf, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.ValidateWithVoice(); err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = murfBaseURL
	}

	return &Murf{
		config:  cfg,
		client:  httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "tts.murf"),
		baseURL: baseURL,
	}, nil
}

// Synthesize sends text to the speech-generation endpoint and returns the
// rendered audio URL. Empty text yields (nil, nil) with no vendor call.
// Text beyond the payload cap is truncated silently before sending; the
// Truncated flag on the result records that it happened.
func (m *Murf) Synthesize(ctx context.Context, text string) (*SpeechResult, error) {
	if text == "" {
		m.logger.Warn("empty text passed to synthesize, skipping vendor call")
		return nil, nil
	}

	truncated := false
	if m.config.MaxTextLength > 0 && len(text) > m.config.MaxTextLength {
		cut := m.config.MaxTextLength
		// Back off to a rune boundary so the cap never splits a
		// multibyte character.
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
		truncated = true
		m.logger.Debug("text truncated to payload cap", "cap", m.config.MaxTextLength)
	}

	start := time.Now()

	payload := map[string]interface{}{
		"text":     text,
		"voice_id": m.config.VoiceID,
		"speed":    m.config.VoiceStyle.Speed,
		"pitch":    m.config.VoiceStyle.Pitch,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(providerMurf, fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", m.baseURL+"/speech/generate", bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(providerMurf, fmt.Errorf("create request: %w", err))
	}
	m.setHeaders(req)

	resp, err := m.doWithRetry(ctx, req, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	latency := time.Since(start).Milliseconds()

	if resp.StatusCode != http.StatusOK {
		return nil, m.parseError(resp)
	}

	var out struct {
		AudioFile string `json:"audioFile"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, WrapError(providerMurf, fmt.Errorf("decode response: %w", err))
	}
	if out.AudioFile == "" {
		return nil, WrapError(providerMurf, ErrNoAudioURL)
	}

	m.logger.Debug("synthesized speech",
		"chars", len(text),
		"truncated", truncated,
		"latency_ms", latency,
		"voice", m.config.VoiceID,
	)

	return &SpeechResult{
		AudioURL:  out.AudioFile,
		CharCount: len(text),
		Truncated: truncated,
		LatencyMs: latency,
	}, nil
}

// Health checks API connectivity and API key validity.
func (m *Murf) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", m.baseURL+"/speech/voices", nil)
	if err != nil {
		return WrapError(providerMurf, err)
	}
	req.Header.Set("api-key", m.config.APIKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return WrapError(providerMurf, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return m.parseError(resp)
	}
	return nil
}

// Close releases resources held by the provider.
func (m *Murf) Close() error {
	m.client.CloseIdleConnections()
	return nil
}

// VoiceID returns the configured voice ID.
func (m *Murf) VoiceID() string {
	return m.config.VoiceID
}

// setHeaders sets required HTTP headers.
func (m *Murf) setHeaders(req *http.Request) {
	req.Header.Set("api-key", m.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
}

// doWithRetry performs the request with retry logic.
func (m *Murf) doWithRetry(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= m.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, WrapError(providerMurf, ctx.Err())
			case <-time.After(m.config.RetryDelay * time.Duration(attempt)):
			}
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		resp, err := m.client.Do(req)
		if err != nil {
			lastErr = WrapError(providerMurf, err)
			continue
		}

		if resp.StatusCode == 429 || resp.StatusCode >= 500 {
			lastErr = m.parseError(resp)
			resp.Body.Close()
			m.logger.Warn("retrying request",
				"attempt", attempt+1,
				"status", resp.StatusCode,
			)
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

// parseError reads and parses an error response.
func (m *Murf) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		ErrorMessage string `json:"errorMessage"`
		Message      string `json:"message"`
	}

	message := string(body)
	if json.Unmarshal(body, &errResp) == nil {
		if errResp.ErrorMessage != "" {
			message = errResp.ErrorMessage
		} else if errResp.Message != "" {
			message = errResp.Message
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Provider:   providerMurf,
	}
}

// Verify Murf implements Provider at compile time.
var _ Provider = (*Murf)(nil)
