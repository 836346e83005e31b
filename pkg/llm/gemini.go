package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/parley-ai/parley/internal/httpc"
	"github.com/parley-ai/parley/pkg/chat"
)

const (
	geminiBaseURL  = "https://generativelanguage.googleapis.com/v1beta"
	providerGemini = "gemini"

	// ModelGeminiFlash is the default fast model.
	ModelGeminiFlash = "gemini-1.5-flash"

	// ModelGeminiPro is the higher quality model.
	ModelGeminiPro = "gemini-1.5-pro"
)

// Gemini implements Provider for Google's Gemini completion API.
// History is flattened into a single text prompt on every call; there is
// no token-budget management, the session store's cap bounds prompt growth.
type Gemini struct {
	config  *Config
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// NewGemini creates a new Gemini LLM provider.
func NewGemini(opts ...Option) (*Gemini, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = ModelGeminiFlash
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = geminiBaseURL
	}

	return &Gemini{
		config:  cfg,
		client:  httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "llm.gemini"),
		baseURL: baseURL,
	}, nil
}

// geminiRequest is the generateContent request shape.
type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig *geminiGenCfg   `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenCfg struct {
	Temperature float64 `json:"temperature"`
}

// geminiResponse is the generateContent response shape.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate flattens the history and requests a single completion.
func (g *Gemini) Generate(ctx context.Context, history []chat.Message) (string, error) {
	start := time.Now()

	prompt := FlattenHistory(history)
	payload := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: &geminiGenCfg{Temperature: g.config.Temperature},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", WrapError(providerGemini, fmt.Errorf("marshal payload: %w", err))
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.config.Model, g.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", WrapError(providerGemini, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.doWithRetry(ctx, req, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", g.parseError(resp)
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", WrapError(providerGemini, fmt.Errorf("decode response: %w", err))
	}

	text := g.extractText(&out)
	if text == "" {
		return "", WrapError(providerGemini, ErrEmptyCompletion)
	}

	g.logger.Debug("completion generated",
		"model", g.config.Model,
		"history_len", len(history),
		"chars", len(text),
		"latency_ms", time.Since(start).Milliseconds(),
	)

	return text, nil
}

// Health checks API connectivity and API key validity by listing models.
func (g *Gemini) Health(ctx context.Context) error {
	url := fmt.Sprintf("%s/models?key=%s&pageSize=1", g.baseURL, g.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return WrapError(providerGemini, err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return WrapError(providerGemini, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return g.parseError(resp)
	}
	return nil
}

// Close releases resources held by the provider.
func (g *Gemini) Close() error {
	g.client.CloseIdleConnections()
	return nil
}

// Model returns the configured model ID.
func (g *Gemini) Model() string {
	return g.config.Model
}

// extractText concatenates candidate parts into trimmed response text.
func (g *Gemini) extractText(resp *geminiResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return strings.TrimSpace(b.String())
}

// doWithRetry performs the request with retry logic.
func (g *Gemini) doWithRetry(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= g.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, WrapError(providerGemini, ctx.Err())
			case <-time.After(g.config.RetryDelay * time.Duration(attempt)):
			}
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		resp, err := g.client.Do(req)
		if err != nil {
			lastErr = WrapError(providerGemini, err)
			continue
		}

		if resp.StatusCode == 429 || resp.StatusCode >= 500 {
			lastErr = g.parseError(resp)
			resp.Body.Close()
			g.logger.Warn("retrying request",
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
func (g *Gemini) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp geminiResponse
	message := string(body)
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Provider:   providerGemini,
	}
}

// Verify Gemini implements Provider at compile time.
var _ Provider = (*Gemini)(nil)
