package stt

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
)

const (
	assemblyAIBaseURL  = "https://api.assemblyai.com/v2"
	providerAssemblyAI = "assemblyai"
)

// AssemblyAI implements Provider for AssemblyAI batch transcription.
//
// A transcription is three vendor calls: upload the raw bytes to get an
// opaque reference URL, submit a transcript job for that URL, then poll the
// job until it reaches a terminal status.
type AssemblyAI struct {
	config  *Config
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// NewAssemblyAI creates a new AssemblyAI STT provider.
func NewAssemblyAI(opts ...Option) (*AssemblyAI, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = assemblyAIBaseURL
	}

	return &AssemblyAI{
		config:  cfg,
		client:  httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "stt.assemblyai"),
		baseURL: baseURL,
	}, nil
}

// Transcribe uploads the audio, submits a transcript job, and polls until
// the job completes. Polling is bounded by MaxPollAttempts and aborts as
// soon as ctx is cancelled.
func (a *AssemblyAI) Transcribe(ctx context.Context, audio []byte) (*Transcript, error) {
	start := time.Now()

	audioURL, err := a.upload(ctx, audio)
	if err != nil {
		return nil, err
	}

	jobID, err := a.submitJob(ctx, audioURL)
	if err != nil {
		return nil, err
	}

	result, err := a.pollJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		return nil, WrapError(providerAssemblyAI, ErrNoSpeech)
	}

	latency := time.Since(start).Milliseconds()
	a.logger.Debug("transcription completed",
		"job_id", jobID,
		"chars", len(text),
		"latency_ms", latency,
	)

	return &Transcript{
		Text:          text,
		Confidence:    result.Confidence,
		AudioDuration: time.Duration(result.AudioDuration) * time.Second,
		LatencyMs:     latency,
	}, nil
}

// Health checks API connectivity and API key validity.
// AssemblyAI has no dedicated health endpoint; listing transcripts with a
// limit of one exercises auth without side effects.
func (a *AssemblyAI) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", a.baseURL+"/transcript?limit=1", nil)
	if err != nil {
		return WrapError(providerAssemblyAI, err)
	}
	req.Header.Set("authorization", a.config.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return WrapError(providerAssemblyAI, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return a.parseError(resp)
	}
	return nil
}

// Close releases resources held by the provider.
func (a *AssemblyAI) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

// upload sends raw audio bytes to the ingest endpoint and returns the
// opaque reference URL for the stored audio.
func (a *AssemblyAI) upload(ctx context.Context, audio []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", a.baseURL+"/upload", bytes.NewReader(audio))
	if err != nil {
		return "", WrapError(providerAssemblyAI, fmt.Errorf("create upload request: %w", err))
	}
	req.Header.Set("authorization", a.config.APIKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := a.doWithRetry(ctx, req, audio)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", a.parseError(resp)
	}

	var body struct {
		UploadURL string `json:"upload_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", WrapError(providerAssemblyAI, fmt.Errorf("decode upload response: %w", err))
	}
	if body.UploadURL == "" {
		return "", WrapError(providerAssemblyAI, fmt.Errorf("upload response missing upload_url"))
	}

	a.logger.Debug("audio uploaded", "bytes", len(audio))
	return body.UploadURL, nil
}

// submitJob creates a transcript job referencing an uploaded audio URL.
func (a *AssemblyAI) submitJob(ctx context.Context, audioURL string) (string, error) {
	payload, err := json.Marshal(map[string]string{"audio_url": audioURL})
	if err != nil {
		return "", WrapError(providerAssemblyAI, fmt.Errorf("marshal job payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.baseURL+"/transcript", bytes.NewReader(payload))
	if err != nil {
		return "", WrapError(providerAssemblyAI, fmt.Errorf("create job request: %w", err))
	}
	a.setJSONHeaders(req)

	resp, err := a.doWithRetry(ctx, req, payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", a.parseError(resp)
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", WrapError(providerAssemblyAI, fmt.Errorf("decode job response: %w", err))
	}
	if body.ID == "" {
		return "", WrapError(providerAssemblyAI, fmt.Errorf("job response missing id"))
	}

	a.logger.Debug("transcription job submitted", "job_id", body.ID)
	return body.ID, nil
}

// transcriptJob is the poll response shape for a transcript job.
type transcriptJob struct {
	ID            string    `json:"id"`
	Status        JobStatus `json:"status"`
	Text          string    `json:"text"`
	Confidence    float64   `json:"confidence"`
	AudioDuration float64   `json:"audio_duration"`
	Error         string    `json:"error"`
}

// pollJob checks the job status on a fixed interval until it completes,
// fails, the attempt budget is spent, or ctx is cancelled.
func (a *AssemblyAI) pollJob(ctx context.Context, jobID string) (*transcriptJob, error) {
	for attempt := 0; attempt < a.config.MaxPollAttempts; attempt++ {
		job, err := a.getJob(ctx, jobID)
		if err != nil {
			return nil, err
		}

		switch job.Status {
		case StatusCompleted:
			return job, nil
		case StatusError:
			msg := job.Error
			if msg == "" {
				msg = "unknown transcription error"
			}
			return nil, WrapError(providerAssemblyAI, &JobError{JobID: jobID, Message: msg})
		}

		select {
		case <-ctx.Done():
			return nil, WrapError(providerAssemblyAI, ctx.Err())
		case <-time.After(a.config.PollInterval):
		}
	}

	return nil, WrapError(providerAssemblyAI, ErrPollTimeout)
}

// getJob fetches the current state of a transcript job.
func (a *AssemblyAI) getJob(ctx context.Context, jobID string) (*transcriptJob, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", a.baseURL+"/transcript/"+jobID, nil)
	if err != nil {
		return nil, WrapError(providerAssemblyAI, fmt.Errorf("create poll request: %w", err))
	}
	a.setJSONHeaders(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, WrapError(providerAssemblyAI, fmt.Errorf("poll request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, a.parseError(resp)
	}

	var job transcriptJob
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, WrapError(providerAssemblyAI, fmt.Errorf("decode poll response: %w", err))
	}
	return &job, nil
}

// setJSONHeaders sets required HTTP headers for JSON endpoints.
func (a *AssemblyAI) setJSONHeaders(req *http.Request) {
	req.Header.Set("authorization", a.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
}

// doWithRetry performs the request with retry logic.
// body is the original request payload, re-attached on each retry.
func (a *AssemblyAI) doWithRetry(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= a.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, WrapError(providerAssemblyAI, ctx.Err())
			case <-time.After(a.config.RetryDelay * time.Duration(attempt)):
			}
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		resp, err := a.client.Do(req)
		if err != nil {
			lastErr = WrapError(providerAssemblyAI, err)
			continue
		}

		if resp.StatusCode == 429 || resp.StatusCode >= 500 {
			lastErr = a.parseError(resp)
			resp.Body.Close()
			a.logger.Warn("retrying request",
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
func (a *AssemblyAI) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error string `json:"error"`
	}

	message := string(body)
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		message = errResp.Error
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Provider:   providerAssemblyAI,
	}
}

// Verify AssemblyAI implements Provider at compile time.
var _ Provider = (*AssemblyAI)(nil)
