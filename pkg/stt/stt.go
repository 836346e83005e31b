// Package stt provides a unified interface for speech-to-text providers.
//
// The package currently ships an AssemblyAI backend in two flavors: a batch
// transcriber that uploads recorded audio and polls the transcript job, and a
// realtime transcriber that streams audio chunks over a websocket. Both are
// hidden behind small interfaces so callers can swap providers (or inject
// mocks) without changing orchestration code.
//
// Example usage:
//
//	provider, _ := stt.NewAssemblyAI(
//	    stt.WithAPIKey(os.Getenv("ASSEMBLYAI_API_KEY")),
//	)
//	defer provider.Close()
//
//	transcript, _ := provider.Transcribe(ctx, audioBytes)
//	// transcript.Text contains the recognized speech
package stt

import (
	"context"
	"time"
)

// Provider defines the batch speech-to-text interface.
type Provider interface {
	// Transcribe converts recorded audio bytes to text.
	// It blocks until the vendor job completes, fails, or ctx is done.
	Transcribe(ctx context.Context, audio []byte) (*Transcript, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Transcript is the result of a completed transcription job.
type Transcript struct {
	// Text is the recognized speech, trimmed.
	Text string

	// Confidence is the vendor's confidence score, if reported.
	Confidence float64

	// AudioDuration is the length of the source audio, if reported.
	AudioDuration time.Duration

	// LatencyMs is the wall-clock time from upload to completed job.
	LatencyMs int64
}

// JobStatus is the lifecycle state of a vendor transcription job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusError      JobStatus = "error"
)

// Terminal reports whether the job has finished (successfully or not).
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}
