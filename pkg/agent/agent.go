// Package agent orchestrates a voice turn: transcribe the caller's
// audio, generate a reply from the session's history, and synthesize
// the reply to speech.
//
// The orchestrator never fails a turn. Each stage that errors is
// recorded and replaced by a fallback (canned user text for a failed
// transcription, a canned reply for a failed generation, a missing
// audio URL for failed synthesis), so the caller always receives a
// complete TurnResult.
package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/parley-ai/parley/pkg/chat"
	"github.com/parley-ai/parley/pkg/llm"
	"github.com/parley-ai/parley/pkg/session"
	"github.com/parley-ai/parley/pkg/stt"
	"github.com/parley-ai/parley/pkg/tts"
)

// Stage timeouts. Transcription dominates because the vendor job is
// polled until it completes.
const (
	DefaultSTTTimeout = 2 * time.Minute
	DefaultLLMTimeout = 30 * time.Second
	DefaultTTSTimeout = 30 * time.Second
)

// Agent runs the transcribe-generate-speak pipeline over a session store.
// Turns within one session are serialized; distinct sessions run
// concurrently.
type Agent struct {
	stt   stt.Provider
	llm   llm.Provider
	tts   tts.Provider
	store session.Store

	sttTimeout time.Duration
	llmTimeout time.Duration
	ttsTimeout time.Duration

	onTurn func(chat.TurnResult)
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option customizes an Agent.
type Option func(*Agent)

// WithLogger sets the agent's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = logger.With("component", "agent")
	}
}

// WithStageTimeouts overrides the per-stage deadlines. Zero keeps the default.
func WithStageTimeouts(sttT, llmT, ttsT time.Duration) Option {
	return func(a *Agent) {
		if sttT > 0 {
			a.sttTimeout = sttT
		}
		if llmT > 0 {
			a.llmTimeout = llmT
		}
		if ttsT > 0 {
			a.ttsTimeout = ttsT
		}
	}
}

// WithTurnListener registers a callback invoked after every completed
// turn, degraded or not. Used to fan results out to live subscribers.
func WithTurnListener(fn func(chat.TurnResult)) Option {
	return func(a *Agent) {
		a.onTurn = fn
	}
}

// New creates an Agent. All four collaborators are required.
func New(sttP stt.Provider, llmP llm.Provider, ttsP tts.Provider, store session.Store, opts ...Option) *Agent {
	a := &Agent{
		stt:        sttP,
		llm:        llmP,
		tts:        ttsP,
		store:      store,
		sttTimeout: DefaultSTTTimeout,
		llmTimeout: DefaultLLMTimeout,
		ttsTimeout: DefaultTTSTimeout,
		logger:     slog.Default().With("component", "agent"),
		locks:      make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// sessionLock returns the mutex serializing turns for one session.
func (a *Agent) sessionLock(sessionID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()

	lock, ok := a.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		a.locks[sessionID] = lock
	}
	return lock
}

// ProcessTurn runs one full voice turn for the session. It always
// returns a TurnResult; inspect result.Errors for degraded stages.
func (a *Agent) ProcessTurn(ctx context.Context, sessionID string, audio []byte) chat.TurnResult {
	lock := a.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	a.logger.Info("turn started",
		"session_id", sessionID,
		"audio_bytes", len(audio),
	)

	var errs chat.StageErrors

	// Stage 1: transcription. On failure the turn continues with a
	// stand-in user message so the conversation stays coherent.
	userMessage := a.transcribe(ctx, audio, &errs)

	if err := a.store.Append(ctx, sessionID, chat.RoleUser, userMessage); err != nil {
		return a.criticalResult(sessionID, err)
	}

	// Stage 2: generation over the full history, including the message
	// just appended.
	reply := a.generate(ctx, sessionID, &errs)

	if err := a.store.Append(ctx, sessionID, chat.RoleAssistant, reply); err != nil {
		return a.criticalResult(sessionID, err)
	}

	// Stage 3: synthesis. Failure only costs the audio URL.
	audioURL := a.speak(ctx, reply, &errs)

	count, err := a.store.Count(ctx, sessionID)
	if err != nil {
		a.logger.Error("history count failed", "session_id", sessionID, "error", err)
	}

	result := chat.TurnResult{
		SessionID:     sessionID,
		Transcript:    userMessage,
		Reply:         reply,
		AudioURL:      audioURL,
		HistoryLength: count,
		InputType:     "audio",
		Errors:        errs,
	}

	a.logger.Info("turn completed",
		"session_id", sessionID,
		"history_length", count,
		"degraded", errs.Any(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if a.onTurn != nil {
		a.onTurn(result)
	}
	return result
}

func (a *Agent) transcribe(ctx context.Context, audio []byte, errs *chat.StageErrors) string {
	sctx, cancel := context.WithTimeout(ctx, a.sttTimeout)
	defer cancel()

	transcript, err := a.stt.Transcribe(sctx, audio)
	if err != nil {
		errs.Transcription = err.Error()
		a.logger.Error("transcription failed", "error", err)
		return TranscriptionFallbackText
	}

	a.logger.Debug("transcription ok",
		"chars", len(transcript.Text),
		"latency_ms", transcript.LatencyMs,
	)
	return transcript.Text
}

func (a *Agent) generate(ctx context.Context, sessionID string, errs *chat.StageErrors) string {
	history, err := a.store.History(ctx, sessionID)
	if err != nil {
		errs.LLM = err.Error()
		a.logger.Error("history load failed", "session_id", sessionID, "error", err)
		return FallbackReply(errs.Transcription != "", true, false)
	}

	lctx, cancel := context.WithTimeout(ctx, a.llmTimeout)
	defer cancel()

	reply, err := a.llm.Generate(lctx, history)
	if err != nil {
		errs.LLM = err.Error()
		a.logger.Error("generation failed", "session_id", sessionID, "error", err)
		return FallbackReply(errs.Transcription != "", true, false)
	}
	return reply
}

func (a *Agent) speak(ctx context.Context, reply string, errs *chat.StageErrors) *string {
	tctx, cancel := context.WithTimeout(ctx, a.ttsTimeout)
	defer cancel()

	result, err := a.tts.Synthesize(tctx, reply)
	if err != nil {
		errs.TTS = err.Error()
		a.logger.Error("synthesis failed", "error", err)
		return nil
	}
	if result == nil {
		// Empty reply text; nothing to speak.
		return nil
	}
	return &result.AudioURL
}

// criticalResult is the fixed response for failures outside any stage,
// such as the session store refusing writes.
func (a *Agent) criticalResult(sessionID string, err error) chat.TurnResult {
	a.logger.Error("critical turn failure", "session_id", sessionID, "error", err)

	result := chat.TurnResult{
		SessionID:     sessionID,
		Transcript:    CriticalUserMessage,
		Reply:         CriticalReply,
		AudioURL:      nil,
		HistoryLength: 0,
		InputType:     "audio",
		Errors:        chat.StageErrors{Critical: err.Error()},
	}
	if a.onTurn != nil {
		a.onTurn(result)
	}
	return result
}

// History returns the session's conversation so far.
func (a *Agent) History(ctx context.Context, sessionID string) (chat.History, error) {
	msgs, err := a.store.History(ctx, sessionID)
	if err != nil {
		return chat.History{}, err
	}
	return chat.History{SessionID: sessionID, Messages: msgs}, nil
}

// Clear removes the session's history. The bool reports whether the
// session existed.
func (a *Agent) Clear(ctx context.Context, sessionID string) (bool, error) {
	existed, err := a.store.Clear(ctx, sessionID)
	a.releaseSessionLock(sessionID)
	return existed, err
}

// releaseSessionLock drops a session's mutex from the map so cleared
// sessions do not accumulate entries. An in-flight turn keeps its
// mutex; eviction is skipped and retried on the next Clear.
func (a *Agent) releaseSessionLock(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	lock, ok := a.locks[sessionID]
	if !ok {
		return
	}
	if lock.TryLock() {
		delete(a.locks, sessionID)
		lock.Unlock()
	}
}

// Health probes each provider and reports per-service availability.
func (a *Agent) Health(ctx context.Context) map[string]string {
	status := func(err error) string {
		if err != nil {
			return "unavailable"
		}
		return "available"
	}
	return map[string]string{
		"stt_service": status(a.stt.Health(ctx)),
		"llm_service": status(a.llm.Health(ctx)),
		"tts_service": status(a.tts.Health(ctx)),
	}
}

// Close shuts down all providers and the store.
func (a *Agent) Close() error {
	var lastErr error
	for _, c := range []interface{ Close() error }{a.stt, a.llm, a.tts, a.store} {
		if err := c.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
