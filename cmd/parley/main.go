package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/parley-ai/parley/internal/config"
	"github.com/parley-ai/parley/internal/log"
	"github.com/parley-ai/parley/pkg/agent"
	"github.com/parley-ai/parley/pkg/hub"
	"github.com/parley-ai/parley/pkg/llm"
	"github.com/parley-ai/parley/pkg/session"
	"github.com/parley-ai/parley/pkg/stt"
	"github.com/parley-ai/parley/pkg/tts"
	"github.com/parley-ai/parley/pkg/web"
)

func main() {
	port := flag.String("port", config.Get("PORT", config.DefaultPort), "HTTP listen port")
	logLevel := flag.String("log-level", config.Get("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	recordingsDir := flag.String("recordings", config.Get("RECORDINGS_DIR", config.DefaultRecordingsDir), "Directory for streamed recordings")
	staticDir := flag.String("static", config.Get("STATIC_DIR", config.DefaultStaticDir), "Directory served at /static")
	flag.Parse()

	log.Init(*logLevel)
	logger := log.With("component", "main")

	if missing := config.MissingKeys(); len(missing) > 0 {
		logger.Warn("starting without some vendor credentials; affected stages will degrade",
			"missing", missing,
		)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := buildStore(ctx, logger)
	sttP := buildSTT(logger)
	llmP := buildLLM(logger)
	ttsP := buildTTS(logger)

	turnHub := hub.New("turns")
	a := agent.New(sttP, llmP, ttsP, store,
		agent.WithLogger(log.L()),
		agent.WithTurnListener(turnHub.BroadcastTurn),
	)
	defer a.Close()

	serverOpts := []web.ServerOption{
		web.WithRecordingsDir(*recordingsDir),
		web.WithStaticDir(*staticDir),
		web.WithServerLogger(log.L()),
	}
	if key := os.Getenv(config.EnvAssemblyAIKey); key != "" {
		serverOpts = append(serverOpts, web.WithRealtimeTranscriber(func() (*stt.Realtime, error) {
			return stt.NewRealtime(key, stt.WithRealtimeLogger(log.L()))
		}))
	}

	srv := web.NewServer(*port, a, turnHub, serverOpts...)

	// Graceful shutdown on SIGINT/SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("shutting down", "signal", sig.String())
		if err := srv.Shutdown(); err != nil {
			logger.Error("shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("parley starting", "port", *port)
	if err := srv.Start(); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// buildStore selects the session backend. SESSION_STORE=redis enables
// the Redis store; anything else keeps history in process memory.
func buildStore(ctx context.Context, logger *slog.Logger) session.Store {
	maxMessages := config.GetInt("SESSION_MAX_MESSAGES", session.DefaultMaxMessages)

	if config.Get("SESSION_STORE", "memory") != "redis" {
		return session.NewMemoryStoreWithCap(maxMessages)
	}

	store, err := session.NewRedisStore(ctx,
		config.Get("REDIS_ADDR", "localhost:6379"),
		config.Get("REDIS_PASSWORD", ""),
		config.GetInt("REDIS_DB", 0),
		session.WithMaxMessages(maxMessages),
		session.WithTTL(config.GetDuration("SESSION_TTL", session.DefaultSessionTTL)),
		session.WithLogger(log.L()),
	)
	if err != nil {
		logger.Warn("redis unavailable, falling back to in-memory sessions", "error", err)
		return session.NewMemoryStoreWithCap(maxMessages)
	}
	logger.Info("using redis session store")
	return store
}

// buildSTT returns the transcription provider, or an always-degrading
// stand-in when the credential is missing.
func buildSTT(logger *slog.Logger) stt.Provider {
	p, err := stt.NewAssemblyAI(
		stt.WithAPIKey(os.Getenv(config.EnvAssemblyAIKey)),
		stt.WithLogger(log.L()),
	)
	if err != nil {
		logger.Warn("transcription disabled", "error", err)
		return stt.WithError(err)
	}
	return p
}

// buildLLM returns the generation provider. With both Gemini and
// OpenAI credentials present, OpenAI backs up Gemini in a chain.
func buildLLM(logger *slog.Logger) llm.Provider {
	var providers []llm.Provider

	gemini, err := llm.NewGemini(
		llm.WithAPIKey(os.Getenv(config.EnvGeminiKey)),
		llm.WithLogger(log.L()),
	)
	if err != nil {
		logger.Warn("gemini disabled", "error", err)
	} else {
		providers = append(providers, gemini)
	}

	if key := os.Getenv(config.EnvOpenAIKey); key != "" {
		openai, err := llm.NewOpenAI(
			llm.WithAPIKey(key),
			llm.WithLogger(log.L()),
		)
		if err != nil {
			logger.Warn("openai disabled", "error", err)
		} else {
			providers = append(providers, openai)
		}
	}

	chain, err := llm.NewChainWithLogger(log.L(), providers...)
	if err != nil {
		logger.Warn("generation disabled", "error", err)
		return llm.WithError(err)
	}
	return chain
}

// buildTTS returns the synthesis provider, or an always-degrading
// stand-in when credentials are missing.
func buildTTS(logger *slog.Logger) tts.Provider {
	p, err := tts.NewMurf(
		tts.WithAPIKey(os.Getenv(config.EnvMurfKey)),
		tts.WithVoice(os.Getenv(config.EnvMurfVoiceID)),
		tts.WithLogger(log.L()),
	)
	if err != nil {
		logger.Warn("synthesis disabled", "error", err)
		return tts.WithError(err)
	}
	return p
}
