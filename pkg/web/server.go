// Package web exposes the voice agent over HTTP: audio chat uploads,
// session history, health, a streaming-recorder websocket, and a live
// turn-event websocket.
package web

import (
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/parley-ai/parley/internal/config"
	"github.com/parley-ai/parley/pkg/agent"
	"github.com/parley-ai/parley/pkg/hub"
	"github.com/parley-ai/parley/pkg/stt"
)

// maxUploadBytes caps audio uploads at 25MB.
const maxUploadBytes = 25 * 1024 * 1024

// allowedAudioTypes are the accepted upload content types, compared
// against the media type with any parameters stripped.
var allowedAudioTypes = map[string]bool{
	"audio/wav":  true,
	"audio/mpeg": true,
	"audio/mp3":  true,
	"audio/webm": true,
	"audio/ogg":  true,
	"audio/mp4":  true,
}

// Server is the HTTP front end over the turn orchestrator.
type Server struct {
	app   *fiber.App
	port  string
	agent *agent.Agent

	// turnHub fans completed turns out to websocket listeners.
	turnHub *hub.Hub

	// newTranscriber, when set, gives each audio socket a live
	// transcription session alongside the recording.
	newTranscriber func() (*stt.Realtime, error)

	recordingsDir string
	staticDir     string
	logger        *slog.Logger
}

// ServerOption customizes a Server.
type ServerOption func(*Server)

// WithRecordingsDir sets where streamed recordings are written.
func WithRecordingsDir(dir string) ServerOption {
	return func(s *Server) {
		s.recordingsDir = dir
	}
}

// WithStaticDir sets the directory served at /static.
func WithStaticDir(dir string) ServerOption {
	return func(s *Server) {
		s.staticDir = dir
	}
}

// WithRealtimeTranscriber enables live transcription on the audio
// socket. The factory is called once per connection.
func WithRealtimeTranscriber(fn func() (*stt.Realtime, error)) ServerOption {
	return func(s *Server) {
		s.newTranscriber = fn
	}
}

// WithServerLogger sets the server's logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger.With("component", "web")
	}
}

// NewServer creates the HTTP server. The turn hub is shared with the
// caller so the orchestrator can publish into it.
func NewServer(port string, a *agent.Agent, turnHub *hub.Hub, opts ...ServerOption) *Server {
	s := &Server{
		port:          port,
		agent:         a,
		turnHub:       turnHub,
		recordingsDir: config.DefaultRecordingsDir,
		staticDir:     config.DefaultStaticDir,
		logger:        slog.Default().With("component", "web"),
	}
	for _, opt := range opts {
		opt(s)
	}

	app := fiber.New(fiber.Config{
		AppName:               "Parley",
		DisableStartupMessage: true,
		BodyLimit:             maxUploadBytes,
	})

	// CORS for browser clients on other origins
	app.Use(cors.New())

	// Static UI and saved recordings
	app.Static("/static", s.staticDir)
	app.Static("/recordings", s.recordingsDir)
	app.Static("/", s.staticDir)

	app.Get("/health", s.handleHealth)

	ag := app.Group("/agent")
	ag.Post("/chat/:session_id", s.handleAgentChat)
	ag.Get("/chat/:session_id/history", s.handleHistory)
	ag.Delete("/chat/:session_id", s.handleClear)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/audio", websocket.New(s.handleAudioWS))
	app.Get("/ws/turns", websocket.New(s.handleTurnsWS))

	s.app = app
	return s
}

// Start runs the hub loop and listens until Shutdown.
func (s *Server) Start() error {
	if err := os.MkdirAll(s.recordingsDir, 0o755); err != nil {
		return err
	}

	go s.turnHub.Run()

	s.logger.Info("listening", "port", s.port)
	return s.app.Listen(":" + s.port)
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(10 * time.Second)
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}
