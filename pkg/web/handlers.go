package web

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/parley-ai/parley/internal/config"
	"github.com/parley-ai/parley/pkg/chat"
)

// healthResponse mirrors the /health payload.
type healthResponse struct {
	Status         string            `json:"status"`
	MissingAPIKeys []string          `json:"missing_api_keys"`
	Services       map[string]string `json:"services"`
	Timestamp      float64           `json:"timestamp"`
}

// handleHealth reports overall status: healthy when every credential is
// present, down when every pipeline service is unavailable, degraded
// otherwise.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	missing := config.MissingKeys()
	services := s.agent.Health(c.UserContext())

	status := "healthy"
	if len(missing) > 0 {
		status = "degraded"
	}
	allDown := true
	for _, v := range services {
		if v == "available" {
			allDown = false
			break
		}
	}
	if allDown {
		status = "down"
	}

	if missing == nil {
		missing = []string{}
	}
	return c.JSON(healthResponse{
		Status:         status,
		MissingAPIKeys: missing,
		Services:       services,
		Timestamp:      float64(time.Now().UnixNano()) / 1e9,
	})
}

// handleAgentChat accepts a multipart audio upload and runs one voice
// turn. Stage failures degrade the response; only a bad upload is
// rejected outright.
func (s *Server) handleAgentChat(c *fiber.Ctx) error {
	sessionID := c.Params("session_id")

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "No file provided",
		})
	}

	contentType := fileHeader.Header.Get("Content-Type")
	mainType := strings.TrimSpace(strings.Split(contentType, ";")[0])
	if !allowedAudioTypes[mainType] {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": fmt.Sprintf("Invalid file type: %s", contentType),
		})
	}

	f, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Unreadable upload",
		})
	}
	audio, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Unreadable upload",
		})
	}

	s.logger.Info("chat request",
		"session_id", sessionID,
		"audio_bytes", len(audio),
		"content_type", mainType,
	)

	result := s.agent.ProcessTurn(c.UserContext(), sessionID, audio)
	return c.JSON(result)
}

// handleHistory returns the session's conversation so far.
func (s *Server) handleHistory(c *fiber.Ctx) error {
	sessionID := c.Params("session_id")

	history, err := s.agent.History(c.UserContext(), sessionID)
	if err != nil {
		s.logger.Error("history load failed", "session_id", sessionID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to load history",
		})
	}
	if history.Messages == nil {
		history.Messages = []chat.Message{}
	}
	return c.JSON(history)
}

// handleClear removes the session's history. Clearing an unknown
// session succeeds with a different message.
func (s *Server) handleClear(c *fiber.Ctx) error {
	sessionID := c.Params("session_id")

	existed, err := s.agent.Clear(c.UserContext(), sessionID)
	if err != nil {
		s.logger.Error("clear failed", "session_id", sessionID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to clear session",
		})
	}

	message := fmt.Sprintf("Chat history cleared for session %s", sessionID)
	if !existed {
		message = fmt.Sprintf("No chat history found for session %s", sessionID)
	}
	return c.JSON(fiber.Map{
		"message":    message,
		"session_id": sessionID,
	})
}
