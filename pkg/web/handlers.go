package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-coach/pkg/hub"
	"github.com/teslashibe/go-coach/pkg/orchestrator"
	"github.com/teslashibe/go-coach/pkg/schedule"
	"github.com/teslashibe/go-coach/pkg/validation"
)

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	orchestrator.Snapshot
	Retry      schedule.RetryStats `json:"retry"`
	Validation validation.Stats    `json:"validation"`
	Clients    int                 `json:"clients"`
}

// MessageRequest is the body of POST /api/message.
type MessageRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(StatusResponse{
		Snapshot:   s.ctrl.Snapshot(),
		Retry:      s.ctrl.RetryStats(),
		Validation: s.ctrl.ValidationStats(),
		Clients:    s.statusHub.ClientCount(),
	})
}

func (s *Server) handleTurns(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.History())
}

func (s *Server) handleSummary(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Summary())
}

func (s *Server) handleMessage(c *fiber.Ctx) error {
	var req MessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if err := s.ctrl.SubmitText(req.Text); err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(s.ctrl.Snapshot())
}

func (s *Server) handleStartConversation(c *fiber.Ctx) error {
	if err := s.ctrl.StartConversation(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(s.ctrl.Snapshot())
}

func (s *Server) handleStopConversation(c *fiber.Ctx) error {
	s.ctrl.StopConversation()
	return c.JSON(s.ctrl.Snapshot())
}

func (s *Server) handleInterrupt(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"interrupted": s.ctrl.Interrupt()})
}

func (s *Server) handleSetPreset(c *fiber.Ctx) error {
	preset := c.Params("preset")
	if err := s.ctrl.SetValidationPreset(preset); err != nil {
		return err
	}
	return c.JSON(s.ctrl.ValidationStats())
}

// handleError maps domain errors to status codes.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, orchestrator.ErrEmptyText),
		errors.Is(err, validation.ErrUnknownPreset):
		code = fiber.StatusBadRequest
	case errors.Is(err, orchestrator.ErrBusy),
		errors.Is(err, orchestrator.ErrAISpeaking),
		errors.Is(err, orchestrator.ErrAlreadyListening):
		code = fiber.StatusConflict
	case errors.Is(err, orchestrator.ErrClosed):
		code = fiber.StatusServiceUnavailable
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

// handleStatusWS sends the current snapshot, then streams events.
func (s *Server) handleStatusWS(conn *websocket.Conn) {
	snap := s.ctrl.Snapshot()
	if err := conn.WriteJSON(orchestrator.Event{
		Type:     orchestrator.EventState,
		Snapshot: &snap,
	}); err != nil {
		return
	}

	client, err := hub.NewClient(s.statusHub, conn)
	if err != nil {
		s.logger.Warn("websocket rejected", "error", err)
		return
	}
	client.Run()
}
