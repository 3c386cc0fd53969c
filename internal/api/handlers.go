package api

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	apperrors "github.com/gmsas95/medtwin/internal/errors"
	"github.com/gmsas95/medtwin/internal/llm"
	"github.com/gmsas95/medtwin/internal/model"
	"github.com/gmsas95/medtwin/internal/report"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":     "healthy",
		"version":    s.version,
		"session_id": s.session.ID(),
		"timestamp":  time.Now().Unix(),
	})
}

func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.session.Snapshot())
}

func (s *Server) handleMetrics(c *fiber.Ctx) error {
	return c.JSON(s.session.Snapshot().Metrics)
}

func (s *Server) handleScore(c *fiber.Ctx) error {
	snap := s.session.Snapshot()
	return c.JSON(ScoreResponse{
		OverallHealth: snap.OverallHealth,
		Status:        snap.Status,
	})
}

func (s *Server) handleListTreatments(c *fiber.Ctx) error {
	return c.JSON(s.session.Entries())
}

func (s *Server) handleListApplied(c *fiber.Ctx) error {
	return c.JSON(s.session.Snapshot().Applied)
}

func (s *Server) handleApply(c *fiber.Ctx) error {
	id, err := treatmentID(c)
	if err != nil {
		return c.Status(400).JSON(ErrorResponse{Error: "invalid treatment id", Code: apperrors.ErrBadRequest.Code})
	}

	t, snap, err := s.session.ApplyByIDWithSnapshot(id)
	switch {
	case errors.Is(err, apperrors.ErrTreatmentNotFound):
		return c.Status(404).JSON(ErrorResponse{Error: "treatment not found", Code: apperrors.ErrTreatmentNotFound.Code})
	case errors.Is(err, apperrors.ErrAlreadyApplied):
		return c.Status(409).JSON(ErrorResponse{Error: "treatment already applied", Code: apperrors.ErrAlreadyApplied.Code})
	case err != nil:
		return err
	}

	return c.JSON(treatmentResponse(t, snap))
}

func (s *Server) handleRevert(c *fiber.Ctx) error {
	id, err := treatmentID(c)
	if err != nil {
		return c.Status(400).JSON(ErrorResponse{Error: "invalid treatment id", Code: apperrors.ErrBadRequest.Code})
	}

	t, snap, ok := s.session.RevertWithSnapshot(id)
	if !ok {
		return c.Status(404).JSON(ErrorResponse{Error: "treatment not applied", Code: apperrors.ErrTreatmentNotFound.Code})
	}

	return c.JSON(treatmentResponse(t, snap))
}

func treatmentResponse(t model.Treatment, snap model.Snapshot) TreatmentResponse {
	return TreatmentResponse{
		Treatment:     t,
		OverallHealth: snap.OverallHealth,
		Status:        snap.Status,
	}
}

func treatmentID(c *fiber.Ctx) (int, error) {
	id, err := c.ParamsInt("id")
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, apperrors.ErrBadRequest
	}
	return id, nil
}

func (s *Server) handleReport(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	c.Set(fiber.HeaderContentDisposition, "attachment; filename="+report.Filename)
	return c.SendString(s.session.Report())
}

func (s *Server) handleAdvice(c *fiber.Ctx) error {
	var req AdviceRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(ErrorResponse{Error: "invalid request", Code: apperrors.ErrBadRequest.Code})
		}
	}

	if s.advisor == nil {
		return c.JSON(llm.Advice{Error: apperrors.ErrProviderUnavailable.Message})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), s.config.LLM.TimeoutDuration()+5*time.Second)
	defer cancel()

	return c.JSON(s.advisor.Ask(ctx, s.session.Snapshot(), req.APIKey))
}

func (s *Server) handleInsights(c *fiber.Ctx) error {
	return c.JSON(s.analyzer.Analyze(s.session.Snapshot()))
}

func (s *Server) handleReset(c *fiber.Ctx) error {
	s.session.Reset()
	return c.JSON(s.session.Snapshot())
}

// ==================== WebSocket ====================

func (s *Server) handleWebSocket(c *websocket.Conn) {
	defer c.Close()

	updates, unsubscribe := s.session.Subscribe()
	defer unsubscribe()

	var writeMu sync.Mutex
	send := func(msg WSMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return c.WriteJSON(msg)
	}

	snap := s.session.Snapshot()
	if err := send(WSMessage{Type: "snapshot", Data: &snap}); err != nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			mt, msg, err := c.ReadMessage()
			if err != nil {
				s.logger.Debug("WebSocket closed", zap.Error(err))
				return
			}
			if mt != websocket.TextMessage {
				continue
			}

			var cmd WSCommand
			var reply *WSMessage
			if err := json.Unmarshal(msg, &cmd); err != nil {
				reply = &WSMessage{Type: "error", Error: "invalid message format"}
			} else if errMsg := s.runCommand(cmd); errMsg != "" {
				reply = &WSMessage{Type: "error", Error: errMsg}
			}
			if reply == nil {
				continue
			}
			if err := send(*reply); err != nil {
				s.logger.Debug("WebSocket write error", zap.Error(err))
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := send(WSMessage{Type: "snapshot", Data: &snap}); err != nil {
				s.logger.Debug("WebSocket write error", zap.Error(err))
				return
			}
		}
	}
}

// runCommand applies a client command; state changes reach the client
// through the subscription
func (s *Server) runCommand(cmd WSCommand) string {
	switch cmd.Action {
	case "apply":
		if _, err := s.session.ApplyByID(cmd.ID); err != nil {
			var appErr *apperrors.AppError
			if errors.As(err, &appErr) {
				return appErr.Message
			}
			return err.Error()
		}
	case "revert":
		if _, ok := s.session.Revert(cmd.ID); !ok {
			return "treatment not applied"
		}
	case "reset":
		s.session.Reset()
	default:
		return "unknown action: " + cmd.Action
	}
	return ""
}
