package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
)

func (s *Server) setupRoutes() {
	s.app.Use(recover.New())
	s.app.Use(s.requestLogger())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(s.config.Security.AllowOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	if s.metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	}

	api := s.app.Group("/api")

	api.Get("/health", s.handleHealth)

	api.Get("/state", s.handleState)
	api.Get("/metrics", s.handleMetrics)
	api.Get("/score", s.handleScore)

	api.Get("/treatments", s.handleListTreatments)
	api.Get("/treatments/applied", s.handleListApplied)
	api.Post("/treatments/:id/apply", s.handleApply)
	api.Post("/treatments/:id/revert", s.handleRevert)

	api.Get("/report", s.handleReport)
	api.Post("/advice", s.handleAdvice)
	api.Get("/insights", s.handleInsights)

	api.Post("/session/reset", s.handleReset)

	s.app.Use("/ws", upgradeOnly)
	s.app.Get("/ws", websocket.New(s.handleWebSocket))
}

func upgradeOnly(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}
