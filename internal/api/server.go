package api

import (
	"context"
	"time"

	"github.com/gmsas95/medtwin/internal/config"
	"github.com/gmsas95/medtwin/internal/insight"
	"github.com/gmsas95/medtwin/internal/llm"
	"github.com/gmsas95/medtwin/internal/metrics"
	"github.com/gmsas95/medtwin/internal/session"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Server handles HTTP API and WebSocket
type Server struct {
	app      *fiber.App
	config   *config.Config
	session  *session.Session
	advisor  *llm.Advisor
	analyzer *insight.Analyzer
	metrics  *metrics.Metrics
	logger   *zap.Logger
	version  string
}

// Deps are the components the server exposes
type Deps struct {
	Session  *session.Session
	Advisor  *llm.Advisor
	Analyzer *insight.Analyzer
	Metrics  *metrics.Metrics
}

// New creates a new API server
func New(cfg *config.Config, deps Deps, logger *zap.Logger, version string) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Analyzer == nil {
		deps.Analyzer = insight.NewAnalyzer(logger)
	}

	app := fiber.New(fiber.Config{
		AppName:               "medtwin",
		ReadTimeout:           time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
	})

	s := &Server{
		app:      app,
		config:   cfg,
		session:  deps.Session,
		advisor:  deps.Advisor,
		analyzer: deps.Analyzer,
		metrics:  deps.Metrics,
		logger:   logger,
		version:  version,
	}

	s.setupRoutes()
	return s
}

// App exposes the fiber app for tests and embedding
func (s *Server) App() *fiber.App {
	return s.app
}

// Start starts the server
func (s *Server) Start() error {
	return s.app.Listen(s.config.Server.Addr())
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}
