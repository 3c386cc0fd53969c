package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gmsas95/medtwin/internal/api"
	"github.com/gmsas95/medtwin/internal/catalog"
	"github.com/gmsas95/medtwin/internal/config"
	"github.com/gmsas95/medtwin/internal/cron"
	apperrors "github.com/gmsas95/medtwin/internal/errors"
	"github.com/gmsas95/medtwin/internal/insight"
	"github.com/gmsas95/medtwin/internal/llm"
	"github.com/gmsas95/medtwin/internal/metrics"
	"github.com/gmsas95/medtwin/internal/model"
	"github.com/gmsas95/medtwin/internal/session"
	"go.uber.org/zap"
)

// App wires the components of one medtwin process
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Version    string
	Catalog    *catalog.Catalog
	Metrics    *metrics.Metrics
	Session    *session.Session
	Client     *llm.Client
	Advisor    *llm.Advisor
	Analyzer   *insight.Analyzer
	CronRunner *cron.Runner
}

func New(cfg *config.Config, logger *zap.Logger, version string) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		Config:  cfg,
		Logger:  logger,
		Version: version,
	}
}

// Init loads the catalog and builds the session and advisor
func (app *App) Init() error {
	cat, err := LoadCatalog(app.Config, app.Logger)
	if err != nil {
		return err
	}
	app.Catalog = cat

	app.Metrics = metrics.New()
	app.Session = session.New(cat,
		session.WithRecorder(app.Metrics),
		session.WithLogger(app.Logger),
		session.WithModelOptions(
			model.WithDuplicatePolicy(model.ParseDuplicatePolicy(app.Config.Model.DuplicatePolicy)),
		),
	)

	app.Client = llm.NewClient(app.Config.LLM, app.Logger)
	app.Advisor = llm.NewAdvisor(app.Client, app.Metrics, app.Logger)
	app.Analyzer = insight.NewAnalyzer(app.Logger)

	return nil
}

// LoadCatalog picks the catalog source: the YAML file when configured, then
// the SQLite store when it holds a catalog, then the built-in dataset.
func LoadCatalog(cfg *config.Config, logger *zap.Logger) (*catalog.Catalog, error) {
	if cfg.Catalog.Path != "" {
		cat, err := catalog.LoadFile(cfg.Catalog.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("Catalog loaded from file", zap.String("path", cfg.Catalog.Path))
		warnUnknownKeys(cat, logger)
		return cat, nil
	}

	if cfg.Catalog.SQLitePath != "" {
		if _, err := os.Stat(cfg.Catalog.SQLitePath); err == nil {
			store, err := catalog.OpenStore(cfg.Catalog.SQLitePath)
			if err != nil {
				return nil, err
			}
			defer store.Close()

			cat, err := store.Load()
			if err != nil {
				return nil, err
			}
			if cat != nil {
				logger.Info("Catalog loaded from store", zap.String("path", cfg.Catalog.SQLitePath))
				warnUnknownKeys(cat, logger)
				return cat, nil
			}
		}
	}

	logger.Debug("Using built-in catalog")
	return catalog.Default(), nil
}

func warnUnknownKeys(cat *catalog.Catalog, logger *zap.Logger) {
	for id, keys := range cat.UnknownImpactKeys() {
		logger.Warn("Treatment references unknown metrics",
			zap.Int("treatment_id", id),
			zap.Strings("keys", keys),
		)
	}
}

// RunServer serves the API until SIGINT or SIGTERM
func (app *App) RunServer() error {
	if app.Session == nil {
		if err := app.Init(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if app.Config.Insight.Enabled && app.Config.Insight.Schedule != "" {
		app.CronRunner = cron.NewRunner(cron.Config{}, app.Logger)
		sweep := app.Analyzer.Sweep(app.Session.Snapshot)
		if _, err := app.CronRunner.AddJob("insight-sweep", app.Config.Insight.Schedule, func(context.Context) { sweep() }); err != nil {
			return apperrors.Wrap(err, apperrors.ErrConfigInvalid.Code, "invalid insight.schedule")
		}
		if err := app.CronRunner.Start(); err != nil {
			app.Logger.Error("Failed to start cron runner", zap.Error(err))
		}
	}

	if app.Config.Catalog.Watch && app.Config.Catalog.Path != "" {
		watcher, err := catalog.NewWatcher(app.Config.Catalog.Path, app.Session.SetCatalog, app.Logger)
		if err != nil {
			app.Logger.Warn("Catalog watch disabled", zap.Error(err))
		} else {
			go watcher.Run(ctx)
			app.Logger.Info("Watching catalog", zap.String("path", app.Config.Catalog.Path))
		}
	}

	server := api.New(app.Config, api.Deps{
		Session:  app.Session,
		Advisor:  app.Advisor,
		Analyzer: app.Analyzer,
		Metrics:  app.Metrics,
	}, app.Logger, app.Version)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	app.Logger.Info("Server started",
		zap.String("address", app.Config.Server.Address),
		zap.Int("port", app.Config.Server.Port),
		zap.String("url", fmt.Sprintf("http://localhost:%d", app.Config.Server.Port)),
		zap.String("session_id", app.Session.ID()),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = fmt.Errorf("server error: %w", err)
		}
	}

	app.Logger.Info("Shutting down...")

	if app.CronRunner != nil {
		app.CronRunner.Stop()
	}

	if err := server.Shutdown(); err != nil {
		app.Logger.Error("Server shutdown error", zap.Error(err))
	}

	return runErr
}
