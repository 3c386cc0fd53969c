// Package cli implements the medtwin command line.
package cli

import (
	"fmt"

	"github.com/gmsas95/medtwin/internal/app"
	"github.com/gmsas95/medtwin/internal/config"
	apperrors "github.com/gmsas95/medtwin/internal/errors"
	"github.com/gmsas95/medtwin/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type options struct {
	version    string
	configPath string
	dataDir    string
	verbose    bool
}

// NewRootCommand builds the medtwin command tree
func NewRootCommand(version string) *cobra.Command {
	opts := &options{version: version}

	rootCmd := &cobra.Command{
		Use:           "medtwin",
		Short:         "Health trajectory simulator for treatment planning",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&opts.dataDir, "data", "", "Path to data directory")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log at the configured level")

	rootCmd.AddCommand(serveCmd(opts))
	rootCmd.AddCommand(simulateCmd(opts))
	rootCmd.AddCommand(reportCmd(opts))
	rootCmd.AddCommand(adviseCmd(opts))
	rootCmd.AddCommand(catalogCmd(opts))
	rootCmd.AddCommand(dashboardCmd(opts))
	rootCmd.AddCommand(versionCmd(opts))

	return rootCmd
}

// NewLogger builds a zap logger from the logging section
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrConfigInvalid.Code, "invalid logging.level")
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}

func (o *options) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath, o.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newApp loads config and builds the components. One-shot commands only log
// warnings unless --verbose is set.
func (o *options) newApp(quiet bool) (*app.App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	logCfg := cfg.Logging
	if quiet && !o.verbose {
		logCfg.Level = "warn"
	}
	logger, err := NewLogger(logCfg)
	if err != nil {
		return nil, err
	}

	a := app.New(cfg, logger, o.version)
	if err := a.Init(); err != nil {
		logger.Sync()
		return nil, err
	}
	return a, nil
}

// steps holds the treatment changes requested on the command line
type steps struct {
	apply  []int
	revert []int
}

func (s *steps) register(cmd *cobra.Command) {
	cmd.Flags().IntSliceVar(&s.apply, "apply", nil, "Treatment id to apply (repeatable)")
	cmd.Flags().IntSliceVar(&s.revert, "revert", nil, "Treatment id to revert after applying (repeatable)")
}

// run applies every requested id, then reverts every requested id
func (s *steps) run(sess *session.Session) error {
	for _, id := range s.apply {
		if _, err := sess.ApplyByID(id); err != nil {
			return fmt.Errorf("apply %d: %w", id, err)
		}
	}
	for _, id := range s.revert {
		if _, ok := sess.Revert(id); !ok {
			return fmt.Errorf("revert %d: %w", id, apperrors.New(apperrors.ErrTreatmentNotFound.Code, "treatment not applied"))
		}
	}
	return nil
}

func versionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "medtwin version %s\n", opts.version)
		},
	}
}
