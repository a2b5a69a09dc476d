package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gaborage/go-bricks-dbcore/config"
	"github.com/gaborage/go-bricks-dbcore/database"
	"github.com/gaborage/go-bricks-dbcore/logger"
)

var (
	configPaths []string
	group       string
	logLevel    string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "dbcore",
		Short:         "dbcore - database connection toolbox",
		Long:          "Inspect and query the database groups declared in a dbcore configuration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringSliceVarP(&configPaths, "config", "c", nil, "YAML configuration file (repeatable, later files win)")
	rootCmd.PersistentFlags().StringVarP(&group, "group", "g", config.DefaultGroup, "Database group to use")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log.level from the configuration")

	rootCmd.AddCommand(
		pingCmd(),
		versionCmd(),
		queryCmd(),
		groupsCmd(),
		driversCmd(),
	)

	return rootCmd
}

// session bundles what every command needs to reach a database group.
type session struct {
	cfg     *config.Config
	log     logger.Logger
	manager *database.Manager
}

func openSession() (*session, error) {
	cfg, err := config.Load(configPaths...)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	log := logger.New(level, cfg.Log.Pretty)

	return &session{
		cfg:     cfg,
		log:     log,
		manager: database.NewManager(cfg, log, database.ManagerOptionsFromConfig(cfg.Manager), nil),
	}, nil
}

func (s *session) connection(ctx context.Context) (*database.Connection, error) {
	return s.manager.Get(ctx, group)
}

func (s *session) close() {
	if err := s.manager.Close(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to close database connections")
	}
}
