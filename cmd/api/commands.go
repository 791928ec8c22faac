package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"caseTasks/internal/app"
	"caseTasks/internal/config"
	"caseTasks/internal/logger"
	"caseTasks/internal/migrations"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "casetasks",
		Short:         "Task assignment and lifecycle service for case work",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yml", "path to the YAML config file")

	root.AddCommand(newServeCmd(&configPath), newMigrateCmd(&configPath))
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the overdue reminder worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a := app.New(cfg)
			defer a.Close()
			if err := a.Init(ctx); err != nil {
				return fmt.Errorf("starting: %w", err)
			}
			return a.Run(ctx)
		},
	}
}

func newMigrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the PostgreSQL schema",
	}

	run := func(apply func(string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("database.url is not set")
			}
			if err := logger.Init(cfg.Logging.Development); err != nil {
				return fmt.Errorf("initializing logger: %w", err)
			}
			defer logger.Sync()
			return apply(cfg.Database.URL)
		}
	}

	cmd.AddCommand(
		&cobra.Command{Use: "up", Short: "Apply all pending migrations", RunE: run(migrations.Up)},
		&cobra.Command{Use: "down", Short: "Roll back every migration", RunE: run(migrations.Down)},
	)
	return cmd
}
