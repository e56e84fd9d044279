package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"actioner/internal/config"
	"actioner/internal/constants"
	"actioner/internal/logger"
	"actioner/pkg/logging"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   constants.ServiceNamePerformer,
		Short: "Action performer for action messages",
		RunE:  run,
	}

	rootCmd.Flags().StringVar(&configFile, "config", "", "Path to config file (required)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	earlyLog := logging.NewEarlyLog()

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
		if configFile == "" {
			earlyLog.Fatal("Config file is required. Use --config flag or CONFIG_FILE environment variable")
		}
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		earlyLog.Fatal("Failed to load config: %v", err)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		earlyLog.Fatal("Failed to init logger: %v", err)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.InfowCtx(ctx, "Starting Action Performer")

	app := NewApp(cfg, log)
	if err := app.Initialize(ctx); err != nil {
		_ = app.Shutdown(context.Background())
		log.Fatalw("Failed to initialize application", "error", err)
	}

	log.InfowCtx(ctx, "Service running")
	runErr := app.Run(ctx)

	if err := app.Shutdown(context.Background()); err != nil {
		log.ErrorwCtx(ctx, "Shutdown error", "error", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.ErrorwCtx(ctx, "Service stopped with error", "error", runErr)
		return runErr
	}

	log.InfowCtx(ctx, "Service shutdown complete")
	return nil
}
