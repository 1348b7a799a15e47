package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"transcription-studio/internal/bootstrap"
	"transcription-studio/internal/cli"
	"transcription-studio/internal/config"
	"transcription-studio/internal/output"
)

func main() {
	if err := run(); err != nil {
		formatter := output.NewFormatter(os.Stderr)
		formatter.Error(err.Error())
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	services, err := bootstrap.NewServices(ctx, bootstrap.Options{
		Logger: config.NewLogger(os.Stderr, level),
	})
	if err != nil {
		return fmt.Errorf("initializing services: %w", err)
	}
	defer services.Close()

	deps := &cli.Dependencies{Services: services}
	return cli.NewRootCmd(deps).ExecuteContext(ctx)
}
