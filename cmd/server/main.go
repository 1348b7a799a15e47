package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"transcription-studio/internal/bootstrap"
	"transcription-studio/internal/config"
	"transcription-studio/internal/httpapi"
)

const defaultMaxUploadBytes = 512 << 20

func main() {
	_ = godotenv.Load()

	logger := config.NewLogger(os.Stdout, os.Getenv("LOG_LEVEL"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := bootstrap.NewServices(ctx, bootstrap.Options{Logger: logger})
	if err != nil {
		log.Fatalf("failed to build services: %v", err)
	}
	defer services.Close()

	cfg := serverConfig()
	srv := httpapi.NewServer(cfg, services)
	logger.Info("http server starting", "port", cfg.Port)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server stopped with error: %v", err)
	}
	logger.Info("http server stopped")
}

func serverConfig() httpapi.Config {
	cfg := httpapi.Config{
		Port:           os.Getenv("PORT"),
		MaxUploadBytes: defaultMaxUploadBytes,
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if raw := os.Getenv("MAX_UPLOAD_BYTES"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			cfg.MaxUploadBytes = n
		}
	}
	for _, origin := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}
	return cfg
}
