package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tradepost/tradepost/internal/api"
	"github.com/tradepost/tradepost/internal/config"
	"github.com/tradepost/tradepost/internal/server"
	"github.com/tradepost/tradepost/internal/storage/memory"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("Starting application",
		slog.String("env", cfg.Env),
		slog.String("tcp_host", cfg.TCPHost),
		slog.Int("tcp_port", cfg.TCPPort),
		slog.String("api_host", cfg.ApiHost),
		slog.Int("api_port", cfg.ApiPort),
	)

	store := memory.New(log)

	marketServer := server.New(cfg, log, store)
	apiServer := api.New(cfg, log, store, []byte(cfg.JwtSecret))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		marketServer.MustStart()
	}()
	go func() {
		apiServer.MustStart()
	}()

	<-sigChan
	log.Info("Got signal to shutdown server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := marketServer.Stop(ctx); err != nil {
		log.Error("Stopping server error", "error", err)
	}
	if err := apiServer.Stop(ctx); err != nil {
		log.Error("Stopping API server error", "error", err)
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger
	switch env {
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}
	return log
}
