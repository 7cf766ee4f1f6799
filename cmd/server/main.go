package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/tendant/simple-cookbook/pkg/cookbook/api"
	"github.com/tendant/simple-cookbook/pkg/cookbook/config"
)

// Env holds server-level settings read from the environment. Database,
// queue, and storage settings are picked up by config.WithEnv using the
// COOKBOOK_ prefix.
type Env struct {
	Port        string `env:"COOKBOOK_PORT" env-default:"8080"`
	Environment string `env:"COOKBOOK_ENVIRONMENT" env-default:"development"`
}

func main() {
	var env Env
	if err := cleanenv.ReadEnv(&env); err != nil {
		slog.Error("failed to read environment", "error", err)
		os.Exit(1)
	}

	serverConfig, err := config.Load(
		config.WithEnv("COOKBOOK_"),
		func(c *config.ServerConfig) error {
			c.Port = env.Port
			c.Environment = env.Environment
			return nil
		},
	)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := serverConfig.BuildService(ctx)
	if err != nil {
		slog.Error("failed to build service", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", serverConfig.Port),
		Handler: api.NewRouter(app.Service),
	}

	go func() {
		slog.Info("cookbook server starting",
			"port", serverConfig.Port,
			"env", serverConfig.Environment,
			"database", serverConfig.DatabaseType,
			"queue", serverConfig.QueueType,
			"storage", serverConfig.DefaultStorageBackend)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exiting")
}
