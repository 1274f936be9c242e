package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/cuongbtq/replay-tools/internal/config"
	"github.com/cuongbtq/replay-tools/internal/sandbox"
	"github.com/cuongbtq/replay-tools/shared/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("REPLAY_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/replay/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	port := flag.Int("port", 0, "Listen port, overrides sandbox.port")
	failAfter := flag.Int("fail-after", 0, "Calls answered normally before --fail-status applies")
	failStatus := flag.Int("fail-status", 0, "Status returned once --fail-after calls were served, 0 disables")
	notFound := flag.String("not-found", "", "Comma-separated cloudID/workspaceUUID pairs rotate answers with 404")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *port != 0 {
		cfg.Sandbox.Port = *port
	}
	if cfg.Sandbox.Port < config.MinPort || cfg.Sandbox.Port > config.MaxPort {
		return fmt.Errorf("invalid sandbox port: %d (must be between %d and %d)", cfg.Sandbox.Port, config.MinPort, config.MaxPort)
	}

	appLogger, err := logger.New(&logger.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cfg.Logging.Output,
		EnableSource: cfg.Logging.EnableCaller,
		TimeFormat:   time.RFC3339,
		NoColor:      cfg.Logging.NoColor,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	faults := sandbox.Faults{FailAfter: *failAfter, Status: *failStatus}
	if *notFound != "" {
		faults.NotFound = strings.Split(*notFound, ",")
	}

	gin.SetMode(gin.ReleaseMode)
	_, router := sandbox.New(&sandbox.Dependencies{
		Logger: appLogger.Logger,
		Token:  cfg.Sandbox.Token,
		Faults: faults,
	})

	addr := fmt.Sprintf(":%d", cfg.Sandbox.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Sandbox.ReadTimeout,
		WriteTimeout: cfg.Sandbox.WriteTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	appLogger.Info("Sandbox is running",
		slog.String("address", addr),
		slog.Int("fail_after", faults.FailAfter),
		slog.Int("fail_status", faults.Status),
		slog.Int("not_found", len(faults.NotFound)),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-errChan:
		return fmt.Errorf("sandbox server failed: %w", err)
	}

	appLogger.Info("Shutting down sandbox...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("sandbox forced to shutdown: %w", err)
	}
	return nil
}
