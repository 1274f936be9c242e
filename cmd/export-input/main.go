package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cuongbtq/replay-tools/internal/config"
	"github.com/cuongbtq/replay-tools/internal/export"
	"github.com/cuongbtq/replay-tools/shared/logger"
	"github.com/cuongbtq/replay-tools/shared/postgresql"
)

// envDBPassword overrides database.password so it can live in .env
const envDBPassword = "REPLAY_DB_PASSWORD"

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
	kind := flag.String("kind", "", "What to export: "+strings.Join(export.Kinds, " | "))
	task := flag.String("task", "", "Failed task, for --kind failed-tasks")
	statusTypes := flag.String("status-types", "FAILED", "Comma-separated subscription sync statuses, for --kind installations")
	output := flag.String("output", "-", "CSV file to write, - for stdout")
	flag.Parse()

	query := export.Query{Kind: *kind, Task: *task}
	if *kind == export.KindInstallations {
		query.Statuses = strings.Split(*statusTypes, ",")
	}
	if err := query.Validate(); err != nil {
		return err
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if password := os.Getenv(envDBPassword); password != "" {
		cfg.Database.Password = password
	}
	if err := cfg.ValidateDatabase(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Logs go to stderr so stdout can carry the CSV
	appLogger, err := logger.New(&logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     "stderr",
		TimeFormat: time.RFC3339,
		NoColor:    cfg.Logging.NoColor,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	dbClient, err := postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		ReadOnly:        true,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage := export.NewStorage(dbClient)

	var n int
	if *output == "-" {
		n, err = storage.Export(ctx, query, os.Stdout)
	} else {
		n, err = storage.ExportFile(ctx, query, *output)
	}
	if err != nil {
		return err
	}

	appLogger.Info("Export finished",
		slog.String("kind", query.Kind),
		slog.String("column", query.Column()),
		slog.Int("rows", n),
		slog.String("output", *output),
	)
	return nil
}
