// Package cli wires configuration, credentials, the invoker, the checkpoint and
// the runner into the replay commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/cuongbtq/replay-tools/internal/auth"
	"github.com/cuongbtq/replay-tools/internal/config"
	"github.com/cuongbtq/replay-tools/internal/replay"
	"github.com/cuongbtq/replay-tools/internal/replay/checkpoint"
	"github.com/cuongbtq/replay-tools/internal/replay/domain"
	"github.com/cuongbtq/replay-tools/internal/replay/input"
	"github.com/cuongbtq/replay-tools/internal/replay/invoker"
	"github.com/cuongbtq/replay-tools/internal/replay/notify"
	"github.com/cuongbtq/replay-tools/shared/logger"
	"github.com/cuongbtq/replay-tools/shared/rabbitmq"
	"github.com/cuongbtq/replay-tools/shared/tracing"
)

const (
	tracerName             = "github.com/cuongbtq/replay-tools/internal/replay"
	tracingShutdownTimeout = 5 * time.Second
)

// Run parses args and replays the input file for op. A nil error means every
// batch was processed; flag.ErrHelp is returned for -h.
func Run(ctx context.Context, op *Operation, args []string, usageOut io.Writer) error {
	opts, endpoint, err := ParseOptions(op, args, usageOut)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	sleep, err := resolveSleep(opts, cfg)
	if err != nil {
		return err
	}

	appLogger, err := initLogger(&cfg.Logging, opts.Level)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	tp, err := initTracing(&cfg.Tracing, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), tracingShutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			appLogger.Warn("Failed to flush traces", slog.Any("error", err))
		}
	}()

	runID := uuid.NewString()
	runLogger := appLogger.With(
		slog.String("run_id", runID),
		slog.String("operation", op.Name),
		slog.String("env", opts.Env),
	)

	ctx, span := tp.Tracer(tracerName).Start(ctx, "replay.run", trace.WithAttributes(
		attribute.String("replay.run_id", runID),
		attribute.String("replay.operation", op.Name),
		attribute.String("replay.env", opts.Env),
	))
	defer span.End()

	err = replayFile(ctx, runLogger.Logger, runID, tp.Tracer(tracerName), cfg, opts, endpoint, sleep)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		logFailure(runLogger.Logger, err)
	}
	return err
}

func replayFile(ctx context.Context, log *slog.Logger, runID string, tracer trace.Tracer, cfg *config.Config, opts *Options, endpoint invoker.Endpoint, sleep time.Duration) error {
	svc, err := cfg.Service(endpoint.Service())
	if err != nil {
		return err
	}
	baseURL, err := cfg.ServiceURL(endpoint.Service(), opts.Env)
	if err != nil {
		return err
	}

	log.Info("Starting replay",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("input", opts.Input),
		slog.String("output", opts.Output),
		slog.String("service", endpoint.Service()),
		slog.String("base_url", baseURL),
	)

	credentials, err := initCredentials(log)
	if err != nil {
		return err
	}

	client := invoker.NewClient(&invoker.Config{
		HTTPClient:  invoker.NewHTTPClient(cfg.Timeout()),
		BaseURL:     baseURL,
		Endpoint:    endpoint,
		Credentials: credentials,
		Audience:    svc.Audience,
		Group:       svc.Group,
		Env:         opts.Env,
		Logger:      log,
	})

	processed, err := checkpoint.Load(opts.Output, endpoint.Fields())
	if err != nil {
		return err
	}

	var recorder replay.Recorder = checkpoint.NewStore(opts.Output)
	if cfg.Notify.RabbitMQ.Enabled && !opts.DryRun {
		publisher, err := initRabbitMQ(&cfg.Notify.RabbitMQ, log)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer publisher.Close()

		recorder = notify.NewRecorder(&notify.Config{
			Next:      recorder,
			Publisher: publisher,
			Logger:    log,
			RunID:     runID,
			Operation: endpoint.Name(),
			Env:       opts.Env,
			Fields:    endpoint.Fields(),
		})
	}

	var inputOpts []input.Option
	for _, field := range endpoint.IntegerFields() {
		inputOpts = append(inputOpts, input.WithValidator(field, input.Integer))
	}

	runner, err := replay.NewRunner(&replay.Config{
		Logger:      log,
		Tracer:      tracer,
		Invoker:     client,
		Recorder:    recorder,
		Pacer:       replay.NewPacer(sleep),
		Fields:      endpoint.Fields(),
		InputOpts:   inputOpts,
		BatchSize:   opts.BatchSize,
		MaxBatch:    endpoint.MaxBatchSize(),
		HaltOnError: cfg.HaltOnError() && !opts.ContinueOnError,
		DryRun:      opts.DryRun,
	})
	if err != nil {
		return err
	}

	src, err := os.Open(opts.Input)
	if err != nil {
		return domain.NewConfigError("input", "cannot open %s: %v", opts.Input, err)
	}
	defer src.Close()

	summary, err := runner.Run(ctx, src, processed)
	log.Info("Replay finished", slog.Any("summary", summary))
	return err
}

// resolveSleep prefers --sleep and falls back to replay.sleep
func resolveSleep(opts *Options, cfg *config.Config) (time.Duration, error) {
	switch {
	case opts.SleepSet:
		return replay.Seconds(opts.Sleep), nil
	case cfg.Replay.Sleep != nil:
		return replay.Seconds(*cfg.Replay.Sleep), nil
	default:
		return 0, domain.NewConfigError("sleep", "is required (flag --sleep or replay.sleep in config)")
	}
}

// initLogger initializes the application logger; level overrides the configured one
func initLogger(cfg *config.LoggingConfig, level string) (*logger.Logger, error) {
	if level == "" {
		level = cfg.Level
	}

	loggerCfg := &logger.Config{
		Level:        level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
		NoColor:      cfg.NoColor,
	}

	return logger.New(loggerCfg)
}

// initTracing builds the tracer provider and installs it globally so the HTTP
// transport joins remote calls to the batch spans
func initTracing(cfg *config.TracingConfig, log *slog.Logger) (*tracing.Provider, error) {
	tp, err := tracing.New(&tracing.Config{
		Enabled:     cfg.Enabled,
		Exporter:    cfg.Exporter,
		ServiceName: cfg.ServiceName,
		SampleRatio: cfg.Ratio(),
	}, log)
	if err != nil {
		return nil, err
	}

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp, nil
}

// initCredentials selects the token source from REPLAY_AUTH_MODE
func initCredentials(log *slog.Logger) (auth.CredentialProvider, error) {
	switch mode := os.Getenv(EnvAuthMode); mode {
	case "", "slauth":
		return auth.NewSLAuth(os.Getenv(EnvAuthBinary), log), nil
	case "static":
		log.Warn("Using static token from environment", slog.String("variable", EnvStaticToken))
		return auth.NewStatic(os.Getenv(EnvStaticToken)), nil
	default:
		return nil, domain.NewConfigError(EnvAuthMode, "must be slauth or static, got %q", mode)
	}
}

// initRabbitMQ initializes the outcome publisher
func initRabbitMQ(cfg *config.RabbitMQConfig, log *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		URL:                cfg.URL(),
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		RoutingKey:         cfg.RoutingKey,
		QueueName:          cfg.Queue,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, log)
}

// logFailure reports why a run stopped at the level operators grep for
func logFailure(log *slog.Logger, err error) {
	var (
		halt    *domain.HaltError
		cfgErr  *domain.ConfigError
		authErr *domain.AuthError
	)
	switch {
	case errors.As(err, &halt):
		log.Log(context.Background(), logger.LevelCritical, "Replay halted",
			slog.Int("batch", halt.Batch),
			slog.Any("error", halt.Err),
		)
	case errors.Is(err, domain.ErrCanceled):
		log.Warn("Replay interrupted; rerun with the same output file to resume", slog.Any("error", err))
	case errors.As(err, &cfgErr), errors.As(err, &authErr):
		log.Log(context.Background(), logger.LevelCritical, "Replay could not start", slog.Any("error", err))
	default:
		log.Error("Replay failed", slog.Any("error", err))
	}
}
