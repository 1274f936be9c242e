// Package replay drives resumable batch replays: it filters input items against the
// checkpoint, batches the remainder, invokes the remote endpoint per batch, records each
// outcome and paces between batches.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/cuongbtq/replay-tools/internal/replay/batch"
	"github.com/cuongbtq/replay-tools/internal/replay/checkpoint"
	"github.com/cuongbtq/replay-tools/internal/replay/domain"
	"github.com/cuongbtq/replay-tools/internal/replay/input"
	"github.com/cuongbtq/replay-tools/internal/replay/invoker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Invoker performs the remote call for one batch
type Invoker interface {
	Invoke(ctx context.Context, batch []domain.WorkItem) (invoker.Result, error)
}

// Recorder persists outcomes once a call has returned
type Recorder interface {
	Append(ctx context.Context, records ...domain.Record) error
}

// Config holds runner configuration
type Config struct {
	Logger      *slog.Logger
	Tracer      trace.Tracer
	Invoker     Invoker
	Recorder    Recorder
	Pacer       *Pacer
	Fields      []string
	InputOpts   []input.Option
	BatchSize   int
	MaxBatch    int
	HaltOnError bool
	DryRun      bool
}

// Summary counts what a run did
type Summary struct {
	Read          int
	Malformed     int
	Duplicates    int
	Skipped       int
	Remaining     int
	Batches       int
	BatchesDone   int
	FailedBatches int
	Succeeded     int
	NotFound      int
	Failed        int
}

// Recorded returns the number of items written to the checkpoint
func (s *Summary) Recorded() int {
	return s.Succeeded + s.NotFound
}

// LogValue renders the summary as a slog group
func (s *Summary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("read", s.Read),
		slog.Int("malformed", s.Malformed),
		slog.Int("duplicates", s.Duplicates),
		slog.Int("skipped", s.Skipped),
		slog.Int("remaining", s.Remaining),
		slog.Int("batches", s.Batches),
		slog.Int("batches_done", s.BatchesDone),
		slog.Int("failed_batches", s.FailedBatches),
		slog.Int("succeeded", s.Succeeded),
		slog.Int("not_found", s.NotFound),
		slog.Int("failed", s.Failed),
	)
}

// Runner executes one replay
type Runner struct {
	logger      *slog.Logger
	tracer      trace.Tracer
	invoker     Invoker
	recorder    Recorder
	pacer       *Pacer
	fields      []string
	inputOpts   []input.Option
	batchSize   int
	haltOnError bool
	dryRun      bool
}

// NewRunner validates the configuration and creates a Runner
func NewRunner(cfg *Config) (*Runner, error) {
	if cfg.BatchSize <= 0 {
		return nil, domain.NewConfigError("batchsize", "must be greater than 0, got %d", cfg.BatchSize)
	}
	if cfg.MaxBatch > 0 && cfg.BatchSize > cfg.MaxBatch {
		return nil, domain.NewConfigError("batchsize", "must be at most %d for this endpoint, got %d", cfg.MaxBatch, cfg.BatchSize)
	}
	if len(cfg.Fields) == 0 {
		return nil, domain.NewConfigError("fields", "at least one key field is required")
	}
	if !cfg.DryRun && (cfg.Invoker == nil || cfg.Recorder == nil) {
		return nil, domain.NewConfigError("", "an invoker and a recorder are required")
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}

	return &Runner{
		logger:      cfg.Logger,
		tracer:      tracer,
		invoker:     cfg.Invoker,
		recorder:    cfg.Recorder,
		pacer:       cfg.Pacer,
		fields:      cfg.Fields,
		inputOpts:   cfg.InputOpts,
		batchSize:   cfg.BatchSize,
		haltOnError: cfg.HaltOnError,
		dryRun:      cfg.DryRun,
	}, nil
}

// Run replays every item of src not already in processed. It returns a *domain.HaltError
// when a batch fails and halting is enabled, domain.ErrBatchErrors when failures were
// tolerated, and an error wrapping domain.ErrCanceled when ctx ends between batches.
func (r *Runner) Run(ctx context.Context, src io.Reader, processed *checkpoint.Set) (*Summary, error) {
	summary := &Summary{}

	r.logger.Info("Loaded checkpoint",
		slog.Int("recorded_items", processed.Len()),
		slog.Int("recorded_rows", processed.Rows()),
		slog.Int("malformed_rows", processed.Malformed()),
	)

	remaining, err := r.filter(src, processed, summary)
	if err != nil {
		return summary, err
	}

	batches, err := batch.Of(remaining, r.batchSize)
	if err != nil {
		return summary, err
	}
	summary.Batches = batch.Count(len(remaining), r.batchSize)

	r.logger.Info("Replay to run",
		slog.Int("items", len(remaining)),
		slog.Int("batches", summary.Batches),
		slog.Int("batch_size", r.batchSize),
		slog.Duration("sleep", r.pacer.Interval()),
		slog.Bool("dry_run", r.dryRun),
	)

	num := 0
	for b := range batches {
		num++
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("%w before batch %d: %w", domain.ErrCanceled, num, err)
		}

		if r.dryRun {
			r.logger.Info("Dry run batch",
				slog.Int("batch", num),
				slog.Int("of", summary.Batches),
				slog.Any("items", itemStrings(b)),
			)
			summary.BatchesDone++
			continue
		}

		halt, err := r.runBatch(ctx, num, b, summary)
		if err != nil {
			return summary, err
		}
		if halt != nil {
			return summary, halt
		}

		if num < summary.Batches {
			if err := r.pacer.Sleep(ctx); err != nil {
				return summary, fmt.Errorf("%w after batch %d: %w", domain.ErrCanceled, num, err)
			}
		}
	}

	if summary.FailedBatches > 0 {
		return summary, fmt.Errorf("%w: %d of %d batches", domain.ErrBatchErrors, summary.FailedBatches, summary.Batches)
	}

	return summary, nil
}

// filter drains the input, dropping malformed rows, duplicates and recorded items
func (r *Runner) filter(src io.Reader, processed *checkpoint.Set, summary *Summary) ([]domain.WorkItem, error) {
	seen := domain.ItemSet{}
	var remaining []domain.WorkItem

	for item, err := range input.Read(src, r.fields, r.inputOpts...) {
		if err != nil {
			var rowErr *domain.MalformedRowError
			if errors.As(err, &rowErr) {
				summary.Malformed++
				r.logger.Warn("Skipping malformed input row",
					slog.Int("line", rowErr.Line),
					slog.String("reason", rowErr.Reason),
				)
				continue
			}
			return nil, err
		}

		summary.Read++
		if !seen.Add(item) {
			summary.Duplicates++
			continue
		}
		if processed.Contains(item) {
			summary.Skipped++
			continue
		}
		remaining = append(remaining, item)
	}

	summary.Remaining = len(remaining)
	return remaining, nil
}

// runBatch invokes and records one batch. A non-nil *domain.HaltError means the run must
// stop; a non-nil error is fatal on its own.
func (r *Runner) runBatch(ctx context.Context, num int, b []domain.WorkItem, summary *Summary) (*domain.HaltError, error) {
	ctx, span := r.tracer.Start(ctx, "replay.batch", trace.WithAttributes(
		attribute.Int("replay.batch", num),
		attribute.Int("replay.batch_size", len(b)),
	))
	defer span.End()

	r.logger.Info("Processing batch",
		slog.Int("batch", num),
		slog.Int("of", summary.Batches),
		slog.Int("items", len(b)),
		slog.String("first", b[0].String()),
		slog.String("last", b[len(b)-1].String()),
	)

	result, err := r.invoker.Invoke(ctx, b)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		var remoteErr *domain.RemoteError
		if !errors.As(err, &remoteErr) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w during batch %d: %w", domain.ErrCanceled, num, ctxErr)
		}

		summary.FailedBatches++
		summary.Failed += len(b)
		if r.haltOnError {
			r.logger.Error("Stopping due to error. To skip a particular item, add a row to the output file",
				slog.Int("batch", num),
				slog.Any("error", err),
			)
			return &domain.HaltError{Batch: num, Items: b, Err: err}, nil
		}

		r.logger.Warn("Batch failed, continuing; it will be retried on the next run",
			slog.Int("batch", num),
			slog.Any("error", err),
		)
		return nil, nil
	}

	span.SetAttributes(
		attribute.Int("http.status_code", result.StatusCode),
		attribute.String("replay.status", string(result.Status)),
	)

	records := make([]domain.Record, len(b))
	for i, item := range b {
		records[i] = domain.Record{Item: item, Status: result.Status}
	}
	// a call that returned must be recorded even if the run is being canceled
	if err := r.recorder.Append(context.WithoutCancel(ctx), records...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to record batch %d: %w", num, err)
	}

	summary.BatchesDone++
	switch result.Status {
	case domain.StatusNotFound:
		summary.NotFound += len(b)
	default:
		summary.Succeeded += len(b)
	}

	return nil, nil
}

func itemStrings(b []domain.WorkItem) []string {
	out := make([]string, len(b))
	for i, item := range b {
		out[i] = item.String()
	}
	return out
}
