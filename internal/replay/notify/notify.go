// Package notify fans checkpoint records out to a message broker so other teams can follow
// a replay as it happens. The checkpoint file stays the source of truth: publish failures
// are logged and never fail the run.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cuongbtq/replay-tools/internal/replay/domain"
	"github.com/google/uuid"
)

// ContentType of published outcome events
const ContentType = "application/json"

// Publisher sends one message
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// Appender is the checkpoint recorder being decorated
type Appender interface {
	Append(ctx context.Context, records ...domain.Record) error
}

// Event is the payload published per recorded item
type Event struct {
	EventID    string            `json:"event_id"`
	RunID      string            `json:"run_id"`
	Operation  string            `json:"operation"`
	Env        string            `json:"env"`
	Key        map[string]string `json:"key"`
	Status     domain.Status     `json:"status"`
	RecordedAt time.Time         `json:"recorded_at"`
}

// Config holds recorder configuration
type Config struct {
	Next      Appender
	Publisher Publisher
	Logger    *slog.Logger
	RunID     string
	Operation string
	Env       string
	Fields    []string
}

// Recorder appends to the wrapped recorder, then publishes one event per record
type Recorder struct {
	next      Appender
	publisher Publisher
	logger    *slog.Logger
	runID     string
	operation string
	env       string
	fields    []string
	now       func() time.Time
}

// NewRecorder creates a publishing Recorder
func NewRecorder(cfg *Config) *Recorder {
	return &Recorder{
		next:      cfg.Next,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		runID:     cfg.RunID,
		operation: cfg.Operation,
		env:       cfg.Env,
		fields:    cfg.Fields,
		now:       time.Now,
	}
}

// Append records to the wrapped recorder first; events are only published for records
// that were persisted.
func (r *Recorder) Append(ctx context.Context, records ...domain.Record) error {
	if err := r.next.Append(ctx, records...); err != nil {
		return err
	}

	for _, rec := range records {
		body, err := json.Marshal(r.event(rec))
		if err != nil {
			r.logger.Warn("Failed to encode outcome event",
				slog.String("item", rec.Item.String()),
				slog.Any("error", err),
			)
			continue
		}

		if err := r.publisher.PublishWithRetry(ctx, body, ContentType); err != nil {
			r.logger.Warn("Failed to publish outcome event",
				slog.String("item", rec.Item.String()),
				slog.String("status", string(rec.Status)),
				slog.Any("error", err),
			)
		}
	}

	return nil
}

func (r *Recorder) event(rec domain.Record) Event {
	key := make(map[string]string, len(r.fields))
	for i, field := range r.fields {
		key[field] = rec.Item.Value(i)
	}

	return Event{
		EventID:    uuid.NewString(),
		RunID:      r.runID,
		Operation:  r.operation,
		Env:        r.env,
		Key:        key,
		Status:     rec.Status,
		RecordedAt: r.now().UTC(),
	}
}
