// Package export pulls replay input straight from the service database and
// writes it as a headed CSV the replay commands accept.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/lib/pq"

	"github.com/cuongbtq/replay-tools/internal/replay/domain"
	"github.com/cuongbtq/replay-tools/internal/replay/invoker"
)

// Kinds of export, one per replay input shape
const (
	KindFailedTasks   = "failed-tasks"
	KindInstallations = "installations"
	KindJiraHosts     = "jira-hosts"
)

// Kinds lists every valid --kind value
var Kinds = []string{KindFailedTasks, KindInstallations, KindJiraHosts}

// Querier is the subset of postgresql.Client the exporter needs
type Querier interface {
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// Query selects what to export
type Query struct {
	Kind     string
	Task     string   // failed-tasks only
	Statuses []string // installations only
}

// Validate rejects unknown kinds, tasks and sync statuses before any SQL runs
func (q Query) Validate() error {
	switch q.Kind {
	case KindFailedTasks:
		if !slices.Contains(invoker.FailedTasks, q.Task) {
			return domain.NewConfigError("task", "must be one of %v, got %q", invoker.FailedTasks, q.Task)
		}
	case KindInstallations:
		if len(q.Statuses) == 0 {
			return domain.NewConfigError("status-types", "at least one sync status is required")
		}
		for _, s := range q.Statuses {
			if !slices.Contains(invoker.DefaultStatusTypes, s) {
				return domain.NewConfigError("status-types", "must be within %v, got %q", invoker.DefaultStatusTypes, s)
			}
		}
	case KindJiraHosts:
	default:
		return domain.NewConfigError("kind", "must be one of %v, got %q", Kinds, q.Kind)
	}
	return nil
}

// Column is the CSV header written for q, matching the replay input field
func (q Query) Column() string {
	switch q.Kind {
	case KindFailedTasks:
		return "subscriptionId"
	case KindInstallations:
		return "installation_id"
	default:
		return "jiraHost"
	}
}

// Storage runs export queries
type Storage struct {
	db Querier
}

// NewStorage creates a Storage over db
func NewStorage(db Querier) *Storage {
	return &Storage{db: db}
}

// FailedSubscriptions returns subscriptions whose backfill of task failed
func (s *Storage) FailedSubscriptions(ctx context.Context, task string) ([]int64, error) {
	if !slices.Contains(invoker.FailedTasks, task) {
		return nil, domain.NewConfigError("task", "must be one of %v, got %q", invoker.FailedTasks, task)
	}

	// task is whitelisted above; column names cannot be bound as parameters
	query := fmt.Sprintf(`
		SELECT DISTINCT "subscriptionId"
		FROM "RepoSyncStates"
		WHERE "%sStatus" = 'failed'
		ORDER BY "subscriptionId"
	`, task)

	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("failed to select failed subscriptions: %w", err)
	}
	return ids, nil
}

// InstallationIDs returns installations whose subscription sync is in one of statuses
func (s *Storage) InstallationIDs(ctx context.Context, statuses []string) ([]int64, error) {
	query := `
		SELECT DISTINCT "gitHubInstallationId"
		FROM "Subscriptions"
		WHERE "syncStatus" = ANY($1)
		ORDER BY "gitHubInstallationId"
	`

	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, query, pq.Array(statuses)); err != nil {
		return nil, fmt.Errorf("failed to select installation ids: %w", err)
	}
	return ids, nil
}

// JiraHosts returns every jira host with a subscription
func (s *Storage) JiraHosts(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT "jiraHost"
		FROM "Subscriptions"
		ORDER BY "jiraHost"
	`

	var hosts []string
	if err := s.db.SelectContext(ctx, &hosts, query); err != nil {
		return nil, fmt.Errorf("failed to select jira hosts: %w", err)
	}
	return hosts, nil
}

// Export runs q and writes a headed single column CSV to w.
// It returns the number of data rows written.
func (s *Storage) Export(ctx context.Context, q Query, w io.Writer) (int, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}

	var values []string
	switch q.Kind {
	case KindFailedTasks:
		ids, err := s.FailedSubscriptions(ctx, q.Task)
		if err != nil {
			return 0, err
		}
		values = formatInts(ids)
	case KindInstallations:
		ids, err := s.InstallationIDs(ctx, q.Statuses)
		if err != nil {
			return 0, err
		}
		values = formatInts(ids)
	case KindJiraHosts:
		hosts, err := s.JiraHosts(ctx)
		if err != nil {
			return 0, err
		}
		values = hosts
	}

	if err := writeCSV(w, q.Column(), values); err != nil {
		return 0, err
	}
	return len(values), nil
}

// ExportFile runs q into a temp file next to path and renames it over path once
// every row is written. A failed query leaves path untouched.
func (s *Storage) ExportFile(ctx context.Context, q Query, path string) (int, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to chmod temp file: %w", err)
	}

	n, err := s.Export(ctx, q, tmp)
	if err != nil {
		tmp.Close()
		return 0, err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("failed to move export into place: %w", err)
	}
	return n, nil
}

func writeCSV(w io.Writer, column string, values []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{column}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, v := range values {
		if err := cw.Write([]string{v}); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

func formatInts(ids []int64) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.FormatInt(id, 10)
	}
	return out
}
