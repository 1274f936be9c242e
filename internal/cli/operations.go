package cli

import (
	"flag"
	"strings"

	"github.com/cuongbtq/replay-tools/internal/replay/invoker"
)

// Operation describes one replay command
type Operation struct {
	// Name matches the endpoint name and tags every log line
	Name string
	// Usage is the one-line description printed by -h
	Usage string
	// DefaultBatchSize is the --batchsize default
	DefaultBatchSize int
	// flags registers operation specific flags and returns the endpoint
	// factory, called once the flag set is parsed
	flags func(fs *flag.FlagSet) func() (invoker.Endpoint, error)
}

// Resync replays installation ids to /api/resync
func Resync() *Operation {
	return &Operation{
		Name:             "resync",
		Usage:            "Trigger a backfill for every installation in the input file",
		DefaultBatchSize: 10,
		flags: func(fs *flag.FlagSet) func() (invoker.Endpoint, error) {
			syncType := fs.String("sync-type", invoker.DefaultSyncType, "Sync type sent with every batch")
			statusTypes := fs.String("status-types", strings.Join(invoker.DefaultStatusTypes, ","), "Comma-separated subscription sync statuses to resync")
			targetTasks := fs.String("target-tasks", strings.Join(invoker.DefaultTargetTasks, ","), "Comma-separated backfill tasks to run")

			return func() (invoker.Endpoint, error) {
				return invoker.NewResync(*syncType, splitList(*statusTypes), splitList(*targetTasks)), nil
			}
		},
	}
}

// Configuration replays jira hosts to /api/configuration
func Configuration() *Operation {
	return &Operation{
		Name:             "configuration",
		Usage:            "Sync the configured state of every jira host in the input file",
		DefaultBatchSize: 10,
		flags: func(*flag.FlagSet) func() (invoker.Endpoint, error) {
			return func() (invoker.Endpoint, error) {
				return invoker.Configuration{}, nil
			}
		},
	}
}

// ResyncFailedTasks replays subscription ids to /api/resync-failed-tasks
func ResyncFailedTasks() *Operation {
	return &Operation{
		Name:             "resync-failed-tasks",
		Usage:            "Re-run one failed backfill task for every subscription in the input file",
		DefaultBatchSize: 100,
		flags: func(fs *flag.FlagSet) func() (invoker.Endpoint, error) {
			task := fs.String("task", "", "Failed task to re-run: "+strings.Join(invoker.FailedTasks, " | "))

			return func() (invoker.Endpoint, error) {
				ep, err := invoker.NewResyncFailedTasks(*task)
				if err != nil {
					return nil, err
				}
				return ep, nil
			}
		},
	}
}

// ReplayRejected replays rejected entities to the data depot replay endpoint
func ReplayRejected() *Operation {
	return &Operation{
		Name:             "replay-rejected",
		Usage:            "Re-submit entities rejected by the data depot",
		DefaultBatchSize: 10,
		flags: func(*flag.FlagSet) func() (invoker.Endpoint, error) {
			return func() (invoker.Endpoint, error) {
				return invoker.ReplayRejected{}, nil
			}
		},
	}
}

// RotateSecrets rotates secrets of every installation in the input file
func RotateSecrets() *Operation {
	return &Operation{
		Name:             "rotate-secrets",
		Usage:            "Rotate the stored secrets of every Bitbucket installation in the input file",
		DefaultBatchSize: 1,
		flags: func(*flag.FlagSet) func() (invoker.Endpoint, error) {
			return func() (invoker.Endpoint, error) {
				return invoker.RotateSecrets{}, nil
			}
		},
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
