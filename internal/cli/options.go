package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/cuongbtq/replay-tools/internal/replay/domain"
	"github.com/cuongbtq/replay-tools/internal/replay/invoker"
	"github.com/cuongbtq/replay-tools/shared/logger"
)

// Environment variables read by every replay command
const (
	EnvConfigPath  = "REPLAY_CONFIG_PATH"
	EnvAuthMode    = "REPLAY_AUTH_MODE"
	EnvStaticToken = "REPLAY_STATIC_TOKEN"
	EnvAuthBinary  = "REPLAY_AUTH_BINARY"

	// DefaultConfigPath is used when neither --config nor REPLAY_CONFIG_PATH is set
	DefaultConfigPath = "configs/replay/config.yaml"
)

// Options are the parsed command line flags
type Options struct {
	Env             string
	Input           string
	Output          string
	BatchSize       int
	Sleep           float64
	SleepSet        bool
	Level           string
	ConfigPath      string
	ContinueOnError bool
	DryRun          bool
}

// ParseOptions parses args for op and returns the options and the endpoint they select.
// Usage and parse errors are written to out.
func ParseOptions(op *Operation, args []string, out io.Writer) (*Options, invoker.Endpoint, error) {
	fs := flag.NewFlagSet(op.Name, flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprintf(out, "%s\n\nUsage of %s:\n", op.Usage, op.Name)
		fs.PrintDefaults()
	}

	defaultConfigPath := os.Getenv(EnvConfigPath)
	if defaultConfigPath == "" {
		defaultConfigPath = DefaultConfigPath
	}

	opts := &Options{}
	fs.StringVar(&opts.Env, "env", "", "Environment: dev | staging | prod")
	fs.StringVar(&opts.Input, "input", "", "Input CSV file")
	fs.StringVar(&opts.Output, "output", "", "Checkpoint CSV file, appended to and read back on rerun")
	fs.IntVar(&opts.BatchSize, "batchsize", op.DefaultBatchSize, "Items per remote call")
	fs.Float64Var(&opts.Sleep, "sleep", 0, "Seconds to wait between batches")
	fs.StringVar(&opts.Level, "level", "", "Log level: DEBUG | INFO | WARNING | ERROR | CRITICAL (default logging.level, then INFO)")
	fs.StringVar(&opts.ConfigPath, "config", defaultConfigPath, "Path to configuration file")
	fs.BoolVar(&opts.ContinueOnError, "continue-on-error", false, "Keep going after a failed batch instead of stopping")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Read, filter and batch the input without calling the service")
	endpoint := op.flags(fs)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, nil, err
		}
		return nil, nil, &domain.ConfigError{Reason: err.Error()}
	}
	if fs.NArg() > 0 {
		return nil, nil, domain.NewConfigError("", "unexpected arguments: %v", fs.Args())
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "sleep" {
			opts.SleepSet = true
		}
	})

	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}

	ep, err := endpoint()
	if err != nil {
		return nil, nil, err
	}
	return opts, ep, nil
}

// Validate checks flag values that do not depend on the configuration file
func (o *Options) Validate() error {
	if !slices.Contains(domain.Environments, o.Env) {
		return domain.NewConfigError("env", "must be one of %v, got %q", domain.Environments, o.Env)
	}
	if o.Input == "" {
		return domain.NewConfigError("input", "is required")
	}
	if o.Output == "" {
		return domain.NewConfigError("output", "is required")
	}
	if o.BatchSize <= 0 {
		return domain.NewConfigError("batchsize", "must be greater than 0, got %d", o.BatchSize)
	}
	if o.SleepSet && o.Sleep < 0 {
		return domain.NewConfigError("sleep", "must not be negative, got %v", o.Sleep)
	}
	if o.Level != "" && !logger.ValidLevel(o.Level) {
		return domain.NewConfigError("level", "must be one of DEBUG, INFO, WARNING, ERROR, CRITICAL, got %q", o.Level)
	}
	return nil
}
