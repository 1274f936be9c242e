package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuongbtq/replay-tools/internal/replay/domain"
	"github.com/cuongbtq/replay-tools/shared/logger"
	"github.com/cuongbtq/replay-tools/shared/tracing"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// DefaultHTTPTimeout bounds a single remote call when http.timeout is unset
	DefaultHTTPTimeout = 60 * time.Second
)

// Config represents the complete replay tool configuration
type Config struct {
	App      AppConfig                `yaml:"app"`
	Logging  LoggingConfig            `yaml:"logging"`
	Services map[string]ServiceConfig `yaml:"services"`
	HTTP     HTTPConfig               `yaml:"http"`
	Replay   ReplayConfig             `yaml:"replay"`
	Notify   NotifyConfig             `yaml:"notify"`
	Database DatabaseConfig           `yaml:"database"`
	Sandbox  SandboxConfig            `yaml:"sandbox"`
	Tracing  TracingConfig            `yaml:"tracing"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
	NoColor      bool   `yaml:"no_color"`
}

// ServiceConfig describes how to reach one remote service
type ServiceConfig struct {
	Audience string            `yaml:"audience"`
	Group    string            `yaml:"group"`
	URLs     map[string]string `yaml:"urls"`
}

// HTTPConfig holds outbound HTTP client settings
type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// ReplayConfig holds defaults for the control loop
type ReplayConfig struct {
	HaltOnError *bool    `yaml:"halt_on_error"`
	Sleep       *float64 `yaml:"sleep"`
}

// NotifyConfig holds outcome fan-out settings
type NotifyConfig struct {
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange configuration
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      string           `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Durable bool   `yaml:"durable"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// DatabaseConfig holds PostgreSQL connection configuration for export-input
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// SandboxConfig holds the local rehearsal server settings
type SandboxConfig struct {
	Port         int           `yaml:"port"`
	Token        string        `yaml:"token"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// TracingConfig holds OpenTelemetry tracer provider settings
type TracingConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Exporter    string   `yaml:"exporter"`
	ServiceName string   `yaml:"service_name"`
	SampleRatio *float64 `yaml:"sample_ratio"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// Validate checks the parts of the configuration every replay command relies on
func (c *Config) Validate() error {
	if c.Logging.Level != "" && !logger.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid logging level: %q", c.Logging.Level)
	}

	if len(c.Services) == 0 {
		return fmt.Errorf("at least one service is required")
	}

	for name, svc := range c.Services {
		if svc.Audience == "" {
			return fmt.Errorf("service %s: audience is required", name)
		}
		if svc.Group == "" {
			return fmt.Errorf("service %s: group is required", name)
		}
		for env, raw := range svc.URLs {
			if !slices.Contains(domain.Environments, env) {
				return fmt.Errorf("service %s: unknown environment %q", name, env)
			}
			u, err := url.Parse(raw)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("service %s: invalid url for %s: %q", name, env, raw)
			}
		}
	}

	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("http timeout must not be negative")
	}

	if c.Replay.Sleep != nil && *c.Replay.Sleep < 0 {
		return fmt.Errorf("replay sleep must not be negative")
	}

	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "", tracing.ExporterLog, tracing.ExporterNone:
		default:
			return fmt.Errorf("invalid tracing exporter: %q", c.Tracing.Exporter)
		}
		if r := c.Tracing.SampleRatio; r != nil && (*r < 0 || *r > 1) {
			return fmt.Errorf("invalid tracing sample ratio: %v (must be between 0 and 1)", *r)
		}
	}

	if c.Notify.RabbitMQ.Enabled {
		mq := c.Notify.RabbitMQ
		if mq.Host == "" {
			return fmt.Errorf("rabbitmq host is required")
		}
		if mq.Port < MinPort || mq.Port > MaxPort {
			return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", mq.Port, MinPort, MaxPort)
		}
		if mq.Exchange.Name == "" {
			return fmt.Errorf("rabbitmq exchange name is required")
		}
	}

	return nil
}

// ValidateDatabase checks the database section used by export-input
func (c *Config) ValidateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

// Service returns the named service settings
func (c *Config) Service(name string) (ServiceConfig, error) {
	svc, ok := c.Services[name]
	if !ok {
		return ServiceConfig{}, domain.NewConfigError("service", "no configuration for service %q", name)
	}
	return svc, nil
}

// ServiceURL resolves the base URL of service in env
func (c *Config) ServiceURL(service, env string) (string, error) {
	svc, err := c.Service(service)
	if err != nil {
		return "", err
	}

	u, ok := svc.URLs[env]
	if !ok || u == "" {
		return "", domain.NewConfigError("env", "service %q has no url for environment %q (known: %v)", service, env, knownEnvs(svc))
	}
	return u, nil
}

// Timeout returns the configured HTTP timeout or DefaultHTTPTimeout
func (c *Config) Timeout() time.Duration {
	if c.HTTP.Timeout <= 0 {
		return DefaultHTTPTimeout
	}
	return c.HTTP.Timeout
}

// HaltOnError defaults to true when the key is absent
func (c *Config) HaltOnError() bool {
	if c.Replay.HaltOnError == nil {
		return true
	}
	return *c.Replay.HaltOnError
}

// Ratio defaults to sampling every trace when the key is absent
func (t TracingConfig) Ratio() float64 {
	if t.SampleRatio == nil {
		return 1
	}
	return *t.SampleRatio
}

// URL builds the AMQP connection string
func (r RabbitMQConfig) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(r.User, r.Password),
		Host:   fmt.Sprintf("%s:%d", r.Host, r.Port),
		Path:   "/" + r.VHost,
	}
	return u.String()
}

func knownEnvs(svc ServiceConfig) []string {
	envs := make([]string, 0, len(svc.URLs))
	for env := range svc.URLs {
		envs = append(envs, env)
	}
	slices.Sort(envs)
	return envs
}
