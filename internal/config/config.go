// Package config loads the streamcoord server configuration from YAML or TOML files.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/getpup/streamcoord"
	"gopkg.in/yaml.v3"
)

const (
	defaultMetricsAddr       = ":9090"
	defaultLogLevel          = "info"
	defaultHandlerTimeout    = "30s"
	defaultReconcileInterval = "1m"
	defaultSendAttempts      = 3
)

var (
	// ErrUnsupportedFormat is returned for files that are neither YAML nor TOML.
	ErrUnsupportedFormat = errors.New("unsupported config format")

	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid config")
)

// DatabaseConfig selects the PostgreSQL store. An empty URL selects the
// in-memory store.
type DatabaseConfig struct {
	URL                  string `yaml:"url" toml:"url"`
	PipelinesTable       string `yaml:"pipelines_table" toml:"pipelines_table"`
	AssignmentsTable     string `yaml:"assignments_table" toml:"assignments_table"`
	TaskAssignmentsTable string `yaml:"task_assignments_table" toml:"task_assignments_table"`
}

// Config is the server configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database" toml:"database"`

	// MetricsAddr is the listen address of /metrics and /healthz. Empty disables the server.
	MetricsAddr string `yaml:"metrics_addr" toml:"metrics_addr"`

	LogLevel string `yaml:"log_level" toml:"log_level"`

	// Workers lists executor slots as "host:port".
	Workers []string `yaml:"workers" toml:"workers"`

	MaxExecutorsPerWorker int `yaml:"max_executors_per_worker" toml:"max_executors_per_worker"`
	SendAttempts          int `yaml:"send_attempts" toml:"send_attempts"`

	HandlerTimeoutStr    string `yaml:"handler_timeout" toml:"handler_timeout"`
	ReconcileIntervalStr string `yaml:"reconcile_interval" toml:"reconcile_interval"`

	// Pipelines are registered in the store at startup if not present yet.
	Pipelines []streamcoord.Pipeline `yaml:"pipelines" toml:"pipelines"`

	HandlerTimeout    time.Duration `yaml:"-" toml:"-"`
	ReconcileInterval time.Duration `yaml:"-" toml:"-"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		MetricsAddr:          defaultMetricsAddr,
		LogLevel:             defaultLogLevel,
		SendAttempts:         defaultSendAttempts,
		HandlerTimeoutStr:    defaultHandlerTimeout,
		ReconcileIntervalStr: defaultReconcileInterval,
	}
}

// Load reads path, applies defaults for unset fields and validates the result.
// The format is chosen by extension: .yaml/.yml or .toml.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	case ".toml":
		meta, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return nil, fmt.Errorf("%w: unknown keys in %s: %s", ErrInvalidConfig, path, strings.Join(keys, ", "))
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	if err := cfg.Adjust(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Adjust fills defaults, parses durations and validates the configuration.
func (c *Config) Adjust() (err error) {
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.SendAttempts == 0 {
		c.SendAttempts = defaultSendAttempts
	}
	if c.HandlerTimeoutStr == "" {
		c.HandlerTimeoutStr = defaultHandlerTimeout
	}
	if c.ReconcileIntervalStr == "" {
		c.ReconcileIntervalStr = defaultReconcileInterval
	}

	c.HandlerTimeout, err = parsePositive("handler_timeout", c.HandlerTimeoutStr)
	if err != nil {
		return err
	}
	c.ReconcileInterval, err = parsePositive("reconcile_interval", c.ReconcileIntervalStr)
	if err != nil {
		return err
	}

	if c.SendAttempts < 0 {
		return fmt.Errorf("%w: send_attempts must not be negative", ErrInvalidConfig)
	}
	if c.MaxExecutorsPerWorker < 0 {
		return fmt.Errorf("%w: max_executors_per_worker must not be negative", ErrInvalidConfig)
	}
	if _, err := c.Slots(); err != nil {
		return err
	}

	seen := make(map[streamcoord.PipelineName]bool, len(c.Pipelines))
	for i := range c.Pipelines {
		p := &c.Pipelines[i]
		if p.Name == "" {
			return fmt.Errorf("%w: pipeline %d has no name", ErrInvalidConfig, i)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: duplicate pipeline %s", ErrInvalidConfig, p.Name)
		}
		seen[p.Name] = true
		if p.State == "" {
			p.State = streamcoord.PipelineStateCreated
		}
		for name, spec := range p.Topology {
			if spec.Executors < 1 || spec.Tasks < spec.Executors {
				return fmt.Errorf("%w: pipeline %s component %s needs 1 <= executors <= tasks", ErrInvalidConfig, p.Name, name)
			}
		}
	}

	return nil
}

// Slots parses Workers into host/port pairs.
func (c *Config) Slots() ([]streamcoord.HostPort, error) {
	slots := make([]streamcoord.HostPort, 0, len(c.Workers))
	seen := make(map[streamcoord.HostPort]bool, len(c.Workers))
	for _, w := range c.Workers {
		host, portStr, err := net.SplitHostPort(w)
		if err != nil || host == "" {
			return nil, fmt.Errorf("%w: worker %q is not host:port", ErrInvalidConfig, w)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("%w: worker %q has an invalid port", ErrInvalidConfig, w)
		}
		slot := streamcoord.HostPort{HostID: host, Port: port}
		if seen[slot] {
			return nil, fmt.Errorf("%w: duplicate worker %s", ErrInvalidConfig, w)
		}
		seen[slot] = true
		slots = append(slots, slot)
	}
	return slots, nil
}

func parsePositive(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, key)
	}
	return d, nil
}
