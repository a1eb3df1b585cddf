package execctx

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML configs can use the usual
// "1s" / "250ms" notation.
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in time.Duration notation.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the YAML-file configuration surface for the demo binaries and
// for applications that size the pool from deployment config rather than
// code.
type Config struct {
	Pool    PoolConfig    `yaml:"pool"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// PoolConfig sizes the background pool. Zero values take the reference
// policy (core = NumCPU+1, max = 2*NumCPU+1, idle timeout = 1s).
type PoolConfig struct {
	ID          string   `yaml:"id"`
	CoreSize    int      `yaml:"core_size"`
	MaxSize     int      `yaml:"max_size"`
	IdleTimeout Duration `yaml:"idle_timeout"`
}

// MetricsConfig configures the Prometheus surface of the demo binaries.
type MetricsConfig struct {
	Namespace    string   `yaml:"namespace"`
	PollInterval Duration `yaml:"poll_interval"`
	ListenAddr   string   `yaml:"listen_addr"`
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate rejects sizing that the pool invariants cannot satisfy.
func (c *Config) Validate() error {
	p := c.Pool
	if p.CoreSize < 0 {
		return fmt.Errorf("pool.core_size must not be negative, got %d", p.CoreSize)
	}
	if p.MaxSize < 0 {
		return fmt.Errorf("pool.max_size must not be negative, got %d", p.MaxSize)
	}
	if p.MaxSize > 0 && p.CoreSize > p.MaxSize {
		return fmt.Errorf("pool.core_size %d exceeds pool.max_size %d", p.CoreSize, p.MaxSize)
	}
	if p.IdleTimeout < 0 {
		return fmt.Errorf("pool.idle_timeout must not be negative, got %v", p.IdleTimeout.Std())
	}
	if c.Metrics.PollInterval < 0 {
		return fmt.Errorf("metrics.poll_interval must not be negative, got %v", c.Metrics.PollInterval.Std())
	}
	return nil
}

// PoolOptions converts the config into constructor options.
func (p PoolConfig) PoolOptions() PoolOptions {
	return PoolOptions{
		CoreSize:    p.CoreSize,
		MaxSize:     p.MaxSize,
		IdleTimeout: p.IdleTimeout.Std(),
	}
}
