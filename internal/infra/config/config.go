// Package config loads and validates the daemon's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"agentpool/internal/domain"
)

// Config is the top-level daemon configuration.
type Config struct {
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
	Pool      PoolConfig      `yaml:"pool"`
	Redis     *RedisConfig    `yaml:"redis,omitempty"` // nil = no state mirror
	Audit     *AuditConfig    `yaml:"audit,omitempty"` // nil = no audit log
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// LoggerConfig controls slog construction.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// TracerConfig controls OpenTelemetry tracing.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout" or "noop"
}

// RedisConfig points the state sink at a Redis instance.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
}

// AuditConfig controls the SQLite audit log.
type AuditConfig struct {
	Path      string `yaml:"path"`
	Retention string `yaml:"retention"` // duration string, default "720h"
}

// SchedulerConfig holds the periodic task intervals. Each value is a cron
// expression or a duration string; empty disables the task.
type SchedulerConfig struct {
	AutoScaleInterval  string `yaml:"auto_scale_interval"`  // default "30s"
	StaleSweepInterval string `yaml:"stale_sweep_interval"` // default "1m"
	AuditPruneInterval string `yaml:"audit_prune_interval"` // default "24h"
}

// PoolConfig is the YAML shape of domain.PoolConfig. Durations are strings
// ("30s", "5m") so operators can write them naturally.
type PoolConfig struct {
	MaxAgentsPerType   map[string]int `yaml:"max_agents_per_type"`
	AutoScalingEnabled *bool          `yaml:"auto_scaling_enabled"` // nil = true
	ScaleUpThreshold   *float64       `yaml:"scale_up_threshold"`   // nil = 0.8
	ScaleDownThreshold *float64       `yaml:"scale_down_threshold"` // nil = 0.3
	MinIdleAgents      *int           `yaml:"min_idle_agents"`      // nil = 1
	TaskTimeout        string         `yaml:"task_timeout"`         // default "5m"
	HeartbeatInterval  string         `yaml:"heartbeat_interval"`   // default "30s"
	InitialAgents      []InitialAgent `yaml:"initial_agents,omitempty"`
}

// InitialAgent seeds the pool at startup.
type InitialAgent struct {
	Type  string `yaml:"type"`
	Name  string `yaml:"name,omitempty"` // default "{type}-{n}"
	Count int    `yaml:"count"`          // default 1
}

// Load reads, parses, and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every field at its default.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "text"
	}
	if c.Logger.Output == "" {
		c.Logger.Output = "stderr"
	}
	if c.Tracer.Exporter == "" {
		c.Tracer.Exporter = "noop"
	}
	if c.Scheduler.AutoScaleInterval == "" {
		c.Scheduler.AutoScaleInterval = "30s"
	}
	if c.Scheduler.StaleSweepInterval == "" {
		c.Scheduler.StaleSweepInterval = "1m"
	}
	if c.Scheduler.AuditPruneInterval == "" {
		c.Scheduler.AuditPruneInterval = "24h"
	}
	if c.Audit != nil && c.Audit.Retention == "" {
		c.Audit.Retention = "720h"
	}
}

// PoolDomain converts the YAML pool section into a domain.PoolConfig,
// filling defaults for absent fields.
func (c *Config) PoolDomain() (domain.PoolConfig, error) {
	out := domain.DefaultPoolConfig()
	p := c.Pool

	if p.MaxAgentsPerType != nil {
		out.MaxAgentsPerType = make(map[domain.AgentType]int, len(p.MaxAgentsPerType))
		for t, n := range p.MaxAgentsPerType {
			out.MaxAgentsPerType[domain.AgentType(t)] = n
		}
	}
	if p.AutoScalingEnabled != nil {
		out.AutoScalingEnabled = *p.AutoScalingEnabled
	}
	if p.ScaleUpThreshold != nil {
		out.ScaleUpThreshold = *p.ScaleUpThreshold
	}
	if p.ScaleDownThreshold != nil {
		out.ScaleDownThreshold = *p.ScaleDownThreshold
	}
	if p.MinIdleAgents != nil {
		out.MinIdleAgents = *p.MinIdleAgents
	}
	if p.TaskTimeout != "" {
		d, err := time.ParseDuration(p.TaskTimeout)
		if err != nil {
			return out, fmt.Errorf("pool.task_timeout: %w", err)
		}
		out.TaskTimeout = d
	}
	if p.HeartbeatInterval != "" {
		d, err := time.ParseDuration(p.HeartbeatInterval)
		if err != nil {
			return out, fmt.Errorf("pool.heartbeat_interval: %w", err)
		}
		out.HeartbeatInterval = d
	}
	if err := out.Validate(); err != nil {
		return out, err
	}
	return out, nil
}
