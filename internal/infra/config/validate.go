package config

import (
	"fmt"
	"strings"
	"time"

	"agentpool/internal/domain"
)

// ValidationError accumulates config validation problems so operators see
// everything wrong in one pass.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a
// *ValidationError when one or more problems are found.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validatePool(cfg, ve)
	validateRedis(cfg, ve)
	validateAudit(cfg, ve)
	validateScheduler(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		ve.Add("logger.level %q is not a known level", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "text", "json":
	default:
		ve.Add("logger.format must be text or json, got %q", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	switch cfg.Tracer.Exporter {
	case "stdout", "noop", "":
	default:
		ve.Add("tracer.exporter %q is not supported", cfg.Tracer.Exporter)
	}
}

func validatePool(cfg *Config, ve *ValidationError) {
	if _, err := cfg.PoolDomain(); err != nil {
		ve.Add("pool: %v", err)
	}
	for i, seed := range cfg.Pool.InitialAgents {
		if !domain.AgentType(seed.Type).Valid() {
			ve.Add("pool.initial_agents[%d].type %q is not a known agent type", i, seed.Type)
		}
		if seed.Count < 0 {
			ve.Add("pool.initial_agents[%d].count must be >= 0", i)
		}
	}
}

func validateRedis(cfg *Config, ve *ValidationError) {
	if cfg.Redis == nil {
		return
	}
	if cfg.Redis.Addr == "" {
		ve.Add("redis.addr is required when the redis section is present")
	}
	if cfg.Redis.DB < 0 {
		ve.Add("redis.db must be >= 0")
	}
}

func validateAudit(cfg *Config, ve *ValidationError) {
	if cfg.Audit == nil {
		return
	}
	if cfg.Audit.Path == "" {
		ve.Add("audit.path is required when the audit section is present")
	}
	if cfg.Audit.Retention != "" {
		if d, err := time.ParseDuration(cfg.Audit.Retention); err != nil {
			ve.Add("audit.retention: %v", err)
		} else if d <= 0 {
			ve.Add("audit.retention must be positive")
		}
	}
}

func validateScheduler(cfg *Config, ve *ValidationError) {
	check := func(field, value string) {
		if value == "" {
			return
		}
		if _, err := time.ParseDuration(value); err == nil {
			return
		}
		// Not a duration; cron expressions are validated when the task is
		// added, so only flag obviously empty fields here.
		if len(strings.Fields(value)) < 5 {
			ve.Add("scheduler.%s %q is neither a duration nor a cron expression", field, value)
		}
	}
	check("auto_scale_interval", cfg.Scheduler.AutoScaleInterval)
	check("stale_sweep_interval", cfg.Scheduler.StaleSweepInterval)
	check("audit_prune_interval", cfg.Scheduler.AuditPruneInterval)
}
