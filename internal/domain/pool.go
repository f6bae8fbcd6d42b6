package domain

import (
	"fmt"
	"time"
)

// PoolConfig is the process-wide pool configuration. It is loaded at
// startup and replaceable at runtime as a whole; ReplaceConfig validates
// the candidate and keeps the previous configuration on rejection.
type PoolConfig struct {
	MaxAgentsPerType   map[AgentType]int `json:"max_agents_per_type"`
	AutoScalingEnabled bool              `json:"auto_scaling_enabled"`
	ScaleUpThreshold   float64           `json:"scale_up_threshold"`
	ScaleDownThreshold float64           `json:"scale_down_threshold"`
	MinIdleAgents      int               `json:"min_idle_agents"`
	TaskTimeout        time.Duration     `json:"task_timeout"`
	HeartbeatInterval  time.Duration     `json:"heartbeat_interval"`
}

// DefaultPoolConfig returns the configuration used when none is supplied.
func DefaultPoolConfig() PoolConfig {
	maxPerType := make(map[AgentType]int, len(AgentTypes))
	for _, t := range AgentTypes {
		maxPerType[t] = 5
	}
	return PoolConfig{
		MaxAgentsPerType:   maxPerType,
		AutoScalingEnabled: true,
		ScaleUpThreshold:   0.8,
		ScaleDownThreshold: 0.3,
		MinIdleAgents:      1,
		TaskTimeout:        5 * time.Minute,
		HeartbeatInterval:  30 * time.Second,
	}
}

// MaxAgentsFor returns the instance cap for t, or 0 if none is configured
// (a zero cap means the auto-scaler never creates that type).
func (c PoolConfig) MaxAgentsFor(t AgentType) int {
	return c.MaxAgentsPerType[t]
}

// Clone deep-copies the configuration.
func (c PoolConfig) Clone() PoolConfig {
	out := c
	out.MaxAgentsPerType = make(map[AgentType]int, len(c.MaxAgentsPerType))
	for t, n := range c.MaxAgentsPerType {
		out.MaxAgentsPerType[t] = n
	}
	return out
}

// Validate checks the configuration for structural correctness. Errors wrap
// ErrInvalidConfig so callers can classify them.
func (c PoolConfig) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	if c.ScaleUpThreshold < 0 || c.ScaleUpThreshold > 1 {
		return fail("scale_up_threshold %v outside [0,1]", c.ScaleUpThreshold)
	}
	if c.ScaleDownThreshold < 0 || c.ScaleDownThreshold > 1 {
		return fail("scale_down_threshold %v outside [0,1]", c.ScaleDownThreshold)
	}
	if c.ScaleDownThreshold >= c.ScaleUpThreshold {
		return fail("scale_down_threshold %v must be below scale_up_threshold %v",
			c.ScaleDownThreshold, c.ScaleUpThreshold)
	}
	if c.MinIdleAgents < 0 {
		return fail("min_idle_agents must be >= 0")
	}
	if c.TaskTimeout < 0 {
		return fail("task_timeout must be >= 0")
	}
	if c.HeartbeatInterval < 0 {
		return fail("heartbeat_interval must be >= 0")
	}
	for t, n := range c.MaxAgentsPerType {
		if !t.Valid() {
			return fail("max_agents_per_type: unknown agent type %q", t)
		}
		if n < 0 {
			return fail("max_agents_per_type[%s] must be >= 0", t)
		}
	}
	return nil
}

// WorkloadDistribution is a derived, read-only snapshot for one agent type.
// It is recomputed on demand and never persisted as source of truth.
type WorkloadDistribution struct {
	Type             AgentType     `json:"type"`
	TotalInstances   int           `json:"total_instances"`
	ActiveInstances  int           `json:"active_instances"`
	IdleInstances    int           `json:"idle_instances"`
	WorkingInstances int           `json:"working_instances"`
	PendingTasks     int           `json:"pending_tasks"`
	Utilization      float64       `json:"utilization"`
	AvgResponseTime  time.Duration `json:"avg_response_time"`
}

// PoolStats aggregates pool-wide counters for the stats endpoint.
type PoolStats struct {
	TotalAgents    int                `json:"total_agents"`
	AgentsByState  map[AgentState]int `json:"agents_by_state"`
	QueuedTasks    map[Priority]int   `json:"queued_tasks"`
	InFlightTasks  int                `json:"in_flight_tasks"`
	TasksSubmitted uint64             `json:"tasks_submitted"`
	TasksAssigned  uint64             `json:"tasks_assigned"`
	TasksCompleted uint64             `json:"tasks_completed"`
}

// ScaleResult reports what one auto-scaling evaluation did. At most one
// action per agent type is taken per evaluation.
type ScaleResult struct {
	ScaledUp   int      `json:"scaled_up"`
	ScaledDown int      `json:"scaled_down"`
	Created    []string `json:"created,omitempty"`
	Removed    []string `json:"removed,omitempty"`
}
