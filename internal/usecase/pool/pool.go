// Package pool implements the agent pool's scheduling and capacity-control
// engine: agent registry, priority task queue, assignment, workload
// distribution, and auto-scaling.
//
// One mutex guards all mutable state (agents, queues, in-flight
// assignments). Every read-modify-write sequence — find an available agent
// then mark it working, evaluate utilization then create an instance — runs
// inside a single critical section, so an agent can never be assigned past
// its max_concurrent_tasks by interleaved callers.
package pool

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"agentpool/internal/domain"
)

// Pool owns all agent and task state for one process.
type Pool struct {
	mu          sync.Mutex
	agents      map[string]*domain.AgentInstance
	order       []string // agent ids in insertion order; keeps selection deterministic
	queues      map[domain.Priority][]*domain.TaskRequest
	assignments map[string]*domain.TaskAssignment // keyed by task id
	cfg         domain.PoolConfig

	tasksSubmitted uint64
	tasksAssigned  uint64
	tasksCompleted uint64

	sink   StateSink
	bus    domain.EventBus
	logger *slog.Logger
}

// New constructs a pool. sink and bus may be nil; a NopSink and no event
// publishing are used in that case.
func New(cfg domain.PoolConfig, sink StateSink, bus domain.EventBus, logger *slog.Logger) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, domain.WrapOp("pool.New", err)
	}
	if sink == nil {
		sink = NopSink{}
	}
	queues := make(map[domain.Priority][]*domain.TaskRequest, len(domain.Priorities))
	for _, pr := range domain.Priorities {
		queues[pr] = nil
	}
	return &Pool{
		agents:      make(map[string]*domain.AgentInstance),
		queues:      queues,
		assignments: make(map[string]*domain.TaskAssignment),
		cfg:         cfg.Clone(),
		sink:        sink,
		bus:         bus,
		logger:      logger,
	}, nil
}

// Config returns a copy of the current pool configuration.
func (p *Pool) Config() domain.PoolConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Clone()
}

// ReplaceConfig swaps the whole configuration. An invalid candidate is
// rejected and the previous configuration stays in effect.
func (p *Pool) ReplaceConfig(ctx context.Context, cfg domain.PoolConfig) error {
	if err := cfg.Validate(); err != nil {
		return domain.WrapOp("Pool.ReplaceConfig", err)
	}
	p.mu.Lock()
	p.cfg = cfg.Clone()
	p.mu.Unlock()

	p.logger.Info("pool configuration replaced",
		"auto_scaling", cfg.AutoScalingEnabled,
		"scale_up", cfg.ScaleUpThreshold,
		"scale_down", cfg.ScaleDownThreshold)
	p.publish(ctx, domain.Event{Type: domain.EventConfigReplaced})
	return nil
}

// Stats returns pool-wide aggregate counters.
func (p *Pool) Stats() domain.PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := domain.PoolStats{
		TotalAgents:    len(p.agents),
		AgentsByState:  make(map[domain.AgentState]int, 4),
		QueuedTasks:    make(map[domain.Priority]int, len(domain.Priorities)),
		InFlightTasks:  len(p.assignments),
		TasksSubmitted: p.tasksSubmitted,
		TasksAssigned:  p.tasksAssigned,
		TasksCompleted: p.tasksCompleted,
	}
	for _, a := range p.agents {
		stats.AgentsByState[a.State]++
	}
	for _, pr := range domain.Priorities {
		stats.QueuedTasks[pr] = len(p.queues[pr])
	}
	return stats
}

// publish sends an event if a bus is wired.
func (p *Pool) publish(ctx context.Context, event domain.Event) {
	if p.bus == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	p.bus.Publish(ctx, event)
}

// publishPayload marshals payload into the event before publishing.
func (p *Pool) publishPayload(ctx context.Context, event domain.Event, payload any) {
	if p.bus == nil {
		return
	}
	if data, err := json.Marshal(payload); err == nil {
		event.Payload = data
	}
	p.publish(ctx, event)
}
