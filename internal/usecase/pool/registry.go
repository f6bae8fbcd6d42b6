package pool

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"agentpool/internal/domain"
)

// newInstanceID returns a ULID for a new agent or task.
func newInstanceID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// CreateAgent allocates a new idle agent of the given type. The capability
// set comes from the per-type default table; capacity limits are the
// auto-scaler's concern, so creation itself never checks them. An empty
// name defaults to "{type}-{n}" where n counts instances of that type.
func (p *Pool) CreateAgent(ctx context.Context, typ domain.AgentType, name string) (domain.AgentInstance, error) {
	if !typ.Valid() {
		return domain.AgentInstance{}, domain.NewDomainError("Pool.CreateAgent", domain.ErrInvalidInput,
			fmt.Sprintf("unknown agent type %q", typ))
	}

	p.mu.Lock()
	agent := p.createAgentLocked(typ, name)
	snapshot := agent.Clone()
	p.mirrorAgent(ctx, agent)
	p.mu.Unlock()

	p.logger.Info("agent created", "agent_id", snapshot.ID, "type", string(typ), "name", snapshot.Name)
	p.publish(ctx, domain.Event{Type: domain.EventAgentCreated, AgentID: snapshot.ID})
	return snapshot, nil
}

// createAgentLocked does the allocation under p.mu.
func (p *Pool) createAgentLocked(typ domain.AgentType, name string) *domain.AgentInstance {
	if name == "" {
		name = fmt.Sprintf("%s-%d", typ, p.countTypeLocked(typ)+1)
	}
	agent := &domain.AgentInstance{
		ID:                 newInstanceID(),
		Type:               typ,
		Name:               name,
		Capabilities:       domain.DefaultCapabilities(typ),
		State:              domain.StateIdle,
		MaxConcurrentTasks: domain.DefaultMaxConcurrentTasks,
		LastActivity:       time.Now(),
	}
	p.agents[agent.ID] = agent
	p.order = append(p.order, agent.ID)
	return agent
}

func (p *Pool) countTypeLocked(typ domain.AgentType) int {
	n := 0
	for _, a := range p.agents {
		if a.Type == typ {
			n++
		}
	}
	return n
}

// RemoveAgent deletes an agent. A task in flight on the agent is orphaned,
// so callers should only remove idle agents outside of scale-down.
func (p *Pool) RemoveAgent(ctx context.Context, id string) error {
	p.mu.Lock()
	agent, ok := p.agents[id]
	if !ok {
		p.mu.Unlock()
		return domain.WrapOp("Pool.RemoveAgent", domain.ErrAgentNotFound)
	}
	p.removeAgentLocked(agent)
	p.unmirrorAgent(ctx, agent)
	p.mu.Unlock()

	p.logger.Info("agent removed", "agent_id", id, "type", string(agent.Type))
	p.publish(ctx, domain.Event{Type: domain.EventAgentRemoved, AgentID: id})
	return nil
}

func (p *Pool) removeAgentLocked(agent *domain.AgentInstance) {
	delete(p.agents, agent.ID)
	for i, id := range p.order {
		if id == agent.ID {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// GetAgent returns a copy of the agent with the given id.
func (p *Pool) GetAgent(id string) (domain.AgentInstance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	agent, ok := p.agents[id]
	if !ok {
		return domain.AgentInstance{}, domain.WrapOp("Pool.GetAgent", domain.ErrAgentNotFound)
	}
	return agent.Clone(), nil
}

// AgentFilter narrows ListAgents output. Zero values match everything.
type AgentFilter struct {
	Type  domain.AgentType
	State domain.AgentState
}

// ListAgents returns copies of all agents matching the filter, in creation
// order.
func (p *Pool) ListAgents(filter AgentFilter) []domain.AgentInstance {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]domain.AgentInstance, 0, len(p.order))
	for _, id := range p.order {
		a := p.agents[id]
		if filter.Type != "" && a.Type != filter.Type {
			continue
		}
		if filter.State != "" && a.State != filter.State {
			continue
		}
		out = append(out, a.Clone())
	}
	return out
}

// GetAvailable returns a copy of the best assignment candidate for the
// given type and required capabilities, or nil if none qualifies. The
// candidate is the accepting (idle or working under its limit) agent with
// the lowest workload whose capability set covers the requirement; ties go
// to the earliest-created agent.
//
// This is a read-only probe for callers; the assignment engine uses the
// locked variant inside its own critical section.
func (p *Pool) GetAvailable(typ domain.AgentType, required domain.CapabilitySet) *domain.AgentInstance {
	p.mu.Lock()
	defer p.mu.Unlock()
	if agent := p.availableLocked(typ, required); agent != nil {
		cp := agent.Clone()
		return &cp
	}
	return nil
}

func (p *Pool) availableLocked(typ domain.AgentType, required domain.CapabilitySet) *domain.AgentInstance {
	var best *domain.AgentInstance
	for _, id := range p.order {
		a := p.agents[id]
		if a.Type != typ || !a.Available() {
			continue
		}
		if len(required) > 0 && !a.Capabilities.Superset(required) {
			continue
		}
		if best == nil || a.Workload < best.Workload {
			best = a
		}
	}
	return best
}

// Heartbeat refreshes the agent's last-activity timestamp.
func (p *Pool) Heartbeat(ctx context.Context, id string) error {
	p.mu.Lock()
	agent, ok := p.agents[id]
	if !ok {
		p.mu.Unlock()
		return domain.WrapOp("Pool.Heartbeat", domain.ErrAgentNotFound)
	}
	agent.LastActivity = time.Now()
	p.mirrorAgent(ctx, agent)
	p.mu.Unlock()
	return nil
}

// SetMaintenance toggles maintenance mode. An agent in maintenance is never
// selected for assignment and counts as inactive in workload distribution.
// Clearing maintenance returns the agent to idle and triggers an assignment
// pass, since capacity may have been freed.
func (p *Pool) SetMaintenance(ctx context.Context, id string, on bool) error {
	p.mu.Lock()
	agent, ok := p.agents[id]
	if !ok {
		p.mu.Unlock()
		return domain.WrapOp("Pool.SetMaintenance", domain.ErrAgentNotFound)
	}
	if on {
		agent.State = domain.StateMaintenance
	} else {
		agent.State = domain.StateIdle
	}
	agent.LastActivity = time.Now()
	p.mirrorAgent(ctx, agent)
	if !on {
		p.tryAssignAllLocked(ctx)
	}
	p.mu.Unlock()

	p.logger.Info("agent maintenance toggled", "agent_id", id, "maintenance", on)
	p.publish(ctx, domain.Event{Type: domain.EventAgentMaintenance, AgentID: id})
	return nil
}

// SweepStaleAgents parks idle agents whose last activity is older than
// three heartbeat intervals in the error state. Working agents are left
// alone; deadline enforcement for their tasks belongs to an external
// supervisor. Returns the number of agents parked. No-op when the
// heartbeat interval is zero.
func (p *Pool) SweepStaleAgents(ctx context.Context) int {
	p.mu.Lock()
	interval := p.cfg.HeartbeatInterval
	if interval <= 0 {
		p.mu.Unlock()
		return 0
	}
	cutoff := time.Now().Add(-3 * interval)

	var stale []string
	for _, id := range p.order {
		a := p.agents[id]
		if a.State == domain.StateIdle && a.LastActivity.Before(cutoff) {
			a.State = domain.StateError
			p.mirrorAgent(ctx, a)
			stale = append(stale, id)
		}
	}
	p.mu.Unlock()

	for _, id := range stale {
		p.logger.Warn("agent marked stale", "agent_id", id)
		p.publish(ctx, domain.Event{Type: domain.EventAgentStale, AgentID: id})
	}
	return len(stale)
}
