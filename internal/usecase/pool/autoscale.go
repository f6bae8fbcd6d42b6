package pool

import (
	"context"
	"fmt"

	"agentpool/internal/domain"
	"agentpool/internal/infra/tracer"
)

// EvaluateScaling runs one auto-scaling pass over the workload
// distribution. For each agent type at most one action is taken: create a
// single instance when utilization exceeds the scale-up threshold and the
// type is under its cap, or remove a single idle instance when utilization
// is below the scale-down threshold and more than min_idle_agents would
// remain idle. A scale-up is followed by an assignment pass so the new
// capacity immediately serves queued work. Returns zero counts when
// auto-scaling is disabled.
//
// The whole evaluation — snapshot, decision, and mutation — runs in one
// critical section so concurrent submissions cannot invalidate the counts
// the decision was based on.
func (p *Pool) EvaluateScaling(ctx context.Context) domain.ScaleResult {
	ctx, span := tracer.StartSpan(ctx, "pool.evaluate_scaling")
	defer span.End()

	var result domain.ScaleResult

	p.mu.Lock()
	cfg := p.cfg
	if !cfg.AutoScalingEnabled {
		p.mu.Unlock()
		return result
	}

	dist := p.distributionLocked()
	type scaleEvent struct {
		up      bool
		agentID string
		typ     domain.AgentType
	}
	var events []scaleEvent

	for _, typ := range domain.AgentTypes {
		d := dist[typ]

		if d.Utilization > cfg.ScaleUpThreshold && d.TotalInstances < cfg.MaxAgentsFor(typ) {
			agent := p.createAgentLocked(typ, scaleUpName(typ, d.TotalInstances))
			p.mirrorAgent(ctx, agent)
			result.ScaledUp++
			result.Created = append(result.Created, agent.ID)
			events = append(events, scaleEvent{up: true, agentID: agent.ID, typ: typ})
			continue
		}

		if d.Utilization < cfg.ScaleDownThreshold && d.IdleInstances > cfg.MinIdleAgents {
			victim := p.firstIdleLocked(typ)
			if victim == nil {
				continue
			}
			p.removeAgentLocked(victim)
			p.unmirrorAgent(ctx, victim)
			result.ScaledDown++
			result.Removed = append(result.Removed, victim.ID)
			events = append(events, scaleEvent{up: false, agentID: victim.ID, typ: typ})
		}
	}
	// Capacity just added can serve the backlog that triggered it.
	if result.ScaledUp > 0 {
		p.tryAssignAllLocked(ctx)
	}
	p.mu.Unlock()

	span.SetAttributes(
		tracer.IntAttr("pool.scaled_up", result.ScaledUp),
		tracer.IntAttr("pool.scaled_down", result.ScaledDown),
	)
	for _, ev := range events {
		payload := struct {
			Type domain.AgentType `json:"type"`
		}{Type: ev.typ}
		if ev.up {
			p.logger.Info("scaled up", "type", string(ev.typ), "agent_id", ev.agentID)
			p.publishPayload(ctx, domain.Event{Type: domain.EventPoolScaledUp, AgentID: ev.agentID}, payload)
		} else {
			p.logger.Info("scaled down", "type", string(ev.typ), "agent_id", ev.agentID)
			p.publishPayload(ctx, domain.Event{Type: domain.EventPoolScaledDown, AgentID: ev.agentID}, payload)
		}
	}
	return result
}

// scaleUpName derives the deterministic name for a scale-up instance:
// "{type}-{current_total+1}".
func scaleUpName(typ domain.AgentType, total int) string {
	return fmt.Sprintf("%s-%d", typ, total+1)
}

// firstIdleLocked returns the earliest-created idle agent of the type.
func (p *Pool) firstIdleLocked(typ domain.AgentType) *domain.AgentInstance {
	for _, id := range p.order {
		a := p.agents[id]
		if a.Type == typ && a.State == domain.StateIdle {
			return a
		}
	}
	return nil
}
