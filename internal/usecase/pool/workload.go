package pool

import (
	"time"

	"agentpool/internal/domain"
)

// WorkloadDistribution computes a per-type snapshot of the pool: instance
// counts by state, pending task counts, utilization, and mean recorded
// response time. Every enumerated agent type appears in the result even
// with zero instances, so pending work for an absent type is visible.
func (p *Pool) WorkloadDistribution() map[domain.AgentType]domain.WorkloadDistribution {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.distributionLocked()
}

func (p *Pool) distributionLocked() map[domain.AgentType]domain.WorkloadDistribution {
	out := make(map[domain.AgentType]domain.WorkloadDistribution, len(domain.AgentTypes))

	for _, typ := range domain.AgentTypes {
		d := domain.WorkloadDistribution{Type: typ}

		var responseSum, responseN int64
		for _, id := range p.order {
			a := p.agents[id]
			if a.Type != typ {
				continue
			}
			d.TotalInstances++
			if a.State != domain.StateMaintenance {
				d.ActiveInstances++
			}
			switch a.State {
			case domain.StateIdle:
				d.IdleInstances++
			case domain.StateWorking:
				d.WorkingInstances++
			}
			if a.Metrics.TotalTasks > 0 {
				responseSum += int64(a.Metrics.AvgExecutionTime)
				responseN++
			}
		}

		for _, pr := range domain.Priorities {
			for _, task := range p.queues[pr] {
				if task.RequiredAgentType == typ {
					d.PendingTasks++
				}
			}
		}

		// Floor the divisor at one; a type with no active agents has
		// utilization zero, not a division by zero.
		active := d.ActiveInstances
		if active < 1 {
			active = 1
		}
		d.Utilization = float64(d.WorkingInstances) / float64(active)

		if responseN > 0 {
			d.AvgResponseTime = time.Duration(responseSum / responseN)
		}
		out[typ] = d
	}
	return out
}
