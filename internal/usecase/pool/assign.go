package pool

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"agentpool/internal/domain"
	"agentpool/internal/infra/tracer"
)

// TryAssignAll runs assignment passes until no queued task can be matched
// to an agent, and returns the number of tasks assigned. Submission and
// completion trigger this automatically; it is exported for callers that
// changed agent availability out of band.
func (p *Pool) TryAssignAll(ctx context.Context) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tryAssignAllLocked(ctx)
}

// tryAssignAllLocked is the assignment engine. Buckets are scanned in
// strict priority order. Within a bucket, the first task with no available
// agent stops the scan of that bucket: a later task of equal priority never
// jumps ahead of an earlier blocked one, even when its required type has a
// free agent (head-of-line blocking in exchange for admission-order
// fairness). A blocked bucket does not block lower-priority buckets.
func (p *Pool) tryAssignAllLocked(ctx context.Context) int {
	total := 0
	for {
		n := p.assignPassLocked(ctx)
		if n == 0 {
			return total
		}
		total += n
	}
}

func (p *Pool) assignPassLocked(ctx context.Context) int {
	assigned := 0
	for _, priority := range domain.Priorities {
		i := 0
		for i < len(p.queues[priority]) {
			task := p.queues[priority][i]
			agent := p.availableLocked(task.RequiredAgentType, task.RequiredCapabilities)
			if agent == nil {
				break // head of line is blocked; move to the next bucket
			}
			p.assignLocked(ctx, task, agent)
			p.removeQueuedLocked(priority, i)
			assigned++
		}
	}
	return assigned
}

// assignLocked transitions the agent and records the assignment. The
// in-memory transition is authoritative; mirror writes that fail are logged
// and never rolled back.
func (p *Pool) assignLocked(ctx context.Context, task *domain.TaskRequest, agent *domain.AgentInstance) {
	now := time.Now()
	agent.State = domain.StateWorking
	agent.CurrentTask = task.ID
	agent.Workload++
	agent.LastActivity = now

	assignment := &domain.TaskAssignment{
		TaskID:     task.ID,
		AgentID:    agent.ID,
		AssignedAt: now,
		Deadline:   task.Deadline,
	}
	p.assignments[task.ID] = assignment
	p.tasksAssigned++

	p.sinkPut(ctx, assignmentKey(task.ID), assignment, assignmentTTL)
	p.mirrorAgent(ctx, agent)

	p.logger.Debug("task assigned",
		"task_id", task.ID,
		"agent_id", agent.ID,
		"workload", agent.Workload)
	p.publish(ctx, domain.Event{Type: domain.EventTaskAssigned, TaskID: task.ID, AgentID: agent.ID})
}

// CompleteTask reports a task outcome. The agent's workload is decremented
// (floored at zero) and it returns to idle once nothing else is in flight
// on it; its running-average execution time is updated as
// (old + new) / 2 and its counters bumped; the assignment
// record is dropped and a fresh assignment pass runs for the freed
// capacity. Fails only when the agent id is unknown.
func (p *Pool) CompleteTask(ctx context.Context, result domain.TaskResult) error {
	ctx, span := tracer.StartSpan(ctx, "pool.complete_task",
		trace.WithAttributes(tracer.StringAttr("task.status", string(result.Status))))
	defer span.End()

	p.mu.Lock()
	agent, ok := p.agents[result.AgentID]
	if !ok {
		p.mu.Unlock()
		err := domain.WrapOp("Pool.CompleteTask", domain.ErrAgentNotFound)
		tracer.RecordError(span, err)
		return err
	}

	if agent.Workload > 0 {
		agent.Workload--
	}
	if agent.Workload == 0 {
		agent.State = domain.StateIdle
		agent.CurrentTask = ""
	}
	agent.LastActivity = time.Now()

	// Smoothing update, not a true mean; see PerformanceMetrics.
	agent.Metrics.AvgExecutionTime = (agent.Metrics.AvgExecutionTime + result.ExecutionTime) / 2
	agent.Metrics.TotalTasks++
	if result.Status == domain.ResultCompleted {
		agent.Metrics.SuccessCount++
	}

	delete(p.assignments, result.TaskID)
	p.tasksCompleted++

	p.sinkDelete(ctx, assignmentKey(result.TaskID))
	p.sinkPut(ctx, resultKey(result.TaskID), &result, resultTTL)
	p.mirrorAgent(ctx, agent)

	assigned := p.tryAssignAllLocked(ctx)
	p.mu.Unlock()

	span.SetAttributes(tracer.IntAttr("pool.assigned_in_pass", assigned))
	p.logger.Info("task completed",
		"task_id", result.TaskID,
		"agent_id", result.AgentID,
		"status", string(result.Status),
		"execution_time", result.ExecutionTime,
		"assigned_in_pass", assigned)
	p.publishPayload(ctx,
		domain.Event{Type: domain.EventTaskCompleted, TaskID: result.TaskID, AgentID: result.AgentID},
		&result)
	return nil
}

// Assignments returns copies of all in-flight assignments.
func (p *Pool) Assignments() []domain.TaskAssignment {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.TaskAssignment, 0, len(p.assignments))
	for _, a := range p.assignments {
		out = append(out, *a)
	}
	return out
}
