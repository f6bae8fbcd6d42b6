package pool

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"agentpool/internal/domain"
	"agentpool/internal/infra/tracer"
)

// SubmitTask queues a task and immediately runs an assignment pass. The
// task's id and creation timestamp are filled in here; an unknown priority
// is normalized to medium. The returned copy reflects the queued task
// whether or not it was assigned in the pass.
func (p *Pool) SubmitTask(ctx context.Context, req domain.TaskRequest) (domain.TaskRequest, error) {
	ctx, span := tracer.StartSpan(ctx, "pool.submit_task",
		trace.WithAttributes(tracer.StringAttr("task.required_type", string(req.RequiredAgentType))))
	defer span.End()

	if !req.RequiredAgentType.Valid() {
		err := domain.NewDomainError("Pool.SubmitTask", domain.ErrInvalidInput,
			fmt.Sprintf("unknown required agent type %q", req.RequiredAgentType))
		tracer.RecordError(span, err)
		return domain.TaskRequest{}, err
	}

	task := req.Clone()
	task.ID = newInstanceID()
	task.Priority = task.Priority.Normalize()
	task.CreatedAt = time.Now()

	p.mu.Lock()
	queued := &task
	p.queues[task.Priority] = append(p.queues[task.Priority], queued)
	p.tasksSubmitted++
	p.sinkPut(ctx, taskKey(task.ID), queued, taskTTL)
	p.sinkPushList(ctx, queueKey(task.Priority), task.ID)
	assigned := p.tryAssignAllLocked(ctx)
	p.mu.Unlock()

	span.SetAttributes(
		tracer.StringAttr("task.priority", string(task.Priority)),
		tracer.IntAttr("pool.assigned_in_pass", assigned),
	)
	p.logger.Info("task submitted",
		"task_id", task.ID,
		"priority", string(task.Priority),
		"required_type", string(task.RequiredAgentType),
		"assigned_in_pass", assigned)
	p.publish(ctx, domain.Event{Type: domain.EventTaskSubmitted, TaskID: task.ID})
	return task.Clone(), nil
}

// InspectQueue returns copies of the tasks waiting in one priority bucket,
// in arrival order.
func (p *Pool) InspectQueue(priority domain.Priority) []domain.TaskRequest {
	priority = priority.Normalize()
	p.mu.Lock()
	defer p.mu.Unlock()

	bucket := p.queues[priority]
	out := make([]domain.TaskRequest, 0, len(bucket))
	for _, t := range bucket {
		out = append(out, t.Clone())
	}
	return out
}

// QueuedTaskCount returns the number of queued tasks across all buckets.
func (p *Pool) QueuedTaskCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, pr := range domain.Priorities {
		n += len(p.queues[pr])
	}
	return n
}

// removeQueuedLocked drops the task at index i of the given bucket,
// preserving arrival order of the rest.
func (p *Pool) removeQueuedLocked(priority domain.Priority, i int) {
	bucket := p.queues[priority]
	p.queues[priority] = append(bucket[:i], bucket[i+1:]...)
}
