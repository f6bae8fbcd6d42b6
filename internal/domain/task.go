package domain

import "time"

// Priority orders task buckets. Urgent dominates high, high dominates
// medium, medium dominates low; arrival order only matters within a bucket.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Priorities lists the buckets from most to least urgent. The assignment
// engine scans them in this order.
var Priorities = []Priority{PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow}

// Normalize maps unknown priorities to medium.
func (p Priority) Normalize() Priority {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow:
		return p
	default:
		return PriorityMedium
	}
}

// TaskRequest is a unit of work submitted to the pool. Once queued it is
// immutable; the engine moves it between queue and assignment record but
// never rewrites its fields.
type TaskRequest struct {
	ID                   string            `json:"id"`
	Type                 string            `json:"type"`
	Description          string            `json:"description,omitempty"`
	Priority             Priority          `json:"priority"`
	RequiredAgentType    AgentType         `json:"required_agent_type"`
	RequiredCapabilities CapabilitySet     `json:"required_capabilities,omitempty"`
	Payload              map[string]any    `json:"payload,omitempty"`
	Deadline             *time.Time        `json:"deadline,omitempty"`
	Context              map[string]string `json:"context,omitempty"`
	Callback             string            `json:"callback,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
}

// Clone returns a copy safe to hand outside the engine.
func (t *TaskRequest) Clone() TaskRequest {
	out := *t
	out.RequiredCapabilities = t.RequiredCapabilities.Clone()
	if t.Payload != nil {
		out.Payload = make(map[string]any, len(t.Payload))
		for k, v := range t.Payload {
			out.Payload[k] = v
		}
	}
	if t.Context != nil {
		out.Context = make(map[string]string, len(t.Context))
		for k, v := range t.Context {
			out.Context[k] = v
		}
	}
	if t.Deadline != nil {
		d := *t.Deadline
		out.Deadline = &d
	}
	return out
}

// TaskAssignment binds an in-flight task to the agent executing it. It
// exists only between assignment and completion.
type TaskAssignment struct {
	TaskID     string     `json:"task_id"`
	AgentID    string     `json:"agent_id"`
	AssignedAt time.Time  `json:"assigned_at"`
	Deadline   *time.Time `json:"deadline,omitempty"`
}

// ResultStatus is the terminal outcome of a task.
type ResultStatus string

const (
	ResultCompleted ResultStatus = "completed"
	ResultFailed    ResultStatus = "failed"
	ResultPartial   ResultStatus = "partial"
)

// TaskResult reports a finished task back to the pool. Completion resets
// the agent to idle and folds ExecutionTime into its metrics.
type TaskResult struct {
	TaskID        string             `json:"task_id"`
	AgentID       string             `json:"agent_instance_id"`
	Status        ResultStatus       `json:"status"`
	Result        map[string]any     `json:"result,omitempty"`
	Error         string             `json:"error,omitempty"`
	ExecutionTime time.Duration      `json:"execution_time"`
	Timestamp     time.Time          `json:"timestamp"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
}
