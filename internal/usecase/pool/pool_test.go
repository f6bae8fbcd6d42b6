package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"agentpool/internal/domain"
	"agentpool/internal/infra/logger"
)

func newTestPool(t *testing.T, mutate func(*domain.PoolConfig)) *Pool {
	t.Helper()
	cfg := domain.DefaultPoolConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := New(cfg, nil, nil, logger.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func mustCreate(t *testing.T, p *Pool, typ domain.AgentType) domain.AgentInstance {
	t.Helper()
	agent, err := p.CreateAgent(context.Background(), typ, "")
	if err != nil {
		t.Fatalf("CreateAgent(%s): %v", typ, err)
	}
	return agent
}

func mustSubmit(t *testing.T, p *Pool, req domain.TaskRequest) domain.TaskRequest {
	t.Helper()
	task, err := p.SubmitTask(context.Background(), req)
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}
	return task
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := domain.DefaultPoolConfig()
	cfg.ScaleUpThreshold = 2.0
	if _, err := New(cfg, nil, nil, logger.Discard()); err == nil {
		t.Fatal("expected error for invalid config")
	}
}

func TestReplaceConfigKeepsPreviousOnRejection(t *testing.T) {
	p := newTestPool(t, nil)
	before := p.Config()

	bad := before.Clone()
	bad.ScaleDownThreshold = 1.5
	err := p.ReplaceConfig(context.Background(), bad)
	if err == nil {
		t.Fatal("expected rejection of invalid config")
	}
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("error %v does not wrap ErrInvalidConfig", err)
	}
	after := p.Config()
	if after.ScaleDownThreshold != before.ScaleDownThreshold {
		t.Error("rejected config partially applied")
	}

	good := before.Clone()
	good.MinIdleAgents = 2
	if err := p.ReplaceConfig(context.Background(), good); err != nil {
		t.Fatalf("ReplaceConfig: %v", err)
	}
	if p.Config().MinIdleAgents != 2 {
		t.Error("valid replacement not applied")
	}
}

func TestStats(t *testing.T) {
	p := newTestPool(t, nil)
	mustCreate(t, p, domain.TypeDeveloper)
	mustCreate(t, p, domain.TypeQA)

	mustSubmit(t, p, domain.TaskRequest{
		Type:              "build",
		RequiredAgentType: domain.TypeDeveloper,
	})
	mustSubmit(t, p, domain.TaskRequest{
		Type:              "audit",
		Priority:          domain.PriorityHigh,
		RequiredAgentType: domain.TypeSecurity, // nobody home, stays queued
	})

	stats := p.Stats()
	if stats.TotalAgents != 2 {
		t.Errorf("TotalAgents = %d, want 2", stats.TotalAgents)
	}
	if stats.TasksSubmitted != 2 {
		t.Errorf("TasksSubmitted = %d, want 2", stats.TasksSubmitted)
	}
	if stats.TasksAssigned != 1 {
		t.Errorf("TasksAssigned = %d, want 1", stats.TasksAssigned)
	}
	if stats.InFlightTasks != 1 {
		t.Errorf("InFlightTasks = %d, want 1", stats.InFlightTasks)
	}
	if stats.QueuedTasks[domain.PriorityHigh] != 1 {
		t.Errorf("QueuedTasks[high] = %d, want 1", stats.QueuedTasks[domain.PriorityHigh])
	}
	if stats.AgentsByState[domain.StateWorking] != 1 {
		t.Errorf("AgentsByState[working] = %d, want 1", stats.AgentsByState[domain.StateWorking])
	}
}

// failSink errors on every operation; the engine must shrug it off.
type failSink struct{}

var errSinkDown = errors.New("sink down")

func (failSink) Put(context.Context, string, string, time.Duration) error { return errSinkDown }

func (failSink) Delete(context.Context, string) error { return errSinkDown }

func (failSink) AddToSet(context.Context, string, string) error { return errSinkDown }

func (failSink) RemoveFromSet(context.Context, string, string) error { return errSinkDown }

func (failSink) PushList(context.Context, string, string) error { return errSinkDown }

func TestSinkFailuresDoNotAffectEngine(t *testing.T) {
	cfg := domain.DefaultPoolConfig()
	p, err := New(cfg, failSink{}, nil, logger.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	agent, err := p.CreateAgent(ctx, domain.TypeDeveloper, "dev")
	if err != nil {
		t.Fatalf("CreateAgent with failing sink: %v", err)
	}
	task, err := p.SubmitTask(ctx, domain.TaskRequest{
		Type:              "build",
		RequiredAgentType: domain.TypeDeveloper,
	})
	if err != nil {
		t.Fatalf("SubmitTask with failing sink: %v", err)
	}
	got, _ := p.GetAgent(agent.ID)
	if got.Workload != 1 {
		t.Errorf("workload = %d, want 1 (in-memory state is authoritative)", got.Workload)
	}
	if err := p.CompleteTask(ctx, domain.TaskResult{
		TaskID:  task.ID,
		AgentID: agent.ID,
		Status:  domain.ResultCompleted,
	}); err != nil {
		t.Fatalf("CompleteTask with failing sink: %v", err)
	}
}

func TestConcurrentSubmitAndComplete(t *testing.T) {
	p := newTestPool(t, nil)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		mustCreate(t, p, domain.TypeDeveloper)
	}

	const tasks = 40
	var wg sync.WaitGroup
	ids := make(chan string, tasks)
	for i := 0; i < tasks; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			task, err := p.SubmitTask(ctx, domain.TaskRequest{
				Type:              fmt.Sprintf("job-%d", i),
				RequiredAgentType: domain.TypeDeveloper,
			})
			if err != nil {
				t.Errorf("SubmitTask: %v", err)
				return
			}
			ids <- task.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	// The workload bound must hold no matter how submissions interleaved.
	for _, a := range p.ListAgents(AgentFilter{}) {
		if a.Workload < 0 || a.Workload > a.MaxConcurrentTasks {
			t.Fatalf("agent %s workload %d outside [0,%d]", a.ID, a.Workload, a.MaxConcurrentTasks)
		}
	}

	// Drain everything: complete in-flight tasks until queue and
	// assignments are empty.
	for i := 0; i < tasks*2; i++ {
		assignments := p.Assignments()
		if len(assignments) == 0 && p.QueuedTaskCount() == 0 {
			break
		}
		for _, asg := range assignments {
			if err := p.CompleteTask(ctx, domain.TaskResult{
				TaskID:  asg.TaskID,
				AgentID: asg.AgentID,
				Status:  domain.ResultCompleted,
			}); err != nil {
				t.Fatalf("CompleteTask: %v", err)
			}
		}
	}

	if n := p.QueuedTaskCount(); n != 0 {
		t.Errorf("queue not drained, %d tasks left", n)
	}
	if n := len(p.Assignments()); n != 0 {
		t.Errorf("%d assignments left in flight", n)
	}
	stats := p.Stats()
	if stats.TasksCompleted != uint64(tasks) {
		t.Errorf("TasksCompleted = %d, want %d", stats.TasksCompleted, tasks)
	}
}
