package pool

import (
	"context"
	"testing"

	"agentpool/internal/domain"
)

// One fully busy developer under a cap of two triggers exactly one
// scale-up, deterministically named developer-2.
func TestScaleUpCreatesOneAgent(t *testing.T) {
	p := newTestPool(t, func(c *domain.PoolConfig) {
		c.MaxAgentsPerType[domain.TypeDeveloper] = 2
		c.ScaleUpThreshold = 0.8
		// Keep the other direction quiet for this test.
		c.ScaleDownThreshold = 0.0
	})
	ctx := context.Background()
	mustCreate(t, p, domain.TypeDeveloper)
	mustSubmit(t, p, domain.TaskRequest{Type: "job", RequiredAgentType: domain.TypeDeveloper})

	result := p.EvaluateScaling(ctx)
	if result.ScaledUp != 1 || result.ScaledDown != 0 {
		t.Fatalf("result = %+v, want exactly one scale-up", result)
	}
	devs := p.ListAgents(AgentFilter{Type: domain.TypeDeveloper})
	if len(devs) != 2 {
		t.Fatalf("developers = %d, want 2", len(devs))
	}
	if devs[1].Name != "developer-2" {
		t.Errorf("new agent name = %q, want developer-2", devs[1].Name)
	}

	// A second evaluation with the new idle agent: utilization 0.5 is
	// under the threshold, and the cap is reached anyway.
	result = p.EvaluateScaling(ctx)
	if result.ScaledUp != 0 {
		t.Errorf("scaled past max_agents_per_type: %+v", result)
	}
}

func TestScaleUpRespectsCap(t *testing.T) {
	p := newTestPool(t, func(c *domain.PoolConfig) {
		c.MaxAgentsPerType[domain.TypeDeveloper] = 1
		c.ScaleDownThreshold = 0.0
	})
	mustCreate(t, p, domain.TypeDeveloper)
	mustSubmit(t, p, domain.TaskRequest{Type: "job", RequiredAgentType: domain.TypeDeveloper})

	result := p.EvaluateScaling(context.Background())
	if result.ScaledUp != 0 {
		t.Errorf("scaled up a type already at its cap: %+v", result)
	}
}

// Two idle QA agents with a floor of one idle: one is removed, one stays.
func TestScaleDownRemovesOneIdleAgent(t *testing.T) {
	p := newTestPool(t, func(c *domain.PoolConfig) {
		c.ScaleDownThreshold = 0.3
		c.MinIdleAgents = 1
	})
	mustCreate(t, p, domain.TypeQA)
	mustCreate(t, p, domain.TypeQA)

	result := p.EvaluateScaling(context.Background())
	if result.ScaledDown != 1 {
		t.Fatalf("result = %+v, want exactly one scale-down", result)
	}
	qa := p.ListAgents(AgentFilter{Type: domain.TypeQA})
	if len(qa) != 1 {
		t.Fatalf("qa agents = %d, want 1", len(qa))
	}
	if qa[0].State != domain.StateIdle {
		t.Errorf("survivor state = %s, want idle", qa[0].State)
	}

	// The floor holds: one idle agent left means no further removal.
	result = p.EvaluateScaling(context.Background())
	if result.ScaledDown != 0 {
		t.Errorf("scale-down went below min_idle_agents: %+v", result)
	}
}

func TestScaleDownPicksFirstIdleInOrder(t *testing.T) {
	p := newTestPool(t, func(c *domain.PoolConfig) {
		c.MinIdleAgents = 0
	})
	first := mustCreate(t, p, domain.TypePlanner)
	second := mustCreate(t, p, domain.TypePlanner)

	result := p.EvaluateScaling(context.Background())
	if result.ScaledDown == 0 {
		t.Fatal("expected a scale-down")
	}
	if len(result.Removed) != 1 || result.Removed[0] != first.ID {
		t.Errorf("removed %v, want first-created %s", result.Removed, first.ID)
	}
	if _, err := p.GetAgent(second.ID); err != nil {
		t.Error("second agent should survive")
	}
}

func TestEvaluateDisabled(t *testing.T) {
	p := newTestPool(t, func(c *domain.PoolConfig) {
		c.AutoScalingEnabled = false
	})
	mustCreate(t, p, domain.TypeDeveloper)
	mustSubmit(t, p, domain.TaskRequest{Type: "job", RequiredAgentType: domain.TypeDeveloper})

	result := p.EvaluateScaling(context.Background())
	if result.ScaledUp != 0 || result.ScaledDown != 0 {
		t.Errorf("disabled auto-scaling acted anyway: %+v", result)
	}
}

func TestAtMostOneActionPerTypePerCall(t *testing.T) {
	p := newTestPool(t, func(c *domain.PoolConfig) {
		c.MaxAgentsPerType[domain.TypeDeveloper] = 10
		c.ScaleDownThreshold = 0.0
	})
	ctx := context.Background()
	mustCreate(t, p, domain.TypeDeveloper)
	// Saturate: three tasks on one agent keeps utilization at 1.0 even
	// after one new instance would appear.
	for i := 0; i < 3; i++ {
		mustSubmit(t, p, domain.TaskRequest{Type: "job", RequiredAgentType: domain.TypeDeveloper})
	}

	result := p.EvaluateScaling(ctx)
	if result.ScaledUp != 1 {
		t.Errorf("single call scaled up %d times, want 1 (no looping to convergence)", result.ScaledUp)
	}
}

// A scale-up immediately serves the backlog that triggered it: the queued
// task lands on the new agent within the same evaluation.
func TestScaleUpAssignsQueuedWork(t *testing.T) {
	p := newTestPool(t, func(c *domain.PoolConfig) {
		c.MaxAgentsPerType[domain.TypeDeveloper] = 2
		c.ScaleDownThreshold = 0.0
	})
	ctx := context.Background()
	mustCreate(t, p, domain.TypeDeveloper)
	// Capacity three: the fourth task queues.
	for i := 0; i < 4; i++ {
		mustSubmit(t, p, domain.TaskRequest{Type: "job", RequiredAgentType: domain.TypeDeveloper})
	}
	if n := len(p.InspectQueue(domain.PriorityMedium)); n != 1 {
		t.Fatalf("queued = %d, want 1", n)
	}

	result := p.EvaluateScaling(ctx)
	if result.ScaledUp != 1 {
		t.Fatalf("result = %+v, want one scale-up", result)
	}
	if n := len(p.InspectQueue(domain.PriorityMedium)); n != 0 {
		t.Errorf("queued task not assigned to the scaled-up agent, %d left", n)
	}
	created, err := p.GetAgent(result.Created[0])
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if created.Workload != 1 {
		t.Errorf("new agent workload = %d, want 1", created.Workload)
	}
}

func TestScaleDownSkipsBusyAgents(t *testing.T) {
	p := newTestPool(t, func(c *domain.PoolConfig) {
		c.MinIdleAgents = 0
		c.ScaleDownThreshold = 0.9
		c.ScaleUpThreshold = 0.95
	})
	ctx := context.Background()
	busy := mustCreate(t, p, domain.TypeDeveloper)
	idle := mustCreate(t, p, domain.TypeDeveloper)
	mustSubmit(t, p, domain.TaskRequest{Type: "job", RequiredAgentType: domain.TypeDeveloper})

	// Utilization 0.5 < 0.9 and idle count 1 > 0: remove the idle one,
	// never the working one.
	result := p.EvaluateScaling(ctx)
	if result.ScaledDown != 1 {
		t.Fatalf("result = %+v, want one scale-down", result)
	}
	if _, err := p.GetAgent(busy.ID); err != nil {
		t.Error("working agent was removed")
	}
	if _, err := p.GetAgent(idle.ID); err == nil {
		t.Error("idle agent should have been the one removed")
	}
}
