package scheduling

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"agentpool/internal/infra/logger"
)

func TestAddTaskUnknownAction(t *testing.T) {
	s := New(logger.Discard())
	err := s.AddTask(Task{Name: "x", Schedule: "30s", Action: Action("mystery")})
	if err == nil {
		t.Fatal("expected error for unregistered action")
	}
}

func TestAddTaskBadSchedule(t *testing.T) {
	s := New(logger.Discard())
	s.RegisterAction(ActionAutoScale, func(ctx context.Context) error { return nil })
	if err := s.AddTask(Task{Name: "x", Schedule: "never", Action: ActionAutoScale}); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	if err := s.AddTask(Task{Name: "x", Schedule: "-5s", Action: ActionAutoScale}); err == nil {
		t.Fatal("expected error for negative duration")
	}
}

func TestParseSchedule(t *testing.T) {
	if _, err := ParseSchedule("*/5 * * * *"); err != nil {
		t.Errorf("cron expression rejected: %v", err)
	}
	if _, err := ParseSchedule("250ms"); err != nil {
		t.Errorf("sub-second duration rejected: %v", err)
	}
	if _, err := ParseSchedule(""); err == nil {
		t.Error("empty schedule accepted")
	}
}

func TestSchedulerRunsTask(t *testing.T) {
	s := New(logger.Discard())
	var runs atomic.Int64
	s.RegisterAction(ActionStaleSweep, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})
	if err := s.AddTask(Task{Name: "sweep", Schedule: "20ms", Action: ActionStaleSweep}); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	s.Start(context.Background())
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if runs.Load() < 2 {
		t.Fatalf("task ran %d times, want >= 2", runs.Load())
	}
}

func TestSchedulerStopPreventsRuns(t *testing.T) {
	s := New(logger.Discard())
	var runs atomic.Int64
	s.RegisterAction(ActionAuditPrune, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})
	if err := s.AddTask(Task{Name: "prune", Schedule: "20ms", Action: ActionAuditPrune}); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	s.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	settled := runs.Load()
	time.Sleep(60 * time.Millisecond)
	if runs.Load() != settled {
		t.Errorf("task kept running after Stop: %d -> %d", settled, runs.Load())
	}
}
