package swarm

import (
	"testing"
	"time"
)

// Two agents, only one covering both required capabilities: the richer
// agent wins, goes busy, and returns to idle with updated counters on
// completion.
func TestAssignByCapability(t *testing.T) {
	r := NewRegistry()
	r.Register(Agent{ID: "a1", Capabilities: []string{"web", "parse"}})
	r.Register(Agent{ID: "a2", Capabilities: []string{"web"}})
	d := NewDispatcher(r)

	agentID, ok := d.Assign(Task{ID: "t1", Requirements: []string{"web", "parse"}, Priority: "5"})
	if !ok {
		t.Fatal("assign returned no agent")
	}
	if agentID != "a1" {
		t.Fatalf("assigned %q, want a1", agentID)
	}

	agent, _ := r.Get("a1")
	if agent.Status != StatusBusy {
		t.Errorf("a1 status = %q, want busy", agent.Status)
	}

	task, found := d.TaskByID("t1")
	if !found {
		t.Fatal("task t1 not tracked")
	}
	if task.AssignedTo != "a1" || task.Status != TaskAssigned {
		t.Errorf("task = %+v, want assigned to a1", task)
	}
	if task.StartTime.IsZero() {
		t.Error("StartTime not recorded")
	}

	time.Sleep(20 * time.Millisecond)
	done, ok := d.Complete("t1", map[string]any{"out": "done"})
	if !ok {
		t.Fatal("complete returned false")
	}
	if done.EndTime.Before(done.StartTime) {
		t.Error("EndTime before StartTime")
	}

	agent, _ = r.Get("a1")
	if agent.Status != StatusIdle {
		t.Errorf("a1 status after complete = %q, want idle", agent.Status)
	}
	if agent.Performance.TasksCompleted != 1 {
		t.Errorf("TasksCompleted = %d, want 1", agent.Performance.TasksCompleted)
	}
	if agent.Performance.AvgResponseMS < 15 {
		t.Errorf("AvgResponseMS = %v, want >= 15", agent.Performance.AvgResponseMS)
	}
}

func TestAssignTieBreaksOnLowestID(t *testing.T) {
	r := NewRegistry()
	r.Register(Agent{ID: "z", Capabilities: []string{"x"}, Performance: Performance{TasksCompleted: 5, AvgResponseMS: 100}})
	r.Register(Agent{ID: "a", Capabilities: []string{"x"}, Performance: Performance{TasksCompleted: 5, AvgResponseMS: 100}})
	d := NewDispatcher(r)

	agentID, ok := d.Assign(Task{Requirements: []string{"x"}})
	if !ok {
		t.Fatal("assign returned no agent")
	}
	if agentID != "a" {
		t.Errorf("assigned %q, want a (lower id wins ties)", agentID)
	}
}

func TestAssignPrefersHigherScore(t *testing.T) {
	r := NewRegistry()
	// score(fast) = 10 - 0 - 0.05 = 9.95
	// score(flaky) = 20 - 100*0.5 - 0.05 = -30.05
	r.Register(Agent{ID: "fast", Capabilities: []string{"x"}, Performance: Performance{TasksCompleted: 10, AvgResponseMS: 50}})
	r.Register(Agent{ID: "flaky", Capabilities: []string{"x"}, Performance: Performance{TasksCompleted: 20, AvgResponseMS: 50, ErrorRate: 0.5}})
	d := NewDispatcher(r)

	agentID, _ := d.Assign(Task{Requirements: []string{"x"}})
	if agentID != "fast" {
		t.Errorf("assigned %q, want fast", agentID)
	}
}

func TestAssignNoCandidate(t *testing.T) {
	r := NewRegistry()
	r.Register(Agent{ID: "a1", Capabilities: []string{"web"}})
	r.Register(Agent{ID: "a2", Status: StatusError, Capabilities: []string{"gpu"}})
	d := NewDispatcher(r)

	// No agent has the capability.
	if id, ok := d.Assign(Task{Requirements: []string{"gpu", "web"}}); ok {
		t.Errorf("assign returned %q, want no agent", id)
	}

	// The only capable agent is in error state and must be skipped.
	if id, ok := d.Assign(Task{Requirements: []string{"gpu"}}); ok {
		t.Errorf("assign returned %q, want no agent (a2 is errored)", id)
	}
}

func TestAssignExhaustsIdleAgents(t *testing.T) {
	r := NewRegistry()
	r.Register(Agent{ID: "a1", Capabilities: []string{"x"}})
	d := NewDispatcher(r)

	if _, ok := d.Assign(Task{ID: "t1", Requirements: []string{"x"}}); !ok {
		t.Fatal("first assign failed")
	}
	if id, ok := d.Assign(Task{ID: "t2", Requirements: []string{"x"}}); ok {
		t.Errorf("second assign returned %q, want no agent (a1 busy)", id)
	}

	d.Complete("t1", nil)
	if _, ok := d.Assign(Task{ID: "t3", Requirements: []string{"x"}}); !ok {
		t.Error("assign after complete failed, agent should be idle again")
	}
}

func TestCompleteIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Register(Agent{ID: "a1", Capabilities: []string{"x"}})
	d := NewDispatcher(r)

	d.Assign(Task{ID: "t1", Requirements: []string{"x"}})
	if _, ok := d.Complete("t1", nil); !ok {
		t.Fatal("first complete failed")
	}
	if _, ok := d.Complete("t1", nil); ok {
		t.Error("second complete succeeded, want no-op")
	}

	agent, _ := r.Get("a1")
	if agent.Performance.TasksCompleted != 1 {
		t.Errorf("TasksCompleted = %d, want 1 (no double count)", agent.Performance.TasksCompleted)
	}
}

func TestCompleteUnknownTask(t *testing.T) {
	d := NewDispatcher(NewRegistry())
	if _, ok := d.Complete("never-assigned", nil); ok {
		t.Error("complete of unknown task succeeded, want no-op")
	}
}

// The rolling mean folds each duration in before the counter advances.
func TestReleaseRollingAverage(t *testing.T) {
	r := NewRegistry()
	r.Register(Agent{ID: "a1"})

	steps := []struct {
		durationMS float64
		wantAvg    float64
		wantCount  int
	}{
		{200, 200, 1},
		{100, 150, 2},
		{300, 200, 3},
	}

	for _, step := range steps {
		r.release("a1", step.durationMS)
		agent, _ := r.Get("a1")
		if agent.Performance.AvgResponseMS != step.wantAvg {
			t.Errorf("after %v ms: avg = %v, want %v", step.durationMS, agent.Performance.AvgResponseMS, step.wantAvg)
		}
		if agent.Performance.TasksCompleted != step.wantCount {
			t.Errorf("after %v ms: count = %d, want %d", step.durationMS, agent.Performance.TasksCompleted, step.wantCount)
		}
	}
}

func TestAssignGeneratesTaskID(t *testing.T) {
	r := NewRegistry()
	r.Register(Agent{ID: "a1", Capabilities: []string{"x"}})
	d := NewDispatcher(r)

	if _, ok := d.Assign(Task{Requirements: []string{"x"}}); !ok {
		t.Fatal("assign failed")
	}
	active := d.ActiveTasks()
	if len(active) != 1 {
		t.Fatalf("got %d active tasks, want 1", len(active))
	}
	if active[0].ID == "" {
		t.Error("task id not generated")
	}
}
