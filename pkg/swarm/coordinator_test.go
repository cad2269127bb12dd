package swarm

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/swarmflow/swarmflow/pkg/bus"
	"github.com/swarmflow/swarmflow/pkg/kv"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	store, err := kv.Open("json", t.TempDir(), 1<<20)
	if err != nil {
		t.Fatalf("kv.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return NewCoordinator(Options{
		Store:              store,
		Bus:                bus.NewEventBus(),
		CoordinationBudget: time.Second,
		CoordinationRate:   1000,
	})
}

func TestCoordinatorRegisterAndAssign(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(t)

	if err := c.RegisterAgent(ctx, Agent{ID: "a1", Type: AgentCoder, Capabilities: []string{"go"}}); err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}

	agentID, ok := c.AssignTask(ctx, Task{ID: "t1", Requirements: []string{"go"}})
	if !ok || agentID != "a1" {
		t.Fatalf("AssignTask = (%q, %v), want (a1, true)", agentID, ok)
	}

	task, ok := c.CompleteTask(ctx, "t1", "done")
	if !ok {
		t.Fatal("CompleteTask returned false")
	}
	if task.AssignedTo != "a1" {
		t.Errorf("completed task agent = %q, want a1", task.AssignedTo)
	}

	agent, _ := c.Agent("a1")
	if agent.Status != StatusIdle {
		t.Errorf("agent status = %q, want idle", agent.Status)
	}
}

func TestCoordinateSwarm(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(t)

	agents := []Agent{
		{ID: "a1", Type: AgentCoder, Status: StatusIdle, Capabilities: []string{"go"}},
		{ID: "a2", Type: AgentTester, Status: StatusIdle, Capabilities: []string{"fuzz"}},
		{ID: "a3", Type: AgentAnalyst, Status: StatusIdle, Capabilities: []string{"profiling"}},
	}

	result, err := c.CoordinateSwarm(ctx, agents, TopologyMesh)
	if err != nil {
		t.Fatalf("CoordinateSwarm: %v", err)
	}
	if result.SuccessCount != 3 {
		t.Errorf("SuccessCount = %d, want 3", result.SuccessCount)
	}
	if len(result.Latencies) != 3 {
		t.Errorf("len(Latencies) = %d, want 3", len(result.Latencies))
	}
	if result.SuccessRate != 1.0 {
		t.Errorf("SuccessRate = %v, want 1.0", result.SuccessRate)
	}
	if !result.Success {
		t.Error("Success = false, want true (rate above threshold)")
	}

	// Fan-out upserts every agent into the registry.
	for _, a := range agents {
		if _, ok := c.Agent(a.ID); !ok {
			t.Errorf("agent %s not synced into registry", a.ID)
		}
	}
}

func TestCoordinateSwarmEmpty(t *testing.T) {
	c := newTestCoordinator(t)

	result, err := c.CoordinateSwarm(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("CoordinateSwarm: %v", err)
	}
	if !result.Success || result.SuccessRate != 1 {
		t.Errorf("empty fan-out = %+v, want vacuous success", result)
	}
}

func TestCoordinateSwarmBudgetExhausted(t *testing.T) {
	// A rate so low the second agent cannot get a slot inside the
	// per-agent budget.
	c := NewCoordinator(Options{
		CoordinationBudget: 20 * time.Millisecond,
		CoordinationRate:   0.5,
	})

	agents := []Agent{{ID: "a1"}, {ID: "a2"}, {ID: "a3"}}
	result, err := c.CoordinateSwarm(context.Background(), agents, TopologyStar)
	if err != nil {
		t.Fatalf("CoordinateSwarm: %v", err)
	}
	if result.SuccessCount >= len(agents) {
		t.Errorf("SuccessCount = %d, want < %d with exhausted budget", result.SuccessCount, len(agents))
	}
	if result.Success {
		t.Error("Success = true, want false when most steps time out")
	}
}

func TestCoordinatorEvents(t *testing.T) {
	ctx := context.Background()
	events := bus.NewEventBus()
	c := NewCoordinator(Options{Bus: events})

	ch, cancel := events.Subscribe(16)
	defer cancel()

	if err := c.RegisterAgent(ctx, Agent{ID: "a1", Capabilities: []string{"x"}}); err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}
	c.AssignTask(ctx, Task{ID: "t1", Requirements: []string{"x"}})
	c.CompleteTask(ctx, "t1", nil)

	want := []bus.EventType{bus.EventAgentRegistered, bus.EventTaskAssigned, bus.EventTaskCompleted}
	for _, wantType := range want {
		waitCtx, cancelWait := context.WithTimeout(ctx, time.Second)
		ev, ok := bus.Next(waitCtx, ch)
		cancelWait()
		if !ok {
			t.Fatalf("timed out waiting for %s", wantType)
		}
		if ev.Type != wantType {
			t.Errorf("event = %s, want %s", ev.Type, wantType)
		}
	}
}

func TestRestoreAgents(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := kv.Open("json", dir, 1<<20)
	if err != nil {
		t.Fatalf("kv.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	first := NewCoordinator(Options{Store: store})
	if err := first.RegisterAgent(ctx, Agent{
		ID:           "a1",
		Type:         AgentCoder,
		Capabilities: []string{"go"},
		Performance:  Performance{TasksCompleted: 7, AvgResponseMS: 120},
	}); err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}
	if err := first.RegisterAgent(ctx, Agent{
		ID:     "a2",
		Type:   AgentTester,
		Status: StatusBusy,
	}); err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}

	second := NewCoordinator(Options{Store: store})
	restored, err := second.RestoreAgents(ctx)
	if err != nil {
		t.Fatalf("RestoreAgents: %v", err)
	}
	if restored != 2 {
		t.Fatalf("restored = %d, want 2", restored)
	}

	a1, ok := second.Agent("a1")
	if !ok {
		t.Fatal("a1 not restored")
	}
	if a1.Performance.TasksCompleted != 7 {
		t.Errorf("a1 TasksCompleted = %d, want 7 (counters survive restart)", a1.Performance.TasksCompleted)
	}

	a2, ok := second.Agent("a2")
	if !ok {
		t.Fatal("a2 not restored")
	}
	if a2.Status != StatusIdle {
		t.Errorf("a2 status = %q, want idle (in-flight work died with the process)", a2.Status)
	}
}

func TestRestoreAgentsWithoutStore(t *testing.T) {
	c := NewCoordinator(Options{})
	restored, err := c.RestoreAgents(context.Background())
	if err != nil {
		t.Fatalf("RestoreAgents: %v", err)
	}
	if restored != 0 {
		t.Errorf("restored = %d, want 0", restored)
	}
}

func TestCoordinatorMetrics(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(t)

	c.RegisterAgent(ctx, Agent{ID: "a1", Capabilities: []string{"x"}})
	c.RegisterAgent(ctx, Agent{ID: "a2", Status: StatusOffline})

	c.AssignTask(ctx, Task{ID: "t1", Requirements: []string{"x"}})
	c.CompleteTask(ctx, "t1", nil)

	m := c.Metrics()
	if m.AgentCount != 2 {
		t.Errorf("AgentCount = %d, want 2", m.AgentCount)
	}
	if m.ActiveAgents != 1 {
		t.Errorf("ActiveAgents = %d, want 1", m.ActiveAgents)
	}
	if m.CompletedTasks != 1 {
		t.Errorf("CompletedTasks = %d, want 1", m.CompletedTasks)
	}
	if m.TotalTasks != 1 {
		t.Errorf("TotalTasks = %d, want 1", m.TotalTasks)
	}
	if m.UptimeMS < 0 {
		t.Errorf("UptimeMS = %d, want >= 0", m.UptimeMS)
	}
}

func TestMetricsExport(t *testing.T) {
	c := newTestCoordinator(t)
	c.Collector().TaskAssigned()
	c.Collector().RecordLatency("assign", 3*time.Millisecond)

	out := c.Collector().ExportPrometheus()
	for _, want := range []string{"swarmflow_tasks_assigned 1", "swarmflow_agent_count", "# TYPE"} {
		if !strings.Contains(out, want) {
			t.Errorf("prometheus export missing %q", want)
		}
	}

	raw, err := c.Collector().ExportJSON()
	if err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}
	if !strings.Contains(string(raw), "tasks_assigned") {
		t.Error("json export missing tasks_assigned")
	}
}
