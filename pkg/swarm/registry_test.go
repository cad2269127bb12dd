package swarm

import (
	"errors"
	"testing"

	"github.com/swarmflow/swarmflow/pkg/core"
)

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(Agent{ID: "a1", Type: AgentCoder}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := r.Register(Agent{ID: "a1", Type: AgentTester})
	if !errors.Is(err, core.ErrAlreadyExists) {
		t.Fatalf("duplicate register err = %v, want ErrAlreadyExists", err)
	}
}

func TestRegisterDefaults(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(Agent{ID: "a1"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	agent, ok := r.Get("a1")
	if !ok {
		t.Fatal("agent not found after register")
	}
	if agent.Status != StatusIdle {
		t.Errorf("status = %q, want idle", agent.Status)
	}
	if agent.RegisteredAt.IsZero() {
		t.Error("RegisteredAt not set")
	}
}

func TestRemove(t *testing.T) {
	r := NewRegistry()
	r.Register(Agent{ID: "a1"})

	if err := r.Remove("a1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := r.Get("a1"); ok {
		t.Error("agent still present after remove")
	}

	// Removing an unknown id is a no-op.
	if err := r.Remove("ghost"); err != nil {
		t.Errorf("remove unknown = %v, want nil", err)
	}
}

func TestRemoveBusyAgentRejected(t *testing.T) {
	r := NewRegistry()
	r.Register(Agent{ID: "a1", Capabilities: []string{"web"}})

	d := NewDispatcher(r)
	if _, ok := d.Assign(Task{ID: "t1", Requirements: []string{"web"}}); !ok {
		t.Fatal("assign failed")
	}

	err := r.Remove("a1")
	if !errors.Is(err, core.ErrBusy) {
		t.Fatalf("remove busy agent err = %v, want ErrBusy", err)
	}

	d.Complete("t1", nil)
	if err := r.Remove("a1"); err != nil {
		t.Fatalf("remove after complete: %v", err)
	}
}

func TestListFilter(t *testing.T) {
	r := NewRegistry()
	r.Register(Agent{ID: "c1", Type: AgentCoder, Capabilities: []string{"go", "review"}})
	r.Register(Agent{ID: "c2", Type: AgentCoder, Capabilities: []string{"go"}})
	r.Register(Agent{ID: "t1", Type: AgentTester, Capabilities: []string{"go", "fuzz"}})

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all", Filter{}, []string{"c1", "c2", "t1"}},
		{"by type", Filter{Type: AgentCoder}, []string{"c1", "c2"}},
		{"by capability", Filter{Capability: "review"}, []string{"c1"}},
		{"type and capability", Filter{Type: AgentTester, Capability: "fuzz"}, []string{"t1"}},
		{"no match", Filter{Type: AgentArchitect}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agents := r.List(tt.filter)
			if len(agents) != len(tt.want) {
				t.Fatalf("got %d agents, want %d", len(agents), len(tt.want))
			}
			for i, id := range tt.want {
				if agents[i].ID != id {
					t.Errorf("agents[%d] = %q, want %q", i, agents[i].ID, id)
				}
			}
		})
	}
}

func TestActiveIDsExcludesOfflineAndError(t *testing.T) {
	r := NewRegistry()
	r.Register(Agent{ID: "a"})
	r.Register(Agent{ID: "b", Status: StatusBusy})
	r.Register(Agent{ID: "c", Status: StatusOffline})
	r.Register(Agent{ID: "d", Status: StatusError})

	got := r.ActiveIDs()
	want := []string{"a", "b"}
	if len(got) != len(want) {
		t.Fatalf("ActiveIDs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ActiveIDs[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSetStatus(t *testing.T) {
	r := NewRegistry()
	r.Register(Agent{ID: "a1", Status: StatusError})

	if err := r.SetStatus("a1", StatusIdle); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	agent, _ := r.Get("a1")
	if agent.Status != StatusIdle {
		t.Errorf("status = %q, want idle", agent.Status)
	}

	err := r.SetStatus("ghost", StatusIdle)
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("SetStatus unknown = %v, want ErrNotFound", err)
	}
}

func TestSyncUpsert(t *testing.T) {
	r := NewRegistry()
	r.Register(Agent{ID: "a1", Capabilities: []string{"old"}})
	r.release("a1", 100) // give it history: 1 task, 100ms avg

	// Sync updates status and capabilities but keeps performance.
	r.Sync(Agent{ID: "a1", Status: StatusIdle, Capabilities: []string{"new"}})
	agent, _ := r.Get("a1")
	if len(agent.Capabilities) != 1 || agent.Capabilities[0] != "new" {
		t.Errorf("capabilities = %v, want [new]", agent.Capabilities)
	}
	if agent.Performance.TasksCompleted != 1 {
		t.Errorf("TasksCompleted = %d, want 1 (preserved)", agent.Performance.TasksCompleted)
	}

	// Sync of an unknown agent inserts it.
	r.Sync(Agent{ID: "a2", Capabilities: []string{"x"}})
	if _, ok := r.Get("a2"); !ok {
		t.Error("synced agent a2 not inserted")
	}
}
