// SwarmFlow - Multi-agent orchestration kernel
// Swarm coordination: agent registry and capability selection
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package swarm

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/swarmflow/swarmflow/pkg/core"
)

// Registry is the authoritative store for agent lifecycle. Only the
// dispatcher flips status busy/idle; completion updates the performance
// counters. All reads return clones.
type Registry struct {
	agents map[string]*Agent
	mu     sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*Agent)}
}

// Register inserts a new agent. The id must be unused.
func (r *Registry) Register(agent Agent) error {
	if agent.ID == "" {
		return fmt.Errorf("register agent: empty id: %w", core.ErrValidationFailed)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[agent.ID]; exists {
		return fmt.Errorf("register agent %s: %w", agent.ID, core.ErrAlreadyExists)
	}

	if agent.Status == "" {
		agent.Status = StatusIdle
	}
	if agent.RegisteredAt.IsZero() {
		agent.RegisteredAt = time.Now().UTC()
	}
	stored := agent.Clone()
	r.agents[agent.ID] = &stored
	return nil
}

// Remove deletes an agent. Removing an unknown id is a no-op; removing
// an agent that currently holds a task is rejected.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, exists := r.agents[id]
	if !exists {
		return nil
	}
	if agent.Status == StatusBusy {
		return fmt.Errorf("remove agent %s: assigned task in flight: %w", id, core.ErrBusy)
	}
	delete(r.agents, id)
	return nil
}

func (r *Registry) Get(id string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, exists := r.agents[id]
	if !exists {
		return Agent{}, false
	}
	return agent.Clone(), true
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Type       AgentType
	Status     AgentStatus
	Capability string
}

// List returns matching agents sorted by id.
func (r *Registry) List(filter Filter) []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]Agent, 0, len(r.agents))
	for _, agent := range r.agents {
		if filter.Type != "" && agent.Type != filter.Type {
			continue
		}
		if filter.Status != "" && agent.Status != filter.Status {
			continue
		}
		if filter.Capability != "" && !hasCapability(agent.Capabilities, filter.Capability) {
			continue
		}
		agents = append(agents, agent.Clone())
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	return agents
}

// ActiveIDs returns the ids of agents that are idle or busy, sorted.
func (r *Registry) ActiveIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.agents))
	for id, agent := range r.agents {
		if agent.Status == StatusIdle || agent.Status == StatusBusy {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// SetStatus transitions an agent's status explicitly. Used to bring an
// errored agent back to idle or mark one offline; the busy flip is the
// dispatcher's alone.
func (r *Registry) SetStatus(id string, status AgentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, exists := r.agents[id]
	if !exists {
		return fmt.Errorf("agent %s: %w", id, core.ErrNotFound)
	}
	agent.Status = status
	return nil
}

// Sync upserts an agent's status and capabilities, preserving existing
// performance counters. Used by coordination fan-out.
func (r *Registry) Sync(agent Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.agents[agent.ID]
	if !exists {
		if agent.Status == "" {
			agent.Status = StatusIdle
		}
		if agent.RegisteredAt.IsZero() {
			agent.RegisteredAt = time.Now().UTC()
		}
		stored := agent.Clone()
		r.agents[agent.ID] = &stored
		return
	}
	if agent.Status != "" {
		existing.Status = agent.Status
	}
	if agent.Capabilities != nil {
		existing.Capabilities = append([]string(nil), agent.Capabilities...)
	}
	if agent.Connections != nil {
		existing.Connections = append([]string(nil), agent.Connections...)
	}
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

func hasCapability(capabilities []string, want string) bool {
	for _, c := range capabilities {
		if c == want {
			return true
		}
	}
	return false
}

func hasAllCapabilities(capabilities, required []string) bool {
	for _, want := range required {
		if !hasCapability(capabilities, want) {
			return false
		}
	}
	return true
}
