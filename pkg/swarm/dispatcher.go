// SwarmFlow - Multi-agent orchestration kernel
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package swarm

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// agentScore ranks an idle candidate: completed work raises the score,
// errors and slow responses lower it.
func agentScore(a *Agent) float64 {
	return float64(a.Performance.TasksCompleted) - 100*a.Performance.ErrorRate - a.Performance.AvgResponseMS/1000
}

// claim atomically selects the best idle agent covering the required
// capabilities and marks it busy. Ties break on the lowest id so
// selection is deterministic.
func (r *Registry) claim(requirements []string) (Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *Agent
	var bestScore float64
	for _, agent := range r.agents {
		if agent.Status != StatusIdle || !hasAllCapabilities(agent.Capabilities, requirements) {
			continue
		}
		score := agentScore(agent)
		if best == nil || score > bestScore || (score == bestScore && agent.ID < best.ID) {
			best = agent
			bestScore = score
		}
	}
	if best == nil {
		return Agent{}, false
	}
	best.Status = StatusBusy
	return best.Clone(), true
}

// release flips a busy agent back to idle and folds the task duration
// into its rolling response average.
func (r *Registry) release(id string, durationMS float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, exists := r.agents[id]
	if !exists {
		return
	}
	n := float64(agent.Performance.TasksCompleted)
	agent.Performance.AvgResponseMS = (agent.Performance.AvgResponseMS*n + durationMS) / (n + 1)
	agent.Performance.TasksCompleted++
	if agent.Status == StatusBusy {
		agent.Status = StatusIdle
	}
}

// Dispatcher assigns tasks to agents and tracks in-flight work. Status
// flips between idle and busy happen only here, so each task sees
// exactly one idle -> busy -> idle cycle.
type Dispatcher struct {
	registry *Registry
	tasks    map[string]*Task
	mu       sync.Mutex
}

func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		tasks:    make(map[string]*Task),
	}
}

// Assign picks the best idle agent whose capabilities cover the task
// requirements. Returns ("", false) when no agent fits; assignment
// never returns an error.
func (d *Dispatcher) Assign(task Task) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if task.ID == "" {
		task.ID = fmt.Sprintf("task-%s", uuid.New().String()[:8])
	}
	if _, exists := d.tasks[task.ID]; exists {
		return "", false
	}

	agent, ok := d.registry.claim(task.Requirements)
	if !ok {
		return "", false
	}

	task.Status = TaskAssigned
	task.AssignedTo = agent.ID
	task.StartTime = time.Now().UTC()
	task.Priority = NormalizePriority(task.Priority)
	d.tasks[task.ID] = &task
	return agent.ID, true
}

// Complete finishes an assigned task: the agent returns to idle and its
// rolling counters absorb the duration. Completing an unknown task is a
// no-op, so duplicate completions are harmless.
func (d *Dispatcher) Complete(taskID string, result any) (Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return Task{}, false
	}

	task.EndTime = time.Now().UTC()
	task.Status = TaskCompleted
	durationMS := float64(task.EndTime.Sub(task.StartTime)) / float64(time.Millisecond)
	d.registry.release(task.AssignedTo, durationMS)

	done := *task
	delete(d.tasks, taskID)
	return done, true
}

// ActiveTasks returns a snapshot of in-flight tasks.
func (d *Dispatcher) ActiveTasks() []Task {
	d.mu.Lock()
	defer d.mu.Unlock()

	tasks := make([]Task, 0, len(d.tasks))
	for _, t := range d.tasks {
		tasks = append(tasks, *t)
	}
	return tasks
}

// TaskByID returns one in-flight task.
func (d *Dispatcher) TaskByID(id string) (Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	task, exists := d.tasks[id]
	if !exists {
		return Task{}, false
	}
	return *task, true
}
