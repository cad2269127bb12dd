// SwarmFlow - Multi-agent orchestration kernel
// Swarm coordination: registry, dispatch, and topology fan-out
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package swarm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/swarmflow/swarmflow/pkg/bus"
	"github.com/swarmflow/swarmflow/pkg/kv"
	"github.com/swarmflow/swarmflow/pkg/logger"
)

// successThreshold is the success rate a coordination fan-out must
// exceed to count as an overall success.
const successThreshold = 0.80

// Options configures a Coordinator. Store and Bus are optional; without
// them agents are kept in memory only and no events are emitted.
type Options struct {
	Store    kv.Store
	Bus      *bus.EventBus
	Topology Topology

	// Per-agent time budget for one coordination step.
	CoordinationBudget time.Duration
	// Coordination steps per second across the whole fan-out.
	CoordinationRate float64
}

// Coordinator owns the agent registry and dispatcher and runs
// topology-wide coordination fan-outs.
type Coordinator struct {
	registry   *Registry
	dispatcher *Dispatcher
	collector  *MetricsCollector
	store      kv.Store
	events     *bus.EventBus
	topology   Topology
	budget     time.Duration
	limiter    *rate.Limiter
	started    time.Time
}

func NewCoordinator(opts Options) *Coordinator {
	if opts.Topology == "" {
		opts.Topology = TopologyMesh
	}
	if opts.CoordinationBudget <= 0 {
		opts.CoordinationBudget = 250 * time.Millisecond
	}
	if opts.CoordinationRate <= 0 {
		opts.CoordinationRate = 50
	}

	registry := NewRegistry()
	return &Coordinator{
		registry:   registry,
		dispatcher: NewDispatcher(registry),
		collector:  NewMetricsCollector(),
		store:      opts.Store,
		events:     opts.Bus,
		topology:   opts.Topology,
		budget:     opts.CoordinationBudget,
		limiter:    rate.NewLimiter(rate.Limit(opts.CoordinationRate), 1),
		started:    time.Now(),
	}
}

func (c *Coordinator) Registry() *Registry          { return c.registry }
func (c *Coordinator) Dispatcher() *Dispatcher      { return c.dispatcher }
func (c *Coordinator) Collector() *MetricsCollector { return c.collector }
func (c *Coordinator) Topology() Topology           { return c.topology }

// RegisterAgent inserts an agent into the registry and persists it.
// Persistence failures are logged, not returned: the registry remains
// authoritative and callers can rerun coordination to re-sync.
func (c *Coordinator) RegisterAgent(ctx context.Context, agent Agent) error {
	if err := c.registry.Register(agent); err != nil {
		return err
	}

	if c.store != nil {
		res := c.store.Store(ctx, agent.ID, agent, kv.NamespaceAgents)
		if res.Status != "ok" {
			logger.WarnCF("swarm", "Agent persistence failed", map[string]any{
				"agent": agent.ID,
				"error": res.Error,
			})
		}
	}
	c.publish(bus.EventAgentRegistered, map[string]any{
		"agent_id": agent.ID,
		"type":     string(agent.Type),
	})
	c.refreshGauges()
	logger.InfoCF("swarm", "Agent registered", map[string]any{
		"agent": agent.ID,
		"type":  string(agent.Type),
	})
	return nil
}

// RemoveAgent deletes an agent. Agents holding an in-flight task are
// rejected with a busy error.
func (c *Coordinator) RemoveAgent(ctx context.Context, id string) error {
	if err := c.registry.Remove(id); err != nil {
		return err
	}

	if c.store != nil {
		if _, err := c.store.Delete(ctx, id, kv.NamespaceAgents); err != nil {
			logger.WarnCF("swarm", "Agent removal persistence failed", map[string]any{
				"agent": id,
				"error": err.Error(),
			})
		}
	}
	c.publish(bus.EventAgentRemoved, map[string]any{"agent_id": id})
	c.refreshGauges()
	return nil
}

// RestoreAgents loads persisted agents back into the registry after a
// restart. Agents that were mid-task come back idle: their in-flight
// work died with the previous process. Returns how many were restored.
func (c *Coordinator) RestoreAgents(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}

	entries, err := c.store.Search(ctx, "*", kv.NamespaceAgents)
	if err != nil {
		return 0, fmt.Errorf("restore agents: %w", err)
	}

	restored := 0
	for key, value := range entries {
		raw, err := json.Marshal(value)
		if err != nil {
			continue
		}
		var agent Agent
		if err := json.Unmarshal(raw, &agent); err != nil || agent.ID == "" {
			logger.WarnCF("swarm", "Skipping corrupt agent record", map[string]any{"key": key})
			continue
		}
		if agent.Status == StatusBusy {
			agent.Status = StatusIdle
		}
		c.registry.Sync(agent)
		restored++
	}

	if restored > 0 {
		c.refreshGauges()
		logger.InfoCF("swarm", "Agents restored", map[string]any{"count": restored})
	}
	return restored, nil
}

func (c *Coordinator) Agent(id string) (Agent, bool) {
	return c.registry.Get(id)
}

func (c *Coordinator) ListAgents(filter Filter) []Agent {
	return c.registry.List(filter)
}

func (c *Coordinator) ActiveAgentIDs() []string {
	return c.registry.ActiveIDs()
}

// SetAgentStatus transitions an agent explicitly, e.g. error back to
// idle after an operator fixed it, or offline for maintenance.
func (c *Coordinator) SetAgentStatus(id string, status AgentStatus) error {
	if err := c.registry.SetStatus(id, status); err != nil {
		return err
	}
	c.refreshGauges()
	return nil
}

// AssignTask routes a task to the best fitting idle agent. The second
// return is false when no agent covers the requirements.
func (c *Coordinator) AssignTask(ctx context.Context, task Task) (string, bool) {
	start := time.Now()
	agentID, ok := c.dispatcher.Assign(task)
	if !ok {
		c.collector.AssignmentMiss()
		return "", false
	}

	c.collector.TaskAssigned()
	c.collector.RecordLatency("assign", time.Since(start))

	if c.store != nil {
		if t, found := c.dispatcher.TaskByID(task.ID); found {
			task = t
		}
		res := c.store.Store(ctx, task.ID, task, kv.NamespaceTasks)
		if res.Status != "ok" {
			logger.WarnCF("swarm", "Task persistence failed", map[string]any{
				"task":  task.ID,
				"error": res.Error,
			})
		}
	}
	c.publish(bus.EventTaskAssigned, map[string]any{
		"task_id":  task.ID,
		"agent_id": agentID,
	})
	return agentID, true
}

// CompleteTask finishes a task and releases its agent. Unknown ids are
// ignored so completion stays idempotent.
func (c *Coordinator) CompleteTask(ctx context.Context, taskID string, result any) (Task, bool) {
	task, ok := c.dispatcher.Complete(taskID, result)
	if !ok {
		return Task{}, false
	}

	c.collector.TaskCompleted()
	c.collector.RecordLatency("task", task.EndTime.Sub(task.StartTime))

	if c.store != nil {
		if _, err := c.store.Delete(ctx, taskID, kv.NamespaceTasks); err != nil {
			logger.WarnCF("swarm", "Task record cleanup failed", map[string]any{
				"task":  taskID,
				"error": err.Error(),
			})
		}
	}
	c.publish(bus.EventTaskCompleted, map[string]any{
		"task_id":     task.ID,
		"agent_id":    task.AssignedTo,
		"duration_ms": task.EndTime.Sub(task.StartTime).Milliseconds(),
	})
	return task, true
}

// CoordinateSwarm synchronizes the given agents into the registry, one
// rate-limited step per agent, each under the per-agent budget. Steps
// run in parallel with no ordering between agents. The fan-out as a
// whole succeeds when more than 80% of steps do.
func (c *Coordinator) CoordinateSwarm(ctx context.Context, agents []Agent, topology Topology) (CoordinationResult, error) {
	if topology == "" {
		topology = c.topology
	}
	c.collector.CoordinationRun()

	result := CoordinationResult{Topology: topology, Latencies: []float64{}}
	if len(agents) == 0 {
		result.SuccessRate = 1
		result.Success = true
		return result, nil
	}

	latencies := make([]float64, len(agents))
	succeeded := make([]bool, len(agents))

	g, gctx := errgroup.WithContext(ctx)
	for i, agent := range agents {
		g.Go(func() error {
			start := time.Now()
			if err := c.coordinateAgent(gctx, agent); err != nil {
				c.collector.CoordinationError()
				c.publish(bus.EventCoordinationErr, map[string]any{
					"agent_id": agent.ID,
					"error":    err.Error(),
				})
				logger.WarnCF("swarm", "Coordination step failed", map[string]any{
					"agent": agent.ID,
					"error": err.Error(),
				})
				return nil
			}
			elapsed := time.Since(start)
			latencies[i] = float64(elapsed) / float64(time.Millisecond)
			succeeded[i] = true
			c.collector.RecordLatency("coordinate", elapsed)
			c.publish(bus.EventCoordination, map[string]any{
				"agent_id":   agent.ID,
				"latency_ms": latencies[i],
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	var total float64
	for i := range agents {
		if succeeded[i] {
			result.SuccessCount++
			result.Latencies = append(result.Latencies, latencies[i])
			total += latencies[i]
		}
	}
	result.SuccessRate = float64(result.SuccessCount) / float64(len(agents))
	if result.SuccessCount > 0 {
		result.AvgLatencyMS = total / float64(result.SuccessCount)
	}
	result.Success = result.SuccessRate > successThreshold

	logger.InfoCF("swarm", "Coordination fan-out finished", map[string]any{
		"topology":     string(topology),
		"agents":       len(agents),
		"success_rate": result.SuccessRate,
	})
	return result, nil
}

// coordinateAgent is one coordination step: wait for a rate slot, then
// sync the agent's status and capabilities into the registry within the
// per-agent budget.
func (c *Coordinator) coordinateAgent(ctx context.Context, agent Agent) error {
	stepCtx, cancel := context.WithTimeout(ctx, c.budget)
	defer cancel()

	if err := c.limiter.Wait(stepCtx); err != nil {
		return err
	}
	if err := stepCtx.Err(); err != nil {
		return err
	}

	c.registry.Sync(agent)

	if c.store != nil {
		if res := c.store.Store(stepCtx, agent.ID, agent, kv.NamespaceAgents); res.Status != "ok" {
			logger.WarnCF("swarm", "Agent sync persistence failed", map[string]any{
				"agent": agent.ID,
				"error": res.Error,
			})
		}
	}
	return nil
}

// Metrics derives the aggregate swarm view from registry and dispatcher
// state. Completed counts and response times are weighted over agent
// performance counters.
func (c *Coordinator) Metrics() SwarmMetrics {
	agents := c.registry.List(Filter{})

	m := SwarmMetrics{
		AgentCount: len(agents),
		UptimeMS:   time.Since(c.started).Milliseconds(),
	}

	var weightedMS, errorSum float64
	for _, a := range agents {
		if a.Status != StatusOffline {
			m.ActiveAgents++
		}
		m.CompletedTasks += a.Performance.TasksCompleted
		weightedMS += a.Performance.AvgResponseMS * float64(a.Performance.TasksCompleted)
		errorSum += a.Performance.ErrorRate
	}
	m.TotalTasks = m.CompletedTasks + len(c.dispatcher.ActiveTasks())
	if m.CompletedTasks > 0 {
		m.AvgResponseMS = weightedMS / float64(m.CompletedTasks)
	}
	if len(agents) > 0 {
		m.ErrorRate = errorSum / float64(len(agents))
	}
	if uptimeMin := float64(m.UptimeMS) / 60000; uptimeMin > 0 {
		m.Throughput = float64(m.CompletedTasks) / uptimeMin
	}
	return m
}

func (c *Coordinator) refreshGauges() {
	agents := c.registry.List(Filter{})
	active := 0
	for _, a := range agents {
		if a.Status != StatusOffline {
			active++
		}
	}
	c.collector.SetAgentCount(int32(len(agents)))
	c.collector.SetActiveAgents(int32(active))
}

func (c *Coordinator) publish(t bus.EventType, fields map[string]any) {
	if c.events == nil {
		return
	}
	c.events.Publish(bus.Event{Type: t, Source: "swarm", Fields: fields})
}
