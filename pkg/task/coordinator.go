// SwarmFlow - Multi-agent orchestration kernel
// Task coordination: direct dispatch versus the SPARC pipeline
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/swarmflow/swarmflow/pkg/bus"
	"github.com/swarmflow/swarmflow/pkg/core"
	"github.com/swarmflow/swarmflow/pkg/logger"
	"github.com/swarmflow/swarmflow/pkg/sparc"
	"github.com/swarmflow/swarmflow/pkg/swarm"
)

const defaultTaskTimeout = 10 * time.Minute

// Options configures a Coordinator. Swarm enables real agent dispatch
// on the direct path; SPARC enables the structured pipeline. Runner
// defaults to the in-process LocalRunner.
type Options struct {
	Swarm  *swarm.Coordinator
	SPARC  *sparc.Engine
	Runner Runner
	Bus    *bus.EventBus
}

// Coordinator routes logical tasks between direct agent execution and
// the SPARC pipeline, and keeps the full outcome history.
type Coordinator struct {
	swarm  *swarm.Coordinator
	sparc  *sparc.Engine
	runner Runner
	events *bus.EventBus

	mu      sync.Mutex
	history []Record
}

func NewCoordinator(opts Options) *Coordinator {
	if opts.Runner == nil {
		opts.Runner = &LocalRunner{}
	}
	return &Coordinator{
		swarm:  opts.Swarm,
		sparc:  opts.SPARC,
		runner: opts.Runner,
		events: opts.Bus,
	}
}

// Execute routes one task under its deadline and records the outcome.
// Failures are reported inside the result rather than returned, so the
// history and metrics always capture the attempt.
func (c *Coordinator) Execute(ctx context.Context, req Request) Result {
	if strings.TrimSpace(req.ID) == "" {
		req.ID = "task-" + uuid.NewString()[:8]
	}
	req.Priority = swarm.NormalizePriority(req.Priority)

	timeout := time.Duration(req.TimeoutMinutes) * time.Minute
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var res Result
	if shouldUseSPARC(req) {
		res = c.runSPARC(ctx, req)
	} else {
		res = c.runDirect(ctx, req)
	}
	res.TaskID = req.ID
	res.ExecutionTimeMS = time.Since(start).Milliseconds()

	c.mu.Lock()
	c.history = append(c.history, Record{
		Request:    req,
		Result:     res,
		StartedAt:  start.UTC(),
		FinishedAt: time.Now().UTC(),
	})
	c.mu.Unlock()

	c.publish(bus.EventTaskRouted, map[string]any{
		"task_id":     req.ID,
		"methodology": res.MethodologyApplied,
		"agent":       res.AgentUsed,
		"success":     res.Success,
	})
	logger.InfoCF("task", "Task executed", map[string]any{
		"task":        req.ID,
		"methodology": res.MethodologyApplied,
		"agent":       res.AgentUsed,
		"success":     res.Success,
		"duration_ms": res.ExecutionTimeMS,
	})
	return res
}

// runDirect executes the task as a single agent. When a swarm
// coordinator is wired and has a fitting idle agent, the task dispatches
// through it; otherwise the canonical agent type runs standalone.
func (c *Coordinator) runDirect(ctx context.Context, req Request) Result {
	st := selectStrategy(req)
	execCtx := buildExecutionContext(req, st)

	agentUsed := st.AgentType
	var assigned bool
	if c.swarm != nil {
		if id, ok := c.swarm.AssignTask(ctx, swarm.Task{
			ID:           req.ID,
			Type:         req.Type,
			Description:  req.Description,
			Priority:     req.Priority,
			Requirements: req.Requirements,
			Dependencies: req.Dependencies,
		}); ok {
			agentUsed = id
			assigned = true
		}
	}

	output, tools, err := c.runner.Run(ctx, st.AgentType, execCtx, req)
	if assigned {
		// Release the agent whatever the run produced, so every busy
		// transition pairs with an idle one.
		c.swarm.CompleteTask(context.WithoutCancel(ctx), req.ID, output)
	}
	if err != nil {
		return failure(req, agentUsed, MethodologyDirect, taskError(err))
	}

	return Result{
		Success:            true,
		Output:             output,
		AgentUsed:          agentUsed,
		ToolsUsed:          tools,
		MethodologyApplied: MethodologyDirect,
	}
}

// runSPARC creates a pipeline project for the task and runs all phases,
// recording deliverables grouped by phase.
func (c *Coordinator) runSPARC(ctx context.Context, req Request) Result {
	if c.sparc == nil {
		return failure(req, "sparc-pipeline", MethodologySPARC,
			fmt.Errorf("no sparc engine configured: %w", core.ErrPreconditionFailed))
	}

	proj, err := c.sparc.CreateProject(sparc.NewProject{
		Name:         projectName(req),
		Complexity:   complexityFor(req.Priority),
		Requirements: requirementLines(req),
	})
	if err != nil {
		return failure(req, "sparc-pipeline", MethodologySPARC, err)
	}

	results, err := c.sparc.RunPipeline(ctx, proj.ID)
	artifacts := make(map[string][]string, len(results))
	agents := make([]string, 0, len(results))
	for _, r := range results {
		artifacts[string(r.Phase)] = append([]string(nil), r.Deliverables...)
		agents = append(agents, sparc.PhaseAgent(r.Phase))
	}
	if err != nil {
		res := failure(req, "sparc-pipeline", MethodologySPARC, taskError(err))
		res.Output = fmt.Sprintf("sparc project %s stopped after %d of %d phases", proj.ID, len(results), len(sparc.PhaseOrder))
		res.ToolsUsed = agents
		res.Artifacts = artifacts
		return res
	}

	return Result{
		Success:            true,
		Output:             fmt.Sprintf("sparc project %s completed all %d phases", proj.ID, len(sparc.PhaseOrder)),
		AgentUsed:          "sparc-pipeline",
		ToolsUsed:          agents,
		MethodologyApplied: MethodologySPARC,
		Artifacts:          artifacts,
	}
}

// Metrics aggregates the full history: success rate over all tasks,
// average execution time over successful ones, and usage counts per
// agent and per tool.
func (c *Coordinator) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := Metrics{
		AgentUsage: make(map[string]int),
		ToolUsage:  make(map[string]int),
	}
	var successMS int64
	for _, rec := range c.history {
		m.TotalTasks++
		if rec.Result.Success {
			m.Succeeded++
			successMS += rec.Result.ExecutionTimeMS
		} else {
			m.Failed++
		}
		if rec.Result.AgentUsed != "" {
			m.AgentUsage[rec.Result.AgentUsed]++
		}
		for _, tool := range rec.Result.ToolsUsed {
			m.ToolUsage[tool]++
		}
	}
	if m.TotalTasks > 0 {
		m.SuccessRate = float64(m.Succeeded) / float64(m.TotalTasks)
	}
	if m.Succeeded > 0 {
		m.AvgExecutionMS = float64(successMS) / float64(m.Succeeded)
	}
	return m
}

// History returns all records in execution order.
func (c *Coordinator) History() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record, len(c.history))
	copy(out, c.history)
	return out
}

func failure(req Request, agent, methodology string, err error) Result {
	return Result{
		TaskID:             req.ID,
		Success:            false,
		AgentUsed:          agent,
		MethodologyApplied: methodology,
		Error:              err.Error(),
	}
}

// taskError maps context expiry onto the coordination error kinds so
// callers can test with errors.Is.
func taskError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("task deadline exceeded: %w", core.ErrTimeout)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("task cancelled: %w", core.ErrCancelled)
	default:
		return err
	}
}

func projectName(req Request) string {
	name := strings.TrimSpace(req.Type)
	if name == "" {
		name = "task"
	}
	return name + " " + req.ID
}

// complexityFor keeps pipeline depth proportional to urgency: critical
// and high priority work gets the high-complexity treatment.
func complexityFor(priority string) string {
	if highPriority(priority) {
		return "high"
	}
	return "moderate"
}

func requirementLines(req Request) []string {
	if line := firstLine(req.Description); line != "" {
		return []string{line}
	}
	return nil
}

func (c *Coordinator) publish(t bus.EventType, fields map[string]any) {
	if c.events == nil {
		return
	}
	c.events.Publish(bus.Event{Type: t, Source: "task", Fields: fields})
}
