// SwarmFlow - Multi-agent orchestration kernel
// Project coordination: documents, workflows, and pipeline wiring
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package project

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/swarmflow/swarmflow/pkg/bus"
	"github.com/swarmflow/swarmflow/pkg/core"
	"github.com/swarmflow/swarmflow/pkg/kv"
	"github.com/swarmflow/swarmflow/pkg/logger"
	"github.com/swarmflow/swarmflow/pkg/sparc"
	"github.com/swarmflow/swarmflow/pkg/swarm"
	"github.com/swarmflow/swarmflow/pkg/workflow"
)

// phaseHours is the base effort per phase before the complexity
// multiplier.
var phaseHours = map[sparc.Phase]float64{
	sparc.PhaseSpecification: 16,
	sparc.PhasePseudocode:    8,
	sparc.PhaseArchitecture:  24,
	sparc.PhaseRefinement:    16,
	sparc.PhaseCompletion:    40,
}

// PhaseTask is the planned unit of work for one pipeline phase. Tasks
// chain: each depends on the prior phase's task.
type PhaseTask struct {
	ID             string      `json:"id"`
	Phase          sparc.Phase `json:"phase"`
	AgentType      string      `json:"agent_type"`
	EstimatedHours float64     `json:"estimated_hours"`
	DependsOn      []string    `json:"depends_on,omitempty"`
	Status         string      `json:"status"`
	DocumentID     string      `json:"document_id,omitempty"`
}

// State is the coordinator-side record for one initialized project.
type State struct {
	ProjectID   string                     `json:"project_id"`
	Name        string                     `json:"name"`
	VisionDocID string                     `json:"vision_doc_id"`
	WorkflowIDs []string                   `json:"workflow_ids,omitempty"`
	SwarmSize   int                        `json:"swarm_size"`
	PhaseTasks  map[sparc.Phase]*PhaseTask `json:"phase_tasks"`
	CreatedAt   time.Time                  `json:"created_at"`
}

// Options configures a Coordinator. Workspace and SPARC are required;
// Workflows enables the document pipeline, Swarm the crew registration.
type Options struct {
	Workspace *Workspace
	SPARC     *sparc.Engine
	Workflows *workflow.Engine
	Swarm     *swarm.Coordinator
	Store     kv.Store
	Bus       *bus.EventBus
}

// Coordinator wires the pipeline into the document tree: it founds
// projects with a vision record, runs the document derivation
// workflows, registers the phase crew, and turns completed architecture
// phases into decision records.
type Coordinator struct {
	ws        *Workspace
	sparc     *sparc.Engine
	workflows *workflow.Engine
	swarm     *swarm.Coordinator
	store     kv.Store
	events    *bus.EventBus

	mu       sync.Mutex
	projects map[string]*State
}

func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Workspace == nil {
		return nil, fmt.Errorf("project coordinator needs a workspace: %w", core.ErrValidationFailed)
	}
	if opts.SPARC == nil {
		return nil, fmt.Errorf("project coordinator needs a sparc engine: %w", core.ErrValidationFailed)
	}

	c := &Coordinator{
		ws:        opts.Workspace,
		sparc:     opts.SPARC,
		workflows: opts.Workflows,
		swarm:     opts.Swarm,
		store:     opts.Store,
		events:    opts.Bus,
		projects:  make(map[string]*State),
	}
	if c.workflows != nil {
		if err := c.registerDocumentWorkflows(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Initialize founds a project: a pipeline project, a vision record, the
// document derivation workflows in order, the phase crew, and one
// planned task per phase.
func (c *Coordinator) Initialize(ctx context.Context, np sparc.NewProject) (State, error) {
	if err := c.ws.Init(); err != nil {
		return State{}, err
	}

	proj, err := c.sparc.CreateProject(np)
	if err != nil {
		return State{}, err
	}

	vision := visionDocument(&proj)
	if err := c.ws.Save(ctx, vision); err != nil {
		return State{}, err
	}

	st := &State{
		ProjectID:   proj.ID,
		Name:        proj.Name,
		VisionDocID: vision.ID,
		PhaseTasks:  planPhaseTasks(proj),
		CreatedAt:   time.Now().UTC(),
	}

	if c.workflows != nil {
		initial := map[string]any{"project_id": proj.ID, "vision_doc": vision.ID}
		for _, stage := range documentStages {
			id, err := c.workflows.StartByName(stage.Workflow, initial)
			if err != nil {
				return State{}, fmt.Errorf("start %s: %w", stage.Workflow, err)
			}
			st.WorkflowIDs = append(st.WorkflowIDs, id)
			if err := c.waitWorkflow(ctx, id); err != nil {
				return State{}, err
			}
		}
	}

	if c.swarm != nil {
		agents := sparcSwarmAgents(proj.ID)
		if _, err := c.swarm.CoordinateSwarm(ctx, agents, ""); err != nil {
			return State{}, fmt.Errorf("initialize swarm: %w", err)
		}
		st.SwarmSize = len(agents)
	}

	for _, phase := range sparc.PhaseOrder {
		t := st.PhaseTasks[phase]
		doc := phaseTaskDocument(&proj, t)
		if err := c.ws.Save(ctx, doc); err != nil {
			return State{}, err
		}
		t.DocumentID = doc.ID
	}

	c.mu.Lock()
	c.projects[proj.ID] = st
	c.mu.Unlock()

	c.persistState(ctx, proj.ID)
	c.publish(bus.EventProjectInitialized, map[string]any{
		"project_id": proj.ID,
		"vision_doc": vision.ID,
		"workflows":  len(st.WorkflowIDs),
	})
	logger.InfoCF("project", "Project initialized", map[string]any{
		"project":   proj.ID,
		"name":      proj.Name,
		"workflows": len(st.WorkflowIDs),
		"crew":      st.SwarmSize,
	})
	return c.snapshotState(proj.ID)
}

// ExecutePhase runs one pipeline phase and applies the project-level
// follow-ups: the phase task record flips status, and completing the
// architecture phase derives decision records.
func (c *Coordinator) ExecutePhase(ctx context.Context, projectID string, phase sparc.Phase) (*sparc.PhaseResult, error) {
	res, err := c.sparc.ExecutePhase(ctx, projectID, phase)
	c.afterPhase(ctx, projectID, phase, err == nil)
	return res, err
}

// RunPipeline executes every remaining phase in order with the same
// follow-ups as ExecutePhase, stopping at the first failure.
func (c *Coordinator) RunPipeline(ctx context.Context, projectID string) ([]*sparc.PhaseResult, error) {
	proj, err := c.sparc.Project(projectID)
	if err != nil {
		return nil, err
	}
	done := make(map[sparc.Phase]bool, len(proj.CompletedPhases))
	for _, p := range proj.CompletedPhases {
		done[p] = true
	}

	var results []*sparc.PhaseResult
	for _, phase := range sparc.PhaseOrder {
		if done[phase] {
			continue
		}
		res, err := c.ExecutePhase(ctx, projectID, phase)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// DeriveADRs writes one decision record per architectural pattern plus
// a technology selection record. Numbering continues from the records
// the project already has.
func (c *Coordinator) DeriveADRs(ctx context.Context, projectID string) ([]Document, error) {
	proj, err := c.sparc.Project(projectID)
	if err != nil {
		return nil, err
	}
	if proj.Architecture == nil {
		return nil, fmt.Errorf("project %s has no architecture product: %w", projectID, core.ErrPreconditionFailed)
	}

	existing, err := c.ws.ListForProject(DocADR, projectID)
	if err != nil {
		return nil, err
	}
	n := len(existing)

	var docs []Document
	for _, pattern := range proj.Architecture.Patterns {
		n++
		doc := adrDocument(projectID, n, "Adopt "+pattern+" pattern",
			fmt.Sprintf("The architecture phase selected %s for %s.", pattern, proj.Name),
			fmt.Sprintf("Structure the system following the %s pattern.", pattern),
			"Component boundaries and interfaces follow the pattern's conventions; revisit if the driving constraint changes.")
		if err := c.ws.Save(ctx, doc); err != nil {
			return docs, err
		}
		docs = append(docs, *doc)
	}

	if len(proj.Architecture.TechnologyStack) > 0 {
		n++
		doc := adrDocument(projectID, n, "Technology stack selection",
			"The stack must cover every component the architecture names.",
			"Build on: "+strings.Join(proj.Architecture.TechnologyStack, ", ")+".",
			"Dependencies are pinned by this record; changes require a superseding record.")
		if err := c.ws.Save(ctx, doc); err != nil {
			return docs, err
		}
		docs = append(docs, *doc)
	}

	logger.InfoCF("project", "Decision records derived", map[string]any{
		"project": projectID,
		"records": len(docs),
	})
	return docs, nil
}

// ProjectState returns the coordinator's record for one project.
func (c *Coordinator) ProjectState(projectID string) (State, error) {
	return c.snapshotState(projectID)
}

// States lists all coordinator records in no particular order.
func (c *Coordinator) States() []State {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]State, 0, len(c.projects))
	for id := range c.projects {
		st, _ := c.snapshotLocked(id)
		out = append(out, st)
	}
	return out
}

func (c *Coordinator) afterPhase(ctx context.Context, projectID string, phase sparc.Phase, succeeded bool) {
	c.mu.Lock()
	st, ok := c.projects[projectID]
	if ok {
		if t, found := st.PhaseTasks[phase]; found {
			if succeeded {
				t.Status = "completed"
			} else {
				t.Status = "failed"
			}
		}
	}
	c.mu.Unlock()
	if !ok {
		// Projects created directly on the engine carry no plan.
		return
	}

	if succeeded && phase == sparc.PhaseArchitecture {
		if _, err := c.DeriveADRs(ctx, projectID); err != nil {
			logger.WarnCF("project", "Decision record derivation failed", map[string]any{
				"project": projectID,
				"error":   err.Error(),
			})
		}
	}
	c.persistState(ctx, projectID)
}

// waitWorkflow polls until the workflow reaches a terminal state. The
// document stages are pure computation, so this stays in the
// millisecond range.
func (c *Coordinator) waitWorkflow(ctx context.Context, id string) error {
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for {
		if snap, ok := c.workflows.Get(id); ok && snap.Status.Terminal() {
			if snap.Status != workflow.StatusCompleted {
				return fmt.Errorf("workflow %s (%s) ended %s: %s", id, snap.Name, snap.Status, snap.Error)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for workflow %s: %w", id, core.ErrCancelled)
		case <-ticker.C:
		}
	}
}

func (c *Coordinator) snapshotState(projectID string) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked(projectID)
}

func (c *Coordinator) snapshotLocked(projectID string) (State, error) {
	st, ok := c.projects[projectID]
	if !ok {
		return State{}, fmt.Errorf("project %s: %w", projectID, core.ErrNotFound)
	}

	out := *st
	out.WorkflowIDs = append([]string(nil), st.WorkflowIDs...)
	out.PhaseTasks = make(map[sparc.Phase]*PhaseTask, len(st.PhaseTasks))
	for phase, t := range st.PhaseTasks {
		copied := *t
		copied.DependsOn = append([]string(nil), t.DependsOn...)
		out.PhaseTasks[phase] = &copied
	}
	return out, nil
}

func (c *Coordinator) persistState(ctx context.Context, projectID string) {
	if c.store == nil {
		return
	}
	st, err := c.snapshotState(projectID)
	if err != nil {
		return
	}
	if res := c.store.Store(ctx, projectID+":coordination", st, kv.NamespaceProjects); res.Status != "ok" {
		logger.WarnCF("project", "State persistence failed", map[string]any{
			"project": projectID,
			"error":   res.Error,
		})
	}
}

func (c *Coordinator) publish(t bus.EventType, fields map[string]any) {
	if c.events == nil {
		return
	}
	c.events.Publish(bus.Event{Type: t, Source: "project", Fields: fields})
}

// planPhaseTasks builds the five chained phase tasks with effort scaled
// by project complexity.
func planPhaseTasks(proj sparc.Project) map[sparc.Phase]*PhaseTask {
	mult := complexityMultiplier(proj.Complexity)
	tasks := make(map[sparc.Phase]*PhaseTask, len(sparc.PhaseOrder))
	var prev string
	for _, phase := range sparc.PhaseOrder {
		t := &PhaseTask{
			ID:             fmt.Sprintf("%s-%s", proj.ID, phase),
			Phase:          phase,
			AgentType:      sparc.PhaseAgent(phase),
			EstimatedHours: phaseHours[phase] * mult,
			Status:         "pending",
		}
		if prev != "" {
			t.DependsOn = []string{prev}
		}
		tasks[phase] = t
		prev = t.ID
	}
	return tasks
}

func complexityMultiplier(complexity string) float64 {
	switch complexity {
	case "simple":
		return 0.5
	case "high":
		return 1.5
	case "complex":
		return 2
	case "enterprise":
		return 3
	default:
		return 1
	}
}

// sparcSwarmAgents is the five-agent crew registered for a project's
// pipeline, one per phase specialization.
func sparcSwarmAgents(projectID string) []swarm.Agent {
	specs := []struct {
		suffix string
		typ    swarm.AgentType
		caps   []string
	}{
		{"system-analyst", swarm.AgentAnalyst, []string{"specification", "requirements-analysis"}},
		{"algorithm-designer", swarm.AgentCoder, []string{"pseudocode", "algorithm-design"}},
		{"system-architect", swarm.AgentArchitect, []string{"architecture", "system-design"}},
		{"performance-optimizer", swarm.AgentOptimizer, []string{"refinement", "performance-tuning"}},
		{"full-stack-developer", swarm.AgentCoder, []string{"completion", "implementation"}},
	}
	agents := make([]swarm.Agent, 0, len(specs))
	for _, s := range specs {
		agents = append(agents, swarm.Agent{
			ID:           projectID + "-" + s.suffix,
			Type:         s.typ,
			Capabilities: s.caps,
		})
	}
	return agents
}

// visionDocument renders the founding record for a project.
func visionDocument(p *sparc.Project) *Document {
	var b strings.Builder
	fmt.Fprintf(&b, "## Mission\n\nDeliver %s for the %s domain at %s complexity.\n\n", p.Name, p.Domain, p.Complexity)
	if len(p.Requirements) > 0 {
		b.WriteString("## Requirements\n\n")
		for _, r := range p.Requirements {
			fmt.Fprintf(&b, "- %s\n", r)
		}
		b.WriteString("\n")
	}
	if len(p.Constraints) > 0 {
		b.WriteString("## Constraints\n\n")
		for _, con := range p.Constraints {
			fmt.Fprintf(&b, "- %s\n", con)
		}
	}
	return &Document{
		Type:     DocVision,
		Title:    "Vision: " + p.Name,
		Metadata: map[string]string{"project": p.ID, "domain": p.Domain},
		Body:     strings.TrimSpace(b.String()),
	}
}

// phaseTaskDocument records a planned phase task in the document tree.
func phaseTaskDocument(p *sparc.Project, t *PhaseTask) *Document {
	var b strings.Builder
	fmt.Fprintf(&b, "## Assignment\n\nRun the %s phase with a %s agent.\n\n", t.Phase, t.AgentType)
	fmt.Fprintf(&b, "## Estimate\n\n%.0f hours\n", t.EstimatedHours)
	if len(t.DependsOn) > 0 {
		fmt.Fprintf(&b, "\n## Depends On\n\n- %s\n", strings.Join(t.DependsOn, "\n- "))
	}
	return &Document{
		Type:  DocTask,
		Title: fmt.Sprintf("Task: %s phase of %s", t.Phase, p.Name),
		Metadata: map[string]string{
			"project": p.ID,
			"kind":    "phase-task",
			"phase":   string(t.Phase),
			"agent":   t.AgentType,
		},
		Body: strings.TrimSpace(b.String()),
	}
}

func adrDocument(pid string, n int, title, background, decision, consequences string) *Document {
	return &Document{
		Type:  DocADR,
		Title: fmt.Sprintf("ADR-%03d: %s", n, title),
		Metadata: map[string]string{
			"project": pid,
			"status":  "accepted",
		},
		Body: fmt.Sprintf("## Status\n\nAccepted\n\n## Context\n\n%s\n\n## Decision\n\n%s\n\n## Consequences\n\n%s",
			background, decision, consequences),
	}
}
