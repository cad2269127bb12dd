// SwarmFlow - Multi-agent orchestration kernel
// SPARC phase engine: specification through completion
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package sparc

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/swarmflow/swarmflow/pkg/bus"
	"github.com/swarmflow/swarmflow/pkg/core"
	"github.com/swarmflow/swarmflow/pkg/kv"
	"github.com/swarmflow/swarmflow/pkg/logger"
	"github.com/swarmflow/swarmflow/pkg/template"
)

const persistTimeout = 5 * time.Second

// phaseAgents maps each phase to the agent type best suited to run it.
var phaseAgents = map[Phase]string{
	PhaseSpecification: "system-analyst",
	PhasePseudocode:    "algorithm-designer",
	PhaseArchitecture:  "system-architect",
	PhaseRefinement:    "performance-optimizer",
	PhaseCompletion:    "full-stack-developer",
}

// PhaseAgent returns the recommended agent type for a phase.
func PhaseAgent(p Phase) string { return phaseAgents[p] }

// Options configures an Engine. Store, Bus, and Templates are optional;
// without a registry the specification phase builds from project
// requirements alone.
type Options struct {
	Store           kv.Store
	Bus             *bus.EventBus
	Templates       *template.Registry
	PersistProjects bool
}

// NewProject seeds CreateProject.
type NewProject struct {
	Name         string   `json:"name"`
	Domain       string   `json:"domain"`
	Complexity   string   `json:"complexity"`
	Requirements []string `json:"requirements,omitempty"`
	Constraints  []string `json:"constraints,omitempty"`
}

// Engine drives projects through the five phases in canonical order.
// Each phase consumes the previous phase's product and refuses to run
// without it. One phase executes per project at a time.
type Engine struct {
	projects  map[string]*Project
	order     []string
	running   map[string]bool
	templates *template.Registry
	store     kv.Store
	events    *bus.EventBus
	persist   bool
	mu        sync.Mutex
}

func NewEngine(opts Options) *Engine {
	return &Engine{
		projects:  make(map[string]*Project),
		running:   make(map[string]bool),
		templates: opts.Templates,
		store:     opts.Store,
		events:    opts.Bus,
		persist:   opts.PersistProjects,
	}
}

// CreateProject registers a project at the start of the pipeline.
// Domain defaults to general and complexity to moderate; values outside
// the supported sets are rejected.
func (e *Engine) CreateProject(np NewProject) (Project, error) {
	if strings.TrimSpace(np.Name) == "" {
		return Project{}, fmt.Errorf("project name is required: %w", core.ErrValidationFailed)
	}
	if np.Domain == "" {
		np.Domain = "general"
	}
	if !ValidDomain(np.Domain) {
		return Project{}, fmt.Errorf("unknown domain %q (supported: %s): %w",
			np.Domain, strings.Join(Domains, ", "), core.ErrValidationFailed)
	}
	if np.Complexity == "" {
		np.Complexity = "moderate"
	}
	if !ValidComplexity(np.Complexity) {
		return Project{}, fmt.Errorf("unknown complexity %q (supported: %s): %w",
			np.Complexity, strings.Join(Complexities, ", "), core.ErrValidationFailed)
	}

	now := time.Now().UTC()
	p := &Project{
		ID:           fmt.Sprintf("proj-%s", uuid.New().String()[:8]),
		Name:         np.Name,
		Domain:       np.Domain,
		Complexity:   np.Complexity,
		Requirements: append([]string(nil), np.Requirements...),
		Constraints:  append([]string(nil), np.Constraints...),
		CurrentPhase: PhaseSpecification,
		PhaseStatus:  make(map[Phase]*PhaseStatus, len(PhaseOrder)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, phase := range PhaseOrder {
		p.PhaseStatus[phase] = &PhaseStatus{Status: PhaseNotStarted}
	}

	e.mu.Lock()
	e.projects[p.ID] = p
	e.order = append(e.order, p.ID)
	snap := cloneProject(p)
	e.mu.Unlock()

	e.publish(bus.EventProjectCreated, map[string]any{
		"project_id": p.ID,
		"name":       p.Name,
		"domain":     p.Domain,
	})
	e.persistProject(snap)
	logger.InfoCF("sparc", "Project created", map[string]any{
		"project":    p.ID,
		"name":       p.Name,
		"domain":     p.Domain,
		"complexity": p.Complexity,
	})
	return snap, nil
}

// RestoreProjects loads persisted projects back into the engine after
// a restart. A phase that was mid-run died with the previous process
// and comes back not-started so it can be rerun. Returns how many
// projects were restored.
func (e *Engine) RestoreProjects(ctx context.Context) (int, error) {
	if e.store == nil {
		return 0, nil
	}
	entries, err := e.store.Search(ctx, "*", kv.NamespaceProjects)
	if err != nil {
		return 0, fmt.Errorf("restore projects: %w", err)
	}

	restored := 0
	e.mu.Lock()
	for key, value := range entries {
		raw, err := json.Marshal(value)
		if err != nil {
			continue
		}
		var p Project
		if err := json.Unmarshal(raw, &p); err != nil || p.ID == "" {
			logger.WarnCF("sparc", "Skipping corrupt project record", map[string]any{"key": key})
			continue
		}
		if _, exists := e.projects[p.ID]; exists {
			continue
		}
		if p.PhaseStatus == nil {
			p.PhaseStatus = make(map[Phase]*PhaseStatus, len(PhaseOrder))
		}
		for _, phase := range PhaseOrder {
			st := p.PhaseStatus[phase]
			if st == nil {
				p.PhaseStatus[phase] = &PhaseStatus{Status: PhaseNotStarted}
			} else if st.Status == PhaseInProgress {
				st.Status = PhaseNotStarted
			}
		}
		proj := p
		e.projects[p.ID] = &proj
		e.order = append(e.order, p.ID)
		restored++
	}
	if restored > 0 {
		sort.SliceStable(e.order, func(i, j int) bool {
			return e.projects[e.order[i]].CreatedAt.Before(e.projects[e.order[j]].CreatedAt)
		})
	}
	e.mu.Unlock()

	if restored > 0 {
		logger.InfoCF("sparc", "Projects restored", map[string]any{"count": restored})
	}
	return restored, nil
}

// Project returns a snapshot of one project.
func (e *Engine) Project(id string) (Project, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.projects[id]
	if !ok {
		return Project{}, fmt.Errorf("project %s: %w", id, core.ErrNotFound)
	}
	return cloneProject(p), nil
}

// ListProjects returns snapshots in creation order, optionally filtered
// by domain and by status (active, failed or completed).
func (e *Engine) ListProjects(domain, status string) []Project {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Project, 0, len(e.order))
	for _, id := range e.order {
		p := e.projects[id]
		if domain != "" && p.Domain != domain {
			continue
		}
		if status != "" && p.Status() != status {
			continue
		}
		out = append(out, cloneProject(p))
	}
	return out
}

// ApplyTemplate pins a registry template to a project. The next
// specification run merges the pinned template instead of searching for
// the best match. Accepts either a template id or a domain name.
func (e *Engine) ApplyTemplate(projectID, templateType string) (*template.Application, error) {
	if e.templates == nil {
		return nil, fmt.Errorf("no template registry configured: %w", core.ErrPreconditionFailed)
	}

	e.mu.Lock()
	p, ok := e.projects[projectID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("project %s: %w", projectID, core.ErrNotFound)
	}
	spec := templateSpec(p)
	e.mu.Unlock()

	tpl, err := e.resolveTemplate(templateType)
	if err != nil {
		return nil, err
	}
	app, err := e.templates.Apply(tpl, spec)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if p, ok = e.projects[projectID]; !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("project %s: %w", projectID, core.ErrNotFound)
	}
	p.TemplateID = tpl
	p.UpdatedAt = time.Now().UTC()
	snap := cloneProject(p)
	e.mu.Unlock()

	e.persistProject(snap)
	logger.InfoCF("sparc", "Template pinned", map[string]any{
		"project":  projectID,
		"template": tpl,
	})
	return app, nil
}

// resolveTemplate maps a template id or domain name to a registry id.
func (e *Engine) resolveTemplate(templateType string) (string, error) {
	if _, ok := e.templates.Get(templateType); ok {
		return templateType, nil
	}
	for _, tpl := range e.templates.List("") {
		if tpl.Domain == templateType {
			return tpl.ID, nil
		}
	}
	return "", fmt.Errorf("template %q: %w", templateType, core.ErrNotFound)
}

// ExecutePhase runs one phase of a project. Prerequisite products must
// be in place or the call fails with PreconditionFailed and only the
// phase status records the attempt.
func (e *Engine) ExecutePhase(ctx context.Context, projectID string, phase Phase) (*PhaseResult, error) {
	return e.executePhase(ctx, projectID, phase, Feedback{})
}

// RefineImplementation re-runs the refinement phase with reviewer
// feedback, producing a new refinement iteration and an updated
// architecture.
func (e *Engine) RefineImplementation(ctx context.Context, projectID string, fb Feedback) (*PhaseResult, error) {
	return e.executePhase(ctx, projectID, PhaseRefinement, fb)
}

func (e *Engine) executePhase(ctx context.Context, projectID string, phase Phase, fb Feedback) (*PhaseResult, error) {
	if !ValidPhase(phase) {
		return nil, fmt.Errorf("unknown phase %q: %w", phase, core.ErrValidationFailed)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("phase %s: %w", phase, core.ErrCancelled)
	}

	e.mu.Lock()
	p, ok := e.projects[projectID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("project %s: %w", projectID, core.ErrNotFound)
	}
	if e.running[projectID] {
		e.mu.Unlock()
		return nil, fmt.Errorf("project %s already has a phase in flight: %w", projectID, core.ErrBusy)
	}

	if err := phasePrerequisite(p, phase); err != nil {
		st := p.PhaseStatus[phase]
		st.Status = PhaseFailed
		st.ValidationResults = []ValidationResult{{
			Criterion:      "prerequisites",
			Passed:         false,
			Details:        err.Error(),
			Recommendation: fmt.Sprintf("Run the %s pipeline in order; %s comes after %s", p.ID, phase, previousPhase(phase)),
		}}
		p.UpdatedAt = time.Now().UTC()
		snap := cloneProject(p)
		e.mu.Unlock()

		e.publish(bus.EventPhaseFailed, map[string]any{
			"project_id": projectID,
			"phase":      string(phase),
			"error":      err.Error(),
		})
		e.persistProject(snap)
		logger.WarnCF("sparc", "Phase prerequisites not met", map[string]any{
			"project": projectID,
			"phase":   string(phase),
			"error":   err.Error(),
		})
		return nil, err
	}

	started := time.Now().UTC()
	e.running[projectID] = true
	p.CurrentPhase = phase
	st := p.PhaseStatus[phase]
	st.Status = PhaseInProgress
	st.StartedAt = &started
	st.CompletedAt = nil
	st.DurationMin = 0
	st.Deliverables = nil
	st.ValidationResults = nil
	p.UpdatedAt = started
	e.mu.Unlock()

	e.publish(bus.EventPhaseStarted, map[string]any{
		"project_id": projectID,
		"phase":      string(phase),
	})
	logger.InfoCF("sparc", "Phase started", map[string]any{
		"project": projectID,
		"phase":   string(phase),
		"agent":   PhaseAgent(phase),
	})

	// Phase products are write-once: the builders below read existing
	// products and return new values; nothing mutates in place, so
	// reads outside the lock are safe while the in-flight flag holds.
	out, err := e.buildPhase(p, phase, fb)
	if err != nil {
		e.failPhase(p, phase, err)
		return nil, fmt.Errorf("%s phase: %w", phase, err)
	}

	e.mu.Lock()
	out.apply(p)
	completed := time.Now().UTC()
	st.Status = PhaseCompleted
	st.CompletedAt = &completed
	st.DurationMin = completed.Sub(started).Minutes()
	st.Deliverables = out.deliverables
	st.ValidationResults = out.validations
	if !phaseDone(p, phase) {
		p.CompletedPhases = append(p.CompletedPhases, phase)
	}
	p.OverallProgress = float64(len(p.CompletedPhases)) / float64(len(PhaseOrder))
	p.UpdatedAt = completed
	duration := st.DurationMin
	snap := cloneProject(p)
	delete(e.running, projectID)
	e.mu.Unlock()

	e.publish(bus.EventPhaseCompleted, map[string]any{
		"project_id": projectID,
		"phase":      string(phase),
		"progress":   snap.OverallProgress,
	})
	e.persistProject(snap)
	logger.InfoCF("sparc", "Phase completed", map[string]any{
		"project":      projectID,
		"phase":        string(phase),
		"deliverables": len(out.deliverables),
		"progress":     snap.OverallProgress,
	})

	return &PhaseResult{
		Phase:        phase,
		Success:      true,
		Deliverables: out.deliverables,
		Metrics: PhaseMetrics{
			DurationMin:     duration,
			QualityScore:    orDefault(out.quality, 0.85),
			Completeness:    orDefault(out.completeness, 0.95),
			ComplexityScore: 0.7,
		},
		NextPhase:       NextPhase(phase),
		Recommendations: out.recommendations,
	}, nil
}

// failPhase records a mid-phase error and releases the in-flight flag.
func (e *Engine) failPhase(p *Project, phase Phase, cause error) {
	e.mu.Lock()
	st := p.PhaseStatus[phase]
	st.Status = PhaseFailed
	st.ValidationResults = []ValidationResult{{
		Criterion: string(phase) + " execution",
		Passed:    false,
		Details:   cause.Error(),
	}}
	p.UpdatedAt = time.Now().UTC()
	snap := cloneProject(p)
	delete(e.running, p.ID)
	e.mu.Unlock()

	e.publish(bus.EventPhaseFailed, map[string]any{
		"project_id": p.ID,
		"phase":      string(phase),
		"error":      cause.Error(),
	})
	e.persistProject(snap)
	logger.WarnCF("sparc", "Phase failed", map[string]any{
		"project": p.ID,
		"phase":   string(phase),
		"error":   cause.Error(),
	})
}

// RunPipeline executes every phase the project has not completed yet,
// in canonical order, stopping at the first failure. Results for the
// phases that did run are returned either way.
func (e *Engine) RunPipeline(ctx context.Context, projectID string) ([]PhaseResult, error) {
	var results []PhaseResult
	for _, phase := range PhaseOrder {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("pipeline for %s: %w", projectID, core.ErrCancelled)
		}

		p, err := e.Project(projectID)
		if err != nil {
			return results, err
		}
		if phaseDone(&p, phase) {
			continue
		}

		res, err := e.executePhase(ctx, projectID, phase, Feedback{})
		if err != nil {
			return results, err
		}
		results = append(results, *res)
	}
	return results, nil
}

// ValidateCompletion checks production readiness. The report carries
// every check so callers can show what is missing.
func (e *Engine) ValidateCompletion(projectID string) (*CompletionReport, error) {
	p, err := e.Project(projectID)
	if err != nil {
		return nil, err
	}

	checks := completionChecks(&p)
	ready := true
	for _, c := range checks {
		if !c.Passed {
			ready = false
		}
	}

	score := 0.0
	if p.Implementation != nil && len(p.Implementation.ReadinessChecks) > 0 {
		for _, rc := range p.Implementation.ReadinessChecks {
			score += rc.Score
		}
		score /= float64(len(p.Implementation.ReadinessChecks))
	}

	return &CompletionReport{ReadyForProduction: ready, Score: score, Checks: checks}, nil
}

// --- prerequisites ---

func phasePrerequisite(p *Project, phase Phase) error {
	switch phase {
	case PhaseSpecification:
		return nil
	case PhasePseudocode:
		if p.Specification == nil || len(p.Specification.FunctionalRequirements) == 0 {
			return fmt.Errorf("pseudocode requires a specification with functional requirements: %w", core.ErrPreconditionFailed)
		}
	case PhaseArchitecture:
		if p.Pseudocode == nil || len(p.Pseudocode.Algorithms) == 0 {
			return fmt.Errorf("architecture requires pseudocode with at least one algorithm: %w", core.ErrPreconditionFailed)
		}
	case PhaseRefinement:
		if p.Architecture == nil || len(p.Architecture.Components) == 0 {
			return fmt.Errorf("refinement requires an architecture with components: %w", core.ErrPreconditionFailed)
		}
	case PhaseCompletion:
		if len(p.Refinements) == 0 {
			return fmt.Errorf("completion requires a refined architecture: %w", core.ErrPreconditionFailed)
		}
	}
	return nil
}

func previousPhase(phase Phase) Phase {
	for i, ph := range PhaseOrder {
		if ph == phase && i > 0 {
			return PhaseOrder[i-1]
		}
	}
	return PhaseSpecification
}

func phaseDone(p *Project, phase Phase) bool {
	for _, done := range p.CompletedPhases {
		if done == phase {
			return true
		}
	}
	return false
}

// --- phase dispatch ---

// phaseOutput is what a phase builder hands back: deliverable ids,
// validator results, and an apply func that commits the new products
// under the engine lock.
type phaseOutput struct {
	deliverables    []string
	validations     []ValidationResult
	recommendations []string
	quality         float64
	completeness    float64
	apply           func(p *Project)
}

func (e *Engine) buildPhase(p *Project, phase Phase, fb Feedback) (phaseOutput, error) {
	switch phase {
	case PhaseSpecification:
		return e.specificationPhase(p)
	case PhasePseudocode:
		return pseudocodePhase(p)
	case PhaseArchitecture:
		return architecturePhase(p)
	case PhaseRefinement:
		return refinementPhase(p, fb)
	case PhaseCompletion:
		return completionPhase(p)
	default:
		return phaseOutput{}, fmt.Errorf("unknown phase %q: %w", phase, core.ErrValidationFailed)
	}
}

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

// --- snapshots and persistence ---

// cloneProject deep-copies project bookkeeping. Phase products are
// write-once and shared by pointer.
func cloneProject(p *Project) Project {
	out := *p
	out.Requirements = append([]string(nil), p.Requirements...)
	out.Constraints = append([]string(nil), p.Constraints...)
	out.CompletedPhases = append([]Phase(nil), p.CompletedPhases...)
	out.Refinements = append([]*Refinement(nil), p.Refinements...)
	out.PhaseStatus = make(map[Phase]*PhaseStatus, len(p.PhaseStatus))
	for phase, st := range p.PhaseStatus {
		c := *st
		c.Deliverables = append([]string(nil), st.Deliverables...)
		c.ValidationResults = append([]ValidationResult(nil), st.ValidationResults...)
		if st.StartedAt != nil {
			t := *st.StartedAt
			c.StartedAt = &t
		}
		if st.CompletedAt != nil {
			t := *st.CompletedAt
			c.CompletedAt = &t
		}
		out.PhaseStatus[phase] = &c
	}
	return out
}

func (e *Engine) persistProject(snap Project) {
	if !e.persist || e.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if res := e.store.Store(ctx, snap.ID, snap, kv.NamespaceProjects); res.Status != "ok" {
		logger.WarnCF("sparc", "Project persistence failed", map[string]any{
			"project": snap.ID,
			"error":   res.Error,
		})
	}
}

func (e *Engine) publish(t bus.EventType, fields map[string]any) {
	if e.events == nil {
		return
	}
	e.events.Publish(bus.Event{Type: t, Source: "sparc", Fields: fields})
}

// sortedPhases lists phases with a recorded status in canonical order;
// handy for rendering.
func sortedPhases(p *Project) []Phase {
	phases := make([]Phase, 0, len(p.PhaseStatus))
	for _, phase := range PhaseOrder {
		if _, ok := p.PhaseStatus[phase]; ok {
			phases = append(phases, phase)
		}
	}
	return phases
}
