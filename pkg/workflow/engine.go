// SwarmFlow - Multi-agent orchestration kernel
// Workflow engine: step sequencing, gates, timeouts, pause/resume
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/swarmflow/swarmflow/pkg/bus"
	"github.com/swarmflow/swarmflow/pkg/core"
	"github.com/swarmflow/swarmflow/pkg/kv"
	"github.com/swarmflow/swarmflow/pkg/logger"
)

const (
	defaultMaxConcurrent = 10
	defaultStepTimeout   = 30 * time.Second
	historyLimit         = 256
	persistTimeout       = 5 * time.Second
)

// --- Gate policy ---

type GateDecision int

const (
	GatePending GateDecision = iota
	GateApproved
	GateRejected
)

// GatePolicy decides non-auto-approval gates. The default policy defers
// every decision to an external ResumeAfterGate call; deployments may
// plug in an approver, but the resume contract stays the same.
type GatePolicy interface {
	Decide(ctx context.Context, req GateRequest) GateDecision
}

type deferAllPolicy struct{}

func (deferAllPolicy) Decide(context.Context, GateRequest) GateDecision { return GatePending }

// --- Engine ---

// Options configures an Engine. Store and Bus are optional.
type Options struct {
	Store  kv.Store
	Bus    *bus.EventBus
	Policy GatePolicy

	MaxConcurrent    int
	StepTimeout      time.Duration
	PersistWorkflows bool
}

// Engine executes ordered step lists with per-step handlers, enforces
// timeouts and gate holds, and exposes live status. Each workflow runs
// on its own goroutine; steps within one workflow run strictly in
// index order.
type Engine struct {
	handlers *HandlerRegistry
	defs     map[string]Definition

	active    map[string]*workflow
	history   map[string]*workflow
	histOrder []string
	cancels   map[string]context.CancelFunc

	store   kv.Store
	events  *bus.EventBus
	policy  GatePolicy
	persist bool

	maxConcurrent int
	stepTimeout   time.Duration

	baseCtx  context.Context
	baseStop context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.RWMutex
}

func NewEngine(opts Options) *Engine {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = defaultStepTimeout
	}
	if opts.Policy == nil {
		opts.Policy = deferAllPolicy{}
	}

	baseCtx, baseStop := context.WithCancel(context.Background())
	return &Engine{
		handlers:      NewHandlerRegistry(),
		defs:          make(map[string]Definition),
		active:        make(map[string]*workflow),
		history:       make(map[string]*workflow),
		cancels:       make(map[string]context.CancelFunc),
		store:         opts.Store,
		events:        opts.Bus,
		policy:        opts.Policy,
		persist:       opts.PersistWorkflows,
		maxConcurrent: opts.MaxConcurrent,
		stepTimeout:   opts.StepTimeout,
		baseCtx:       baseCtx,
		baseStop:      baseStop,
	}
}

// RegisterHandler binds a step type to a handler, replacing any
// previous binding.
func (e *Engine) RegisterHandler(stepType string, handler StepHandler) {
	e.handlers.Register(stepType, handler)
}

func (e *Engine) Handlers() *HandlerRegistry { return e.handlers }

// RegisterDefinition stores a named definition for StartByName.
func (e *Engine) RegisterDefinition(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("definition without name: %w", core.ErrValidationFailed)
	}
	if err := validateSteps(def); err != nil {
		return err
	}

	e.mu.Lock()
	e.defs[def.Name] = def
	e.mu.Unlock()
	return nil
}

func (e *Engine) Definition(name string) (Definition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	def, ok := e.defs[name]
	return def, ok
}

func (e *Engine) Definitions() []Definition {
	e.mu.RLock()
	defer e.mu.RUnlock()

	defs := make([]Definition, 0, len(e.defs))
	for _, d := range e.defs {
		defs = append(defs, d)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

func validateSteps(def Definition) error {
	if len(def.Steps) == 0 {
		return fmt.Errorf("definition %q has no steps: %w", def.Name, core.ErrValidationFailed)
	}
	for i, step := range def.Steps {
		if step.Type == "" {
			return fmt.Errorf("definition %q step %d has no type: %w", def.Name, i, core.ErrValidationFailed)
		}
	}
	return nil
}

// Start begins asynchronous execution of an inline definition and
// returns the workflow id.
func (e *Engine) Start(def Definition, initial map[string]any) (string, error) {
	if err := validateSteps(def); err != nil {
		return "", err
	}
	return e.start(def, initial)
}

// StartByName starts a previously registered definition.
func (e *Engine) StartByName(name string, initial map[string]any) (string, error) {
	def, ok := e.Definition(name)
	if !ok {
		return "", fmt.Errorf("workflow definition %q: %w", name, core.ErrNotFound)
	}
	return e.start(def, initial)
}

func (e *Engine) start(def Definition, initial map[string]any) (string, error) {
	e.mu.Lock()
	if len(e.active) >= e.maxConcurrent {
		e.mu.Unlock()
		return "", fmt.Errorf("%d active workflows: %w", e.maxConcurrent, core.ErrConcurrencyLimit)
	}

	id := fmt.Sprintf("wf-%s", uuid.New().String()[:8])
	runCtx, cancel := context.WithCancel(e.baseCtx)
	wf := &workflow{
		ID:            id,
		Definition:    def,
		Status:        StatusPending,
		Context:       NewContext(initial),
		StepResults:   make(map[int]any),
		PendingGates:  make(map[string]GateRequest),
		GateResults:   make(map[string]GateResult),
		resolvedGates: make(map[int]bool),
		StartTime:     time.Now().UTC(),
		runCtx:        runCtx,
	}
	e.active[id] = wf
	e.cancels[id] = cancel
	e.wg.Add(1)
	e.mu.Unlock()

	e.publish(bus.EventWorkflowStarted, map[string]any{
		"workflow_id": id,
		"name":        def.Name,
		"steps":       len(def.Steps),
	})
	logger.InfoCF("workflow", "Workflow started", map[string]any{
		"workflow": id,
		"name":     def.Name,
	})

	go e.run(wf, 0)
	return id, nil
}

// run executes steps from index `from`. It returns when the workflow
// reaches a terminal state or pauses for a gate.
func (e *Engine) run(wf *workflow, from int) {
	defer e.wg.Done()

	e.mu.Lock()
	if wf.Status == StatusPending {
		wf.Status = StatusRunning
	}
	steps := wf.Definition.Steps
	e.mu.Unlock()

	for i := from; i < len(steps); i++ {
		e.mu.Lock()
		if wf.Status != StatusRunning {
			e.mu.Unlock()
			return
		}
		wf.CurrentStep = i
		step := steps[i]
		gateResolved := wf.resolvedGates[i]
		e.mu.Unlock()

		if step.Gate != nil && !gateResolved {
			if !e.evaluateGate(wf, i, step) {
				return // paused or failed
			}
		}

		value, err := e.runStep(wf, i, step)
		if err != nil {
			e.finish(wf, StatusFailed, fmt.Sprintf("step %d (%s): %v", i, stepLabel(step), err))
			return
		}

		e.mu.Lock()
		if wf.Status != StatusRunning {
			e.mu.Unlock()
			return
		}
		wf.StepResults[i] = value
		e.mu.Unlock()
	}

	e.finish(wf, StatusCompleted, "")
}

// evaluateGate runs the gate protocol for a gated step. Returns true
// when execution may proceed to the handler; false when the workflow
// paused or failed.
func (e *Engine) evaluateGate(wf *workflow, stepIndex int, step StepDef) bool {
	gate := step.Gate
	gateID := fmt.Sprintf("gate-%s", uuid.New().String()[:8])
	now := time.Now().UTC()

	req := GateRequest{
		GateID:         gateID,
		WorkflowID:     wf.ID,
		StepIndex:      stepIndex,
		StepName:       stepLabel(step),
		Type:           gate.Type,
		BusinessImpact: gate.BusinessImpact,
		Stakeholders:   gate.Stakeholders,
		Context:        wf.Context.Snapshot(),
		TimeoutMS:      gate.TimeoutMS,
		RequestedAt:    now,
	}

	decision := GateApproved
	reason := "auto-approval"
	if !gate.AutoApproval {
		decision = e.policy.Decide(wf.runCtx, req)
		reason = "policy"
	}

	switch decision {
	case GateApproved:
		e.mu.Lock()
		wf.GateResults[gateID] = GateResult{GateID: gateID, Approved: true, Reason: reason, DecidedAt: now}
		wf.resolvedGates[stepIndex] = true
		e.mu.Unlock()
		return true

	case GateRejected:
		e.mu.Lock()
		wf.GateResults[gateID] = GateResult{GateID: gateID, Approved: false, Reason: reason, DecidedAt: now}
		e.mu.Unlock()
		e.finish(wf, StatusFailed, fmt.Sprintf("Gate rejected: %s", gateID))
		return false

	default:
		e.pause(wf, stepIndex, gateID, req)
		return false
	}
}

// pause holds the workflow for an external gate decision. The run
// goroutine returns; ResumeAfterGate spawns a fresh one.
func (e *Engine) pause(wf *workflow, stepIndex int, gateID string, req GateRequest) {
	e.mu.Lock()
	if wf.Status != StatusRunning {
		e.mu.Unlock()
		return
	}
	wf.Status = StatusPaused
	wf.PausedForGate = &PausedGate{StepIndex: stepIndex, GateID: gateID, PausedAt: time.Now().UTC()}
	wf.PendingGates[gateID] = req
	if req.TimeoutMS > 0 {
		wf.gateTimer = time.AfterFunc(time.Duration(req.TimeoutMS)*time.Millisecond, func() {
			e.gateTimeout(wf.ID, gateID)
		})
	}
	snap := wf.snapshot()
	e.mu.Unlock()

	e.publish(bus.EventWorkflowPaused, map[string]any{
		"workflow_id": wf.ID,
		"gate_id":     gateID,
		"step_index":  stepIndex,
	})
	e.persistSnapshot(snap)
	logger.InfoCF("workflow", "Workflow paused for gate", map[string]any{
		"workflow": wf.ID,
		"gate":     gateID,
		"step":     stepIndex,
	})
}

// gateTimeout fails a workflow still paused on the given gate.
func (e *Engine) gateTimeout(workflowID, gateID string) {
	e.mu.Lock()
	wf, ok := e.active[workflowID]
	if !ok || wf.Status != StatusPaused || wf.PausedForGate == nil || wf.PausedForGate.GateID != gateID {
		e.mu.Unlock()
		return
	}
	wf.GateResults[gateID] = GateResult{GateID: gateID, Approved: false, Reason: "timeout", DecidedAt: time.Now().UTC()}
	delete(wf.PendingGates, gateID)
	e.mu.Unlock()

	e.finish(wf, StatusFailed, fmt.Sprintf("Gate timed out: %s", gateID))
}

// ResumeAfterGate records the external decision for the gate a paused
// workflow is waiting on. Approval resumes execution at the gated step;
// rejection fails the workflow.
func (e *Engine) ResumeAfterGate(workflowID, gateID string, approved bool) error {
	e.mu.Lock()
	wf, ok := e.active[workflowID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("workflow %s: %w", workflowID, core.ErrNotFound)
	}
	if wf.Status != StatusPaused || wf.PausedForGate == nil {
		e.mu.Unlock()
		return fmt.Errorf("workflow %s is not paused: %w", workflowID, core.ErrPreconditionFailed)
	}
	if wf.PausedForGate.GateID != gateID {
		e.mu.Unlock()
		return fmt.Errorf("gate %s is not pending on workflow %s: %w", gateID, workflowID, core.ErrPreconditionFailed)
	}

	if wf.gateTimer != nil {
		wf.gateTimer.Stop()
		wf.gateTimer = nil
	}
	delete(wf.PendingGates, gateID)
	wf.GateResults[gateID] = GateResult{GateID: gateID, Approved: approved, Reason: "external", DecidedAt: time.Now().UTC()}
	stepIndex := wf.PausedForGate.StepIndex

	if !approved {
		e.mu.Unlock()
		e.finish(wf, StatusFailed, fmt.Sprintf("Gate rejected: %s", gateID))
		return nil
	}

	wf.PausedForGate = nil
	wf.Status = StatusRunning
	wf.resolvedGates[stepIndex] = true
	e.wg.Add(1)
	e.mu.Unlock()

	e.publish(bus.EventWorkflowResumed, map[string]any{
		"workflow_id": workflowID,
		"gate_id":     gateID,
	})
	logger.InfoCF("workflow", "Workflow resumed", map[string]any{
		"workflow": workflowID,
		"gate":     gateID,
	})

	go e.run(wf, stepIndex)
	return nil
}

// CancelWorkflow marks an active workflow cancelled. In-flight handlers
// are cancelled cooperatively through their context. Returns false when
// the id is unknown or already terminal.
func (e *Engine) CancelWorkflow(id string) bool {
	e.mu.RLock()
	wf, ok := e.active[id]
	e.mu.RUnlock()
	if !ok {
		return false
	}
	e.finish(wf, StatusCancelled, "")
	return true
}

// runStep invokes the handler under the step deadline. An explicit
// timeout of zero fails immediately.
func (e *Engine) runStep(wf *workflow, index int, step StepDef) (any, error) {
	handler, ok := e.handlers.Get(step.Type)
	if !ok {
		return nil, fmt.Errorf("no handler for step type %q: %w", step.Type, core.ErrNotFound)
	}

	timeout := e.stepTimeout
	if step.TimeoutMS != nil {
		timeout = time.Duration(*step.TimeoutMS) * time.Millisecond
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("deadline of %v: %w", timeout, core.ErrTimeout)
	}

	stepCtx, cancel := context.WithTimeout(wf.runCtx, timeout)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := handler.Execute(stepCtx, wf.Context, step.Params)
		done <- outcome{value, err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-stepCtx.Done():
		if wf.runCtx.Err() != nil {
			return nil, fmt.Errorf("workflow stopped: %w", core.ErrCancelled)
		}
		return nil, fmt.Errorf("deadline of %v exceeded: %w", timeout, core.ErrTimeout)
	}
}

// finish applies a terminal transition exactly once.
func (e *Engine) finish(wf *workflow, status Status, errMsg string) {
	e.mu.Lock()
	if wf.Status.Terminal() {
		e.mu.Unlock()
		return
	}
	wf.Status = status
	wf.Error = errMsg
	now := time.Now().UTC()
	wf.EndTime = &now
	if wf.gateTimer != nil {
		wf.gateTimer.Stop()
		wf.gateTimer = nil
	}
	delete(e.active, wf.ID)
	if cancel, ok := e.cancels[wf.ID]; ok {
		cancel()
		delete(e.cancels, wf.ID)
	}
	e.history[wf.ID] = wf
	e.histOrder = append(e.histOrder, wf.ID)
	for len(e.histOrder) > historyLimit {
		delete(e.history, e.histOrder[0])
		e.histOrder = e.histOrder[1:]
	}
	snap := wf.snapshot()
	e.mu.Unlock()

	eventType := bus.EventWorkflowCompleted
	switch status {
	case StatusFailed:
		eventType = bus.EventWorkflowFailed
	case StatusCancelled:
		eventType = bus.EventWorkflowCancelled
	}
	fields := map[string]any{
		"workflow_id": wf.ID,
		"status":      string(status),
	}
	if errMsg != "" {
		fields["error"] = errMsg
	}
	e.publish(eventType, fields)
	e.persistSnapshot(snap)

	if status == StatusFailed {
		logger.WarnCF("workflow", "Workflow failed", map[string]any{
			"workflow": wf.ID,
			"error":    errMsg,
		})
	} else {
		logger.InfoCF("workflow", "Workflow finished", map[string]any{
			"workflow": wf.ID,
			"status":   string(status),
		})
	}
}

// Get returns the current snapshot of an active or recently finished
// workflow.
func (e *Engine) Get(id string) (Snapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if wf, ok := e.active[id]; ok {
		return wf.snapshot(), true
	}
	if wf, ok := e.history[id]; ok {
		return wf.snapshot(), true
	}
	return Snapshot{}, false
}

// List returns snapshots filtered by status; an empty status matches
// everything. Results are ordered by start time.
func (e *Engine) List(status Status) []Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(e.active)+len(e.history))
	for _, wf := range e.active {
		if status == "" || wf.Status == status {
			snaps = append(snaps, wf.snapshot())
		}
	}
	for _, wf := range e.history {
		if status == "" || wf.Status == status {
			snaps = append(snaps, wf.snapshot())
		}
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].StartTime.Before(snaps[j].StartTime) })
	return snaps
}

func (e *Engine) ActiveCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.active)
}

// Close cancels all active workflows and waits for their goroutines.
func (e *Engine) Close() {
	e.mu.Lock()
	wfs := make([]*workflow, 0, len(e.active))
	for _, wf := range e.active {
		wfs = append(wfs, wf)
	}
	e.mu.Unlock()

	for _, wf := range wfs {
		e.finish(wf, StatusCancelled, "engine shutdown")
	}
	e.baseStop()
	e.wg.Wait()
}

func (e *Engine) persistSnapshot(snap Snapshot) {
	if !e.persist || e.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if res := e.store.Store(ctx, snap.ID, snap, kv.NamespaceWorkflows); res.Status != "ok" {
		logger.WarnCF("workflow", "Workflow persistence failed", map[string]any{
			"workflow": snap.ID,
			"error":    res.Error,
		})
	}
}

func (e *Engine) publish(t bus.EventType, fields map[string]any) {
	if e.events == nil {
		return
	}
	e.events.Publish(bus.Event{Type: t, Source: "workflow", Fields: fields})
}

func stepLabel(step StepDef) string {
	if step.Name != "" {
		return step.Name
	}
	return step.Type
}
