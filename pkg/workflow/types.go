package workflow

import (
	"context"
	"strings"
	"sync"
	"time"
)

// --- Statuses ---

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether a status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// --- Definitions ---

// StepDef describes one step of a workflow definition. TimeoutMS nil
// means the engine default; an explicit zero fails the step immediately.
// RetryAttempts is parsed for forward compatibility; the engine never
// re-runs a failed step.
type StepDef struct {
	Type          string         `json:"type" yaml:"type"`
	Name          string         `json:"name,omitempty" yaml:"name,omitempty"`
	Params        map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	TimeoutMS     *int           `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	RetryAttempts int            `json:"retry_attempts,omitempty" yaml:"retry_attempts,omitempty"`
	Gate          *GateConfig    `json:"gate_config,omitempty" yaml:"gate,omitempty"`
}

type Definition struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string    `json:"version,omitempty" yaml:"version,omitempty"`
	Steps       []StepDef `json:"steps" yaml:"steps"`
}

// --- Gates ---

// GateConfig declares an approval checkpoint on a step. With
// AutoApproval the gate resolves immediately; otherwise the workflow
// pauses until ResumeAfterGate. TimeoutMS > 0 bounds how long the
// pause may last.
type GateConfig struct {
	Type           string   `json:"type,omitempty" yaml:"type,omitempty"`
	BusinessImpact string   `json:"business_impact,omitempty" yaml:"business_impact,omitempty"`
	Stakeholders   []string `json:"stakeholders,omitempty" yaml:"stakeholders,omitempty"`
	AutoApproval   bool     `json:"auto_approval" yaml:"auto_approval"`
	TimeoutMS      int      `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
}

// GateRequest is handed to the gate policy and recorded while a
// workflow waits for a decision.
type GateRequest struct {
	GateID         string         `json:"gate_id"`
	WorkflowID     string         `json:"workflow_id"`
	StepIndex      int            `json:"step_index"`
	StepName       string         `json:"step_name,omitempty"`
	Type           string         `json:"type,omitempty"`
	BusinessImpact string         `json:"business_impact,omitempty"`
	Stakeholders   []string       `json:"stakeholders,omitempty"`
	Context        map[string]any `json:"workflow_context,omitempty"`
	TimeoutMS      int            `json:"timeout_ms,omitempty"`
	RequestedAt    time.Time      `json:"requested_at"`
}

type GateResult struct {
	GateID    string    `json:"gate_id"`
	Approved  bool      `json:"approved"`
	Reason    string    `json:"reason,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// PausedGate marks where a paused workflow stopped.
type PausedGate struct {
	StepIndex int       `json:"step_index"`
	GateID    string    `json:"gate_id"`
	PausedAt  time.Time `json:"paused_at"`
}

// --- Workflow context ---

// Context is the workflow's mutable key space. Step handlers read and
// write it during their step; status queries snapshot it concurrently,
// so access is locked. Nested values are addressed with dotted paths.
type Context struct {
	mu     sync.RWMutex
	values map[string]any
}

func NewContext(initial map[string]any) *Context {
	if initial == nil {
		initial = make(map[string]any)
	}
	return &Context{values: deepCopyMap(initial)}
}

// Get resolves a dotted path ("config.retries") through nested maps.
func (c *Context) Get(path string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var current any = c.values
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Set writes a dotted path, creating intermediate maps as needed.
// Intermediate non-map values are replaced.
func (c *Context) Set(path string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	parts := strings.Split(path, ".")
	m := c.values
	for _, part := range parts[:len(parts)-1] {
		next, ok := m[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[part] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}

// Snapshot returns a deep copy of the context values.
func (c *Context) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return deepCopyMap(c.values)
}

// deepCopyMap copies nested map[string]any / []any structures; scalar
// leaves are shared, which is safe for JSON-like values.
func deepCopyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

// --- Workflow state ---

// workflow is the engine-internal record. All fields are guarded by the
// engine mutex except Context, which has its own lock.
type workflow struct {
	ID          string
	Definition  Definition
	Status      Status
	Context     *Context
	CurrentStep int
	StepResults map[int]any
	StartTime   time.Time
	EndTime     *time.Time
	Error       string

	PausedForGate *PausedGate
	PendingGates  map[string]GateRequest
	GateResults   map[string]GateResult

	// resolvedGates marks step indices whose gate has already been
	// decided, so a resumed run does not re-evaluate it.
	resolvedGates map[int]bool
	gateTimer     *time.Timer
	runCtx        context.Context
}

// Snapshot is the externally visible state of one workflow.
type Snapshot struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	Version       string                 `json:"version,omitempty"`
	Status        Status                 `json:"status"`
	CurrentStep   int                    `json:"current_step"`
	StepCount     int                    `json:"step_count"`
	StepResults   map[int]any            `json:"step_results"`
	Context       map[string]any         `json:"context"`
	StartTime     time.Time              `json:"start_time"`
	EndTime       *time.Time             `json:"end_time,omitempty"`
	Error         string                 `json:"error,omitempty"`
	PausedForGate *PausedGate            `json:"paused_for_gate,omitempty"`
	PendingGates  map[string]GateRequest `json:"pending_gates,omitempty"`
	GateResults   map[string]GateResult  `json:"gate_results,omitempty"`
}

func (w *workflow) snapshot() Snapshot {
	s := Snapshot{
		ID:          w.ID,
		Name:        w.Definition.Name,
		Version:     w.Definition.Version,
		Status:      w.Status,
		CurrentStep: w.CurrentStep,
		StepCount:   len(w.Definition.Steps),
		StepResults: make(map[int]any, len(w.StepResults)),
		Context:     w.Context.Snapshot(),
		StartTime:   w.StartTime,
		Error:       w.Error,
	}
	for k, v := range w.StepResults {
		s.StepResults[k] = v
	}
	if w.EndTime != nil {
		end := *w.EndTime
		s.EndTime = &end
	}
	if w.PausedForGate != nil {
		paused := *w.PausedForGate
		s.PausedForGate = &paused
	}
	if len(w.PendingGates) > 0 {
		s.PendingGates = make(map[string]GateRequest, len(w.PendingGates))
		for k, v := range w.PendingGates {
			s.PendingGates[k] = v
		}
	}
	if len(w.GateResults) > 0 {
		s.GateResults = make(map[string]GateResult, len(w.GateResults))
		for k, v := range w.GateResults {
			s.GateResults[k] = v
		}
	}
	return s
}
