package mcptool

import (
	"strconv"
	"time"

	"github.com/swarmflow/swarmflow/pkg/sparc"
	"github.com/swarmflow/swarmflow/pkg/swarm"
	"github.com/swarmflow/swarmflow/pkg/workflow"
)

// Wire views keep tool results to JSON-schema-friendly shapes: flat
// structs, string timestamps, string-keyed maps.

// AgentView is the wire shape of one registered agent.
type AgentView struct {
	ID             string   `json:"id"`
	Type           string   `json:"type"`
	Status         string   `json:"status"`
	Capabilities   []string `json:"capabilities,omitempty"`
	TasksCompleted int      `json:"tasks_completed"`
	AvgResponseMS  float64  `json:"avg_response_ms"`
	ErrorRate      float64  `json:"error_rate"`
	RegisteredAt   string   `json:"registered_at,omitempty"`
}

func agentView(a swarm.Agent) AgentView {
	return AgentView{
		ID:             a.ID,
		Type:           string(a.Type),
		Status:         string(a.Status),
		Capabilities:   a.Capabilities,
		TasksCompleted: a.Performance.TasksCompleted,
		AvgResponseMS:  a.Performance.AvgResponseMS,
		ErrorRate:      a.Performance.ErrorRate,
		RegisteredAt:   stamp(a.RegisteredAt),
	}
}

// ProjectSummary is the wire shape of one pipeline project.
type ProjectSummary struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Domain          string   `json:"domain"`
	Complexity      string   `json:"complexity"`
	Status          string   `json:"status"`
	CurrentPhase    string   `json:"current_phase,omitempty"`
	CompletedPhases []string `json:"completed_phases,omitempty"`
	OverallProgress float64  `json:"overall_progress"`
	TemplateID      string   `json:"template_id,omitempty"`
	CreatedAt       string   `json:"created_at,omitempty"`
	UpdatedAt       string   `json:"updated_at,omitempty"`
}

func projectSummary(p sparc.Project) ProjectSummary {
	completed := make([]string, len(p.CompletedPhases))
	for i, ph := range p.CompletedPhases {
		completed[i] = string(ph)
	}
	return ProjectSummary{
		ID:              p.ID,
		Name:            p.Name,
		Domain:          p.Domain,
		Complexity:      p.Complexity,
		Status:          p.Status(),
		CurrentPhase:    string(p.CurrentPhase),
		CompletedPhases: completed,
		OverallProgress: p.OverallProgress,
		TemplateID:      p.TemplateID,
		CreatedAt:       stamp(p.CreatedAt),
		UpdatedAt:       stamp(p.UpdatedAt),
	}
}

// PhaseDetail expands one phase's status for get_project_status with
// include_details.
type PhaseDetail struct {
	Status       string   `json:"status"`
	DurationMin  float64  `json:"duration_min,omitempty"`
	Deliverables []string `json:"deliverables,omitempty"`
	Issues       []string `json:"issues,omitempty"`
}

func phaseDetails(p sparc.Project) map[string]PhaseDetail {
	out := make(map[string]PhaseDetail, len(p.PhaseStatus))
	for phase, st := range p.PhaseStatus {
		if st == nil {
			continue
		}
		d := PhaseDetail{
			Status:       string(st.Status),
			DurationMin:  st.DurationMin,
			Deliverables: st.Deliverables,
		}
		for _, vr := range st.ValidationResults {
			if !vr.Passed {
				d.Issues = append(d.Issues, vr.Criterion+": "+vr.Details)
			}
		}
		out[string(phase)] = d
	}
	return out
}

// WorkflowView is the wire shape of one workflow snapshot. Step results
// are keyed by step index rendered as a string.
type WorkflowView struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Status       string         `json:"status"`
	CurrentStep  int            `json:"current_step"`
	StepCount    int            `json:"step_count"`
	StepResults  map[string]any `json:"step_results,omitempty"`
	Error        string         `json:"error,omitempty"`
	PausedGateID string         `json:"paused_gate_id,omitempty"`
	PausedStep   int            `json:"paused_step,omitempty"`
	PendingGates []string       `json:"pending_gates,omitempty"`
	StartTime    string         `json:"start_time,omitempty"`
	EndTime      string         `json:"end_time,omitempty"`
}

func workflowView(snap workflow.Snapshot) WorkflowView {
	v := WorkflowView{
		ID:          snap.ID,
		Name:        snap.Name,
		Status:      string(snap.Status),
		CurrentStep: snap.CurrentStep,
		StepCount:   snap.StepCount,
		Error:       snap.Error,
		StartTime:   stamp(snap.StartTime),
	}
	if len(snap.StepResults) > 0 {
		v.StepResults = make(map[string]any, len(snap.StepResults))
		for i, r := range snap.StepResults {
			v.StepResults[strconv.Itoa(i)] = r
		}
	}
	if snap.EndTime != nil {
		v.EndTime = stamp(*snap.EndTime)
	}
	if snap.PausedForGate != nil {
		v.PausedGateID = snap.PausedForGate.GateID
		v.PausedStep = snap.PausedForGate.StepIndex
	}
	for gateID := range snap.PendingGates {
		v.PendingGates = append(v.PendingGates, gateID)
	}
	return v
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
