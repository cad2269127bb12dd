// SwarmFlow - Multi-agent orchestration kernel
// MCP tools for the five-phase pipeline
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package mcptool

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/swarmflow/swarmflow/pkg/sparc"
)

// --- create_project ---

type CreateProjectInput struct {
	Name         string   `json:"name" jsonschema:"project name"`
	Domain       string   `json:"domain,omitempty" jsonschema:"project domain (swarm-coordination, neural-networks, memory-systems, rest-api, wasm-integration, interfaces, general)"`
	Complexity   string   `json:"complexity,omitempty" jsonschema:"simple, moderate, high, complex, or enterprise"`
	Requirements []string `json:"requirements,omitempty" jsonschema:"initial functional requirements"`
	Constraints  []string `json:"constraints,omitempty" jsonschema:"project constraints"`
}

type CreateProjectOutput struct {
	Envelope
	ProjectID    string `json:"project_id,omitempty"`
	Domain       string `json:"domain,omitempty"`
	Complexity   string `json:"complexity,omitempty"`
	CurrentPhase string `json:"current_phase,omitempty"`
}

func (s *Server) createProject(_ context.Context, _ *mcp.CallToolRequest, in CreateProjectInput) (*mcp.CallToolResult, CreateProjectOutput, error) {
	p, err := s.sparc.CreateProject(sparc.NewProject{
		Name:         in.Name,
		Domain:       in.Domain,
		Complexity:   in.Complexity,
		Requirements: in.Requirements,
		Constraints:  in.Constraints,
	})
	if err != nil {
		return nil, CreateProjectOutput{Envelope: fail(err)}, nil
	}
	return nil, CreateProjectOutput{
		Envelope:     ok(),
		ProjectID:    p.ID,
		Domain:       p.Domain,
		Complexity:   p.Complexity,
		CurrentPhase: string(p.CurrentPhase),
	}, nil
}

// --- execute_phase ---

type ExecutePhaseInput struct {
	ProjectID string `json:"project_id" jsonschema:"project id"`
	Phase     string `json:"phase" jsonschema:"specification, pseudocode, architecture, refinement, or completion"`
}

type ExecutePhaseOutput struct {
	Envelope
	Result *sparc.PhaseResult `json:"result,omitempty"`
}

func (s *Server) executePhase(ctx context.Context, _ *mcp.CallToolRequest, in ExecutePhaseInput) (*mcp.CallToolResult, ExecutePhaseOutput, error) {
	res, err := s.sparc.ExecutePhase(ctx, in.ProjectID, sparc.Phase(in.Phase))
	if err != nil {
		return nil, ExecutePhaseOutput{Envelope: fail(err)}, nil
	}
	return nil, ExecutePhaseOutput{Envelope: ok(), Result: res}, nil
}

// --- get_project_status ---

type ProjectStatusInput struct {
	ProjectID      string `json:"project_id" jsonschema:"project id"`
	IncludeDetails bool   `json:"include_details,omitempty" jsonschema:"include per-phase status and deliverables"`
}

type ProjectStatusOutput struct {
	Envelope
	Project *ProjectSummary        `json:"project,omitempty"`
	Phases  map[string]PhaseDetail `json:"phases,omitempty"`
}

func (s *Server) getProjectStatus(_ context.Context, _ *mcp.CallToolRequest, in ProjectStatusInput) (*mcp.CallToolResult, ProjectStatusOutput, error) {
	p, err := s.sparc.Project(in.ProjectID)
	if err != nil {
		return nil, ProjectStatusOutput{Envelope: fail(err)}, nil
	}
	summary := projectSummary(p)
	out := ProjectStatusOutput{Envelope: ok(), Project: &summary}
	if in.IncludeDetails {
		out.Phases = phaseDetails(p)
	}
	return nil, out, nil
}

// --- generate_artifacts ---

type GenerateArtifactsInput struct {
	ProjectID     string   `json:"project_id" jsonschema:"project id"`
	ArtifactTypes []string `json:"artifact_types,omitempty" jsonschema:"specification, pseudocode, architecture, refinement, implementation; empty renders every completed phase"`
	Format        string   `json:"format,omitempty" jsonschema:"markdown (default) or json"`
}

type GenerateArtifactsOutput struct {
	Envelope
	Artifacts []sparc.Artifact `json:"artifacts,omitempty"`
	Count     int              `json:"count"`
}

func (s *Server) generateArtifacts(_ context.Context, _ *mcp.CallToolRequest, in GenerateArtifactsInput) (*mcp.CallToolResult, GenerateArtifactsOutput, error) {
	arts, err := s.sparc.GenerateArtifacts(in.ProjectID, in.ArtifactTypes, in.Format)
	if err != nil {
		return nil, GenerateArtifactsOutput{Envelope: fail(err)}, nil
	}
	return nil, GenerateArtifactsOutput{Envelope: ok(), Artifacts: arts, Count: len(arts)}, nil
}

// --- validate_completion ---

type ValidateCompletionInput struct {
	ProjectID string   `json:"project_id" jsonschema:"project id"`
	Criteria  []string `json:"criteria,omitempty" jsonschema:"restrict the report to checks whose names contain one of these"`
}

type ValidateCompletionOutput struct {
	Envelope
	ReadyForProduction bool                     `json:"readyForProduction"`
	Score              float64                  `json:"score"`
	Checks             []sparc.ValidationResult `json:"checks,omitempty"`
}

func (s *Server) validateCompletion(_ context.Context, _ *mcp.CallToolRequest, in ValidateCompletionInput) (*mcp.CallToolResult, ValidateCompletionOutput, error) {
	report, err := s.sparc.ValidateCompletion(in.ProjectID)
	if err != nil {
		return nil, ValidateCompletionOutput{Envelope: fail(err)}, nil
	}

	checks := report.Checks
	ready := report.ReadyForProduction
	if len(in.Criteria) > 0 {
		checks, ready = filterChecks(report.Checks, in.Criteria)
	}
	return nil, ValidateCompletionOutput{
		Envelope:           ok(),
		ReadyForProduction: ready,
		Score:              report.Score,
		Checks:             checks,
	}, nil
}

// filterChecks keeps the checks whose criterion name contains one of
// the requested criteria (case-insensitive). A criterion with no
// matching check fails the report and is surfaced as its own entry.
func filterChecks(checks []sparc.ValidationResult, criteria []string) ([]sparc.ValidationResult, bool) {
	var kept []sparc.ValidationResult
	ready := true

	for _, crit := range criteria {
		matched := false
		needle := strings.ToLower(strings.TrimSpace(crit))
		if needle == "" {
			continue
		}
		for _, c := range checks {
			if strings.Contains(strings.ToLower(c.Criterion), needle) {
				kept = append(kept, c)
				matched = true
				if !c.Passed {
					ready = false
				}
			}
		}
		if !matched {
			kept = append(kept, sparc.ValidationResult{
				Criterion: crit,
				Passed:    false,
				Details:   "no completion check matches this criterion",
			})
			ready = false
		}
	}
	return kept, ready
}

// --- list_projects ---

type ListProjectsInput struct {
	Domain string `json:"domain,omitempty" jsonschema:"filter by domain"`
	Status string `json:"status,omitempty" jsonschema:"filter by status: active, completed, failed"`
}

type ListProjectsOutput struct {
	Envelope
	Projects []ProjectSummary `json:"projects"`
	Count    int              `json:"count"`
}

func (s *Server) listProjects(_ context.Context, _ *mcp.CallToolRequest, in ListProjectsInput) (*mcp.CallToolResult, ListProjectsOutput, error) {
	projects := s.sparc.ListProjects(in.Domain, in.Status)
	summaries := make([]ProjectSummary, len(projects))
	for i, p := range projects {
		summaries[i] = projectSummary(p)
	}
	return nil, ListProjectsOutput{Envelope: ok(), Projects: summaries, Count: len(summaries)}, nil
}

// --- refine_implementation ---

type FeedbackInput struct {
	PerformanceIssues []string `json:"performance_issues,omitempty" jsonschema:"performance problems observed"`
	SecurityIssues    []string `json:"security_issues,omitempty" jsonschema:"security problems observed"`
	ScalabilityIssues []string `json:"scalability_issues,omitempty" jsonschema:"scalability problems observed"`
	CodeQualityIssues []string `json:"code_quality_issues,omitempty" jsonschema:"code quality problems observed"`
}

type RefineImplementationInput struct {
	ProjectID string        `json:"project_id" jsonschema:"project id"`
	Feedback  FeedbackInput `json:"feedback" jsonschema:"issue lists by category; each non-empty category selects an optimization strategy"`
}

type RefineImplementationOutput struct {
	Envelope
	Result *sparc.PhaseResult `json:"result,omitempty"`
}

func (s *Server) refineImplementation(ctx context.Context, _ *mcp.CallToolRequest, in RefineImplementationInput) (*mcp.CallToolResult, RefineImplementationOutput, error) {
	res, err := s.sparc.RefineImplementation(ctx, in.ProjectID, sparc.Feedback{
		PerformanceIssues: in.Feedback.PerformanceIssues,
		SecurityIssues:    in.Feedback.SecurityIssues,
		ScalabilityIssues: in.Feedback.ScalabilityIssues,
		CodeQualityIssues: in.Feedback.CodeQualityIssues,
	})
	if err != nil {
		return nil, RefineImplementationOutput{Envelope: fail(err)}, nil
	}
	return nil, RefineImplementationOutput{Envelope: ok(), Result: res}, nil
}

// --- apply_template ---

type ApplyTemplateInput struct {
	ProjectID    string `json:"project_id" jsonschema:"project id"`
	TemplateType string `json:"template_type" jsonschema:"template id, e.g. rest-api or swarm-coordination"`
}

type ApplyTemplateOutput struct {
	Envelope
	TemplateID     string         `json:"template_id,omitempty"`
	Score          float64        `json:"score,omitempty"`
	Customizations []string       `json:"customizations,omitempty"`
	Specification  map[string]any `json:"specification,omitempty"`
	Pseudocode     map[string]any `json:"pseudocode,omitempty"`
	Architecture   map[string]any `json:"architecture,omitempty"`
	AppliedAt      string         `json:"applied_at,omitempty"`
}

func (s *Server) applyTemplate(_ context.Context, _ *mcp.CallToolRequest, in ApplyTemplateInput) (*mcp.CallToolResult, ApplyTemplateOutput, error) {
	app, err := s.sparc.ApplyTemplate(in.ProjectID, in.TemplateType)
	if err != nil {
		return nil, ApplyTemplateOutput{Envelope: fail(err)}, nil
	}
	return nil, ApplyTemplateOutput{
		Envelope:       ok(),
		TemplateID:     app.TemplateID,
		Score:          app.Score,
		Customizations: app.Customizations,
		Specification:  app.Specification,
		Pseudocode:     app.Pseudocode,
		Architecture:   app.Architecture,
		AppliedAt:      stamp(app.AppliedAt),
	}, nil
}

// --- execute_full_workflow ---

type FullWorkflowOptions struct {
	Validate bool `json:"validate,omitempty" jsonschema:"run completion validation after the pipeline"`
}

type FullWorkflowInput struct {
	ProjectID string              `json:"project_id" jsonschema:"project id"`
	Options   FullWorkflowOptions `json:"options,omitempty" jsonschema:"pipeline options"`
}

type FullWorkflowOutput struct {
	Envelope
	Results        []sparc.PhaseResult     `json:"results,omitempty"`
	PhasesExecuted int                     `json:"phases_executed"`
	FailedPhase    string                  `json:"failed_phase,omitempty"`
	Report         *sparc.CompletionReport `json:"report,omitempty"`
}

func (s *Server) executeFullWorkflow(ctx context.Context, _ *mcp.CallToolRequest, in FullWorkflowInput) (*mcp.CallToolResult, FullWorkflowOutput, error) {
	results, err := s.sparc.RunPipeline(ctx, in.ProjectID)
	out := FullWorkflowOutput{Results: results, PhasesExecuted: len(results)}
	if err != nil {
		out.Envelope = fail(err)
		out.FailedPhase = failedPhase(s.sparc, in.ProjectID)
		return nil, out, nil
	}

	out.Envelope = ok()
	if in.Options.Validate {
		report, verr := s.sparc.ValidateCompletion(in.ProjectID)
		if verr != nil {
			out.Envelope = fail(fmt.Errorf("pipeline completed but validation failed: %w", verr))
			return nil, out, nil
		}
		out.Report = report
	}
	return nil, out, nil
}

// failedPhase names the phase whose status records a failure, if any.
func failedPhase(engine *sparc.Engine, projectID string) string {
	p, err := engine.Project(projectID)
	if err != nil {
		return ""
	}
	for _, phase := range sparc.PhaseOrder {
		if st := p.PhaseStatus[phase]; st != nil && st.Status == sparc.PhaseFailed {
			return string(phase)
		}
	}
	return ""
}
