// SwarmFlow - Multi-agent orchestration kernel
// MCP tools for workflow control
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package mcptool

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/swarmflow/swarmflow/pkg/core"
	"github.com/swarmflow/swarmflow/pkg/workflow"
)

// --- start_workflow ---

type StartWorkflowInput struct {
	Name       string               `json:"name,omitempty" jsonschema:"registered definition name to start"`
	Definition *workflow.Definition `json:"definition,omitempty" jsonschema:"inline workflow definition; takes precedence over name"`
	Context    map[string]any       `json:"context,omitempty" jsonschema:"initial workflow context"`
}

type StartWorkflowOutput struct {
	Envelope
	WorkflowID string `json:"workflow_id,omitempty"`
	Status     string `json:"status,omitempty"`
}

func (s *Server) startWorkflow(_ context.Context, _ *mcp.CallToolRequest, in StartWorkflowInput) (*mcp.CallToolResult, StartWorkflowOutput, error) {
	var (
		id  string
		err error
	)
	switch {
	case in.Definition != nil:
		id, err = s.workflows.Start(*in.Definition, in.Context)
	case in.Name != "":
		id, err = s.workflows.StartByName(in.Name, in.Context)
	default:
		err = fmt.Errorf("start_workflow needs an inline definition or a registered name: %w", core.ErrValidationFailed)
	}
	if err != nil {
		return nil, StartWorkflowOutput{Envelope: fail(err)}, nil
	}

	out := StartWorkflowOutput{Envelope: ok(), WorkflowID: id}
	if snap, found := s.workflows.Get(id); found {
		out.Status = string(snap.Status)
	}
	return nil, out, nil
}

// --- cancel_workflow ---

type CancelWorkflowInput struct {
	WorkflowID string `json:"workflow_id" jsonschema:"workflow id"`
}

type CancelWorkflowOutput struct {
	Envelope
	Cancelled bool `json:"cancelled"`
}

func (s *Server) cancelWorkflow(_ context.Context, _ *mcp.CallToolRequest, in CancelWorkflowInput) (*mcp.CallToolResult, CancelWorkflowOutput, error) {
	cancelled := s.workflows.CancelWorkflow(in.WorkflowID)
	return nil, CancelWorkflowOutput{Envelope: ok(), Cancelled: cancelled}, nil
}

// --- resume_after_gate ---

type ResumeAfterGateInput struct {
	WorkflowID string `json:"workflow_id" jsonschema:"workflow id"`
	GateID     string `json:"gate_id" jsonschema:"gate id the workflow is paused on"`
	Approved   bool   `json:"approved" jsonschema:"true approves the gate, false rejects it and fails the workflow"`
}

type ResumeAfterGateOutput struct {
	Envelope
	WorkflowID string `json:"workflow_id,omitempty"`
	Approved   bool   `json:"approved"`
}

func (s *Server) resumeAfterGate(_ context.Context, _ *mcp.CallToolRequest, in ResumeAfterGateInput) (*mcp.CallToolResult, ResumeAfterGateOutput, error) {
	if err := s.workflows.ResumeAfterGate(in.WorkflowID, in.GateID, in.Approved); err != nil {
		return nil, ResumeAfterGateOutput{Envelope: fail(err)}, nil
	}
	s.swarm.Collector().GateDecision()
	return nil, ResumeAfterGateOutput{Envelope: ok(), WorkflowID: in.WorkflowID, Approved: in.Approved}, nil
}
