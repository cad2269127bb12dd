// SwarmFlow - Multi-agent orchestration kernel
// MCP tool surface: kernel operations as typed stdio tools
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package mcptool

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/swarmflow/swarmflow/pkg/core"
	"github.com/swarmflow/swarmflow/pkg/logger"
	"github.com/swarmflow/swarmflow/pkg/sparc"
	"github.com/swarmflow/swarmflow/pkg/swarm"
	"github.com/swarmflow/swarmflow/pkg/workflow"
)

// Options wires the kernel components the tool surface fronts. Swarm,
// Workflows, and SPARC are all required.
type Options struct {
	Swarm     *swarm.Coordinator
	Workflows *workflow.Engine
	SPARC     *sparc.Engine
	Version   string
}

// Server exposes the orchestration kernel as MCP tools over stdio.
// Every handler returns a structured envelope carrying success or a
// classified error; no Go error crosses the protocol boundary.
type Server struct {
	swarm     *swarm.Coordinator
	workflows *workflow.Engine
	sparc     *sparc.Engine
	srv       *mcp.Server
}

func NewServer(opts Options) (*Server, error) {
	if opts.Swarm == nil || opts.Workflows == nil || opts.SPARC == nil {
		return nil, fmt.Errorf("mcp server needs swarm, workflow, and sparc components: %w", core.ErrValidationFailed)
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		swarm:     opts.Swarm,
		workflows: opts.Workflows,
		sparc:     opts.SPARC,
		srv:       mcp.NewServer(&mcp.Implementation{Name: "swarmflow", Version: version}, nil),
	}
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.srv, &mcp.Tool{Name: "create_project", Description: "Create a project at the start of the five-phase pipeline"}, s.createProject)
	mcp.AddTool(s.srv, &mcp.Tool{Name: "execute_phase", Description: "Execute one pipeline phase for a project"}, s.executePhase)
	mcp.AddTool(s.srv, &mcp.Tool{Name: "get_project_status", Description: "Report a project's pipeline position and progress"}, s.getProjectStatus)
	mcp.AddTool(s.srv, &mcp.Tool{Name: "generate_artifacts", Description: "Render completed phase products as documents"}, s.generateArtifacts)
	mcp.AddTool(s.srv, &mcp.Tool{Name: "validate_completion", Description: "Check a project's production readiness"}, s.validateCompletion)
	mcp.AddTool(s.srv, &mcp.Tool{Name: "list_projects", Description: "List projects, optionally filtered by domain and status"}, s.listProjects)
	mcp.AddTool(s.srv, &mcp.Tool{Name: "refine_implementation", Description: "Run a refinement iteration from categorized feedback"}, s.refineImplementation)
	mcp.AddTool(s.srv, &mcp.Tool{Name: "apply_template", Description: "Seed a project's phases from a domain template"}, s.applyTemplate)
	mcp.AddTool(s.srv, &mcp.Tool{Name: "execute_full_workflow", Description: "Run every remaining pipeline phase in order"}, s.executeFullWorkflow)
	mcp.AddTool(s.srv, &mcp.Tool{Name: "start_workflow", Description: "Start a workflow from an inline definition or a registered name"}, s.startWorkflow)
	mcp.AddTool(s.srv, &mcp.Tool{Name: "cancel_workflow", Description: "Cancel an active workflow"}, s.cancelWorkflow)
	mcp.AddTool(s.srv, &mcp.Tool{Name: "resume_after_gate", Description: "Approve or reject a gate a workflow is paused on"}, s.resumeAfterGate)
	mcp.AddTool(s.srv, &mcp.Tool{Name: "register_agent", Description: "Register an agent with capability tags"}, s.registerAgent)
	mcp.AddTool(s.srv, &mcp.Tool{Name: "remove_agent", Description: "Remove an idle agent from the registry"}, s.removeAgent)
	mcp.AddTool(s.srv, &mcp.Tool{Name: "list_agents", Description: "List registered agents, optionally filtered"}, s.listAgents)
}

// Run serves the tool surface on stdio until ctx is cancelled or the
// client disconnects.
func (s *Server) Run(ctx context.Context) error {
	logger.InfoCF("mcp", "MCP server listening", map[string]any{"transport": "stdio"})
	return s.srv.Run(ctx, &mcp.StdioTransport{})
}

// --- Result envelope ---

// Envelope is the shared tail of every tool result. Success is false
// exactly when Error is set; Kind carries the error classification.
type Envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

func ok() Envelope { return Envelope{Success: true} }

func fail(err error) Envelope {
	return Envelope{Success: false, Error: err.Error(), Kind: core.Kind(err)}
}
