package mcptool

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/swarmflow/swarmflow/pkg/swarm"
)

// --- register_agent ---

type RegisterAgentInput struct {
	ID           string   `json:"id,omitempty" jsonschema:"agent id; generated when empty"`
	Type         string   `json:"type" jsonschema:"agent type, e.g. researcher, coder, analyst, coordinator"`
	Capabilities []string `json:"capabilities,omitempty" jsonschema:"capability tags used for task dispatch"`
}

type RegisterAgentOutput struct {
	Envelope
	Agent *AgentView `json:"agent,omitempty"`
}

func (s *Server) registerAgent(ctx context.Context, _ *mcp.CallToolRequest, in RegisterAgentInput) (*mcp.CallToolResult, RegisterAgentOutput, error) {
	id := in.ID
	if id == "" {
		id = fmt.Sprintf("agent-%s", uuid.New().String()[:8])
	}
	agent := swarm.Agent{
		ID:           id,
		Type:         swarm.AgentType(in.Type),
		Capabilities: in.Capabilities,
	}
	if err := s.swarm.RegisterAgent(ctx, agent); err != nil {
		return nil, RegisterAgentOutput{Envelope: fail(err)}, nil
	}

	registered, found := s.swarm.Agent(id)
	if !found {
		registered = agent
	}
	view := agentView(registered)
	return nil, RegisterAgentOutput{Envelope: ok(), Agent: &view}, nil
}

// --- remove_agent ---

type RemoveAgentInput struct {
	AgentID string `json:"agent_id" jsonschema:"agent id"`
}

type RemoveAgentOutput struct {
	Envelope
	AgentID string `json:"agent_id,omitempty"`
}

func (s *Server) removeAgent(ctx context.Context, _ *mcp.CallToolRequest, in RemoveAgentInput) (*mcp.CallToolResult, RemoveAgentOutput, error) {
	if err := s.swarm.RemoveAgent(ctx, in.AgentID); err != nil {
		return nil, RemoveAgentOutput{Envelope: fail(err)}, nil
	}
	return nil, RemoveAgentOutput{Envelope: ok(), AgentID: in.AgentID}, nil
}

// --- list_agents ---

type ListAgentsInput struct {
	Type       string `json:"type,omitempty" jsonschema:"filter by agent type"`
	Status     string `json:"status,omitempty" jsonschema:"filter by status: idle, busy, error, offline"`
	Capability string `json:"capability,omitempty" jsonschema:"filter by capability tag"`
}

type ListAgentsOutput struct {
	Envelope
	Agents []AgentView `json:"agents"`
	Count  int         `json:"count"`
}

func (s *Server) listAgents(_ context.Context, _ *mcp.CallToolRequest, in ListAgentsInput) (*mcp.CallToolResult, ListAgentsOutput, error) {
	agents := s.swarm.ListAgents(swarm.Filter{
		Type:       swarm.AgentType(in.Type),
		Status:     swarm.AgentStatus(in.Status),
		Capability: in.Capability,
	})
	views := make([]AgentView, len(agents))
	for i, a := range agents {
		views[i] = agentView(a)
	}
	return nil, ListAgentsOutput{Envelope: ok(), Agents: views, Count: len(views)}, nil
}
