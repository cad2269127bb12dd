// SwarmFlow - Multi-agent orchestration kernel
// Agent command: manage the persistent agent registry
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/swarmflow/swarmflow/pkg/kv"
	"github.com/swarmflow/swarmflow/pkg/swarm"
)

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage registered agents",
	}
	cmd.AddCommand(
		newAgentRegisterCmd(),
		newAgentRemoveCmd(),
		newAgentListCmd(),
	)
	return cmd
}

func newAgentRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register an agent with capability tags",
		RunE:  runAgentRegister,
	}
	cmd.Flags().String("id", "", "Agent ID (generated when omitted)")
	cmd.Flags().StringP("type", "t", "", "Agent type (researcher, coder, analyst, tester, ...)")
	cmd.MarkFlagRequired("type")
	cmd.Flags().StringP("capabilities", "c", "", "Comma-separated capability tags")
	return cmd
}

func newAgentRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <agent_id>",
		Short: "Remove an idle agent",
		Args:  cobra.ExactArgs(1),
		RunE:  runAgentRemove,
	}
}

func newAgentListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered agents",
		RunE:  runAgentList,
	}
	cmd.Flags().StringP("type", "t", "", "Filter by agent type")
	cmd.Flags().StringP("status", "s", "", "Filter by status")
	cmd.Flags().StringP("capability", "c", "", "Filter by capability tag")
	return cmd
}

// openSwarm builds a coordinator over the configured store and loads
// the persisted agents into it. The caller must close the store.
func openSwarm(ctx context.Context) (*swarm.Coordinator, kv.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("Error loading config: %w", err)
	}

	store, err := kv.Open(cfg.Storage.Backend, cfg.StoragePath(), cfg.Storage.MaxFileBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("Error opening store: %w", err)
	}

	coord := swarm.NewCoordinator(swarm.Options{Store: store})
	if _, err := coord.RestoreAgents(ctx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("Error loading agents: %w", err)
	}
	return coord, store, nil
}

func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func runAgentRegister(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	coord, store, err := openSwarm(ctx)
	if err != nil {
		fmt.Println(err)
		return nil
	}
	defer store.Close()

	id, _ := cmd.Flags().GetString("id")
	agentType, _ := cmd.Flags().GetString("type")
	capsRaw, _ := cmd.Flags().GetString("capabilities")

	if id == "" {
		id = fmt.Sprintf("agent-%s", uuid.New().String()[:8])
	}

	agent := swarm.Agent{
		ID:           id,
		Type:         swarm.AgentType(agentType),
		Capabilities: parseCSV(capsRaw),
	}
	if err := coord.RegisterAgent(ctx, agent); err != nil {
		fmt.Printf("Error registering agent: %v\n", err)
		return nil
	}

	fmt.Printf("✓ Registered agent '%s' (%s)\n", id, agentType)
	return nil
}

func runAgentRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	coord, store, err := openSwarm(ctx)
	if err != nil {
		fmt.Println(err)
		return nil
	}
	defer store.Close()

	id := args[0]
	if _, ok := coord.Agent(id); !ok {
		fmt.Printf("✗ Agent %s not found\n", id)
		return nil
	}
	if err := coord.RemoveAgent(ctx, id); err != nil {
		fmt.Printf("Error removing agent: %v\n", err)
		return nil
	}

	fmt.Printf("✓ Removed agent %s\n", id)
	return nil
}

func runAgentList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	coord, store, err := openSwarm(ctx)
	if err != nil {
		fmt.Println(err)
		return nil
	}
	defer store.Close()

	typeFilter, _ := cmd.Flags().GetString("type")
	statusFilter, _ := cmd.Flags().GetString("status")
	capFilter, _ := cmd.Flags().GetString("capability")

	agents := coord.ListAgents(swarm.Filter{
		Type:       swarm.AgentType(typeFilter),
		Status:     swarm.AgentStatus(statusFilter),
		Capability: capFilter,
	})

	if len(agents) == 0 {
		fmt.Println("No agents registered.")
		return nil
	}

	fmt.Println("\nRegistered Agents:")
	fmt.Println("------------------")
	for _, agent := range agents {
		fmt.Printf("  %s (%s)\n", agent.ID, agent.Type)
		fmt.Printf("    Status: %s\n", agent.Status)
		if len(agent.Capabilities) > 0 {
			fmt.Printf("    Capabilities: %s\n", strings.Join(agent.Capabilities, ", "))
		}
		if agent.Performance.TasksCompleted > 0 {
			fmt.Printf("    Completed: %d tasks (avg %.0fms)\n",
				agent.Performance.TasksCompleted, agent.Performance.AvgResponseMS)
		}
	}
	return nil
}
