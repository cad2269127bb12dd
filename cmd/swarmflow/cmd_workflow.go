// SwarmFlow - Multi-agent orchestration kernel
// Workflow command: start, inspect, and review workflows
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/swarmflow/swarmflow/pkg/config"
	"github.com/swarmflow/swarmflow/pkg/kv"
	"github.com/swarmflow/swarmflow/pkg/sparc"
	"github.com/swarmflow/swarmflow/pkg/swarm"
	"github.com/swarmflow/swarmflow/pkg/task"
	"github.com/swarmflow/swarmflow/pkg/template"
	"github.com/swarmflow/swarmflow/pkg/workflow"
)

func newWorkflowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Start and inspect workflows",
	}
	cmd.AddCommand(
		newWorkflowStartCmd(),
		newWorkflowListCmd(),
		newWorkflowHistoryCmd(),
	)
	return cmd
}

func newWorkflowStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <name|file>",
		Short: "Run a workflow to completion",
		Long: `Start a workflow by registered definition name or from a YAML/JSON
file and follow it until it finishes. Approval gates prompt on the
terminal; Ctrl+C cancels the run.`,
		Args: cobra.ExactArgs(1),
		RunE: runWorkflowStart,
	}
	cmd.Flags().String("context", "", "Initial workflow context as JSON")
	cmd.Flags().Bool("approve-gates", false, "Approve all gates without prompting")
	return cmd
}

func newWorkflowListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered workflow definitions",
		RunE:  runWorkflowList,
	}
}

func newWorkflowHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List persisted workflow runs",
		RunE:  runWorkflowHistory,
	}
	cmd.Flags().StringP("status", "s", "", "Filter by status (completed, failed, cancelled)")
	return cmd
}

// newWorkflowEngine builds an engine from config with the definitions
// directory loaded and the task step wired to the persistent agents
// and projects, so CLI runs support the same step types serve does.
// The caller must close both the engine and store.
func newWorkflowEngine(ctx context.Context, cfg *config.Config) (*workflow.Engine, kv.Store, error) {
	store, err := kv.Open(cfg.Storage.Backend, cfg.StoragePath(), cfg.Storage.MaxFileBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("Error opening store: %w", err)
	}

	engine := workflow.NewEngine(workflow.Options{
		Store:            store,
		MaxConcurrent:    cfg.Workflow.MaxConcurrent,
		StepTimeout:      time.Duration(cfg.Workflow.StepTimeoutMS) * time.Millisecond,
		PersistWorkflows: cfg.Workflow.PersistWorkflows,
	})

	swarmCoord := swarm.NewCoordinator(swarm.Options{Store: store})
	if _, err := swarmCoord.RestoreAgents(ctx); err != nil {
		engine.Close()
		store.Close()
		return nil, nil, fmt.Errorf("Error loading agents: %w", err)
	}
	reg := template.NewRegistry()
	if err := template.LoadBuiltins(reg); err != nil {
		engine.Close()
		store.Close()
		return nil, nil, fmt.Errorf("Error loading templates: %w", err)
	}
	sparcEngine := sparc.NewEngine(sparc.Options{Store: store, Templates: reg, PersistProjects: true})
	if _, err := sparcEngine.RestoreProjects(ctx); err != nil {
		engine.Close()
		store.Close()
		return nil, nil, fmt.Errorf("Error loading projects: %w", err)
	}
	engine.RegisterHandler("task", task.NewWorkflowHandler(task.NewCoordinator(task.Options{
		Swarm: swarmCoord,
		SPARC: sparcEngine,
	})))

	if _, err := engine.LoadDefinitionsDir(cfg.DefinitionsDir()); err != nil {
		engine.Close()
		store.Close()
		return nil, nil, fmt.Errorf("Error loading definitions: %w", err)
	}
	return engine, store, nil
}

func runWorkflowStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return nil
	}

	engine, store, err := newWorkflowEngine(cmd.Context(), cfg)
	if err != nil {
		fmt.Println(err)
		return nil
	}
	defer store.Close()
	defer engine.Close()

	contextJSON, _ := cmd.Flags().GetString("context")
	approveGates, _ := cmd.Flags().GetBool("approve-gates")

	var wfContext map[string]any
	if contextJSON != "" {
		if err := json.Unmarshal([]byte(contextJSON), &wfContext); err != nil {
			fmt.Printf("Error: --context is not valid JSON: %v\n", err)
			return nil
		}
	}

	target := args[0]
	var wfID string
	if isDefinitionFile(target) {
		def, err := workflow.LoadDefinitionFile(target)
		if err != nil {
			fmt.Printf("Error loading definition: %v\n", err)
			return nil
		}
		wfID, err = engine.Start(def, wfContext)
		if err != nil {
			fmt.Printf("Error starting workflow: %v\n", err)
			return nil
		}
	} else {
		wfID, err = engine.StartByName(target, wfContext)
		if err != nil {
			fmt.Printf("Error starting workflow: %v\n", err)
			return nil
		}
	}

	fmt.Printf("✓ Workflow started (%s)\n", wfID)
	followWorkflow(engine, wfID, approveGates)
	return nil
}

// isDefinitionFile treats the argument as a file path when it points
// at an existing definition file; anything else is a registered name.
func isDefinitionFile(target string) bool {
	switch {
	case strings.HasSuffix(target, ".yaml"), strings.HasSuffix(target, ".yml"), strings.HasSuffix(target, ".json"):
	case strings.ContainsRune(target, os.PathSeparator):
	default:
		return false
	}
	info, err := os.Stat(target)
	return err == nil && !info.IsDir()
}

// followWorkflow polls the run until it reaches a terminal state,
// prompting on each gate pause. Ctrl+C cancels the workflow.
func followWorkflow(engine *workflow.Engine, wfID string, approveGates bool) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	reader := bufio.NewReader(os.Stdin)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var lastGate string
	for {
		select {
		case <-sigChan:
			if engine.CancelWorkflow(wfID) {
				fmt.Println("\n✗ Workflow cancelled")
			}
			return
		case <-ticker.C:
		}

		snap, ok := engine.Get(wfID)
		if !ok {
			fmt.Printf("✗ Workflow %s disappeared\n", wfID)
			return
		}

		if snap.Status.Terminal() {
			printWorkflowResult(snap)
			return
		}

		gate := snap.PausedForGate
		if gate == nil || gate.GateID == lastGate {
			continue
		}
		lastGate = gate.GateID

		req := snap.PendingGates[gate.GateID]
		fmt.Printf("\nWorkflow paused at gate '%s' (step %d/%d", gate.GateID, gate.StepIndex+1, snap.StepCount)
		if req.StepName != "" {
			fmt.Printf(": %s", req.StepName)
		}
		fmt.Println(")")
		if req.BusinessImpact != "" {
			fmt.Printf("  Impact: %s\n", req.BusinessImpact)
		}

		approved := approveGates
		if !approved {
			answer, err := promptYesNo(reader, "Approve gate?", true)
			if err != nil {
				fmt.Printf("Error reading answer: %v\n", err)
				engine.CancelWorkflow(wfID)
				return
			}
			approved = answer
		}
		if err := engine.ResumeAfterGate(wfID, gate.GateID, approved); err != nil {
			fmt.Printf("Error resuming workflow: %v\n", err)
			return
		}
		if approved {
			fmt.Println("✓ Gate approved, resuming")
		} else {
			fmt.Println("✗ Gate rejected")
		}
	}
}

func printWorkflowResult(snap workflow.Snapshot) {
	switch snap.Status {
	case workflow.StatusCompleted:
		fmt.Printf("✓ Workflow %s completed (%d/%d steps)\n", snap.ID, snap.CurrentStep, snap.StepCount)
	case workflow.StatusCancelled:
		fmt.Printf("✗ Workflow %s cancelled\n", snap.ID)
	default:
		fmt.Printf("✗ Workflow %s %s", snap.ID, snap.Status)
		if snap.Error != "" {
			fmt.Printf(": %s", snap.Error)
		}
		fmt.Println()
	}
}

func runWorkflowList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return nil
	}

	engine, store, err := newWorkflowEngine(cmd.Context(), cfg)
	if err != nil {
		fmt.Println(err)
		return nil
	}
	defer store.Close()
	defer engine.Close()

	defs := engine.Definitions()
	if len(defs) == 0 {
		fmt.Printf("No workflow definitions in %s.\n", cfg.DefinitionsDir())
		return nil
	}

	fmt.Println("\nWorkflow Definitions:")
	fmt.Println("---------------------")
	for _, def := range defs {
		fmt.Printf("  %s", def.Name)
		if def.Version != "" {
			fmt.Printf(" (v%s)", def.Version)
		}
		fmt.Printf(" - %d steps\n", len(def.Steps))
		if def.Description != "" {
			fmt.Printf("    %s\n", def.Description)
		}
	}
	return nil
}

func runWorkflowHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return nil
	}

	store, err := kv.Open(cfg.Storage.Backend, cfg.StoragePath(), cfg.Storage.MaxFileBytes)
	if err != nil {
		fmt.Printf("Error opening store: %v\n", err)
		return nil
	}
	defer store.Close()

	statusFilter, _ := cmd.Flags().GetString("status")

	entries, err := store.Search(ctx, "*", kv.NamespaceWorkflows)
	if err != nil {
		fmt.Printf("Error reading workflow history: %v\n", err)
		return nil
	}

	var runs []workflow.Snapshot
	for _, value := range entries {
		raw, err := json.Marshal(value)
		if err != nil {
			continue
		}
		var snap workflow.Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil || snap.ID == "" {
			continue
		}
		if statusFilter != "" && string(snap.Status) != statusFilter {
			continue
		}
		runs = append(runs, snap)
	}

	if len(runs) == 0 {
		fmt.Println("No workflow runs recorded.")
		return nil
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].StartTime.After(runs[j].StartTime) })

	fmt.Println("\nWorkflow Runs:")
	fmt.Println("--------------")
	for _, snap := range runs {
		fmt.Printf("  %s %s (%s)\n", snap.ID, snap.Name, snap.Status)
		fmt.Printf("    Started: %s\n", snap.StartTime.Format("2006-01-02 15:04:05"))
		if snap.EndTime != nil {
			fmt.Printf("    Duration: %s\n", snap.EndTime.Sub(snap.StartTime).Round(time.Millisecond))
		}
		if snap.Error != "" {
			fmt.Printf("    Error: %s\n", snap.Error)
		}
	}
	return nil
}
