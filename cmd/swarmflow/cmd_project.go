// SwarmFlow - Multi-agent orchestration kernel
// Project command: drive the five-phase pipeline
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/swarmflow/swarmflow/pkg/kv"
	"github.com/swarmflow/swarmflow/pkg/sparc"
	"github.com/swarmflow/swarmflow/pkg/template"
)

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Create and drive pipeline projects",
	}
	cmd.AddCommand(
		newProjectCreateCmd(),
		newProjectPhaseCmd(),
		newProjectStatusCmd(),
		newProjectArtifactsCmd(),
		newProjectValidateCmd(),
		newProjectListCmd(),
		newProjectRefineCmd(),
		newProjectTemplateCmd(),
		newProjectFullCmd(),
	)
	return cmd
}

func newProjectCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project at the start of the pipeline",
		RunE:  runProjectCreate,
	}
	cmd.Flags().StringP("name", "n", "", "Project name")
	cmd.MarkFlagRequired("name")
	cmd.Flags().StringP("domain", "d", "", "Project domain")
	cmd.Flags().String("complexity", "", "Complexity (simple, moderate, high, complex, enterprise)")
	cmd.Flags().StringP("requirements", "r", "", "Comma-separated requirements")
	cmd.Flags().String("constraints", "", "Comma-separated constraints")
	return cmd
}

func newProjectPhaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "phase <project_id> <phase>",
		Short: "Execute one pipeline phase",
		Args:  cobra.ExactArgs(2),
		RunE:  runProjectPhase,
	}
}

func newProjectStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <project_id>",
		Short: "Show a project's pipeline position",
		Args:  cobra.ExactArgs(1),
		RunE:  runProjectStatus,
	}
}

func newProjectArtifactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifacts <project_id>",
		Short: "Render completed phase products as documents",
		Args:  cobra.ExactArgs(1),
		RunE:  runProjectArtifacts,
	}
	cmd.Flags().StringP("types", "t", "", "Comma-separated artifact types (default: all available)")
	cmd.Flags().StringP("format", "f", "markdown", "Output format (markdown, json)")
	cmd.Flags().StringP("output", "o", "", "Directory to write artifact files into")
	return cmd
}

func newProjectValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <project_id>",
		Short: "Check production readiness",
		Args:  cobra.ExactArgs(1),
		RunE:  runProjectValidate,
	}
}

func newProjectListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE:  runProjectList,
	}
	cmd.Flags().StringP("domain", "d", "", "Filter by domain")
	cmd.Flags().StringP("status", "s", "", "Filter by status (active, completed, failed)")
	return cmd
}

func newProjectRefineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refine <project_id>",
		Short: "Run a refinement iteration from feedback",
		Args:  cobra.ExactArgs(1),
		RunE:  runProjectRefine,
	}
	cmd.Flags().String("performance", "", "Comma-separated performance issues")
	cmd.Flags().String("security", "", "Comma-separated security issues")
	cmd.Flags().String("scalability", "", "Comma-separated scalability issues")
	cmd.Flags().String("quality", "", "Comma-separated code quality issues")
	return cmd
}

func newProjectTemplateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "template <project_id> <template>",
		Short: "Seed a project's phases from a domain template",
		Args:  cobra.ExactArgs(2),
		RunE:  runProjectTemplate,
	}
}

func newProjectFullCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "full <project_id>",
		Short: "Run every remaining phase in order",
		Args:  cobra.ExactArgs(1),
		RunE:  runProjectFull,
	}
	cmd.Flags().Bool("validate", false, "Validate completion after the pipeline finishes")
	return cmd
}

// openSPARC builds an engine over the configured store with builtin
// templates and persisted projects loaded. The caller must close the
// store.
func openSPARC(ctx context.Context) (*sparc.Engine, kv.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("Error loading config: %w", err)
	}

	store, err := kv.Open(cfg.Storage.Backend, cfg.StoragePath(), cfg.Storage.MaxFileBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("Error opening store: %w", err)
	}

	reg := template.NewRegistry()
	if err := template.LoadBuiltins(reg); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("Error loading templates: %w", err)
	}

	engine := sparc.NewEngine(sparc.Options{
		Store:           store,
		Templates:       reg,
		PersistProjects: true,
	})
	if _, err := engine.RestoreProjects(ctx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("Error loading projects: %w", err)
	}
	return engine, store, nil
}

func parsePhase(s string) (sparc.Phase, bool) {
	p := sparc.Phase(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range sparc.PhaseOrder {
		if known == p {
			return p, true
		}
	}
	return "", false
}

func runProjectCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	engine, store, err := openSPARC(ctx)
	if err != nil {
		fmt.Println(err)
		return nil
	}
	defer store.Close()

	name, _ := cmd.Flags().GetString("name")
	domain, _ := cmd.Flags().GetString("domain")
	complexity, _ := cmd.Flags().GetString("complexity")
	requirements, _ := cmd.Flags().GetString("requirements")
	constraints, _ := cmd.Flags().GetString("constraints")

	p, err := engine.CreateProject(sparc.NewProject{
		Name:         name,
		Domain:       domain,
		Complexity:   complexity,
		Requirements: parseCSV(requirements),
		Constraints:  parseCSV(constraints),
	})
	if err != nil {
		fmt.Printf("Error creating project: %v\n", err)
		return nil
	}

	fmt.Printf("✓ Created project '%s' (%s)\n", p.Name, p.ID)
	fmt.Printf("    Domain: %s\n", p.Domain)
	fmt.Printf("    Complexity: %s\n", p.Complexity)
	fmt.Printf("    Next phase: %s\n", p.CurrentPhase)
	return nil
}

func runProjectPhase(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	engine, store, err := openSPARC(ctx)
	if err != nil {
		fmt.Println(err)
		return nil
	}
	defer store.Close()

	phase, ok := parsePhase(args[1])
	if !ok {
		fmt.Printf("Error: unknown phase %q (phases: %s)\n", args[1], joinPhases())
		return nil
	}

	result, err := engine.ExecutePhase(ctx, args[0], phase)
	if err != nil {
		fmt.Printf("Error executing phase: %v\n", err)
		return nil
	}

	printPhaseResult(*result)
	return nil
}

func joinPhases() string {
	names := make([]string, len(sparc.PhaseOrder))
	for i, p := range sparc.PhaseOrder {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

func printPhaseResult(result sparc.PhaseResult) {
	fmt.Printf("✓ Phase %s completed (quality %.2f)\n", result.Phase, result.Metrics.QualityScore)
	for _, d := range result.Deliverables {
		fmt.Printf("    - %s\n", d)
	}
	if result.NextPhase != "" {
		fmt.Printf("    Next phase: %s\n", result.NextPhase)
	}
}

func runProjectStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	engine, store, err := openSPARC(ctx)
	if err != nil {
		fmt.Println(err)
		return nil
	}
	defer store.Close()

	p, err := engine.Project(args[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return nil
	}

	fmt.Printf("\n%s (%s)\n", p.Name, p.ID)
	fmt.Printf("  Domain: %s, complexity: %s\n", p.Domain, p.Complexity)
	fmt.Printf("  Status: %s, progress: %.0f%%\n", p.Status(), p.OverallProgress*100)
	fmt.Println("  Phases:")
	for _, phase := range sparc.PhaseOrder {
		mark := " "
		if st := p.PhaseStatus[phase]; st != nil {
			switch st.Status {
			case sparc.PhaseCompleted:
				mark = "✓"
			case sparc.PhaseFailed:
				mark = "✗"
			case sparc.PhaseInProgress:
				mark = "~"
			}
		}
		fmt.Printf("    %s %s\n", mark, phase)
	}
	if len(p.Refinements) > 0 {
		fmt.Printf("  Refinement iterations: %d\n", len(p.Refinements))
	}
	return nil
}

func runProjectArtifacts(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	engine, store, err := openSPARC(ctx)
	if err != nil {
		fmt.Println(err)
		return nil
	}
	defer store.Close()

	typesRaw, _ := cmd.Flags().GetString("types")
	format, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")

	artifacts, err := engine.GenerateArtifacts(args[0], parseCSV(typesRaw), format)
	if err != nil {
		fmt.Printf("Error generating artifacts: %v\n", err)
		return nil
	}

	if output == "" {
		for _, art := range artifacts {
			fmt.Printf("--- %s (%s) ---\n", art.Name, art.Type)
			fmt.Println(art.Content)
		}
		return nil
	}

	if err := os.MkdirAll(output, 0o755); err != nil {
		fmt.Printf("Error creating %s: %v\n", output, err)
		return nil
	}
	ext := ".md"
	if format == "json" {
		ext = ".json"
	}
	for _, art := range artifacts {
		name := strings.ReplaceAll(strings.ToLower(art.Name), " ", "-") + ext
		path := filepath.Join(output, name)
		if err := os.WriteFile(path, []byte(art.Content), 0o644); err != nil {
			fmt.Printf("✗ %s: %v\n", path, err)
			continue
		}
		fmt.Printf("✓ Wrote %s\n", path)
	}
	return nil
}

func runProjectValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	engine, store, err := openSPARC(ctx)
	if err != nil {
		fmt.Println(err)
		return nil
	}
	defer store.Close()

	report, err := engine.ValidateCompletion(args[0])
	if err != nil {
		fmt.Printf("Error validating project: %v\n", err)
		return nil
	}

	if report.ReadyForProduction {
		fmt.Printf("✓ Ready for production (score %.2f)\n", report.Score)
	} else {
		fmt.Printf("✗ Not ready for production (score %.2f)\n", report.Score)
	}
	for _, check := range report.Checks {
		mark := "✓"
		if !check.Passed {
			mark = "✗"
		}
		fmt.Printf("    %s %s", mark, check.Criterion)
		if !check.Passed && check.Recommendation != "" {
			fmt.Printf(" - %s", check.Recommendation)
		}
		fmt.Println()
	}
	return nil
}

func runProjectList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	engine, store, err := openSPARC(ctx)
	if err != nil {
		fmt.Println(err)
		return nil
	}
	defer store.Close()

	domain, _ := cmd.Flags().GetString("domain")
	status, _ := cmd.Flags().GetString("status")

	projects := engine.ListProjects(domain, status)
	if len(projects) == 0 {
		fmt.Println("No projects.")
		return nil
	}

	fmt.Println("\nProjects:")
	fmt.Println("---------")
	for _, p := range projects {
		fmt.Printf("  %s %s (%s)\n", p.ID, p.Name, p.Status())
		fmt.Printf("    Domain: %s, phase: %s, progress: %.0f%%\n",
			p.Domain, p.CurrentPhase, p.OverallProgress*100)
	}
	return nil
}

func runProjectRefine(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	engine, store, err := openSPARC(ctx)
	if err != nil {
		fmt.Println(err)
		return nil
	}
	defer store.Close()

	performance, _ := cmd.Flags().GetString("performance")
	security, _ := cmd.Flags().GetString("security")
	scalability, _ := cmd.Flags().GetString("scalability")
	quality, _ := cmd.Flags().GetString("quality")

	fb := sparc.Feedback{
		PerformanceIssues: parseCSV(performance),
		SecurityIssues:    parseCSV(security),
		ScalabilityIssues: parseCSV(scalability),
		CodeQualityIssues: parseCSV(quality),
	}

	result, err := engine.RefineImplementation(ctx, args[0], fb)
	if err != nil {
		fmt.Printf("Error refining: %v\n", err)
		return nil
	}

	printPhaseResult(*result)
	return nil
}

func runProjectTemplate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	engine, store, err := openSPARC(ctx)
	if err != nil {
		fmt.Println(err)
		return nil
	}
	defer store.Close()

	app, err := engine.ApplyTemplate(args[0], args[1])
	if err != nil {
		fmt.Printf("Error applying template: %v\n", err)
		return nil
	}

	fmt.Printf("✓ Applied template %s (score %.2f)\n", app.TemplateID, app.Score)
	for _, c := range app.Customizations {
		fmt.Printf("    - %s\n", c)
	}
	return nil
}

func runProjectFull(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	engine, store, err := openSPARC(ctx)
	if err != nil {
		fmt.Println(err)
		return nil
	}
	defer store.Close()

	validate, _ := cmd.Flags().GetBool("validate")

	results, err := engine.RunPipeline(ctx, args[0])
	for _, result := range results {
		fmt.Printf("✓ %s (quality %.2f)\n", result.Phase, result.Metrics.QualityScore)
	}
	if err != nil {
		fmt.Printf("✗ Pipeline stopped: %v\n", err)
		return nil
	}
	fmt.Println("✓ Pipeline complete")

	if validate {
		report, err := engine.ValidateCompletion(args[0])
		if err != nil {
			fmt.Printf("Error validating project: %v\n", err)
			return nil
		}
		if report.ReadyForProduction {
			fmt.Printf("✓ Ready for production (score %.2f)\n", report.Score)
		} else {
			fmt.Printf("✗ Not ready for production (score %.2f)\n", report.Score)
		}
	}
	return nil
}
