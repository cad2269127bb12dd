// SwarmFlow - Multi-agent orchestration kernel
// Schedule command: manage scheduled workflow triggers
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/swarmflow/swarmflow/pkg/workflow"
)

func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage scheduled workflow triggers",
	}
	cmd.AddCommand(
		newScheduleListCmd(),
		newScheduleAddCmd(),
		newScheduleRemoveCmd(),
		newScheduleEnableCmd(),
		newScheduleDisableCmd(),
	)
	return cmd
}

func newScheduleListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all scheduled jobs",
		RunE:  runScheduleList,
	}
}

func newScheduleAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a new scheduled job",
		RunE:  runScheduleAdd,
	}
	cmd.Flags().StringP("name", "n", "", "Job name")
	cmd.MarkFlagRequired("name")
	cmd.Flags().StringP("workflow", "w", "", "Workflow definition to start")
	cmd.MarkFlagRequired("workflow")
	cmd.Flags().Int64P("every", "e", 0, "Run every N seconds")
	cmd.Flags().StringP("cron", "c", "", "Cron expression (e.g. '0 9 * * *')")
	cmd.Flags().String("context", "", "Workflow context as JSON")
	cmd.Flags().Bool("disabled", false, "Create the job disabled")
	return cmd
}

func newScheduleRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <job_id>",
		Short: "Remove a job by ID",
		Args:  cobra.ExactArgs(1),
		RunE:  runScheduleRemove,
	}
}

func newScheduleEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable <job_id>",
		Short: "Enable a job",
		Args:  cobra.ExactArgs(1),
		RunE:  runScheduleEnable,
	}
}

func newScheduleDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <job_id>",
		Short: "Disable a job",
		Args:  cobra.ExactArgs(1),
		RunE:  runScheduleDisable,
	}
}

func getSchedulePath() (string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", fmt.Errorf("Error loading config: %w", err)
	}
	return filepath.Join(cfg.WorkspacePath(), "schedules", "jobs.json"), nil
}

func runScheduleList(cmd *cobra.Command, args []string) error {
	storePath, err := getSchedulePath()
	if err != nil {
		fmt.Println(err)
		return nil
	}

	sched := workflow.NewScheduler(storePath, nil)
	jobs := sched.ListJobs()

	if len(jobs) == 0 {
		fmt.Println("No scheduled jobs.")
		return nil
	}

	fmt.Println("\nScheduled Jobs:")
	fmt.Println("----------------")
	for _, job := range jobs {
		var schedule string
		if job.Schedule.Kind == "every" && job.Schedule.EveryMS != nil {
			schedule = fmt.Sprintf("every %ds", *job.Schedule.EveryMS/1000)
		} else {
			schedule = job.Schedule.Expr
		}

		nextRun := "pending"
		if job.NextRunMS > 0 {
			nextRun = time.UnixMilli(job.NextRunMS).Format("2006-01-02 15:04")
		}

		status := "enabled"
		if !job.Enabled {
			status = "disabled"
		}

		fmt.Printf("  %s (%s)\n", job.Name, job.ID)
		fmt.Printf("    Workflow: %s\n", job.Workflow)
		fmt.Printf("    Schedule: %s\n", schedule)
		fmt.Printf("    Status: %s\n", status)
		fmt.Printf("    Next run: %s\n", nextRun)
	}
	return nil
}

func runScheduleAdd(cmd *cobra.Command, args []string) error {
	storePath, err := getSchedulePath()
	if err != nil {
		fmt.Println(err)
		return nil
	}

	name, _ := cmd.Flags().GetString("name")
	workflowName, _ := cmd.Flags().GetString("workflow")
	everySec, _ := cmd.Flags().GetInt64("every")
	cronExpr, _ := cmd.Flags().GetString("cron")
	contextJSON, _ := cmd.Flags().GetString("context")
	disabled, _ := cmd.Flags().GetBool("disabled")

	if everySec == 0 && cronExpr == "" {
		fmt.Println("Error: Either --every or --cron must be specified")
		return nil
	}

	var schedule workflow.Schedule
	if everySec != 0 {
		everyMS := everySec * 1000
		schedule = workflow.Schedule{
			Kind:    "every",
			EveryMS: &everyMS,
		}
	} else {
		schedule = workflow.Schedule{
			Kind: "cron",
			Expr: cronExpr,
		}
	}

	var wfContext map[string]any
	if contextJSON != "" {
		if err := json.Unmarshal([]byte(contextJSON), &wfContext); err != nil {
			fmt.Printf("Error: --context is not valid JSON: %v\n", err)
			return nil
		}
	}

	sched := workflow.NewScheduler(storePath, nil)
	job, err := sched.AddJob(name, schedule, workflowName, wfContext, !disabled)
	if err != nil {
		fmt.Printf("Error adding job: %v\n", err)
		return nil
	}

	fmt.Printf("✓ Added job '%s' (%s)\n", job.Name, job.ID)
	return nil
}

func runScheduleRemove(cmd *cobra.Command, args []string) error {
	storePath, err := getSchedulePath()
	if err != nil {
		fmt.Println(err)
		return nil
	}

	jobID := args[0]
	sched := workflow.NewScheduler(storePath, nil)
	if sched.RemoveJob(jobID) {
		fmt.Printf("✓ Removed job %s\n", jobID)
	} else {
		fmt.Printf("✗ Job %s not found\n", jobID)
	}
	return nil
}

func runScheduleEnable(cmd *cobra.Command, args []string) error {
	storePath, err := getSchedulePath()
	if err != nil {
		fmt.Println(err)
		return nil
	}

	jobID := args[0]
	sched := workflow.NewScheduler(storePath, nil)
	if sched.EnableJob(jobID, true) {
		fmt.Printf("✓ Job %s enabled\n", jobID)
	} else {
		fmt.Printf("✗ Job %s not found\n", jobID)
	}
	return nil
}

func runScheduleDisable(cmd *cobra.Command, args []string) error {
	storePath, err := getSchedulePath()
	if err != nil {
		fmt.Println(err)
		return nil
	}

	jobID := args[0]
	sched := workflow.NewScheduler(storePath, nil)
	if sched.EnableJob(jobID, false) {
		fmt.Printf("✓ Job %s disabled\n", jobID)
	} else {
		fmt.Printf("✗ Job %s not found\n", jobID)
	}
	return nil
}
