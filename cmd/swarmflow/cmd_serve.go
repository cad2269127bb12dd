// SwarmFlow - Multi-agent orchestration kernel
// Serve command: compose and run the kernel
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/swarmflow/swarmflow/pkg/bus"
	"github.com/swarmflow/swarmflow/pkg/config"
	"github.com/swarmflow/swarmflow/pkg/dashboard"
	"github.com/swarmflow/swarmflow/pkg/kv"
	"github.com/swarmflow/swarmflow/pkg/logger"
	"github.com/swarmflow/swarmflow/pkg/mcptool"
	"github.com/swarmflow/swarmflow/pkg/project"
	"github.com/swarmflow/swarmflow/pkg/sparc"
	"github.com/swarmflow/swarmflow/pkg/swarm"
	"github.com/swarmflow/swarmflow/pkg/task"
	"github.com/swarmflow/swarmflow/pkg/template"
	"github.com/swarmflow/swarmflow/pkg/workflow"
)

// kernelRunner holds the initialized kernel components. The lifecycle
// is split so callers can manage it: createKernelRunner only builds,
// run starts services and blocks, stop tears down in reverse order.
type kernelRunner struct {
	cfg        *config.Config
	store      kv.Store
	events     *bus.EventBus
	templates  *template.Registry
	swarm      *swarm.Coordinator
	sparc      *sparc.Engine
	workflows  *workflow.Engine
	tasks      *task.Coordinator
	projects   *project.Coordinator
	scheduler  *workflow.Scheduler
	watcher    *workflow.DefinitionWatcher
	heartbeats *swarm.HeartbeatMonitor
	dash       *dashboard.Server
	ctx        context.Context
	cancel     context.CancelFunc

	// quiet suppresses stdout prints. Required in MCP mode: stdout
	// carries the protocol stream.
	quiet bool
}

// createKernelRunner initializes every kernel component without
// starting any service.
func createKernelRunner(cfg *config.Config, withDashboard, quiet bool) (*kernelRunner, error) {
	store, err := kv.Open(cfg.Storage.Backend, cfg.StoragePath(), cfg.Storage.MaxFileBytes)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	events := bus.NewEventBus()

	templates := template.NewRegistry()
	if err := template.LoadBuiltins(templates); err != nil {
		store.Close()
		return nil, fmt.Errorf("load builtin templates: %w", err)
	}

	swarmCoord := swarm.NewCoordinator(swarm.Options{
		Store:              store,
		Bus:                events,
		Topology:           swarm.Topology(cfg.Swarm.DefaultTopology),
		CoordinationBudget: time.Duration(cfg.Swarm.CoordinationBudgetMS) * time.Millisecond,
		CoordinationRate:   cfg.Swarm.CoordinationRate,
	})

	sparcEngine := sparc.NewEngine(sparc.Options{
		Store:           store,
		Bus:             events,
		Templates:       templates,
		PersistProjects: true,
	})

	workflowEngine := workflow.NewEngine(workflow.Options{
		Store:            store,
		Bus:              events,
		MaxConcurrent:    cfg.Workflow.MaxConcurrent,
		StepTimeout:      time.Duration(cfg.Workflow.StepTimeoutMS) * time.Millisecond,
		PersistWorkflows: cfg.Workflow.PersistWorkflows,
	})

	taskCoord := task.NewCoordinator(task.Options{
		Swarm: swarmCoord,
		SPARC: sparcEngine,
		Bus:   events,
	})
	workflowEngine.RegisterHandler("task", task.NewWorkflowHandler(taskCoord))

	workspace := project.NewWorkspace(filepath.Join(cfg.WorkspacePath(), "projects"), store)
	projectCoord, err := project.NewCoordinator(project.Options{
		Workspace: workspace,
		SPARC:     sparcEngine,
		Workflows: workflowEngine,
		Swarm:     swarmCoord,
		Store:     store,
		Bus:       events,
	})
	if err != nil {
		workflowEngine.Close()
		events.Close()
		store.Close()
		return nil, fmt.Errorf("create project coordinator: %w", err)
	}

	schedulePath := filepath.Join(cfg.WorkspacePath(), "schedules", "jobs.json")
	scheduler := workflow.NewScheduler(schedulePath, workflowEngine)

	var heartbeats *swarm.HeartbeatMonitor
	if cfg.Swarm.HeartbeatSec > 0 {
		heartbeats = swarm.NewHeartbeatMonitor(swarmCoord, events, &swarm.HeartbeatConfig{
			CheckInterval:  time.Duration(cfg.Swarm.HeartbeatSec) * time.Second,
			OfflineTimeout: time.Duration(cfg.Swarm.OfflineAfterSec) * time.Second,
		})
	}

	var watcher *workflow.DefinitionWatcher
	if cfg.Workflow.WatchDefinitions {
		watcher, err = workflow.NewDefinitionWatcher(cfg.DefinitionsDir(), workflowEngine)
		if err != nil {
			logger.WarnCF("kernel", "Definition watcher unavailable", map[string]any{"error": err.Error()})
			watcher = nil
		}
	}

	var dash *dashboard.Server
	if cfg.Dashboard.Enabled || withDashboard {
		dash = dashboard.NewServer(dashboard.Options{
			Host:      cfg.Dashboard.Host,
			Port:      cfg.Dashboard.Port,
			Token:     cfg.Dashboard.Token,
			Swarm:     swarmCoord,
			Workflows: workflowEngine,
			SPARC:     sparcEngine,
			Bus:       events,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &kernelRunner{
		cfg:        cfg,
		store:      store,
		events:     events,
		templates:  templates,
		swarm:      swarmCoord,
		sparc:      sparcEngine,
		workflows:  workflowEngine,
		tasks:      taskCoord,
		projects:   projectCoord,
		scheduler:  scheduler,
		watcher:    watcher,
		heartbeats: heartbeats,
		dash:       dash,
		ctx:        ctx,
		cancel:     cancel,
		quiet:      quiet,
	}, nil
}

// run restores persisted state, starts the kernel services, and blocks
// until the context is cancelled.
func (r *kernelRunner) run() error {
	restored, err := r.swarm.RestoreAgents(r.ctx)
	if err != nil {
		logger.WarnCF("kernel", "Agent restore failed", map[string]any{"error": err.Error()})
	} else if restored > 0 && !r.quiet {
		fmt.Printf("✓ Restored %d agents\n", restored)
	}

	projects, err := r.sparc.RestoreProjects(r.ctx)
	if err != nil {
		logger.WarnCF("kernel", "Project restore failed", map[string]any{"error": err.Error()})
	} else if projects > 0 && !r.quiet {
		fmt.Printf("✓ Restored %d projects\n", projects)
	}

	loaded, err := r.workflows.LoadDefinitionsDir(r.cfg.DefinitionsDir())
	if err != nil {
		logger.WarnCF("kernel", "Definition load failed", map[string]any{"error": err.Error()})
	} else if loaded > 0 && !r.quiet {
		fmt.Printf("✓ Loaded %d workflow definitions\n", loaded)
	}

	if err := r.scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	if !r.quiet {
		fmt.Println("✓ Schedule service started")
	}

	if r.watcher != nil {
		if err := r.watcher.Start(r.ctx); err != nil {
			logger.WarnCF("kernel", "Definition watcher failed to start", map[string]any{"error": err.Error()})
		} else if !r.quiet {
			fmt.Printf("✓ Watching %s for definition changes\n", r.cfg.DefinitionsDir())
		}
	}

	if r.heartbeats != nil {
		if err := r.heartbeats.Start(r.ctx); err != nil {
			logger.WarnCF("kernel", "Heartbeat monitor failed to start", map[string]any{"error": err.Error()})
		} else if !r.quiet {
			fmt.Printf("✓ Heartbeat monitor running (offline after %ds)\n", r.cfg.Swarm.OfflineAfterSec)
		}
	}

	if r.dash != nil {
		if err := r.dash.Start(); err != nil {
			return fmt.Errorf("start dashboard: %w", err)
		}
		if !r.quiet {
			fmt.Printf("✓ Dashboard available at http://%s\n", r.dash.Addr())
		}
	}

	logger.InfoCF("kernel", "Kernel started", map[string]any{
		"backend":  r.cfg.Storage.Backend,
		"topology": r.cfg.Swarm.DefaultTopology,
	})
	if !r.quiet {
		fmt.Printf("✓ Kernel started (storage: %s, topology: %s)\n",
			r.cfg.Storage.Backend, r.cfg.Swarm.DefaultTopology)
		fmt.Println("Press Ctrl+C to stop")
	}

	<-r.ctx.Done()
	return nil
}

// stop tears the kernel down in reverse start order, bounded by a
// shutdown timeout.
func (r *kernelRunner) stop() {
	logger.InfoC("kernel", "Shutting down...")
	if !r.quiet {
		fmt.Println("\nShutting down...")
	}

	r.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if r.dash != nil {
		r.dash.Stop(ctx)
	}
	if r.heartbeats != nil {
		r.heartbeats.Stop()
	}
	if r.watcher != nil {
		r.watcher.Stop()
	}
	r.scheduler.Stop()
	r.workflows.Close()
	r.events.Close()
	if err := r.store.Close(); err != nil {
		logger.WarnCF("kernel", "Store close failed", map[string]any{"error": err.Error()})
	}

	if !r.quiet {
		fmt.Println("✓ Kernel stopped")
	}
	logger.InfoC("kernel", "Shutdown complete")
}

func newServeCmd() *cobra.Command {
	var (
		debug         bool
		withDashboard bool
		mcpMode       bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestration kernel",
		Long: `Compose the kernel (store, swarm, workflow engine, SPARC engine,
scheduler) and run it until interrupted. With --mcp the kernel is
exposed as MCP tools on stdio; with --dashboard the status API and
event stream are served even when disabled in config.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(debug, withDashboard, mcpMode)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	cmd.Flags().BoolVar(&withDashboard, "dashboard", false, "serve the dashboard regardless of config")
	cmd.Flags().BoolVar(&mcpMode, "mcp", false, "expose the kernel as MCP tools on stdio")
	return cmd
}

func runServe(debug, withDashboard, mcpMode bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogging(cfg, debug, mcpMode)

	runner, err := createKernelRunner(cfg, withDashboard, mcpMode)
	if err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if mcpMode {
		return runMCP(runner, sigChan)
	}

	go func() {
		if err := runner.run(); err != nil {
			logger.ErrorCF("kernel", "Kernel error", map[string]any{"error": err.Error()})
			runner.stop()
			os.Exit(1)
		}
	}()

	<-sigChan
	runner.stop()
	return nil
}

// runMCP serves the tool surface on stdio in the foreground. The
// kernel services run alongside so scheduled workflows and the
// dashboard stay live for the duration of the MCP session.
func runMCP(runner *kernelRunner, sigChan chan os.Signal) error {
	srv, err := mcptool.NewServer(mcptool.Options{
		Swarm:     runner.swarm,
		Workflows: runner.workflows,
		SPARC:     runner.sparc,
		Version:   formatVersion(),
	})
	if err != nil {
		runner.stop()
		return err
	}

	go func() {
		<-sigChan
		runner.cancel()
	}()
	go runner.run()

	err = srv.Run(runner.ctx)
	runner.stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// setupLogging applies the configured level and file sink. In MCP mode
// console logs already go to stderr, so no extra redirection is needed.
func setupLogging(cfg *config.Config, debug, mcpMode bool) {
	if debug {
		logger.SetLevel(logger.DEBUG)
	} else {
		logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	}
	if cfg.Logging.File != "" {
		if err := logger.EnableFileLogging(config.ExpandHome(cfg.Logging.File)); err != nil {
			logger.WarnCF("kernel", "File logging unavailable", map[string]any{"error": err.Error()})
		}
	}
	if cfg.Dashboard.Token != "" {
		logger.AddSecret(cfg.Dashboard.Token)
	}
	if debug && !mcpMode {
		fmt.Println("🔍 Debug mode enabled")
	}
}
