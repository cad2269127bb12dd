// SwarmFlow - Multi-agent orchestration kernel
// Command-line entry point
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/swarmflow/swarmflow/pkg/config"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

const logo = "🐝"

// formatVersion returns the version string with optional git commit
func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

func printVersion() {
	fmt.Printf("%s swarmflow %s\n", logo, formatVersion())
	if buildTime != "" {
		fmt.Printf("  Build: %s\n", buildTime)
	}
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	fmt.Printf("  Go: %s\n", goVer)
}

func getConfigPath() string {
	if p := os.Getenv("SWARMFLOW_CONFIG"); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".swarmflow", "config.json")
}

func loadConfig() (*config.Config, error) {
	return config.LoadConfig(getConfigPath())
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "swarmflow",
		Short: "Multi-agent orchestration kernel",
		Long: logo + ` SwarmFlow coordinates agent swarms, stepped workflows with
approval gates, and the five-phase SPARC pipeline, backed by a
namespaced key-value store.`,
		SilenceUsage: true,
	}
	root.AddCommand(
		newServeCmd(),
		newAgentCmd(),
		newWorkflowCmd(),
		newProjectCmd(),
		newScheduleCmd(),
		newInitCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(*cobra.Command, []string) {
			printVersion()
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
