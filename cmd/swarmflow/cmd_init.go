// SwarmFlow - Multi-agent orchestration kernel
// Init command: interactive configuration wizard
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/swarmflow/swarmflow/pkg/config"
)

const (
	cReset  = "\033[0m"
	cBold   = "\033[1m"
	cDim    = "\033[2m"
	cYellow = "\033[33m"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the configuration interactively",
		Long: `Walk through workspace path, storage backend, and dashboard settings,
then write the config file and workspace skeleton. With --yes the
defaults are written without prompting.`,
		RunE: runInit,
	}
	cmd.Flags().BoolP("yes", "y", false, "Accept all defaults without prompting")
	return cmd
}

func runInit(cmd *cobra.Command, args []string) error {
	yes, _ := cmd.Flags().GetBool("yes")
	configPath := getConfigPath()
	reader := bufio.NewReader(os.Stdin)

	if _, err := os.Stat(configPath); err == nil {
		if yes {
			fmt.Printf("Config already exists at %s (leaving unchanged)\n", configPath)
			return nil
		}
		overwrite, err := promptYesNo(reader, fmt.Sprintf("Config %s exists. Overwrite?", configPath), false)
		if err != nil {
			return err
		}
		if !overwrite {
			fmt.Println("Init cancelled.")
			return nil
		}
	}

	cfg := config.DefaultConfig()

	if !yes {
		fmt.Printf("\n%s SwarmFlow setup\n\n", logo)

		workspace, err := promptString(reader, "Workspace path", cfg.Workspace.Path)
		if err != nil {
			return err
		}
		cfg.Workspace.Path = workspace
		cfg.Storage.Path = filepath.Join(workspace, "data")
		cfg.Workflow.DefinitionsDir = filepath.Join(workspace, "workflows")

		for {
			backend, err := promptString(reader, "Storage backend (sqlite, json, vector)", cfg.Storage.Backend)
			if err != nil {
				return err
			}
			backend = strings.ToLower(strings.TrimSpace(backend))
			if backend == "sqlite" || backend == "json" || backend == "vector" {
				cfg.Storage.Backend = backend
				break
			}
			fmt.Printf("  %sPlease pick sqlite, json, or vector.%s\n", cYellow, cReset)
		}

		enableDash, err := promptYesNo(reader, "Enable dashboard?", false)
		if err != nil {
			return err
		}
		cfg.Dashboard.Enabled = enableDash
		if enableDash {
			for {
				portStr, err := promptString(reader, "Dashboard port", strconv.Itoa(cfg.Dashboard.Port))
				if err != nil {
					return err
				}
				port, err := strconv.Atoi(strings.TrimSpace(portStr))
				if err == nil && port > 0 && port < 65536 {
					cfg.Dashboard.Port = port
					break
				}
				fmt.Printf("  %sPlease enter a port between 1 and 65535.%s\n", cYellow, cReset)
			}

			token, err := promptSecret("Dashboard token (empty for none)")
			if err != nil {
				return err
			}
			cfg.Dashboard.Token = strings.TrimSpace(token)
		}
	}

	if err := config.SaveConfig(configPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("✓ Config written to %s\n", configPath)

	for _, dir := range []string{
		cfg.WorkspacePath(),
		cfg.StoragePath(),
		cfg.DefinitionsDir(),
		filepath.Join(cfg.WorkspacePath(), "schedules"),
		filepath.Join(cfg.WorkspacePath(), "projects"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Printf("✗ Could not create %s: %v\n", dir, err)
		}
	}
	fmt.Printf("✓ Workspace ready at %s\n", cfg.WorkspacePath())
	fmt.Println("\nNext: swarmflow serve")
	return nil
}

func promptYesNo(reader *bufio.Reader, text string, defaultYes bool) (bool, error) {
	defaultHint := fmt.Sprintf("y/%sN%s", cBold, cReset)
	if defaultYes {
		defaultHint = fmt.Sprintf("%sY%s/n", cBold, cReset)
	}
	for {
		fmt.Printf("%s [%s]: ", text, defaultHint)
		line, err := reader.ReadString('\n')
		if err != nil {
			return false, err
		}
		line = strings.TrimSpace(strings.ToLower(line))
		if line == "" {
			return defaultYes, nil
		}
		if line == "y" || line == "yes" {
			return true, nil
		}
		if line == "n" || line == "no" {
			return false, nil
		}
		fmt.Printf("  %sPlease answer y or n.%s\n", cYellow, cReset)
	}
}

func promptString(reader *bufio.Reader, label string, defaultValue string) (string, error) {
	if defaultValue != "" {
		fmt.Printf("%s %s(%s)%s: ", label, cDim, defaultValue, cReset)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return defaultValue, nil
	}
	return line, nil
}

func promptSecret(label string) (string, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:     label + ": ",
		EnableMask: true,
		MaskRune:   '*',
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	})
	if err != nil {
		return "", err
	}
	defer rl.Close()
	line, err := rl.Readline()
	if err != nil {
		return "", err
	}
	return line, nil
}
