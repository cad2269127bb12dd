package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/caarlos0/env/v11"
)

type WorkspaceConfig struct {
	Path string `json:"path" label:"Workspace Path" env:"SWARMFLOW_WORKSPACE_PATH"`
}

type StorageConfig struct {
	// Backend selects the KV store implementation: sqlite, json, or vector.
	Backend      string `json:"backend" label:"Backend" env:"SWARMFLOW_STORAGE_BACKEND"`
	Path         string `json:"path" label:"Storage Path" env:"SWARMFLOW_STORAGE_PATH"`
	MaxFileBytes int64  `json:"max_file_bytes" label:"JSON File Size Cap" env:"SWARMFLOW_STORAGE_MAX_FILE_BYTES"`
}

type SwarmConfig struct {
	// CoordinationBudgetMS bounds each per-agent sync during topology
	// coordination.
	CoordinationBudgetMS int     `json:"coordination_budget_ms" label:"Coordination Budget (ms)" env:"SWARMFLOW_SWARM_COORDINATION_BUDGET_MS"`
	CoordinationRate     float64 `json:"coordination_rate" label:"Coordination Rate (per sec)" env:"SWARMFLOW_SWARM_COORDINATION_RATE"`
	DefaultTopology      string  `json:"default_topology" label:"Default Topology" env:"SWARMFLOW_SWARM_DEFAULT_TOPOLOGY"`
	// HeartbeatSec is the liveness sweep cadence; 0 disables the monitor.
	HeartbeatSec    int `json:"heartbeat_sec" label:"Heartbeat Check (sec)" env:"SWARMFLOW_SWARM_HEARTBEAT_SEC"`
	OfflineAfterSec int `json:"offline_after_sec" label:"Offline After (sec)" env:"SWARMFLOW_SWARM_OFFLINE_AFTER_SEC"`
}

type WorkflowConfig struct {
	MaxConcurrent    int    `json:"max_concurrent" label:"Max Concurrent Workflows" env:"SWARMFLOW_WORKFLOW_MAX_CONCURRENT"`
	StepTimeoutMS    int64  `json:"step_timeout_ms" label:"Step Timeout (ms)" env:"SWARMFLOW_WORKFLOW_STEP_TIMEOUT_MS"`
	RetryAttempts    int    `json:"retry_attempts" label:"Retry Attempts" env:"SWARMFLOW_WORKFLOW_RETRY_ATTEMPTS"`
	PersistWorkflows bool   `json:"persist_workflows" label:"Persist Workflows" env:"SWARMFLOW_WORKFLOW_PERSIST"`
	DefinitionsDir   string `json:"definitions_dir" label:"Definitions Directory" env:"SWARMFLOW_WORKFLOW_DEFINITIONS_DIR"`
	WatchDefinitions bool   `json:"watch_definitions" label:"Watch Definitions" env:"SWARMFLOW_WORKFLOW_WATCH_DEFINITIONS"`
}

type TaskConfig struct {
	// SPARCDescriptionThreshold is the description length above which a
	// task is routed through the SPARC pipeline.
	SPARCDescriptionThreshold int `json:"sparc_description_threshold" label:"SPARC Description Threshold" env:"SWARMFLOW_TASK_SPARC_DESCRIPTION_THRESHOLD"`
	DefaultTimeoutMinutes     int `json:"default_timeout_minutes" label:"Default Task Timeout (min)" env:"SWARMFLOW_TASK_DEFAULT_TIMEOUT_MINUTES"`
}

type DashboardConfig struct {
	Enabled bool   `json:"enabled" label:"Enabled" env:"SWARMFLOW_DASHBOARD_ENABLED"`
	Host    string `json:"host" label:"Host" env:"SWARMFLOW_DASHBOARD_HOST"`
	Port    int    `json:"port" label:"Port" env:"SWARMFLOW_DASHBOARD_PORT"`
	Token   string `json:"token" label:"Access Token" env:"SWARMFLOW_DASHBOARD_TOKEN"`
}

type LoggingConfig struct {
	Level string `json:"level" label:"Level" env:"SWARMFLOW_LOG_LEVEL"`
	File  string `json:"file" label:"Log File" env:"SWARMFLOW_LOG_FILE"`
}

type Config struct {
	Workspace WorkspaceConfig `json:"workspace" label:"Workspace"`
	Storage   StorageConfig   `json:"storage" label:"Storage"`
	Swarm     SwarmConfig     `json:"swarm" label:"Swarm"`
	Workflow  WorkflowConfig  `json:"workflow" label:"Workflow Engine"`
	Task      TaskConfig      `json:"task" label:"Task Coordinator"`
	Dashboard DashboardConfig `json:"dashboard" label:"Dashboard"`
	Logging   LoggingConfig   `json:"logging" label:"Logging"`
	mu        sync.RWMutex
}

func DefaultConfig() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Path: "~/.swarmflow",
		},
		Storage: StorageConfig{
			Backend:      "sqlite",
			Path:         "~/.swarmflow/data",
			MaxFileBytes: 50 * 1024 * 1024,
		},
		Swarm: SwarmConfig{
			CoordinationBudgetMS: 250,
			CoordinationRate:     50,
			DefaultTopology:      "mesh",
			HeartbeatSec:         0,
			OfflineAfterSec:      120,
		},
		Workflow: WorkflowConfig{
			MaxConcurrent:    10,
			StepTimeoutMS:    30000,
			RetryAttempts:    3,
			PersistWorkflows: true,
			DefinitionsDir:   "~/.swarmflow/workflows",
			WatchDefinitions: false,
		},
		Task: TaskConfig{
			SPARCDescriptionThreshold: 200,
			DefaultTimeoutMinutes:     10,
		},
		Dashboard: DashboardConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    18900,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()
	return saveConfigLocked(path, cfg)
}

func saveConfigLocked(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func (c *Config) Lock()    { c.mu.Lock() }
func (c *Config) Unlock()  { c.mu.Unlock() }
func (c *Config) RLock()   { c.mu.RLock() }
func (c *Config) RUnlock() { c.mu.RUnlock() }

// WorkspacePath returns the workspace root with ~ expanded.
func (c *Config) WorkspacePath() string {
	return ExpandHome(c.Workspace.Path)
}

// StoragePath returns the storage root with ~ expanded.
func (c *Config) StoragePath() string {
	return ExpandHome(c.Storage.Path)
}

// DefinitionsDir returns the workflow definitions directory with ~ expanded.
func (c *Config) DefinitionsDir() string {
	return ExpandHome(c.Workflow.DefinitionsDir)
}

// ExpandHome replaces a leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			home = os.TempDir()
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
