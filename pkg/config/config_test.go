package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Workflow.MaxConcurrent != 10 {
		t.Errorf("MaxConcurrent = %d, want 10", cfg.Workflow.MaxConcurrent)
	}
	if cfg.Workflow.StepTimeoutMS != 30000 {
		t.Errorf("StepTimeoutMS = %d, want 30000", cfg.Workflow.StepTimeoutMS)
	}
	if cfg.Workflow.RetryAttempts != 3 {
		t.Errorf("RetryAttempts = %d, want 3", cfg.Workflow.RetryAttempts)
	}
	if cfg.Task.SPARCDescriptionThreshold != 200 {
		t.Errorf("SPARCDescriptionThreshold = %d, want 200", cfg.Task.SPARCDescriptionThreshold)
	}
	if cfg.Task.DefaultTimeoutMinutes != 10 {
		t.Errorf("DefaultTimeoutMinutes = %d, want 10", cfg.Task.DefaultTimeoutMinutes)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Storage.Backend = %q, want sqlite", cfg.Storage.Backend)
	}
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Workflow.MaxConcurrent != 10 {
		t.Errorf("MaxConcurrent = %d, want default 10", cfg.Workflow.MaxConcurrent)
	}
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"workflow": {"max_concurrent": 3, "step_timeout_ms": 5000}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Workflow.MaxConcurrent != 3 {
		t.Errorf("MaxConcurrent = %d, want 3", cfg.Workflow.MaxConcurrent)
	}
	if cfg.Workflow.StepTimeoutMS != 5000 {
		t.Errorf("StepTimeoutMS = %d, want 5000", cfg.Workflow.StepTimeoutMS)
	}
	// Untouched sections keep defaults.
	if cfg.Task.SPARCDescriptionThreshold != 200 {
		t.Errorf("SPARCDescriptionThreshold = %d, want 200", cfg.Task.SPARCDescriptionThreshold)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"workflow": {"max_concurrent": 3}}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("SWARMFLOW_WORKFLOW_MAX_CONCURRENT", "7")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Workflow.MaxConcurrent != 7 {
		t.Errorf("MaxConcurrent = %d, want env override 7", cfg.Workflow.MaxConcurrent)
	}
}

func TestSaveConfigPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	if err := SaveConfig(path, DefaultConfig()); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat config: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Errorf("config perms = %o, want 600", got)
	}

	// Round-trip.
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Backend = %q after round-trip, want sqlite", cfg.Storage.Backend)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}

	tests := []struct {
		in   string
		want string
	}{
		{"~/.swarmflow", filepath.Join(home, ".swarmflow")},
		{"~", home},
		{"/abs/path", "/abs/path"},
		{"relative/path", "relative/path"},
	}

	for _, tt := range tests {
		if got := ExpandHome(tt.in); got != tt.want {
			t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
