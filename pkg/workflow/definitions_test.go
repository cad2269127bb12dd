package workflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeDefinitionFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadDefinitionFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deploy.yaml")
	writeDefinitionFile(t, path, `
name: deploy
description: Deploy pipeline
version: "1.2"
steps:
  - type: log
    name: announce
    params:
      message: deploying
  - type: delay
    params:
      duration_ms: 5
    timeout: 1000
    gate:
      type: approval
      business_impact: high
      stakeholders: [ops]
`)

	def, err := LoadDefinitionFile(path)
	if err != nil {
		t.Fatalf("LoadDefinitionFile failed: %v", err)
	}
	if def.Name != "deploy" || def.Version != "1.2" {
		t.Errorf("loaded %s/%s, want deploy/1.2", def.Name, def.Version)
	}
	if len(def.Steps) != 2 {
		t.Fatalf("loaded %d steps, want 2", len(def.Steps))
	}
	if def.Steps[0].Name != "announce" || def.Steps[0].Params["message"] != "deploying" {
		t.Errorf("step 0 = %+v", def.Steps[0])
	}
	if def.Steps[1].TimeoutMS == nil || *def.Steps[1].TimeoutMS != 1000 {
		t.Errorf("step 1 timeout = %v, want 1000", def.Steps[1].TimeoutMS)
	}
	gate := def.Steps[1].Gate
	if gate == nil || gate.Type != "approval" || gate.BusinessImpact != "high" {
		t.Fatalf("step 1 gate = %+v", gate)
	}
	if len(gate.Stakeholders) != 1 || gate.Stakeholders[0] != "ops" {
		t.Errorf("gate stakeholders = %v", gate.Stakeholders)
	}
}

func TestLoadDefinitionFileJSONDefaultsName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nightly-build.json")
	writeDefinitionFile(t, path, `{
  "steps": [
    {"type": "log", "params": {"message": "build"}, "gate_config": {"auto_approval": true}}
  ]
}`)

	def, err := LoadDefinitionFile(path)
	if err != nil {
		t.Fatalf("LoadDefinitionFile failed: %v", err)
	}
	if def.Name != "nightly-build" {
		t.Errorf("name = %q, want nightly-build (from filename)", def.Name)
	}
	if def.Steps[0].Gate == nil || !def.Steps[0].Gate.AutoApproval {
		t.Errorf("gate = %+v, want auto_approval", def.Steps[0].Gate)
	}
}

func TestLoadDefinitionFileErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadDefinitionFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file loaded without error")
	}

	bad := filepath.Join(dir, "bad.yaml")
	writeDefinitionFile(t, bad, "steps: [unclosed")
	if _, err := LoadDefinitionFile(bad); err == nil {
		t.Error("malformed yaml loaded without error")
	}

	empty := filepath.Join(dir, "empty.yaml")
	writeDefinitionFile(t, empty, "name: no-steps\n")
	if _, err := LoadDefinitionFile(empty); err == nil {
		t.Error("definition without steps loaded without error")
	}
}

func TestLoadDefinitionsDir(t *testing.T) {
	dir := t.TempDir()
	writeDefinitionFile(t, filepath.Join(dir, "one.yaml"), "name: one\nsteps:\n  - type: log\n")
	writeDefinitionFile(t, filepath.Join(dir, "sub", "two.yml"), "name: two\nsteps:\n  - type: log\n")
	writeDefinitionFile(t, filepath.Join(dir, "three.json"), `{"name":"three","steps":[{"type":"log"}]}`)
	writeDefinitionFile(t, filepath.Join(dir, "broken.yaml"), "steps: [unclosed")
	writeDefinitionFile(t, filepath.Join(dir, "notes.txt"), "not a definition")

	e := newTestEngine(t, Options{})
	loaded, err := e.LoadDefinitionsDir(dir)
	if err != nil {
		t.Fatalf("LoadDefinitionsDir failed: %v", err)
	}
	if loaded != 3 {
		t.Errorf("loaded = %d, want 3", loaded)
	}
	for _, name := range []string{"one", "two", "three"} {
		if _, ok := e.Definition(name); !ok {
			t.Errorf("definition %q not registered", name)
		}
	}

	// A missing directory is not an error.
	if n, err := e.LoadDefinitionsDir(filepath.Join(dir, "absent")); err != nil || n != 0 {
		t.Errorf("missing dir: loaded=%d err=%v, want 0 nil", n, err)
	}
}

func TestDefinitionWatcherHotReload(t *testing.T) {
	dir := t.TempDir()
	e := newTestEngine(t, Options{})

	dw, err := NewDefinitionWatcher(dir, e)
	if err != nil {
		t.Fatalf("NewDefinitionWatcher failed: %v", err)
	}
	if err := dw.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer dw.Stop()

	writeDefinitionFile(t, filepath.Join(dir, "hotload.yaml"), "name: hotload\nversion: \"1\"\nsteps:\n  - type: log\n")
	waitDefinitionVersion(t, e, "hotload", "1")

	// Edits re-register under the same name.
	writeDefinitionFile(t, filepath.Join(dir, "hotload.yaml"), "name: hotload\nversion: \"2\"\nsteps:\n  - type: log\n")
	waitDefinitionVersion(t, e, "hotload", "2")
}

func waitDefinitionVersion(t *testing.T, e *Engine, name, version string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if def, ok := e.Definition(name); ok && def.Version == version {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	def, ok := e.Definition(name)
	t.Fatalf("definition %s never reached version %s (got %+v, registered=%v)", name, version, def.Version, ok)
}
