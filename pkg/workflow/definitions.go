// SwarmFlow - Multi-agent orchestration kernel
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/swarmflow/swarmflow/pkg/logger"
)

// LoadDefinitionFile parses one workflow definition from a YAML or JSON
// file. A missing name defaults to the file's base name.
func LoadDefinitionFile(path string) (Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read definition %s: %w", path, err)
	}

	var def Definition
	if strings.HasSuffix(path, ".json") {
		err = json.Unmarshal(raw, &def)
	} else {
		err = yaml.Unmarshal(raw, &def)
	}
	if err != nil {
		return Definition{}, fmt.Errorf("parse definition %s: %w", path, err)
	}

	if def.Name == "" {
		base := filepath.Base(path)
		def.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if err := validateSteps(def); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// LoadDefinitionsDir registers every definition found under dir
// (recursively, *.yaml / *.yml / *.json). Bad files are logged and
// skipped. Returns the number registered.
func (e *Engine) LoadDefinitionsDir(dir string) (int, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return 0, nil
	}

	matches, err := doublestar.Glob(os.DirFS(dir), "**/*.{yaml,yml,json}")
	if err != nil {
		return 0, fmt.Errorf("scan definitions dir %s: %w", dir, err)
	}

	loaded := 0
	for _, match := range matches {
		path := filepath.Join(dir, match)
		def, err := LoadDefinitionFile(path)
		if err != nil {
			logger.WarnCF("workflow", "Skipping bad definition file", map[string]any{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}
		if err := e.RegisterDefinition(def); err != nil {
			logger.WarnCF("workflow", "Skipping invalid definition", map[string]any{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}
		loaded++
	}

	logger.InfoCF("workflow", "Definitions loaded", map[string]any{
		"dir":   dir,
		"count": loaded,
	})
	return loaded, nil
}

// DefinitionWatcher hot-reloads workflow definitions when files under
// the definitions directory change. Changes are debounced so rapid
// editor saves reload once.
type DefinitionWatcher struct {
	engine      *Engine
	dir         string
	watcher     *fsnotify.Watcher
	debounce    map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	mu          sync.Mutex
}

func NewDefinitionWatcher(dir string, engine *Engine) (*DefinitionWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &DefinitionWatcher{
		engine:      engine,
		dir:         dir,
		watcher:     watcher,
		debounce:    make(map[string]time.Time),
		debounceDur: 200 * time.Millisecond,
	}, nil
}

// Start begins watching. Non-blocking; the watch loop runs until Stop
// or ctx cancellation.
func (dw *DefinitionWatcher) Start(ctx context.Context) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	if dw.running {
		return nil
	}

	if err := os.MkdirAll(dw.dir, 0o755); err != nil {
		logger.WarnCF("workflow", "Definitions dir create failed", map[string]any{
			"dir":   dw.dir,
			"error": err.Error(),
		})
	}
	if err := dw.watcher.Add(dw.dir); err != nil {
		return fmt.Errorf("watch %s: %w", dw.dir, err)
	}

	dw.running = true
	dw.stopCh = make(chan struct{})
	dw.doneCh = make(chan struct{})
	go dw.run(ctx)
	return nil
}

// Stop halts the watch loop and closes the watcher.
func (dw *DefinitionWatcher) Stop() {
	dw.mu.Lock()
	if !dw.running {
		dw.mu.Unlock()
		return
	}
	dw.running = false
	dw.mu.Unlock()

	close(dw.stopCh)
	<-dw.doneCh
	dw.watcher.Close()
}

func (dw *DefinitionWatcher) run(ctx context.Context) {
	defer close(dw.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-dw.stopCh:
			return

		case event, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			dw.handleEvent(event)

		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
			logger.WarnCF("workflow", "Definition watcher error", map[string]any{"error": err.Error()})

		case <-ticker.C:
			dw.processSettled()
		}
	}
}

func (dw *DefinitionWatcher) handleEvent(event fsnotify.Event) {
	if !isDefinitionFile(event.Name) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		// Removed definitions stay registered until restart.
		return
	}

	dw.mu.Lock()
	dw.debounce[event.Name] = time.Now()
	dw.mu.Unlock()
}

func (dw *DefinitionWatcher) processSettled() {
	dw.mu.Lock()
	now := time.Now()
	var settled []string
	for path, at := range dw.debounce {
		if now.Sub(at) >= dw.debounceDur {
			settled = append(settled, path)
			delete(dw.debounce, path)
		}
	}
	dw.mu.Unlock()

	for _, path := range settled {
		def, err := LoadDefinitionFile(path)
		if err != nil {
			logger.WarnCF("workflow", "Definition reload failed", map[string]any{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}
		if err := dw.engine.RegisterDefinition(def); err != nil {
			logger.WarnCF("workflow", "Definition reload rejected", map[string]any{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}
		logger.InfoCF("workflow", "Definition reloaded", map[string]any{
			"path": path,
			"name": def.Name,
		})
	}
}

func isDefinitionFile(path string) bool {
	switch filepath.Ext(path) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}
