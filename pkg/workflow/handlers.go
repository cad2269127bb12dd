// SwarmFlow - Multi-agent orchestration kernel
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/swarmflow/swarmflow/pkg/logger"
)

// StepHandler executes one workflow step. Handlers run outside engine
// locks; they may block and must honor ctx cancellation.
type StepHandler interface {
	Execute(ctx context.Context, wfCtx *Context, params map[string]any) (any, error)
}

// HandlerFunc adapts a function to the StepHandler interface.
type HandlerFunc func(ctx context.Context, wfCtx *Context, params map[string]any) (any, error)

func (f HandlerFunc) Execute(ctx context.Context, wfCtx *Context, params map[string]any) (any, error) {
	return f(ctx, wfCtx, params)
}

// HandlerRegistry is the late-bound table of step types. Registering an
// existing type replaces it.
type HandlerRegistry struct {
	handlers map[string]StepHandler
	mu       sync.RWMutex
}

// NewHandlerRegistry returns a registry preloaded with the built-in
// delay, log and transform handlers.
func NewHandlerRegistry() *HandlerRegistry {
	r := &HandlerRegistry{handlers: make(map[string]StepHandler)}
	r.Register("delay", HandlerFunc(delayStep))
	r.Register("log", HandlerFunc(logStep))
	r.Register("transform", HandlerFunc(transformStep))
	return r
}

func (r *HandlerRegistry) Register(stepType string, handler StepHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[stepType] = handler
}

func (r *HandlerRegistry) Get(stepType string) (StepHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[stepType]
	return h, ok
}

func (r *HandlerRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// --- Built-in handlers ---

// delayStep sleeps for the configured duration. Accepts duration_ms or
// duration (both milliseconds).
func delayStep(ctx context.Context, _ *Context, params map[string]any) (any, error) {
	ms := intParam(params, 0, "duration_ms", "duration")
	if ms < 0 {
		return nil, fmt.Errorf("delay: negative duration %d", ms)
	}

	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return map[string]any{"delayed": ms}, nil
}

// logStep records a message.
func logStep(_ context.Context, _ *Context, params map[string]any) (any, error) {
	message, _ := params["message"].(string)
	logger.InfoCF("workflow", "Step log", map[string]any{"message": message})
	return map[string]any{"logged": message}, nil
}

// transformStep applies an operation to a dotted context path.
// Operations: set, append, increment, upper, lower.
func transformStep(_ context.Context, wfCtx *Context, params map[string]any) (any, error) {
	path, _ := params["path"].(string)
	if path == "" {
		return nil, fmt.Errorf("transform: missing path")
	}
	operation, _ := params["operation"].(string)
	if operation == "" {
		operation = "set"
	}

	var result any
	switch operation {
	case "set":
		result = params["value"]
		wfCtx.Set(path, result)

	case "append":
		item := params["value"]
		existing, _ := wfCtx.Get(path)
		list, ok := existing.([]any)
		if existing != nil && !ok {
			return nil, fmt.Errorf("transform: %s is not a list", path)
		}
		result = append(list, item)
		wfCtx.Set(path, result)

	case "increment":
		by := floatParam(params, 1, "value", "by")
		current, _ := wfCtx.Get(path)
		base, err := toFloat(current)
		if err != nil {
			return nil, fmt.Errorf("transform: %s: %w", path, err)
		}
		result = base + by
		wfCtx.Set(path, result)

	case "upper", "lower":
		current, ok := wfCtx.Get(path)
		if !ok {
			return nil, fmt.Errorf("transform: %s not set", path)
		}
		s, ok := current.(string)
		if !ok {
			return nil, fmt.Errorf("transform: %s is not a string", path)
		}
		if operation == "upper" {
			result = strings.ToUpper(s)
		} else {
			result = strings.ToLower(s)
		}
		wfCtx.Set(path, result)

	default:
		return nil, fmt.Errorf("transform: unknown operation %q", operation)
	}

	return map[string]any{"transformed": path, "value": result}, nil
}

// --- Param helpers ---
//
// Params decoded from JSON or YAML carry numbers as float64 or int;
// these helpers accept either.

func intParam(params map[string]any, fallback int, keys ...string) int {
	for _, key := range keys {
		if v, ok := params[key]; ok {
			if f, err := toFloat(v); err == nil {
				return int(f)
			}
		}
	}
	return fallback
}

func floatParam(params map[string]any, fallback float64, keys ...string) float64 {
	for _, key := range keys {
		if v, ok := params[key]; ok {
			if f, err := toFloat(v); err == nil {
				return f
			}
		}
	}
	return fallback
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}
