// SwarmFlow - Multi-agent orchestration kernel
// Workflow step adapter for the task coordinator
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package task

import (
	"context"
	"fmt"

	"github.com/swarmflow/swarmflow/pkg/workflow"
)

// NewWorkflowHandler adapts the coordinator to the workflow engine's
// step interface, so definitions can run "task" steps through
// capability dispatch. Step params map onto the request: description
// (required), type, priority, subagent_type, requirements, and
// use_sparc. A failed task fails the step.
func NewWorkflowHandler(c *Coordinator) workflow.StepHandler {
	return workflow.HandlerFunc(func(ctx context.Context, _ *workflow.Context, params map[string]any) (any, error) {
		description, _ := params["description"].(string)
		if description == "" {
			return nil, fmt.Errorf("task step: missing description")
		}

		req := Request{
			Type:         stringParam(params, "type"),
			Description:  description,
			Priority:     stringParam(params, "priority"),
			SubagentType: stringParam(params, "subagent_type"),
			Requirements: stringsParam(params, "requirements"),
		}
		if useSPARC, ok := params["use_sparc"].(bool); ok {
			req.UseSPARC = useSPARC
		}

		res := c.Execute(ctx, req)
		if !res.Success {
			return nil, fmt.Errorf("task %s failed: %s", res.TaskID, res.Error)
		}
		return res, nil
	})
}

func stringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}

// stringsParam accepts both []string and the []any that YAML and JSON
// decoding produce.
func stringsParam(params map[string]any, key string) []string {
	switch raw := params[key].(type) {
	case []string:
		return raw
	case []any:
		out := make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
