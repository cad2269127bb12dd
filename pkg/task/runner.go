package task

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Runner executes a prepared task as the given agent type. The context
// carries the per-task deadline; implementations must return its error
// when it fires.
type Runner interface {
	Run(ctx context.Context, agentType, executionContext string, req Request) (output string, toolsUsed []string, err error)
}

// agentTools lists the tools each agent type reaches for. The local
// runner reports them so per-tool usage metrics have real content.
var agentTools = map[string][]string{
	"coder":              {"editor", "compiler", "test-runner"},
	"code-analyzer":      {"static-analyzer", "profiler"},
	"researcher":         {"search", "summarizer"},
	"tester":             {"test-runner", "coverage"},
	"debug":              {"debugger", "tracer", "test-runner"},
	"code-review-swarm":  {"diff-viewer", "linter"},
	"system-architect":   {"diagrammer", "adr-writer"},
	"database-architect": {"schema-designer", "query-planner"},
	"security-analyzer":  {"scanner", "dependency-auditor"},
	"perf-analyzer":      {"profiler", "benchmark-runner"},
	"task-orchestrator":  {"scheduler"},
	"api-docs":           {"doc-generator"},
}

// LocalRunner fulfils tasks in process, synthesizing a structured
// report from the execution context. Latency, when set, simulates work
// and honors cancellation while waiting.
type LocalRunner struct {
	Latency time.Duration
}

func (r *LocalRunner) Run(ctx context.Context, agentType, executionContext string, req Request) (string, []string, error) {
	if r.Latency > 0 {
		timer := time.NewTimer(r.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] completed task %s", agentType, req.ID)
	if line := firstLine(req.Description); line != "" {
		fmt.Fprintf(&b, ": %s", line)
	}
	if req.ExpectedOutput != "" {
		fmt.Fprintf(&b, "\ndelivered: %s", req.ExpectedOutput)
	}
	fmt.Fprintf(&b, "\ncontext sections: %d", strings.Count(executionContext, "\n\n---\n\n")+1)

	return b.String(), toolsFor(agentType), nil
}

func toolsFor(agentType string) []string {
	if tools, ok := agentTools[agentType]; ok {
		return append([]string(nil), tools...)
	}
	return []string{"editor"}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}
