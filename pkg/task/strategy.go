// SwarmFlow - Multi-agent orchestration kernel
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package task

import (
	"fmt"
	"strings"
)

// Descriptions longer than this route to SPARC regardless of priority.
const sparcDescriptionThreshold = 200

// agentAliases is the closed mapping from requested subagent types to
// canonical agent names. Types outside the table pass through as-is.
var agentAliases = map[string]string{
	"analyst":     "code-analyzer",
	"architect":   "system-architect",
	"coordinator": "task-orchestrator",
	"debugger":    "debug",
	"documenter":  "api-docs",
	"optimizer":   "perf-analyzer",
	"reviewer":    "code-review-swarm",
}

// specializedAgents are the types where the specialized variant is
// always worth the extra context.
var specializedAgents = map[string]bool{
	"code-review-swarm":  true,
	"debug":              true,
	"ai-ml-specialist":   true,
	"database-architect": true,
	"system-architect":   true,
	"security-analyzer":  true,
}

var agentPrompts = map[string]string{
	"code-review-swarm":  "You are a meticulous code reviewer. Flag correctness, security and style issues with file and line references.",
	"debug":              "You are a debugging specialist. Reproduce, isolate and fix the defect, then prove the fix with a regression test.",
	"ai-ml-specialist":   "You are an ML engineer. Prefer measurable baselines and report evaluation metrics with every change.",
	"database-architect": "You are a database architect. Design schemas and access paths for the stated workload and call out migration risk.",
	"system-architect":   "You are a system architect. Produce component boundaries, interfaces and failure-mode notes before implementation detail.",
	"security-analyzer":  "You are a security analyst. Enumerate attack surface, rank findings by severity and suggest concrete mitigations.",
}

// Strategy is the agent selection for one direct execution.
type Strategy struct {
	AgentType   string
	Specialized bool
}

// shouldUseSPARC decides the routing: explicit opt-in, high or critical
// priority, a long description, or a complex source document all
// justify the structured pipeline.
func shouldUseSPARC(req Request) bool {
	if req.UseSPARC {
		return true
	}
	if highPriority(req.Priority) {
		return true
	}
	if len(req.Description) > sparcDescriptionThreshold {
		return true
	}
	return complexSourceDoc(req.SourceDoc)
}

func highPriority(p string) bool {
	return p == "high" || p == "critical"
}

// complexSourceDoc reports whether a planning document demands the full
// methodology: more than three acceptance criteria, a complex or
// architecture tag, or a technical approach that mentions architecture.
func complexSourceDoc(doc *SourceDocument) bool {
	if doc == nil {
		return false
	}
	if len(doc.AcceptanceCriteria) > 3 {
		return true
	}
	for _, tag := range doc.Tags {
		switch strings.ToLower(tag) {
		case "complex", "architecture":
			return true
		}
	}
	return strings.Contains(strings.ToLower(doc.TechnicalApproach), "architecture")
}

// selectStrategy resolves the canonical agent type and whether its
// specialized variant should carry the task.
func selectStrategy(req Request) Strategy {
	agent := canonicalAgent(req.SubagentType)
	return Strategy{
		AgentType:   agent,
		Specialized: isSpecializedOptimal(req, agent),
	}
}

func canonicalAgent(subagentType string) string {
	t := strings.ToLower(strings.TrimSpace(subagentType))
	if t == "" {
		return "coder"
	}
	if canonical, ok := agentAliases[t]; ok {
		return canonical
	}
	return t
}

func isSpecializedOptimal(req Request, agentType string) bool {
	if highPriority(req.Priority) {
		return true
	}
	if len(req.Dependencies) > 2 {
		return true
	}
	return specializedAgents[agentType]
}

// buildExecutionContext assembles the prompt handed to the agent: the
// task itself, domain context, the expected output, and the
// specialization system prompt when one applies.
func buildExecutionContext(req Request, st Strategy) string {
	parts := []string{}

	var b strings.Builder
	fmt.Fprintf(&b, "# Task %s\n\n", req.ID)
	if req.Type != "" {
		fmt.Fprintf(&b, "Type: %s\n", req.Type)
	}
	fmt.Fprintf(&b, "Priority: %s\n\n%s", req.Priority, req.Description)
	parts = append(parts, b.String())

	if req.DomainContext != "" {
		parts = append(parts, "# Domain Context\n\n"+req.DomainContext)
	}
	if req.ExpectedOutput != "" {
		parts = append(parts, "# Expected Output\n\n"+req.ExpectedOutput)
	}
	if st.Specialized {
		parts = append(parts, "# System\n\n"+systemPrompt(st.AgentType))
	}

	return strings.Join(parts, "\n\n---\n\n")
}

func systemPrompt(agentType string) string {
	if p, ok := agentPrompts[agentType]; ok {
		return p
	}
	return fmt.Sprintf("You are a %s agent. Work the task end to end and report concrete outputs.", agentType)
}
