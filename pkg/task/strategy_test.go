package task

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldUseSPARC(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want bool
	}{
		{"default direct", Request{Description: "fix typo", Priority: "low"}, false},
		{"explicit opt-in", Request{UseSPARC: true}, true},
		{"high priority", Request{Priority: "high"}, true},
		{"critical priority", Request{Priority: "critical"}, true},
		{"long description", Request{Description: strings.Repeat("x", sparcDescriptionThreshold+1)}, true},
		{"threshold description stays direct", Request{Description: strings.Repeat("x", sparcDescriptionThreshold)}, false},
		{"four acceptance criteria", Request{SourceDoc: &SourceDocument{AcceptanceCriteria: []string{"a", "b", "c", "d"}}}, true},
		{"three acceptance criteria stay direct", Request{SourceDoc: &SourceDocument{AcceptanceCriteria: []string{"a", "b", "c"}}}, false},
		{"complex tag", Request{SourceDoc: &SourceDocument{Tags: []string{"backend", "Complex"}}}, true},
		{"architecture tag", Request{SourceDoc: &SourceDocument{Tags: []string{"architecture"}}}, true},
		{"architecture in approach", Request{SourceDoc: &SourceDocument{TechnicalApproach: "hexagonal architecture with ports"}}, true},
		{"plain document stays direct", Request{SourceDoc: &SourceDocument{Title: "small fix", Tags: []string{"backend"}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldUseSPARC(tt.req))
		})
	}
}

func TestCanonicalAgent(t *testing.T) {
	tests := map[string]string{
		"":                 "coder",
		"coder":            "coder",
		"Analyst":          "code-analyzer",
		"architect":        "system-architect",
		"coordinator":      "task-orchestrator",
		"debugger":         "debug",
		"documenter":       "api-docs",
		"optimizer":        "perf-analyzer",
		"reviewer":         "code-review-swarm",
		"researcher":       "researcher",
		"tester":           "tester",
		"ai-ml-specialist": "ai-ml-specialist",
	}
	for in, want := range tests {
		assert.Equal(t, want, canonicalAgent(in), "canonicalAgent(%q)", in)
	}
}

func TestIsSpecializedOptimal(t *testing.T) {
	assert.True(t, isSpecializedOptimal(Request{Priority: "high"}, "coder"))
	assert.True(t, isSpecializedOptimal(Request{Priority: "critical"}, "coder"))
	assert.True(t, isSpecializedOptimal(Request{Dependencies: []string{"a", "b", "c"}}, "coder"))
	assert.False(t, isSpecializedOptimal(Request{Dependencies: []string{"a", "b"}}, "coder"))

	for agent := range specializedAgents {
		assert.True(t, isSpecializedOptimal(Request{}, agent), "agent %s", agent)
	}
	assert.False(t, isSpecializedOptimal(Request{}, "researcher"))
}

func TestBuildExecutionContext(t *testing.T) {
	req := Request{
		ID:             "task-1",
		Type:           "feature",
		Priority:       "medium",
		Description:    "Add rate limiting to the gateway",
		DomainContext:  "The gateway fronts all public traffic.",
		ExpectedOutput: "middleware with tests",
	}
	got := buildExecutionContext(req, Strategy{AgentType: "security-analyzer", Specialized: true})

	sections := strings.Split(got, "\n\n---\n\n")
	require.Len(t, sections, 4)
	assert.Contains(t, sections[0], "# Task task-1")
	assert.Contains(t, sections[0], "Type: feature")
	assert.Contains(t, sections[0], "Add rate limiting")
	assert.Contains(t, sections[1], "# Domain Context")
	assert.Contains(t, sections[2], "# Expected Output")
	assert.Contains(t, sections[3], agentPrompts["security-analyzer"])

	plain := buildExecutionContext(Request{ID: "task-2", Priority: "low", Description: "tidy imports"}, Strategy{AgentType: "coder"})
	assert.NotContains(t, plain, "\n\n---\n\n")
	assert.NotContains(t, plain, "# System")
}

func TestSystemPromptFallback(t *testing.T) {
	assert.Contains(t, systemPrompt("researcher"), "researcher agent")
	assert.Equal(t, agentPrompts["debug"], systemPrompt("debug"))
}
