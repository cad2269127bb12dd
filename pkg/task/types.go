package task

import "time"

// Methodology values recorded on every task result.
const (
	MethodologyDirect = "direct"
	MethodologySPARC  = "sparc"
)

// SourceDocument carries the planning document a task was cut from.
// Its shape decides whether the task is complex enough for SPARC.
type SourceDocument struct {
	Title              string   `json:"title"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	Tags               []string `json:"tags,omitempty"`
	TechnicalApproach  string   `json:"technical_approach,omitempty"`
}

// Request describes one logical task before routing.
type Request struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	Description    string          `json:"description"`
	Priority       string          `json:"priority"`
	SubagentType   string          `json:"subagent_type"`
	Requirements   []string        `json:"requirements,omitempty"`
	Dependencies   []string        `json:"dependencies,omitempty"`
	UseSPARC       bool            `json:"use_sparc_methodology,omitempty"`
	SourceDoc      *SourceDocument `json:"source_document,omitempty"`
	DomainContext  string          `json:"domain_context,omitempty"`
	ExpectedOutput string          `json:"expected_output,omitempty"`
	TimeoutMinutes int             `json:"timeout_minutes,omitempty"`
}

// Result is the recorded outcome of one task execution. Failures land
// here rather than as errors so history always captures the attempt.
type Result struct {
	TaskID             string              `json:"task_id"`
	Success            bool                `json:"success"`
	Output             string              `json:"output"`
	AgentUsed          string              `json:"agent_used"`
	ExecutionTimeMS    int64               `json:"execution_time_ms"`
	ToolsUsed          []string            `json:"tools_used,omitempty"`
	MethodologyApplied string              `json:"methodology_applied"`
	Artifacts          map[string][]string `json:"artifacts,omitempty"`
	Error              string              `json:"error,omitempty"`
}

// Record pairs a request with its outcome in the history log.
type Record struct {
	Request    Request   `json:"request"`
	Result     Result    `json:"result"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Metrics aggregates the full execution history. AvgExecutionMS covers
// successful tasks only.
type Metrics struct {
	TotalTasks     int            `json:"total_tasks"`
	Succeeded      int            `json:"succeeded"`
	Failed         int            `json:"failed"`
	SuccessRate    float64        `json:"success_rate"`
	AvgExecutionMS float64        `json:"avg_execution_ms"`
	AgentUsage     map[string]int `json:"agent_usage"`
	ToolUsage      map[string]int `json:"tool_usage"`
}
