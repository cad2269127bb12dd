package swarm

import (
	"time"
)

// --- Agent taxonomy ---

type AgentType string

const (
	AgentResearcher  AgentType = "researcher"
	AgentCoder       AgentType = "coder"
	AgentAnalyst     AgentType = "analyst"
	AgentTester      AgentType = "tester"
	AgentCoordinator AgentType = "coordinator"
	AgentArchitect   AgentType = "architect"
	AgentDebugger    AgentType = "debugger"
	AgentOptimizer   AgentType = "optimizer"
	AgentDocumenter  AgentType = "documenter"
)

type AgentStatus string

const (
	StatusIdle    AgentStatus = "idle"
	StatusBusy    AgentStatus = "busy"
	StatusError   AgentStatus = "error"
	StatusOffline AgentStatus = "offline"
)

// --- Topologies ---
//
// Informational in the current dispatcher; reserved for future
// coordination strategies.

type Topology string

const (
	TopologyMesh         Topology = "mesh"
	TopologyHierarchical Topology = "hierarchical"
	TopologyRing         Topology = "ring"
	TopologyStar         Topology = "star"
)

// --- Core structs ---

// Performance holds the rolling counters the dispatcher maintains per
// agent. AvgResponseMS is a rolling mean: updated on completion as
// (avg*n + duration)/(n+1) before TasksCompleted is incremented.
type Performance struct {
	TasksCompleted int     `json:"tasks_completed"`
	AvgResponseMS  float64 `json:"avg_response_ms"`
	ErrorRate      float64 `json:"error_rate"`
}

type Agent struct {
	ID           string      `json:"id"`
	Type         AgentType   `json:"type"`
	Status       AgentStatus `json:"status"`
	Capabilities []string    `json:"capabilities"`
	Performance  Performance `json:"performance"`
	Connections  []string    `json:"connections,omitempty"`
	RegisteredAt time.Time   `json:"registered_at"`
}

// Clone returns a deep copy so callers can hold agent snapshots without
// racing registry writers.
func (a *Agent) Clone() Agent {
	c := *a
	c.Capabilities = append([]string(nil), a.Capabilities...)
	c.Connections = append([]string(nil), a.Connections...)
	return c
}

// --- Task priorities ---

const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// NormalizePriority maps numeric priorities (1..10) onto the named
// scale; named values pass through, anything unknown becomes medium.
func NormalizePriority(p any) string {
	switch v := p.(type) {
	case string:
		switch v {
		case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
			return v
		}
	case int:
		return numericPriority(v)
	case float64:
		return numericPriority(int(v))
	}
	return PriorityMedium
}

func numericPriority(n int) string {
	switch {
	case n <= 3:
		return PriorityLow
	case n <= 6:
		return PriorityMedium
	case n <= 8:
		return PriorityHigh
	default:
		return PriorityCritical
	}
}

// --- Tasks ---

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskAssigned  TaskStatus = "assigned"
	TaskCompleted TaskStatus = "completed"
)

type Task struct {
	ID           string     `json:"id"`
	Type         string     `json:"type"`
	Description  string     `json:"description"`
	Priority     string     `json:"priority"`
	Requirements []string   `json:"requirements"`
	Dependencies []string   `json:"dependencies,omitempty"`
	Deadline     *time.Time `json:"deadline,omitempty"`

	Status     TaskStatus `json:"status"`
	AssignedTo string     `json:"assigned_to,omitempty"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    time.Time  `json:"end_time"`
}

// --- Coordination ---

// CoordinationResult summarizes one CoordinateSwarm fan-out.
type CoordinationResult struct {
	Topology     Topology  `json:"topology"`
	SuccessCount int       `json:"success_count"`
	Latencies    []float64 `json:"latencies_ms"`
	SuccessRate  float64   `json:"success_rate"`
	AvgLatencyMS float64   `json:"avg_latency_ms"`
	Success      bool      `json:"success"`
}

// SwarmMetrics is the aggregate view derived from registry and
// dispatcher state plus coordinator uptime.
type SwarmMetrics struct {
	AgentCount     int     `json:"agent_count"`
	ActiveAgents   int     `json:"active_agents"`
	TotalTasks     int     `json:"total_tasks"`
	CompletedTasks int     `json:"completed_tasks"`
	AvgResponseMS  float64 `json:"avg_response_ms"`
	Throughput     float64 `json:"throughput"`
	ErrorRate      float64 `json:"error_rate"`
	UptimeMS       int64   `json:"uptime_ms"`
}
