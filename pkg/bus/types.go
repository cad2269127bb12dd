package bus

import "time"

type EventType string

const (
	EventAgentRegistered EventType = "agent:registered"
	EventAgentRemoved    EventType = "agent:removed"
	EventTaskAssigned    EventType = "task:assigned"
	EventTaskCompleted   EventType = "task:completed"
	EventTaskRouted      EventType = "task:routed"
	EventCoordination    EventType = "coordination:step"
	EventCoordinationErr EventType = "coordination:error"

	EventWorkflowStarted   EventType = "workflow:started"
	EventWorkflowPaused    EventType = "workflow:paused"
	EventWorkflowResumed   EventType = "workflow:resumed"
	EventWorkflowCompleted EventType = "workflow:completed"
	EventWorkflowFailed    EventType = "workflow:failed"
	EventWorkflowCancelled EventType = "workflow:cancelled"

	EventPhaseStarted   EventType = "sparc:phase:started"
	EventPhaseCompleted EventType = "sparc:phase:completed"
	EventPhaseFailed    EventType = "sparc:phase:failed"

	EventProjectCreated     EventType = "project:created"
	EventProjectInitialized EventType = "project:initialized"
)

// Event is a single coordination observation. Source names the emitting
// component (swarm, workflow, sparc, project).
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}
