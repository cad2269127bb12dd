// SwarmFlow - Multi-agent orchestration kernel
// Swarm coordination: metrics collection and export
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package swarm

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector collects and exports metrics for the swarm kernel.
type MetricsCollector struct {
	mu sync.RWMutex

	// Counters
	tasksAssigned      atomic.Int64
	tasksCompleted     atomic.Int64
	assignmentMisses   atomic.Int64
	coordinationRuns   atomic.Int64
	coordinationErrors atomic.Int64
	gateDecisions      atomic.Int64

	// Gauges
	agentCount   atomic.Int32
	activeAgents atomic.Int32

	// Histogram data (simplified)
	latencyBuckets map[string]*LatencyBucket

	startTime time.Time
}

// LatencyBucket tracks latency distribution.
type LatencyBucket struct {
	mu      sync.RWMutex
	count   int64
	sum     int64
	buckets [12]int64 // 0-1ms, 1-2ms, 2-5ms, 5-10ms, 10-20ms, 20-50ms, 50-100ms, 100-200ms, 200-500ms, 500ms-1s, 1-2s, 2s+
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		latencyBuckets: make(map[string]*LatencyBucket),
		startTime:      time.Now(),
	}
}

// Counter methods

// TaskAssigned increments the assigned task counter.
func (m *MetricsCollector) TaskAssigned() {
	m.tasksAssigned.Add(1)
}

// TaskCompleted increments the completed task counter.
func (m *MetricsCollector) TaskCompleted() {
	m.tasksCompleted.Add(1)
}

// AssignmentMiss increments the counter of assignments with no fitting agent.
func (m *MetricsCollector) AssignmentMiss() {
	m.assignmentMisses.Add(1)
}

// CoordinationRun increments the coordination fan-out counter.
func (m *MetricsCollector) CoordinationRun() {
	m.coordinationRuns.Add(1)
}

// CoordinationError increments the per-agent coordination error counter.
func (m *MetricsCollector) CoordinationError() {
	m.coordinationErrors.Add(1)
}

// GateDecision increments the workflow gate decision counter.
func (m *MetricsCollector) GateDecision() {
	m.gateDecisions.Add(1)
}

// Gauge methods

// SetAgentCount sets the current registered agent count.
func (m *MetricsCollector) SetAgentCount(count int32) {
	m.agentCount.Store(count)
}

// SetActiveAgents sets the current non-offline agent count.
func (m *MetricsCollector) SetActiveAgents(count int32) {
	m.activeAgents.Store(count)
}

// RecordLatency records a latency observation for the given operation.
func (m *MetricsCollector) RecordLatency(operation string, latency time.Duration) {
	m.mu.Lock()
	if m.latencyBuckets[operation] == nil {
		m.latencyBuckets[operation] = &LatencyBucket{}
	}
	bucket := m.latencyBuckets[operation]
	m.mu.Unlock()

	ms := latency.Milliseconds()

	bucket.mu.Lock()
	bucket.count++
	bucket.sum += ms

	// Bucket the latency
	switch {
	case ms < 1:
		bucket.buckets[0]++
	case ms < 2:
		bucket.buckets[1]++
	case ms < 5:
		bucket.buckets[2]++
	case ms < 10:
		bucket.buckets[3]++
	case ms < 20:
		bucket.buckets[4]++
	case ms < 50:
		bucket.buckets[5]++
	case ms < 100:
		bucket.buckets[6]++
	case ms < 200:
		bucket.buckets[7]++
	case ms < 500:
		bucket.buckets[8]++
	case ms < 1000:
		bucket.buckets[9]++
	case ms < 2000:
		bucket.buckets[10]++
	default:
		bucket.buckets[11]++
	}
	bucket.mu.Unlock()
}

// GetMetrics returns the current metrics as a map.
func (m *MetricsCollector) GetMetrics() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	latency := make(map[string]any)
	for name, bucket := range m.latencyBuckets {
		bucket.mu.RLock()
		avg := 0.0
		if bucket.count > 0 {
			avg = float64(bucket.sum) / float64(bucket.count)
		}
		latency[name] = map[string]any{
			"count":  bucket.count,
			"avg_ms": avg,
			"p50_ms": m.percentile(bucket, 0.50),
			"p95_ms": m.percentile(bucket, 0.95),
			"p99_ms": m.percentile(bucket, 0.99),
		}
		bucket.mu.RUnlock()
	}

	return map[string]any{
		// Counters
		"tasks_assigned":      m.tasksAssigned.Load(),
		"tasks_completed":     m.tasksCompleted.Load(),
		"assignment_misses":   m.assignmentMisses.Load(),
		"coordination_runs":   m.coordinationRuns.Load(),
		"coordination_errors": m.coordinationErrors.Load(),
		"gate_decisions":      m.gateDecisions.Load(),

		// Gauges
		"agent_count":   m.agentCount.Load(),
		"active_agents": m.activeAgents.Load(),

		// System info
		"uptime_seconds": time.Since(m.startTime).Seconds(),

		// Latency histograms
		"latency_ms": latency,
	}
}

// percentile calculates an approximate percentile from the bucket data.
func (m *MetricsCollector) percentile(bucket *LatencyBucket, p float64) float64 {
	if bucket.count == 0 {
		return 0
	}

	target := int64(float64(bucket.count) * p)
	cumulative := int64(0)

	// Upper bounds for each bucket in ms
	upperBounds := []int64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 1 << 62}

	for i, count := range bucket.buckets {
		cumulative += count
		if cumulative >= target {
			return float64(upperBounds[i])
		}
	}

	return 2000.0 // default max
}

// ExportJSON exports metrics as JSON.
func (m *MetricsCollector) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(m.GetMetrics(), "", "  ")
}

// ExportPrometheus exports metrics in Prometheus text format.
func (m *MetricsCollector) ExportPrometheus() string {
	metrics := m.GetMetrics()
	var out string

	// Counters as Prometheus counters
	out += "# TYPE swarmflow_tasks_assigned counter\n"
	out += fmt.Sprintf("swarmflow_tasks_assigned %d\n", metrics["tasks_assigned"])

	out += "\n# TYPE swarmflow_tasks_completed counter\n"
	out += fmt.Sprintf("swarmflow_tasks_completed %d\n", metrics["tasks_completed"])

	out += "\n# TYPE swarmflow_assignment_misses counter\n"
	out += fmt.Sprintf("swarmflow_assignment_misses %d\n", metrics["assignment_misses"])

	out += "\n# TYPE swarmflow_coordination_runs counter\n"
	out += fmt.Sprintf("swarmflow_coordination_runs %d\n", metrics["coordination_runs"])

	out += "\n# TYPE swarmflow_coordination_errors counter\n"
	out += fmt.Sprintf("swarmflow_coordination_errors %d\n", metrics["coordination_errors"])

	out += "\n# TYPE swarmflow_gate_decisions counter\n"
	out += fmt.Sprintf("swarmflow_gate_decisions %d\n", metrics["gate_decisions"])

	// Gauges as Prometheus gauges
	out += "\n# TYPE swarmflow_agent_count gauge\n"
	out += fmt.Sprintf("swarmflow_agent_count %d\n", metrics["agent_count"])

	out += "\n# TYPE swarmflow_active_agents gauge\n"
	out += fmt.Sprintf("swarmflow_active_agents %d\n", metrics["active_agents"])

	out += "\n# TYPE swarmflow_uptime_seconds gauge\n"
	out += fmt.Sprintf("swarmflow_uptime_seconds %.0f\n", metrics["uptime_seconds"])

	return out
}

// Reset resets all metrics (useful for testing).
func (m *MetricsCollector) Reset() {
	m.tasksAssigned.Store(0)
	m.tasksCompleted.Store(0)
	m.assignmentMisses.Store(0)
	m.coordinationRuns.Store(0)
	m.coordinationErrors.Store(0)
	m.gateDecisions.Store(0)
	m.agentCount.Store(0)
	m.activeAgents.Store(0)

	m.mu.Lock()
	m.latencyBuckets = make(map[string]*LatencyBucket)
	m.startTime = time.Now()
	m.mu.Unlock()
}
