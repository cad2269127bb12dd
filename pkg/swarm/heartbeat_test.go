// SwarmFlow - Multi-agent orchestration kernel
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package swarm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmflow/swarmflow/pkg/bus"
)

func TestDefaultHeartbeatConfig(t *testing.T) {
	cfg := DefaultHeartbeatConfig()

	assert.Equal(t, HeartbeatCheckInterval, cfg.CheckInterval)
	assert.Equal(t, HeartbeatOfflineThreshold, cfg.OfflineTimeout)
}

func TestHeartbeatMonitorTracksBeats(t *testing.T) {
	c := NewCoordinator(Options{})
	require.NoError(t, c.RegisterAgent(context.Background(), Agent{ID: "a1", Type: AgentCoder}))

	monitor := NewHeartbeatMonitor(c, nil, nil)

	assert.Zero(t, monitor.LastBeat("a1"))

	monitor.Beat("a1")

	last := monitor.LastBeat("a1")
	assert.False(t, last.IsZero())
	assert.True(t, time.Since(last) < time.Second)
}

func TestHeartbeatMonitorOfflineAndRestore(t *testing.T) {
	ctx := context.Background()
	c := NewCoordinator(Options{})
	require.NoError(t, c.RegisterAgent(ctx, Agent{ID: "a1", Type: AgentCoder}))

	cfg := &HeartbeatConfig{
		CheckInterval:  5 * time.Millisecond,
		OfflineTimeout: 15 * time.Millisecond,
	}
	monitor := NewHeartbeatMonitor(c, nil, cfg)

	// First sweep only seeds the window.
	monitor.checkBeats()
	agent, ok := c.Agent("a1")
	require.True(t, ok)
	assert.Equal(t, StatusIdle, agent.Status)

	time.Sleep(30 * time.Millisecond)
	monitor.checkBeats()

	agent, ok = c.Agent("a1")
	require.True(t, ok)
	assert.Equal(t, StatusOffline, agent.Status, "stale idle agent should go offline")

	// Activity brings it back.
	monitor.Beat("a1")

	agent, ok = c.Agent("a1")
	require.True(t, ok)
	assert.Equal(t, StatusIdle, agent.Status, "beat should restore an offline agent")
}

func TestHeartbeatMonitorLeavesBusyAndErrorAlone(t *testing.T) {
	ctx := context.Background()
	c := NewCoordinator(Options{})
	require.NoError(t, c.RegisterAgent(ctx, Agent{ID: "busy", Capabilities: []string{"go"}}))
	require.NoError(t, c.RegisterAgent(ctx, Agent{ID: "errored"}))

	_, ok := c.AssignTask(ctx, Task{ID: "t1", Requirements: []string{"go"}})
	require.True(t, ok)
	require.NoError(t, c.SetAgentStatus("errored", StatusError))

	monitor := NewHeartbeatMonitor(c, nil, &HeartbeatConfig{
		CheckInterval:  5 * time.Millisecond,
		OfflineTimeout: 5 * time.Millisecond,
	})

	stale := time.Now().Add(-time.Minute).UnixMilli()
	monitor.beats["busy"] = stale
	monitor.beats["errored"] = stale

	monitor.checkBeats()

	busy, _ := c.Agent("busy")
	assert.Equal(t, StatusBusy, busy.Status, "busy agents are exempt from the sweep")

	errored, _ := c.Agent("errored")
	assert.Equal(t, StatusError, errored.Status, "errored agents wait for an explicit reset")
}

func TestHeartbeatMonitorBusBeats(t *testing.T) {
	ctx := context.Background()
	events := bus.NewEventBus()
	defer events.Close()

	c := NewCoordinator(Options{})
	require.NoError(t, c.RegisterAgent(ctx, Agent{ID: "a1"}))

	monitor := NewHeartbeatMonitor(c, events, &HeartbeatConfig{
		CheckInterval:  50 * time.Millisecond,
		OfflineTimeout: time.Minute,
	})
	require.NoError(t, monitor.Start(ctx))
	defer monitor.Stop()

	events.Publish(bus.Event{
		Type:   bus.EventTaskCompleted,
		Fields: map[string]any{"agent_id": "a1"},
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !monitor.LastBeat("a1").IsZero() {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	assert.False(t, monitor.LastBeat("a1").IsZero(), "bus event should count as a beat")

	events.Publish(bus.Event{
		Type:   bus.EventAgentRemoved,
		Fields: map[string]any{"agent_id": "a1"},
	})

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if monitor.LastBeat("a1").IsZero() {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	assert.True(t, monitor.LastBeat("a1").IsZero(), "removal event should drop the beat record")
}

func TestHeartbeatMonitorDropsUnknownAgents(t *testing.T) {
	c := NewCoordinator(Options{})
	require.NoError(t, c.RegisterAgent(context.Background(), Agent{ID: "kept"}))

	monitor := NewHeartbeatMonitor(c, nil, nil)
	monitor.Beat("kept")
	monitor.Beat("ghost")

	monitor.checkBeats()

	assert.False(t, monitor.LastBeat("kept").IsZero())
	assert.True(t, monitor.LastBeat("ghost").IsZero(), "beats for unregistered agents are dropped")
}

func TestHeartbeatMonitorStartStop(t *testing.T) {
	c := NewCoordinator(Options{})
	events := bus.NewEventBus()
	defer events.Close()

	monitor := NewHeartbeatMonitor(c, events, &HeartbeatConfig{
		CheckInterval:  10 * time.Millisecond,
		OfflineTimeout: time.Minute,
	})

	ctx := context.Background()
	require.NoError(t, monitor.Start(ctx))
	require.NoError(t, monitor.Start(ctx), "second Start is a no-op")

	monitor.Stop()
	monitor.Stop() // idempotent
}
