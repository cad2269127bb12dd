// SwarmFlow - Multi-agent orchestration kernel
// Swarm coordination: agent liveness monitoring
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package swarm

import (
	"context"
	"sync"
	"time"

	"github.com/swarmflow/swarmflow/pkg/bus"
	"github.com/swarmflow/swarmflow/pkg/logger"
)

const (
	// HeartbeatCheckInterval is how often the monitor sweeps for stale agents.
	HeartbeatCheckInterval = 10 * time.Second
	// HeartbeatOfflineThreshold is how long an idle agent may stay silent
	// before it is marked offline.
	HeartbeatOfflineThreshold = 60 * time.Second
)

// HeartbeatConfig configures liveness monitoring.
type HeartbeatConfig struct {
	CheckInterval  time.Duration
	OfflineTimeout time.Duration
}

// DefaultHeartbeatConfig returns the default monitoring thresholds.
func DefaultHeartbeatConfig() *HeartbeatConfig {
	return &HeartbeatConfig{
		CheckInterval:  HeartbeatCheckInterval,
		OfflineTimeout: HeartbeatOfflineThreshold,
	}
}

// HeartbeatMonitor marks idle agents offline once their activity goes
// stale and brings them back to idle on the next beat. Activity is
// observed on the event bus: registration, task assignment, task
// completion, and coordination steps all count as beats. Busy agents are
// exempt (the task deadline owns hung work) and errored agents wait for
// an explicit reset.
type HeartbeatMonitor struct {
	coord    *Coordinator
	bus      *bus.EventBus
	cfg      *HeartbeatConfig
	beats    map[string]int64 // agent id -> last activity, unix ms
	events   <-chan bus.Event
	cancelFn func()
	stopChan chan struct{}
	doneChan chan struct{}
	running  bool
	mu       sync.Mutex
}

// NewHeartbeatMonitor creates a monitor over the coordinator's registry.
// events may be nil; beats then come only from explicit Beat calls.
func NewHeartbeatMonitor(coord *Coordinator, events *bus.EventBus, cfg *HeartbeatConfig) *HeartbeatMonitor {
	if cfg == nil {
		cfg = DefaultHeartbeatConfig()
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = HeartbeatCheckInterval
	}
	if cfg.OfflineTimeout <= 0 {
		cfg.OfflineTimeout = HeartbeatOfflineThreshold
	}
	return &HeartbeatMonitor{
		coord: coord,
		bus:   events,
		cfg:   cfg,
		beats: make(map[string]int64),
	}
}

// Start begins the sweep loop. Calling Start on a running monitor is a
// no-op.
func (hm *HeartbeatMonitor) Start(ctx context.Context) error {
	hm.mu.Lock()
	if hm.running {
		hm.mu.Unlock()
		return nil
	}
	hm.running = true
	hm.stopChan = make(chan struct{})
	hm.doneChan = make(chan struct{})
	if hm.bus != nil {
		hm.events, hm.cancelFn = hm.bus.Subscribe(256)
	}
	hm.mu.Unlock()

	go hm.run(ctx)

	logger.InfoCF("swarm", "Heartbeat monitor started", map[string]any{
		"check_interval":  hm.cfg.CheckInterval.String(),
		"offline_timeout": hm.cfg.OfflineTimeout.String(),
	})
	return nil
}

// Stop halts the sweep loop and waits for it to exit.
func (hm *HeartbeatMonitor) Stop() {
	hm.mu.Lock()
	if !hm.running {
		hm.mu.Unlock()
		return
	}
	hm.running = false
	close(hm.stopChan)
	hm.mu.Unlock()

	<-hm.doneChan
	if hm.cancelFn != nil {
		hm.cancelFn()
	}
	logger.InfoC("swarm", "Heartbeat monitor stopped")
}

func (hm *HeartbeatMonitor) run(ctx context.Context) {
	defer close(hm.doneChan)

	events := hm.events
	ticker := time.NewTicker(hm.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			hm.observe(evt)
		case <-ticker.C:
			hm.checkBeats()
		case <-hm.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// observe turns registry activity events into beats.
func (hm *HeartbeatMonitor) observe(evt bus.Event) {
	id, _ := evt.Fields["agent_id"].(string)
	if id == "" {
		return
	}
	switch evt.Type {
	case bus.EventAgentRegistered, bus.EventTaskAssigned, bus.EventTaskCompleted, bus.EventCoordination:
		hm.Beat(id)
	case bus.EventAgentRemoved:
		hm.Forget(id)
	}
}

// Beat records liveness for an agent and restores it to idle if the
// monitor had marked it offline.
func (hm *HeartbeatMonitor) Beat(agentID string) {
	hm.mu.Lock()
	hm.beats[agentID] = time.Now().UnixMilli()
	hm.mu.Unlock()

	agent, ok := hm.coord.Agent(agentID)
	if !ok || agent.Status != StatusOffline {
		return
	}
	if err := hm.coord.SetAgentStatus(agentID, StatusIdle); err != nil {
		return
	}
	logger.InfoCF("swarm", "Agent back online", map[string]any{"agent": agentID})
}

// Forget stops tracking an agent.
func (hm *HeartbeatMonitor) Forget(agentID string) {
	hm.mu.Lock()
	delete(hm.beats, agentID)
	hm.mu.Unlock()
}

// LastBeat returns the last recorded activity for an agent, zero when
// the agent has never beaten.
func (hm *HeartbeatMonitor) LastBeat(agentID string) time.Time {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	ts, ok := hm.beats[agentID]
	if !ok {
		return time.Time{}
	}
	return time.UnixMilli(ts)
}

// checkBeats sweeps idle agents for staleness. An agent seen for the
// first time gets a full timeout window before it can go stale.
func (hm *HeartbeatMonitor) checkBeats() {
	now := time.Now().UnixMilli()
	stale := now - hm.cfg.OfflineTimeout.Milliseconds()

	agents := hm.coord.ListAgents(Filter{})
	known := make(map[string]bool, len(agents))

	for _, agent := range agents {
		known[agent.ID] = true
		if agent.Status != StatusIdle {
			continue
		}

		hm.mu.Lock()
		last, seen := hm.beats[agent.ID]
		if !seen {
			hm.beats[agent.ID] = now
		}
		hm.mu.Unlock()

		if !seen || last >= stale {
			continue
		}
		if err := hm.coord.SetAgentStatus(agent.ID, StatusOffline); err != nil {
			continue
		}
		logger.WarnCF("swarm", "Agent marked offline", map[string]any{
			"agent":     agent.ID,
			"last_seen": time.UnixMilli(last).Format(time.RFC3339),
		})
	}

	// Drop beats for agents no longer in the registry.
	hm.mu.Lock()
	for id := range hm.beats {
		if !known[id] {
			delete(hm.beats, id)
		}
	}
	hm.mu.Unlock()
}
