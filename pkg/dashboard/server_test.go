package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/goleak"

	"github.com/swarmflow/swarmflow/pkg/bus"
	"github.com/swarmflow/swarmflow/pkg/sparc"
	"github.com/swarmflow/swarmflow/pkg/swarm"
	"github.com/swarmflow/swarmflow/pkg/workflow"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

func newTestOptions(t *testing.T) Options {
	t.Helper()

	events := bus.NewEventBus()
	t.Cleanup(events.Close)

	engine := workflow.NewEngine(workflow.Options{Bus: events})
	t.Cleanup(engine.Close)

	return Options{
		Host:      "127.0.0.1",
		Port:      0,
		Swarm:     swarm.NewCoordinator(swarm.Options{Bus: events}),
		Workflows: engine,
		SPARC:     sparc.NewEngine(sparc.Options{Bus: events}),
		Bus:       events,
	}
}

func startTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	s := NewServer(opts)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Stop(context.Background()); err != nil {
			t.Errorf("Stop() error: %v", err)
		}
	})
	return s
}

func TestStatusEndpoint(t *testing.T) {
	opts := newTestOptions(t)
	if err := opts.Swarm.RegisterAgent(context.Background(), swarm.Agent{
		ID:           "coder-1",
		Type:         "coder",
		Capabilities: []string{"code"},
	}); err != nil {
		t.Fatalf("RegisterAgent() error: %v", err)
	}

	s := startTestServer(t, opts)

	resp, err := http.Get(fmt.Sprintf("http://%s/api/status", s.Addr()))
	if err != nil {
		t.Fatalf("GET /api/status error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if payload["running"] != true {
		t.Errorf("running = %v, want true", payload["running"])
	}
	agents, _ := payload["agents"].(map[string]any)
	if agents == nil || agents["total"] != float64(1) {
		t.Errorf("agents = %v, want total 1", payload["agents"])
	}
	if _, found := payload["metrics"]; !found {
		t.Error("status payload missing metrics section")
	}
	if _, found := payload["workflows"]; !found {
		t.Error("status payload missing workflows section")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := startTestServer(t, newTestOptions(t))

	resp, err := http.Get(fmt.Sprintf("http://%s/api/metrics", s.Addr()))
	if err != nil {
		t.Fatalf("GET /api/metrics error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q, want text/plain exposition", ct)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	for _, series := range []string{"swarmflow_tasks_assigned", "swarmflow_agent_count", "swarmflow_uptime_seconds"} {
		if !strings.Contains(string(body), series) {
			t.Errorf("metrics output missing %s", series)
		}
	}
}

func TestTokenGate(t *testing.T) {
	opts := newTestOptions(t)
	opts.Token = "sesame"
	s := startTestServer(t, opts)

	url := fmt.Sprintf("http://%s/api/status", s.Addr())

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, url, nil)
	req.Header.Set("Authorization", "Bearer sesame")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET with bearer error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status with bearer = %d, want 200", resp.StatusCode)
	}

	// The websocket upgrade accepts the query form.
	wsURL := fmt.Sprintf("ws://%s/ws?token=sesame", s.Addr())
	conn, wsResp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial error: %v", err)
	}
	if wsResp != nil {
		wsResp.Body.Close()
	}
	conn.Close()
}

func TestWebsocketStreamsBusEvents(t *testing.T) {
	opts := newTestOptions(t)
	s := startTestServer(t, opts)

	wsURL := fmt.Sprintf("ws://%s/ws", s.Addr())
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial error: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	opts.Bus.Publish(bus.Event{
		Type:   bus.EventAgentRegistered,
		Source: "swarm",
		Fields: map[string]any{"agent_id": "coder-1"},
	})

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error: %v", err)
	}

	var evt bus.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if evt.Type != bus.EventAgentRegistered {
		t.Errorf("event type = %q, want %q", evt.Type, bus.EventAgentRegistered)
	}
	if evt.Fields["agent_id"] != "coder-1" {
		t.Errorf("agent_id = %v, want coder-1", evt.Fields["agent_id"])
	}
}

func TestWebsocketWithoutBusUnavailable(t *testing.T) {
	opts := newTestOptions(t)
	opts.Bus = nil
	s := startTestServer(t, opts)

	resp, err := http.Get(fmt.Sprintf("http://%s/ws", s.Addr()))
	if err != nil {
		t.Fatalf("GET /ws error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}
