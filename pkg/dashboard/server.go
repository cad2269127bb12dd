// SwarmFlow - Multi-agent orchestration kernel
// Dashboard: kernel status API and live event stream
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/swarmflow/swarmflow/pkg/bus"
	"github.com/swarmflow/swarmflow/pkg/logger"
	"github.com/swarmflow/swarmflow/pkg/sparc"
	"github.com/swarmflow/swarmflow/pkg/swarm"
	"github.com/swarmflow/swarmflow/pkg/workflow"
)

// Options configures the dashboard server. Token, when set, is required
// on every request (Authorization bearer header or token query
// parameter). SPARC and Bus are optional; their sections are omitted
// from the payloads when absent.
type Options struct {
	Host  string
	Port  int
	Token string

	Swarm     *swarm.Coordinator
	Workflows *workflow.Engine
	SPARC     *sparc.Engine
	Bus       *bus.EventBus
}

// Server serves the kernel snapshot API, the Prometheus text endpoint,
// and the websocket event stream.
type Server struct {
	opts      Options
	startTime time.Time
	hub       *hub
	httpSrv   *http.Server
	listener  net.Listener
	doneCh    chan struct{}
}

func NewServer(opts Options) *Server {
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	return &Server{
		opts:   opts,
		hub:    newHub(opts.Bus),
		doneCh: make(chan struct{}),
	}
}

// Start binds the listen address and serves in the background. The
// bind happens synchronously so port conflicts surface here, not in a
// goroutine.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.requireToken(s.handleStatus))
	mux.HandleFunc("/api/metrics", s.requireToken(s.handleMetrics))
	mux.HandleFunc("/ws", s.requireToken(s.hub.handleWS))

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("dashboard listen on %s: %w", addr, err)
	}
	s.listener = ln
	s.startTime = time.Now()
	s.httpSrv = &http.Server{
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	s.hub.start()

	go func() {
		defer close(s.doneCh)
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("dashboard", "Server stopped", map[string]any{"error": err.Error()})
		}
	}()

	logger.InfoCF("dashboard", "Dashboard listening", map[string]any{
		"address": ln.Addr().String(),
	})
	return nil
}

// Addr returns the bound address, useful when Port was 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes the event stream and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.stop()

	if s.httpSrv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := s.httpSrv.Shutdown(shutdownCtx)
	<-s.doneCh
	logger.InfoC("dashboard", "Dashboard stopped")
	return err
}

// requireToken gates a handler on the configured access token. Browsers
// opening the websocket cannot set headers, so the query parameter is
// accepted too.
func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	if s.opts.Token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			token = bearerToken(r)
		}
		if token != s.opts.Token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

// handleStatus reports the kernel snapshot: agents, workflows, project
// counts, and the collector's metric map.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"uptime":  time.Since(s.startTime).String(),
		"running": true,
	}

	if s.opts.Swarm != nil {
		agents := s.opts.Swarm.ListAgents(swarm.Filter{})
		byStatus := make(map[string]int)
		for _, a := range agents {
			byStatus[string(a.Status)]++
		}
		resp["agents"] = map[string]any{
			"total":     len(agents),
			"by_status": byStatus,
		}
		resp["metrics"] = s.opts.Swarm.Collector().GetMetrics()
	}

	if s.opts.Workflows != nil {
		active := 0
		byStatus := make(map[string]int)
		for _, snap := range s.opts.Workflows.List("") {
			byStatus[string(snap.Status)]++
			if !snap.Status.Terminal() {
				active++
			}
		}
		resp["workflows"] = map[string]any{
			"active":    active,
			"by_status": byStatus,
		}
	}

	if s.opts.SPARC != nil {
		projects := s.opts.SPARC.ListProjects("", "")
		completed := 0
		for _, p := range projects {
			if p.Status() == "completed" {
				completed++
			}
		}
		resp["projects"] = map[string]any{
			"total":     len(projects),
			"completed": completed,
		}
	}

	if s.opts.Bus != nil {
		resp["events_dropped"] = s.opts.Bus.Dropped()
	}

	writeJSON(w, resp)
}

// handleMetrics serves the collector's Prometheus text exposition.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.opts.Swarm == nil {
		http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	fmt.Fprint(w, s.opts.Swarm.Collector().ExportPrometheus())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
