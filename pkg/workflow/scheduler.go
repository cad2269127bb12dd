// SwarmFlow - Multi-agent orchestration kernel
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"github.com/swarmflow/swarmflow/pkg/core"
	"github.com/swarmflow/swarmflow/pkg/logger"
)

// Schedule describes when a job fires. Kind "every" fires at a fixed
// interval; kind "cron" follows a standard cron expression.
type Schedule struct {
	Kind    string `json:"kind"`
	EveryMS *int64 `json:"every_ms,omitempty"`
	Expr    string `json:"expr,omitempty"`
}

// Job binds a schedule to a registered workflow definition.
type Job struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Schedule    Schedule       `json:"schedule"`
	Workflow    string         `json:"workflow"`
	Context     map[string]any `json:"context,omitempty"`
	Enabled     bool           `json:"enabled"`
	CreatedAtMS int64          `json:"created_at_ms"`
	LastRunMS   int64          `json:"last_run_ms,omitempty"`
	NextRunMS   int64          `json:"next_run_ms,omitempty"`
}

type jobStore struct {
	Version int   `json:"version"`
	Jobs    []Job `json:"jobs"`
}

// Scheduler starts workflows on a timetable. Jobs persist to a JSON
// store so schedules survive restarts.
type Scheduler struct {
	path     string
	engine   *Engine
	gron     gronx.Gronx
	jobs     []Job
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
	mu       sync.Mutex
}

// NewScheduler loads the job store at path (a missing file starts
// empty, a corrupt one is discarded with a warning). The engine may be
// nil when only managing jobs, but Start requires one.
func NewScheduler(path string, engine *Engine) *Scheduler {
	s := &Scheduler{
		path:     path,
		engine:   engine,
		gron:     *gronx.New(),
		interval: time.Second,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	s.load()
	return s
}

func (s *Scheduler) load() {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var store jobStore
	if err := json.Unmarshal(raw, &store); err != nil {
		logger.WarnCF("workflow", "Job store corrupt, starting fresh", map[string]any{
			"path":  s.path,
			"error": err.Error(),
		})
		return
	}
	s.jobs = store.Jobs
}

// save writes the store atomically with private permissions. Jobs can
// carry workflow context the owner may not want world-readable.
func (s *Scheduler) save() error {
	store := jobStore{Version: 1, Jobs: s.jobs}
	raw, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// AddJob validates the schedule, persists the job, and returns it.
func (s *Scheduler) AddJob(name string, schedule Schedule, workflowName string, wfContext map[string]any, enabled bool) (Job, error) {
	if name == "" {
		return Job{}, fmt.Errorf("%w: job name is required", core.ErrValidationFailed)
	}
	if workflowName == "" {
		return Job{}, fmt.Errorf("%w: job workflow is required", core.ErrValidationFailed)
	}
	now := time.Now()
	next, err := s.nextRun(schedule, now)
	if err != nil {
		return Job{}, err
	}

	job := Job{
		ID:          fmt.Sprintf("job-%s", uuid.New().String()[:8]),
		Name:        name,
		Schedule:    schedule,
		Workflow:    workflowName,
		Context:     wfContext,
		Enabled:     enabled,
		CreatedAtMS: now.UnixMilli(),
		NextRunMS:   next,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	if err := s.save(); err != nil {
		s.jobs = s.jobs[:len(s.jobs)-1]
		return Job{}, fmt.Errorf("save job store: %w", err)
	}

	logger.InfoCF("workflow", "Job added", map[string]any{
		"job_id":   job.ID,
		"name":     name,
		"workflow": workflowName,
		"kind":     schedule.Kind,
	})
	return job, nil
}

func (s *Scheduler) nextRun(schedule Schedule, from time.Time) (int64, error) {
	switch schedule.Kind {
	case "every":
		if schedule.EveryMS == nil || *schedule.EveryMS <= 0 {
			return 0, fmt.Errorf("%w: schedule kind %q requires a positive every_ms", core.ErrValidationFailed, schedule.Kind)
		}
		return from.UnixMilli() + *schedule.EveryMS, nil
	case "cron":
		if !s.gron.IsValid(schedule.Expr) {
			return 0, fmt.Errorf("%w: invalid cron expression %q", core.ErrValidationFailed, schedule.Expr)
		}
		next, err := gronx.NextTickAfter(schedule.Expr, from, false)
		if err != nil {
			return 0, fmt.Errorf("%w: cron expression %q: %v", core.ErrValidationFailed, schedule.Expr, err)
		}
		return next.UnixMilli(), nil
	default:
		return 0, fmt.Errorf("%w: unknown schedule kind %q", core.ErrValidationFailed, schedule.Kind)
	}
}

// RemoveJob deletes a job. Returns false when no job has that id.
func (s *Scheduler) RemoveJob(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, job := range s.jobs {
		if job.ID == id {
			s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
			if err := s.save(); err != nil {
				logger.WarnCF("workflow", "Job store save failed", map[string]any{"error": err.Error()})
			}
			return true
		}
	}
	return false
}

// EnableJob toggles a job. Enabling recomputes the next run from now.
func (s *Scheduler) EnableJob(id string, enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.jobs {
		if s.jobs[i].ID != id {
			continue
		}
		s.jobs[i].Enabled = enabled
		if enabled {
			if next, err := s.nextRun(s.jobs[i].Schedule, time.Now()); err == nil {
				s.jobs[i].NextRunMS = next
			}
		}
		if err := s.save(); err != nil {
			logger.WarnCF("workflow", "Job store save failed", map[string]any{"error": err.Error()})
		}
		return true
	}
	return false
}

// ListJobs returns jobs sorted by name.
func (s *Scheduler) ListJobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, len(s.jobs))
	copy(out, s.jobs)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start begins the scheduling loop. Non-blocking.
func (s *Scheduler) Start() error {
	if s.engine == nil {
		return fmt.Errorf("%w: scheduler requires an engine", core.ErrValidationFailed)
	}
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	go s.loop()
	return nil
}

// Stop halts the loop. Safe to call when never started.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh
}

func (s *Scheduler) loop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.tick(now)
		}
	}
}

func (s *Scheduler) tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowMS := now.UnixMilli()
	fired := false
	for i := range s.jobs {
		job := &s.jobs[i]
		if !job.Enabled || job.NextRunMS == 0 || nowMS < job.NextRunMS {
			continue
		}

		wfID, err := s.engine.StartByName(job.Workflow, job.Context)
		if err != nil {
			logger.WarnCF("workflow", "Scheduled start failed", map[string]any{
				"job_id":   job.ID,
				"workflow": job.Workflow,
				"error":    err.Error(),
			})
		} else {
			logger.InfoCF("workflow", "Scheduled workflow started", map[string]any{
				"job_id":      job.ID,
				"workflow_id": wfID,
			})
		}

		job.LastRunMS = nowMS
		next, nerr := s.nextRun(job.Schedule, now)
		if nerr != nil {
			job.Enabled = false
			next = 0
		}
		job.NextRunMS = next
		fired = true
	}

	if fired {
		if err := s.save(); err != nil {
			logger.WarnCF("workflow", "Job store save failed", map[string]any{"error": err.Error()})
		}
	}
}
