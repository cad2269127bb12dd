package sparc

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/swarmflow/swarmflow/pkg/bus"
	"github.com/swarmflow/swarmflow/pkg/core"
	"github.com/swarmflow/swarmflow/pkg/kv"
	"github.com/swarmflow/swarmflow/pkg/template"
)

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	if opts.Templates == nil {
		reg := template.NewRegistry()
		if err := template.LoadBuiltins(reg); err != nil {
			t.Fatalf("LoadBuiltins: %v", err)
		}
		opts.Templates = reg
	}
	return NewEngine(opts)
}

func createProject(t *testing.T, e *Engine, np NewProject) Project {
	t.Helper()
	p, err := e.CreateProject(np)
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	return p
}

func TestCreateProjectDefaults(t *testing.T) {
	e := newTestEngine(t, Options{})

	p := createProject(t, e, NewProject{Name: "Bare"})
	if p.Domain != "general" {
		t.Errorf("Domain = %q, want general", p.Domain)
	}
	if p.Complexity != "moderate" {
		t.Errorf("Complexity = %q, want moderate", p.Complexity)
	}
	if p.CurrentPhase != PhaseSpecification {
		t.Errorf("CurrentPhase = %q, want specification", p.CurrentPhase)
	}
	if p.OverallProgress != 0 {
		t.Errorf("OverallProgress = %v, want 0", p.OverallProgress)
	}
	if len(p.PhaseStatus) != len(PhaseOrder) {
		t.Fatalf("PhaseStatus has %d entries, want %d", len(p.PhaseStatus), len(PhaseOrder))
	}
	for phase, st := range p.PhaseStatus {
		if st.Status != PhaseNotStarted {
			t.Errorf("phase %s status = %q, want not-started", phase, st.Status)
		}
	}
	if !strings.HasPrefix(p.ID, "proj-") {
		t.Errorf("ID = %q, want proj- prefix", p.ID)
	}
}

func TestCreateProjectValidation(t *testing.T) {
	e := newTestEngine(t, Options{})

	tests := []struct {
		name string
		np   NewProject
	}{
		{"missing name", NewProject{}},
		{"blank name", NewProject{Name: "   "}},
		{"unknown domain", NewProject{Name: "X", Domain: "blockchain"}},
		{"unknown complexity", NewProject{Name: "X", Complexity: "extreme"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.CreateProject(tt.np); !errors.Is(err, core.ErrValidationFailed) {
				t.Errorf("CreateProject(%+v) err = %v, want ValidationFailed", tt.np, err)
			}
		})
	}
}

func TestFivePhasePipeline(t *testing.T) {
	e := newTestEngine(t, Options{})
	ctx := context.Background()

	p := createProject(t, e, NewProject{
		Name:         "DemoAPI",
		Domain:       "rest-api",
		Complexity:   "moderate",
		Requirements: []string{"CRUD users"},
	})

	for i, phase := range PhaseOrder {
		res, err := e.ExecutePhase(ctx, p.ID, phase)
		if err != nil {
			t.Fatalf("ExecutePhase(%s): %v", phase, err)
		}
		if !res.Success {
			t.Fatalf("phase %s not successful", phase)
		}
		if res.Phase != phase {
			t.Errorf("result phase = %q, want %q", res.Phase, phase)
		}
		if len(res.Deliverables) == 0 {
			t.Errorf("phase %s produced no deliverables", phase)
		}
		if res.Metrics.QualityScore <= 0 || res.Metrics.QualityScore > 1 {
			t.Errorf("phase %s quality = %v, want (0,1]", phase, res.Metrics.QualityScore)
		}
		if res.Metrics.Completeness <= 0 || res.Metrics.Completeness > 1 {
			t.Errorf("phase %s completeness = %v, want (0,1]", phase, res.Metrics.Completeness)
		}
		if res.Metrics.ComplexityScore != 0.7 {
			t.Errorf("phase %s complexity score = %v, want 0.7", phase, res.Metrics.ComplexityScore)
		}

		wantNext := Phase("")
		if i+1 < len(PhaseOrder) {
			wantNext = PhaseOrder[i+1]
		}
		if res.NextPhase != wantNext {
			t.Errorf("phase %s next = %q, want %q", phase, res.NextPhase, wantNext)
		}
	}

	got, err := e.Project(p.ID)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if got.OverallProgress != 1.0 {
		t.Errorf("OverallProgress = %v, want 1.0", got.OverallProgress)
	}
	if len(got.CompletedPhases) != len(PhaseOrder) {
		t.Fatalf("CompletedPhases = %v, want all five", got.CompletedPhases)
	}
	for i, phase := range got.CompletedPhases {
		if phase != PhaseOrder[i] {
			t.Errorf("CompletedPhases[%d] = %q, want %q (canonical order)", i, phase, PhaseOrder[i])
		}
	}

	if got.Specification == nil || got.Pseudocode == nil || got.Architecture == nil || got.Implementation == nil {
		t.Fatal("pipeline left a product nil")
	}
	if len(got.Refinements) != 1 {
		t.Fatalf("Refinements = %d, want 1", len(got.Refinements))
	}

	foundReq := false
	for _, fr := range got.Specification.FunctionalRequirements {
		if fr.Title == "CRUD users" && fr.Priority == "high" {
			foundReq = true
		}
	}
	if !foundReq {
		t.Error("project requirement missing from functional requirements")
	}

	foundAlg := false
	for _, alg := range got.Pseudocode.Algorithms {
		if alg.Name == "ProcessCrudUsers" {
			foundAlg = true
		}
	}
	if !foundAlg {
		t.Errorf("no ProcessCrudUsers algorithm in %d algorithms", len(got.Pseudocode.Algorithms))
	}

	names := make(map[string]bool)
	for _, c := range got.Architecture.Components {
		names[c.Name] = true
	}
	for _, fixed := range []string{"APIGateway", "ConfigurationManager", "MonitoringService"} {
		if !names[fixed] {
			t.Errorf("architecture missing fixed component %s", fixed)
		}
	}

	if len(got.Implementation.Documentation) < 5 {
		t.Errorf("documentation = %d records, want >= 5", len(got.Implementation.Documentation))
	}
	for _, st := range got.PhaseStatus {
		if st.Status != PhaseCompleted {
			t.Errorf("phase status %q, want completed", st.Status)
		}
		if st.CompletedAt == nil {
			t.Error("CompletedAt not set")
		}
	}
}

func TestPhasePrerequisiteFailure(t *testing.T) {
	e := newTestEngine(t, Options{})
	p := createProject(t, e, NewProject{Name: "OutOfOrder", Domain: "general"})

	_, err := e.ExecutePhase(context.Background(), p.ID, PhasePseudocode)
	if !errors.Is(err, core.ErrPreconditionFailed) {
		t.Fatalf("err = %v, want PreconditionFailed", err)
	}

	got, err := e.Project(p.ID)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	st := got.PhaseStatus[PhasePseudocode]
	if st.Status != PhaseFailed {
		t.Errorf("pseudocode status = %q, want failed", st.Status)
	}
	if len(st.ValidationResults) != 1 || st.ValidationResults[0].Passed {
		t.Errorf("ValidationResults = %+v, want one failed result", st.ValidationResults)
	}
	if len(got.CompletedPhases) != 0 {
		t.Errorf("CompletedPhases = %v, want empty", got.CompletedPhases)
	}
	if got.CurrentPhase != PhaseSpecification {
		t.Errorf("CurrentPhase = %q, want specification (unchanged)", got.CurrentPhase)
	}
	if got.Specification != nil || got.Pseudocode != nil {
		t.Error("prerequisite failure must not create products")
	}
	if got.OverallProgress != 0 {
		t.Errorf("OverallProgress = %v, want 0", got.OverallProgress)
	}
}

func TestCompletionRequiresRefinement(t *testing.T) {
	e := newTestEngine(t, Options{})
	ctx := context.Background()
	p := createProject(t, e, NewProject{Name: "NoRefine", Requirements: []string{"store notes"}})

	for _, phase := range []Phase{PhaseSpecification, PhasePseudocode, PhaseArchitecture} {
		if _, err := e.ExecutePhase(ctx, p.ID, phase); err != nil {
			t.Fatalf("ExecutePhase(%s): %v", phase, err)
		}
	}

	if _, err := e.ExecutePhase(ctx, p.ID, PhaseCompletion); !errors.Is(err, core.ErrPreconditionFailed) {
		t.Fatalf("completion without refinement err = %v, want PreconditionFailed", err)
	}
}

func TestExecutePhaseErrors(t *testing.T) {
	e := newTestEngine(t, Options{})
	ctx := context.Background()

	if _, err := e.ExecutePhase(ctx, "proj-missing", PhaseSpecification); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("unknown project err = %v, want NotFound", err)
	}

	p := createProject(t, e, NewProject{Name: "X"})
	if _, err := e.ExecutePhase(ctx, p.ID, Phase("deployment")); !errors.Is(err, core.ErrValidationFailed) {
		t.Errorf("unknown phase err = %v, want ValidationFailed", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := e.ExecutePhase(cancelled, p.ID, PhaseSpecification); !errors.Is(err, core.ErrCancelled) {
		t.Errorf("cancelled ctx err = %v, want Cancelled", err)
	}
}

func TestReRunCompletedPhaseKeepsProgress(t *testing.T) {
	e := newTestEngine(t, Options{})
	ctx := context.Background()
	p := createProject(t, e, NewProject{Name: "Idempotent", Requirements: []string{"sync data"}})

	for i := 0; i < 2; i++ {
		if _, err := e.ExecutePhase(ctx, p.ID, PhaseSpecification); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	got, _ := e.Project(p.ID)
	if len(got.CompletedPhases) != 1 || got.CompletedPhases[0] != PhaseSpecification {
		t.Errorf("CompletedPhases = %v, want [specification]", got.CompletedPhases)
	}
	if got.OverallProgress != 0.2 {
		t.Errorf("OverallProgress = %v, want 0.2", got.OverallProgress)
	}
}

func TestRunPipelineExecutesRemaining(t *testing.T) {
	e := newTestEngine(t, Options{})
	ctx := context.Background()
	p := createProject(t, e, NewProject{Name: "Partway", Requirements: []string{"ingest logs"}})

	if _, err := e.ExecutePhase(ctx, p.ID, PhaseSpecification); err != nil {
		t.Fatalf("ExecutePhase: %v", err)
	}

	results, err := e.RunPipeline(ctx, p.ID)
	if err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4 (specification already done)", len(results))
	}
	if results[0].Phase != PhasePseudocode {
		t.Errorf("first pipeline phase = %q, want pseudocode", results[0].Phase)
	}

	got, _ := e.Project(p.ID)
	if got.OverallProgress != 1.0 {
		t.Errorf("OverallProgress = %v, want 1.0", got.OverallProgress)
	}
}

func TestRunPipelineUnknownProject(t *testing.T) {
	e := newTestEngine(t, Options{})
	if _, err := e.RunPipeline(context.Background(), "proj-nope"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("err = %v, want NotFound", err)
	}
}

func TestValidateCompletion(t *testing.T) {
	e := newTestEngine(t, Options{})
	ctx := context.Background()
	p := createProject(t, e, NewProject{Name: "Gate", Requirements: []string{"serve requests"}})

	report, err := e.ValidateCompletion(p.ID)
	if err != nil {
		t.Fatalf("ValidateCompletion: %v", err)
	}
	if report.ReadyForProduction {
		t.Error("fresh project reported ready for production")
	}

	if _, err := e.RunPipeline(ctx, p.ID); err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}

	report, err = e.ValidateCompletion(p.ID)
	if err != nil {
		t.Fatalf("ValidateCompletion after pipeline: %v", err)
	}
	if !report.ReadyForProduction {
		t.Fatalf("not ready after full pipeline; checks: %+v", report.Checks)
	}
	if report.Score < 85 {
		t.Errorf("Score = %v, want >= 85", report.Score)
	}
	for _, c := range report.Checks {
		if !c.Passed {
			t.Errorf("check %q failed: %s", c.Criterion, c.Details)
		}
	}
}

func TestRefineImplementationAddsIteration(t *testing.T) {
	e := newTestEngine(t, Options{})
	ctx := context.Background()
	p := createProject(t, e, NewProject{Name: "Tune", Requirements: []string{"process orders"}})

	if _, err := e.RunPipeline(ctx, p.ID); err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}

	res, err := e.RefineImplementation(ctx, p.ID, Feedback{
		SecurityIssues:    []string{"tokens logged in plain text"},
		PerformanceIssues: []string{"slow order lookups"},
	})
	if err != nil {
		t.Fatalf("RefineImplementation: %v", err)
	}
	if !res.Success {
		t.Fatal("refinement result not successful")
	}

	got, _ := e.Project(p.ID)
	if len(got.Refinements) != 2 {
		t.Fatalf("Refinements = %d, want 2 (baseline + feedback)", len(got.Refinements))
	}
	ref := got.Refinements[1]
	if ref.Iteration != 2 {
		t.Errorf("Iteration = %d, want 2", ref.Iteration)
	}

	var security *OptimizationStrategy
	for i := range ref.Strategies {
		if ref.Strategies[i].Category == "security" {
			security = &ref.Strategies[i]
		}
	}
	if security == nil {
		t.Fatal("no security strategy for security feedback")
	}
	if security.Priority != "CRITICAL" {
		t.Errorf("security priority = %q, want CRITICAL", security.Priority)
	}

	if len(got.Architecture.SecurityRequirements) == 0 {
		t.Error("refined architecture has no security requirements")
	}
	for _, c := range got.Architecture.Components {
		if c.Type == "service" && c.LatencyTargetMS != serviceLatencyTargetMS {
			t.Errorf("service %s latency target = %v, want %d", c.Name, c.LatencyTargetMS, serviceLatencyTargetMS)
		}
	}
}

func TestPhaseEvents(t *testing.T) {
	eb := bus.NewEventBus()
	defer eb.Close()
	e := newTestEngine(t, Options{Bus: eb})

	ch, cancel := eb.Subscribe(16)
	defer cancel()

	ctx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()

	p := createProject(t, e, NewProject{Name: "Observed", Requirements: []string{"emit events"}})

	evt, ok := bus.Next(ctx, ch)
	if !ok || evt.Type != bus.EventProjectCreated {
		t.Fatalf("first event = %v %v, want project:created", evt.Type, ok)
	}
	if evt.Source != "sparc" {
		t.Errorf("Source = %q, want sparc", evt.Source)
	}

	if _, err := e.ExecutePhase(ctx, p.ID, PhaseSpecification); err != nil {
		t.Fatalf("ExecutePhase: %v", err)
	}

	for _, want := range []bus.EventType{bus.EventPhaseStarted, bus.EventPhaseCompleted} {
		evt, ok := bus.Next(ctx, ch)
		if !ok || evt.Type != want {
			t.Fatalf("event = %v %v, want %v", evt.Type, ok, want)
		}
		if evt.Fields["project_id"] != p.ID {
			t.Errorf("project_id = %v, want %s", evt.Fields["project_id"], p.ID)
		}
		if evt.Fields["phase"] != string(PhaseSpecification) {
			t.Errorf("phase = %v, want specification", evt.Fields["phase"])
		}
	}

	if _, err := e.ExecutePhase(ctx, p.ID, PhaseRefinement); err == nil {
		t.Fatal("refinement without architecture should fail")
	}
	evt, ok = bus.Next(ctx, ch)
	if !ok || evt.Type != bus.EventPhaseFailed {
		t.Fatalf("event = %v %v, want sparc:phase:failed", evt.Type, ok)
	}
}

func TestProjectPersistence(t *testing.T) {
	store, err := kv.NewJSONFileStore(t.TempDir(), 1<<20)
	if err != nil {
		t.Fatalf("NewJSONFileStore: %v", err)
	}
	defer store.Close()

	e := newTestEngine(t, Options{Store: store, PersistProjects: true})
	ctx := context.Background()

	p := createProject(t, e, NewProject{Name: "Durable", Requirements: []string{"persist state"}})
	if _, err := e.ExecutePhase(ctx, p.ID, PhaseSpecification); err != nil {
		t.Fatalf("ExecutePhase: %v", err)
	}

	raw, err := store.Retrieve(ctx, p.ID, kv.NamespaceProjects)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	m, ok := raw.(map[string]any)
	if !ok {
		t.Fatalf("stored project is %T, want map", raw)
	}
	if m["name"] != "Durable" {
		t.Errorf("name = %v, want Durable", m["name"])
	}
	if m["overall_progress"] != 0.2 {
		t.Errorf("overall_progress = %v, want 0.2", m["overall_progress"])
	}
}

func TestRestoreProjects(t *testing.T) {
	dir := t.TempDir()
	store, err := kv.NewJSONFileStore(dir, 1<<20)
	if err != nil {
		t.Fatalf("NewJSONFileStore: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	first := newTestEngine(t, Options{Store: store, PersistProjects: true})
	p := createProject(t, first, NewProject{Name: "Durable", Domain: "rest-api", Requirements: []string{"CRUD users"}})
	if _, err := first.ExecutePhase(ctx, p.ID, PhaseSpecification); err != nil {
		t.Fatalf("ExecutePhase: %v", err)
	}

	second := newTestEngine(t, Options{Store: store, PersistProjects: true})
	restored, err := second.RestoreProjects(ctx)
	if err != nil {
		t.Fatalf("RestoreProjects: %v", err)
	}
	if restored != 1 {
		t.Fatalf("restored = %d, want 1", restored)
	}

	got, err := second.Project(p.ID)
	if err != nil {
		t.Fatalf("Project after restore: %v", err)
	}
	if got.Name != "Durable" {
		t.Errorf("Name = %q, want Durable", got.Name)
	}
	if got.OverallProgress != 0.2 {
		t.Errorf("OverallProgress = %v, want 0.2", got.OverallProgress)
	}
	if st := got.PhaseStatus[PhaseSpecification]; st == nil || st.Status != PhaseCompleted {
		t.Errorf("specification status = %+v, want completed", st)
	}

	// The prerequisite chain must survive the restart.
	if _, err := second.ExecutePhase(ctx, p.ID, PhasePseudocode); err != nil {
		t.Fatalf("ExecutePhase after restore: %v", err)
	}

	// A second restore over the same store must not duplicate.
	again, err := second.RestoreProjects(ctx)
	if err != nil {
		t.Fatalf("RestoreProjects again: %v", err)
	}
	if again != 0 {
		t.Errorf("second restore = %d, want 0", again)
	}
}

func TestRestoreProjectsWithoutStore(t *testing.T) {
	e := newTestEngine(t, Options{})
	restored, err := e.RestoreProjects(context.Background())
	if err != nil {
		t.Fatalf("RestoreProjects: %v", err)
	}
	if restored != 0 {
		t.Errorf("restored = %d, want 0", restored)
	}
}

func TestListProjectsFilters(t *testing.T) {
	e := newTestEngine(t, Options{})
	a := createProject(t, e, NewProject{Name: "A", Domain: "rest-api", Requirements: []string{"CRUD users"}})
	createProject(t, e, NewProject{Name: "B", Domain: "general"})
	createProject(t, e, NewProject{Name: "C", Domain: "rest-api"})

	all := e.ListProjects("", "")
	if len(all) != 3 {
		t.Fatalf("ListProjects = %d, want 3", len(all))
	}
	if all[0].Name != "A" || all[2].Name != "C" {
		t.Errorf("projects out of creation order: %s, %s, %s", all[0].Name, all[1].Name, all[2].Name)
	}

	rest := e.ListProjects("rest-api", "")
	if len(rest) != 2 {
		t.Fatalf("ListProjects(rest-api) = %d, want 2", len(rest))
	}
	for _, p := range rest {
		if p.Domain != "rest-api" {
			t.Errorf("filtered project has domain %q", p.Domain)
		}
	}

	if _, err := e.RunPipeline(context.Background(), a.ID); err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	done := e.ListProjects("", "completed")
	if len(done) != 1 || done[0].ID != a.ID {
		t.Fatalf("ListProjects(completed) = %v, want just %s", done, a.ID)
	}
	if active := e.ListProjects("", "active"); len(active) != 2 {
		t.Errorf("ListProjects(active) = %d, want 2", len(active))
	}
}

func TestApplyTemplatePinsChoice(t *testing.T) {
	e := newTestEngine(t, Options{})
	// A general-domain project would not match the REST template on its
	// own; pinning forces the merge anyway.
	p := createProject(t, e, NewProject{Name: "Ledger", Domain: "general", Requirements: []string{"CRUD users"}})

	app, err := e.ApplyTemplate(p.ID, "rest-api")
	if err != nil {
		t.Fatalf("ApplyTemplate: %v", err)
	}
	if app.TemplateID == "" {
		t.Fatal("application has no template id")
	}

	got, err := e.Project(p.ID)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if got.TemplateID != app.TemplateID {
		t.Errorf("pinned template = %q, want %q", got.TemplateID, app.TemplateID)
	}

	if _, err := e.ExecutePhase(context.Background(), p.ID, PhaseSpecification); err != nil {
		t.Fatalf("ExecutePhase: %v", err)
	}
	got, _ = e.Project(p.ID)
	if len(got.Specification.FunctionalRequirements) < 2 {
		t.Errorf("pinned template contributed no requirements: %d", len(got.Specification.FunctionalRequirements))
	}

	if _, err := e.ApplyTemplate(p.ID, "no-such-template"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("unknown template error = %v, want ErrNotFound", err)
	}
	if _, err := e.ApplyTemplate("proj-missing", "rest-api"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("unknown project error = %v, want ErrNotFound", err)
	}
}

func TestPhaseAgentMapping(t *testing.T) {
	want := map[Phase]string{
		PhaseSpecification: "system-analyst",
		PhasePseudocode:    "algorithm-designer",
		PhaseArchitecture:  "system-architect",
		PhaseRefinement:    "performance-optimizer",
		PhaseCompletion:    "full-stack-developer",
	}
	for phase, agent := range want {
		if got := PhaseAgent(phase); got != agent {
			t.Errorf("PhaseAgent(%s) = %q, want %q", phase, got, agent)
		}
	}
}

func TestNextPhase(t *testing.T) {
	tests := []struct {
		in   Phase
		want Phase
	}{
		{PhaseSpecification, PhasePseudocode},
		{PhasePseudocode, PhaseArchitecture},
		{PhaseArchitecture, PhaseRefinement},
		{PhaseRefinement, PhaseCompletion},
		{PhaseCompletion, ""},
		{Phase("bogus"), ""},
	}
	for _, tt := range tests {
		if got := NextPhase(tt.in); got != tt.want {
			t.Errorf("NextPhase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
