package template

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/swarmflow/swarmflow/pkg/core"
)

func coverageTemplate(id string, titles ...string) *Template {
	reqs := make([]RequirementSpec, len(titles))
	for i, title := range titles {
		reqs[i] = RequirementSpec{Title: title}
	}
	return &Template{
		ID:           id,
		Domain:       "rest-api",
		Metadata:     Metadata{Complexity: "moderate"},
		Requirements: reqs,
	}
}

func TestCompatibilityScore(t *testing.T) {
	tests := []struct {
		name string
		tpl  *Template
		spec ProjectSpec
		want float64
	}{
		{
			name: "domain match, no requirements",
			tpl:  coverageTemplate("t1"),
			spec: ProjectSpec{Domain: "rest-api", Complexity: "moderate"},
			want: 1.0, // 0.7 baseline + 0.3 vacuous coverage
		},
		{
			name: "domain mismatch",
			tpl:  coverageTemplate("t1"),
			spec: ProjectSpec{Domain: "neural-networks", Complexity: "moderate"},
			want: 0.7, // 0.4 after mismatch + 0.3 coverage
		},
		{
			name: "heavy template on simple project",
			tpl: &Template{ID: "t1", Domain: "rest-api",
				Metadata: Metadata{Complexity: "enterprise"}},
			spec: ProjectSpec{Domain: "rest-api", Complexity: "simple"},
			want: 0.8, // 0.7 - 0.2 + 0.3
		},
		{
			name: "simple template on enterprise project",
			tpl: &Template{ID: "t1", Domain: "rest-api",
				Metadata: Metadata{Complexity: "simple"}},
			spec: ProjectSpec{Domain: "rest-api", Complexity: "enterprise"},
			want: 0.9, // 0.7 - 0.1 + 0.3
		},
		{
			name: "half coverage",
			tpl:  coverageTemplate("t1", "user management"),
			spec: ProjectSpec{Domain: "rest-api", Complexity: "moderate",
				Requirements: []string{"user management", "realtime sync"}},
			want: 0.85, // 0.7 + 0.3*0.5
		},
		{
			name: "mismatch with zero coverage",
			tpl:  coverageTemplate("t1", "telemetry"),
			spec: ProjectSpec{Domain: "interfaces", Complexity: "moderate",
				Requirements: []string{"payments"}},
			want: 0.4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CompatibilityScore(tt.tpl, tt.spec)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("CompatibilityScore = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompatibilityScoreMonotoneInCoverage(t *testing.T) {
	spec := ProjectSpec{
		Domain:       "rest-api",
		Complexity:   "moderate",
		Requirements: []string{"users", "billing", "reports", "audit"},
	}

	// Templates identical except for how many requirements they cover.
	prev := -1.0
	for covered := 0; covered <= len(spec.Requirements); covered++ {
		tpl := coverageTemplate(fmt.Sprintf("t%d", covered), spec.Requirements[:covered]...)
		score := CompatibilityScore(tpl, spec)
		if score < prev {
			t.Fatalf("score decreased from %v to %v at coverage %d", prev, score, covered)
		}
		prev = score
	}
}

func TestFuzzyMatchBothDirections(t *testing.T) {
	tests := []struct {
		requirement, candidate string
		want                   bool
	}{
		{"CRUD users", "crud", true},
		{"auth", "authentication", true},
		{"billing", "reports", false},
		{"", "anything", false},
	}
	for _, tt := range tests {
		if got := fuzzyMatch(tt.requirement, tt.candidate); got != tt.want {
			t.Errorf("fuzzyMatch(%q, %q) = %v, want %v", tt.requirement, tt.candidate, got, tt.want)
		}
	}
}

func TestFindBest(t *testing.T) {
	r := NewRegistry()
	if err := LoadBuiltins(r); err != nil {
		t.Fatalf("LoadBuiltins failed: %v", err)
	}

	match, ok := r.FindBest(ProjectSpec{
		Name:         "DemoAPI",
		Domain:       "rest-api",
		Complexity:   "moderate",
		Requirements: []string{"CRUD users"},
	})
	if !ok {
		t.Fatal("no compatible template for rest-api project")
	}
	if match.Template.ID != "tpl-rest-api" {
		t.Errorf("best template = %s, want tpl-rest-api", match.Template.ID)
	}
	if match.Score < compatibleThreshold {
		t.Errorf("score %v below threshold", match.Score)
	}
}

func TestFindBestBelowThreshold(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(coverageTemplate("only", "telemetry")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// Domain mismatch (0.4) + zero coverage keeps the score below 0.6.
	match, ok := r.FindBest(ProjectSpec{
		Domain:       "neural-networks",
		Complexity:   "moderate",
		Requirements: []string{"payments"},
	})
	if ok {
		t.Errorf("incompatible template reported ok (score %v)", match.Score)
	}
	if match.Template == nil {
		t.Error("FindBest returned no template even though one exists")
	}
}

func TestFindBestTieBreaksOnID(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"zz-tpl", "aa-tpl"} {
		tpl := coverageTemplate(id)
		if err := r.Register(tpl); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	match, _ := r.FindBest(ProjectSpec{Domain: "rest-api", Complexity: "moderate"})
	if match.Template.ID != "aa-tpl" {
		t.Errorf("tie broke to %s, want aa-tpl", match.Template.ID)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(coverageTemplate("dup")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(coverageTemplate("dup")); !errors.Is(err, core.ErrAlreadyExists) {
		t.Errorf("duplicate Register = %v, want ErrAlreadyExists", err)
	}
	if err := r.Register(&Template{}); !errors.Is(err, core.ErrValidationFailed) {
		t.Errorf("empty-id Register = %v, want ErrValidationFailed", err)
	}
}

func TestListFiltersByDomain(t *testing.T) {
	r := NewRegistry()
	if err := LoadBuiltins(r); err != nil {
		t.Fatalf("LoadBuiltins failed: %v", err)
	}

	all := r.List("")
	if len(all) != 7 {
		t.Errorf("List(all) = %d templates, want 7", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].ID < all[i-1].ID {
			t.Error("List not sorted by id")
		}
	}

	rest := r.List("rest-api")
	if len(rest) != 1 || rest[0].ID != "tpl-rest-api" {
		t.Errorf("List(rest-api) = %+v, want tpl-rest-api only", rest)
	}
}

func TestApplyRunsGeneratorsAndTracksUsage(t *testing.T) {
	r := NewRegistry()
	if err := LoadBuiltins(r); err != nil {
		t.Fatalf("LoadBuiltins failed: %v", err)
	}

	spec := ProjectSpec{
		Name:         "DemoAPI",
		Domain:       "rest-api",
		Complexity:   "moderate",
		Requirements: []string{"CRUD users"},
	}
	app, err := r.Apply("tpl-rest-api", spec)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if app.Specification["project_name"] != "DemoAPI" {
		t.Errorf("specification project_name = %v", app.Specification["project_name"])
	}
	frs, _ := app.Specification["functional_requirements"].([]any)
	if len(frs) == 0 {
		t.Error("specification payload has no functional requirements")
	}
	algos, _ := app.Pseudocode["algorithms"].([]any)
	if len(algos) == 0 {
		t.Error("pseudocode payload has no algorithms")
	}
	comps, _ := app.Architecture["components"].([]any)
	if len(comps) == 0 {
		t.Error("architecture payload has no components")
	}
	if len(app.Customizations) == 0 {
		t.Error("no customization report")
	}

	u, ok := r.UsageFor("tpl-rest-api")
	if !ok || u.Count != 1 {
		t.Errorf("usage = %+v, want count 1", u)
	}

	// Applying twice yields identical deliverable structures.
	again, err := r.Apply("tpl-rest-api", spec)
	if err != nil {
		t.Fatalf("second Apply failed: %v", err)
	}
	if !reflect.DeepEqual(app.Specification, again.Specification) {
		t.Error("specification payloads differ across identical applies")
	}
	if !reflect.DeepEqual(app.Pseudocode, again.Pseudocode) {
		t.Error("pseudocode payloads differ across identical applies")
	}
	if u, _ := r.UsageFor("tpl-rest-api"); u.Count != 2 {
		t.Errorf("usage count = %d, want 2", u.Count)
	}
}

func TestApplyUnknownTemplate(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Apply("tpl-missing", ProjectSpec{}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Apply unknown = %v, want ErrNotFound", err)
	}
}

func TestRate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(coverageTemplate("rated")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if avg, err := r.Rate("rated", 4); err != nil || avg != 4 {
		t.Errorf("first Rate = %v, %v; want 4, nil", avg, err)
	}
	if avg, err := r.Rate("rated", 2); err != nil || avg != 3 {
		t.Errorf("second Rate = %v, %v; want 3, nil", avg, err)
	}
	// Ratings are clamped to [0,5].
	if avg, _ := r.Rate("rated", 99); avg != (4.0+2.0+5.0)/3.0 {
		t.Errorf("clamped Rate average = %v", avg)
	}

	if _, err := r.Rate("missing", 3); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Rate unknown = %v, want ErrNotFound", err)
	}
}

func TestBuiltinsCoverEveryDomain(t *testing.T) {
	want := []string{
		"general", "interfaces", "memory-systems", "neural-networks",
		"rest-api", "swarm-coordination", "wasm-integration",
	}
	seen := map[string]bool{}
	for _, tpl := range Builtins() {
		seen[tpl.Domain] = true
		if tpl.GenerateSpecification == nil || tpl.GeneratePseudocode == nil || tpl.GenerateArchitecture == nil {
			t.Errorf("template %s is missing a generator", tpl.ID)
		}
	}
	for _, domain := range want {
		if !seen[domain] {
			t.Errorf("no builtin template for domain %s", domain)
		}
	}
}
