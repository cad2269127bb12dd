// SwarmFlow - Multi-agent orchestration kernel
// Template registry: domain scaffolding with compatibility scoring
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package template

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/swarmflow/swarmflow/pkg/core"
	"github.com/swarmflow/swarmflow/pkg/logger"
)

// compatibleThreshold is the minimum compatibility score at which a
// template is considered usable for a project.
const compatibleThreshold = 0.6

// Registry holds named templates per domain and tracks their usage.
type Registry struct {
	templates map[string]*Template
	usage     map[string]*Usage
	mu        sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		templates: make(map[string]*Template),
		usage:     make(map[string]*Usage),
	}
}

// Register adds a template. Duplicate ids are rejected.
func (r *Registry) Register(t *Template) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("%w: template id is required", core.ErrValidationFailed)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[t.ID]; ok {
		return fmt.Errorf("template %q: %w", t.ID, core.ErrAlreadyExists)
	}
	r.templates[t.ID] = t
	r.usage[t.ID] = &Usage{}
	return nil
}

func (r *Registry) Get(id string) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[id]
	return t, ok
}

// List returns templates sorted by id, optionally filtered by domain.
func (r *Registry) List(domain string) []*Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Template, 0, len(r.templates))
	for _, t := range r.templates {
		if domain != "" && !strings.EqualFold(t.Domain, domain) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UsageFor reports the bookkeeping for one template.
func (r *Registry) UsageFor(id string) (Usage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.usage[id]
	if !ok {
		return Usage{}, false
	}
	return *u, true
}

// --- Compatibility scoring ---

func complexityRank(c string) int {
	switch strings.ToLower(c) {
	case "simple":
		return 0
	case "moderate", "":
		return 1
	case "high":
		return 2
	case "complex":
		return 3
	case "enterprise":
		return 4
	default:
		return 1
	}
}

// CompatibilityScore rates how well a template fits a project spec.
// Domain equality earns the 0.7 baseline (mismatch costs 0.3 of it);
// complexity misalignment deducts; requirement coverage contributes up
// to 0.3. The result is clamped to [0,1].
func CompatibilityScore(t *Template, spec ProjectSpec) float64 {
	score := 0.7
	if !strings.EqualFold(t.Domain, spec.Domain) {
		score -= 0.3
	}

	tc := complexityRank(t.Metadata.Complexity)
	pc := complexityRank(spec.Complexity)
	if tc >= complexityRank("high") && pc == complexityRank("simple") {
		score -= 0.2
	}
	if tc == complexityRank("simple") && pc == complexityRank("enterprise") {
		score -= 0.1
	}

	score += 0.3 * requirementCoverage(t, spec.Requirements)

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// requirementCoverage is the fraction of project requirements the
// template's requirement titles or tags fuzzy-match. A project with no
// requirements is fully covered.
func requirementCoverage(t *Template, requirements []string) float64 {
	if len(requirements) == 0 {
		return 1
	}
	matched := 0
	for _, want := range requirements {
		if templateCovers(t, want) {
			matched++
		}
	}
	return float64(matched) / float64(len(requirements))
}

func templateCovers(t *Template, requirement string) bool {
	for _, r := range t.Requirements {
		if fuzzyMatch(requirement, r.Title) {
			return true
		}
		for _, tag := range r.Tags {
			if fuzzyMatch(requirement, tag) {
				return true
			}
		}
	}
	return false
}

// fuzzyMatch accepts a containment in either direction, ignoring case.
func fuzzyMatch(requirement, candidate string) bool {
	if requirement == "" || candidate == "" {
		return false
	}
	a := strings.ToLower(requirement)
	b := strings.ToLower(candidate)
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// FindBest scores every template against the spec and returns the
// highest-scoring one. ok reports whether that template clears the
// compatibility threshold. Ties break on lowest template id.
func (r *Registry) FindBest(spec ProjectSpec) (Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.templates))
	for id := range r.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	best := Match{Score: -1}
	for _, id := range ids {
		t := r.templates[id]
		if score := CompatibilityScore(t, spec); score > best.Score {
			best = Match{Template: t, Score: score}
		}
	}
	if best.Template == nil {
		return Match{}, false
	}
	return best, best.Score >= compatibleThreshold
}

// --- Application ---

// Apply runs the template's three generators for the spec, stamps the
// project name into each payload, and updates usage counters.
func (r *Registry) Apply(id string, spec ProjectSpec) (*Application, error) {
	t, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("template %q: %w", id, core.ErrNotFound)
	}

	app := &Application{
		TemplateID:    id,
		Score:         CompatibilityScore(t, spec),
		Specification: runGenerator(t.GenerateSpecification, spec),
		Pseudocode:    runGenerator(t.GeneratePseudocode, spec),
		Architecture:  runGenerator(t.GenerateArchitecture, spec),
		AppliedAt:     time.Now().UTC(),
	}

	for _, payload := range []map[string]any{app.Specification, app.Pseudocode, app.Architecture} {
		payload["project_name"] = spec.Name
	}

	app.Customizations = []string{
		fmt.Sprintf("named for project %q", spec.Name),
		fmt.Sprintf("template %s scaffolds domain %s", id, t.Domain),
	}
	if len(spec.Requirements) > 0 {
		app.Customizations = append(app.Customizations,
			fmt.Sprintf("%d project requirements carried for specification merge", len(spec.Requirements)))
	}

	r.mu.Lock()
	u := r.usage[id]
	u.Count++
	u.LastUsed = app.AppliedAt
	r.mu.Unlock()

	logger.InfoCF("template", "Template applied", map[string]any{
		"template": id,
		"project":  spec.Name,
		"score":    app.Score,
	})
	return app, nil
}

func runGenerator(g Generator, spec ProjectSpec) map[string]any {
	if g == nil {
		return map[string]any{}
	}
	payload := g(spec)
	if payload == nil {
		payload = map[string]any{}
	}
	return payload
}

// Rate records a quality rating (0..5) and returns the new average.
func (r *Registry) Rate(id string, rating float64) (float64, error) {
	if rating < 0 {
		rating = 0
	}
	if rating > 5 {
		rating = 5
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.usage[id]
	if !ok {
		return 0, fmt.Errorf("template %q: %w", id, core.ErrNotFound)
	}
	u.ratingSum += rating
	u.ratingN++
	u.AverageRating = u.ratingSum / float64(u.ratingN)
	return u.AverageRating, nil
}
