package sparc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/swarmflow/swarmflow/pkg/core"
)

// ArtifactTypes lists what GenerateArtifacts can render.
var ArtifactTypes = []string{"specification", "pseudocode", "architecture", "refinement", "implementation"}

// GenerateArtifacts renders project products as documents. An empty
// type list means every product the project has; requested types whose
// phase has not run yet are skipped. Format is markdown or json.
func (e *Engine) GenerateArtifacts(projectID string, types []string, format string) ([]Artifact, error) {
	p, err := e.Project(projectID)
	if err != nil {
		return nil, err
	}

	switch format {
	case "", "markdown":
		format = "markdown"
	case "json":
	default:
		return nil, fmt.Errorf("unknown artifact format %q: %w", format, core.ErrValidationFailed)
	}

	if len(types) == 0 {
		types = ArtifactTypes
	}
	for _, t := range types {
		if !knownArtifactType(t) {
			return nil, fmt.Errorf("unknown artifact type %q (supported: %s): %w",
				t, strings.Join(ArtifactTypes, ", "), core.ErrValidationFailed)
		}
	}

	var out []Artifact
	for _, t := range types {
		product, render := productFor(&p, t)
		if product == nil {
			continue
		}

		var content string
		if format == "json" {
			raw, err := json.MarshalIndent(product, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("render %s: %w", t, core.ErrInternal)
			}
			content = string(raw)
		} else {
			content = render()
		}

		out = append(out, Artifact{
			ID:      fmt.Sprintf("art-%s", uuid.New().String()[:8]),
			Type:    t,
			Name:    fmt.Sprintf("%s %s", p.Name, t),
			Format:  format,
			Content: content,
		})
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("project %s has no products to render yet: %w", projectID, core.ErrPreconditionFailed)
	}
	return out, nil
}

func knownArtifactType(t string) bool {
	for _, known := range ArtifactTypes {
		if known == t {
			return true
		}
	}
	return false
}

// productFor pairs an artifact type with its product pointer and
// markdown renderer. A nil product means the phase has not run.
func productFor(p *Project, t string) (any, func() string) {
	switch t {
	case "specification":
		if p.Specification == nil {
			return nil, nil
		}
		return p.Specification, func() string { return renderSpecification(p) }
	case "pseudocode":
		if p.Pseudocode == nil {
			return nil, nil
		}
		return p.Pseudocode, func() string { return renderPseudocode(p) }
	case "architecture":
		if p.Architecture == nil {
			return nil, nil
		}
		return p.Architecture, func() string { return renderArchitecture(p) }
	case "refinement":
		if len(p.Refinements) == 0 {
			return nil, nil
		}
		return p.Refinements, func() string { return renderRefinements(p) }
	case "implementation":
		if p.Implementation == nil {
			return nil, nil
		}
		return p.Implementation, func() string { return renderImplementation(p) }
	}
	return nil, nil
}

func renderSpecification(p *Project) string {
	spec := p.Specification
	var b strings.Builder
	fmt.Fprintf(&b, "# %s — Specification\n\n", p.Name)

	b.WriteString("## Functional requirements\n\n")
	for _, fr := range spec.FunctionalRequirements {
		fmt.Fprintf(&b, "- **%s** (%s): %s — %s\n", fr.ID, fr.Priority, fr.Title, fr.Description)
	}

	b.WriteString("\n## Non-functional requirements\n\n")
	for _, nfr := range spec.NonFunctionalRequirements {
		fmt.Fprintf(&b, "- **%s**: %s — %s\n", nfr.ID, nfr.Title, nfr.Description)
	}

	b.WriteString("\n## Acceptance criteria\n\n")
	for _, ac := range spec.AcceptanceCriteria {
		fmt.Fprintf(&b, "- %s (%s): %s\n", ac.ID, ac.RequirementID, ac.Criteria)
	}

	fmt.Fprintf(&b, "\n## Risks (%s overall)\n\n", spec.RiskAssessment.OverallRisk)
	for i, risk := range spec.RiskAssessment.Risks {
		fmt.Fprintf(&b, "- %s", risk)
		if i < len(spec.RiskAssessment.Mitigations) {
			fmt.Fprintf(&b, " — mitigation: %s", spec.RiskAssessment.Mitigations[i])
		}
		b.WriteString("\n")
	}

	b.WriteString("\n## Success metrics\n\n")
	for _, m := range spec.SuccessMetrics {
		fmt.Fprintf(&b, "- %s\n", m)
	}
	return b.String()
}

func renderPseudocode(p *Project) string {
	pc := p.Pseudocode
	var b strings.Builder
	fmt.Fprintf(&b, "# %s — Pseudocode\n", p.Name)

	for _, alg := range pc.Algorithms {
		fmt.Fprintf(&b, "\n## %s\n\n%s\n\n", alg.Name, alg.Purpose)
		for i, step := range alg.Steps {
			fmt.Fprintf(&b, "%d. %s\n", i+1, step)
		}
		fmt.Fprintf(&b, "\nComplexity: %s time, %s space. Returns %s.\n",
			alg.Complexity.Time, alg.Complexity.Space, alg.Returns)
	}

	b.WriteString("\n## Data structures\n\n")
	for _, ds := range pc.DataStructures {
		fmt.Fprintf(&b, "- %s (%s): %s [%s]\n", ds.Name, ds.Type, ds.Purpose, strings.Join(ds.Operations, ", "))
	}

	ca := pc.ComplexityAnalysis
	fmt.Fprintf(&b, "\n## Complexity\n\n%s time, %s space; best %s, average %s, worst %s.\nBottlenecks: %s.\n",
		ca.Time, ca.Space, ca.BestCase, ca.AverageCase, ca.WorstCase, strings.Join(ca.Bottlenecks, "; "))
	return b.String()
}

func renderArchitecture(p *Project) string {
	arch := p.Architecture
	var b strings.Builder
	fmt.Fprintf(&b, "# %s — Architecture\n\n## Components\n\n", p.Name)
	for _, c := range arch.Components {
		fmt.Fprintf(&b, "- **%s** (%s): %s", c.Name, c.Type, strings.Join(c.Responsibilities, "; "))
		if c.LatencyTargetMS > 0 {
			fmt.Fprintf(&b, " — p95 target %.0fms", c.LatencyTargetMS)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\n## Patterns\n\n%s\n", strings.Join(arch.Patterns, ", "))
	fmt.Fprintf(&b, "\n## Technology stack\n\n%s\n", strings.Join(arch.TechnologyStack, ", "))

	b.WriteString("\n## Data flows\n\n")
	for _, f := range arch.DataFlow {
		fmt.Fprintf(&b, "- %s -> %s: %s over %s (%s)\n", f.From, f.To, f.DataType, f.Protocol, f.Frequency)
	}
	return b.String()
}

func renderRefinements(p *Project) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s — Refinement\n", p.Name)
	for _, ref := range p.Refinements {
		fmt.Fprintf(&b, "\n## Iteration %d\n\n", ref.Iteration)
		for _, s := range ref.Strategies {
			fmt.Fprintf(&b, "- %s (%s): %s\n", s.Category, s.Priority, strings.Join(s.Actions, "; "))
		}
		for _, bench := range ref.BenchmarkResults {
			fmt.Fprintf(&b, "- benchmark %s: %.0fms -> %.0fms (%.0f%% better)\n",
				bench.Name, bench.BaselineMS, bench.OptimizedMS, bench.Improvement*100)
		}
	}
	return b.String()
}

func renderImplementation(p *Project) string {
	impl := p.Implementation
	var b strings.Builder
	fmt.Fprintf(&b, "# %s — Implementation plan\n\n## Source\n\n", p.Name)
	for _, src := range impl.SourceCode {
		fmt.Fprintf(&b, "- %s (%s, %s)\n", src.Path, src.Language, src.Type)
	}

	b.WriteString("\n## Tests\n\n")
	for _, ts := range impl.TestSuites {
		fmt.Fprintf(&b, "- %s: %d cases, %.1f%% coverage\n", ts.Path, ts.Cases, ts.CoverageLines)
	}

	b.WriteString("\n## Documentation\n\n")
	for _, doc := range impl.Documentation {
		fmt.Fprintf(&b, "- %s (%s)\n", doc.Path, doc.Kind)
	}

	b.WriteString("\n## Readiness\n\n")
	for _, rc := range impl.ReadinessChecks {
		fmt.Fprintf(&b, "- %s: %.0f — %s\n", rc.Name, rc.Score, rc.Details)
	}

	b.WriteString("\n## Phase history\n\n")
	for _, phase := range sortedPhases(p) {
		st := p.PhaseStatus[phase]
		fmt.Fprintf(&b, "- %s: %s\n", phase, st.Status)
	}
	return b.String()
}
