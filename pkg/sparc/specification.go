// SwarmFlow - Multi-agent orchestration kernel
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package sparc

import (
	"fmt"
	"strings"

	"github.com/swarmflow/swarmflow/pkg/logger"
	"github.com/swarmflow/swarmflow/pkg/template"
)

// specificationPhase turns project requirements into a full
// specification. When the template registry has a compatible template
// its payload seeds the requirement and metric sections before the
// project's own requirements are layered on top.
func (e *Engine) specificationPhase(p *Project) (phaseOutput, error) {
	spec := &Specification{}
	var recs []string

	if e.templates != nil {
		if applied, id := e.applyTemplate(p, spec); applied {
			recs = append(recs, fmt.Sprintf("Review the %s template sections against project-specific needs", id))
		} else {
			recs = append(recs, "No compatible template found; requirements were derived from project input alone")
		}
	}

	// Project requirements always become high-priority functional
	// requirements, numbered after whatever the template contributed.
	for _, title := range p.Requirements {
		spec.FunctionalRequirements = append(spec.FunctionalRequirements, Requirement{
			ID:          fmt.Sprintf("fr-%d", len(spec.FunctionalRequirements)+1),
			Title:       title,
			Priority:    "high",
			Description: fmt.Sprintf("The system must support %s", strings.ToLower(title)),
		})
	}
	if len(spec.FunctionalRequirements) == 0 {
		spec.FunctionalRequirements = append(spec.FunctionalRequirements, Requirement{
			ID:          "fr-1",
			Title:       p.Name + " core behavior",
			Priority:    "high",
			Description: "Deliver the core behavior described by the project name",
		})
	}

	if len(spec.NonFunctionalRequirements) == 0 {
		spec.NonFunctionalRequirements = defaultNFRs(p.Complexity)
	}

	spec.Constraints = dedupeStrings(append(spec.Constraints, p.Constraints...))
	spec.Assumptions = []string{
		"stable runtime environment with reliable local storage",
		"single team owns the full delivery",
	}
	spec.Dependencies = domainDependencies(p.Domain)

	ensureAcceptanceCoverage(spec)
	spec.RiskAssessment = assessRisk(p)
	if len(spec.SuccessMetrics) == 0 {
		spec.SuccessMetrics = []string{
			"all acceptance criteria pass",
			"p95 latency stays within the stated target",
			"zero critical defects in the first month of operation",
		}
	}

	validations, quality := validateSpecification(spec)
	for _, v := range validations {
		if !v.Passed && v.Recommendation != "" {
			recs = append(recs, v.Recommendation)
		}
	}

	return phaseOutput{
		deliverables: []string{
			"functional-requirements",
			"non-functional-requirements",
			"acceptance-criteria",
			"risk-assessment",
			"success-metrics",
		},
		validations:     validations,
		recommendations: recs,
		quality:         quality,
		completeness:    specificationCompleteness(spec),
		apply:           func(p *Project) { p.Specification = spec },
	}, nil
}

// applyTemplate merges a template's specification payload into spec. A
// template pinned via ApplyTemplate takes precedence; otherwise the
// registry picks the best match. Returns whether a template applied and
// its id.
func (e *Engine) applyTemplate(p *Project, spec *Specification) (bool, string) {
	id := p.TemplateID
	if id == "" {
		match, ok := e.templates.FindBest(templateSpec(p))
		if !ok {
			return false, ""
		}
		id = match.Template.ID
	}

	app, err := e.templates.Apply(id, templateSpec(p))
	if err != nil {
		logger.WarnCF("sparc", "Template apply failed", map[string]any{
			"project":  p.ID,
			"template": id,
			"error":    err.Error(),
		})
		return false, ""
	}

	spec.FunctionalRequirements = payloadRequirements(app.Specification, "functional_requirements")
	spec.NonFunctionalRequirements = payloadRequirements(app.Specification, "non_functional_requirements")
	spec.Constraints = payloadStrings(app.Specification, "constraints")
	spec.SuccessMetrics = payloadStrings(app.Specification, "success_metrics")
	for i, crit := range payloadStrings(app.Specification, "acceptance_criteria") {
		spec.AcceptanceCriteria = append(spec.AcceptanceCriteria, AcceptanceCriterion{
			ID:       fmt.Sprintf("ac-%d", i+1),
			Criteria: crit,
		})
	}
	return true, id
}

func templateSpec(p *Project) template.ProjectSpec {
	return template.ProjectSpec{
		Name:         p.Name,
		Domain:       p.Domain,
		Complexity:   p.Complexity,
		Requirements: append([]string(nil), p.Requirements...),
		Constraints:  append([]string(nil), p.Constraints...),
	}
}

func defaultNFRs(complexity string) []Requirement {
	nfrs := []Requirement{
		{ID: "nfr-1", Title: "Performance", Priority: "high", Description: "p95 operation latency under 200ms"},
		{ID: "nfr-2", Title: "Reliability", Priority: "high", Description: "graceful degradation when storage is unavailable"},
		{ID: "nfr-3", Title: "Observability", Priority: "medium", Description: "structured logs and counters for every operation"},
	}
	if complexity == "high" || complexity == "complex" || complexity == "enterprise" {
		nfrs = append(nfrs, Requirement{
			ID: "nfr-4", Title: "Scalability", Priority: "high",
			Description: "horizontal scaling without coordination downtime",
		})
	}
	return nfrs
}

func domainDependencies(domain string) []string {
	switch domain {
	case "swarm-coordination":
		return []string{"in-process event bus", "namespaced state store"}
	case "neural-networks":
		return []string{"model artifact storage", "numeric compute runtime"}
	case "memory-systems":
		return []string{"embedded key-value engine", "vector index"}
	case "rest-api":
		return []string{"HTTP router", "relational database"}
	case "wasm-integration":
		return []string{"wasm runtime", "host binding layer"}
	case "interfaces":
		return []string{"terminal rendering library"}
	default:
		return []string{"embedded key-value engine"}
	}
}

// ensureAcceptanceCoverage synthesizes a criterion for every
// high-priority functional requirement that lacks one.
func ensureAcceptanceCoverage(spec *Specification) {
	covered := make(map[string]bool, len(spec.AcceptanceCriteria))
	for _, ac := range spec.AcceptanceCriteria {
		if ac.RequirementID != "" {
			covered[ac.RequirementID] = true
		}
	}
	for _, fr := range spec.FunctionalRequirements {
		if fr.Priority != "high" || covered[fr.ID] {
			continue
		}
		spec.AcceptanceCriteria = append(spec.AcceptanceCriteria, AcceptanceCriterion{
			ID:            fmt.Sprintf("ac-%d", len(spec.AcceptanceCriteria)+1),
			RequirementID: fr.ID,
			Criteria:      fmt.Sprintf("Verify %s works end to end and is observable in logs", strings.ToLower(fr.Title)),
		})
	}
}

func assessRisk(p *Project) RiskAssessment {
	risks := []string{"scope creep beyond the stated requirements"}
	mitigations := []string{"freeze the requirement list per phase and re-plan explicitly"}
	overall := "low"

	switch p.Complexity {
	case "high":
		risks = append(risks, "integration complexity across components")
		mitigations = append(mitigations, "define interfaces early and stub integrations")
		overall = "medium"
	case "complex", "enterprise":
		risks = append(risks,
			"integration complexity across components",
			"operational load at production scale")
		mitigations = append(mitigations,
			"define interfaces early and stub integrations",
			"load-test before each release")
		overall = "high"
	}

	switch p.Domain {
	case "neural-networks":
		risks = append(risks, "model drift after deployment")
		mitigations = append(mitigations, "monitor prediction quality and schedule retraining")
	case "swarm-coordination":
		risks = append(risks, "coordination deadlock between agents")
		mitigations = append(mitigations, "bound every wait with a timeout and surface stalls")
	}

	return RiskAssessment{Risks: risks, Mitigations: mitigations, OverallRisk: overall}
}

// validateSpecification checks completeness. The score is the fraction
// of criteria that pass.
func validateSpecification(spec *Specification) ([]ValidationResult, float64) {
	covered := make(map[string]bool, len(spec.AcceptanceCriteria))
	for _, ac := range spec.AcceptanceCriteria {
		covered[ac.RequirementID] = true
	}
	uncovered := 0
	for _, fr := range spec.FunctionalRequirements {
		if fr.Priority == "high" && !covered[fr.ID] {
			uncovered++
		}
	}

	results := []ValidationResult{
		check("functional requirements present", len(spec.FunctionalRequirements) > 0,
			fmt.Sprintf("%d requirements", len(spec.FunctionalRequirements)),
			"Capture at least one functional requirement"),
		check("non-functional requirements present", len(spec.NonFunctionalRequirements) > 0,
			fmt.Sprintf("%d requirements", len(spec.NonFunctionalRequirements)),
			"Add performance and reliability targets"),
		check("acceptance criteria cover high-priority requirements", uncovered == 0,
			fmt.Sprintf("%d high-priority requirements uncovered", uncovered),
			"Write a criterion for every high-priority requirement"),
		check("risk assessment recorded", len(spec.RiskAssessment.Risks) > 0,
			spec.RiskAssessment.OverallRisk+" overall risk",
			"Assess delivery risks before moving on"),
		check("success metrics defined", len(spec.SuccessMetrics) > 0,
			fmt.Sprintf("%d metrics", len(spec.SuccessMetrics)),
			"Define how delivery success will be measured"),
	}

	passed := 0
	for _, r := range results {
		if r.Passed {
			passed++
		}
	}
	return results, float64(passed) / float64(len(results))
}

// specificationCompleteness is the fraction of specification sections
// carrying content.
func specificationCompleteness(spec *Specification) float64 {
	sections := []bool{
		len(spec.FunctionalRequirements) > 0,
		len(spec.NonFunctionalRequirements) > 0,
		len(spec.AcceptanceCriteria) > 0,
		len(spec.RiskAssessment.Risks) > 0,
		len(spec.SuccessMetrics) > 0,
	}
	filled := 0
	for _, ok := range sections {
		if ok {
			filled++
		}
	}
	return float64(filled) / float64(len(sections))
}

func check(criterion string, passed bool, details, recommendation string) ValidationResult {
	v := ValidationResult{Criterion: criterion, Passed: passed, Details: details}
	if !passed {
		v.Recommendation = recommendation
	}
	return v
}

// --- payload extraction ---

// payloadRequirements reads a requirement list out of a template
// payload. Entries missing ids are numbered by position.
func payloadRequirements(payload map[string]any, key string) []Requirement {
	items, ok := payload[key].([]any)
	if !ok {
		return nil
	}
	out := make([]Requirement, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		r := Requirement{
			ID:          stringField(m, "id"),
			Title:       stringField(m, "title"),
			Priority:    stringField(m, "priority"),
			Description: stringField(m, "description"),
		}
		if r.Description == "" {
			r.Description = stringField(m, "target")
		}
		if r.ID == "" {
			r.ID = fmt.Sprintf("req-%d", i+1)
		}
		if r.Title != "" {
			out = append(out, r)
		}
	}
	return out
}

func payloadStrings(payload map[string]any, key string) []string {
	items, ok := payload[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
