package sparc

import (
	"fmt"
	"strings"
	"unicode"
)

// pseudocodePhase derives one algorithm per functional requirement plus
// the data structures and control flows the set implies.
func pseudocodePhase(p *Project) (phaseOutput, error) {
	spec := p.Specification
	pc := &Pseudocode{}

	for i, fr := range spec.FunctionalRequirements {
		pc.Algorithms = append(pc.Algorithms, Algorithm{
			ID:      fmt.Sprintf("alg-%d", i+1),
			Name:    algorithmName(fr.Title),
			Purpose: fmt.Sprintf("Implements %s: %s", fr.ID, fr.Title),
			Steps: []string{
				"Validate and normalize the request input",
				"Load current state from the record registry",
				fmt.Sprintf("Apply the %s rules", strings.ToLower(fr.Title)),
				"Persist the updated state",
				"Emit the result and telemetry",
			},
			Parameters: []Parameter{
				{Name: "ctx", Type: "context", Description: "cancellation and deadline"},
				{Name: "input", Type: "object", Description: "request payload"},
			},
			Returns:    "result object with status and payload",
			Complexity: ComplexitySummary{Time: "O(n)", Space: "O(1)"},
		})
	}

	pc.DataStructures = []DataStructure{
		{Name: "RecordRegistry", Type: "hash-map", Purpose: "primary record lookup by id",
			Operations: []string{"Insert", "Get", "Update", "Delete"}},
		{Name: "WorkQueue", Type: "queue", Purpose: "pending operations in arrival order",
			Operations: []string{"Enqueue", "Dequeue", "Len"}},
	}
	if rank := complexityRank(p.Complexity); rank >= 2 {
		pc.DataStructures = append(pc.DataStructures, DataStructure{
			Name: "ResultCache", Type: "lru-cache", Purpose: "bounded cache of recent results",
			Operations: []string{"Put", "Get", "Evict"},
		})
	}

	pc.ControlFlows = []ControlFlow{
		{Name: "request-dispatch", Kind: "sequential", Description: "validate, apply, persist in order"},
		{Name: "input-validation", Kind: "conditional", Description: "reject malformed input before any state change"},
		{Name: "persist-retry", Kind: "iterative", Description: "retry transient storage failures with backoff"},
		{Name: "failure-path", Kind: "error-handling", Description: "surface errors with kind and context"},
	}

	pc.Optimizations = []string{"batch persistence writes", "cache repeated registry lookups"}
	if len(pc.Algorithms) > 3 {
		pc.Optimizations = append(pc.Optimizations, "run independent requirement flows in parallel")
	}
	pc.Dependencies = append([]string(nil), spec.Dependencies...)

	pc.ComplexityAnalysis = ComplexityAnalysis{
		Time:        "O(n)",
		Space:       "O(n)",
		Scalability: "horizontal by partitioning on record id",
		WorstCase:   "O(n log n)",
		AverageCase: "O(n)",
		BestCase:    "O(1)",
		Bottlenecks: []string{"persistence round-trips", "queue contention under load"},
	}

	validations, quality, recs := validatePseudocode(pc)
	completeness := 1.0
	if n := len(spec.FunctionalRequirements); n > 0 {
		completeness = float64(len(pc.Algorithms)) / float64(n)
		if completeness > 1 {
			completeness = 1
		}
	}

	return phaseOutput{
		deliverables:    []string{"algorithms", "data-structures", "control-flows", "complexity-analysis"},
		validations:     validations,
		recommendations: recs,
		quality:         quality,
		completeness:    completeness,
		apply:           func(p *Project) { p.Pseudocode = pc },
	}, nil
}

// validatePseudocode checks logic depth and complexity coverage, and
// suggests optimizations for thin algorithms.
func validatePseudocode(pc *Pseudocode) ([]ValidationResult, float64, []string) {
	thin := 0
	var recs []string
	for _, alg := range pc.Algorithms {
		if len(alg.Steps) < 3 {
			thin++
			recs = append(recs, fmt.Sprintf("Expand the steps of %s; fewer than three steps rarely covers validation and persistence", alg.Name))
		}
	}

	results := []ValidationResult{
		check("algorithms defined", len(pc.Algorithms) > 0,
			fmt.Sprintf("%d algorithms", len(pc.Algorithms)),
			"Design at least one algorithm per functional requirement"),
		check("algorithm logic has depth", thin == 0,
			fmt.Sprintf("%d algorithms under three steps", thin),
			"Flesh out validation, application, and persistence steps"),
		check("data structures specified", len(pc.DataStructures) > 0,
			fmt.Sprintf("%d structures", len(pc.DataStructures)),
			"Name the structures the algorithms operate on"),
		check("complexity analysis present",
			pc.ComplexityAnalysis.Time != "" && pc.ComplexityAnalysis.Space != "",
			pc.ComplexityAnalysis.Time+" time, "+pc.ComplexityAnalysis.Space+" space",
			"Record time and space complexity for the design"),
	}

	passed := 0
	for _, r := range results {
		if r.Passed {
			passed++
		}
	}
	return results, float64(passed) / float64(len(results)), recs
}

// algorithmName camel-cases a requirement title into an identifier,
// e.g. "CRUD users" becomes ProcessCrudUsers.
func algorithmName(title string) string {
	var b strings.Builder
	b.WriteString("Process")
	for _, word := range strings.FieldsFunc(title, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		runes := []rune(strings.ToLower(word))
		runes[0] = unicode.ToUpper(runes[0])
		b.WriteString(string(runes))
	}
	return b.String()
}

func complexityRank(c string) int {
	switch c {
	case "simple":
		return 0
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
