package template

import "time"

// ProjectSpec is the caller's description of the project a template
// will scaffold.
type ProjectSpec struct {
	Name         string   `json:"name"`
	Domain       string   `json:"domain"`
	Complexity   string   `json:"complexity"`
	Requirements []string `json:"requirements,omitempty"`
	Constraints  []string `json:"constraints,omitempty"`
}

// Metadata describes a template's intended scale.
type Metadata struct {
	Complexity    string   `json:"complexity"`
	Tags          []string `json:"tags,omitempty"`
	EstimatedTime string   `json:"estimated_time,omitempty"`
}

// RequirementSpec is one requirement a template covers out of the box.
// Titles and tags feed the fuzzy coverage match.
type RequirementSpec struct {
	Title    string   `json:"title"`
	Priority string   `json:"priority,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// Generator produces one phase payload for a project spec. Payloads are
// open maps so templates can carry whatever shape their domain needs.
type Generator func(spec ProjectSpec) map[string]any

// Template scaffolds the first three SPARC phases for one domain.
type Template struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Domain       string            `json:"domain"`
	Metadata     Metadata          `json:"metadata"`
	Requirements []RequirementSpec `json:"requirements,omitempty"`

	GenerateSpecification Generator `json:"-"`
	GeneratePseudocode    Generator `json:"-"`
	GenerateArchitecture  Generator `json:"-"`
}

// Usage is the registry's per-template bookkeeping.
type Usage struct {
	Count         int       `json:"count"`
	LastUsed      time.Time `json:"last_used"`
	AverageRating float64   `json:"average_rating"`

	ratingSum float64
	ratingN   int
}

// Application is the result of applying a template to a project spec.
type Application struct {
	TemplateID     string         `json:"template_id"`
	Score          float64        `json:"score"`
	Specification  map[string]any `json:"specification"`
	Pseudocode     map[string]any `json:"pseudocode"`
	Architecture   map[string]any `json:"architecture"`
	Customizations []string       `json:"customizations"`
	AppliedAt      time.Time      `json:"applied_at"`
}

// Match pairs a template with its compatibility score for one spec.
type Match struct {
	Template *Template `json:"template"`
	Score    float64   `json:"score"`
}
