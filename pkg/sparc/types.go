package sparc

import "time"

// --- Phases ---

type Phase string

const (
	PhaseSpecification Phase = "specification"
	PhasePseudocode    Phase = "pseudocode"
	PhaseArchitecture  Phase = "architecture"
	PhaseRefinement    Phase = "refinement"
	PhaseCompletion    Phase = "completion"
)

// PhaseOrder is the canonical execution order. completed_phases is
// always a prefix of it.
var PhaseOrder = []Phase{
	PhaseSpecification,
	PhasePseudocode,
	PhaseArchitecture,
	PhaseRefinement,
	PhaseCompletion,
}

// NextPhase returns the phase after p in canonical order, or "" for
// the last phase and unknown phases.
func NextPhase(p Phase) Phase {
	for i, phase := range PhaseOrder {
		if phase == p && i+1 < len(PhaseOrder) {
			return PhaseOrder[i+1]
		}
	}
	return ""
}

func ValidPhase(p Phase) bool {
	for _, phase := range PhaseOrder {
		if phase == p {
			return true
		}
	}
	return false
}

type PhaseState string

const (
	PhaseNotStarted PhaseState = "not-started"
	PhaseInProgress PhaseState = "in-progress"
	PhaseCompleted  PhaseState = "completed"
	PhaseFailed     PhaseState = "failed"
)

// ValidationResult is one validator criterion outcome. Failures carry
// a remediation recommendation where one exists.
type ValidationResult struct {
	Criterion      string `json:"criterion"`
	Passed         bool   `json:"passed"`
	Details        string `json:"details,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
}

// PhaseStatus tracks one phase's lifecycle within a project.
type PhaseStatus struct {
	Status            PhaseState         `json:"status"`
	StartedAt         *time.Time         `json:"started_at,omitempty"`
	CompletedAt       *time.Time         `json:"completed_at,omitempty"`
	DurationMin       float64            `json:"duration_min,omitempty"`
	Deliverables      []string           `json:"deliverables,omitempty"`
	ValidationResults []ValidationResult `json:"validation_results,omitempty"`
}

// --- Specification phase products ---

type Requirement struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Priority    string `json:"priority,omitempty"`
	Description string `json:"description,omitempty"`
}

type AcceptanceCriterion struct {
	ID            string `json:"id"`
	RequirementID string `json:"requirement_id"`
	Criteria      string `json:"criteria"`
}

type RiskAssessment struct {
	Risks       []string `json:"risks"`
	Mitigations []string `json:"mitigations"`
	OverallRisk string   `json:"overall_risk"`
}

type Specification struct {
	FunctionalRequirements    []Requirement         `json:"functional_requirements"`
	NonFunctionalRequirements []Requirement         `json:"non_functional_requirements"`
	Constraints               []string              `json:"constraints"`
	Assumptions               []string              `json:"assumptions"`
	Dependencies              []string              `json:"dependencies"`
	AcceptanceCriteria        []AcceptanceCriterion `json:"acceptance_criteria"`
	RiskAssessment            RiskAssessment        `json:"risk_assessment"`
	SuccessMetrics            []string              `json:"success_metrics"`
}

// --- Pseudocode phase products ---

type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

type ComplexitySummary struct {
	Time  string `json:"time"`
	Space string `json:"space"`
}

type Algorithm struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Purpose    string            `json:"purpose"`
	Steps      []string          `json:"steps"`
	Parameters []Parameter       `json:"parameters"`
	Returns    string            `json:"returns"`
	Complexity ComplexitySummary `json:"complexity"`
}

type DataStructure struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Purpose    string   `json:"purpose"`
	Operations []string `json:"operations,omitempty"`
}

type ControlFlow struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Description string `json:"description,omitempty"`
}

type ComplexityAnalysis struct {
	Time        string   `json:"time"`
	Space       string   `json:"space"`
	Scalability string   `json:"scalability"`
	WorstCase   string   `json:"worst_case"`
	AverageCase string   `json:"average_case"`
	BestCase    string   `json:"best_case"`
	Bottlenecks []string `json:"bottlenecks"`
}

type Pseudocode struct {
	Algorithms         []Algorithm        `json:"algorithms"`
	DataStructures     []DataStructure    `json:"data_structures"`
	ControlFlows       []ControlFlow      `json:"control_flows"`
	Optimizations      []string           `json:"optimizations"`
	Dependencies       []string           `json:"dependencies"`
	ComplexityAnalysis ComplexityAnalysis `json:"complexity_analysis"`
}

// --- Architecture phase products ---

type Component struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Type             string   `json:"type"` // service, data-manager, gateway, infrastructure
	Responsibilities []string `json:"responsibilities,omitempty"`
	Dependencies     []string `json:"dependencies,omitempty"`
	Provides         string   `json:"provides,omitempty"`
	LatencyTargetMS  float64  `json:"latency_target_ms,omitempty"`
}

type Interface struct {
	Name     string   `json:"name"`
	Provider string   `json:"provider"`
	Methods  []string `json:"methods,omitempty"`
}

type Relationship struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"` // dependency, data-access
}

type DataFlow struct {
	From      string `json:"from"`
	To        string `json:"to"`
	DataType  string `json:"data_type"`
	Protocol  string `json:"protocol"`
	Frequency string `json:"frequency"`
}

type Architecture struct {
	Components              []Component        `json:"components"`
	Interfaces              []Interface        `json:"interfaces"`
	Relationships           []Relationship     `json:"relationships"`
	DataFlow                []DataFlow         `json:"data_flow"`
	DeploymentUnits         []string           `json:"deployment_units"`
	QualityAttributes       []string           `json:"quality_attributes"`
	Patterns                []string           `json:"architectural_patterns"`
	TechnologyStack         []string           `json:"technology_stack"`
	SecurityRequirements    []string           `json:"security_requirements,omitempty"`
	ScalabilityRequirements []string           `json:"scalability_requirements,omitempty"`
	ValidationResults       []ValidationResult `json:"validation_results,omitempty"`
}

// --- Refinement phase products ---

type OptimizationStrategy struct {
	Category string   `json:"category"` // performance, security, scalability, code_quality
	Priority string   `json:"priority"` // CRITICAL, HIGH, MEDIUM
	Actions  []string `json:"actions"`
}

type Optimization struct {
	Target         string `json:"target"`
	Change         string `json:"change"`
	ExpectedImpact string `json:"expected_impact,omitempty"`
}

type BenchmarkResult struct {
	Name        string  `json:"name"`
	BaselineMS  float64 `json:"baseline_ms"`
	OptimizedMS float64 `json:"optimized_ms"`
	Improvement float64 `json:"improvement"` // fraction of baseline saved
}

type ImprovementMetric struct {
	Name   string  `json:"name"`
	Before float64 `json:"before"`
	After  float64 `json:"after"`
	Unit   string  `json:"unit,omitempty"`
}

// Feedback drives refinement strategy selection; each list holds the
// issues reviewers raised in that category.
type Feedback struct {
	PerformanceIssues []string `json:"performance_issues,omitempty"`
	SecurityIssues    []string `json:"security_issues,omitempty"`
	ScalabilityIssues []string `json:"scalability_issues,omitempty"`
	CodeQualityIssues []string `json:"code_quality_issues,omitempty"`
}

func (f Feedback) Empty() bool {
	return len(f.PerformanceIssues) == 0 && len(f.SecurityIssues) == 0 &&
		len(f.ScalabilityIssues) == 0 && len(f.CodeQualityIssues) == 0
}

type Refinement struct {
	Iteration                int                    `json:"iteration"`
	Strategies               []OptimizationStrategy `json:"optimization_strategies"`
	PerformanceOptimizations []Optimization         `json:"performance_optimizations"`
	SecurityOptimizations    []Optimization         `json:"security_optimizations"`
	ScalabilityOptimizations []Optimization         `json:"scalability_optimizations"`
	CodeQualityOptimizations []Optimization         `json:"code_quality_optimizations"`
	BenchmarkResults         []BenchmarkResult      `json:"benchmark_results"`
	ImprovementMetrics       []ImprovementMetric    `json:"improvement_metrics"`
}

// --- Completion phase products ---

// CodeArtifact is a record of a planned source file, not compiled
// output.
type CodeArtifact struct {
	Path         string   `json:"path"`
	Language     string   `json:"language"`
	Type         string   `json:"type"`
	Dependencies []string `json:"dependencies,omitempty"`
}

type TestSuite struct {
	Name          string  `json:"name"`
	Path          string  `json:"path"`
	CoverageLines float64 `json:"coverage_lines"`
	Cases         int     `json:"cases"`
}

type DocArtifact struct {
	Title string `json:"title"`
	Path  string `json:"path"`
	Kind  string `json:"kind"`
}

type ReadinessCheck struct {
	Name    string  `json:"name"`
	Score   float64 `json:"score"`
	Details string  `json:"details,omitempty"`
}

type Implementation struct {
	SourceCode             []CodeArtifact   `json:"source_code"`
	TestSuites             []TestSuite      `json:"test_suites"`
	Documentation          []DocArtifact    `json:"documentation"`
	ConfigurationFiles     []CodeArtifact   `json:"configuration_files"`
	DeploymentScripts      []CodeArtifact   `json:"deployment_scripts"`
	MonitoringDashboards   []string         `json:"monitoring_dashboards"`
	SecurityConfigurations []string         `json:"security_configurations"`
	ReadinessChecks        []ReadinessCheck `json:"production_readiness_checks"`
}

// --- Project ---

// Project is one SPARC pipeline run. The engine owns all projects;
// callers hold ids, never pointers.
type Project struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Domain       string   `json:"domain"`
	Complexity   string   `json:"complexity"`
	Requirements []string `json:"requirements,omitempty"`
	Constraints  []string `json:"constraints,omitempty"`

	CurrentPhase    Phase                  `json:"current_phase"`
	CompletedPhases []Phase                `json:"completed_phases"`
	PhaseStatus     map[Phase]*PhaseStatus `json:"phase_status"`
	OverallProgress float64                `json:"overall_progress"`
	TemplateID      string                 `json:"template_id,omitempty"`

	Specification  *Specification  `json:"specification,omitempty"`
	Pseudocode     *Pseudocode     `json:"pseudocode,omitempty"`
	Architecture   *Architecture   `json:"architecture,omitempty"`
	Refinements    []*Refinement   `json:"refinements,omitempty"`
	Implementation *Implementation `json:"implementation,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Status summarizes pipeline position: completed once every phase has
// run, failed while any phase status records a failure, active otherwise.
func (p *Project) Status() string {
	if len(p.CompletedPhases) == len(PhaseOrder) {
		return "completed"
	}
	for _, st := range p.PhaseStatus {
		if st != nil && st.Status == PhaseFailed {
			return "failed"
		}
	}
	return "active"
}

// --- Phase results ---

type PhaseMetrics struct {
	DurationMin     float64 `json:"duration"`
	QualityScore    float64 `json:"quality_score"`
	Completeness    float64 `json:"completeness"`
	ComplexityScore float64 `json:"complexity_score"`
}

// PhaseResult is the summary returned by ExecutePhase.
type PhaseResult struct {
	Phase           Phase        `json:"phase"`
	Success         bool         `json:"success"`
	Deliverables    []string     `json:"deliverables"`
	Metrics         PhaseMetrics `json:"metrics"`
	NextPhase       Phase        `json:"next_phase,omitempty"`
	Recommendations []string     `json:"recommendations,omitempty"`
}

// CompletionReport is the outcome of validate_completion.
type CompletionReport struct {
	ReadyForProduction bool               `json:"readyForProduction"`
	Score              float64            `json:"score"`
	Checks             []ValidationResult `json:"checks"`
}

// Artifact is a rendered project document.
type Artifact struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Format  string `json:"format"`
	Content string `json:"content"`
}

// --- Domains ---

// Domains is the closed set of supported project domains.
var Domains = []string{
	"swarm-coordination",
	"neural-networks",
	"memory-systems",
	"rest-api",
	"wasm-integration",
	"interfaces",
	"general",
}

func ValidDomain(domain string) bool {
	for _, d := range Domains {
		if d == domain {
			return true
		}
	}
	return false
}

// Complexities is the closed set of project complexity grades.
var Complexities = []string{"simple", "moderate", "high", "complex", "enterprise"}

func ValidComplexity(c string) bool {
	for _, v := range Complexities {
		if v == c {
			return true
		}
	}
	return false
}
