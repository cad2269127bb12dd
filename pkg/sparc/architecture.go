// SwarmFlow - Multi-agent orchestration kernel
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package sparc

import (
	"fmt"
	"strings"
)

// architecturePhase builds a component model from the pseudocode: one
// service per algorithm, one data manager per data structure, and a
// fixed infrastructure trio, then derives patterns and data flows.
func architecturePhase(p *Project) (phaseOutput, error) {
	pc := p.Pseudocode
	arch := &Architecture{}

	for _, alg := range pc.Algorithms {
		arch.Components = append(arch.Components, Component{
			ID:               fmt.Sprintf("comp-%d", len(arch.Components)+1),
			Name:             alg.Name + "Service",
			Type:             "service",
			Responsibilities: []string{alg.Purpose},
			Dependencies:     []string{"ConfigurationManager"},
			Provides:         alg.Name + "API",
		})
	}
	for _, ds := range pc.DataStructures {
		arch.Components = append(arch.Components, Component{
			ID:               fmt.Sprintf("comp-%d", len(arch.Components)+1),
			Name:             ds.Name + "Manager",
			Type:             "data-manager",
			Responsibilities: []string{fmt.Sprintf("Own %s storage and access (%s)", ds.Name, ds.Type)},
			Provides:         ds.Name + "Access",
		})
	}

	gatewayDeps := make([]string, 0, len(pc.Algorithms))
	for _, alg := range pc.Algorithms {
		gatewayDeps = append(gatewayDeps, alg.Name+"Service")
	}
	arch.Components = append(arch.Components,
		Component{
			ID:               fmt.Sprintf("comp-%d", len(arch.Components)+1),
			Name:             "APIGateway",
			Type:             "gateway",
			Responsibilities: []string{"route external requests", "authentication and rate limiting"},
			Dependencies:     gatewayDeps,
			Provides:         "PublicAPI",
		},
		Component{
			ID:               fmt.Sprintf("comp-%d", len(arch.Components)+2),
			Name:             "ConfigurationManager",
			Type:             "infrastructure",
			Responsibilities: []string{"serve runtime configuration", "watch for changes"},
			Provides:         "ConfigAccess",
		},
		Component{
			ID:               fmt.Sprintf("comp-%d", len(arch.Components)+3),
			Name:             "MonitoringService",
			Type:             "infrastructure",
			Responsibilities: []string{"collect metrics and health signals"},
			Dependencies:     []string{"PublicAPI"},
		},
	)

	arch.Interfaces = deriveInterfaces(arch.Components, pc)
	arch.Relationships, arch.ValidationResults = deriveRelationships(arch)
	arch.DataFlow = deriveDataFlows(arch)
	arch.Patterns = derivePatterns(p, arch)
	arch.TechnologyStack = technologyStack(p.Domain)
	arch.DeploymentUnits = []string{"gateway", "core-services", "data-plane"}
	arch.QualityAttributes = []string{"scalability", "observability", "maintainability"}
	if complexityRank(p.Complexity) >= 2 {
		arch.QualityAttributes = append(arch.QualityAttributes, "fault-tolerance")
	}

	quality := 1.0
	var recs []string
	for _, v := range arch.ValidationResults {
		if !v.Passed {
			quality = 0.6
			recs = append(recs, v.Recommendation)
		}
	}

	completeness := 1.0
	if n := len(pc.Algorithms); n > 0 {
		services := 0
		for _, c := range arch.Components {
			if c.Type == "service" {
				services++
			}
		}
		completeness = float64(services) / float64(n)
	}

	return phaseOutput{
		deliverables:    []string{"components", "interfaces", "data-flows", "architectural-patterns", "technology-stack"},
		validations:     arch.ValidationResults,
		recommendations: recs,
		quality:         quality,
		completeness:    completeness,
		apply:           func(p *Project) { p.Architecture = arch },
	}, nil
}

func deriveInterfaces(components []Component, pc *Pseudocode) []Interface {
	dsOps := make(map[string][]string, len(pc.DataStructures))
	for _, ds := range pc.DataStructures {
		dsOps[ds.Name+"Access"] = append([]string(nil), ds.Operations...)
	}

	var out []Interface
	for _, c := range components {
		if c.Provides == "" {
			continue
		}
		iface := Interface{Name: c.Provides, Provider: c.Name}
		switch c.Type {
		case "service":
			iface.Methods = []string{"Execute", "Status"}
		case "gateway":
			iface.Methods = []string{"Route", "Health"}
		case "data-manager":
			iface.Methods = dsOps[c.Provides]
		case "infrastructure":
			iface.Methods = []string{"Get", "Watch"}
		}
		out = append(out, iface)
	}
	return out
}

// deriveRelationships resolves declared dependencies by component name
// or provided interface, links every service to every data manager,
// and reports unresolved references as validation failures.
func deriveRelationships(arch *Architecture) ([]Relationship, []ValidationResult) {
	byName := make(map[string]string, len(arch.Components))
	byInterface := make(map[string]string, len(arch.Components))
	for _, c := range arch.Components {
		byName[c.Name] = c.Name
		if c.Provides != "" {
			byInterface[c.Provides] = c.Name
		}
	}

	var rels []Relationship
	unresolved := []string{}
	for _, c := range arch.Components {
		for _, dep := range c.Dependencies {
			target, ok := byName[dep]
			if !ok {
				target, ok = byInterface[dep]
			}
			if !ok {
				unresolved = append(unresolved, fmt.Sprintf("%s -> %s", c.Name, dep))
				continue
			}
			rels = append(rels, Relationship{From: c.Name, To: target, Kind: "dependency"})
		}
	}

	for _, svc := range arch.Components {
		if svc.Type != "service" {
			continue
		}
		for _, dm := range arch.Components {
			if dm.Type == "data-manager" {
				rels = append(rels, Relationship{From: svc.Name, To: dm.Name, Kind: "data-access"})
			}
		}
	}

	defined := make(map[string]bool, len(arch.Interfaces))
	for _, iface := range arch.Interfaces {
		defined[iface.Name] = true
	}
	undefined := 0
	for _, c := range arch.Components {
		if c.Provides != "" && !defined[c.Provides] {
			undefined++
		}
	}

	validations := []ValidationResult{
		check("declared dependencies resolve", len(unresolved) == 0,
			strings.Join(unresolved, "; "),
			"Declare dependencies by component name or a provided interface"),
		check("every provided interface is defined", undefined == 0,
			fmt.Sprintf("%d interfaces", len(arch.Interfaces)),
			"Define an interface entry for every provided contract"),
		check("components derived from design", len(arch.Components) > 0,
			fmt.Sprintf("%d components", len(arch.Components)),
			"Architecture needs at least one component"),
	}
	return rels, validations
}

func deriveDataFlows(arch *Architecture) []DataFlow {
	types := make(map[string]string, len(arch.Components))
	for _, c := range arch.Components {
		types[c.Name] = c.Type
	}

	flows := make([]DataFlow, 0, len(arch.Relationships))
	for _, rel := range arch.Relationships {
		flow := DataFlow{From: rel.From, To: rel.To}
		switch {
		case types[rel.From] == "gateway" || types[rel.To] == "gateway":
			flow.DataType = "request/response"
			flow.Protocol = "HTTP/REST"
			flow.Frequency = "per-request"
		case rel.Kind == "data-access":
			flow.DataType = "records"
			flow.Protocol = "TCP/SQL"
			flow.Frequency = "per-operation"
		default:
			flow.DataType = "messages"
			flow.Protocol = "Internal"
			flow.Frequency = "event-driven"
		}
		flows = append(flows, flow)
	}
	return flows
}

// derivePatterns infers architectural patterns from the component set.
// Layered always applies.
func derivePatterns(p *Project, arch *Architecture) []string {
	var patterns []string
	if len(arch.Components) > 5 {
		patterns = append(patterns, "Microservices")
	}

	coordTerms := []string{"coordination", "agent", "swarm"}
	names := strings.ToLower(p.Name + " " + p.Domain)
	for _, c := range arch.Components {
		names += " " + strings.ToLower(c.Name)
	}
	for _, term := range coordTerms {
		if strings.Contains(names, term) {
			patterns = append(patterns, "Event-Driven")
			break
		}
	}

	for _, c := range arch.Components {
		if c.Type == "data-manager" {
			patterns = append(patterns, "CQRS")
			break
		}
	}
	return append(patterns, "Layered")
}

func technologyStack(domain string) []string {
	switch domain {
	case "rest-api":
		return []string{"Go", "PostgreSQL", "Redis", "Docker"}
	case "neural-networks":
		return []string{"Go", "ONNX runtime", "object storage", "Docker"}
	case "memory-systems":
		return []string{"Go", "SQLite", "vector index", "Docker"}
	case "swarm-coordination":
		return []string{"Go", "in-process event bus", "SQLite", "Docker"}
	case "wasm-integration":
		return []string{"Go", "wazero", "Docker"}
	default:
		return []string{"Go", "SQLite", "Docker"}
	}
}
