// SwarmFlow - Multi-agent orchestration kernel
// Built-in domain templates
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package template

import "fmt"

// LoadBuiltins registers one template per supported domain. Ids are
// stable so callers can address them directly.
func LoadBuiltins(r *Registry) error {
	for _, t := range Builtins() {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Builtins returns the stock templates, one per domain.
func Builtins() []*Template {
	return []*Template{
		swarmCoordinationTemplate(),
		neuralNetworksTemplate(),
		memorySystemsTemplate(),
		restAPITemplate(),
		wasmIntegrationTemplate(),
		interfacesTemplate(),
		generalTemplate(),
	}
}

func fr(id, title, priority, description string) map[string]any {
	return map[string]any{"id": id, "title": title, "priority": priority, "description": description}
}

func nfr(id, title, target string) map[string]any {
	return map[string]any{"id": id, "title": title, "target": target}
}

func algorithm(name, purpose string, steps []string, timeC, spaceC string) map[string]any {
	return map[string]any{
		"name":       name,
		"purpose":    purpose,
		"steps":      steps,
		"parameters": []any{},
		"returns":    "result",
		"complexity": map[string]any{"time": timeC, "space": spaceC},
	}
}

func dataStructure(name, kind, purpose string) map[string]any {
	return map[string]any{"name": name, "type": kind, "purpose": purpose}
}

func component(name, kind string, responsibilities ...string) map[string]any {
	resp := make([]any, len(responsibilities))
	for i, r := range responsibilities {
		resp[i] = r
	}
	return map[string]any{"name": name, "type": kind, "responsibilities": resp}
}

func swarmCoordinationTemplate() *Template {
	return &Template{
		ID:     "tpl-swarm-coordination",
		Name:   "Swarm Coordination",
		Domain: "swarm-coordination",
		Metadata: Metadata{
			Complexity:    "high",
			Tags:          []string{"agents", "coordination", "distributed"},
			EstimatedTime: "3-4 weeks",
		},
		Requirements: []RequirementSpec{
			{Title: "agent registration", Priority: "high", Tags: []string{"agents", "registry"}},
			{Title: "task dispatch", Priority: "high", Tags: []string{"dispatch", "scheduling"}},
			{Title: "swarm topology", Priority: "medium", Tags: []string{"mesh", "topology"}},
		},
		GenerateSpecification: func(spec ProjectSpec) map[string]any {
			return map[string]any{
				"functional_requirements": []any{
					fr("FR-1", "Agent registration and lifecycle", "high", "Register, track, and remove coordination agents"),
					fr("FR-2", "Capability-aware task dispatch", "high", "Match tasks to agents by capability and performance"),
					fr("FR-3", "Topology-aware coordination", "medium", "Coordinate agents across mesh, ring, star, and hierarchical layouts"),
				},
				"non_functional_requirements": []any{
					nfr("NFR-1", "Dispatch latency", "assignment under 10ms at 1000 agents"),
					nfr("NFR-2", "Coordination fan-out", "parallel per-agent steps"),
				},
				"constraints":         toAny(spec.Constraints),
				"acceptance_criteria": []any{},
				"success_metrics":     []any{"task throughput", "assignment accuracy"},
			}
		},
		GeneratePseudocode: func(spec ProjectSpec) map[string]any {
			return map[string]any{
				"algorithms": []any{
					algorithm("ScoreAndAssign", "select the best idle agent for a task",
						[]string{"filter idle agents by capability cover", "score candidates", "pick highest score, lowest id on tie", "mark busy"},
						"O(n)", "O(1)"),
					algorithm("CoordinateSwarm", "run one coordination step across active agents",
						[]string{"snapshot active agents", "fan out per agent", "collect latencies", "aggregate success rate"},
						"O(n)", "O(n)"),
				},
				"data_structures": []any{
					dataStructure("AgentRegistry", "map", "agents keyed by id with status and performance"),
					dataStructure("TaskLedger", "map", "in-flight tasks keyed by id"),
				},
			}
		},
		GenerateArchitecture: func(spec ProjectSpec) map[string]any {
			return map[string]any{
				"components": []any{
					component("AgentRegistry", "service", "agent lifecycle", "status tracking"),
					component("Dispatcher", "service", "task assignment", "performance scoring"),
					component("CoordinationLoop", "service", "topology fan-out"),
				},
				"patterns":         []any{"Event-Driven"},
				"technology_stack": []any{"in-process event bus", "namespaced KV store"},
			}
		},
	}
}

func neuralNetworksTemplate() *Template {
	return &Template{
		ID:     "tpl-neural-networks",
		Name:   "Neural Network Pipeline",
		Domain: "neural-networks",
		Metadata: Metadata{
			Complexity:    "complex",
			Tags:          []string{"training", "inference", "models"},
			EstimatedTime: "4-6 weeks",
		},
		Requirements: []RequirementSpec{
			{Title: "model training", Priority: "high", Tags: []string{"training", "optimization"}},
			{Title: "inference serving", Priority: "high", Tags: []string{"inference", "latency"}},
			{Title: "dataset management", Priority: "medium", Tags: []string{"data", "pipeline"}},
		},
		GenerateSpecification: func(spec ProjectSpec) map[string]any {
			return map[string]any{
				"functional_requirements": []any{
					fr("FR-1", "Training pipeline", "high", "Configure, run, and checkpoint model training"),
					fr("FR-2", "Inference service", "high", "Serve predictions with bounded latency"),
					fr("FR-3", "Dataset versioning", "medium", "Track dataset lineage per training run"),
				},
				"non_functional_requirements": []any{
					nfr("NFR-1", "Inference latency", "p99 under 100ms"),
					nfr("NFR-2", "Training resumability", "checkpoint every epoch"),
				},
				"constraints":         toAny(spec.Constraints),
				"acceptance_criteria": []any{},
				"success_metrics":     []any{"model accuracy", "inference p99"},
			}
		},
		GeneratePseudocode: func(spec ProjectSpec) map[string]any {
			return map[string]any{
				"algorithms": []any{
					algorithm("TrainEpoch", "run one training epoch with gradient updates",
						[]string{"load batch", "forward pass", "compute loss", "backpropagate", "checkpoint"},
						"O(n·d)", "O(d)"),
					algorithm("Predict", "run a forward pass for one input",
						[]string{"validate input shape", "forward pass", "apply output head"},
						"O(d)", "O(d)"),
				},
				"data_structures": []any{
					dataStructure("ModelState", "tensor map", "weights and optimizer state"),
					dataStructure("BatchQueue", "queue", "prefetched training batches"),
				},
			}
		},
		GenerateArchitecture: func(spec ProjectSpec) map[string]any {
			return map[string]any{
				"components": []any{
					component("TrainingOrchestrator", "service", "epoch scheduling", "checkpointing"),
					component("InferenceServer", "service", "prediction serving"),
					component("DatasetManager", "service", "dataset versioning"),
				},
				"patterns":         []any{"Pipeline"},
				"technology_stack": []any{"model checkpoints", "batch prefetcher"},
			}
		},
	}
}

func memorySystemsTemplate() *Template {
	return &Template{
		ID:     "tpl-memory-systems",
		Name:   "Memory System",
		Domain: "memory-systems",
		Metadata: Metadata{
			Complexity:    "moderate",
			Tags:          []string{"storage", "retrieval", "persistence"},
			EstimatedTime: "2-3 weeks",
		},
		Requirements: []RequirementSpec{
			{Title: "key-value storage", Priority: "high", Tags: []string{"storage", "kv"}},
			{Title: "semantic retrieval", Priority: "medium", Tags: []string{"vector", "search"}},
			{Title: "namespace isolation", Priority: "high", Tags: []string{"namespaces"}},
		},
		GenerateSpecification: func(spec ProjectSpec) map[string]any {
			return map[string]any{
				"functional_requirements": []any{
					fr("FR-1", "Namespaced key-value store", "high", "Store and retrieve values under isolated namespaces"),
					fr("FR-2", "Pattern search", "medium", "Wildcard and substring key search"),
					fr("FR-3", "Similarity retrieval", "medium", "Nearest-neighbor lookup over embedded entries"),
				},
				"non_functional_requirements": []any{
					nfr("NFR-1", "Durability", "atomic writes, no partial reads"),
					nfr("NFR-2", "Read latency", "sub-millisecond for hot keys"),
				},
				"constraints":         toAny(spec.Constraints),
				"acceptance_criteria": []any{},
				"success_metrics":     []any{"store/retrieve round-trip fidelity"},
			}
		},
		GeneratePseudocode: func(spec ProjectSpec) map[string]any {
			return map[string]any{
				"algorithms": []any{
					algorithm("UpsertEntry", "write a value with last-writer-wins semantics",
						[]string{"serialize value", "write entry", "fsync or rename atomically"},
						"O(1)", "O(1)"),
					algorithm("SearchSimilar", "rank stored entries by cosine similarity",
						[]string{"embed query", "score entries", "sort descending", "return top-k"},
						"O(n·d)", "O(n)"),
				},
				"data_structures": []any{
					dataStructure("NamespaceIndex", "map", "entries keyed by (namespace, key)"),
					dataStructure("EmbeddingMatrix", "dense vectors", "one embedding per entry"),
				},
			}
		},
		GenerateArchitecture: func(spec ProjectSpec) map[string]any {
			return map[string]any{
				"components": []any{
					component("StoreBackend", "service", "persistence", "atomic writes"),
					component("SearchIndex", "service", "pattern and similarity search"),
				},
				"patterns":         []any{"Repository"},
				"technology_stack": []any{"sqlite", "gob vector index"},
			}
		},
	}
}

func restAPITemplate() *Template {
	return &Template{
		ID:     "tpl-rest-api",
		Name:   "REST API Service",
		Domain: "rest-api",
		Metadata: Metadata{
			Complexity:    "moderate",
			Tags:          []string{"http", "crud", "api"},
			EstimatedTime: "1-2 weeks",
		},
		Requirements: []RequirementSpec{
			{Title: "CRUD endpoints", Priority: "high", Tags: []string{"crud", "rest", "users"}},
			{Title: "request validation", Priority: "high", Tags: []string{"validation"}},
			{Title: "authentication", Priority: "medium", Tags: []string{"auth", "security"}},
		},
		GenerateSpecification: func(spec ProjectSpec) map[string]any {
			return map[string]any{
				"functional_requirements": []any{
					fr("FR-1", "Resource CRUD", "high", "Create, read, update, and delete domain resources"),
					fr("FR-2", "Input validation", "high", "Reject malformed payloads with structured errors"),
					fr("FR-3", "Authentication", "medium", "Token-based request authentication"),
				},
				"non_functional_requirements": []any{
					nfr("NFR-1", "Throughput", "1000 rps sustained"),
					nfr("NFR-2", "Availability", "99.9% monthly"),
				},
				"constraints":         toAny(spec.Constraints),
				"acceptance_criteria": []any{},
				"success_metrics":     []any{"endpoint error rate", "p95 latency"},
			}
		},
		GeneratePseudocode: func(spec ProjectSpec) map[string]any {
			return map[string]any{
				"algorithms": []any{
					algorithm("HandleRequest", "route, validate, and execute one API request",
						[]string{"match route", "authenticate", "validate payload", "invoke handler", "encode response"},
						"O(1)", "O(1)"),
					algorithm("PaginateList", "serve bounded list queries",
						[]string{"parse cursor", "fetch page+1 rows", "emit next cursor"},
						"O(page)", "O(page)"),
				},
				"data_structures": []any{
					dataStructure("RouteTable", "trie", "method+path to handler"),
					dataStructure("ResourceStore", "table", "persisted domain resources"),
				},
			}
		},
		GenerateArchitecture: func(spec ProjectSpec) map[string]any {
			return map[string]any{
				"components": []any{
					component("HTTPGateway", "gateway", "routing", "authentication"),
					component("ResourceService", "service", "business rules"),
					component("ResourceRepository", "data-manager", "persistence"),
				},
				"patterns":         []any{"Layered"},
				"technology_stack": []any{"http router", "relational store"},
			}
		},
	}
}

func wasmIntegrationTemplate() *Template {
	return &Template{
		ID:     "tpl-wasm-integration",
		Name:   "WASM Integration",
		Domain: "wasm-integration",
		Metadata: Metadata{
			Complexity:    "high",
			Tags:          []string{"wasm", "sandbox", "plugins"},
			EstimatedTime: "3-4 weeks",
		},
		Requirements: []RequirementSpec{
			{Title: "module loading", Priority: "high", Tags: []string{"wasm", "loader"}},
			{Title: "host bindings", Priority: "high", Tags: []string{"bindings", "abi"}},
			{Title: "sandbox limits", Priority: "medium", Tags: []string{"sandbox", "limits"}},
		},
		GenerateSpecification: func(spec ProjectSpec) map[string]any {
			return map[string]any{
				"functional_requirements": []any{
					fr("FR-1", "Module lifecycle", "high", "Load, instantiate, and unload WASM modules"),
					fr("FR-2", "Host function bindings", "high", "Expose a stable host ABI to guest modules"),
					fr("FR-3", "Resource limits", "medium", "Bound guest memory and execution time"),
				},
				"non_functional_requirements": []any{
					nfr("NFR-1", "Isolation", "no guest access outside granted capabilities"),
				},
				"constraints":         toAny(spec.Constraints),
				"acceptance_criteria": []any{},
				"success_metrics":     []any{"module cold-start time"},
			}
		},
		GeneratePseudocode: func(spec ProjectSpec) map[string]any {
			return map[string]any{
				"algorithms": []any{
					algorithm("InstantiateModule", "compile and wire a guest module",
						[]string{"validate binary", "compile", "bind host imports", "instantiate with limits"},
						"O(size)", "O(size)"),
				},
				"data_structures": []any{
					dataStructure("ModuleCache", "map", "compiled modules keyed by digest"),
					dataStructure("CapabilityGrant", "set", "host functions granted per module"),
				},
			}
		},
		GenerateArchitecture: func(spec ProjectSpec) map[string]any {
			return map[string]any{
				"components": []any{
					component("ModuleLoader", "service", "compilation", "caching"),
					component("HostBridge", "service", "ABI dispatch"),
					component("SandboxSupervisor", "service", "limit enforcement"),
				},
				"patterns":         []any{"Plugin"},
				"technology_stack": []any{"wasm runtime", "capability table"},
			}
		},
	}
}

func interfacesTemplate() *Template {
	return &Template{
		ID:     "tpl-interfaces",
		Name:   "Interface Layer",
		Domain: "interfaces",
		Metadata: Metadata{
			Complexity:    "simple",
			Tags:          []string{"cli", "terminal", "ux"},
			EstimatedTime: "1 week",
		},
		Requirements: []RequirementSpec{
			{Title: "command surface", Priority: "high", Tags: []string{"cli", "commands"}},
			{Title: "interactive prompts", Priority: "medium", Tags: []string{"wizard", "prompts"}},
		},
		GenerateSpecification: func(spec ProjectSpec) map[string]any {
			return map[string]any{
				"functional_requirements": []any{
					fr("FR-1", "Command tree", "high", "Nested subcommands with flags and help"),
					fr("FR-2", "Interactive setup", "medium", "Guided prompts for first-run configuration"),
				},
				"non_functional_requirements": []any{
					nfr("NFR-1", "Startup time", "under 50ms to first output"),
				},
				"constraints":         toAny(spec.Constraints),
				"acceptance_criteria": []any{},
				"success_metrics":     []any{"command error rate"},
			}
		},
		GeneratePseudocode: func(spec ProjectSpec) map[string]any {
			return map[string]any{
				"algorithms": []any{
					algorithm("DispatchCommand", "parse argv and execute the matching command",
						[]string{"parse flags", "resolve subcommand", "validate args", "execute"},
						"O(depth)", "O(1)"),
				},
				"data_structures": []any{
					dataStructure("CommandTree", "tree", "subcommands with handlers"),
				},
			}
		},
		GenerateArchitecture: func(spec ProjectSpec) map[string]any {
			return map[string]any{
				"components": []any{
					component("CommandRouter", "gateway", "argv dispatch"),
					component("PromptEngine", "service", "interactive input"),
				},
				"patterns":         []any{"Command"},
				"technology_stack": []any{"cobra-style command tree", "readline prompts"},
			}
		},
	}
}

func generalTemplate() *Template {
	return &Template{
		ID:     "tpl-general",
		Name:   "General Purpose",
		Domain: "general",
		Metadata: Metadata{
			Complexity:    "moderate",
			Tags:          []string{"general"},
			EstimatedTime: "2 weeks",
		},
		Requirements: []RequirementSpec{
			{Title: "core business logic", Priority: "high", Tags: []string{"logic"}},
			{Title: "data persistence", Priority: "medium", Tags: []string{"storage"}},
		},
		GenerateSpecification: func(spec ProjectSpec) map[string]any {
			frs := []any{
				fr("FR-1", "Core domain operations", "high", fmt.Sprintf("Implement the primary operations of %s", spec.Name)),
				fr("FR-2", "State persistence", "medium", "Persist domain state across restarts"),
			}
			return map[string]any{
				"functional_requirements":     frs,
				"non_functional_requirements": []any{nfr("NFR-1", "Reliability", "graceful degradation on backend failure")},
				"constraints":                 toAny(spec.Constraints),
				"acceptance_criteria":         []any{},
				"success_metrics":             []any{"operation success rate"},
			}
		},
		GeneratePseudocode: func(spec ProjectSpec) map[string]any {
			return map[string]any{
				"algorithms": []any{
					algorithm("ProcessOperation", "validate and execute one domain operation",
						[]string{"validate input", "load state", "apply operation", "persist state"},
						"O(1)", "O(1)"),
				},
				"data_structures": []any{
					dataStructure("DomainState", "map", "aggregate state keyed by id"),
				},
			}
		},
		GenerateArchitecture: func(spec ProjectSpec) map[string]any {
			return map[string]any{
				"components": []any{
					component("OperationService", "service", "domain operations"),
					component("StateRepository", "data-manager", "persistence"),
				},
				"patterns":         []any{"Layered"},
				"technology_stack": []any{"kv store"},
			}
		},
	}
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
