package kv

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Well-known namespaces. Callers may use arbitrary additional namespaces;
// keys are unique per namespace.
const (
	NamespaceDefault   = "default"
	NamespaceAgents    = "agents"
	NamespaceTasks     = "tasks"
	NamespaceWorkflows = "workflows"
	NamespaceProjects  = "projects"
	NamespaceDocuments = "documents"
)

// Result reports the outcome of a Store call. Backend failures surface
// here as Status "error" rather than as a Go error, so callers decide
// whether to retry.
type Result struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Namespace string    `json:"namespace"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
}

type Stats struct {
	Entries      int            `json:"entries"`
	SizeBytes    int64          `json:"size_bytes"`
	LastModified time.Time      `json:"last_modified"`
	Namespaces   map[string]int `json:"namespaces,omitempty"`
}

// Store is the namespaced key-value interface every backend implements.
// Writes are last-writer-wins per key; persistence is atomic — a reader
// never observes a partial write.
type Store interface {
	// Store persists value (which must be JSON-serializable) under
	// (namespace, key), overwriting any previous value.
	Store(ctx context.Context, key string, value any, namespace string) Result

	// Retrieve returns the stored value, or nil (with a nil error) when
	// the key does not exist.
	Retrieve(ctx context.Context, key, namespace string) (any, error)

	// Search returns all entries in the namespace whose key matches
	// pattern: "*" matches every key, anything else is a substring match.
	Search(ctx context.Context, pattern, namespace string) (map[string]any, error)

	// Delete removes the key and reports whether it existed.
	Delete(ctx context.Context, key, namespace string) (bool, error)

	// ListNamespaces returns every namespace that holds at least one entry.
	ListNamespaces(ctx context.Context) ([]string, error)

	// Stats reports entry counts and storage footprint.
	Stats(ctx context.Context) (Stats, error)

	// Close releases any resources held by the store.
	Close() error
}

// Open constructs the backend named by kind: "sqlite", "json", or
// "vector". path is the storage root directory.
func Open(kind, path string, maxFileBytes int64) (Store, error) {
	switch kind {
	case "sqlite", "":
		return NewSQLiteStore(path)
	case "json":
		return NewJSONFileStore(path, maxFileBytes)
	case "vector":
		return NewVectorStore(path, nil)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", kind)
	}
}

func okResult(key, namespace, id string) Result {
	return Result{
		ID:        id,
		Key:       key,
		Namespace: namespace,
		Timestamp: time.Now().UTC(),
		Status:    "ok",
	}
}

func errResult(key, namespace string, err error) Result {
	return Result{
		Key:       key,
		Namespace: namespace,
		Timestamp: time.Now().UTC(),
		Status:    "error",
		Error:     err.Error(),
	}
}

func namespaceOrDefault(namespace string) string {
	if namespace == "" {
		return NamespaceDefault
	}
	return namespace
}

// matchKey implements the shared search contract.
func matchKey(key, pattern string) bool {
	return pattern == "*" || strings.Contains(key, pattern)
}
