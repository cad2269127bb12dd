package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type jsonEntry struct {
	Value     any       `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type jsonSnapshot struct {
	Version    int                             `json:"version"`
	Namespaces map[string]map[string]jsonEntry `json:"namespaces"`
}

// JSONFileStore keeps the whole dataset in memory and rewrites a single
// JSON file on every mutation (temp + rename, so readers never see a
// partial write). A size cap bounds the rewrite cost; writes that would
// exceed it are rejected with an error Result.
type JSONFileStore struct {
	path     string
	maxBytes int64
	data     map[string]map[string]jsonEntry
	modified time.Time
	mu       sync.RWMutex
}

func NewJSONFileStore(dir string, maxBytes int64) (*JSONFileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("kv: create directory: %w", err)
	}
	if maxBytes <= 0 {
		maxBytes = 50 * 1024 * 1024
	}

	s := &JSONFileStore{
		path:     filepath.Join(dir, "kv.json"),
		maxBytes: maxBytes,
		data:     make(map[string]map[string]jsonEntry),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *JSONFileStore) load() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("kv: read %s: %w", s.path, err)
	}

	var snap jsonSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("kv: decode %s: %w", s.path, err)
	}
	if snap.Namespaces != nil {
		s.data = snap.Namespaces
	}
	if info, err := os.Stat(s.path); err == nil {
		s.modified = info.ModTime()
	}
	return nil
}

// flush writes the snapshot atomically. Caller holds the write lock.
func (s *JSONFileStore) flush() error {
	data, err := json.MarshalIndent(jsonSnapshot{Version: 1, Namespaces: s.data}, "", "  ")
	if err != nil {
		return fmt.Errorf("kv: marshal snapshot: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return fmt.Errorf("kv: snapshot %d bytes exceeds cap %d", len(data), s.maxBytes)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("kv: write tmp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("kv: rename: %w", err)
	}
	s.modified = time.Now().UTC()
	return nil
}

func (s *JSONFileStore) Store(ctx context.Context, key string, value any, namespace string) Result {
	namespace = namespaceOrDefault(namespace)

	if err := ctx.Err(); err != nil {
		return errResult(key, namespace, err)
	}

	// Round-trip through JSON so stored values match what a reload returns.
	raw, err := json.Marshal(value)
	if err != nil {
		return errResult(key, namespace, fmt.Errorf("marshal value: %w", err))
	}
	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return errResult(key, namespace, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.data[namespace]
	if !ok {
		ns = make(map[string]jsonEntry)
		s.data[namespace] = ns
	}

	now := time.Now().UTC()
	prev, existed := ns[key]
	entry := jsonEntry{Value: normalized, CreatedAt: now, UpdatedAt: now}
	if existed {
		entry.CreatedAt = prev.CreatedAt
	}
	ns[key] = entry

	if err := s.flush(); err != nil {
		// Roll back so memory matches disk.
		if existed {
			ns[key] = prev
		} else {
			delete(ns, key)
		}
		return errResult(key, namespace, err)
	}

	return okResult(key, namespace, fmt.Sprintf("kv-%s", uuid.New().String()[:8]))
}

func (s *JSONFileStore) Retrieve(ctx context.Context, key, namespace string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.data[namespaceOrDefault(namespace)][key]
	if !ok {
		return nil, nil
	}
	return entry.Value, nil
}

func (s *JSONFileStore) Search(ctx context.Context, pattern, namespace string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make(map[string]any)
	for key, entry := range s.data[namespaceOrDefault(namespace)] {
		if matchKey(key, pattern) {
			results[key] = entry.Value
		}
	}
	return results, nil
}

func (s *JSONFileStore) Delete(ctx context.Context, key, namespace string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	namespace = namespaceOrDefault(namespace)

	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.data[namespace]
	if !ok {
		return false, nil
	}
	prev, existed := ns[key]
	if !existed {
		return false, nil
	}
	delete(ns, key)
	if len(ns) == 0 {
		delete(s.data, namespace)
	}

	if err := s.flush(); err != nil {
		if s.data[namespace] == nil {
			s.data[namespace] = make(map[string]jsonEntry)
		}
		s.data[namespace][key] = prev
		return false, err
	}
	return true, nil
}

func (s *JSONFileStore) ListNamespaces(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	namespaces := make([]string, 0, len(s.data))
	for ns := range s.data {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)
	return namespaces, nil
}

func (s *JSONFileStore) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		LastModified: s.modified,
		Namespaces:   make(map[string]int),
	}
	for ns, entries := range s.data {
		stats.Namespaces[ns] = len(entries)
		stats.Entries += len(entries)
	}
	if info, err := os.Stat(s.path); err == nil {
		stats.SizeBytes = info.Size()
	}
	return stats, nil
}

func (s *JSONFileStore) Close() error {
	return nil
}
