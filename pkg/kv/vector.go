package kv

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// embedDim is the fixed dimensionality of locally hashed embeddings.
const embedDim = 128

// Embedder turns text into an embedding vector.
type Embedder interface {
	Embed(text string) []float32
}

// HashEmbedder is a deterministic, network-free embedder: character
// trigrams are feature-hashed into a fixed-size vector and L2-normalized.
// Good enough for similarity over stored records; swap in a real model
// behind the same interface when one is available.
type HashEmbedder struct{}

func (HashEmbedder) Embed(text string) []float32 {
	vec := make([]float32, embedDim)
	if len(text) < 3 {
		text = text + "   "
	}
	for i := 0; i+3 <= len(text); i++ {
		h := fnv.New32a()
		h.Write([]byte(text[i : i+3]))
		vec[h.Sum32()%embedDim]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}

type vectorEntry struct {
	Namespace string
	Key       string
	Text      string // JSON-encoded value
	Embedding []float32
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SimilarResult is one hit from a similarity search.
type SimilarResult struct {
	Key   string  `json:"key"`
	Value any     `json:"value"`
	Score float32 `json:"score"`
}

// VectorStore is an in-memory store with gob persistence and cosine
// similarity search over embedded values. It satisfies the Store
// interface with the usual key semantics and adds SearchSimilar.
type VectorStore struct {
	path     string
	embedder Embedder
	entries  []vectorEntry
	modified time.Time
	mu       sync.RWMutex
}

func NewVectorStore(dir string, embedder Embedder) (*VectorStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("kv: create directory: %w", err)
	}
	if embedder == nil {
		embedder = HashEmbedder{}
	}

	s := &VectorStore{
		path:     filepath.Join(dir, "kv.vec"),
		embedder: embedder,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *VectorStore) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("kv: open %s: %w", s.path, err)
	}
	defer f.Close()

	var entries []vectorEntry
	if err := gob.NewDecoder(f).Decode(&entries); err != nil {
		// Corrupt file — start fresh
		s.entries = nil
		return nil
	}
	s.entries = entries
	if info, err := os.Stat(s.path); err == nil {
		s.modified = info.ModTime()
	}
	return nil
}

// save writes the entries atomically. Caller holds the write lock.
func (s *VectorStore) save() error {
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("kv: create tmp: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(s.entries); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("kv: encode: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("kv: rename: %w", err)
	}
	s.modified = time.Now().UTC()
	return nil
}

func (s *VectorStore) index(namespace, key string) int {
	for i, e := range s.entries {
		if e.Namespace == namespace && e.Key == key {
			return i
		}
	}
	return -1
}

func (s *VectorStore) Store(ctx context.Context, key string, value any, namespace string) Result {
	namespace = namespaceOrDefault(namespace)

	if err := ctx.Err(); err != nil {
		return errResult(key, namespace, err)
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return errResult(key, namespace, fmt.Errorf("marshal value: %w", err))
	}

	now := time.Now().UTC()
	entry := vectorEntry{
		Namespace: namespace,
		Key:       key,
		Text:      string(raw),
		Embedding: s.embedder.Embed(key + " " + string(raw)),
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.entries
	if i := s.index(namespace, key); i >= 0 {
		entry.CreatedAt = s.entries[i].CreatedAt
		s.entries = append(append([]vectorEntry{}, s.entries[:i]...), s.entries[i+1:]...)
	}
	s.entries = append(s.entries, entry)

	if err := s.save(); err != nil {
		s.entries = prev
		return errResult(key, namespace, err)
	}
	return okResult(key, namespace, fmt.Sprintf("kv-%s", uuid.New().String()[:8]))
}

func (s *VectorStore) Retrieve(ctx context.Context, key, namespace string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.index(namespaceOrDefault(namespace), key)
	if i < 0 {
		return nil, nil
	}
	var value any
	if err := json.Unmarshal([]byte(s.entries[i].Text), &value); err != nil {
		return nil, fmt.Errorf("kv: decode %s: %w", key, err)
	}
	return value, nil
}

func (s *VectorStore) Search(ctx context.Context, pattern, namespace string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	namespace = namespaceOrDefault(namespace)

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make(map[string]any)
	for _, e := range s.entries {
		if e.Namespace != namespace || !matchKey(e.Key, pattern) {
			continue
		}
		var value any
		if err := json.Unmarshal([]byte(e.Text), &value); err != nil {
			continue
		}
		results[e.Key] = value
	}
	return results, nil
}

// SearchSimilar returns the topK entries most similar to query by cosine
// similarity, highest first.
func (s *VectorStore) SearchSimilar(ctx context.Context, query, namespace string, topK int) ([]SimilarResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	namespace = namespaceOrDefault(namespace)
	qvec := s.embedder.Embed(query)

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]SimilarResult, 0, len(s.entries))
	for _, e := range s.entries {
		if e.Namespace != namespace || len(e.Embedding) == 0 {
			continue
		}
		var value any
		if err := json.Unmarshal([]byte(e.Text), &value); err != nil {
			continue
		}
		results = append(results, SimilarResult{
			Key:   e.Key,
			Value: value,
			Score: cosine(qvec, e.Embedding),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Key < results[j].Key
	})

	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

func (s *VectorStore) Delete(ctx context.Context, key, namespace string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	namespace = namespaceOrDefault(namespace)

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(namespace, key)
	if i < 0 {
		return false, nil
	}

	prev := s.entries
	s.entries = append(append([]vectorEntry{}, s.entries[:i]...), s.entries[i+1:]...)
	if err := s.save(); err != nil {
		s.entries = prev
		return false, err
	}
	return true, nil
}

func (s *VectorStore) ListNamespaces(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	for _, e := range s.entries {
		seen[e.Namespace] = true
	}
	namespaces := make([]string, 0, len(seen))
	for ns := range seen {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)
	return namespaces, nil
}

func (s *VectorStore) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Entries:      len(s.entries),
		LastModified: s.modified,
		Namespaces:   make(map[string]int),
	}
	for _, e := range s.entries {
		stats.Namespaces[e.Namespace]++
	}
	if info, err := os.Stat(s.path); err == nil {
		stats.SizeBytes = info.Size()
	}
	return stats, nil
}

func (s *VectorStore) Close() error {
	return nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
