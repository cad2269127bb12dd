package kv

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists entries in a single SQLite database with WAL
// journaling, so concurrent readers never block on a writer.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("kv: create directory: %w", err)
	}

	path := filepath.Join(dir, "kv.db")
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("kv: open sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS entries (
		namespace  TEXT NOT NULL,
		key        TEXT NOT NULL,
		value      TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (namespace, key)
	);`)
	if err != nil {
		return fmt.Errorf("kv: init schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Store(ctx context.Context, key string, value any, namespace string) Result {
	namespace = namespaceOrDefault(namespace)

	data, err := json.Marshal(value)
	if err != nil {
		return errResult(key, namespace, fmt.Errorf("marshal value: %w", err))
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entries (namespace, key, value, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(namespace, key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		namespace, key, string(data), now, now)
	if err != nil {
		return errResult(key, namespace, err)
	}

	return okResult(key, namespace, fmt.Sprintf("kv-%s", uuid.New().String()[:8]))
}

func (s *SQLiteStore) Retrieve(ctx context.Context, key, namespace string) (any, error) {
	namespace = namespaceOrDefault(namespace)

	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM entries WHERE namespace=? AND key=?", namespace, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("kv: retrieve %s/%s: %w", namespace, key, err)
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, fmt.Errorf("kv: decode %s/%s: %w", namespace, key, err)
	}
	return value, nil
}

func (s *SQLiteStore) Search(ctx context.Context, pattern, namespace string) (map[string]any, error) {
	namespace = namespaceOrDefault(namespace)

	query := "SELECT key, value FROM entries WHERE namespace=?"
	args := []any{namespace}
	if pattern != "*" {
		query += " AND key LIKE ?"
		args = append(args, "%"+pattern+"%")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("kv: search %s: %w", namespace, err)
	}
	defer rows.Close()

	results := make(map[string]any)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			continue
		}
		results[key] = value
	}
	return results, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, key, namespace string) (bool, error) {
	namespace = namespaceOrDefault(namespace)

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM entries WHERE namespace=? AND key=?", namespace, key)
	if err != nil {
		return false, fmt.Errorf("kv: delete %s/%s: %w", namespace, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListNamespaces(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT namespace FROM entries ORDER BY namespace")
	if err != nil {
		return nil, fmt.Errorf("kv: list namespaces: %w", err)
	}
	defer rows.Close()

	namespaces := []string{}
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, err
		}
		namespaces = append(namespaces, ns)
	}
	return namespaces, rows.Err()
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats

	rows, err := s.db.QueryContext(ctx,
		"SELECT namespace, COUNT(*) FROM entries GROUP BY namespace")
	if err != nil {
		return stats, fmt.Errorf("kv: stats: %w", err)
	}
	defer rows.Close()

	stats.Namespaces = make(map[string]int)
	for rows.Next() {
		var ns string
		var n int
		if err := rows.Scan(&ns, &n); err != nil {
			return stats, err
		}
		stats.Namespaces[ns] = n
		stats.Entries += n
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	var last sql.NullTime
	if err := s.db.QueryRowContext(ctx,
		"SELECT MAX(updated_at) FROM entries").Scan(&last); err == nil && last.Valid {
		stats.LastModified = last.Time
	}

	if info, err := os.Stat(s.path); err == nil {
		stats.SizeBytes = info.Size()
	}
	return stats, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
