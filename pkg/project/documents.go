// SwarmFlow - Multi-agent orchestration kernel
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package project

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/swarmflow/swarmflow/pkg/core"
	"github.com/swarmflow/swarmflow/pkg/kv"
	"github.com/swarmflow/swarmflow/pkg/logger"
)

// DocType discriminates the document variants in the tree. When
// scanning, the directory prefix decides the type.
type DocType string

const (
	DocVision  DocType = "vision"
	DocADR     DocType = "adr"
	DocPRD     DocType = "prd"
	DocEpic    DocType = "epic"
	DocFeature DocType = "feature"
	DocTask    DocType = "task"
	DocSpec    DocType = "spec"
)

// docDirs maps each type to its numbered directory under the root.
var docDirs = map[DocType]string{
	DocVision:  "docs/01-vision",
	DocADR:     "docs/02-adrs",
	DocPRD:     "docs/03-prds",
	DocEpic:    "docs/04-epics",
	DocFeature: "docs/05-features",
	DocTask:    "docs/06-tasks",
	DocSpec:    "docs/07-specs",
}

// extraDirs completes the workspace skeleton.
var extraDirs = []string{"src", "tests"}

// Document is one markdown record: a shared front-matter header plus a
// free-form body. Metadata carries the owning project and derivation
// lineage.
type Document struct {
	ID       string            `json:"id" yaml:"id"`
	Type     DocType           `json:"type" yaml:"type"`
	Title    string            `json:"title" yaml:"title"`
	Created  time.Time         `json:"created" yaml:"created"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Body     string            `json:"body,omitempty" yaml:"-"`
	Path     string            `json:"path,omitempty" yaml:"-"`
}

// renderDocument serializes a document as YAML front matter followed by
// a titled markdown body.
func renderDocument(doc *Document) ([]byte, error) {
	head, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("render document %s: %w", doc.ID, err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(head)
	b.WriteString("---\n\n")
	if doc.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", doc.Title)
	}
	b.WriteString(strings.TrimSpace(doc.Body))
	b.WriteString("\n")
	return []byte(b.String()), nil
}

// parseDocument reads a rendered document back. The title heading is
// folded into the Title field, not the body.
func parseDocument(raw []byte) (*Document, error) {
	content := string(raw)
	if !strings.HasPrefix(content, "---\n") {
		return nil, fmt.Errorf("document has no front matter: %w", core.ErrValidationFailed)
	}
	rest := content[4:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil, fmt.Errorf("document front matter is unterminated: %w", core.ErrValidationFailed)
	}

	var doc Document
	if err := yaml.Unmarshal([]byte(rest[:end]), &doc); err != nil {
		return nil, fmt.Errorf("document front matter: %w", err)
	}

	body := strings.TrimSpace(rest[end+4:])
	body = strings.TrimPrefix(body, "# "+doc.Title)
	doc.Body = strings.TrimSpace(body)
	return &doc, nil
}

// Workspace owns the document tree on disk and mirrors every record
// into the documents namespace when a store is configured.
type Workspace struct {
	root  string
	store kv.Store
}

func NewWorkspace(root string, store kv.Store) *Workspace {
	return &Workspace{root: root, store: store}
}

func (w *Workspace) Root() string { return w.root }

// Init creates the full directory skeleton: the numbered docs
// directories plus src and tests.
func (w *Workspace) Init() error {
	for _, dir := range docDirs {
		if err := os.MkdirAll(filepath.Join(w.root, dir), 0o755); err != nil {
			return fmt.Errorf("workspace init: %w", err)
		}
	}
	for _, dir := range extraDirs {
		if err := os.MkdirAll(filepath.Join(w.root, dir), 0o755); err != nil {
			return fmt.Errorf("workspace init: %w", err)
		}
	}
	return nil
}

// Save renders the document into its type directory. Writes go through
// a temp file and rename so readers never see partial content. The
// document's ID, Created and Path fields are filled in.
func (w *Workspace) Save(ctx context.Context, doc *Document) error {
	dir, ok := docDirs[doc.Type]
	if !ok {
		return fmt.Errorf("unknown document type %q: %w", doc.Type, core.ErrValidationFailed)
	}
	if doc.ID == "" {
		doc.ID = fmt.Sprintf("%s-%s", doc.Type, uuid.NewString()[:8])
	}
	if doc.Created.IsZero() {
		doc.Created = time.Now().UTC()
	}

	raw, err := renderDocument(doc)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Join(w.root, dir), 0o755); err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}
	rel := filepath.Join(dir, fileName(doc))
	path := filepath.Join(w.root, rel)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}
	doc.Path = filepath.ToSlash(rel)

	if w.store != nil {
		if res := w.store.Store(ctx, doc.ID, doc, kv.NamespaceDocuments); res.Status != "ok" {
			logger.WarnCF("project", "Document mirror failed", map[string]any{
				"document": doc.ID,
				"error":    res.Error,
			})
		}
	}
	return nil
}

// Load reads one document by its path relative to the root.
func (w *Workspace) Load(rel string) (*Document, error) {
	raw, err := os.ReadFile(filepath.Join(w.root, filepath.FromSlash(rel)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("document %s: %w", rel, core.ErrNotFound)
		}
		return nil, fmt.Errorf("load document %s: %w", rel, err)
	}
	doc, err := parseDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rel, err)
	}
	doc.Path = filepath.ToSlash(rel)
	return doc, nil
}

// Scan walks docs/**/*.md and returns every parsable document. The
// directory prefix wins over the front-matter type. Unparsable files
// are skipped with a warning.
func (w *Workspace) Scan() ([]Document, error) {
	matches, err := doublestar.Glob(os.DirFS(w.root), "docs/**/*.md")
	if err != nil {
		return nil, fmt.Errorf("scan documents: %w", err)
	}

	docs := make([]Document, 0, len(matches))
	for _, rel := range matches {
		doc, err := w.Load(rel)
		if err != nil {
			logger.WarnCF("project", "Skipping unparsable document", map[string]any{
				"path":  rel,
				"error": err.Error(),
			})
			continue
		}
		if dt, ok := typeFromPath(rel); ok {
			doc.Type = dt
		}
		docs = append(docs, *doc)
	}
	return docs, nil
}

// List returns the documents of one type in lexical path order.
func (w *Workspace) List(dt DocType) ([]Document, error) {
	dir, ok := docDirs[dt]
	if !ok {
		return nil, fmt.Errorf("unknown document type %q: %w", dt, core.ErrValidationFailed)
	}
	matches, err := doublestar.Glob(os.DirFS(w.root), dir+"/*.md")
	if err != nil {
		return nil, fmt.Errorf("list %s documents: %w", dt, err)
	}

	docs := make([]Document, 0, len(matches))
	for _, rel := range matches {
		doc, err := w.Load(rel)
		if err != nil {
			continue
		}
		doc.Type = dt
		docs = append(docs, *doc)
	}
	return docs, nil
}

// ListForProject narrows List to documents owned by one project.
func (w *Workspace) ListForProject(dt DocType, projectID string) ([]Document, error) {
	docs, err := w.List(dt)
	if err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if d.Metadata["project"] == projectID {
			out = append(out, d)
		}
	}
	return out, nil
}

// typeFromPath maps a docs/NN-name/ prefix to the document type.
func typeFromPath(rel string) (DocType, bool) {
	rel = filepath.ToSlash(rel)
	for dt, dir := range docDirs {
		if strings.HasPrefix(rel, dir+"/") {
			return dt, true
		}
	}
	return "", false
}

func fileName(doc *Document) string {
	name := doc.ID
	if s := slug(doc.Title); s != "" {
		name += "-" + s
	}
	return name + ".md"
}

// slug lowercases a title into a hyphenated file fragment, capped at
// eight words.
func slug(title string) string {
	words := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) > 8 {
		words = words[:8]
	}
	return strings.Join(words, "-")
}
