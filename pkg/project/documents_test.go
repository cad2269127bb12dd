package project

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/swarmflow/swarmflow/pkg/core"
	"github.com/swarmflow/swarmflow/pkg/kv"
)

func TestWorkspaceInitCreatesSkeleton(t *testing.T) {
	ws := NewWorkspace(t.TempDir(), nil)
	if err := ws.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	want := []string{
		"docs/01-vision", "docs/02-adrs", "docs/03-prds", "docs/04-epics",
		"docs/05-features", "docs/06-tasks", "docs/07-specs", "src", "tests",
	}
	for _, dir := range want {
		info, err := os.Stat(filepath.Join(ws.Root(), dir))
		if err != nil {
			t.Fatalf("missing directory %s: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("%s is not a directory", dir)
		}
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	ws := NewWorkspace(t.TempDir(), nil)
	doc := &Document{
		Type:  DocPRD,
		Title: "PRD: Checkout flow",
		Metadata: map[string]string{
			"project": "proj-1",
			"source":  "vision-1",
		},
		Body: "## Problem\n\nCarts are abandoned at payment.",
	}
	if err := ws.Save(context.Background(), doc); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if doc.ID == "" || doc.Created.IsZero() {
		t.Fatalf("Save left identity unset: id=%q created=%v", doc.ID, doc.Created)
	}
	if want := "docs/03-prds/"; !strings.HasPrefix(doc.Path, want) {
		t.Fatalf("path = %q, want prefix %q", doc.Path, want)
	}
	if !strings.Contains(doc.Path, "checkout-flow") {
		t.Fatalf("path %q does not carry the title slug", doc.Path)
	}

	loaded, err := ws.Load(doc.Path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(doc, loaded); diff != "" {
		t.Fatalf("document changed across save/load (-want +got):\n%s", diff)
	}

	raw, err := os.ReadFile(filepath.Join(ws.Root(), doc.Path))
	if err != nil {
		t.Fatalf("read raw: %v", err)
	}
	if !strings.HasPrefix(string(raw), "---\n") {
		t.Fatalf("rendered file has no front matter:\n%s", raw)
	}
	if !strings.Contains(string(raw), "# PRD: Checkout flow") {
		t.Fatalf("rendered file is missing the title heading:\n%s", raw)
	}
}

func TestSaveRejectsUnknownType(t *testing.T) {
	ws := NewWorkspace(t.TempDir(), nil)
	err := ws.Save(context.Background(), &Document{Type: "memo", Title: "nope"})
	if !errors.Is(err, core.ErrValidationFailed) {
		t.Fatalf("err = %v, want validation failure", err)
	}
}

func TestSaveMirrorsToStore(t *testing.T) {
	store, err := kv.NewJSONFileStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewJSONFileStore: %v", err)
	}
	defer store.Close()

	ws := NewWorkspace(t.TempDir(), store)
	doc := &Document{Type: DocFeature, Title: "Feature: Retry uploads", Body: "## Behavior\n\nRetries."}
	if err := ws.Save(context.Background(), doc); err != nil {
		t.Fatalf("Save: %v", err)
	}

	val, err := store.Retrieve(context.Background(), doc.ID, kv.NamespaceDocuments)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	m, ok := val.(map[string]any)
	if !ok {
		t.Fatalf("mirrored value = %T, want map", val)
	}
	if got := m["title"]; got != doc.Title {
		t.Fatalf("mirrored title = %v, want %q", got, doc.Title)
	}
}

func TestScanClassifiesByDirectory(t *testing.T) {
	ws := NewWorkspace(t.TempDir(), nil)
	if err := ws.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	ctx := context.Background()
	for _, doc := range []*Document{
		{Type: DocVision, Title: "Vision: Ledger"},
		{Type: DocPRD, Title: "PRD: Balances"},
		{Type: DocTask, Title: "Task: Wire schema"},
	} {
		if err := ws.Save(ctx, doc); err != nil {
			t.Fatalf("Save %s: %v", doc.Type, err)
		}
	}

	// A record whose front matter lies about its type: the directory wins.
	stray := &Document{ID: "adr-stray", Type: DocVision, Title: "Misfiled"}
	raw, err := renderDocument(stray)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	strayPath := filepath.Join(ws.Root(), "docs/02-adrs/adr-stray.md")
	if err := os.WriteFile(strayPath, raw, 0o644); err != nil {
		t.Fatalf("write stray: %v", err)
	}
	// Garbage is skipped, not fatal.
	if err := os.WriteFile(filepath.Join(ws.Root(), "docs/03-prds/broken.md"), []byte("no front matter"), 0o644); err != nil {
		t.Fatalf("write broken: %v", err)
	}

	docs, err := ws.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(docs) != 4 {
		t.Fatalf("Scan found %d documents, want 4", len(docs))
	}
	byID := make(map[string]DocType, len(docs))
	for _, d := range docs {
		byID[d.ID] = d.Type
	}
	if got := byID["adr-stray"]; got != DocADR {
		t.Fatalf("misfiled document classified as %q, want %q", got, DocADR)
	}
}

func TestListForProjectFilters(t *testing.T) {
	ws := NewWorkspace(t.TempDir(), nil)
	ctx := context.Background()
	for _, owner := range []string{"proj-a", "proj-a", "proj-b"} {
		doc := &Document{Type: DocEpic, Title: "Epic: Search", Metadata: map[string]string{"project": owner}}
		if err := ws.Save(ctx, doc); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	docs, err := ws.ListForProject(DocEpic, "proj-a")
	if err != nil {
		t.Fatalf("ListForProject: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d epics for proj-a, want 2", len(docs))
	}
	for _, d := range docs {
		if d.Metadata["project"] != "proj-a" {
			t.Fatalf("leaked document %s owned by %q", d.ID, d.Metadata["project"])
		}
	}
}

func TestLoadMissingDocument(t *testing.T) {
	ws := NewWorkspace(t.TempDir(), nil)
	_, err := ws.Load("docs/03-prds/ghost.md")
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("err = %v, want not-found", err)
	}
}

func TestParseDocumentRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"no front matter": "# Title\n\nbody",
		"unterminated":    "---\nid: x\ntitle: y\n",
		"empty":           "",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseDocument([]byte(raw))
			if err == nil {
				t.Fatal("parse accepted malformed input")
			}
		})
	}
}

func TestSlug(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"PRD: Checkout flow", "prd-checkout-flow"},
		{"ADR-001: Adopt Layered pattern", "adr-001-adopt-layered-pattern"},
		{"", ""},
		{"one two three four five six seven eight nine ten", "one-two-three-four-five-six-seven-eight"},
	}
	for _, tc := range cases {
		if got := slug(tc.in); got != tc.want {
			t.Errorf("slug(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
