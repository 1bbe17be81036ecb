package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loftlabs/loft/internal/chat"
	"github.com/loftlabs/loft/internal/config"
	"github.com/loftlabs/loft/internal/errors"
	"github.com/loftlabs/loft/internal/store"
	"github.com/loftlabs/loft/internal/workspace"
)

func newTestWorkspace(t *testing.T) (*workspace.Workspace, string) {
	t.Helper()

	baseDir := t.TempDir()
	db, err := store.Init(baseDir)
	if err != nil {
		t.Fatalf("store.Init() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ws, err := workspace.Load(db, &config.Config{})
	if err != nil {
		t.Fatalf("workspace.Load() error = %v", err)
	}
	return ws, baseDir
}

func seedChat(t *testing.T, ws *workspace.Workspace, projectID, text string) string {
	t.Helper()

	id, err := ws.CreateChat(projectID)
	if err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}
	if _, err := ws.BeginTurn(id, chat.NewUserTurn(text, nil)); err != nil {
		t.Fatalf("BeginTurn() error = %v", err)
	}
	if err := ws.AppendToLastTurn(id, "reply to "+text); err != nil {
		t.Fatalf("AppendToLastTurn() error = %v", err)
	}
	if err := ws.SettleTurn(id); err != nil {
		t.Fatalf("SettleTurn() error = %v", err)
	}
	return id
}

func TestExportDefaultPath(t *testing.T) {
	ws, baseDir := newTestWorkspace(t)
	seedChat(t, ws, "", "hello")

	out, err := Export(ws, &config.Config{}, baseDir, Input{})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if out.Count != 1 {
		t.Errorf("Count = %d, want 1", out.Count)
	}
	if filepath.Dir(out.Path) != DefaultExportsDir(baseDir) {
		t.Errorf("Path = %q, want under %q", out.Path, DefaultExportsDir(baseDir))
	}
	if _, err := os.Stat(out.Path); err != nil {
		t.Errorf("export file missing: %v", err)
	}

	data, err := os.ReadFile(out.Path)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("export has %d lines, want header + 1 chat", len(lines))
	}
	if !strings.Contains(lines[0], `"_loft_export":true`) {
		t.Errorf("header line = %s", lines[0])
	}
}

func TestExportProjectFilter(t *testing.T) {
	ws, baseDir := newTestWorkspace(t)

	pid, _ := ws.CreateProject("Demo")
	seedChat(t, ws, pid, "inside")
	seedChat(t, ws, "", "outside")

	out, err := Export(ws, &config.Config{}, baseDir, Input{ProjectID: pid})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if out.Count != 1 {
		t.Errorf("Count = %d, want project filter applied", out.Count)
	}

	data, _ := os.ReadFile(out.Path)
	if strings.Contains(string(data), "outside") {
		t.Errorf("export leaked chat from another project")
	}
	if !strings.Contains(filepath.Base(out.Path), "Demo") {
		t.Errorf("filename %q missing project name", filepath.Base(out.Path))
	}
}

func TestExportUnknownProject(t *testing.T) {
	ws, baseDir := newTestWorkspace(t)

	if _, err := Export(ws, &config.Config{}, baseDir, Input{ProjectID: "missing"}); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Export(unknown project) error = %v, want ErrNotFound", err)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	src, srcBase := newTestWorkspace(t)
	cid := seedChat(t, src, "", "round trip me")

	out, err := Export(src, &config.Config{}, srcBase, Input{})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	dst, dstBase := newTestWorkspace(t)
	cfg := &config.Config{AllowedPaths: []string{filepath.Dir(out.Path)}}
	res, err := Import(dst, cfg, dstBase, ImportInput{Path: out.Path})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if res.Imported != 1 || res.Skipped != 0 {
		t.Errorf("Import() = %+v, want 1 imported", res)
	}

	c, err := dst.Chat(cid)
	if err != nil {
		t.Fatalf("Chat() after import error = %v", err)
	}
	if len(c.History) != 2 || c.History[1].Text() != "reply to round trip me" {
		t.Errorf("imported history = %+v", c.History)
	}

	// Importing the same file again skips the existing chat.
	res, err = Import(dst, cfg, dstBase, ImportInput{Path: out.Path})
	if err != nil {
		t.Fatalf("Import() second run error = %v", err)
	}
	if res.Imported != 0 || res.Skipped != 1 {
		t.Errorf("second Import() = %+v, want all skipped", res)
	}
}

func TestImportDropsUnknownProjectRef(t *testing.T) {
	src, srcBase := newTestWorkspace(t)
	pid, _ := src.CreateProject("Only Here")
	cid := seedChat(t, src, pid, "orphan")

	out, err := Export(src, &config.Config{}, srcBase, Input{})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	dst, dstBase := newTestWorkspace(t)
	cfg := &config.Config{AllowedPaths: []string{filepath.Dir(out.Path)}}
	if _, err := Import(dst, cfg, dstBase, ImportInput{Path: out.Path}); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	c, err := dst.Chat(cid)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if c.ProjectID != "" {
		t.Errorf("ProjectID = %q, want cleared for unknown project", c.ProjectID)
	}
}

func TestImportReportsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.jsonl")
	content := `{"_loft_export":true,"schema_version":"1.0","exported_at":1}
not json
{"id":"01ARZ3NDEKTSV4RRFFQ69G5FAV","name":"ok","history":[]}
{"name":"no id"}
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	ws, baseDir := newTestWorkspace(t)
	cfg := &config.Config{AllowedPaths: []string{dir}}
	res, err := Import(ws, cfg, baseDir, ImportInput{Path: path})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if res.Imported != 1 {
		t.Errorf("Imported = %d, want 1", res.Imported)
	}
	if len(res.Errors) != 2 {
		t.Errorf("Errors = %+v, want malformed and id-less lines reported", res.Errors)
	}
}
