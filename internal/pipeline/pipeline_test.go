package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/gk0729/LobsterShell/internal/audit"
	"github.com/gk0729/LobsterShell/internal/model"
	"github.com/gk0729/LobsterShell/internal/orchestrator"
	"github.com/gk0729/LobsterShell/internal/tool"
)

type echoTool struct{}

func (echoTool) Metadata() tool.Metadata {
	return tool.Metadata{ID: "pkg.echo", Name: "Echo", Version: "1.0.0"}
}
func (echoTool) Initialize(tool.Config) error       { return nil }
func (echoTool) ValidateInput(map[string]any) error { return nil }
func (echoTool) Cleanup() error                     { return nil }
func (echoTool) Execute(ctx context.Context, call tool.CallContext, params map[string]any) tool.Result {
	return tool.Result{Success: true, Output: params["text"]}
}

func writeConfig(t *testing.T, dir, extra string) string {
	t.Helper()
	path := filepath.Join(dir, "governance.yaml")
	body := fmt.Sprintf("audit_log_path: %s\npending_dir: %s\n%s",
		filepath.Join(dir, "audit.jsonl"), filepath.Join(dir, "pending"), extra)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestNewAssemblesAndProcesses(t *testing.T) {
	dir := t.TempDir()
	extra := fmt.Sprintf("tools:\n  packages_dir: %s\n", filepath.Join(dir, "packages"))
	p, err := New(Options{ConfigPath: writeConfig(t, dir, extra)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()
	p.RegisterEchoExecutors()

	out := p.Process(context.Background(), &orchestrator.Request{
		UserID:             "alice",
		AuthToken:          "tok",
		Content:            "what is the weather tomorrow",
		GrantedPermissions: []model.Permission{model.PermNetworkExternal},
	})
	if out.Status != orchestrator.StatusCompleted {
		t.Fatalf("status = %s, want completed (err: %s)", out.Status, out.Error)
	}
	if out.Output == "" {
		t.Fatal("expected executor output")
	}

	// The run must have landed on the persistent ledger.
	entries, err := audit.LoadSinkFile(p.Config.AuditLogPath)
	if err != nil {
		t.Fatalf("load audit log: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no audit entries written")
	}
	if st := audit.VerifyEntries(entries); !st.Valid {
		t.Fatalf("persisted chain invalid: %s", st.Reason)
	}
}

func TestSQLOverwriteWiredFromConfig(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "facts.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO users (id, name) VALUES (1, 'Alice')`); err != nil {
		t.Fatal(err)
	}
	db.Close()

	extra := fmt.Sprintf(`tools:
  packages_dir: %s
overwrite:
  sources:
    - name: facts
      type: sql
      connection: %s
  rules:
    - placeholder: "{{user.name}}"
      source: facts
      query: "SELECT name FROM users WHERE id = 1"
      field: name
`, filepath.Join(dir, "packages"), dbPath)
	p, err := New(Options{ConfigPath: writeConfig(t, dir, extra), NoSink: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()
	p.RegisterEchoExecutors()

	out := p.Process(context.Background(), &orchestrator.Request{
		UserID:             "alice",
		AuthToken:          "tok",
		Content:            "monthly report for {{user.name}}",
		GrantedPermissions: []model.Permission{model.PermNetworkInternal},
	})
	if out.Status != orchestrator.StatusCompleted {
		t.Fatalf("status = %s, want completed (err: %s)", out.Status, out.Error)
	}
	if !strings.Contains(out.Output, "Alice") {
		t.Fatalf("placeholder not resolved from SQL source: %q", out.Output)
	}
	if out.Overwrite == nil || !out.Overwrite.Complete() {
		t.Fatalf("overwrite result: %+v", out.Overwrite)
	}
}

func TestLoadPackagesFromDir(t *testing.T) {
	tool.RegisterFactory("pkg.Echo", func() tool.Tool { return echoTool{} })

	dir := t.TempDir()
	pkgDir := filepath.Join(dir, "packages", "pkg")
	if err := os.MkdirAll(pkgDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	manifest := `{
  "package_name": "pkg",
  "version": "1.0.0",
  "tools": [
    {"id": "pkg.echo", "name": "Echo", "version": "1.0.0", "module": "pkg", "class": "Echo", "permissions": ["database:read"]}
  ]
}`
	if err := os.WriteFile(filepath.Join(pkgDir, "manifest.json"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	extra := fmt.Sprintf("tools:\n  packages_dir: %s\n", filepath.Join(dir, "packages"))
	p, err := New(Options{ConfigPath: writeConfig(t, dir, extra), NoSink: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	if _, _, err := p.Registry.Get("pkg.echo"); err != nil {
		t.Fatalf("tool not loaded from packages dir: %v", err)
	}
	ids := p.Registry.IDs()
	if len(ids) != 1 || ids[0] != "pkg.echo" {
		t.Fatalf("IDs = %v, want [pkg.echo]", ids)
	}
}

func TestMissingPackagesDirIsFine(t *testing.T) {
	dir := t.TempDir()
	extra := fmt.Sprintf("tools:\n  packages_dir: %s\n", filepath.Join(dir, "nope"))
	p, err := New(Options{ConfigPath: writeConfig(t, dir, extra), NoSink: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()
	if got := len(p.Registry.IDs()); got != 0 {
		t.Fatalf("expected empty registry, got %d tools", got)
	}
}
