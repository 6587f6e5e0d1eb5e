package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gk0729/LobsterShell/internal/model"
)

// fakeTool is the test double used across this package.
type fakeTool struct {
	meta        Metadata
	initErr     error
	validateErr error
	execFn      func(ctx context.Context, call CallContext, params map[string]any) Result
	cleaned     bool
	executed    bool
}

func (f *fakeTool) Metadata() Metadata                        { return f.meta }
func (f *fakeTool) Initialize(cfg Config) error               { return f.initErr }
func (f *fakeTool) ValidateInput(params map[string]any) error { return f.validateErr }
func (f *fakeTool) Cleanup() error                            { f.cleaned = true; return nil }

func (f *fakeTool) Execute(ctx context.Context, call CallContext, params map[string]any) Result {
	f.executed = true
	if f.execFn != nil {
		return f.execFn(ctx, call, params)
	}
	return Result{Success: true, Output: "ok"}
}

func newFake(id string, perms ...model.Permission) *fakeTool {
	return &fakeTool{meta: Metadata{
		ID:          id,
		Name:        id,
		Version:     "1.0.0",
		Category:    "test",
		Permissions: perms,
	}}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(newFake("echo")); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(newFake("echo")); err == nil {
		t.Fatal("duplicate registration must fail")
	}

	_, meta, err := r.Get("echo")
	if err != nil || meta.ID != "echo" {
		t.Fatalf("Get: %v, %+v", err, meta)
	}

	var nf *NotFoundError
	if _, _, err := r.Get("missing"); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	if !r.Unregister("echo") {
		t.Error("Unregister known id must return true")
	}
	if r.Unregister("echo") {
		t.Error("Unregister unknown id must return false")
	}
}

func TestRegistryStats(t *testing.T) {
	r := NewRegistry()
	r.Register(newFake("calc"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r.RecordCall("calc", n%5 == 0)
		}(i)
	}
	wg.Wait()

	u, err := r.UsageFor("calc")
	if err != nil {
		t.Fatal(err)
	}
	if u.Calls != 50 || u.Failures != 10 {
		t.Errorf("usage = %+v", u)
	}
	if u.LastUsed.IsZero() {
		t.Error("last used not recorded")
	}
}

func TestRegistrySearchAndCategories(t *testing.T) {
	r := NewRegistry()
	weather := newFake("weather")
	weather.meta.Description = "current conditions lookup"
	weather.meta.Keywords = []string{"forecast"}
	weather.meta.Category = "data"
	r.Register(weather)
	r.Register(newFake("calculator"))

	if got := r.Search("forecast"); len(got) != 1 || got[0].ID != "weather" {
		t.Fatalf("keyword search: %+v", got)
	}
	if got := r.Search("CALC"); len(got) != 1 {
		t.Fatalf("case-insensitive search: %+v", got)
	}

	cats := r.Categories()
	if len(cats["data"]) != 1 || len(cats["test"]) != 1 {
		t.Fatalf("categories: %+v", cats)
	}
}

const manifestJSON = `{
  "package_name": "demo",
  "version": "1.0.0",
  "tools": [
    {
      "id": "demo.echo",
      "name": "Echo",
      "version": "1.0.0",
      "module": "demo",
      "class": "Echo",
      "permissions": ["system:info"]
    },
    {
      "id": "demo.writer",
      "name": "Writer",
      "version": "1.0.0",
      "module": "demo",
      "class": "Writer",
      "permissions": ["filesystem:write", "network:external"]
    }
  ]
}`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(manifestJSON))
	if err != nil {
		t.Fatal(err)
	}
	if m.PackageName != "demo" || len(m.Tools) != 2 {
		t.Fatalf("manifest: %+v", m)
	}
	if m.Tools[0].Locator() != "demo.Echo" {
		t.Errorf("locator = %s", m.Tools[0].Locator())
	}
}

func TestManifestValidation(t *testing.T) {
	bad := []string{
		`{"package_name": "p", "tools": []}`,
		`{"package_name": "", "tools": [{"id": "a", "module": "m", "class": "C"}]}`,
		`{"package_name": "p", "tools": [{"id": "a", "module": "", "class": "C"}]}`,
		`{"package_name": "p", "tools": [{"id": "a", "module": "m", "class": "C", "permissions": ["root:everything"]}]}`,
		`{"package_name": "p", "tools": [
			{"id": "a", "module": "m", "class": "C"},
			{"id": "a", "module": "m", "class": "D"}]}`,
	}
	for i, src := range bad {
		if _, err := ParseManifest([]byte(src)); err == nil {
			t.Errorf("manifest %d accepted", i)
		}
	}
}

func TestLoaderPartialSuccess(t *testing.T) {
	RegisterFactory("demo.Echo", func() Tool { return newFake("demo.echo") })
	// demo.Writer has no factory on purpose.

	m, err := ParseManifest([]byte(manifestJSON))
	if err != nil {
		t.Fatal(err)
	}

	var warnings strings.Builder
	r := NewRegistry()
	l := NewLoader(r, nil, &warnings)
	res := l.Load(m)

	if loaded := res.Loaded(); len(loaded) != 1 || loaded[0] != "demo.echo" {
		t.Fatalf("loaded = %v", loaded)
	}
	if res.Outcomes[1].Loaded || res.Outcomes[1].Error == "" {
		t.Fatalf("writer outcome: %+v", res.Outcomes[1])
	}
	// Dangerous permissions warn but never block the load attempt.
	if !strings.Contains(warnings.String(), "dangerous permissions") {
		t.Errorf("expected dangerous permission warning, got %q", warnings.String())
	}

	// The registry reflects the manifest's permissions, not the tool's.
	_, meta, err := r.Get("demo.echo")
	if err != nil {
		t.Fatal(err)
	}
	if len(meta.Permissions) != 1 || meta.Permissions[0] != model.PermSystemInfo {
		t.Errorf("manifest permissions not applied: %+v", meta.Permissions)
	}
}

func TestLoaderDependencyChecks(t *testing.T) {
	RegisterFactory("dep.Tool", func() Tool { return newFake("dep.tool") })

	manifest := func(deps string) *Manifest {
		src := fmt.Sprintf(`{
			"package_name": "dep",
			"tools": [{"id": "dep.tool", "module": "dep", "class": "Tool", "dependencies": %s}]
		}`, deps)
		m, err := ParseManifest([]byte(src))
		if err != nil {
			t.Fatal(err)
		}
		return m
	}

	t.Run("runtime mismatch fails", func(t *testing.T) {
		l := NewLoader(NewRegistry(), nil, nil)
		res := l.Load(manifest(`{"runtime_version": "9.9"}`))
		if res.Outcomes[0].Loaded {
			t.Fatal("runtime mismatch must fail the tool")
		}
		if !strings.Contains(res.Outcomes[0].Error, "runtime") {
			t.Errorf("error = %q", res.Outcomes[0].Error)
		}
	})

	t.Run("required package missing fails", func(t *testing.T) {
		l := NewLoader(NewRegistry(), nil, nil)
		res := l.Load(manifest(`{"packages": [{"name": "libfoo"}]}`))
		if res.Outcomes[0].Loaded {
			t.Fatal("missing required package must fail the tool")
		}
	})

	t.Run("optional package missing warns", func(t *testing.T) {
		var warnings strings.Builder
		l := NewLoader(NewRegistry(), nil, &warnings)
		res := l.Load(manifest(`{"packages": [{"name": "libfoo", "optional": true}]}`))
		if !res.Outcomes[0].Loaded {
			t.Fatalf("optional package must not block: %+v", res.Outcomes[0])
		}
		if !strings.Contains(warnings.String(), "libfoo") {
			t.Errorf("expected warning, got %q", warnings.String())
		}
	})

	t.Run("available package passes", func(t *testing.T) {
		l := NewLoader(NewRegistry(), map[string]string{"libfoo": "2.1"}, nil)
		res := l.Load(manifest(`{"packages": [{"name": "libfoo"}]}`))
		if !res.Outcomes[0].Loaded {
			t.Fatalf("outcome: %+v", res.Outcomes[0])
		}
	})
}

func TestLoaderUnload(t *testing.T) {
	ft := newFake("u.tool")
	RegisterFactory("u.Tool", func() Tool { return ft })
	m, _ := ParseManifest([]byte(`{"package_name": "u", "tools": [{"id": "u.tool", "module": "u", "class": "Tool"}]}`))

	r := NewRegistry()
	l := NewLoader(r, nil, nil)
	l.Load(m)

	ok, err := l.Unload("u.tool")
	if !ok || err != nil {
		t.Fatalf("Unload: %v, %v", ok, err)
	}
	if !ft.cleaned {
		t.Error("Cleanup not called on unload")
	}
	if ok, _ := l.Unload("u.tool"); ok {
		t.Error("unloading unknown id must return false")
	}
}

func TestExecutorPermissionDeniedNeverRuns(t *testing.T) {
	r := NewRegistry()
	ft := newFake("db.query", model.PermDatabaseRead)
	r.Register(ft)

	e := NewExecutor(r)
	_, err := e.Execute(context.Background(), "db.query", CallContext{UserID: "u-1"}, nil)

	var pe *PermissionError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PermissionError, got %v", err)
	}
	if ft.executed {
		t.Fatal("tool ran despite missing permission")
	}

	u, _ := r.UsageFor("db.query")
	if u.Failures != 1 {
		t.Errorf("denied call not counted: %+v", u)
	}
}

func TestExecutorValidationGate(t *testing.T) {
	r := NewRegistry()
	ft := newFake("strict")
	ft.validateErr = errors.New("param x required")
	r.Register(ft)

	_, err := NewExecutor(r).Execute(context.Background(), "strict", CallContext{}, nil)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ft.executed {
		t.Fatal("tool ran despite rejected input")
	}
}

func TestExecutorTimeout(t *testing.T) {
	r := NewRegistry()
	slow := newFake("slow")
	slow.execFn = func(ctx context.Context, call CallContext, params map[string]any) Result {
		select {
		case <-time.After(5 * time.Second):
			return Result{Success: true}
		case <-ctx.Done():
			return Result{Success: false, Error: "cancelled"}
		}
	}
	r.Register(slow)

	e := NewExecutor(r, WithTimeout(20*time.Millisecond))
	_, err := e.Execute(context.Background(), "slow", CallContext{}, nil)

	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
}

func TestExecutorPerCallTimeout(t *testing.T) {
	r := NewRegistry()
	slow := newFake("slow")
	slow.execFn = func(ctx context.Context, call CallContext, params map[string]any) Result {
		select {
		case <-time.After(5 * time.Second):
			return Result{Success: true}
		case <-ctx.Done():
			return Result{Success: false, Error: "cancelled"}
		}
	}
	fast := newFake("fast")
	r.Register(slow)
	r.Register(fast)

	// The call-level bound overrides a generous default.
	e := NewExecutor(r, WithTimeout(time.Minute))
	_, err := e.Execute(context.Background(), "slow", CallContext{Timeout: 20 * time.Millisecond}, nil)
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}

	// And extends a tight one.
	e = NewExecutor(r, WithTimeout(time.Nanosecond))
	res, err := e.Execute(context.Background(), "fast", CallContext{Timeout: time.Minute}, nil)
	if err != nil || !res.Success {
		t.Fatalf("call-level extension failed: %v %+v", err, res)
	}
}

func TestExecutorSandboxRequired(t *testing.T) {
	r := NewRegistry()
	boxed := newFake("boxed")
	boxed.meta.SandboxRequired = true
	r.Register(boxed)

	_, err := NewExecutor(r).Execute(context.Background(), "boxed", CallContext{}, nil)
	var se *SecurityError
	if !errors.As(err, &se) {
		t.Fatalf("expected SecurityError without sandbox, got %v", err)
	}
	if boxed.executed {
		t.Fatal("sandbox-required tool ran without sandbox")
	}

	e := NewExecutor(r, WithSandbox(readySandbox{}))
	if _, err := e.Execute(context.Background(), "boxed", CallContext{}, nil); err != nil {
		t.Fatalf("with sandbox: %v", err)
	}
}

type readySandbox struct{}

func (readySandbox) Name() string { return "test" }
func (readySandbox) Ready() bool  { return true }

func TestExecutorPanicRecovered(t *testing.T) {
	r := NewRegistry()
	bad := newFake("bad")
	bad.execFn = func(ctx context.Context, call CallContext, params map[string]any) Result {
		panic("tool bug")
	}
	r.Register(bad)

	res, err := NewExecutor(r).Execute(context.Background(), "bad", CallContext{}, nil)
	if err == nil || res.Success {
		t.Fatalf("panicking tool must fail: res=%+v err=%v", res, err)
	}
	if !strings.Contains(res.Error, "tool bug") {
		t.Errorf("panic value lost: %q", res.Error)
	}
}

func TestExecutorAuditCallback(t *testing.T) {
	r := NewRegistry()
	r.Register(newFake("ok"))

	var audited []string
	e := NewExecutor(r, WithAudit(func(id string, call CallContext, res Result) {
		audited = append(audited, fmt.Sprintf("%s:%v", id, res.Success))
	}))

	e.Execute(context.Background(), "ok", CallContext{}, nil)
	e.Execute(context.Background(), "missing", CallContext{}, nil)

	if len(audited) != 2 || audited[0] != "ok:true" || audited[1] != "missing:false" {
		t.Fatalf("audit trail = %v", audited)
	}
}
