package tool

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gk0729/LobsterShell/internal/model"
)

// RuntimeVersion is what manifests pin against with runtime_version.
const RuntimeVersion = "1.0"

// factories is the build-time factory table. Plugins register
// themselves here, keyed by the manifest "module.Class" locator.
var (
	factoryMu sync.RWMutex
	factories = make(map[string]Factory)
)

// RegisterFactory binds a locator to a factory. Last registration wins,
// which lets tests swap in fakes.
func RegisterFactory(locator string, f Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[locator] = f
}

// lookupFactory resolves a locator.
func lookupFactory(locator string) (Factory, bool) {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	f, ok := factories[locator]
	return f, ok
}

// Fetcher retrieves a manifest for a named package.
type Fetcher interface {
	Fetch(pkg string) ([]byte, error)
}

// DirFetcher resolves packages as <dir>/<pkg>/manifest.json.
type DirFetcher struct {
	Dir string
}

func (d DirFetcher) Fetch(pkg string) ([]byte, error) {
	if strings.ContainsAny(pkg, `/\`) || strings.Contains(pkg, "..") {
		return nil, fmt.Errorf("tool: invalid package name %q", pkg)
	}
	data, err := os.ReadFile(filepath.Join(d.Dir, pkg, "manifest.json"))
	if err != nil {
		return nil, fmt.Errorf("tool: fetch package %q: %w", pkg, err)
	}
	return data, nil
}

// LoadOutcome is the per-tool result of a load attempt.
type LoadOutcome struct {
	ToolID   string   `json:"tool_id"`
	Loaded   bool     `json:"loaded"`
	Error    string   `json:"error,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// LoadResult aggregates one manifest load. A manifest loads partially:
// each tool succeeds or fails on its own.
type LoadResult struct {
	PackageName string        `json:"package_name"`
	Outcomes    []LoadOutcome `json:"outcomes"`
}

// Loaded returns the ids that made it into the registry.
func (r *LoadResult) Loaded() []string {
	var out []string
	for _, o := range r.Outcomes {
		if o.Loaded {
			out = append(out, o.ToolID)
		}
	}
	return out
}

// Loader turns manifests into registered, initialized tools.
type Loader struct {
	registry *Registry
	// available maps package name to installed version for the
	// manifest dependency check.
	available map[string]string
	warnings  io.Writer
}

// NewLoader creates a Loader targeting a registry. Warnings go to w
// (stderr in production, a buffer in tests); nil discards them.
func NewLoader(registry *Registry, available map[string]string, w io.Writer) *Loader {
	if w == nil {
		w = io.Discard
	}
	if available == nil {
		available = map[string]string{}
	}
	return &Loader{registry: registry, available: available, warnings: w}
}

// Load registers every tool a manifest declares. Tools fail
// independently; the result lists each outcome.
func (l *Loader) Load(m *Manifest) *LoadResult {
	res := &LoadResult{PackageName: m.PackageName}
	for i := range m.Tools {
		res.Outcomes = append(res.Outcomes, l.loadOne(&m.Tools[i]))
	}
	return res
}

// LoadFromPackage fetches a package's manifest and delegates to Load.
func (l *Loader) LoadFromPackage(f Fetcher, pkg string) (*LoadResult, error) {
	data, err := f.Fetch(pkg)
	if err != nil {
		return nil, err
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}
	return l.Load(m), nil
}

func (l *Loader) loadOne(e *ManifestEntry) LoadOutcome {
	out := LoadOutcome{ToolID: e.ID}

	// Permission review flags risky combinations but never blocks;
	// blocking happens at execution time against the caller's grant.
	if risky := dangerousDeclared(e); len(risky) > 0 {
		w := fmt.Sprintf("declares dangerous permissions: %s", strings.Join(risky, ", "))
		out.Warnings = append(out.Warnings, w)
		fmt.Fprintf(l.warnings, "tool %s: %s\n", e.ID, w)
	}

	if err := l.checkDependencies(e, &out); err != nil {
		out.Error = err.Error()
		return out
	}

	factory, ok := lookupFactory(e.Locator())
	if !ok {
		out.Error = (&SecurityError{ToolID: e.ID, Reason: fmt.Sprintf("no factory registered for %q", e.Locator())}).Error()
		return out
	}

	t := factory()
	if err := t.Initialize(Config{Settings: e.Settings}); err != nil {
		out.Error = fmt.Sprintf("initialize: %v", err)
		return out
	}

	rt := &manifestTool{Tool: t, meta: e.metadata()}
	if err := l.registry.Register(rt); err != nil {
		t.Cleanup()
		out.Error = err.Error()
		return out
	}

	out.Loaded = true
	return out
}

func (l *Loader) checkDependencies(e *ManifestEntry, out *LoadOutcome) error {
	d := e.Dependencies
	if d == nil {
		return nil
	}
	if d.RuntimeVersion != "" && !strings.HasPrefix(RuntimeVersion, d.RuntimeVersion) {
		return &DependencyError{
			ToolID: e.ID,
			Reason: fmt.Sprintf("needs runtime %s, have %s", d.RuntimeVersion, RuntimeVersion),
		}
	}
	for _, p := range d.Packages {
		if _, ok := l.available[p.Name]; ok {
			continue
		}
		if p.Optional {
			w := fmt.Sprintf("optional package %q not available", p.Name)
			out.Warnings = append(out.Warnings, w)
			fmt.Fprintf(l.warnings, "tool %s: %s\n", e.ID, w)
			continue
		}
		return &DependencyError{
			ToolID: e.ID,
			Reason: fmt.Sprintf("required package %q not available", p.Name),
		}
	}
	return nil
}

// Unload cleans up and unregisters a tool. Unknown ids return false.
func (l *Loader) Unload(id string) (bool, error) {
	t, _, err := l.registry.Get(id)
	if err != nil {
		return false, nil
	}
	cleanupErr := t.Cleanup()
	if !l.registry.Unregister(id) {
		return false, nil
	}
	if cleanupErr != nil {
		return true, fmt.Errorf("tool: cleanup %q: %w", id, cleanupErr)
	}
	return true, nil
}

// dangerousDeclared returns the sorted dangerous permissions a manifest
// entry asks for.
func dangerousDeclared(e *ManifestEntry) []string {
	var out []string
	for _, p := range e.Permissions {
		if parsed, ok := model.ParsePermission(p); ok && model.DangerousPermissions[parsed] {
			out = append(out, string(parsed))
		}
	}
	sort.Strings(out)
	return out
}

// manifestTool overrides a tool's self-reported metadata with what the
// manifest declared, so the manifest is the single source of truth for
// permissions.
type manifestTool struct {
	Tool
	meta Metadata
}

func (t *manifestTool) Metadata() Metadata { return t.meta }
