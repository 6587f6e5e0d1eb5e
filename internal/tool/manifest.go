package tool

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gk0729/LobsterShell/internal/model"
)

// Manifest is the JSON package descriptor for one or more tools.
type Manifest struct {
	PackageName string          `json:"package_name"`
	Version     string          `json:"version"`
	Tools       []ManifestEntry `json:"tools"`
}

// ManifestEntry declares one tool: its identity, its factory locator,
// its permissions, and its dependencies.
type ManifestEntry struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description,omitempty"`
	Author      string   `json:"author,omitempty"`
	Category    string   `json:"category,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`

	// Module and Class locate the registered factory as "module.Class".
	Module string `json:"module"`
	Class  string `json:"class"`

	Permissions     []string       `json:"permissions,omitempty"`
	SandboxRequired bool           `json:"sandbox_required,omitempty"`
	Dependencies    *Dependencies  `json:"dependencies,omitempty"`
	Settings        map[string]any `json:"settings,omitempty"`
}

// Dependencies are the runtime requirements a manifest entry declares.
type Dependencies struct {
	RuntimeVersion string        `json:"runtime_version,omitempty"`
	Packages       []PackageWant `json:"packages,omitempty"`
}

// PackageWant names one required package. Optional packages produce a
// warning instead of a load failure when absent.
type PackageWant struct {
	Name     string `json:"name"`
	Version  string `json:"version,omitempty"`
	Optional bool   `json:"optional,omitempty"`
}

// Locator returns the factory key for this entry.
func (e *ManifestEntry) Locator() string {
	return e.Module + "." + e.Class
}

// ParseManifest decodes and validates manifest JSON.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("tool: parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadManifestFile reads and parses a manifest from disk.
func LoadManifestFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tool: read manifest: %w", err)
	}
	return ParseManifest(data)
}

// Validate checks structural requirements: non-empty tool list, unique
// ids, locators present, and permissions within the closed vocabulary.
func (m *Manifest) Validate() error {
	if m.PackageName == "" {
		return fmt.Errorf("tool: manifest missing package_name")
	}
	if len(m.Tools) == 0 {
		return fmt.Errorf("tool: manifest %q declares no tools", m.PackageName)
	}

	seen := make(map[string]bool, len(m.Tools))
	for i := range m.Tools {
		e := &m.Tools[i]
		if e.ID == "" {
			return fmt.Errorf("tool: manifest %q: tool %d missing id", m.PackageName, i)
		}
		if seen[e.ID] {
			return fmt.Errorf("tool: manifest %q: duplicate tool id %q", m.PackageName, e.ID)
		}
		seen[e.ID] = true
		if e.Module == "" || e.Class == "" {
			return fmt.Errorf("tool: manifest %q: tool %q missing module/class locator", m.PackageName, e.ID)
		}
		for _, p := range e.Permissions {
			if _, ok := model.ParsePermission(p); !ok {
				return fmt.Errorf("tool: manifest %q: tool %q declares unknown permission %q", m.PackageName, e.ID, p)
			}
		}
	}
	return nil
}

// metadata builds the runtime Metadata view of a manifest entry.
// Validate has already vetted the permission strings.
func (e *ManifestEntry) metadata() Metadata {
	perms := make([]model.Permission, 0, len(e.Permissions))
	for _, p := range e.Permissions {
		if parsed, ok := model.ParsePermission(p); ok {
			perms = append(perms, parsed)
		}
	}
	return Metadata{
		ID:              e.ID,
		Name:            e.Name,
		Version:         e.Version,
		Description:     e.Description,
		Author:          e.Author,
		Category:        e.Category,
		Keywords:        e.Keywords,
		Permissions:     perms,
		SandboxRequired: e.SandboxRequired,
	}
}
