package tool

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// entry pairs a live tool instance with its usage counters. Counters
// are atomics so RecordCall never takes the registry lock.
type entry struct {
	tool     Tool
	meta     Metadata
	loadedAt time.Time

	calls    atomic.Int64
	failures atomic.Int64
	lastUsed atomic.Int64 // unix nanos
}

// Registry is the catalog of loaded tools. Mutations take the write
// lock; lookups and listings read a consistent view under the read lock.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry creates an empty catalog.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds a tool under its metadata ID. Re-registering an ID is
// an error; unload first.
func (r *Registry) Register(t Tool) error {
	meta := t.Metadata()
	if meta.ID == "" {
		return fmt.Errorf("tool: cannot register tool with empty id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[meta.ID]; exists {
		return fmt.Errorf("tool: %q already registered", meta.ID)
	}
	r.entries[meta.ID] = &entry{tool: t, meta: meta, loadedAt: time.Now().UTC()}
	return nil
}

// Unregister removes a tool. Returns false for unknown ids.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	return true
}

// Get returns the tool and its metadata.
func (r *Registry) Get(id string) (Tool, Metadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, Metadata{}, &NotFoundError{ToolID: id}
	}
	return e.tool, e.meta, nil
}

// RecordCall bumps the usage counters for one invocation.
func (r *Registry) RecordCall(id string, failed bool) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return
	}
	e.calls.Add(1)
	if failed {
		e.failures.Add(1)
	}
	e.lastUsed.Store(time.Now().UnixNano())
}

// Usage is a snapshot of one tool's counters.
type Usage struct {
	ToolID   string    `json:"tool_id"`
	Calls    int64     `json:"calls"`
	Failures int64     `json:"failures"`
	LoadedAt time.Time `json:"loaded_at"`
	LastUsed time.Time `json:"last_used,omitempty"`
}

// UsageFor returns the counters for one tool.
func (r *Registry) UsageFor(id string) (Usage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return Usage{}, &NotFoundError{ToolID: id}
	}
	return e.usage(), nil
}

func (e *entry) usage() Usage {
	u := Usage{
		ToolID:   e.meta.ID,
		Calls:    e.calls.Load(),
		Failures: e.failures.Load(),
		LoadedAt: e.loadedAt,
	}
	if ns := e.lastUsed.Load(); ns > 0 {
		u.LastUsed = time.Unix(0, ns).UTC()
	}
	return u
}

// List returns all metadata sorted by id.
func (r *Registry) List() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Metadata, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs returns all registered tool ids, sorted. Useful as a whitelist.
func (r *Registry) IDs() []string {
	metas := r.List()
	ids := make([]string, len(metas))
	for i, m := range metas {
		ids[i] = m.ID
	}
	return ids
}

// Search matches a query against id, name, description, and keywords,
// case-insensitively.
func (r *Registry) Search(query string) []Metadata {
	q := strings.ToLower(query)
	var out []Metadata
	for _, m := range r.List() {
		if strings.Contains(strings.ToLower(m.ID), q) ||
			strings.Contains(strings.ToLower(m.Name), q) ||
			strings.Contains(strings.ToLower(m.Description), q) ||
			keywordMatch(m.Keywords, q) {
			out = append(out, m)
		}
	}
	return out
}

func keywordMatch(keywords []string, q string) bool {
	for _, k := range keywords {
		if strings.Contains(strings.ToLower(k), q) {
			return true
		}
	}
	return false
}

// Categories returns tool ids grouped by category, each group sorted.
func (r *Registry) Categories() map[string][]string {
	out := make(map[string][]string)
	for _, m := range r.List() {
		cat := m.Category
		if cat == "" {
			cat = "uncategorized"
		}
		out[cat] = append(out[cat], m.ID)
	}
	return out
}

// Export renders the catalog and its usage counters as indented JSON.
func (r *Registry) Export() ([]byte, error) {
	r.mu.RLock()
	snapshot := make([]struct {
		Metadata Metadata `json:"metadata"`
		Usage    Usage    `json:"usage"`
	}, 0, len(r.entries))
	for _, e := range r.entries {
		snapshot = append(snapshot, struct {
			Metadata Metadata `json:"metadata"`
			Usage    Usage    `json:"usage"`
		}{e.meta, e.usage()})
	}
	r.mu.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].Metadata.ID < snapshot[j].Metadata.ID
	})
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("tool: export registry: %w", err)
	}
	return data, nil
}
