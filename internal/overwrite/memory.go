package overwrite

import (
	"context"
	"sync"
)

// MemoryRunner answers queries from an in-process key-value table. The
// query string is the key. It backs tests and the cache/memory source
// types.
type MemoryRunner struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryRunner creates a runner seeded with data.
func NewMemoryRunner(data map[string]string) *MemoryRunner {
	if data == nil {
		data = make(map[string]string)
	}
	return &MemoryRunner{data: data}
}

// Set stores a value.
func (m *MemoryRunner) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

func (m *MemoryRunner) Run(ctx context.Context, src *DataSource, query string, params map[string]string) (*QueryResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[query]
	if !ok {
		return &QueryResult{}, nil
	}
	return &QueryResult{Values: map[string]string{"value": v}}, nil
}
