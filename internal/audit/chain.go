package audit

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Record describes one event to append. The zero value of Failed means
// success, so callers only set it on the unhappy path.
type Record struct {
	EventType   EventType
	Level       Level
	Action      string
	Description string
	UserID      string
	SessionID   string
	RequestID   string
	Failed      bool
	Details     map[string]string
}

// Sink receives each entry after it is linked into the chain. A sink
// error is reported to the caller but the in-memory chain keeps the
// entry; the ledger never loses what it already linked.
type Sink interface {
	Write(e *Entry) error
}

// Chain is the in-memory hash-linked ledger. Appends are serialized;
// reads see a consistent snapshot.
type Chain struct {
	mu        sync.RWMutex
	entries   []*Entry
	lastHash  string
	bySession map[string][]int
	byUser    map[string][]int
	sink      Sink
}

// NewChain creates an empty ledger. Sink may be nil.
func NewChain(sink Sink) *Chain {
	return &Chain{
		lastHash:  GenesisHash,
		bySession: make(map[string][]int),
		byUser:    make(map[string][]int),
		sink:      sink,
	}
}

// Append links a new entry onto the chain and returns it.
func (c *Chain) Append(rec Record) (*Entry, error) {
	if rec.Level == "" {
		rec.Level = LevelInfo
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e := &Entry{
		ID:           uuid.NewString(),
		Timestamp:    Now(),
		EventType:    rec.EventType,
		Level:        rec.Level,
		Action:       rec.Action,
		Description:  rec.Description,
		UserID:       rec.UserID,
		SessionID:    rec.SessionID,
		RequestID:    rec.RequestID,
		Success:      !rec.Failed,
		Details:      rec.Details,
		PreviousHash: c.lastHash,
	}
	e.Hash = ComputeHash(e)

	idx := len(c.entries)
	c.entries = append(c.entries, e)
	c.lastHash = e.Hash
	if e.SessionID != "" {
		c.bySession[e.SessionID] = append(c.bySession[e.SessionID], idx)
	}
	if e.UserID != "" {
		c.byUser[e.UserID] = append(c.byUser[e.UserID], idx)
	}

	if c.sink != nil {
		if err := c.sink.Write(e); err != nil {
			return e, fmt.Errorf("audit: sink write: %w", err)
		}
	}
	return e, nil
}

// Len returns the number of entries in the chain.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns a snapshot of all entries in append order.
func (c *Chain) Entries() []*Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Status is the outcome of a chain verification.
type Status struct {
	Valid        bool   `json:"valid"`
	TotalEntries int    `json:"total_entries"`
	BrokenAt     int    `json:"broken_at,omitempty"`
	BrokenID     string `json:"broken_id,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// IntegrityError reports a broken chain link.
type IntegrityError struct {
	Index   int
	EntryID string
	Reason  string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("audit: chain broken at entry %d (%s): %s", e.Index, e.EntryID, e.Reason)
}

// Verify walks the chain recomputing every hash and linkage. The first
// broken link is reported; later entries are not inspected since their
// hashes all derive from the broken one.
func (c *Chain) Verify() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	prev := GenesisHash
	for i, e := range c.entries {
		if e.PreviousHash != prev {
			return Status{
				TotalEntries: len(c.entries),
				BrokenAt:     i,
				BrokenID:     e.ID,
				Reason:       fmt.Sprintf("previous_hash mismatch: have %s, want %s", e.PreviousHash, prev),
			}
		}
		if recomputed := ComputeHash(e); e.Hash != recomputed {
			return Status{
				TotalEntries: len(c.entries),
				BrokenAt:     i,
				BrokenID:     e.ID,
				Reason:       "entry hash does not match its payload",
			}
		}
		prev = e.Hash
	}
	return Status{Valid: true, TotalEntries: len(c.entries)}
}

// VerifyErr is Verify as an error for call sites that want to fail hard.
func (c *Chain) VerifyErr() error {
	st := c.Verify()
	if st.Valid {
		return nil
	}
	return &IntegrityError{Index: st.BrokenAt, EntryID: st.BrokenID, Reason: st.Reason}
}

// Query filters a Search. Zero fields match everything.
type Query struct {
	SessionID string
	UserID    string
	RequestID string
	EventType EventType
	Level     Level
	Contains  string
	// Since and Until bound the timestamp, inclusive, in the canonical
	// TimestampFormat. The fixed-width UTC encoding compares lexically.
	Since string
	Until string
	Limit int
}

// Search returns matching entries in append order. Session and user
// filters use the indices; the rest scan.
func (c *Chain) Search(q Query) []*Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var candidates []int
	switch {
	case q.SessionID != "":
		candidates = c.bySession[q.SessionID]
	case q.UserID != "":
		candidates = c.byUser[q.UserID]
	default:
		candidates = make([]int, len(c.entries))
		for i := range c.entries {
			candidates[i] = i
		}
	}

	var out []*Entry
	for _, idx := range candidates {
		e := c.entries[idx]
		if q.SessionID != "" && e.SessionID != q.SessionID {
			continue
		}
		if q.UserID != "" && e.UserID != q.UserID {
			continue
		}
		if q.RequestID != "" && e.RequestID != q.RequestID {
			continue
		}
		if q.EventType != "" && e.EventType != q.EventType {
			continue
		}
		if q.Level != "" && e.Level != q.Level {
			continue
		}
		if q.Contains != "" &&
			!strings.Contains(e.Description, q.Contains) &&
			!strings.Contains(e.Action, q.Contains) {
			continue
		}
		if q.Since != "" && e.Timestamp < q.Since {
			continue
		}
		if q.Until != "" && e.Timestamp > q.Until {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out
}

// Stats summarizes the ledger contents.
type Stats struct {
	TotalEntries int               `json:"total_entries"`
	ByEventType  map[EventType]int `json:"by_event_type"`
	ByLevel      map[Level]int     `json:"by_level"`
	Failures     int               `json:"failures"`
	Sessions     int               `json:"sessions"`
	Users        []string          `json:"users"`
}

// Stats walks the chain and tallies per-type and per-level counts.
func (c *Chain) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Stats{
		TotalEntries: len(c.entries),
		ByEventType:  make(map[EventType]int),
		ByLevel:      make(map[Level]int),
		Sessions:     len(c.bySession),
	}
	for _, e := range c.entries {
		st.ByEventType[e.EventType]++
		st.ByLevel[e.Level]++
		if !e.Success {
			st.Failures++
		}
	}
	for u := range c.byUser {
		st.Users = append(st.Users, u)
	}
	sort.Strings(st.Users)
	return st
}
