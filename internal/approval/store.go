// Package approval holds confirmation tickets for requests the mode
// engine flagged as needing explicit user sign-off. Tickets live as
// JSON files so a confirmation can arrive from a different process
// than the one that paused.
package approval

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gk0729/LobsterShell/internal/model"
)

// validKey matches alphanumeric, dash, underscore, and dot characters only.
var validKey = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// validateKey rejects keys that could cause path traversal.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("key must not contain '..'")
	}
	if !validKey.MatchString(key) {
		return fmt.Errorf("key contains invalid characters: only alphanumeric, dash, underscore, and dot are allowed")
	}
	return nil
}

// Status is the lifecycle state of a confirmation ticket.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusDenied    Status = "denied"
	StatusConsumed  Status = "consumed"
	StatusExpired   Status = "expired"
)

// Ticket is one paused request awaiting user confirmation.
type Ticket struct {
	Key              string              `json:"key"`
	Status           Status              `json:"status"`
	UserID           string              `json:"user_id"`
	Mode             model.ExecutionMode `json:"mode"`
	SensitivityScore float64             `json:"sensitivity_score"`
	Reason           string              `json:"reason"`
	CreatedAt        time.Time           `json:"created_at"`
	ExpiresAt        *time.Time          `json:"expires_at,omitempty"`
	ResolvedAt       *time.Time          `json:"resolved_at,omitempty"`
}

// Store manages ticket files on disk.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates a Store backed by the given directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create approval directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// DefaultDir returns the default ticket directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "lobstershell-pending")
	}
	return filepath.Join(home, ".lobstershell", "pending")
}

// Request creates a pending ticket keyed by request id. No-op if one
// already exists, so a retried request does not reset its ticket.
func (s *Store) Request(key, userID, reason string, mode model.ExecutionMode, score float64, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("invalid ticket key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	t := Ticket{
		Key:              key,
		Status:           StatusPending,
		UserID:           userID,
		Mode:             mode,
		SensitivityScore: score,
		Reason:           reason,
		CreatedAt:        time.Now().UTC(),
	}
	if ttl > 0 {
		exp := t.CreatedAt.Add(ttl)
		t.ExpiresAt = &exp
	}

	return s.writeAtomic(path, t)
}

// Confirm marks a pending ticket as confirmed.
func (s *Store) Confirm(key string) error {
	return s.resolve(key, StatusConfirmed)
}

// Deny marks a pending ticket as denied.
func (s *Store) Deny(key string) error {
	return s.resolve(key, StatusDenied)
}

func (s *Store) resolve(key string, st Status) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("invalid ticket key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.read(key)
	if err != nil {
		return fmt.Errorf("ticket %q not found: %w", key, err)
	}
	if t.Status != StatusPending {
		return fmt.Errorf("ticket %q is %s, not pending", key, t.Status)
	}

	t.Status = st
	now := time.Now().UTC()
	t.ResolvedAt = &now
	return s.writeAtomic(s.path(key), *t)
}

// Check returns the current status of a ticket. Pending tickets past
// their deadline flip to expired on read.
func (s *Store) Check(key string) (Status, error) {
	if err := validateKey(key); err != nil {
		return "", fmt.Errorf("invalid ticket key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.read(key)
	if err != nil {
		return "", fmt.Errorf("ticket %q not found", key)
	}

	if t.Status == StatusPending && t.ExpiresAt != nil && time.Now().UTC().After(*t.ExpiresAt) {
		t.Status = StatusExpired
		s.writeAtomic(s.path(key), *t)
		return StatusExpired, nil
	}

	return t.Status, nil
}

// Consume marks a confirmed ticket as used. A ticket confirms exactly
// one execution.
func (s *Store) Consume(key string) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("invalid ticket key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.read(key)
	if err != nil {
		return fmt.Errorf("ticket %q not found: %w", key, err)
	}
	if t.Status != StatusConfirmed {
		return fmt.Errorf("ticket %q is %s, cannot consume", key, t.Status)
	}

	t.Status = StatusConsumed
	now := time.Now().UTC()
	t.ResolvedAt = &now
	return s.writeAtomic(s.path(key), *t)
}

// Pending returns all tickets still awaiting a decision.
func (s *Store) Pending() ([]Ticket, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	var out []Ticket
	for _, t := range all {
		if t.Status == StatusPending {
			out = append(out, t)
		}
	}
	return out, nil
}

// List returns all tickets in the store.
func (s *Store) List() ([]Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var tickets []Ticket
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		key := strings.TrimSuffix(e.Name(), ".json")
		t, err := s.read(key)
		if err != nil {
			continue
		}
		tickets = append(tickets, *t)
	}
	return tickets, nil
}

// Cleanup removes all ticket files in the store.
func (s *Store) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var errs []error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *Store) read(key string) (*Ticket, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, err
	}

	var t Ticket
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) writeAtomic(path string, t Ticket) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
