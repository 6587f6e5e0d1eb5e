package approval

import (
	"sync"
	"testing"
	"time"

	"github.com/gk0729/LobsterShell/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

func request(t *testing.T, s *Store, key string) {
	t.Helper()
	if err := s.Request(key, "u-1", "high sensitivity", model.ModeLocalOnly, 0.92, 0); err != nil {
		t.Fatalf("Request failed: %v", err)
	}
}

func TestRequestCreatesTicket(t *testing.T) {
	s := newTestStore(t)
	request(t, s, "req-1")

	tk, err := s.read("req-1")
	if err != nil {
		t.Fatalf("failed to read: %v", err)
	}
	if tk.Key != "req-1" || tk.Status != StatusPending {
		t.Errorf("ticket = %+v", tk)
	}
	if tk.Mode != model.ModeLocalOnly || tk.SensitivityScore != 0.92 {
		t.Errorf("decision fields not carried: %+v", tk)
	}
}

func TestRequestIdempotent(t *testing.T) {
	s := newTestStore(t)
	request(t, s, "req-1")
	if err := s.Request("req-1", "u-2", "other", model.ModeHybrid, 0.5, 0); err != nil {
		t.Fatal(err)
	}

	tk, _ := s.read("req-1")
	if tk.UserID != "u-1" {
		t.Errorf("retry must not overwrite: %+v", tk)
	}
}

func TestConfirmAndConsume(t *testing.T) {
	s := newTestStore(t)
	request(t, s, "req-1")

	if err := s.Confirm("req-1"); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if st, _ := s.Check("req-1"); st != StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", st)
	}

	if err := s.Consume("req-1"); err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if st, _ := s.Check("req-1"); st != StatusConsumed {
		t.Errorf("status = %s, want consumed", st)
	}
	if err := s.Consume("req-1"); err == nil {
		t.Error("double consume must fail")
	}
}

func TestConsumeRequiresConfirmation(t *testing.T) {
	s := newTestStore(t)
	request(t, s, "req-1")

	if err := s.Consume("req-1"); err == nil {
		t.Error("consuming a pending ticket must fail")
	}
}

func TestDeny(t *testing.T) {
	s := newTestStore(t)
	request(t, s, "req-1")

	if err := s.Deny("req-1"); err != nil {
		t.Fatalf("Deny failed: %v", err)
	}
	if st, _ := s.Check("req-1"); st != StatusDenied {
		t.Errorf("status = %s, want denied", st)
	}

	if err := s.Confirm("req-1"); err == nil {
		t.Error("confirming a denied ticket must fail")
	}
}

func TestPendingExpires(t *testing.T) {
	s := newTestStore(t)
	if err := s.Request("req-1", "u-1", "ttl test", model.ModeHybrid, 0.6, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)

	if st, _ := s.Check("req-1"); st != StatusExpired {
		t.Errorf("status = %s, want expired", st)
	}
	if err := s.Confirm("req-1"); err == nil {
		t.Error("confirming an expired ticket must fail")
	}
}

func TestCheckNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Check("nonexistent"); err == nil {
		t.Error("expected error for nonexistent key")
	}
}

func TestKeyValidation(t *testing.T) {
	s := newTestStore(t)
	for _, bad := range []string{"", "../escape", "a/b", "key with space"} {
		if err := s.Request(bad, "u-1", "r", model.ModeHybrid, 0.5, 0); err == nil {
			t.Errorf("key %q accepted", bad)
		}
	}
}

func TestPendingAndList(t *testing.T) {
	s := newTestStore(t)
	request(t, s, "req-1")
	request(t, s, "req-2")
	request(t, s, "req-3")
	s.Deny("req-2")

	all, err := s.List()
	if err != nil || len(all) != 3 {
		t.Fatalf("List: %v, %d entries", err, len(all))
	}
	pending, err := s.Pending()
	if err != nil || len(pending) != 2 {
		t.Fatalf("Pending: %v, %d entries", err, len(pending))
	}
}

func TestCleanup(t *testing.T) {
	s := newTestStore(t)
	request(t, s, "req-1")
	request(t, s, "req-2")

	if err := s.Cleanup(); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	list, _ := s.List()
	if len(list) != 0 {
		t.Errorf("expected 0 after cleanup, got %d", len(list))
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Request("shared", "u-1", "race", model.ModeLocalOnly, 0.9, 0)
			s.Check("shared")
		}()
	}
	wg.Wait()

	st, err := s.Check("shared")
	if err != nil {
		t.Fatalf("Check failed after concurrent access: %v", err)
	}
	if st != StatusPending {
		t.Errorf("expected pending, got %s", st)
	}
}
