package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "governance.yaml")
	cfg := fmt.Sprintf("audit_log_path: %s\npending_dir: %s\n",
		filepath.Join(dir, "audit.jsonl"), filepath.Join(dir, "pending"))
	if err := os.WriteFile(cfgPath, []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := New(Config{ConfigPath: cfgPath})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGovernCompletes(t *testing.T) {
	s := newTestServer(t)

	_, out, err := s.handleGovern(context.Background(), nil, GovernInput{
		UserID:      "u-1",
		AuthToken:   "tok",
		Content:     "what is the weather today",
		Permissions: []string{"network:external"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != "completed" {
		t.Fatalf("status = %s (%s)", out.Status, out.Error)
	}
	if out.Mode != "cloud_sandbox" {
		t.Errorf("mode = %s", out.Mode)
	}
}

func TestGovernPausesAndConfirms(t *testing.T) {
	s := newTestServer(t)

	_, out, err := s.handleGovern(context.Background(), nil, GovernInput{
		UserID:    "u-1",
		AuthToken: "tok",
		Content:   "here is my password: hunter2",
		Sensitive: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != "pending_confirmation" || out.ConfirmationKey == "" {
		t.Fatalf("outcome: %+v", out)
	}

	_, pend, err := s.handlePending(context.Background(), nil, PendingInput{})
	if err != nil || len(pend.Pending) != 1 {
		t.Fatalf("pending: %v %+v", err, pend)
	}

	_, conf, err := s.handleConfirm(context.Background(), nil, ConfirmInput{Key: out.ConfirmationKey})
	if err != nil || conf.Status != "confirmed" {
		t.Fatalf("confirm: %v %+v", err, conf)
	}

	_, resumed, err := s.handleGovern(context.Background(), nil, GovernInput{
		UserID:    "u-1",
		AuthToken: "tok",
		Content:   "here is my password: hunter2",
		Sensitive: true,
		RequestID: out.ConfirmationKey,
		Confirmed: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if resumed.Status != "completed" {
		t.Fatalf("resumed: %+v", resumed)
	}
}

func TestCheckIsDryRun(t *testing.T) {
	s := newTestServer(t)

	_, out, err := s.handleCheck(context.Background(), nil, CheckInput{
		Content:   "bank password is 1234",
		Sensitive: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Mode != "local_only" || !out.RequiresConfirmation {
		t.Fatalf("check: %+v", out)
	}
}

func TestAuditVerifyHandler(t *testing.T) {
	s := newTestServer(t)

	s.handleGovern(context.Background(), nil, GovernInput{
		UserID: "u-1", AuthToken: "tok", Content: "hello",
	})

	_, out, err := s.handleAuditVerify(context.Background(), nil, AuditVerifyInput{})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Valid || out.TotalEntries == 0 {
		t.Fatalf("verify: %+v", out)
	}
}

func TestReloadSwapsPipeline(t *testing.T) {
	s := newTestServer(t)
	before := s.current()
	if err := s.Reload(); err != nil {
		t.Fatal(err)
	}
	if s.current() == before {
		t.Fatal("reload did not swap the pipeline")
	}
}
