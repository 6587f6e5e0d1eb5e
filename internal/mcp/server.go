// Package mcp exposes the governance pipeline over the Model Context
// Protocol, so agent frontends submit requests through the gate instead
// of around it.
package mcp

import (
	"context"
	"fmt"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gk0729/LobsterShell/internal/pipeline"
)

// Config holds MCP server configuration.
type Config struct {
	ConfigPath string
	PendingDir string
}

// Server wraps the MCP SDK server around an assembled pipeline.
type Server struct {
	mcpServer *mcpsdk.Server
	cfg       Config

	mu sync.RWMutex
	p  *pipeline.Pipeline
}

// New assembles the pipeline and registers the governance tools.
func New(cfg Config) (*Server, error) {
	p, err := pipeline.New(pipeline.Options{
		ConfigPath: cfg.ConfigPath,
		PendingDir: cfg.PendingDir,
	})
	if err != nil {
		return nil, fmt.Errorf("mcp: assemble pipeline: %w", err)
	}
	p.RegisterEchoExecutors()

	s := &Server{cfg: cfg, p: p}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "lobstershell",
			Version: "0.1.0",
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Close releases the pipeline's file-backed resources.
func (s *Server) Close() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.p.Close()
}

// Reload rebuilds the pipeline from the governance file. The audit
// chain does not carry over; the JSONL sink keeps the full history.
func (s *Server) Reload() error {
	fresh, err := pipeline.New(pipeline.Options{
		ConfigPath: s.cfg.ConfigPath,
		PendingDir: s.cfg.PendingDir,
	})
	if err != nil {
		return fmt.Errorf("mcp: reload pipeline: %w", err)
	}
	fresh.RegisterEchoExecutors()

	s.mu.Lock()
	old := s.p
	s.p = fresh
	s.mu.Unlock()
	return old.Close()
}

// current returns the live pipeline for one handler call.
func (s *Server) current() *pipeline.Pipeline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.p
}

// registerTools adds the governance tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "lobster_govern",
		Description: "Run a request through the full governance pipeline: sensitivity routing, security gate, execution, and data overwriting. Paused requests return a confirmation key.",
	}, s.handleGovern)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "lobster_check",
		Description: "Score content sensitivity and report the execution mode it would route to, without executing anything (dry-run).",
	}, s.handleCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "lobster_confirm",
		Description: "Confirm or deny a paused request by its confirmation key.",
	}, s.handleConfirm)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "lobster_pending",
		Description: "List requests paused and awaiting confirmation.",
	}, s.handlePending)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "lobster_audit_verify",
		Description: "Verify the integrity of the audit hash chain and report its statistics.",
	}, s.handleAuditVerify)
}
