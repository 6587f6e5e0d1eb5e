// Package tool is the capability-gated plugin runtime: a registry of
// loaded tools, a manifest loader, and an executor that enforces
// permissions, input validation, timeouts, and sandbox requirements
// before any tool code runs.
package tool

import (
	"context"
	"time"

	"github.com/gk0729/LobsterShell/internal/model"
)

// Metadata describes one tool as declared by its manifest.
type Metadata struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Version     string             `json:"version"`
	Description string             `json:"description"`
	Author      string             `json:"author"`
	Category    string             `json:"category"`
	Keywords    []string           `json:"keywords,omitempty"`
	Permissions []model.Permission `json:"permissions"`

	// SandboxRequired tools only run when the executor has a sandbox.
	SandboxRequired bool `json:"sandbox_required"`
}

// Config is the per-tool configuration handed to Initialize.
type Config struct {
	Settings map[string]any `json:"settings,omitempty"`
	Timeout  time.Duration  `json:"timeout,omitempty"`
}

// CallContext identifies who is invoking a tool and with what rights.
type CallContext struct {
	UserID             string
	SessionID          string
	RequestID          string
	GrantedPermissions []model.Permission

	// Timeout overrides the executor's default deadline for this call
	// when positive.
	Timeout time.Duration
}

// Result is what a tool execution produces.
type Result struct {
	Success  bool           `json:"success"`
	Output   any            `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	Duration time.Duration  `json:"duration"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Tool is the contract every plugin implements.
type Tool interface {
	Metadata() Metadata
	Initialize(cfg Config) error
	ValidateInput(params map[string]any) error
	Execute(ctx context.Context, call CallContext, params map[string]any) Result
	Cleanup() error
}

// Factory builds a fresh tool instance. Factories are registered at
// build time and resolved by the loader through the manifest locator.
type Factory func() Tool

// Sandbox is the isolation hook consulted before sandbox-required
// tools run. Implementations wrap the execution however they isolate;
// this package only enforces that one is present.
type Sandbox interface {
	Name() string
	Ready() bool
}
