package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/gk0729/LobsterShell/internal/model"
)

// DefaultTimeout bounds an execution when neither the tool config nor
// the caller set one.
const DefaultTimeout = 30 * time.Second

// AuditFunc observes every execution attempt. It runs after the result
// is final and can never abort or alter it.
type AuditFunc func(toolID string, call CallContext, res Result)

// Executor runs registered tools behind the permission, validation,
// sandbox, and timeout gates.
type Executor struct {
	registry *Registry
	sandbox  Sandbox
	timeout  time.Duration
	audit    AuditFunc
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithSandbox attaches the isolation hook.
func WithSandbox(s Sandbox) ExecutorOption {
	return func(e *Executor) { e.sandbox = s }
}

// WithTimeout sets the default execution deadline.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = d }
}

// WithAudit attaches the audit callback.
func WithAudit(f AuditFunc) ExecutorOption {
	return func(e *Executor) { e.audit = f }
}

// NewExecutor creates an Executor over a registry.
func NewExecutor(registry *Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{registry: registry, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one tool call through the full gate sequence. The tool's
// Execute is only reached when every gate passes; a gate failure
// returns the typed error and a failed Result.
func (e *Executor) Execute(ctx context.Context, id string, call CallContext, params map[string]any) (Result, error) {
	start := time.Now()

	t, meta, err := e.registry.Get(id)
	if err != nil {
		return e.finish(id, call, start, err)
	}

	if missing := model.MissingPermissions(meta.Permissions, call.GrantedPermissions); len(missing) > 0 {
		return e.finish(id, call, start, &PermissionError{
			ToolID:  id,
			Missing: model.PermissionStrings(missing),
		})
	}

	if err := t.ValidateInput(params); err != nil {
		return e.finish(id, call, start, &ValidationError{ToolID: id, Reason: err.Error()})
	}

	if meta.SandboxRequired && (e.sandbox == nil || !e.sandbox.Ready()) {
		return e.finish(id, call, start, &SecurityError{ToolID: id, Reason: "sandbox required but not available"})
	}

	res, err := e.run(ctx, t, id, call, params)
	res.Duration = time.Since(start)
	e.registry.RecordCall(id, !res.Success)
	if e.audit != nil {
		e.audit(id, call, res)
	}
	return res, err
}

// run races the tool against its deadline. Timeouts are cooperative:
// the context is cancelled and the result returned, but a tool that
// ignores its context leaks a goroutine until it finishes.
func (e *Executor) run(ctx context.Context, t Tool, id string, call CallContext, params map[string]any) (Result, error) {
	timeout := e.timeout
	if call.Timeout > 0 {
		timeout = call.Timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Result{Success: false, Error: fmt.Sprintf("tool panicked: %v", r)}
			}
		}()
		done <- t.Execute(runCtx, call, params)
	}()

	select {
	case res := <-done:
		var err error
		if !res.Success && res.Error != "" {
			err = fmt.Errorf("tool: %q failed: %s", id, res.Error)
		}
		return res, err
	case <-runCtx.Done():
		terr := &TimeoutError{ToolID: id, Timeout: timeout.String()}
		return Result{Success: false, Error: terr.Error()}, terr
	}
}

// finish records and audits a gate failure without touching the tool.
func (e *Executor) finish(id string, call CallContext, start time.Time, gateErr error) (Result, error) {
	res := Result{
		Success:  false,
		Error:    gateErr.Error(),
		Duration: time.Since(start),
	}
	e.registry.RecordCall(id, true)
	if e.audit != nil {
		e.audit(id, call, res)
	}
	return res, gateErr
}
