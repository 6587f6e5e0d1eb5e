package orchestrator

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gk0729/LobsterShell/internal/approval"
	"github.com/gk0729/LobsterShell/internal/audit"
	"github.com/gk0729/LobsterShell/internal/gate"
	"github.com/gk0729/LobsterShell/internal/mode"
	"github.com/gk0729/LobsterShell/internal/model"
	"github.com/gk0729/LobsterShell/internal/overwrite"
)

// Executor runs the request body in one execution mode. Implementations
// wrap a local model, a hybrid split, or a cloud sandbox client.
type Executor interface {
	Name() string
	Execute(ctx context.Context, ec *ExecutionContext) (string, error)
}

// modePermissions maps the chosen mode to the egress permission the
// request must additionally hold. Local execution needs nothing extra.
var modePermissions = map[model.ExecutionMode][]model.Permission{
	model.ModeCloudSandbox: {model.PermNetworkExternal},
	model.ModeHybrid:       {model.PermNetworkInternal},
}

// ConfirmationTTL bounds how long a paused request stays confirmable.
const ConfirmationTTL = 15 * time.Minute

// Orchestrator wires the pipeline components.
type Orchestrator struct {
	engine     *mode.Engine
	gate       *gate.Gate
	chain      *audit.Chain
	tickets    *approval.Store
	overwriter *overwrite.Overwriter
	executors  map[model.ExecutionMode]Executor
	whitelist  func() []string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithToolWhitelist supplies the allowed tool names for the gate,
// typically registry.IDs.
func WithToolWhitelist(f func() []string) Option {
	return func(o *Orchestrator) { o.whitelist = f }
}

// New creates an Orchestrator. Engine, gate, chain, ticket store, and
// overwriter are required; executors register separately per mode.
func New(engine *mode.Engine, g *gate.Gate, chain *audit.Chain, tickets *approval.Store, ow *overwrite.Overwriter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine:     engine,
		gate:       g,
		chain:      chain,
		tickets:    tickets,
		overwriter: ow,
		executors:  make(map[model.ExecutionMode]Executor),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RegisterExecutor binds an executor to a mode.
func (o *Orchestrator) RegisterExecutor(m model.ExecutionMode, e Executor) {
	o.executors[m] = e
}

// Process runs one request through the pipeline. It never panics: a
// panic in any stage produces a FAILED outcome naming the stage, with
// whatever timings were collected, and leaves shared state usable for
// other requests.
func (o *Orchestrator) Process(ctx context.Context, req *Request) (out *Outcome) {
	ec := newExecutionContext(req)

	defer func() {
		if r := recover(); r != nil {
			o.record(ec, audit.Record{
				EventType:   audit.EventExecutionEnd,
				Level:       audit.LevelCritical,
				Action:      "panic",
				Description: fmt.Sprintf("pipeline panicked in stage %s: %v", ec.Stage(), r),
				Failed:      true,
			})
			out = o.finish(ec, StatusFailed, fmt.Sprintf("internal error in stage %s: %v", ec.Stage(), r))
		}
	}()

	o.record(ec, audit.Record{
		EventType:   audit.EventExecutionStart,
		Action:      "request_received",
		Description: fmt.Sprintf("pipeline started for user %s", req.UserID),
	})

	// ANALYZING: score the content and pick a mode.
	ec.advance(StageAnalyzing)
	ec.Decision = o.engine.Decide(req.Content, req.UserID, req.Signals, ec.Tags)
	o.record(ec, audit.Record{
		EventType:   audit.EventModeDecision,
		Action:      string(ec.Decision.Mode),
		Description: ec.Decision.Reason,
		Details: map[string]string{
			"score":      fmt.Sprintf("%.2f", ec.Decision.SensitivityScore),
			"confidence": fmt.Sprintf("%.2f", ec.Decision.Confidence),
		},
	})

	// Confirmation gate: pause, or verify the resumed ticket.
	ec.advance(StageConfirmation)
	if ec.Decision.RequiresConfirmation {
		if outcome := o.confirmationGate(ec); outcome != nil {
			return outcome
		}
	}

	// SECURITY_CHECK: the multi-phase gate. Only a critical failure
	// denies the request; lesser failures land on the ledger and the
	// report, and the run continues.
	ec.advance(StageSecurityCheck)
	rep := o.gate.Run(o.gateContext(ec))
	if !rep.Passed {
		deniedErr := gate.Denied(rep)
		level := audit.LevelWarning
		if deniedErr != nil {
			level = audit.LevelCritical
		}
		failed := rep.Failures()
		o.record(ec, audit.Record{
			EventType:   audit.EventPolicyViolation,
			Level:       level,
			Action:      failed[0].CheckID,
			Description: failed[0].Message,
			Failed:      true,
		})
		if deniedErr != nil {
			out := o.finish(ec, StatusDenied, deniedErr.Error())
			out.GateReport = rep
			return out
		}
	}
	o.record(ec, audit.Record{
		EventType:   audit.EventSecurityCheck,
		Action:      "gate_passed",
		Description: fmt.Sprintf("risk %s across %d phases", rep.Risk, len(rep.Phases)),
	})

	// EXECUTING: hand off to the executor for the chosen mode.
	ec.advance(StageExecuting)
	exec, ok := o.executors[ec.Decision.Mode]
	if !ok {
		o.record(ec, audit.Record{
			EventType:   audit.EventExecutionEnd,
			Level:       audit.LevelError,
			Action:      "no_executor",
			Description: fmt.Sprintf("no executor registered for mode %s", ec.Decision.Mode),
			Failed:      true,
		})
		out := o.finish(ec, StatusFailed, fmt.Sprintf("configuration error: no executor for mode %s", ec.Decision.Mode))
		out.GateReport = rep
		return out
	}
	output, err := exec.Execute(ctx, ec)
	if err != nil {
		o.record(ec, audit.Record{
			EventType:   audit.EventExecutionEnd,
			Level:       audit.LevelError,
			Action:      exec.Name(),
			Description: err.Error(),
			Failed:      true,
		})
		out := o.finish(ec, StatusFailed, fmt.Sprintf("execution failed: %v", err))
		out.GateReport = rep
		return out
	}
	o.record(ec, audit.Record{
		EventType:   audit.EventExecutionEnd,
		Action:      exec.Name(),
		Description: "execution completed",
	})

	// OVERWRITING: resolve placeholders in the output.
	ec.advance(StageOverwriting)
	owRes := o.overwriter.Overwrite(ctx, output, req.ContextValues)
	o.record(ec, audit.Record{
		EventType: audit.EventDataOverwrite,
		Action:    "resolve",
		Description: fmt.Sprintf("%d placeholders, %d resolved, %d failed",
			owRes.Total, owRes.Resolved, owRes.Failed),
		Failed: !owRes.Complete(),
	})

	out = o.finish(ec, StatusCompleted, "")
	out.Output = owRes.Text
	out.GateReport = rep
	out.Overwrite = owRes
	return out
}

// confirmationGate pauses a fresh request or validates a resumed one.
// A nil return means the pipeline may continue.
func (o *Orchestrator) confirmationGate(ec *ExecutionContext) *Outcome {
	req := ec.Request

	if !req.Confirmed {
		err := o.tickets.Request(ec.RequestID, req.UserID, ec.Decision.Reason,
			ec.Decision.Mode, ec.Decision.SensitivityScore, ConfirmationTTL)
		if err != nil {
			return o.finish(ec, StatusFailed, fmt.Sprintf("confirmation ticket: %v", err))
		}
		o.record(ec, audit.Record{
			EventType:   audit.EventUserConfirmation,
			Action:      "requested",
			Description: "request paused awaiting user confirmation",
		})
		out := o.finish(ec, StatusPendingConfirmation, "")
		out.ConfirmationKey = ec.RequestID
		return out
	}

	st, err := o.tickets.Check(ec.RequestID)
	if err != nil {
		return o.finish(ec, StatusFailed, fmt.Sprintf("confirmation ticket: %v", err))
	}
	switch st {
	case approval.StatusConfirmed:
		if err := o.tickets.Consume(ec.RequestID); err != nil {
			return o.finish(ec, StatusFailed, fmt.Sprintf("confirmation ticket: %v", err))
		}
		o.record(ec, audit.Record{
			EventType:   audit.EventUserConfirmation,
			Action:      "confirmed",
			Description: "user confirmed, pipeline resumed",
		})
		return nil
	default:
		o.record(ec, audit.Record{
			EventType:   audit.EventUserConfirmation,
			Action:      string(st),
			Description: fmt.Sprintf("ticket is %s, request not resumed", st),
			Failed:      true,
		})
		return o.finish(ec, StatusDenied, fmt.Sprintf("confirmation ticket is %s", st))
	}
}

// gateContext builds the typed gate input. The mode decision adds its
// egress permission to what the tool itself requires.
func (o *Orchestrator) gateContext(ec *ExecutionContext) *gate.Context {
	req := ec.Request
	gctx := &gate.Context{
		UserID:              req.UserID,
		AuthToken:           req.AuthToken,
		Content:             req.Content,
		ToolName:            req.ToolName,
		ToolCode:            req.ToolCode,
		SQL:                 req.SQL,
		GrantedPermissions:  req.GrantedPermissions,
		RequiredPermissions: modePermissions[ec.Decision.Mode],
		Tags:                ec.Tags,
	}
	if o.whitelist != nil {
		gctx.ToolWhitelist = o.whitelist()
	}
	return gctx
}

// record stamps the request identity onto an audit record. The chain
// keeps the linked entry even when its sink write fails, but a sink
// failure must not pass unnoticed.
func (o *Orchestrator) record(ec *ExecutionContext, rec audit.Record) {
	rec.UserID = ec.Request.UserID
	rec.SessionID = ec.Request.SessionID
	rec.RequestID = ec.RequestID
	if _, err := o.chain.Append(rec); err != nil {
		fmt.Fprintf(os.Stderr, "audit sink write failed: %v\n", err)
	}
}

func (o *Orchestrator) finish(ec *ExecutionContext, st Status, errMsg string) *Outcome {
	switch st {
	case StatusCompleted:
		ec.advance(StageCompleted)
	case StatusPendingConfirmation:
		// Stage stays at confirmation.
	default:
		ec.advance(StageFailed)
	}
	out := &Outcome{
		RequestID: ec.RequestID,
		Status:    st,
		Stage:     ec.Stage(),
		Decision:  ec.Decision,
		Error:     errMsg,
		Tags:      ec.Tags.List(),
		Timings:   ec.Timings(),
		Duration:  time.Since(ec.startedAt),
	}
	return out
}
