// Package orchestrator drives one request through the full governance
// pipeline: sensitivity analysis, confirmation, the security gate, the
// chosen executor, and placeholder overwriting, auditing every step.
package orchestrator

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gk0729/LobsterShell/internal/model"
	"github.com/gk0729/LobsterShell/internal/sensitivity"
)

// Stage is one step of the pipeline. Stages only advance; a context
// that tries to move backwards is a programming error and is rejected.
type Stage string

const (
	StageInit          Stage = "init"
	StageAnalyzing     Stage = "analyzing"
	StageConfirmation  Stage = "confirmation"
	StageSecurityCheck Stage = "security_check"
	StageExecuting     Stage = "executing"
	StageOverwriting   Stage = "overwriting"
	StageCompleted     Stage = "completed"
	StageFailed        Stage = "failed"
)

var stageOrder = map[Stage]int{
	StageInit:          0,
	StageAnalyzing:     1,
	StageConfirmation:  2,
	StageSecurityCheck: 3,
	StageExecuting:     4,
	StageOverwriting:   5,
	StageCompleted:     6,
	StageFailed:        6,
}

// Request is the caller's view of one piece of work.
type Request struct {
	UserID    string
	SessionID string
	AuthToken string
	Content   string

	// Confirmed resumes a request that previously paused for
	// confirmation. The ticket is looked up by request id.
	RequestID string
	Confirmed bool

	ToolName string
	ToolCode string
	SQL      string
	Params   map[string]any

	GrantedPermissions []model.Permission
	Signals            sensitivity.Signals
	ContextValues      map[string]string
}

// ExecutionContext is the per-request pipeline state.
type ExecutionContext struct {
	Request   *Request
	RequestID string
	Tags      *model.TagSet

	Decision model.ModeDecision

	stage     Stage
	startedAt time.Time
	stageAt   time.Time
	timings   map[Stage]time.Duration
}

// newExecutionContext starts a context at INIT. A resumed request keeps
// its original id so audit entries and the confirmation ticket line up.
func newExecutionContext(req *Request) *ExecutionContext {
	id := req.RequestID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()
	return &ExecutionContext{
		Request:   req,
		RequestID: id,
		Tags:      model.NewTagSet(),
		stage:     StageInit,
		startedAt: now,
		stageAt:   now,
		timings:   make(map[Stage]time.Duration),
	}
}

// Stage returns the current stage.
func (ec *ExecutionContext) Stage() Stage { return ec.stage }

// Timings returns a copy of the per-stage durations recorded so far.
func (ec *ExecutionContext) Timings() map[Stage]time.Duration {
	out := make(map[Stage]time.Duration, len(ec.timings))
	for k, v := range ec.timings {
		out[k] = v
	}
	return out
}

// advance moves to the next stage, recording how long the previous one
// took. Moving backwards is rejected.
func (ec *ExecutionContext) advance(next Stage) error {
	if stageOrder[next] < stageOrder[ec.stage] {
		return fmt.Errorf("orchestrator: cannot move from %s back to %s", ec.stage, next)
	}
	now := time.Now()
	ec.timings[ec.stage] = now.Sub(ec.stageAt)
	ec.stage = next
	ec.stageAt = now
	return nil
}
