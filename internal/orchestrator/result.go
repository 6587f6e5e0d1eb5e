package orchestrator

import (
	"time"

	"github.com/gk0729/LobsterShell/internal/gate"
	"github.com/gk0729/LobsterShell/internal/model"
	"github.com/gk0729/LobsterShell/internal/overwrite"
)

// Status is the terminal (or paused) state of one request.
type Status string

const (
	StatusCompleted           Status = "completed"
	StatusFailed              Status = "failed"
	StatusDenied              Status = "denied"
	StatusPendingConfirmation Status = "pending_confirmation"
)

// Outcome is what the orchestrator returns for one request.
type Outcome struct {
	RequestID string             `json:"request_id"`
	Status    Status             `json:"status"`
	Stage     Stage              `json:"stage"`
	Decision  model.ModeDecision `json:"decision"`

	// ConfirmationKey is set when Status is pending_confirmation; the
	// caller confirms or denies the ticket under this key, then
	// resubmits with Confirmed set.
	ConfirmationKey string `json:"confirmation_key,omitempty"`

	Output     string                  `json:"output,omitempty"`
	GateReport *gate.Report            `json:"gate_report,omitempty"`
	Overwrite  *overwrite.Result       `json:"overwrite,omitempty"`
	Error      string                  `json:"error,omitempty"`
	Tags       []string                `json:"tags,omitempty"`
	Timings    map[Stage]time.Duration `json:"timings"`
	Duration   time.Duration           `json:"duration"`
}
