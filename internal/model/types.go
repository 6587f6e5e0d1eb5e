package model

// ExecutionMode selects where a request is allowed to run.
type ExecutionMode string

const (
	ModeLocalOnly    ExecutionMode = "local_only"
	ModeHybrid       ExecutionMode = "hybrid"
	ModeCloudSandbox ExecutionMode = "cloud_sandbox"
)

// ParseMode maps a string to an ExecutionMode. Fail-closed: unknown → local_only.
func ParseMode(s string) ExecutionMode {
	switch ExecutionMode(s) {
	case ModeLocalOnly, ModeHybrid, ModeCloudSandbox:
		return ExecutionMode(s)
	default:
		return ModeLocalOnly
	}
}

// Severity classifies how bad a failing check is, and doubles as the
// aggregate risk level of a security report.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SeverityRank maps severity to a comparable integer for escalation.
var SeverityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Phase is one stage of the security gate. Phases run in the order
// returned by Phases.
type Phase string

const (
	PhaseEntry     Phase = "entry"
	PhaseContent   Phase = "content"
	PhaseBehavior  Phase = "behavior"
	PhaseExecution Phase = "execution"
)

// Phases returns the gate phases in evaluation order.
func Phases() []Phase {
	return []Phase{PhaseEntry, PhaseContent, PhaseBehavior, PhaseExecution}
}

// ModeDecision is the routing outcome for one request. Created once,
// never mutated after creation.
type ModeDecision struct {
	Mode                 ExecutionMode `json:"mode"`
	Confidence           float64       `json:"confidence"`
	SensitivityScore     float64       `json:"sensitivity_score"`
	RequiresConfirmation bool          `json:"requires_confirmation"`
	Reason               string        `json:"reason"`
	SuggestedActions     []string      `json:"suggested_actions,omitempty"`
}
