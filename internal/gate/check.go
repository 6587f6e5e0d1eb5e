package gate

import (
	"github.com/gk0729/LobsterShell/internal/model"
)

// Context is the typed view of one request that checks evaluate. Checks
// read the fields they care about and may flag findings for later
// stages through Tags; everything else is read-only.
type Context struct {
	UserID    string
	AuthToken string
	Content   string

	ToolName      string
	ToolCode      string
	ToolWhitelist []string

	SQL string

	RequiredPermissions []model.Permission
	GrantedPermissions  []model.Permission

	// Tags is the append-only side channel for downstream stages.
	Tags *model.TagSet
}

// Result is the outcome of one check.
type Result struct {
	CheckID     string            `json:"check_id"`
	Passed      bool              `json:"passed"`
	Message     string            `json:"message"`
	Severity    model.Severity    `json:"severity"`
	Phase       model.Phase       `json:"phase"`
	Details     map[string]string `json:"details,omitempty"`
	Remediation string            `json:"remediation,omitempty"`
}

// Check is a single security predicate, pinned to a phase and severity.
type Check interface {
	ID() string
	Phase() model.Phase
	Severity() model.Severity
	Run(ctx *Context) Result
}

// base carries the identity shared by all built-in checks.
type base struct {
	id       string
	phase    model.Phase
	severity model.Severity
}

func (b base) ID() string               { return b.id }
func (b base) Phase() model.Phase       { return b.phase }
func (b base) Severity() model.Severity { return b.severity }

func (b base) pass(msg string) Result {
	return Result{CheckID: b.id, Passed: true, Message: msg, Severity: b.severity, Phase: b.phase}
}

func (b base) fail(msg, remediation string, details map[string]string) Result {
	return Result{
		CheckID:     b.id,
		Passed:      false,
		Message:     msg,
		Severity:    b.severity,
		Phase:       b.phase,
		Details:     details,
		Remediation: remediation,
	}
}
