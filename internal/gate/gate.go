// Package gate runs the multi-phase security check pipeline. Checks are
// grouped into ordered phases; a critical failure in one phase stops
// the pipeline before later phases run.
package gate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gk0729/LobsterShell/internal/model"
)

// DeniedError reports a request stopped by the gate.
type DeniedError struct {
	CheckID string
	Phase   model.Phase
	Message string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("gate: denied by %s in phase %s: %s", e.CheckID, e.Phase, e.Message)
}

// Denied converts a failing report into a DeniedError for the first
// critical failure. Lesser failures are recorded in the report but do
// not stop the request.
func Denied(rep *Report) error {
	for _, f := range rep.Failures() {
		if f.Severity == model.SeverityCritical {
			return &DeniedError{CheckID: f.CheckID, Phase: f.Phase, Message: f.Message}
		}
	}
	return nil
}

// Config controls gate behavior.
type Config struct {
	// FailFast stops the pipeline after the first phase containing a
	// critical failure. Default true.
	FailFast bool `yaml:"fail_fast"`
	// Disabled lists check IDs that are registered but skipped.
	Disabled []string `yaml:"disabled"`
}

// DefaultConfig returns the default gate configuration.
func DefaultConfig() *Config {
	return &Config{FailFast: true}
}

// PhaseReport summarizes one phase of a gate run.
type PhaseReport struct {
	Phase   model.Phase `json:"phase"`
	Results []Result    `json:"results"`
	Passed  bool        `json:"passed"`
}

// Report is the full outcome of a gate run.
type Report struct {
	Passed    bool          `json:"passed"`
	Risk      string        `json:"risk"`
	Phases    []PhaseReport `json:"phases"`
	Stopped   bool          `json:"stopped"`
	StoppedAt model.Phase   `json:"stopped_at,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Failures returns every failing result across all phases, in run order.
func (r *Report) Failures() []Result {
	var out []Result
	for _, p := range r.Phases {
		for _, res := range p.Results {
			if !res.Passed {
				out = append(out, res)
			}
		}
	}
	return out
}

// Gate holds registered checks grouped by phase.
type Gate struct {
	cfg      *Config
	byPhase  map[model.Phase][]Check
	disabled map[string]bool
}

// New creates a Gate with the baseline check set. Nil config uses
// defaults.
func New(cfg *Config) *Gate {
	g := NewEmpty(cfg)
	for _, c := range DefaultChecks() {
		g.Register(c)
	}
	return g
}

// NewEmpty creates a Gate with no checks registered.
func NewEmpty(cfg *Config) *Gate {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	disabled := make(map[string]bool, len(cfg.Disabled))
	for _, id := range cfg.Disabled {
		disabled[id] = true
	}
	return &Gate{
		cfg:      cfg,
		byPhase:  make(map[model.Phase][]Check),
		disabled: disabled,
	}
}

// Register adds a check to its phase. Registration order is preserved
// within each phase.
func (g *Gate) Register(c Check) {
	g.byPhase[c.Phase()] = append(g.byPhase[c.Phase()], c)
}

// RunPhase executes every enabled check in one phase. Within a phase a
// critical or high failure skips the remaining checks of that phase.
// A panicking check converts to a critical failure rather than taking
// the process down.
func (g *Gate) RunPhase(phase model.Phase, ctx *Context) PhaseReport {
	rep := PhaseReport{Phase: phase, Passed: true}
	for _, c := range g.byPhase[phase] {
		if g.disabled[c.ID()] {
			continue
		}
		res := g.runOne(c, ctx)
		rep.Results = append(rep.Results, res)
		if !res.Passed {
			rep.Passed = false
			if res.Severity == model.SeverityCritical || res.Severity == model.SeverityHigh {
				break
			}
		}
	}
	return rep
}

func (g *Gate) runOne(c Check, ctx *Context) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{
				CheckID:  c.ID(),
				Passed:   false,
				Message:  fmt.Sprintf("check panicked: %v", r),
				Severity: model.SeverityCritical,
				Phase:    c.Phase(),
			}
		}
	}()
	return c.Run(ctx)
}

// Run executes all phases in order and returns the aggregate report.
// With FailFast set, a phase containing a critical failure stops the
// pipeline before the next phase.
func (g *Gate) Run(ctx *Context) *Report {
	start := time.Now()
	rep := &Report{Passed: true}

	for _, phase := range model.Phases() {
		pr := g.RunPhase(phase, ctx)
		rep.Phases = append(rep.Phases, pr)
		if !pr.Passed {
			rep.Passed = false
			if g.cfg.FailFast && phaseHasCritical(pr) {
				rep.Stopped = true
				rep.StoppedAt = phase
				break
			}
		}
	}

	rep.Risk = aggregateRisk(rep)
	rep.Duration = time.Since(start)
	return rep
}

func phaseHasCritical(pr PhaseReport) bool {
	for _, r := range pr.Results {
		if !r.Passed && r.Severity == model.SeverityCritical {
			return true
		}
	}
	return false
}

// aggregateRisk folds failing results into one risk level: critical or
// high when a check of that severity failed, medium when anything at
// all failed, low when the run is clean. Any failure is at least a
// medium concern regardless of the check's own severity.
func aggregateRisk(rep *Report) string {
	worst := -1
	for _, p := range rep.Phases {
		for _, r := range p.Results {
			if r.Passed {
				continue
			}
			if rank := model.SeverityRank[r.Severity]; rank > worst {
				worst = rank
			}
		}
	}
	switch {
	case worst < 0:
		return string(model.SeverityLow)
	case worst >= model.SeverityRank[model.SeverityCritical]:
		return string(model.SeverityCritical)
	case worst >= model.SeverityRank[model.SeverityHigh]:
		return string(model.SeverityHigh)
	default:
		return string(model.SeverityMedium)
	}
}

// CheckIDs returns the IDs of all registered checks, sorted.
func (g *Gate) CheckIDs() []string {
	var ids []string
	for _, checks := range g.byPhase {
		for _, c := range checks {
			ids = append(ids, c.ID())
		}
	}
	sort.Strings(ids)
	return ids
}

// FormatReport renders a report as a human-readable timeline, one line
// per check.
func FormatReport(rep *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "security gate: passed=%v risk=%s\n", rep.Passed, rep.Risk)
	for _, p := range rep.Phases {
		status := "ok"
		if !p.Passed {
			status = "FAILED"
		}
		fmt.Fprintf(&b, "[%s] %s\n", strings.ToUpper(string(p.Phase)), status)
		for _, r := range p.Results {
			mark := "pass"
			if !r.Passed {
				mark = "FAIL"
			}
			fmt.Fprintf(&b, "  %-8s %-8s %s\n", r.CheckID, mark, r.Message)
			if !r.Passed && r.Remediation != "" {
				fmt.Fprintf(&b, "           remediation: %s\n", r.Remediation)
			}
		}
	}
	if rep.Stopped {
		fmt.Fprintf(&b, "pipeline stopped after phase %s\n", rep.StoppedAt)
	}
	return b.String()
}
