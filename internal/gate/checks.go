package gate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gk0729/LobsterShell/internal/model"
)

// --- ENTRY phase ---

type authenticationCheck struct{ base }

func newAuthenticationCheck() *authenticationCheck {
	return &authenticationCheck{base{"SEC-001", model.PhaseEntry, model.SeverityCritical}}
}

func (c *authenticationCheck) Run(ctx *Context) Result {
	if ctx.UserID == "" {
		return c.fail("missing caller identity", "supply a user id with the request", nil)
	}
	if ctx.AuthToken == "" {
		return c.fail("missing credential", "supply an auth token with the request", nil)
	}
	return c.pass(fmt.Sprintf("caller %s authenticated", ctx.UserID))
}

type authorizationCheck struct{ base }

func newAuthorizationCheck() *authorizationCheck {
	return &authorizationCheck{base{"SEC-002", model.PhaseEntry, model.SeverityCritical}}
}

func (c *authorizationCheck) Run(ctx *Context) Result {
	missing := model.MissingPermissions(ctx.RequiredPermissions, ctx.GrantedPermissions)
	if len(missing) > 0 {
		list := strings.Join(model.PermissionStrings(missing), ", ")
		return c.fail(
			fmt.Sprintf("missing permissions: %s", list),
			fmt.Sprintf("request a grant for: %s", list),
			map[string]string{
				"missing": list,
				"granted": strings.Join(model.PermissionStrings(ctx.GrantedPermissions), ", "),
			},
		)
	}
	return c.pass(fmt.Sprintf("authorization ok (%d permissions granted)", len(ctx.GrantedPermissions)))
}

// --- CONTENT phase ---

// injectionPatterns are known instruction-override shapes. Matching any
// of them fails the request.
var injectionPatterns = []struct {
	re   *regexp.Regexp
	desc string
}{
	{regexp.MustCompile(`(?i)ignore\s+previous\s+instructions`), "ignore-previous-instructions"},
	{regexp.MustCompile(`(?i)disregard\s+all\s+above`), "disregard-all-above"},
	{regexp.MustCompile(`(?i)system:\s*you\s+are`), "system-role-override"},
	{regexp.MustCompile(`(?i)\[system\]`), "system-tag-injection"},
	{regexp.MustCompile(`(?i)<<\s*(?:system|admin|root)\s*>>`), "forged-system-marker"},
	{regexp.MustCompile(`(?i)###\s*(?:instruction|system)`), "forged-instruction-separator"},
	{regexp.MustCompile(`(?i)forget\s+(?:everything|all)`), "forget-instruction"},
	{regexp.MustCompile(`(?i)you\s+are\s+now`), "role-switch-attempt"},
}

type promptInjectionCheck struct{ base }

func newPromptInjectionCheck() *promptInjectionCheck {
	return &promptInjectionCheck{base{"SEC-010", model.PhaseContent, model.SeverityHigh}}
}

func (c *promptInjectionCheck) Run(ctx *Context) Result {
	for _, p := range injectionPatterns {
		if p.re.MatchString(ctx.Content) {
			return c.fail(
				fmt.Sprintf("injection pattern detected: %s", p.desc),
				"remove instruction-override content from the request",
				map[string]string{"pattern": p.desc},
			)
		}
	}
	return c.pass("no injection pattern detected")
}

// piiPatterns tag content categories for the overwrite and audit stages.
var piiPatterns = map[string]*regexp.Regexp{
	"email":     regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
	"phone":     regexp.MustCompile(`\b(?:\+?86)?1[3-9]\d{9}\b`),
	"id_number": regexp.MustCompile(`\b\d{17}[\dXx]\b`),
	"card":      regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`),
}

type piiDetectionCheck struct{ base }

func newPIIDetectionCheck() *piiDetectionCheck {
	return &piiDetectionCheck{base{"SEC-020", model.PhaseContent, model.SeverityMedium}}
}

// Run never fails the request: detected categories are tagged into the
// context for downstream handling instead.
func (c *piiDetectionCheck) Run(ctx *Context) Result {
	detected := map[string]string{}
	for kind, re := range piiPatterns {
		if n := len(re.FindAllString(ctx.Content, -1)); n > 0 {
			detected[kind] = fmt.Sprintf("%d", n)
			if ctx.Tags != nil {
				ctx.Tags.Add("pii:" + kind)
			}
		}
	}

	if len(detected) > 0 {
		r := c.pass(fmt.Sprintf("PII detected in %d categories", len(detected)))
		r.Details = detected
		r.Remediation = "tokenize or redact before any external egress"
		return r
	}
	return c.pass("no PII detected")
}

// --- BEHAVIOR phase ---

type toolWhitelistCheck struct{ base }

func newToolWhitelistCheck() *toolWhitelistCheck {
	return &toolWhitelistCheck{base{"SEC-040", model.PhaseBehavior, model.SeverityCritical}}
}

func (c *toolWhitelistCheck) Run(ctx *Context) Result {
	if ctx.ToolName == "" {
		return c.pass("no tool requested")
	}
	if len(ctx.ToolWhitelist) == 0 {
		return c.fail("no tool whitelist configured", "configure the allowed tool list before execution", nil)
	}
	for _, allowed := range ctx.ToolWhitelist {
		if allowed == ctx.ToolName {
			return c.pass(fmt.Sprintf("tool %q is whitelisted", ctx.ToolName))
		}
	}
	return c.fail(
		fmt.Sprintf("tool %q is not whitelisted", ctx.ToolName),
		fmt.Sprintf("allowed tools: %s", strings.Join(ctx.ToolWhitelist, ", ")),
		map[string]string{"tool": ctx.ToolName},
	)
}

var dangerousPatterns = []struct {
	re   *regexp.Regexp
	desc string
}{
	{regexp.MustCompile(`(?i)\beval\s*\(`), "eval call"},
	{regexp.MustCompile(`(?i)\bexec\s*\(`), "exec call"},
	{regexp.MustCompile(`(?i)\bos\.system\s*\(`), "shell escape"},
	{regexp.MustCompile(`(?i)\bsubprocess\.`), "subprocess spawn"},
	{regexp.MustCompile(`(?i)\brm\s+-rf\s+/`), "recursive root delete"},
	{regexp.MustCompile(`(?i)\bdd\s+if=.+of=/dev`), "raw disk write"},
}

type dangerousOperationCheck struct{ base }

func newDangerousOperationCheck() *dangerousOperationCheck {
	return &dangerousOperationCheck{base{"SEC-041", model.PhaseBehavior, model.SeverityCritical}}
}

func (c *dangerousOperationCheck) Run(ctx *Context) Result {
	for _, p := range dangerousPatterns {
		if p.re.MatchString(ctx.ToolCode) {
			return c.fail(
				fmt.Sprintf("dangerous operation detected: %s", p.desc),
				"this operation is blocked by policy",
				map[string]string{"detected": p.desc},
			)
		}
	}
	return c.pass("no dangerous operation detected")
}

// --- EXECUTION phase ---

var sqlInjectionPatterns = []struct {
	re   *regexp.Regexp
	desc string
}{
	{regexp.MustCompile(`--\s*$`), "comment truncation"},
	{regexp.MustCompile(`(?i);\s*(?:DROP|DELETE|UPDATE|INSERT)`), "stacked query"},
	{regexp.MustCompile(`(?i)['"]\s*(?:OR|AND)\s+['"]?\w+['"]?\s*=\s*['"]?\w+`), "tautology"},
	{regexp.MustCompile(`(?i)UNION\s+(?:ALL\s+)?SELECT`), "UNION injection"},
	{regexp.MustCompile(`(?i)EXEC\s*\(`), "stored procedure execution"},
	{regexp.MustCompile(`/\*!?\s*\*/`), "comment bypass"},
}

type sqlInjectionCheck struct{ base }

func newSQLInjectionCheck() *sqlInjectionCheck {
	return &sqlInjectionCheck{base{"SEC-030", model.PhaseExecution, model.SeverityCritical}}
}

func (c *sqlInjectionCheck) Run(ctx *Context) Result {
	if ctx.SQL == "" {
		return c.pass("no SQL in request")
	}
	for _, p := range sqlInjectionPatterns {
		if p.re.MatchString(ctx.SQL) {
			return c.fail(
				fmt.Sprintf("SQL injection risk: %s", p.desc),
				"use parameterized queries",
				map[string]string{"detected": p.desc},
			)
		}
	}
	return c.pass("SQL statement clean")
}

// writeKeywordRe matches any SQL write keyword at any position, any case.
var writeKeywordRe = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|GRANT|REVOKE)\b`)

type sqlReadOnlyCheck struct{ base }

func newSQLReadOnlyCheck() *sqlReadOnlyCheck {
	return &sqlReadOnlyCheck{base{"SEC-031", model.PhaseExecution, model.SeverityCritical}}
}

func (c *sqlReadOnlyCheck) Run(ctx *Context) Result {
	if ctx.SQL == "" {
		return c.pass("no SQL in request")
	}
	if m := writeKeywordRe.FindString(ctx.SQL); m != "" {
		return c.fail(
			fmt.Sprintf("write operation detected: %s", strings.ToUpper(m)),
			"only SELECT queries are allowed",
			map[string]string{"keyword": strings.ToUpper(m)},
		)
	}
	return c.pass("statement is read-only")
}

// DefaultChecks returns the baseline check set in registration order.
func DefaultChecks() []Check {
	return []Check{
		newAuthenticationCheck(),
		newAuthorizationCheck(),
		newPromptInjectionCheck(),
		newPIIDetectionCheck(),
		newToolWhitelistCheck(),
		newDangerousOperationCheck(),
		newSQLInjectionCheck(),
		newSQLReadOnlyCheck(),
	}
}
