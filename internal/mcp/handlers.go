package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gk0729/LobsterShell/internal/model"
	"github.com/gk0729/LobsterShell/internal/orchestrator"
	"github.com/gk0729/LobsterShell/internal/sensitivity"
)

// --- Input/Output types ---

// GovernInput defines parameters for the lobster_govern tool.
type GovernInput struct {
	UserID        string            `json:"user_id" jsonschema:"caller identity"`
	SessionID     string            `json:"session_id,omitempty" jsonschema:"session grouping for the audit trail"`
	AuthToken     string            `json:"auth_token" jsonschema:"caller credential"`
	Content       string            `json:"content" jsonschema:"the request content to govern"`
	RequestID     string            `json:"request_id,omitempty" jsonschema:"set together with confirmed to resume a paused request"`
	Confirmed     bool              `json:"confirmed,omitempty" jsonschema:"resume a previously paused request"`
	Sensitive     bool              `json:"sensitive,omitempty" jsonschema:"caller marks the content sensitive"`
	Permissions   []string          `json:"permissions,omitempty" jsonschema:"granted permissions, e.g. network:external"`
	ContextValues map[string]string `json:"context_values,omitempty" jsonschema:"values for placeholder resolution"`
}

// GovernOutput reports the pipeline outcome.
type GovernOutput struct {
	RequestID       string   `json:"request_id"`
	Status          string   `json:"status"`
	Mode            string   `json:"mode"`
	Score           float64  `json:"score"`
	Output          string   `json:"output,omitempty"`
	ConfirmationKey string   `json:"confirmation_key,omitempty"`
	Reason          string   `json:"reason,omitempty"`
	Error           string   `json:"error,omitempty"`
	Tags            []string `json:"tags,omitempty"`
}

// CheckInput defines parameters for the lobster_check tool.
type CheckInput struct {
	Content   string `json:"content" jsonschema:"content to score"`
	Sensitive bool   `json:"sensitive,omitempty" jsonschema:"caller marks the content sensitive"`
}

// CheckOutput reports the dry-run routing decision.
type CheckOutput struct {
	Mode                 string   `json:"mode"`
	Score                float64  `json:"score"`
	Confidence           float64  `json:"confidence"`
	RequiresConfirmation bool     `json:"requires_confirmation"`
	Reason               string   `json:"reason"`
	SuggestedActions     []string `json:"suggested_actions,omitempty"`
}

// ConfirmInput defines parameters for the lobster_confirm tool.
type ConfirmInput struct {
	Key  string `json:"key" jsonschema:"confirmation key from a paused request"`
	Deny bool   `json:"deny,omitempty" jsonschema:"deny instead of confirm"`
}

// ConfirmOutput reports the ticket's new state.
type ConfirmOutput struct {
	Key    string `json:"key"`
	Status string `json:"status"`
}

// PendingInput is empty.
type PendingInput struct{}

// PendingOutput lists paused requests.
type PendingOutput struct {
	Pending []PendingItem `json:"pending"`
}

// PendingItem describes one paused request.
type PendingItem struct {
	Key       string  `json:"key"`
	UserID    string  `json:"user_id"`
	Mode      string  `json:"mode"`
	Score     float64 `json:"score"`
	Reason    string  `json:"reason"`
	CreatedAt string  `json:"created_at"`
}

// AuditVerifyInput is empty.
type AuditVerifyInput struct{}

// AuditVerifyOutput reports the chain status and ledger statistics.
type AuditVerifyOutput struct {
	Valid        bool   `json:"valid"`
	TotalEntries int    `json:"total_entries"`
	BrokenAt     int    `json:"broken_at,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Failures     int    `json:"failures"`
	Sessions     int    `json:"sessions"`
}

// --- Handlers ---

func (s *Server) handleGovern(ctx context.Context, req *mcpsdk.CallToolRequest, input GovernInput) (*mcpsdk.CallToolResult, GovernOutput, error) {
	p := s.current()

	r := &orchestrator.Request{
		UserID:        input.UserID,
		SessionID:     input.SessionID,
		AuthToken:     input.AuthToken,
		Content:       input.Content,
		RequestID:     input.RequestID,
		Confirmed:     input.Confirmed,
		ContextValues: input.ContextValues,
		Signals:       sensitivity.Signals{UserMarkedSensitive: input.Sensitive},
	}
	r.GrantedPermissions = parsePermissions(input.Permissions)

	out := p.Process(ctx, r)
	res := GovernOutput{
		RequestID:       out.RequestID,
		Status:          string(out.Status),
		Mode:            string(out.Decision.Mode),
		Score:           out.Decision.SensitivityScore,
		Output:          out.Output,
		ConfirmationKey: out.ConfirmationKey,
		Reason:          out.Decision.Reason,
		Error:           out.Error,
		Tags:            out.Tags,
	}
	if out.Status == orchestrator.StatusDenied || out.Status == orchestrator.StatusFailed {
		return &mcpsdk.CallToolResult{IsError: true}, res, nil
	}
	return nil, res, nil
}

func (s *Server) handleCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	p := s.current()

	d := p.Engine.Decide(input.Content, "", sensitivity.Signals{
		UserMarkedSensitive: input.Sensitive,
	}, nil)
	return nil, CheckOutput{
		Mode:                 string(d.Mode),
		Score:                d.SensitivityScore,
		Confidence:           d.Confidence,
		RequiresConfirmation: d.RequiresConfirmation,
		Reason:               d.Reason,
		SuggestedActions:     d.SuggestedActions,
	}, nil
}

func (s *Server) handleConfirm(ctx context.Context, req *mcpsdk.CallToolRequest, input ConfirmInput) (*mcpsdk.CallToolResult, ConfirmOutput, error) {
	p := s.current()

	var err error
	if input.Deny {
		err = p.Tickets.Deny(input.Key)
	} else {
		err = p.Tickets.Confirm(input.Key)
	}
	if err != nil {
		return nil, ConfirmOutput{}, err
	}

	st, err := p.Tickets.Check(input.Key)
	if err != nil {
		return nil, ConfirmOutput{}, err
	}
	return nil, ConfirmOutput{Key: input.Key, Status: string(st)}, nil
}

func (s *Server) handlePending(ctx context.Context, req *mcpsdk.CallToolRequest, input PendingInput) (*mcpsdk.CallToolResult, PendingOutput, error) {
	p := s.current()

	tickets, err := p.Tickets.Pending()
	if err != nil {
		return nil, PendingOutput{}, fmt.Errorf("mcp: list pending: %w", err)
	}

	out := PendingOutput{}
	for _, t := range tickets {
		out.Pending = append(out.Pending, PendingItem{
			Key:       t.Key,
			UserID:    t.UserID,
			Mode:      string(t.Mode),
			Score:     t.SensitivityScore,
			Reason:    t.Reason,
			CreatedAt: t.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}
	return nil, out, nil
}

func (s *Server) handleAuditVerify(ctx context.Context, req *mcpsdk.CallToolRequest, input AuditVerifyInput) (*mcpsdk.CallToolResult, AuditVerifyOutput, error) {
	p := s.current()

	st := p.Chain.Verify()
	stats := p.Chain.Stats()
	out := AuditVerifyOutput{
		Valid:        st.Valid,
		TotalEntries: st.TotalEntries,
		BrokenAt:     st.BrokenAt,
		Reason:       st.Reason,
		Failures:     stats.Failures,
		Sessions:     stats.Sessions,
	}
	if !st.Valid {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func parsePermissions(raw []string) []model.Permission {
	var out []model.Permission
	for _, s := range raw {
		if p, ok := model.ParsePermission(s); ok {
			out = append(out, p)
		}
	}
	return out
}
