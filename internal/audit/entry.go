// Package audit is the tamper-evident ledger of pipeline decisions.
// Entries are hash-linked: each entry's hash covers a canonical payload
// that includes the previous entry's hash, so any modification breaks
// every later link.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// GenesisHash is the previous_hash of the first entry in a chain.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// TimestampFormat is the canonical wall-clock encoding used in hashes
// and exports.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Level classifies how urgent an event is.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)

// EventType names what kind of pipeline event an entry records.
type EventType string

const (
	EventModeDecision     EventType = "mode_decision"
	EventSecurityCheck    EventType = "security_check"
	EventDataOverwrite    EventType = "data_overwrite"
	EventExecutionStart   EventType = "execution_start"
	EventExecutionEnd     EventType = "execution_end"
	EventUserConfirmation EventType = "user_confirmation"
	EventPolicyViolation  EventType = "policy_violation"
	EventToolLoaded       EventType = "tool_loaded"
	EventToolCall         EventType = "tool_call"
)

// Entry is one immutable record in the ledger.
type Entry struct {
	ID           string            `json:"id"`
	Timestamp    string            `json:"timestamp"`
	EventType    EventType         `json:"event_type"`
	Level        Level             `json:"level"`
	Action       string            `json:"action"`
	Description  string            `json:"description"`
	UserID       string            `json:"user_id,omitempty"`
	SessionID    string            `json:"session_id,omitempty"`
	RequestID    string            `json:"request_id,omitempty"`
	Success      bool              `json:"success"`
	Details      map[string]string `json:"details,omitempty"`
	PreviousHash string            `json:"previous_hash"`
	Hash         string            `json:"hash"`
}

// hashPayload is the canonical subset of Entry covered by the hash.
// It is a struct (never a map) so json.Marshal field order is fixed.
type hashPayload struct {
	ID           string    `json:"id"`
	Timestamp    string    `json:"timestamp"`
	EventType    EventType `json:"event_type"`
	Action       string    `json:"action"`
	SessionID    string    `json:"session_id"`
	RequestID    string    `json:"request_id"`
	PreviousHash string    `json:"previous_hash"`
}

// ComputeHash returns "sha256:<hex>" over the entry's canonical payload.
func ComputeHash(e *Entry) string {
	payload, _ := json.Marshal(hashPayload{
		ID:           e.ID,
		Timestamp:    e.Timestamp,
		EventType:    e.EventType,
		Action:       e.Action,
		SessionID:    e.SessionID,
		RequestID:    e.RequestID,
		PreviousHash: e.PreviousHash,
	})
	h := sha256.Sum256(payload)
	return "sha256:" + hex.EncodeToString(h[:])
}

// Now returns the current UTC time in the canonical format.
func Now() string {
	return time.Now().UTC().Format(TimestampFormat)
}
