package models

import (
	"encoding/json"
	"time"
)

// Canonical task states. The provider's status vocabulary is open-ended;
// everything it reports is normalized onto these three before it touches the
// ledger or the client.
const (
	TaskStatePending = "Pending"
	TaskStateReady   = "Ready"
	TaskStateFailed  = "Failed"
)

// IsTerminal reports whether state permits no further transitions.
func IsTerminal(state string) bool {
	return state == TaskStateReady || state == TaskStateFailed
}

// Task tracks one external generation job from submission to terminal
// outcome. Mutated only through registry.Store operations.
type Task struct {
	ID         string          `json:"id"`
	OwnerID    string          `json:"owner_id"`
	Model      string          `json:"model"`
	PollingURL string          `json:"polling_url,omitempty"` // empty in replay mode
	State      string          `json:"state"`
	Result     json.RawMessage `json:"result,omitempty"`
	Output     string          `json:"output,omitempty"` // sample URL extracted from Result
	Detail     string          `json:"detail,omitempty"` // failure reason
	// CreditsAfter is the balance captured by the debit that accompanied the
	// transition into Ready. Nil until the debit is recorded (and always nil
	// for replay tasks, which are born Ready and never debit).
	CreditsAfter *int      `json:"credits_after,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// GenerateRequest is the client submission body.
type GenerateRequest struct {
	Input      string         `json:"input"`
	Model      string         `json:"model,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// StatusResponse is returned by GET /api/ai/status/{task_id}.
type StatusResponse struct {
	Status      string          `json:"status"`
	Output      string          `json:"output,omitempty"`
	CreditsLeft *int            `json:"credits_left"`
	Detail      string          `json:"detail,omitempty"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}
