package models

import (
	"time"

	"github.com/google/uuid"
)

// Well-known movement reasons. Reason is free text; these are the ones the
// system itself writes.
const (
	ReasonInitialSignup = "Initial signup"
	ReasonAIRequest     = "AI request"
)

// CreditMovement is one immutable entry in the per-account audit trail.
// Positive change = grant, negative = spend. Replaying all movements for an
// account in timestamp order reproduces its current balance.
type CreditMovement struct {
	ID           uuid.UUID `json:"id"`
	UserID       string    `json:"user_id"`
	Change       int       `json:"change"`
	Reason       string    `json:"reason"`
	BalanceAfter int       `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}
