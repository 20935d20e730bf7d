package models

import (
	"time"
)

// InitialCreditsDefault is the signup grant applied when an account is
// provisioned on first contact.
const InitialCreditsDefault = 10

type Account struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Credits   int       `json:"credits"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
