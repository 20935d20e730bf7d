package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/fluxgate/backend/internal/models"
)

// ErrAccountNotFound is returned when a movement targets an account that was
// never provisioned. Accounts must be ensured before any movement; hitting
// this is a caller bug, and the ledger never auto-provisions here.
var ErrAccountNotFound = errors.New("account not found")

// ErrInvalidAmount is returned by Grant for non-positive amounts.
var ErrInvalidAmount = errors.New("amount must be positive")

// Store is the persistence contract the ledger service needs. ApplyMovement
// must be atomic end to end: the balance adjustment and the movement append
// happen in one indivisible step, and concurrent callers never observe a
// half-applied movement.
type Store interface {
	// InsertAccount creates the account with a zero balance if absent.
	// Returns false without modifying anything when it already exists.
	InsertAccount(ctx context.Context, userID, email string) (created bool, err error)
	// ApplyMovement atomically adds change to the balance, appends the audit
	// entry with the resulting balance, and returns that balance. Returns
	// ErrAccountNotFound if the account does not exist.
	ApplyMovement(ctx context.Context, userID string, change int, reason string) (balanceAfter int, err error)
	Balance(ctx context.Context, userID string) (int, error)
	MovementsByUser(ctx context.Context, userID string) ([]*models.CreditMovement, error)
}

// Service owns per-user credit balances and their append-only movement log.
type Service struct {
	store          Store
	initialCredits int
}

func NewService(store Store, initialCredits int) *Service {
	return &Service{store: store, initialCredits: initialCredits}
}

// EnsureAccount lazily provisions the account on first observation. The
// conditional insert decides a single winner under concurrent calls; only the
// winner applies the initial grant, so exactly one account row and exactly
// one signup movement exist no matter how the race resolves.
func (s *Service) EnsureAccount(ctx context.Context, userID, email string) (balance int, created bool, err error) {
	created, err = s.store.InsertAccount(ctx, userID, email)
	if err != nil {
		return 0, false, fmt.Errorf("insert account: %w", err)
	}
	if created {
		balance, err = s.store.ApplyMovement(ctx, userID, s.initialCredits, models.ReasonInitialSignup)
		if err != nil {
			return 0, true, fmt.Errorf("initial grant: %w", err)
		}
		return balance, true, nil
	}
	balance, err = s.store.Balance(ctx, userID)
	if err != nil {
		return 0, false, err
	}
	return balance, false, nil
}

// ApplyMovement records one atomic balance change and returns the balance
// captured in the same step.
func (s *Service) ApplyMovement(ctx context.Context, userID string, change int, reason string) (int, error) {
	return s.store.ApplyMovement(ctx, userID, change, reason)
}

// Grant is the administrative credit top-up. Amount must be positive.
func (s *Service) Grant(ctx context.Context, userID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	return s.store.ApplyMovement(ctx, userID, amount, fmt.Sprintf("Manual add +%d", amount))
}

// Balance returns the current credit balance.
func (s *Service) Balance(ctx context.Context, userID string) (int, error) {
	return s.store.Balance(ctx, userID)
}

// Movements returns the account's audit trail, newest first.
func (s *Service) Movements(ctx context.Context, userID string) ([]*models.CreditMovement, error) {
	return s.store.MovementsByUser(ctx, userID)
}
