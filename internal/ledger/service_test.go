package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fluxgate/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory Store mock. A single mutex around adjust+append mirrors the
// atomicity the Postgres repository gets from its transaction.
// ---------------------------------------------------------------------------

type memStore struct {
	mu        sync.Mutex
	balances  map[string]int
	emails    map[string]string
	movements []*models.CreditMovement
}

func newMemStore() *memStore {
	return &memStore{balances: make(map[string]int), emails: make(map[string]string)}
}

func (m *memStore) InsertAccount(_ context.Context, userID, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[userID]; ok {
		return false, nil
	}
	m.balances[userID] = 0
	m.emails[userID] = email
	return true, nil
}

func (m *memStore) ApplyMovement(_ context.Context, userID string, change int, reason string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.balances[userID]
	if !ok {
		return 0, ErrAccountNotFound
	}
	bal += change
	m.balances[userID] = bal
	m.movements = append(m.movements, &models.CreditMovement{
		ID: uuid.New(), UserID: userID, Change: change, Reason: reason,
		BalanceAfter: bal, CreatedAt: time.Now(),
	})
	return bal, nil
}

func (m *memStore) Balance(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.balances[userID]
	if !ok {
		return 0, ErrAccountNotFound
	}
	return bal, nil
}

func (m *memStore) MovementsByUser(_ context.Context, userID string) ([]*models.CreditMovement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.CreditMovement
	for _, mv := range m.movements {
		if mv.UserID == userID {
			cp := *mv
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestEnsureAccountFirstObservation(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, 10)
	ctx := context.Background()

	bal, created, err := svc.EnsureAccount(ctx, "u1", "u1@example.com")
	if err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
	if !created {
		t.Error("expected created=true on first observation")
	}
	if bal != 10 {
		t.Errorf("balance after signup: got %d, want 10", bal)
	}

	movs, _ := store.MovementsByUser(ctx, "u1")
	if len(movs) != 1 {
		t.Fatalf("movements: got %d, want 1", len(movs))
	}
	if movs[0].Change != 10 || movs[0].Reason != models.ReasonInitialSignup {
		t.Errorf("grant movement: got {%d, %q}", movs[0].Change, movs[0].Reason)
	}
	if movs[0].BalanceAfter != 10 {
		t.Errorf("balance_after on grant: got %d, want 10", movs[0].BalanceAfter)
	}
}

func TestEnsureAccountIsIdempotent(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, 10)
	ctx := context.Background()

	if _, _, err := svc.EnsureAccount(ctx, "u1", "u1@example.com"); err != nil {
		t.Fatalf("first EnsureAccount: %v", err)
	}
	if _, err := svc.ApplyMovement(ctx, "u1", -3, "spend"); err != nil {
		t.Fatalf("ApplyMovement: %v", err)
	}

	bal, created, err := svc.EnsureAccount(ctx, "u1", "u1@example.com")
	if err != nil {
		t.Fatalf("second EnsureAccount: %v", err)
	}
	if created {
		t.Error("expected created=false for existing account")
	}
	if bal != 7 {
		t.Errorf("balance must not be overwritten: got %d, want 7", bal)
	}

	movs, _ := store.MovementsByUser(ctx, "u1")
	grants := 0
	for _, mv := range movs {
		if mv.Reason == models.ReasonInitialSignup {
			grants++
		}
	}
	if grants != 1 {
		t.Errorf("signup grants: got %d, want 1", grants)
	}
}

func TestEnsureAccountConcurrentProvisioning(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, 10)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := svc.EnsureAccount(ctx, "u1", "u1@example.com"); err != nil {
				t.Errorf("EnsureAccount: %v", err)
			}
		}()
	}
	wg.Wait()

	movs, _ := store.MovementsByUser(ctx, "u1")
	if len(movs) != 1 {
		t.Errorf("movements after %d concurrent ensures: got %d, want 1", n, len(movs))
	}
	if bal, _ := svc.Balance(ctx, "u1"); bal != 10 {
		t.Errorf("balance: got %d, want 10", bal)
	}
}

func TestApplyMovementNoLostUpdates(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, 100)
	ctx := context.Background()

	if _, _, err := svc.EnsureAccount(ctx, "u1", "u1@example.com"); err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}

	// 40 debits of -1 and 20 grants of +2 racing: net 100 - 40 + 40 = 100.
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.ApplyMovement(ctx, "u1", -1, models.ReasonAIRequest); err != nil {
				t.Errorf("debit: %v", err)
			}
		}()
	}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.ApplyMovement(ctx, "u1", 2, "grant"); err != nil {
				t.Errorf("grant: %v", err)
			}
		}()
	}
	wg.Wait()

	bal, err := svc.Balance(ctx, "u1")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if bal != 100 {
		t.Errorf("final balance: got %d, want 100", bal)
	}
}

func TestMovementReplayReproducesBalance(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, 10)
	ctx := context.Background()

	if _, _, err := svc.EnsureAccount(ctx, "u1", "u1@example.com"); err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
	deltas := []int{-1, 5, -1, -1, 3, -1}
	for _, d := range deltas {
		if _, err := svc.ApplyMovement(ctx, "u1", d, "test"); err != nil {
			t.Fatalf("ApplyMovement(%d): %v", d, err)
		}
	}

	movs, err := svc.Movements(ctx, "u1")
	if err != nil {
		t.Fatalf("Movements: %v", err)
	}
	sort.Slice(movs, func(i, j int) bool { return movs[i].CreatedAt.Before(movs[j].CreatedAt) })

	sum := 0
	for _, mv := range movs {
		sum += mv.Change
	}
	bal, _ := svc.Balance(ctx, "u1")
	if sum != bal {
		t.Errorf("replayed sum %d != balance %d", sum, bal)
	}
}

func TestApplyMovementUnknownAccount(t *testing.T) {
	svc := NewService(newMemStore(), 10)
	if _, err := svc.ApplyMovement(context.Background(), "ghost", -1, models.ReasonAIRequest); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestGrantRejectsNonPositiveAmount(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, 10)
	ctx := context.Background()

	if _, _, err := svc.EnsureAccount(ctx, "u1", "u1@example.com"); err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
	for _, amount := range []int{0, -5} {
		if _, err := svc.Grant(ctx, "u1", amount); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("Grant(%d): expected ErrInvalidAmount, got %v", amount, err)
		}
	}
	if bal, _ := svc.Balance(ctx, "u1"); bal != 10 {
		t.Errorf("balance changed by rejected grant: got %d, want 10", bal)
	}

	bal, err := svc.Grant(ctx, "u1", 5)
	if err != nil {
		t.Fatalf("Grant(5): %v", err)
	}
	if bal != 15 {
		t.Errorf("balance after grant: got %d, want 15", bal)
	}
	movs, _ := store.MovementsByUser(ctx, "u1")
	last := movs[len(movs)-1]
	if last.Reason != "Manual add +5" || last.Change != 5 {
		t.Errorf("grant movement: got {%d, %q}", last.Change, last.Reason)
	}
}
