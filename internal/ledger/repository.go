package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fluxgate/backend/internal/models"
)

// Repository is the Postgres-backed ledger store.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

func (r *Repository) InsertAccount(ctx context.Context, userID, email string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (user_id, email, credits)
		VALUES ($1, $2, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, email)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ApplyMovement performs the read-modify-write as one conditional UPDATE and
// appends the audit entry in the same transaction, so no concurrent caller
// can observe the balance change without its movement (or vice versa).
func (r *Repository) ApplyMovement(ctx context.Context, userID string, change int, reason string) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var balanceAfter int
	err = tx.QueryRow(ctx, `
		UPDATE accounts SET credits = credits + $2, updated_at = now()
		WHERE user_id = $1
		RETURNING credits
	`, userID, change).Scan(&balanceAfter)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO credit_movements (id, user_id, change, reason, balance_after)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), userID, change, reason, balanceAfter)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return balanceAfter, nil
}

func (r *Repository) Balance(ctx context.Context, userID string) (int, error) {
	var credits int
	err := r.pool.QueryRow(ctx, `
		SELECT credits FROM accounts WHERE user_id = $1
	`, userID).Scan(&credits)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, err
	}
	return credits, nil
}

func (r *Repository) MovementsByUser(ctx context.Context, userID string) ([]*models.CreditMovement, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, change, reason, balance_after, created_at
		FROM credit_movements WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.CreditMovement
	for rows.Next() {
		var m models.CreditMovement
		if err := rows.Scan(&m.ID, &m.UserID, &m.Change, &m.Reason, &m.BalanceAfter, &m.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &m)
	}
	return list, rows.Err()
}
