package registry

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fluxgate/backend/internal/models"
)

// PostgresStore is the durable registry variant. The terminal-transition CAS
// is a conditional UPDATE on state = 'Pending'; RowsAffected decides the
// winner, so the contract is identical to MemoryStore's.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) Create(ctx context.Context, t *models.Task) error {
	return s.pool.QueryRow(ctx, `
		INSERT INTO tasks (id, owner_id, model, polling_url, state, result, output, detail, credits_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, t.ID, t.OwnerID, t.Model, t.PollingURL, t.State, t.Result, t.Output, t.Detail, t.CreditsAfter).Scan(&t.CreatedAt)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Task, error) {
	var t models.Task
	err := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, model, polling_url, state, result, output, detail, credits_after, created_at
		FROM tasks WHERE id = $1
	`, id).Scan(&t.ID, &t.OwnerID, &t.Model, &t.PollingURL, &t.State, &t.Result, &t.Output, &t.Detail, &t.CreditsAfter, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) MarkReady(ctx context.Context, id string, result json.RawMessage, output string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tasks SET state = $2, result = $3, output = $4
		WHERE id = $1 AND state = $5
	`, id, models.TaskStateReady, result, output, models.TaskStatePending)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, s.mustExist(ctx, id)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id string, detail string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tasks SET state = $2, detail = $3
		WHERE id = $1 AND state = $4
	`, id, models.TaskStateFailed, detail, models.TaskStatePending)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, s.mustExist(ctx, id)
}

func (s *PostgresStore) RecordDebit(ctx context.Context, id string, balanceAfter int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tasks SET credits_after = $2 WHERE id = $1
	`, id, balanceAfter)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// mustExist distinguishes "lost the CAS" from "no such task".
func (s *PostgresStore) mustExist(ctx context.Context, id string) error {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM tasks WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTaskNotFound
	}
	return err
}
