package registry

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/fluxgate/backend/internal/models"
)

// MemoryStore keeps tasks for the lifetime of the process. It is the default
// store; tasks do not survive a restart (see PostgresStore for durability).
type MemoryStore struct {
	mu    sync.Mutex
	tasks map[string]*models.Task
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*models.Task)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Create(_ context.Context, t *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) MarkReady(_ context.Context, id string, result json.RawMessage, output string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return false, ErrTaskNotFound
	}
	if t.State != models.TaskStatePending {
		return false, nil
	}
	t.State = models.TaskStateReady
	t.Result = result
	t.Output = output
	return true, nil
}

func (s *MemoryStore) MarkFailed(_ context.Context, id string, detail string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return false, ErrTaskNotFound
	}
	if t.State != models.TaskStatePending {
		return false, nil
	}
	t.State = models.TaskStateFailed
	t.Detail = detail
	return true, nil
}

func (s *MemoryStore) RecordDebit(_ context.Context, id string, balanceAfter int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	t.CreditsAfter = &balanceAfter
	return nil
}
