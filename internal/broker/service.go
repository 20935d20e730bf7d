// Package broker coordinates task submission against the provider, status
// polling, and the exactly-once credit debit on completion.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/fluxgate/backend/internal/models"
	"github.com/fluxgate/backend/internal/provider"
	"github.com/fluxgate/backend/internal/registry"
)

// ErrTaskNotFound mirrors the registry sentinel for callers that only import
// the broker.
var ErrTaskNotFound = registry.ErrTaskNotFound

// placeholderSample stands in for a generated image in replay mode.
const placeholderSample = "https://static.fluxgate.dev/replay-sample.png"

// ProviderClient is the provider transport the orchestrator needs.
type ProviderClient interface {
	Submit(ctx context.Context, model string, payload map[string]any) (string, error)
	Poll(ctx context.Context, pollingURL string) (*provider.JobStatus, error)
}

// Ledger is the credit subsystem the orchestrator needs. ApplyMovement must
// be atomic; see the ledger package.
type Ledger interface {
	ApplyMovement(ctx context.Context, userID string, change int, reason string) (int, error)
	Balance(ctx context.Context, userID string) (int, error)
}

// EnqueueWatchFunc schedules background settlement polling for a task.
// Optional; typically a closure over river.Client.Insert.
type EnqueueWatchFunc func(ctx context.Context, taskID string) error

type Service struct {
	store           registry.Store
	ledger          Ledger
	provider        ProviderClient
	replay          bool
	safetyTolerance int
	enqueueWatch    EnqueueWatchFunc
	logger          *slog.Logger
}

// NewService builds the orchestrator. replay skips all provider calls and
// synthesizes born-Ready tasks; safetyTolerance is forwarded to the provider
// on every submission (0 = strictest moderation).
func NewService(store registry.Store, ledger Ledger, pc ProviderClient, replay bool, safetyTolerance int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:           store,
		ledger:          ledger,
		provider:        pc,
		replay:          replay,
		safetyTolerance: safetyTolerance,
		logger:          logger,
	}
}

// SetEnqueueWatch wires the background settlement hook. Set from main after
// the job client exists (the worker needs the service, the service needs the
// client).
func (s *Service) SetEnqueueWatch(fn EnqueueWatchFunc) { s.enqueueWatch = fn }

// Submit validates the request, forwards it to the provider and registers
// the task. The provider call and the registry insert are deliberately not
// one transaction: a crash between them orphans the job provider-side, but
// no credit is ever debited for it since debit only happens on a poll of a
// registered task.
func (s *Service) Submit(ctx context.Context, userID string, req models.GenerateRequest) (string, error) {
	if err := provider.ValidateParameters(req.Model, req.Parameters); err != nil {
		return "", err
	}
	payload := provider.BuildPayload(req, s.safetyTolerance)

	if s.replay {
		taskID := "replay-" + uuid.NewString()
		result, _ := json.Marshal(map[string]string{"sample": placeholderSample})
		task := &models.Task{
			ID:      taskID,
			OwnerID: userID,
			Model:   req.Model,
			State:   models.TaskStateReady,
			Result:  result,
			Output:  placeholderSample,
		}
		if err := s.store.Create(ctx, task); err != nil {
			return "", fmt.Errorf("register replay task: %w", err)
		}
		s.logger.Info("replay task synthesized", "task_id", taskID, "payload", payload)
		return taskID, nil
	}

	pollingURL, err := s.provider.Submit(ctx, req.Model, payload)
	if err != nil {
		return "", err
	}

	taskID := "task-" + uuid.NewString()
	task := &models.Task{
		ID:         taskID,
		OwnerID:    userID,
		Model:      req.Model,
		PollingURL: pollingURL,
		State:      models.TaskStatePending,
	}
	if err := s.store.Create(ctx, task); err != nil {
		return "", fmt.Errorf("register task: %w", err)
	}

	if s.enqueueWatch != nil {
		if err := s.enqueueWatch(ctx, taskID); err != nil {
			s.logger.Error("enqueue settlement watch", "task_id", taskID, "error", err)
		}
	}

	s.logger.Info("task submitted", "task_id", taskID, "user_id", userID, "model", req.Model)
	return taskID, nil
}

// Poll resolves the task's current status. Terminal tasks answer from the
// registry alone; this is the exactly-once debit guard: the debit happens on
// the transition into Ready, decided by the registry CAS, never on a repeat
// poll.
func (s *Service) Poll(ctx context.Context, taskID string) (*models.StatusResponse, error) {
	task, err := s.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if models.IsTerminal(task.State) {
		return s.cachedResponse(ctx, task), nil
	}

	js, err := s.provider.Poll(ctx, task.PollingURL)
	if err != nil {
		// Transport failure is retryable: no state is committed, the task
		// stays Pending and can be polled again.
		return nil, err
	}

	state, reason := provider.Normalize(js.Status, js.Details)
	switch state {
	case models.TaskStateReady:
		return s.settleReady(ctx, task, js)
	case models.TaskStateFailed:
		return s.settleFailed(ctx, task, js, reason)
	default:
		return &models.StatusResponse{
			Status:      models.TaskStatePending,
			CreditsLeft: s.balanceOf(ctx, task.OwnerID),
			Raw:         js.Raw,
		}, nil
	}
}

// settleReady debits exactly one credit iff this caller wins the CAS into
// Ready. Losers re-read and serve the winner's cached record.
func (s *Service) settleReady(ctx context.Context, task *models.Task, js *provider.JobStatus) (*models.StatusResponse, error) {
	output := sampleFrom(js.Result)

	won, err := s.store.MarkReady(ctx, task.ID, js.Result, output)
	if err != nil {
		return nil, fmt.Errorf("transition to ready: %w", err)
	}
	if !won {
		settled, err := s.store.Get(ctx, task.ID)
		if err != nil {
			return nil, err
		}
		return s.cachedResponse(ctx, settled), nil
	}

	balance, err := s.ledger.ApplyMovement(ctx, task.OwnerID, -1, models.ReasonAIRequest)
	if err != nil {
		// A missing account here is an invariant violation (accounts are
		// ensured before any task exists). Surface it, never skip silently.
		return nil, fmt.Errorf("debit on completion for %s: %w", task.ID, err)
	}
	if err := s.store.RecordDebit(ctx, task.ID, balance); err != nil {
		s.logger.Error("record debited balance", "task_id", task.ID, "error", err)
	}

	s.logger.Info("task ready, credit debited", "task_id", task.ID, "user_id", task.OwnerID, "credits_left", balance)
	return &models.StatusResponse{
		Status:      models.TaskStateReady,
		Output:      output,
		CreditsLeft: &balance,
		Raw:         js.Raw,
	}, nil
}

// settleFailed transitions to Failed. Failed generations are free.
func (s *Service) settleFailed(ctx context.Context, task *models.Task, js *provider.JobStatus, reason string) (*models.StatusResponse, error) {
	won, err := s.store.MarkFailed(ctx, task.ID, reason)
	if err != nil {
		return nil, fmt.Errorf("transition to failed: %w", err)
	}
	if !won {
		settled, err := s.store.Get(ctx, task.ID)
		if err != nil {
			return nil, err
		}
		return s.cachedResponse(ctx, settled), nil
	}

	s.logger.Info("task failed", "task_id", task.ID, "detail", reason)
	return &models.StatusResponse{
		Status:      models.TaskStateFailed,
		Detail:      reason,
		CreditsLeft: s.balanceOf(ctx, task.OwnerID),
		Raw:         js.Raw,
	}, nil
}

// cachedResponse serves a terminal task without touching the provider or
// the ledger.
func (s *Service) cachedResponse(ctx context.Context, task *models.Task) *models.StatusResponse {
	resp := &models.StatusResponse{
		Status: task.State,
		Output: task.Output,
		Detail: task.Detail,
		Raw:    task.Result,
	}
	if task.CreditsAfter != nil {
		resp.CreditsLeft = task.CreditsAfter
	} else {
		resp.CreditsLeft = s.balanceOf(ctx, task.OwnerID)
	}
	return resp
}

// balanceOf reads the owner's balance for display; nil when unavailable.
func (s *Service) balanceOf(ctx context.Context, userID string) *int {
	balance, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return nil
	}
	return &balance
}

func sampleFrom(result json.RawMessage) string {
	var parsed struct {
		Sample string `json:"sample"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return ""
	}
	return parsed.Sample
}

// IsRetryable reports whether a Poll error leaves the task pollable again.
func IsRetryable(err error) bool {
	return errors.Is(err, provider.ErrUnreachable)
}
