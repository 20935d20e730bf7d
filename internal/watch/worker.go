// Package watch settles tasks in the background. A poll_task job rides the
// job queue until its task reaches a terminal state, so debit-on-completion
// happens even when the client stops polling. Settlement goes through the
// same orchestrator Poll as client polling, so the exactly-once debit guard
// is identical.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/fluxgate/backend/internal/broker"
	"github.com/fluxgate/backend/internal/models"
)

const snoozeInterval = 5 * time.Second

type PollTaskArgs struct {
	TaskID string `json:"task_id"`
}

func (PollTaskArgs) Kind() string { return "poll_task" }

func (PollTaskArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 10}
}

// Broker is the slice of the orchestrator the worker needs.
type Broker interface {
	Poll(ctx context.Context, taskID string) (*models.StatusResponse, error)
}

type PollTaskWorker struct {
	river.WorkerDefaults[PollTaskArgs]
	broker Broker
	logger *slog.Logger
}

func NewPollTaskWorker(b Broker, logger *slog.Logger) *PollTaskWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &PollTaskWorker{broker: b, logger: logger}
}

func (w *PollTaskWorker) Work(ctx context.Context, job *river.Job[PollTaskArgs]) error {
	resp, err := w.broker.Poll(ctx, job.Args.TaskID)
	if err != nil {
		if errors.Is(err, broker.ErrTaskNotFound) {
			// With the in-memory registry the task died with the process;
			// there is nothing left to settle.
			w.logger.Warn("watched task no longer exists", "task_id", job.Args.TaskID)
			return nil
		}
		// Retryable and fatal errors alike go back to the queue; MaxAttempts
		// bounds how long a broken task is chased.
		return err
	}

	if resp.Status == models.TaskStatePending {
		return river.JobSnooze(snoozeInterval)
	}

	w.logger.Info("task settled in background", "task_id", job.Args.TaskID, "status", resp.Status)
	return nil
}
