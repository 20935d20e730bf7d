// Package registry owns task records and their lifecycle state. The only
// legal transitions are Pending -> Ready and Pending -> Failed, both decided
// by compare-and-set: at most one caller ever wins a terminal transition, no
// matter how many pollers race. Nothing leaves a terminal state.
package registry

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/fluxgate/backend/internal/models"
)

// ErrTaskNotFound is returned for unknown task identifiers.
var ErrTaskNotFound = errors.New("task not found")

// Store is the task registry contract. Implementations must make
// MarkReady/MarkFailed atomic with respect to concurrent calls for the same
// task: exactly one caller observes won=true for a given task, ever.
type Store interface {
	Create(ctx context.Context, t *models.Task) error
	Get(ctx context.Context, id string) (*models.Task, error)
	// MarkReady transitions Pending -> Ready, storing the result payload and
	// extracted output. Returns won=false (and changes nothing) if the task
	// is already terminal.
	MarkReady(ctx context.Context, id string, result json.RawMessage, output string) (won bool, err error)
	// MarkFailed transitions Pending -> Failed with a failure reason.
	MarkFailed(ctx context.Context, id string, detail string) (won bool, err error)
	// RecordDebit stores the balance captured by the debit that accompanied
	// the transition into Ready.
	RecordDebit(ctx context.Context, id string, balanceAfter int) error
}
