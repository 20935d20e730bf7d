package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fluxgate/backend/internal/models"
)

// transitionScript performs the terminal CAS server-side: decode the stored
// task, bail out unless it is still Pending, apply the patch, write back.
// Returns 1 when the caller won the transition, 0 when the task was already
// terminal, -1 when the key is missing.
var transitionScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
  return -1
end
local task = cjson.decode(raw)
if task['state'] ~= 'Pending' then
  return 0
end
local patch = cjson.decode(ARGV[1])
for k, v in pairs(patch) do
  task[k] = v
end
redis.call('SET', KEYS[1], cjson.encode(task))
return 1
`)

// RedisStore keeps tasks in Redis, surviving process restarts without a
// relational schema. Terminal transitions run as a Lua script, which Redis
// executes atomically per key.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

var _ Store = (*RedisStore)(nil)

func taskKey(id string) string { return "task:" + id }

func (s *RedisStore) Create(ctx context.Context, t *models.Task) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, taskKey(t.ID), raw, 0).Err()
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.Task, error) {
	raw, err := s.rdb.Get(ctx, taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	var t models.Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", id, err)
	}
	return &t, nil
}

func (s *RedisStore) MarkReady(ctx context.Context, id string, result json.RawMessage, output string) (bool, error) {
	return s.transition(ctx, id, map[string]any{
		"state":  models.TaskStateReady,
		"result": json.RawMessage(result),
		"output": output,
	})
}

func (s *RedisStore) MarkFailed(ctx context.Context, id string, detail string) (bool, error) {
	return s.transition(ctx, id, map[string]any{
		"state":  models.TaskStateFailed,
		"detail": detail,
	})
}

func (s *RedisStore) transition(ctx context.Context, id string, patch map[string]any) (bool, error) {
	arg, err := json.Marshal(patch)
	if err != nil {
		return false, err
	}
	res, err := transitionScript.Run(ctx, s.rdb, []string{taskKey(id)}, string(arg)).Int()
	if err != nil {
		return false, err
	}
	switch res {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, ErrTaskNotFound
	}
}

func (s *RedisStore) RecordDebit(ctx context.Context, id string, balanceAfter int) error {
	// Plain read-modify-write under WATCH: debit recording has a single
	// writer (the CAS winner), so optimistic retry is enough here.
	return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, taskKey(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrTaskNotFound
		}
		if err != nil {
			return err
		}
		var t models.Task
		if err := json.Unmarshal(raw, &t); err != nil {
			return err
		}
		t.CreditsAfter = &balanceAfter
		out, err := json.Marshal(&t)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, taskKey(id), out, 0)
			return nil
		})
		return err
	}, taskKey(id))
}
