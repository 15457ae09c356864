package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// StorageKey names the durable record holding the queue. The version suffix
// changes only if the action format stops being backward compatible.
const StorageKey = "collab_playlist_offline_queue_v1"

type ActionType string

const (
	ActionAdd    ActionType = "add"
	ActionRemove ActionType = "remove"
	ActionVote   ActionType = "vote"
	ActionMove   ActionType = "move"
	ActionPlay   ActionType = "play"
)

// Action is a mutation intent captured while the client could not reach the
// server.
type Action struct {
	Type      ActionType `json:"type"`
	ID        string     `json:"id,omitempty"`
	TrackID   string     `json:"trackId,omitempty"`
	AddedBy   string     `json:"addedBy,omitempty"`
	Direction string     `json:"direction,omitempty"`
	Position  *float64   `json:"position,omitempty"`
	// QueuedAt is the capture time in Unix milliseconds.
	QueuedAt int64 `json:"queuedAt"`
}

var ErrUnknownAction = errors.New("unknown offline action type")

func (a Action) validate() error {
	switch a.Type {
	case ActionAdd, ActionRemove, ActionVote, ActionMove, ActionPlay:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownAction, a.Type)
}

// RecordStore is durable keyed storage with atomic read-modify-write.
type RecordStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Update replaces the value at key with fn(current) atomically. A missing
	// key reads as nil.
	Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error
}

// Executor performs one queued action against the server. Errors wrapped
// with backoff.Permanent are dropped instead of blocking the queue.
type Executor interface {
	Execute(ctx context.Context, a Action) error
}

type ExecutorFunc func(ctx context.Context, a Action) error

func (f ExecutorFunc) Execute(ctx context.Context, a Action) error { return f(ctx, a) }

// Queue is a FIFO of actions persisted under StorageKey.
type Queue struct {
	mu    sync.Mutex
	store RecordStore
	log   *zap.Logger
	now   func() time.Time
}

func NewQueue(store RecordStore, log *zap.Logger) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{store: store, log: log.Named("offline"), now: time.Now}
}

// Enqueue appends a, stamping QueuedAt when it is unset.
func (q *Queue) Enqueue(ctx context.Context, a Action) error {
	if err := a.validate(); err != nil {
		return err
	}
	if a.QueuedAt == 0 {
		a.QueuedAt = q.now().UnixMilli()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.store.Update(ctx, StorageKey, func(cur []byte) ([]byte, error) {
		return json.Marshal(append(q.decode(cur), a))
	})
}

// DequeueAll returns the whole queue and leaves it empty.
func (q *Queue) DequeueAll(ctx context.Context) ([]Action, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Action
	err := q.store.Update(ctx, StorageKey, func(cur []byte) ([]byte, error) {
		out = q.decode(cur)
		return []byte("[]"), nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Pending returns the queued actions without removing them.
func (q *Queue) Pending(ctx context.Context) ([]Action, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	raw, err := q.store.Get(ctx, StorageKey)
	if err != nil {
		return nil, err
	}
	return q.decode(raw), nil
}

// Replay drains the queue in order through exec. On the first retryable
// failure the failed action and everything after it go back to the front of
// the queue, ahead of anything enqueued meanwhile, and replay stops.
// Permanent failures are logged and skipped. Returns how many actions the
// server accepted.
func (q *Queue) Replay(ctx context.Context, exec Executor) (int, error) {
	batch, err := q.DequeueAll(ctx)
	if err != nil {
		return 0, err
	}

	applied := 0
	for i, a := range batch {
		err := exec.Execute(ctx, a)
		if err == nil {
			applied++
			continue
		}

		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			q.log.Warn("dropping rejected offline action",
				zap.String("type", string(a.Type)), zap.String("id", a.ID), zap.Error(perm.Err))
			continue
		}

		if rerr := q.requeueFront(ctx, batch[i:]); rerr != nil {
			return applied, errors.Join(err, rerr)
		}
		return applied, err
	}
	return applied, nil
}

func (q *Queue) requeueFront(ctx context.Context, actions []Action) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.store.Update(ctx, StorageKey, func(cur []byte) ([]byte, error) {
		merged := make([]Action, 0, len(actions))
		merged = append(merged, actions...)
		return json.Marshal(append(merged, q.decode(cur)...))
	})
}

// decode treats an absent or unreadable record as an empty queue.
func (q *Queue) decode(raw []byte) []Action {
	if len(raw) == 0 {
		return []Action{}
	}
	var out []Action
	if err := json.Unmarshal(raw, &out); err != nil {
		q.log.Warn("discarding unreadable offline queue", zap.Error(err))
		return []Action{}
	}
	if out == nil {
		out = []Action{}
	}
	return out
}
