// Package syncq keeps orders the CLI could not deliver because the game API
// or its quote gateway was unreachable, so `stk sync` can replay them later.
package syncq

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

type Order struct {
	PlayerID       string    `json:"player_id"`
	Symbol         string    `json:"symbol"`
	Side           string    `json:"side"`
	Quantity       int64     `json:"quantity,omitempty"`
	IdempotencyKey string    `json:"idempotency_key"`
	QueuedAt       time.Time `json:"queued_at"`
}

// Report summarises one Drain pass.
type Report struct {
	Sent    int
	Dropped []Failure
	Kept    int
}

type Failure struct {
	Order Order
	Err   error
}

// Queue is a JSON file of pending orders.
type Queue struct {
	path string
}

func New(dir string) *Queue {
	return &Queue{path: filepath.Join(dir, "queue.json")}
}

func (q *Queue) Path() string {
	return q.path
}

func (q *Queue) Load() ([]Order, error) {
	raw, err := os.ReadFile(q.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Order{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []Order{}, nil
	}
	var out []Order
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (q *Queue) Save(orders []Order) error {
	if err := os.MkdirAll(filepath.Dir(q.path), 0o700); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(orders, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(q.path, raw, 0o600)
}

func (q *Queue) Push(o Order) error {
	orders, err := q.Load()
	if err != nil {
		return err
	}
	if o.QueuedAt.IsZero() {
		o.QueuedAt = time.Now().UTC()
	}
	orders = append(orders, o)
	return q.Save(orders)
}

// Drain sends queued orders oldest first. An order whose error is retryable
// stays queued along with everything behind it, so orders keep their
// relative order. Orders failing for any other reason are dropped and
// reported.
func (q *Queue) Drain(ctx context.Context, send func(context.Context, Order) error, retryable func(error) bool) (Report, error) {
	orders, err := q.Load()
	if err != nil {
		return Report{}, err
	}
	var rep Report
	for i, o := range orders {
		if err := ctx.Err(); err != nil {
			rep.Kept = len(orders) - i
			return rep, q.Save(orders[i:])
		}
		err := send(ctx, o)
		switch {
		case err == nil:
			rep.Sent++
		case retryable(err):
			rep.Kept = len(orders) - i
			return rep, q.Save(orders[i:])
		default:
			rep.Dropped = append(rep.Dropped, Failure{Order: o, Err: err})
		}
	}
	return rep, q.Save([]Order{})
}
