package syncq

import (
	"context"
	"errors"
	"testing"
)

var errOffline = errors.New("offline")

func isOffline(err error) bool { return errors.Is(err, errOffline) }

func TestLoadMissingFileIsEmpty(t *testing.T) {
	q := New(t.TempDir())
	orders, err := q.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("expected empty queue, got %d", len(orders))
	}
}

func TestPushKeepsOrder(t *testing.T) {
	q := New(t.TempDir())
	for _, sym := range []string{"AAPL", "MSFT", "NVDA"} {
		if err := q.Push(Order{PlayerID: "5551234567", Symbol: sym, Side: "buy", Quantity: 1, IdempotencyKey: sym}); err != nil {
			t.Fatalf("push %s: %v", sym, err)
		}
	}
	orders, err := q.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(orders) != 3 || orders[0].Symbol != "AAPL" || orders[2].Symbol != "NVDA" {
		t.Fatalf("unexpected queue %+v", orders)
	}
	if orders[0].QueuedAt.IsZero() {
		t.Fatalf("queued_at should be stamped")
	}
}

func TestDrainSendsAll(t *testing.T) {
	q := New(t.TempDir())
	_ = q.Push(Order{Symbol: "AAPL", Side: "buy", Quantity: 1, IdempotencyKey: "a"})
	_ = q.Push(Order{Symbol: "MSFT", Side: "sell", IdempotencyKey: "b"})

	var seen []string
	rep, err := q.Drain(context.Background(), func(_ context.Context, o Order) error {
		seen = append(seen, o.IdempotencyKey)
		return nil
	}, isOffline)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if rep.Sent != 2 || rep.Kept != 0 || len(rep.Dropped) != 0 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if len(seen) != 2 || seen[0] != "a" || seen[1] != "b" {
		t.Fatalf("unexpected send order %v", seen)
	}
	left, _ := q.Load()
	if len(left) != 0 {
		t.Fatalf("queue should be empty, got %d", len(left))
	}
}

func TestDrainStopsAtRetryableFailure(t *testing.T) {
	q := New(t.TempDir())
	for _, key := range []string{"a", "b", "c"} {
		_ = q.Push(Order{Symbol: "AAPL", Side: "buy", Quantity: 1, IdempotencyKey: key})
	}
	rep, err := q.Drain(context.Background(), func(_ context.Context, o Order) error {
		if o.IdempotencyKey == "b" {
			return errOffline
		}
		return nil
	}, isOffline)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if rep.Sent != 1 || rep.Kept != 2 {
		t.Fatalf("unexpected report %+v", rep)
	}
	left, _ := q.Load()
	if len(left) != 2 || left[0].IdempotencyKey != "b" || left[1].IdempotencyKey != "c" {
		t.Fatalf("unexpected remainder %+v", left)
	}
}

func TestDrainDropsRejectedOrders(t *testing.T) {
	q := New(t.TempDir())
	_ = q.Push(Order{Symbol: "AAPL", Side: "buy", Quantity: 500, IdempotencyKey: "a"})
	_ = q.Push(Order{Symbol: "MSFT", Side: "buy", Quantity: 1, IdempotencyKey: "b"})
	rejected := errors.New("trade rejected: insufficient cash")

	rep, err := q.Drain(context.Background(), func(_ context.Context, o Order) error {
		if o.IdempotencyKey == "a" {
			return rejected
		}
		return nil
	}, isOffline)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if rep.Sent != 1 || len(rep.Dropped) != 1 || !errors.Is(rep.Dropped[0].Err, rejected) {
		t.Fatalf("unexpected report %+v", rep)
	}
	left, _ := q.Load()
	if len(left) != 0 {
		t.Fatalf("queue should be empty, got %d", len(left))
	}
}

func TestDrainCanceledKeepsEverything(t *testing.T) {
	q := New(t.TempDir())
	_ = q.Push(Order{Symbol: "AAPL", Side: "buy", Quantity: 1, IdempotencyKey: "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := q.Drain(ctx, func(context.Context, Order) error {
		t.Fatalf("send should not run")
		return nil
	}, isOffline)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if rep.Kept != 1 {
		t.Fatalf("unexpected report %+v", rep)
	}
}
