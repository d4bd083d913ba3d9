package game

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestEvaluateTradeAcceptsWithinCap(t *testing.T) {
	p := NewPortfolio()

	d := EvaluateTrade("AAPL", 150, 10, p)
	if !d.Allowed {
		t.Fatalf("expected buy to be allowed, got %s: %s", d.Reason, d.Message)
	}
	if err := p.ApplyBuy("AAPL", "Apple Inc.", 150, 10); err != nil {
		t.Fatalf("apply buy: %v", err)
	}
	if !approx(p.Cash, 8500) {
		t.Fatalf("cash = %.2f, want 8500", p.Cash)
	}
	h, ok := p.Holding("AAPL")
	if !ok || h.Shares != 10 || !approx(h.Value(), 1500) {
		t.Fatalf("unexpected holding %+v", h)
	}
	if !approx(p.TotalValue, 10000) {
		t.Fatalf("total = %.2f, want 10000", p.TotalValue)
	}
}

func TestEvaluateTradeRejectsPositionLimit(t *testing.T) {
	p := NewPortfolio()
	before := *p

	d := EvaluateTrade("AAPL", 150, 20, p)
	if d.Allowed || d.Reason != ReasonPositionLimit {
		t.Fatalf("expected position limit rejection, got %+v", d)
	}
	if !errors.Is(d.Err(), ErrValidationRejected) {
		t.Fatalf("expected rejection to wrap ErrValidationRejected")
	}
	if p.Cash != before.Cash || len(p.Holdings) != 0 {
		t.Fatalf("evaluation must not mutate the portfolio")
	}
}

func TestEvaluateTradeRejectsEleventhSymbol(t *testing.T) {
	p := NewPortfolio()
	for i := 0; i < MaxHoldings; i++ {
		sym := fmt.Sprintf("S%d", i)
		if err := p.ApplyBuy(sym, sym, 10, 10); err != nil {
			t.Fatalf("seed %s: %v", sym, err)
		}
	}

	for _, qty := range []int64{1, 50} {
		d := EvaluateTrade("NEW", 1, qty, p)
		if d.Allowed || d.Reason != ReasonMaxHoldings {
			t.Fatalf("qty=%d expected max holdings rejection, got %+v", qty, d)
		}
	}

	if d := EvaluateTrade("S0", 10, 1, p); !d.Allowed {
		t.Fatalf("adding to an existing holding should pass the count rule, got %+v", d)
	}
}

func TestEvaluateTradeRuleOrder(t *testing.T) {
	p := NewPortfolio()
	for i := 0; i < MaxHoldings; i++ {
		sym := fmt.Sprintf("S%d", i)
		if err := p.ApplyBuy(sym, sym, 100, 9); err != nil {
			t.Fatalf("seed %s: %v", sym, err)
		}
	}
	// Cash is 1000 and the book is full: cash is checked first.
	d := EvaluateTrade("NEW", 500, 3, p)
	if d.Reason != ReasonInsufficientCash {
		t.Fatalf("expected insufficient cash to win, got %s", d.Reason)
	}
}

func TestEvaluateTradeInvalidInputs(t *testing.T) {
	p := NewPortfolio()
	tests := []struct {
		price float64
		qty   int64
	}{
		{price: 10, qty: 0},
		{price: 10, qty: -5},
		{price: 0, qty: 1},
		{price: -1, qty: 1},
		{price: math.NaN(), qty: 1},
		{price: math.Inf(1), qty: 1},
		{price: math.Inf(-1), qty: 1},
	}
	for _, tc := range tests {
		d := EvaluateTrade("AAPL", tc.price, tc.qty, p)
		if d.Allowed || d.Reason != ReasonInvalidOrder {
			t.Fatalf("price=%.2f qty=%d expected invalid order, got %+v", tc.price, tc.qty, d)
		}
	}
}

func TestEvaluateTradeOverCapHolding(t *testing.T) {
	p := NewPortfolio()
	if err := p.ApplyBuy("NVDA", "NVIDIA", 100, 20); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// A price jump pushes the position above the cap.
	Revalue(p, []Quote{{Symbol: "NVDA", Price: fptr(300)}})

	d := EvaluateTrade("NVDA", 1, 1, p)
	if d.Allowed {
		t.Fatalf("expected a buy into an over-cap position to be rejected")
	}
}

func TestEvaluateSell(t *testing.T) {
	p := NewPortfolio()
	if d := EvaluateSell("AAPL", p); d.Allowed || d.Reason != ReasonHoldingNotFound {
		t.Fatalf("expected holding not found, got %+v", d)
	}
	if err := p.ApplyBuy("AAPL", "Apple", 100, 1); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if d := EvaluateSell("AAPL", p); !d.Allowed {
		t.Fatalf("expected sell to be allowed")
	}
}

func TestIsBuyable(t *testing.T) {
	tests := []struct {
		price, total float64
		want         bool
	}{
		{price: 2500, total: 10000, want: true},
		{price: 2500.01, total: 10000, want: false},
		{price: 0, total: 10000, want: false},
		{price: 5, total: 0, want: false},
	}
	for _, tc := range tests {
		if got := IsBuyable(tc.price, tc.total); got != tc.want {
			t.Fatalf("price=%.2f total=%.2f got=%v want=%v", tc.price, tc.total, got, tc.want)
		}
	}
}
