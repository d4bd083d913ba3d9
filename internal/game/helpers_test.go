package game

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
)

func fptr(v float64) *float64 { return &v }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

// fakeGateway serves fixed prices. When hold is set, Quotes signals entered
// and waits for release before answering.
type fakeGateway struct {
	mu      sync.Mutex
	prices  map[string]float64
	changes map[string]float64
	err     error
	calls   int

	hold    bool
	entered chan struct{}
	release chan struct{}
}

func newFakeGateway(prices map[string]float64) *fakeGateway {
	return &fakeGateway{prices: prices, changes: map[string]float64{}}
}

func (g *fakeGateway) Quotes(ctx context.Context, symbols []string) ([]Quote, error) {
	g.mu.Lock()
	g.calls++
	hold, entered, release := g.hold, g.entered, g.release
	g.mu.Unlock()

	if hold {
		entered <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	out := make([]Quote, 0, len(symbols))
	for _, sym := range symbols {
		q := Quote{Symbol: sym, Name: sym}
		if p, ok := g.prices[sym]; ok {
			q.Price = fptr(p)
			if c, ok := g.changes[sym]; ok {
				q.ChangePercent = fptr(c)
				q.Change = fptr(p * c / 100)
			}
		}
		out = append(out, q)
	}
	return out, nil
}

func (g *fakeGateway) setPrice(symbol string, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prices[symbol] = price
}

func (g *fakeGateway) setErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func (g *fakeGateway) holdNext() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hold = true
	g.entered = make(chan struct{})
	g.release = make(chan struct{})
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

var errStoreDown = errors.New("store down")

type fakeStore struct {
	mu      sync.Mutex
	player  map[string][]byte
	shared  map[string][]byte
	failSet bool
	failGet bool
	onGet   func(key string)
}

func newFakeStore() *fakeStore {
	return &fakeStore{player: map[string][]byte{}, shared: map[string][]byte{}}
}

func (s *fakeStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if s.onGet != nil {
		s.onGet(key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet {
		return nil, false, errStoreDown
	}
	v, ok := s.player[key]
	return v, ok, nil
}

func (s *fakeStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSet {
		return errStoreDown
	}
	s.player[key] = append([]byte(nil), value...)
	return nil
}

func (s *fakeStore) GetShared(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet {
		return nil, false, errStoreDown
	}
	v, ok := s.shared[key]
	return v, ok, nil
}

func (s *fakeStore) SetShared(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSet {
		return errStoreDown
	}
	s.shared[key] = append([]byte(nil), value...)
	return nil
}

func (s *fakeStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.player[key]
	return ok
}

func testProfile(id string) PlayerProfile {
	return PlayerProfile{
		ID:            id,
		DisplayName:   "Player " + id,
		RiskTolerance: RiskMedium,
		ReturnGoal:    GoalLong,
	}
}

func assertConsistent(t *testing.T, p *Portfolio) {
	t.Helper()
	if !approx(p.TotalValue, p.Cash+p.HoldingsValue()) {
		t.Fatalf("total %.6f != cash %.6f + holdings %.6f", p.TotalValue, p.Cash, p.HoldingsValue())
	}
	if len(p.Holdings) > MaxHoldings {
		t.Fatalf("holdings count %d exceeds %d", len(p.Holdings), MaxHoldings)
	}
}
