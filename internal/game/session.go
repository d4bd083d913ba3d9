package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Session is one player's game context. All portfolio mutations go through
// its mutex so validation, mutation, persistence and the leaderboard update
// happen as one step. Gateway calls are made without the lock held.
type Session struct {
	gateway QuoteGateway
	store   Store
	board   *Leaderboard
	ranker  *Ranker
	log     *slog.Logger

	mu           sync.Mutex
	profile      PlayerProfile
	portfolio    *Portfolio
	epoch        uint64
	closed       bool
	persist      bool
	lastAdvisory string
	sched        *Scheduler
}

func newSession(profile PlayerProfile, portfolio *Portfolio, gateway QuoteGateway, store Store, board *Leaderboard, baselines *Baselines, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if portfolio == nil {
		portfolio = NewPortfolio()
	}
	return &Session{
		gateway:   gateway,
		store:     store,
		board:     board,
		ranker:    NewRanker(gateway, baselines),
		log:       logger.With("player_id", profile.ID),
		profile:   profile,
		portfolio: portfolio,
		persist:   store != nil,
	}
}

func (s *Session) Profile() PlayerProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

func (s *Session) State() GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.portfolio.State
}

// Portfolio returns a copy of the current portfolio.
func (s *Session) Portfolio() *Portfolio {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.portfolio.Clone()
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	p := s.portfolio
	views := make([]HoldingView, 0, len(p.Holdings))
	for _, h := range p.Holdings {
		views = append(views, HoldingView{Holding: h, Value: h.Value(), ChangePercent: h.ChangePercent()})
	}
	return Snapshot{
		Profile:         s.profile,
		Cash:            p.Cash,
		Holdings:        views,
		HoldingsValue:   p.HoldingsValue(),
		TotalValue:      p.TotalValue,
		StartValue:      p.StartValue,
		ReturnPercent:   p.ReturnPercent(),
		InvestedPercent: p.InvestedPercent(),
		State:           p.State,
		Advisories:      p.Advisories(),
		LastAdvisory:    s.lastAdvisory,
		UpdatedAt:       p.UpdatedAt,
	}
}

// Buy resolves the live price for symbol and buys quantity shares at it.
func (s *Session) Buy(ctx context.Context, symbol string, quantity int64) (OrderResult, error) {
	symbol = NormalizeSymbol(symbol)
	if err := ValidateSymbol(symbol); err != nil {
		return OrderResult{}, err
	}
	quotes, err := s.gateway.Quotes(ctx, []string{symbol})
	if err != nil {
		return OrderResult{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	for _, q := range quotes {
		if NormalizeSymbol(q.Symbol) != symbol || q.Price == nil {
			continue
		}
		return s.BuyAt(ctx, symbol, q.Name, *q.Price, quantity)
	}
	return OrderResult{}, fmt.Errorf("%w: %s", ErrQuoteUnavailable, symbol)
}

// BuyAt validates and applies a purchase at a known price.
func (s *Session) BuyAt(ctx context.Context, symbol, name string, price float64, quantity int64) (OrderResult, error) {
	symbol = NormalizeSymbol(symbol)
	if err := ValidateSymbol(symbol); err != nil {
		return OrderResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.tradableLocked(); err != nil {
		return OrderResult{}, err
	}
	if err := EvaluateTrade(symbol, price, quantity, s.portfolio).Err(); err != nil {
		s.log.Info("buy rejected", "symbol", symbol, "price", price, "quantity", quantity, "err", err)
		return OrderResult{}, err
	}

	next := s.portfolio.Clone()
	if err := next.ApplyBuy(symbol, name, price, quantity); err != nil {
		return OrderResult{}, err
	}
	s.portfolio = next
	s.afterMutationLocked(ctx)

	s.log.Info("buy filled", "symbol", symbol, "price", price, "quantity", quantity, "cash", next.Cash)
	return OrderResult{
		Symbol:     symbol,
		Side:       "buy",
		Shares:     quantity,
		Price:      price,
		Notional:   price * float64(quantity),
		Cash:       next.Cash,
		TotalValue: next.TotalValue,
		State:      next.State,
	}, nil
}

// Sell closes the entire position in symbol at its current price.
func (s *Session) Sell(ctx context.Context, symbol string) (OrderResult, error) {
	symbol = NormalizeSymbol(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.tradableLocked(); err != nil {
		return OrderResult{}, err
	}
	if d := EvaluateSell(symbol, s.portfolio); !d.Allowed {
		return OrderResult{}, fmt.Errorf("%w: %s", ErrHoldingNotFound, d.Message)
	}

	next := s.portfolio.Clone()
	sold, err := next.ApplySell(symbol)
	if err != nil {
		return OrderResult{}, err
	}
	s.portfolio = next
	s.afterMutationLocked(ctx)

	s.log.Info("sell filled", "symbol", symbol, "price", sold.CurrentPrice, "shares", sold.Shares, "cash", next.Cash)
	return OrderResult{
		Symbol:     symbol,
		Side:       "sell",
		Shares:     sold.Shares,
		Price:      sold.CurrentPrice,
		Notional:   sold.Value(),
		Cash:       next.Cash,
		TotalValue: next.TotalValue,
		State:      next.State,
	}, nil
}

// Refresh reprices holdings from the gateway. A gateway failure keeps the
// last known prices and returns an error wrapping ErrGatewayUnavailable. The
// result is dropped if the session is reset or closed while the request is
// in flight.
func (s *Session) Refresh(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Snapshot{}, ErrSessionClosed
	}
	if s.portfolio.State == StateGameOver {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, nil
	}
	symbols := s.portfolio.Symbols()
	epoch := s.epoch
	s.mu.Unlock()

	var quotes []Quote
	var fetchErr error
	if len(symbols) > 0 {
		quotes, fetchErr = s.gateway.Quotes(ctx, symbols)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, ErrSessionClosed
	}
	if s.epoch != epoch {
		s.log.Debug("valuation result discarded", "reason", "portfolio reset during refresh")
		return s.snapshotLocked(), nil
	}
	if fetchErr != nil {
		s.lastAdvisory = "prices may be stale: quote gateway unavailable"
		s.log.Warn("valuation refresh failed", "err", fetchErr)
		return s.snapshotLocked(), fmt.Errorf("%w: %v", ErrGatewayUnavailable, fetchErr)
	}

	next := s.portfolio.Clone()
	repriced, over := Revalue(next, quotes)
	s.portfolio = next
	s.lastAdvisory = ""
	s.afterMutationLocked(ctx)

	s.log.Debug("valuation refreshed", "repriced", repriced, "total_value", next.TotalValue)
	if over {
		s.log.Info("game over", "total_value", next.TotalValue)
	}
	return s.snapshotLocked(), nil
}

// Start begins the game once the portfolio holds 4 to 10 symbols.
func (s *Session) Start(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, ErrSessionClosed
	}
	next := s.portfolio.Clone()
	if err := StartGame(next); err != nil {
		return s.snapshotLocked(), err
	}
	s.portfolio = next
	s.afterMutationLocked(ctx)
	s.log.Info("game started", "start_value", next.StartValue)
	return s.snapshotLocked(), nil
}

// Reset replaces the portfolio with a fresh one for the same profile. A game
// in progress cannot be reset; only game_over and not_started portfolios can.
func (s *Session) Reset(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, ErrSessionClosed
	}
	if s.portfolio.State == StateActive {
		return s.snapshotLocked(), fmt.Errorf("%w: game in progress, reset is available after game over", ErrPreconditionFailed)
	}
	s.portfolio = NewPortfolio()
	s.epoch++
	s.lastAdvisory = ""
	s.afterMutationLocked(ctx)
	s.log.Info("game reset")
	return s.snapshotLocked(), nil
}

// RefreshRankings recomputes the ranking list. On gateway failure the
// previous list is returned with an error wrapping ErrGatewayUnavailable.
func (s *Session) RefreshRankings(ctx context.Context) ([]RankingEntry, error) {
	profile := s.Profile()
	entries, err := s.ranker.Refresh(ctx, profile)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if err != nil {
		s.log.Warn("ranking refresh failed", "err", err, "cached", len(entries))
	}
	return s.annotateLocked(entries), err
}

// Rankings returns the last computed ranking list with buyable flags for
// the current portfolio.
func (s *Session) Rankings() []RankingEntry {
	entries := s.ranker.Latest()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.annotateLocked(entries)
}

// RankingsRefreshedAt reports when the ranking list was last computed. It
// is zero before the first successful refresh.
func (s *Session) RankingsRefreshedAt() time.Time {
	return s.ranker.LastRefresh()
}

func (s *Session) annotateLocked(entries []RankingEntry) []RankingEntry {
	for i := range entries {
		entries[i].Buyable = IsBuyable(entries[i].Price, s.portfolio.TotalValue)
	}
	return entries
}

func (s *Session) setProfile(ctx context.Context, profile PlayerProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = profile
	s.afterMutationLocked(ctx)
}

// Close tears the session down. Refreshes still in flight are discarded and
// the scheduler, if any, is stopped before Close returns.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.epoch++
	sched := s.sched
	s.sched = nil
	s.mu.Unlock()

	if sched != nil {
		sched.Stop()
	}
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) attachScheduler(sched *Scheduler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sched = sched
}

func (s *Session) tradableLocked() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.portfolio.State == StateGameOver {
		return fmt.Errorf("%w: game over, reset to play again", ErrPreconditionFailed)
	}
	return nil
}

// afterMutationLocked persists the session and refreshes the player's
// leaderboard entry. Persistence problems are logged only.
func (s *Session) afterMutationLocked(ctx context.Context) {
	if err := s.persistLocked(ctx); err != nil {
		s.log.Warn("persist failed", "err", err)
	}
	if s.board != nil {
		s.board.Upsert(ctx, s.profile.ID, s.profile.DisplayName, s.portfolio)
	}
}

func (s *Session) persistLocked(ctx context.Context) error {
	if !s.persist {
		return nil
	}
	profileRaw, err := json.Marshal(s.profile)
	if err != nil {
		return err
	}
	portfolioRaw, err := json.Marshal(s.portfolio)
	if err != nil {
		return err
	}
	if err := errors.Join(
		s.store.Set(ctx, ProfileKey(s.profile.ID), profileRaw),
		s.store.Set(ctx, PortfolioKey(s.profile.ID), portfolioRaw),
	); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	return nil
}
