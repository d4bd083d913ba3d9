package game

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultValuationEvery = 30 * time.Second
	DefaultRankingEvery   = 5 * time.Minute
)

// Scheduler drives the periodic work of one session: a valuation refresh
// while the game is active and a ranking refresh regardless of state.
type Scheduler struct {
	session        *Session
	valuationEvery time.Duration
	rankingEvery   time.Duration
	log            *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	started bool
}

func NewScheduler(session *Session, valuationEvery, rankingEvery time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if valuationEvery <= 0 {
		valuationEvery = DefaultValuationEvery
	}
	if rankingEvery <= 0 {
		rankingEvery = DefaultRankingEvery
	}
	return &Scheduler{
		session:        session,
		valuationEvery: valuationEvery,
		rankingEvery:   rankingEvery,
		log:            logger.With("component", "scheduler", "player_id", session.Profile().ID),
	}
}

// Start launches both loops. Rankings are refreshed once immediately. Calling
// Start on a running scheduler is a no-op.
func (s *Scheduler) Start(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	g, gctx := errgroup.WithContext(ctx)
	s.cancel = cancel
	s.group = g
	s.started = true

	g.Go(func() error {
		s.refreshRankings(gctx)
		return s.loop(gctx, s.rankingEvery, s.refreshRankings)
	})
	g.Go(func() error {
		return s.loop(gctx, s.valuationEvery, s.refreshValuation)
	})
	s.log.Info("scheduler started", "valuation_every", s.valuationEvery.String(), "ranking_every", s.rankingEvery.String())
}

// Stop cancels both loops and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	cancel, g := s.cancel, s.group
	s.started = false
	s.mu.Unlock()

	cancel()
	_ = g.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, every time.Duration, tick func(context.Context)) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if s.session.Closed() {
				return nil
			}
			tick(ctx)
		}
	}
}

func (s *Scheduler) refreshValuation(ctx context.Context) {
	if s.session.State() != StateActive {
		return
	}
	if _, err := s.session.Refresh(ctx); err != nil && !errors.Is(err, ErrSessionClosed) {
		s.log.Warn("scheduled valuation failed", "err", err)
	}
}

func (s *Scheduler) refreshRankings(ctx context.Context) {
	if _, err := s.session.RefreshRankings(ctx); err != nil && !errors.Is(err, ErrSessionClosed) {
		s.log.Warn("scheduled ranking refresh failed", "err", err)
	}
}
