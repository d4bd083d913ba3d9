package game

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const maxDisplayNameLen = 40

var blockedNameFragments = []string{
	"admin",
	"moderator",
	"support",
}

// Options tunes a Service.
type Options struct {
	Baselines      *Baselines
	ValuationEvery time.Duration
	RankingEvery   time.Duration
	// Schedule starts a Scheduler for each opened session.
	Schedule bool
}

// Service owns the live sessions and the shared leaderboard.
type Service struct {
	gateway   QuoteGateway
	store     Store
	board     *Leaderboard
	baselines *Baselines
	opts      Options
	log       *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	baseCtx  context.Context
}

// NewService wires a service. A nil store runs fully in memory.
func NewService(gateway QuoteGateway, store Store, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Baselines == nil {
		opts.Baselines = DefaultBaselines()
	}
	return &Service{
		gateway:   gateway,
		store:     store,
		board:     NewLeaderboard(store, logger),
		baselines: opts.Baselines,
		opts:      opts,
		log:       logger,
		sessions:  make(map[string]*Session),
		baseCtx:   context.Background(),
	}
}

// Init loads the persisted leaderboard. Schedulers started later derive
// their context from ctx. A store failure is logged and the service starts
// with an empty table.
func (s *Service) Init(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
	if err := s.board.Load(ctx); err != nil {
		s.log.Warn("leaderboard load failed", "err", err)
		return
	}
	s.log.Info("leaderboard loaded", "entries", len(s.board.Entries(0)))
}

func (s *Service) Leaderboard() *Leaderboard {
	return s.board
}

func (s *Service) Baselines() *Baselines {
	return s.baselines
}

// Register validates and stores a profile. Registering an ID that already
// has a session replaces its profile and keeps the portfolio.
func (s *Service) Register(ctx context.Context, in PlayerProfile) (*Session, error) {
	profile, err := normalizeProfile(in)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	existing := s.sessions[profile.ID]
	s.mu.Unlock()
	if existing != nil && !existing.Closed() {
		existing.setProfile(ctx, profile)
		s.log.Info("player re-registered", "player_id", profile.ID)
		return existing, nil
	}

	portfolio, persist := s.loadPortfolio(ctx, profile.ID)
	// attach may hand back a session another request opened meanwhile; the
	// profile submitted here still wins.
	sess := s.attach(profile, portfolio, persist)
	sess.setProfile(ctx, profile)
	s.log.Info("player registered", "player_id", profile.ID, "risk", profile.RiskTolerance, "goal", profile.ReturnGoal)
	return sess, nil
}

// Open returns the live session for playerID, restoring it from the store
// when necessary.
func (s *Service) Open(ctx context.Context, playerID string) (*Session, error) {
	id, err := NormalizePlayerID(playerID)
	if err != nil {
		return nil, err
	}
	if sess, ok := s.Session(id); ok {
		return sess, nil
	}
	if s.store == nil {
		return nil, fmt.Errorf("%w: %s", ErrPlayerNotFound, id)
	}

	raw, ok, err := s.store.Get(ctx, ProfileKey(id))
	if err != nil {
		return nil, fmt.Errorf("%w: load profile: %v", ErrPersistenceUnavailable, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlayerNotFound, id)
	}
	var profile PlayerProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", id, err)
	}
	if profile, err = normalizeProfile(profile); err != nil {
		return nil, err
	}

	portfolio, persist := s.loadPortfolio(ctx, id)
	sess := s.attach(profile, portfolio, persist)
	s.log.Info("session restored", "player_id", id, "state", portfolio.State)
	return sess, nil
}

func (s *Service) Session(playerID string) (*Session, bool) {
	id, err := NormalizePlayerID(playerID)
	if err != nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.Closed() {
		return nil, false
	}
	return sess, true
}

// CloseSession stops and forgets the live session for playerID. Persisted
// state is kept.
func (s *Service) CloseSession(playerID string) {
	id, err := NormalizePlayerID(playerID)
	if err != nil {
		return
	}
	s.mu.Lock()
	sess := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if sess != nil {
		sess.Close()
	}
}

// Shutdown closes every live session.
func (s *Service) Shutdown() {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
	s.log.Info("sessions closed", "count", len(sessions))
}

// PlayerIDs lists live sessions in ID order.
func (s *Service) PlayerIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Service) attach(profile PlayerProfile, portfolio *Portfolio, persist bool) *Session {
	sess := newSession(profile, portfolio, s.gateway, s.store, s.board, s.baselines, s.log)
	sess.persist = persist

	s.mu.Lock()
	if prev, ok := s.sessions[profile.ID]; ok && !prev.Closed() {
		s.mu.Unlock()
		return prev
	}
	s.sessions[profile.ID] = sess
	baseCtx := s.baseCtx
	s.mu.Unlock()

	if s.opts.Schedule {
		sched := NewScheduler(sess, s.opts.ValuationEvery, s.opts.RankingEvery, s.log)
		sess.attachScheduler(sched)
		sched.Start(baseCtx)
	}
	return sess
}

// loadPortfolio reads the saved portfolio. When the store cannot be read the
// session runs in memory only so the saved copy is not overwritten.
func (s *Service) loadPortfolio(ctx context.Context, playerID string) (*Portfolio, bool) {
	if s.store == nil {
		return NewPortfolio(), false
	}
	raw, ok, err := s.store.Get(ctx, PortfolioKey(playerID))
	if err != nil {
		s.log.Warn("portfolio load failed, continuing in memory", "player_id", playerID, "err", err)
		return NewPortfolio(), false
	}
	if !ok {
		return NewPortfolio(), true
	}
	var p Portfolio
	if err := json.Unmarshal(raw, &p); err != nil {
		s.log.Warn("portfolio decode failed, continuing in memory", "player_id", playerID, "err", err)
		return NewPortfolio(), false
	}
	if p.State == "" {
		p.State = StateNotStarted
		if p.GameStarted {
			p.State = StateActive
		}
	}
	p.Recompute()
	return &p, true
}

func normalizeProfile(in PlayerProfile) (PlayerProfile, error) {
	out := in
	id, err := NormalizePlayerID(in.ID)
	if err != nil {
		return PlayerProfile{}, err
	}
	out.ID = id
	name, err := validateDisplayName(in.DisplayName)
	if err != nil {
		return PlayerProfile{}, err
	}
	out.DisplayName = name
	if out.RiskTolerance, err = ParseRiskTolerance(string(in.RiskTolerance)); err != nil {
		return PlayerProfile{}, err
	}
	if out.ReturnGoal, err = ParseReturnGoal(string(in.ReturnGoal)); err != nil {
		return PlayerProfile{}, err
	}
	out.PreferredSector = strings.TrimSpace(in.PreferredSector)
	return out, nil
}

func validateDisplayName(name string) (string, error) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return "", fmt.Errorf("%w: display name is required", ErrInvalidProfile)
	}
	if utf8.RuneCountInString(name) > maxDisplayNameLen {
		return "", fmt.Errorf("%w: display name must be at most %d characters", ErrInvalidProfile, maxDisplayNameLen)
	}
	lower := strings.ToLower(name)
	for _, fragment := range blockedNameFragments {
		if strings.Contains(lower, fragment) {
			return "", fmt.Errorf("%w: display name is not allowed", ErrInvalidProfile)
		}
	}
	return name, nil
}
