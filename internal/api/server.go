package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stockgame/internal/config"
	"stockgame/internal/game"
	"stockgame/internal/quotes"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// DetailSource serves single-symbol detail lookups.
type DetailSource interface {
	Detail(ctx context.Context, symbol string) (quotes.StockDetail, error)
}

type Server struct {
	cfg    config.APIConfig
	log    *slog.Logger
	game   *game.Service
	detail DetailSource
	idem   *idempotencyCache
	mux    *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, gameSvc *game.Service, detail DetailSource) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		log:    logger,
		game:   gameSvc,
		detail: detail,
		idem:   newIdempotencyCache(1024),
		mux:    chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sessions": len(s.game.PlayerIDs())})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/players", s.handleRegister)
		r.Route("/players/{id}", func(r chi.Router) {
			r.Get("/", s.handleSnapshot)
			r.Post("/orders", s.handleOrder)
			r.Delete("/holdings/{symbol}", s.handleSell)
			r.Post("/start", s.handleStart)
			r.Post("/reset", s.handleReset)
			r.Post("/refresh", s.handleRefresh)
			r.Get("/rankings", s.handleRankings)
			r.Delete("/session", s.handleCloseSession)
		})
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/stocks/{symbol}", s.handleStockDetail)
	})
}

// authMiddleware enforces a shared bearer token when one is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.APIToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*game.Session, bool) {
	sess, err := s.game.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ID              string `json:"id"`
		DisplayName     string `json:"display_name"`
		RiskTolerance   string `json:"risk_tolerance"`
		PreferredSector string `json:"preferred_sector"`
		ReturnGoal      string `json:"return_goal"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, err := s.game.Register(r.Context(), game.PlayerProfile{
		ID:              in.ID,
		DisplayName:     in.DisplayName,
		RiskTolerance:   game.RiskTolerance(in.RiskTolerance),
		PreferredSector: in.PreferredSector,
		ReturnGoal:      game.ReturnGoal(in.ReturnGoal),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	snap := sess.Snapshot()
	out := map[string]any{"snapshot": snap}
	if pos, ok := s.game.Leaderboard().Position(snap.Profile.ID); ok {
		out["rank"] = pos.Rank
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var in struct {
		Symbol   string `json:"symbol"`
		Side     string `json:"side"`
		Quantity int64  `json:"quantity"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	side := strings.ToLower(strings.TrimSpace(in.Side))
	if side != "buy" && side != "sell" {
		writeError(w, http.StatusBadRequest, "side must be buy or sell")
		return
	}

	key := sess.Profile().ID + ":" + idempotencyKey(r)
	var entry *idemEntry
	for {
		e, owner := s.idem.reserve(key)
		if owner {
			entry = e
			break
		}
		select {
		case <-e.done:
		case <-r.Context().Done():
			writeError(w, http.StatusServiceUnavailable, "order with this idempotency key still in flight")
			return
		}
		if e.ok {
			w.Header().Set("Idempotent-Replay", "true")
			writeJSON(w, http.StatusOK, e.res)
			return
		}
	}

	var (
		result game.OrderResult
		err    error
	)
	if side == "buy" {
		result, err = sess.Buy(r.Context(), in.Symbol, in.Quantity)
	} else {
		result, err = sess.Sell(r.Context(), in.Symbol)
	}
	s.idem.finish(key, entry, result, err == nil)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	result, err := sess.Sell(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	snap, err := sess.Start(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	snap, err := sess.Reset(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleRefresh always answers with the snapshot. A gateway failure is
// reported through the snapshot's last_advisory field.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	snap, err := sess.Refresh(r.Context())
	if err != nil && !errors.Is(err, game.ErrGatewayUnavailable) {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	entries := sess.Rankings()
	advisory := ""
	if q.Get("refresh") == "1" || len(entries) == 0 {
		var err error
		entries, err = sess.RefreshRankings(r.Context())
		switch {
		case errors.Is(err, game.ErrGatewayUnavailable):
			advisory = "rankings may be stale: quote gateway unavailable"
		case err != nil:
			writeDomainError(w, err)
			return
		}
	}

	sector := strings.TrimSpace(q.Get("sector"))
	if sector != "" && len(s.game.Baselines().InSector(sector)) == 0 {
		writeError(w, http.StatusBadRequest, "unknown sector "+sector)
		return
	}
	buyableOnly := q.Get("buyable") == "1"
	filtered := make([]game.RankingEntry, 0, len(entries))
	for _, e := range entries {
		if sector != "" && !strings.EqualFold(e.Sector, sector) {
			continue
		}
		if buyableOnly && !e.Buyable {
			continue
		}
		filtered = append(filtered, e)
	}
	out := map[string]any{"rankings": filtered}
	if at := sess.RankingsRefreshedAt(); !at.IsZero() {
		out["refreshed_at"] = at
	}
	if advisory != "" {
		out["advisory"] = advisory
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	s.game.CloseSession(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := game.LeaderboardCapacity
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": s.game.Leaderboard().Entries(limit)})
}

func (s *Server) handleStockDetail(w http.ResponseWriter, r *http.Request) {
	if s.detail == nil {
		writeError(w, http.StatusNotImplemented, "stock detail is not configured")
		return
	}
	symbol := game.NormalizeSymbol(chi.URLParam(r, "symbol"))
	if err := game.ValidateSymbol(symbol); err != nil {
		writeDomainError(w, err)
		return
	}
	out, err := s.detail.Detail(r.Context(), symbol)
	switch {
	case errors.Is(err, quotes.ErrNoPrice):
		writeError(w, http.StatusNotFound, "no price data found for "+symbol)
		return
	case err != nil:
		s.log.Warn("stock detail failed", "symbol", symbol, "err", err)
		writeError(w, http.StatusServiceUnavailable, game.ErrGatewayUnavailable.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func writeDomainError(w http.ResponseWriter, err error) {
	var rej *game.Rejection
	switch {
	case errors.As(err, &rej):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  strings.TrimSpace(err.Error()),
			"reason": rej.Reason,
		})
	case errors.Is(err, game.ErrValidationRejected):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, game.ErrPreconditionFailed), errors.Is(err, game.ErrSessionClosed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrGatewayUnavailable), errors.Is(err, game.ErrPersistenceUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, game.ErrPlayerNotFound), errors.Is(err, game.ErrHoldingNotFound), errors.Is(err, game.ErrQuoteUnavailable):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrInvalidSymbol), errors.Is(err, game.ErrInvalidProfile):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
