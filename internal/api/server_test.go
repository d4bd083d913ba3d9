package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockgame/internal/config"
	"stockgame/internal/game"
	"stockgame/internal/quotes"
	"stockgame/internal/store"
)

const testPlayer = "5551234567"

type stubGateway struct {
	mu     sync.Mutex
	prices map[string]float64
	err    error
	calls  int
}

func (g *stubGateway) Quotes(_ context.Context, symbols []string) ([]game.Quote, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	out := make([]game.Quote, 0, len(symbols))
	for _, sym := range symbols {
		q := game.Quote{Symbol: sym, Name: sym}
		if p, ok := g.prices[sym]; ok {
			price := p
			q.Price = &price
		}
		out = append(out, q)
	}
	return out, nil
}

func (g *stubGateway) fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

type stubDetail struct{}

func (stubDetail) Detail(_ context.Context, symbol string) (quotes.StockDetail, error) {
	if symbol == "GONE" {
		return quotes.StockDetail{}, quotes.ErrNoPrice
	}
	return quotes.StockDetail{Symbol: symbol, Name: symbol + " Inc", Price: 42, Sector: "N/A", Industry: "N/A"}, nil
}

func newTestServer(t *testing.T, cfg config.APIConfig) (*Server, *stubGateway) {
	t.Helper()
	gw := &stubGateway{prices: map[string]float64{
		"AAPL": 150, "MSFT": 300, "NVDA": 100, "JPM": 120,
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := game.NewService(gw, store.NewMemory(), logger, game.Options{})
	t.Cleanup(svc.Shutdown)
	return New(cfg, logger, svc, stubDetail{}), gw
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
}

func register(t *testing.T, h http.Handler) {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/v1/players", map[string]any{
		"id":             testPlayer,
		"display_name":   "Tester",
		"risk_tolerance": "medium",
		"return_goal":    "long",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func buy(t *testing.T, h http.Handler, symbol string, qty int64, key string) *httptest.ResponseRecorder {
	t.Helper()
	headers := map[string]string{}
	if key != "" {
		headers["Idempotency-Key"] = key
	}
	return doJSON(t, h, http.MethodPost, "/v1/players/"+testPlayer+"/orders", map[string]any{
		"symbol": symbol, "side": "buy", "quantity": qty,
	}, headers)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{})
	register(t, srv.Handler())
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Sessions int `json:"sessions"`
	}
	decodeBody(t, rec, &out)
	assert.Equal(t, 1, out.Sessions)
}

func TestRegisterAndSnapshot(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{})
	h := srv.Handler()
	register(t, h)

	rec := doJSON(t, h, http.MethodGet, "/v1/players/"+testPlayer, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Snapshot game.Snapshot `json:"snapshot"`
		Rank     int64         `json:"rank"`
	}
	decodeBody(t, rec, &out)
	assert.Equal(t, game.StartingCash, out.Snapshot.Cash)
	assert.Equal(t, game.StateNotStarted, out.Snapshot.State)
	assert.Equal(t, int64(1), out.Rank)
}

func TestRegisterRejectsBadProfile(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{})
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/v1/players", map[string]any{
		"id": "abc", "display_name": "Tester",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodPost, "/v1/players", map[string]any{
		"id": testPlayer, "nickname": "x",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown fields are refused")
}

func TestUnknownPlayerIsNotFound(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{})
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/v1/players/5559999999", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrderFlow(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{})
	h := srv.Handler()
	register(t, h)

	rec := buy(t, h, "AAPL", 10, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res game.OrderResult
	decodeBody(t, rec, &res)
	assert.Equal(t, int64(10), res.Shares)
	assert.InDelta(t, 8500, res.Cash, 1e-9)

	rec = buy(t, h, "MSFT", 20, "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var rej struct {
		Reason game.RejectReason `json:"reason"`
	}
	decodeBody(t, rec, &rej)
	assert.Equal(t, game.ReasonPositionLimit, rej.Reason)

	rec = buy(t, h, "ZZZZ", 1, "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "no price for symbol")

	rec = buy(t, h, "bad symbol!", 1, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodDelete, "/v1/players/"+testPlayer+"/holdings/AAPL", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &res)
	assert.Equal(t, "sell", res.Side)
	assert.InDelta(t, game.StartingCash, res.Cash, 1e-9)

	rec = doJSON(t, h, http.MethodDelete, "/v1/players/"+testPlayer+"/holdings/AAPL", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrderSideValidation(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{})
	h := srv.Handler()
	register(t, h)
	rec := doJSON(t, h, http.MethodPost, "/v1/players/"+testPlayer+"/orders", map[string]any{
		"symbol": "AAPL", "side": "short", "quantity": 1,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderIdempotencyKeyReplays(t *testing.T) {
	srv, gw := newTestServer(t, config.APIConfig{})
	h := srv.Handler()
	register(t, h)

	first := buy(t, h, "AAPL", 5, "order-1")
	require.Equal(t, http.StatusOK, first.Code)
	callsAfterFirst := gw.calls

	second := buy(t, h, "AAPL", 5, "order-1")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replay"))
	assert.Equal(t, callsAfterFirst, gw.calls)

	rec := doJSON(t, h, http.MethodGet, "/v1/players/"+testPlayer, nil, nil)
	var out struct {
		Snapshot game.Snapshot `json:"snapshot"`
	}
	decodeBody(t, rec, &out)
	require.Len(t, out.Snapshot.Holdings, 1)
	assert.Equal(t, int64(5), out.Snapshot.Holdings[0].Shares)
}

func TestOrderIdempotencyKeyConcurrentRequests(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{})
	h := srv.Handler()
	register(t, h)

	const n = 8
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = buy(t, h, "AAPL", 5, "same-key").Code
		}(i)
	}
	wg.Wait()
	for i, code := range codes {
		assert.Equal(t, http.StatusOK, code, "request %d", i)
	}

	rec := doJSON(t, h, http.MethodGet, "/v1/players/"+testPlayer, nil, nil)
	var out struct {
		Snapshot game.Snapshot `json:"snapshot"`
	}
	decodeBody(t, rec, &out)
	require.Len(t, out.Snapshot.Holdings, 1)
	assert.Equal(t, int64(5), out.Snapshot.Holdings[0].Shares, "the key trades once")
	assert.InDelta(t, game.StartingCash-750, out.Snapshot.Cash, 1e-9)
}

func TestStartRequiresHoldings(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{})
	h := srv.Handler()
	register(t, h)

	rec := doJSON(t, h, http.MethodPost, "/v1/players/"+testPlayer+"/start", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	buyAll := func() {
		for _, sym := range []string{"AAPL", "MSFT", "NVDA", "JPM"} {
			require.Equal(t, http.StatusOK, buy(t, h, sym, 1, "").Code)
		}
	}
	buyAll()

	var snap game.Snapshot
	rec = doJSON(t, h, http.MethodPost, "/v1/players/"+testPlayer+"/reset", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, "reset before start clears holdings")
	decodeBody(t, rec, &snap)
	assert.Equal(t, game.StateNotStarted, snap.State)
	assert.Empty(t, snap.Holdings)

	buyAll()
	rec = doJSON(t, h, http.MethodPost, "/v1/players/"+testPlayer+"/start", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeBody(t, rec, &snap)
	assert.Equal(t, game.StateActive, snap.State)

	rec = doJSON(t, h, http.MethodPost, "/v1/players/"+testPlayer+"/reset", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "an active game cannot be reset")
}

func TestRefreshReportsStalePrices(t *testing.T) {
	srv, gw := newTestServer(t, config.APIConfig{})
	h := srv.Handler()
	register(t, h)
	require.Equal(t, http.StatusOK, buy(t, h, "AAPL", 10, "").Code)

	gw.fail(errors.New("connection refused"))
	rec := doJSON(t, h, http.MethodPost, "/v1/players/"+testPlayer+"/refresh", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap game.Snapshot
	decodeBody(t, rec, &snap)
	assert.NotEmpty(t, snap.LastAdvisory)
	require.Len(t, snap.Holdings, 1)
	assert.Equal(t, 150.0, snap.Holdings[0].CurrentPrice)
}

func TestRankingsFilters(t *testing.T) {
	srv, gw := newTestServer(t, config.APIConfig{})
	h := srv.Handler()
	register(t, h)

	rec := doJSON(t, h, http.MethodGet, "/v1/players/"+testPlayer+"/rankings", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Rankings    []game.RankingEntry `json:"rankings"`
		Advisory    string              `json:"advisory"`
		RefreshedAt time.Time           `json:"refreshed_at"`
	}
	decodeBody(t, rec, &out)
	require.NotEmpty(t, out.Rankings)
	assert.False(t, out.RefreshedAt.IsZero())
	for i := 1; i < len(out.Rankings); i++ {
		assert.GreaterOrEqual(t, out.Rankings[i-1].Score, out.Rankings[i].Score)
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/players/"+testPlayer+"/rankings?sector=technology", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &out)
	for _, e := range out.Rankings {
		assert.Equal(t, "Technology", e.Sector)
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/players/"+testPlayer+"/rankings?sector=Astrology", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	gw.fail(errors.New("down"))
	rec = doJSON(t, h, http.MethodGet, "/v1/players/"+testPlayer+"/rankings?refresh=1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out.Advisory = ""
	decodeBody(t, rec, &out)
	assert.NotEmpty(t, out.Advisory)
	assert.NotEmpty(t, out.Rankings, "previous rankings are kept")
}

func TestLeaderboardLimit(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{})
	h := srv.Handler()
	register(t, h)

	rec := doJSON(t, h, http.MethodGet, "/v1/leaderboard?limit=5", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Rows []game.LeaderboardEntry `json:"rows"`
	}
	decodeBody(t, rec, &out)
	require.Len(t, out.Rows, 1)
	assert.Equal(t, testPlayer, out.Rows[0].PlayerID)

	rec = doJSON(t, h, http.MethodGet, "/v1/leaderboard?limit=-1", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCloseSessionThenReopen(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{})
	h := srv.Handler()
	register(t, h)
	require.Equal(t, http.StatusOK, buy(t, h, "AAPL", 3, "").Code)

	rec := doJSON(t, h, http.MethodDelete, "/v1/players/"+testPlayer+"/session", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/v1/players/"+testPlayer, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Snapshot game.Snapshot `json:"snapshot"`
	}
	decodeBody(t, rec, &out)
	require.Len(t, out.Snapshot.Holdings, 1, "portfolio is restored from the store")
}

func TestStockDetail(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{})
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodGet, "/v1/stocks/aapl", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var d quotes.StockDetail
	decodeBody(t, rec, &d)
	assert.Equal(t, "AAPL", d.Symbol)

	rec = doJSON(t, h, http.MethodGet, "/v1/stocks/GONE", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBearerToken(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{APIToken: "s3cret"})
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodGet, "/v1/leaderboard", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/v1/leaderboard", nil, map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/v1/leaderboard", nil, map[string]string{"Authorization": "Bearer s3cret"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health check stays open")
}

func TestBearerTokenParsing(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer   abc "))
	assert.Equal(t, "", bearerToken("Basic abc"))
	assert.Equal(t, "", bearerToken(""))
}

func TestIdempotencyCacheEvictsOldest(t *testing.T) {
	c := newIdempotencyCache(2)
	for _, key := range []string{"a", "b", "c"} {
		e, owner := c.reserve(key)
		require.True(t, owner)
		c.finish(key, e, game.OrderResult{Symbol: strings.ToUpper(key)}, true)
	}
	_, owner := c.reserve("a")
	assert.True(t, owner, "evicted key is reserved afresh")

	e, owner := c.reserve("c")
	require.False(t, owner)
	<-e.done
	assert.True(t, e.ok)
	assert.Equal(t, "C", e.res.Symbol)
}

func TestIdempotencyCacheReservesInFlightKey(t *testing.T) {
	c := newIdempotencyCache(8)
	first, owner := c.reserve("k")
	require.True(t, owner)

	second, owner := c.reserve("k")
	require.False(t, owner, "a key in flight is not handed out twice")
	assert.Same(t, first, second)
	select {
	case <-second.done:
		t.Fatal("entry finished before its owner")
	default:
	}

	c.finish("k", first, game.OrderResult{}, false)
	<-second.done
	assert.False(t, second.ok)

	_, owner = c.reserve("k")
	assert.True(t, owner, "a failed order releases its key")
}
