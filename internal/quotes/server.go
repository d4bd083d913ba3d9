package quotes

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 8

// StockRow is one entry of the /api/stocks response. Price fields are nil
// when the upstream could not resolve the symbol.
type StockRow struct {
	Symbol        string   `json:"symbol"`
	Name          string   `json:"name"`
	Price         *float64 `json:"price"`
	Change        *float64 `json:"change"`
	ChangePercent *float64 `json:"changePercent"`
	Error         string   `json:"error,omitempty"`
}

type StockDetail struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	MarketCap *int64  `json:"marketCap"`
	Sector    string  `json:"sector"`
	Industry  string  `json:"industry"`
}

// Server is the quote gateway HTTP front end.
type Server struct {
	src Source
	log *slog.Logger
	mux *chi.Mux
	// Concurrency caps upstream lookups per request.
	Concurrency int
}

func NewServer(src Source, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{src: src, log: logger, mux: chi.NewRouter(), Concurrency: defaultConcurrency}
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
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"message": "Stock Trading Game API is running"})
	})
	r.Get("/api/stocks", s.handleStocks)
	r.Get("/api/stock/{symbol}", s.handleStockDetail)
}

func (s *Server) handleStocks(w http.ResponseWriter, r *http.Request) {
	symbols := ParseSymbols(r.URL.Query().Get("symbols"))
	if len(symbols) == 0 {
		writeDetail(w, http.StatusBadRequest, "No symbols provided")
		return
	}
	s.log.Info("fetching stocks", "symbols", symbols)

	rows := make([]StockRow, len(symbols))
	g, ctx := errgroup.WithContext(r.Context())
	limit := s.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}
	g.SetLimit(limit)
	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			sum, err := s.src.Summary(ctx, sym)
			if err != nil {
				s.log.Warn("stock fetch failed", "symbol", sym, "err", err)
				rows[i] = StockRow{Symbol: sym, Name: sym, Error: err.Error()}
				return nil
			}
			rows[i] = BuildRow(sym, sum)
			return nil
		})
	}
	_ = g.Wait()
	writeJSON(w, http.StatusOK, map[string]any{"stocks": rows})
}

func (s *Server) handleStockDetail(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "symbol")))
	s.log.Info("fetching detail", "symbol", symbol)

	d, err := s.src.Detail(r.Context(), symbol)
	if err != nil && !errors.Is(err, ErrNoPrice) {
		s.log.Error("upstream detail failed", "symbol", symbol, "err", err)
		writeDetail(w, http.StatusBadGateway, fmt.Sprintf("Failed to fetch data for %s", symbol))
		return
	}
	if err != nil || !validPrice(d.Price) {
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("No price data found for %s", symbol))
		return
	}

	out := StockDetail{
		Symbol:   symbol,
		Name:     orDefault(d.Name, symbol),
		Price:    d.Price,
		Sector:   orDefault(d.Sector, "N/A"),
		Industry: orDefault(d.Industry, "N/A"),
	}
	if d.MarketCap > 0 {
		mc := d.MarketCap
		out.MarketCap = &mc
	}
	writeJSON(w, http.StatusOK, out)
}

// BuildRow turns an upstream summary into a response row. Change is rounded
// to cents first and the percent is derived from the rounded change.
func BuildRow(symbol string, sum Summary) StockRow {
	row := StockRow{Symbol: symbol, Name: orDefault(sum.Name, symbol)}
	if !validPrice(sum.Price) {
		return row
	}
	price := sum.Price
	row.Price = &price
	if !validPrice(sum.PreviousClose) {
		return row
	}
	prev := decimal.NewFromFloat(sum.PreviousClose)
	change := decimal.NewFromFloat(price).Sub(prev).Round(2)
	pct := change.Div(prev).Mul(decimal.NewFromInt(100)).Round(2)
	c, _ := change.Float64()
	p, _ := pct.Float64()
	row.Change = &c
	row.ChangePercent = &p
	return row
}

// ParseSymbols splits a comma-joined list, trimming and upper-casing each
// symbol and dropping blanks.
func ParseSymbols(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		sym := strings.ToUpper(strings.TrimSpace(part))
		if sym != "" {
			out = append(out, sym)
		}
	}
	return out
}

func validPrice(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeDetail uses the {"detail": ...} error body existing gateway clients
// expect.
func writeDetail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"detail": message})
}
