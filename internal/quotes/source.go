// Package quotes implements both sides of the market quote gateway: the HTTP
// client the game consumes and the server that fronts Yahoo Finance.
package quotes

import (
	"context"
	"errors"
)

var ErrNoPrice = errors.New("no price data")

// Summary is the upstream view of one symbol used by /api/stocks.
type Summary struct {
	Symbol        string
	Name          string
	Price         float64
	PreviousClose float64
}

// Detail is the upstream view of one symbol used by /api/stock/{symbol}.
type Detail struct {
	Symbol    string
	Name      string
	Price     float64
	MarketCap int64
	Sector    string
	Industry  string
}

// Source looks up market data for a single symbol. A zero Price means the
// upstream had no price.
type Source interface {
	Summary(ctx context.Context, symbol string) (Summary, error)
	Detail(ctx context.Context, symbol string) (Detail, error)
}
