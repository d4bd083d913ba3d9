package quotes

import (
	"context"
	"fmt"

	"github.com/piquette/finance-go/equity"
	"github.com/piquette/finance-go/quote"
)

// YahooSource reads quotes from Yahoo Finance. The upstream library does not
// take a context, so cancellation is only checked before each call.
type YahooSource struct{}

func NewYahooSource() *YahooSource {
	return &YahooSource{}
}

func (y *YahooSource) Summary(ctx context.Context, symbol string) (Summary, error) {
	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}
	q, err := quote.Get(symbol)
	if err != nil {
		return Summary{}, fmt.Errorf("yahoo quote %s: %w", symbol, err)
	}
	if q == nil {
		return Summary{}, fmt.Errorf("yahoo quote %s: %w", symbol, ErrNoPrice)
	}
	return Summary{
		Symbol:        q.Symbol,
		Name:          q.ShortName,
		Price:         q.RegularMarketPrice,
		PreviousClose: q.RegularMarketPreviousClose,
	}, nil
}

func (y *YahooSource) Detail(ctx context.Context, symbol string) (Detail, error) {
	if err := ctx.Err(); err != nil {
		return Detail{}, err
	}
	e, err := equity.Get(symbol)
	if err != nil {
		return Detail{}, fmt.Errorf("yahoo equity %s: %w", symbol, err)
	}
	if e == nil {
		return Detail{}, fmt.Errorf("yahoo equity %s: %w", symbol, ErrNoPrice)
	}
	// Yahoo's quote endpoint does not carry sector or industry.
	return Detail{
		Symbol:    e.Symbol,
		Name:      e.ShortName,
		Price:     e.RegularMarketPrice,
		MarketCap: e.MarketCap,
	}, nil
}
