package game

import "strings"

// Baseline is the fixed qualitative view of a symbol before live and profile
// adjustments.
type Baseline struct {
	Symbol     string  `json:"symbol" yaml:"symbol"`
	Name       string  `json:"name" yaml:"name"`
	Sector     string  `json:"sector" yaml:"sector"`
	Sentiment  float64 `json:"sentiment" yaml:"sentiment"`
	Technical  float64 `json:"technical" yaml:"technical"`
	Leadership float64 `json:"leadership" yaml:"leadership"`
}

const defaultSubScore = 60.0

// Baselines is the tracked universe. Order is preserved so gateway requests
// are deterministic.
type Baselines struct {
	order    []string
	bySymbol map[string]Baseline
}

// NewBaselines builds the universe from rows, skipping invalid symbols.
// Sub-scores are clamped to [0, 100]; a later row for the same symbol wins.
func NewBaselines(rows []Baseline) *Baselines {
	b := &Baselines{bySymbol: make(map[string]Baseline, len(rows))}
	for _, row := range rows {
		row.Symbol = NormalizeSymbol(row.Symbol)
		if ValidateSymbol(row.Symbol) != nil {
			continue
		}
		row.Sentiment = clamp(row.Sentiment, 0, 100)
		row.Technical = clamp(row.Technical, 0, 100)
		row.Leadership = clamp(row.Leadership, 0, 100)
		if _, dup := b.bySymbol[row.Symbol]; !dup {
			b.order = append(b.order, row.Symbol)
		}
		b.bySymbol[row.Symbol] = row
	}
	return b
}

func DefaultBaselines() *Baselines {
	return NewBaselines(defaultUniverse)
}

// Lookup returns the baseline for symbol, or a neutral 60/60/60 baseline for
// symbols outside the universe.
func (b *Baselines) Lookup(symbol string) Baseline {
	symbol = NormalizeSymbol(symbol)
	if row, ok := b.bySymbol[symbol]; ok {
		return row
	}
	return Baseline{
		Symbol:     symbol,
		Name:       symbol,
		Sentiment:  defaultSubScore,
		Technical:  defaultSubScore,
		Leadership: defaultSubScore,
	}
}

func (b *Baselines) Symbols() []string {
	return append([]string(nil), b.order...)
}

// InSector returns the tracked symbols in sector, case-insensitively.
func (b *Baselines) InSector(sector string) []string {
	var out []string
	for _, sym := range b.order {
		if strings.EqualFold(b.bySymbol[sym].Sector, strings.TrimSpace(sector)) {
			out = append(out, sym)
		}
	}
	return out
}

func (b *Baselines) Len() int {
	return len(b.order)
}

var defaultUniverse = []Baseline{
	{"AAPL", "Apple Inc.", "Technology", 78, 72, 90},
	{"MSFT", "Microsoft Corporation", "Technology", 80, 70, 92},
	{"NVDA", "NVIDIA Corporation", "Technology", 85, 80, 86},
	{"INTC", "Intel Corporation", "Technology", 50, 48, 65},
	{"GOOGL", "Alphabet Inc.", "Communication", 75, 68, 88},
	{"META", "Meta Platforms, Inc.", "Communication", 68, 74, 80},
	{"NFLX", "Netflix, Inc.", "Communication", 70, 69, 76},
	{"DIS", "The Walt Disney Company", "Communication", 60, 55, 73},
	{"AMZN", "Amazon.com, Inc.", "Consumer", 74, 70, 89},
	{"TSLA", "Tesla, Inc.", "Consumer", 62, 65, 70},
	{"WMT", "Walmart Inc.", "Consumer Staples", 69, 60, 81},
	{"PG", "Procter & Gamble Company", "Consumer Staples", 67, 54, 83},
	{"KO", "The Coca-Cola Company", "Consumer Staples", 66, 52, 79},
	{"JPM", "JPMorgan Chase & Co.", "Financials", 70, 62, 84},
	{"V", "Visa Inc.", "Financials", 72, 64, 85},
	{"JNJ", "Johnson & Johnson", "Healthcare", 66, 55, 82},
	{"UNH", "UnitedHealth Group Incorporated", "Healthcare", 64, 58, 80},
	{"PFE", "Pfizer Inc.", "Healthcare", 52, 47, 70},
	{"XOM", "Exxon Mobil Corporation", "Energy", 58, 60, 74},
	{"CVX", "Chevron Corporation", "Energy", 57, 58, 72},
}
