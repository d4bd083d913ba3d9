package game

import (
	"fmt"
	"time"
)

// NewPortfolio returns the starting portfolio: all cash, no holdings.
func NewPortfolio() *Portfolio {
	return &Portfolio{
		Cash:       StartingCash,
		Holdings:   []Holding{},
		TotalValue: StartingCash,
		StartValue: StartingCash,
		State:      StateNotStarted,
		UpdatedAt:  time.Now().UTC(),
	}
}

func (p *Portfolio) holding(symbol string) (Holding, bool) {
	for _, h := range p.Holdings {
		if h.Symbol == symbol {
			return h, true
		}
	}
	return Holding{}, false
}

func (p *Portfolio) Holding(symbol string) (Holding, bool) {
	return p.holding(NormalizeSymbol(symbol))
}

func (p *Portfolio) HoldingsValue() float64 {
	var sum float64
	for _, h := range p.Holdings {
		sum += h.Value()
	}
	return sum
}

// Recompute restores TotalValue == Cash + sum of holding values.
func (p *Portfolio) Recompute() {
	p.TotalValue = p.Cash + p.HoldingsValue()
	p.UpdatedAt = time.Now().UTC()
}

// ApplyBuy records a purchase that EvaluateTrade already allowed. Existing
// holdings are merged at the volume-weighted average purchase price.
func (p *Portfolio) ApplyBuy(symbol, name string, price float64, quantity int64) error {
	if quantity <= 0 || !validPrice(price) {
		return fmt.Errorf("%w: quantity and price must be > 0", ErrValidationRejected)
	}
	cost := price * float64(quantity)

	merged := false
	for i := range p.Holdings {
		h := &p.Holdings[i]
		if h.Symbol != symbol {
			continue
		}
		newShares := h.Shares + quantity
		h.PurchasePrice = (h.PurchasePrice*float64(h.Shares) + cost) / float64(newShares)
		h.Shares = newShares
		h.CurrentPrice = price
		if name != "" {
			h.Name = name
		}
		merged = true
		break
	}
	if !merged {
		if len(p.Holdings) >= MaxHoldings {
			return fmt.Errorf("%w: max holdings reached", ErrValidationRejected)
		}
		if name == "" {
			name = symbol
		}
		p.Holdings = append(p.Holdings, Holding{
			Symbol:        symbol,
			Name:          name,
			Shares:        quantity,
			PurchasePrice: price,
			CurrentPrice:  price,
		})
	}

	p.Cash -= cost
	p.Recompute()
	return nil
}

// ApplySell closes the whole position at its current price and returns the
// proceeds.
func (p *Portfolio) ApplySell(symbol string) (Holding, error) {
	idx := -1
	for i, h := range p.Holdings {
		if h.Symbol == symbol {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Holding{}, fmt.Errorf("%w: %s", ErrHoldingNotFound, symbol)
	}
	sold := p.Holdings[idx]
	p.Holdings = append(p.Holdings[:idx:idx], p.Holdings[idx+1:]...)
	p.Cash += sold.Value()
	p.Recompute()
	return sold, nil
}

func (p *Portfolio) InvestedPercent() float64 {
	if p.TotalValue <= 0 {
		return 0
	}
	return p.HoldingsValue() / p.TotalValue * 100
}

func (p *Portfolio) ReturnPercent() float64 {
	if p.StartValue <= 0 {
		return 0
	}
	return (p.TotalValue - p.StartValue) / p.StartValue * 100
}

// Advisories lists soft targets the portfolio currently misses. None of them
// block trades.
func (p *Portfolio) Advisories() []string {
	if p.State != StateActive {
		return nil
	}
	var out []string
	if n := len(p.Holdings); n < MinStartHoldings || n > MaxHoldings {
		out = append(out, fmt.Sprintf("hold between %d and %d symbols (currently %d)", MinStartHoldings, MaxHoldings, n))
	}
	if inv := p.InvestedPercent(); inv < InvestedTarget {
		out = append(out, fmt.Sprintf("keep at least %.0f%% invested (currently %.1f%%)", InvestedTarget, inv))
	}
	return out
}

func (p *Portfolio) Clone() *Portfolio {
	cp := *p
	cp.Holdings = append([]Holding(nil), p.Holdings...)
	return &cp
}

func (p *Portfolio) Symbols() []string {
	out := make([]string, 0, len(p.Holdings))
	for _, h := range p.Holdings {
		out = append(out, h.Symbol)
	}
	return out
}
