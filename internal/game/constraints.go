package game

import (
	"fmt"
	"math"
)

type RejectReason string

const (
	ReasonInvalidOrder      RejectReason = "invalid_order"
	ReasonInsufficientCash  RejectReason = "insufficient_cash"
	ReasonMaxHoldings       RejectReason = "max_holdings"
	ReasonPositionLimit     RejectReason = "position_limit"
	ReasonPositionOverCap   RejectReason = "position_over_cap"
	ReasonHoldingNotFound   RejectReason = "holding_not_found"
	ReasonNotAllowedInState RejectReason = "not_allowed_in_state"
)

// Decision is the outcome of evaluating a proposed trade. The zero value is
// not a valid decision; use Allow or Reject.
type Decision struct {
	Allowed bool
	Reason  RejectReason
	Message string
}

func Allow() Decision {
	return Decision{Allowed: true}
}

func Reject(reason RejectReason, format string, args ...any) Decision {
	return Decision{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Err returns nil for an allowed decision and a *Rejection otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &Rejection{Reason: d.Reason, Message: d.Message}
}

type Rejection struct {
	Reason  RejectReason
	Message string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidationRejected, r.Message)
}

func (r *Rejection) Unwrap() error {
	return ErrValidationRejected
}

// EvaluateTrade checks a proposed buy against the portfolio. Rules are
// evaluated in order and the first failing rule decides. totalValue is the
// value before the trade.
func EvaluateTrade(symbol string, price float64, quantity int64, p *Portfolio) Decision {
	if quantity <= 0 {
		return Reject(ReasonInvalidOrder, "quantity must be > 0")
	}
	if !validPrice(price) {
		return Reject(ReasonInvalidOrder, "price must be a finite number > 0")
	}

	cost := price * float64(quantity)
	if cost > p.Cash {
		return Reject(ReasonInsufficientCash, "insufficient cash: order costs %.2f, cash is %.2f", cost, p.Cash)
	}

	existing, held := p.holding(symbol)
	if !held && len(p.Holdings) >= MaxHoldings {
		return Reject(ReasonMaxHoldings, "max holdings: portfolio already holds %d symbols", MaxHoldings)
	}

	existingValue := 0.0
	if held {
		existingValue = existing.Value()
	}
	if p.TotalValue <= 0 || (existingValue+cost)/p.TotalValue > PositionCap {
		return Reject(ReasonPositionLimit, "would exceed position limit: %s would be %.1f%% of total value (max %.0f%%)",
			symbol, positionPercent(existingValue+cost, p.TotalValue), PositionCap*100)
	}

	if held && existingValue/p.TotalValue > PositionCap {
		return Reject(ReasonPositionOverCap, "%s is already over the %.0f%% position cap; sell first", symbol, PositionCap*100)
	}
	return Allow()
}

// EvaluateSell allows selling any held symbol. Sells always close the whole
// position.
func EvaluateSell(symbol string, p *Portfolio) Decision {
	if _, held := p.holding(symbol); !held {
		return Reject(ReasonHoldingNotFound, "%s is not held", symbol)
	}
	return Allow()
}

// IsBuyable reports whether a single share costs at most the position cap of
// totalValue. It is advisory and does not guarantee EvaluateTrade accepts.
func IsBuyable(price, totalValue float64) bool {
	return price > 0 && price <= totalValue*PositionCap
}

// validPrice rejects NaN and infinities along with non-positive prices.
func validPrice(price float64) bool {
	return price > 0 && !math.IsInf(price, 1)
}

func positionPercent(value, total float64) float64 {
	if total <= 0 {
		return 100
	}
	return value / total * 100
}
