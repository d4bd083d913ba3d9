package game

import "fmt"

// Revalue applies gateway prices to the holdings. Holdings whose symbol has
// no price keep their last known price. It returns the number of holdings
// that were repriced and whether the refresh ended the game.
func Revalue(p *Portfolio, quotes []Quote) (repriced int, gameOver bool) {
	prices := make(map[string]Quote, len(quotes))
	for _, q := range quotes {
		if q.Price == nil || *q.Price <= 0 {
			continue
		}
		prices[NormalizeSymbol(q.Symbol)] = q
	}
	for i := range p.Holdings {
		h := &p.Holdings[i]
		q, ok := prices[h.Symbol]
		if !ok {
			continue
		}
		h.CurrentPrice = *q.Price
		if h.Name == h.Symbol && q.Name != "" {
			h.Name = q.Name
		}
		repriced++
	}
	p.Recompute()
	return repriced, checkGameOver(p)
}

// checkGameOver moves an active game to game over once total value falls to
// the threshold. Only the valuation path calls it.
func checkGameOver(p *Portfolio) bool {
	if p.State != StateActive || p.TotalValue > GameOverThreshold {
		return false
	}
	p.State = StateGameOver
	return true
}

// StartGame moves a portfolio from not started to active and snapshots its
// start value.
func StartGame(p *Portfolio) error {
	if p.State != StateNotStarted {
		return fmt.Errorf("%w: game is %s", ErrPreconditionFailed, p.State)
	}
	if n := len(p.Holdings); n < MinStartHoldings || n > MaxHoldings {
		return fmt.Errorf("%w: need %d to %d holdings to start, have %d", ErrPreconditionFailed, MinStartHoldings, MaxHoldings, n)
	}
	p.Recompute()
	p.GameStarted = true
	p.State = StateActive
	p.StartValue = p.TotalValue
	return nil
}
