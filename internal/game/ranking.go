package game

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Composite score weights.
const (
	SentimentWeight  = 0.40
	TechnicalWeight  = 0.35
	LeadershipWeight = 0.25
)

// ScoreQuotes turns gateway quotes into ranking entries for one player.
// Quotes without a price are dropped. Entries are sorted by score, highest
// first; equal scores keep the gateway's order.
//
// The reported sub-scores are the market view of the symbol (baseline
// sentiment, technical clamped after the live-change adjustment, baseline
// leadership). Profile adjustments only feed the composite and are not
// clamped, so a score can land slightly above 100.
func ScoreQuotes(quotes []Quote, baselines *Baselines, profile PlayerProfile) []RankingEntry {
	out := make([]RankingEntry, 0, len(quotes))
	for _, q := range quotes {
		if q.Price == nil {
			continue
		}
		base := baselines.Lookup(q.Symbol)

		var change, changePct float64
		if q.ChangePercent != nil {
			changePct = *q.ChangePercent
		}
		technical := clamp(base.Technical+changePct*2, 0, 100)
		if q.Change != nil {
			change = *q.Change
		}

		techInput, leadInput := technical, base.Leadership
		switch profile.RiskTolerance {
		case RiskHigh:
			techInput += 5
		case RiskLow:
			leadInput += 5
		}
		switch profile.ReturnGoal {
		case GoalShort:
			techInput += 3
		case GoalLong:
			leadInput += 3
		}

		name := q.Name
		if name == "" || name == q.Symbol {
			name = base.Name
		}
		out = append(out, RankingEntry{
			Symbol:        NormalizeSymbol(q.Symbol),
			Name:          name,
			Sector:        base.Sector,
			Score:         base.Sentiment*SentimentWeight + techInput*TechnicalWeight + leadInput*LeadershipWeight,
			Sentiment:     base.Sentiment,
			Technical:     technical,
			Leadership:    base.Leadership,
			Price:         *q.Price,
			Change:        change,
			ChangePercent: changePct,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// Ranker refreshes rankings from the gateway and keeps the last good list.
type Ranker struct {
	gateway   QuoteGateway
	baselines *Baselines

	mu     sync.Mutex
	last   []RankingEntry
	lastAt time.Time
}

func NewRanker(gateway QuoteGateway, baselines *Baselines) *Ranker {
	if baselines == nil {
		baselines = DefaultBaselines()
	}
	return &Ranker{gateway: gateway, baselines: baselines}
}

// Refresh scores the tracked universe for profile. When the gateway fails
// it returns the previous list unchanged (empty on cold start) together with
// an error wrapping ErrGatewayUnavailable.
func (r *Ranker) Refresh(ctx context.Context, profile PlayerProfile) ([]RankingEntry, error) {
	quotes, err := r.gateway.Quotes(ctx, r.baselines.Symbols())
	if err != nil {
		return r.Latest(), fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	entries := ScoreQuotes(quotes, r.baselines, profile)

	r.mu.Lock()
	r.last = entries
	r.lastAt = time.Now().UTC()
	r.mu.Unlock()
	return cloneEntries(entries), nil
}

func (r *Ranker) Latest() []RankingEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneEntries(r.last)
}

func (r *Ranker) LastRefresh() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastAt
}

func (r *Ranker) Baselines() *Baselines {
	return r.baselines
}

func cloneEntries(in []RankingEntry) []RankingEntry {
	out := make([]RankingEntry, len(in))
	copy(out, in)
	return out
}
