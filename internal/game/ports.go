package game

import (
	"context"
	"fmt"
)

// QuoteGateway returns current price data for symbols. A returned error is a
// failure of the whole batch; per-symbol failures come back as quotes with a
// nil Price.
type QuoteGateway interface {
	Quotes(ctx context.Context, symbols []string) ([]Quote, error)
}

// Store is the key-value persistence collaborator. Get/Set operate on
// per-player keys, GetShared/SetShared on the global namespace used by the
// leaderboard. Get reports ok=false for absent keys.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	GetShared(ctx context.Context, key string) (value []byte, ok bool, err error)
	SetShared(ctx context.Context, key string, value []byte) error
}

const LeaderboardKey = "leaderboard"

func ProfileKey(playerID string) string {
	return fmt.Sprintf("profile:%s", playerID)
}

func PortfolioKey(playerID string) string {
	return fmt.Sprintf("portfolio:%s", playerID)
}
