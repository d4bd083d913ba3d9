package game

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Leaderboard is the global table of players ranked by return percent.
type Leaderboard struct {
	mu      sync.Mutex
	entries []LeaderboardEntry
	store   Store
	log     *slog.Logger
}

func NewLeaderboard(store Store, logger *slog.Logger) *Leaderboard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Leaderboard{store: store, log: logger}
}

// Load replaces the in-memory table with the persisted one. A missing store
// or key leaves the table empty.
func (l *Leaderboard) Load(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	raw, ok, err := l.store.GetShared(ctx, LeaderboardKey)
	if err != nil {
		return fmt.Errorf("%w: load leaderboard: %v", ErrPersistenceUnavailable, err)
	}
	if !ok {
		return nil
	}
	var entries []LeaderboardEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("decode leaderboard: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = normalizeLeaderboard(entries)
	return nil
}

// Upsert records the player's latest return, replacing any previous entry
// for the same player ID, and persists the table. Persistence failures are
// logged and do not undo the update.
func (l *Leaderboard) Upsert(ctx context.Context, playerID, displayName string, p *Portfolio) []LeaderboardEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := LeaderboardEntry{
		DisplayName:   displayName,
		PlayerID:      playerID,
		ReturnPercent: p.ReturnPercent(),
		TotalValue:    p.TotalValue,
	}
	replaced := false
	for i := range l.entries {
		if l.entries[i].PlayerID == playerID {
			l.entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		l.entries = append(l.entries, entry)
	}
	l.entries = normalizeLeaderboard(l.entries)

	if err := l.persistLocked(ctx); err != nil {
		l.log.Warn("leaderboard persist failed", "err", err)
	}
	return cloneLeaderboard(l.entries)
}

func (l *Leaderboard) Entries(limit int) []LeaderboardEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := cloneLeaderboard(l.entries)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Position returns the player's current entry.
func (l *Leaderboard) Position(playerID string) (LeaderboardEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.PlayerID == playerID {
			return e, true
		}
	}
	return LeaderboardEntry{}, false
}

func (l *Leaderboard) persistLocked(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	raw, err := json.Marshal(l.entries)
	if err != nil {
		return err
	}
	if err := l.store.SetShared(ctx, LeaderboardKey, raw); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	return nil
}

// normalizeLeaderboard sorts by return percent descending, caps the table
// and assigns 1-based ranks.
func normalizeLeaderboard(entries []LeaderboardEntry) []LeaderboardEntry {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ReturnPercent > entries[j].ReturnPercent
	})
	if len(entries) > LeaderboardCapacity {
		entries = entries[:LeaderboardCapacity]
	}
	for i := range entries {
		entries[i].Rank = int64(i + 1)
	}
	return entries
}

func cloneLeaderboard(in []LeaderboardEntry) []LeaderboardEntry {
	out := make([]LeaderboardEntry, len(in))
	copy(out, in)
	return out
}
