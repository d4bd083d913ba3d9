// Package store holds the persistence backends for game state. Every backend
// keeps per-player keys and shared keys in separate namespaces.
package store

import (
	"context"
	"fmt"
	"strings"

	"stockgame/internal/game"
)

const (
	KindMemory   = "memory"
	KindBolt     = "bolt"
	KindSQLite   = "sqlite"
	KindPostgres = "postgres"
)

// Backend is a game.Store that holds resources.
type Backend interface {
	game.Store
	Close() error
}

var (
	_ Backend = (*Memory)(nil)
	_ Backend = (*Bolt)(nil)
	_ Backend = (*SQLite)(nil)
	_ Backend = (*Postgres)(nil)
)

// Open returns the backend named by kind. path is used by the file backends
// and databaseURL by postgres.
func Open(ctx context.Context, kind, path, databaseURL string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindMemory:
		return NewMemory(), nil
	case KindBolt:
		return OpenBolt(path)
	case KindSQLite:
		return OpenSQLite(ctx, path)
	case KindPostgres:
		if strings.TrimSpace(databaseURL) == "" {
			return nil, fmt.Errorf("postgres store requires DATABASE_URL")
		}
		return OpenPostgres(ctx, databaseURL)
	default:
		return nil, fmt.Errorf("unknown store %q (want memory, bolt, sqlite or postgres)", kind)
	}
}
