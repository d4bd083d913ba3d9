package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"stockgame/internal/game"
)

type APIConfig struct {
	Addr           string
	QuotesURL      string
	Store          string
	StorePath      string
	DatabaseURL    string
	APIToken       string
	ValuationEvery time.Duration
	RankingEvery   time.Duration
	BaselinesFile  string
	LogLevel       slog.Level
}

type GatewayConfig struct {
	Addr        string
	Concurrency int
	LogLevel    slog.Level
}

type CLIConfig struct {
	APIBaseURL string
	APIToken   string
	Home       string
}

// LoadDotEnv reads .env from the working directory when present. Variables
// already set in the environment win.
func LoadDotEnv() {
	_ = godotenv.Load()
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("STOCKGAME_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:           addr,
		QuotesURL:      strings.TrimRight(envDefault("STOCKGAME_QUOTES_URL", "http://localhost:8000"), "/"),
		Store:          strings.ToLower(envDefault("STOCKGAME_STORE", "memory")),
		StorePath:      envDefault("STOCKGAME_STORE_PATH", filepath.Join("data", "stockgame.db")),
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		APIToken:       strings.TrimSpace(os.Getenv("STOCKGAME_API_TOKEN")),
		ValuationEvery: envDurationDefault("STOCKGAME_VALUATION_EVERY", game.DefaultValuationEvery),
		RankingEvery:   envDurationDefault("STOCKGAME_RANKING_EVERY", game.DefaultRankingEvery),
		BaselinesFile:  strings.TrimSpace(os.Getenv("STOCKGAME_BASELINES_FILE")),
		LogLevel:       envLevelDefault("STOCKGAME_LOG_LEVEL", slog.LevelInfo),
	}
	switch cfg.Store {
	case "memory", "bolt", "sqlite":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return cfg, fmt.Errorf("DATABASE_URL is required when STOCKGAME_STORE=postgres")
		}
	default:
		return cfg, fmt.Errorf("STOCKGAME_STORE must be memory, bolt, sqlite or postgres, got %q", cfg.Store)
	}
	if cfg.ValuationEvery <= 0 || cfg.RankingEvery <= 0 {
		return cfg, fmt.Errorf("refresh intervals must be positive")
	}
	return cfg, nil
}

func LoadGatewayFromEnv() GatewayConfig {
	addr := envDefault("QUOTE_GATEWAY_ADDR", ":8000")
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	return GatewayConfig{
		Addr:        addr,
		Concurrency: envIntDefault("QUOTE_GATEWAY_CONCURRENCY", 8),
		LogLevel:    envLevelDefault("STOCKGAME_LOG_LEVEL", slog.LevelInfo),
	}
}

func LoadCLIFromEnv() CLIConfig {
	home := strings.TrimSpace(os.Getenv("STK_HOME"))
	if home == "" {
		if dir, err := os.UserHomeDir(); err == nil {
			home = filepath.Join(dir, ".stk")
		} else {
			home = ".stk"
		}
	}
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("STK_API_BASE_URL", "http://localhost:8080"), "/"),
		APIToken:   strings.TrimSpace(os.Getenv("STK_API_TOKEN")),
		Home:       home,
	}
}

// LoadBaselines reads the ranking universe from a YAML file. An empty path
// returns the built-in universe.
func LoadBaselines(path string) (*game.Baselines, error) {
	if strings.TrimSpace(path) == "" {
		return game.DefaultBaselines(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read baselines: %w", err)
	}
	var doc struct {
		Symbols []game.Baseline `yaml:"symbols"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse baselines %s: %w", path, err)
	}
	b := game.NewBaselines(doc.Symbols)
	if b.Len() == 0 {
		return nil, fmt.Errorf("baselines %s: no valid symbols", path)
	}
	return b, nil
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envLevelDefault(key string, fallback slog.Level) slog.Level {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return fallback
	}
	return level
}
