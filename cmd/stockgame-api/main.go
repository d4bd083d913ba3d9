package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockgame/internal/api"
	"stockgame/internal/config"
	"stockgame/internal/game"
	"stockgame/internal/quotes"
	"stockgame/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config.LoadDotEnv()
	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	backend, err := store.Open(ctx, cfg.Store, cfg.StorePath, cfg.DatabaseURL)
	if err != nil {
		logger.Error("store open failed", "store", cfg.Store, "err", err)
		os.Exit(1)
	}
	defer backend.Close()

	baselines, err := config.LoadBaselines(cfg.BaselinesFile)
	if err != nil {
		logger.Error("baselines load failed", "file", cfg.BaselinesFile, "err", err)
		os.Exit(1)
	}

	gateway := quotes.NewClient(cfg.QuotesURL, logger.With("component", "quotes"))
	gameSvc := game.NewService(gateway, backend, logger, game.Options{
		Baselines:      baselines,
		ValuationEvery: cfg.ValuationEvery,
		RankingEvery:   cfg.RankingEvery,
		Schedule:       true,
	})
	gameSvc.Init(ctx)
	defer gameSvc.Shutdown()

	server := api.New(cfg, logger, gameSvc, gateway)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("stockgame api listening",
		"addr", cfg.Addr,
		"store", cfg.Store,
		"quotes_url", cfg.QuotesURL,
		"symbols", baselines.Len(),
		"valuation_every", cfg.ValuationEvery.String(),
		"ranking_every", cfg.RankingEvery.String(),
	)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
