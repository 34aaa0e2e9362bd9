// riskcore — a trading risk and execution core spanning an equities broker
// and a prediction-market venue.
//
// Architecture:
//
//	main.go              — entry point: config, logging, engine, SIGINT/SIGTERM
//	engine/engine.go     — orchestrator: scanner → strategy → venues, broadcaster, monitor
//	strategy/value.go    — value evaluator: trade where model prob diverges from price by more than fees
//	strategy/pricing.go  — fee-aware edge, Kelly sizing, expected value
//	market/scanner.go    — polls the prediction venue, ranks candidates by volume and runway
//	market/book.go       — local orderbook mirror fed by WebSocket deltas, stale on sequence gaps
//	exchange/alpaca.go   — equities REST client (account, positions, orders, market data)
//	exchange/kalshi.go   — prediction-venue REST client (markets, orderbooks, orders, settlements)
//	risk/                — pre-trade pipeline, circuit breaker, drawdown protector, Kelly sizer,
//	                       correlation limits, compliance guard, approval workflow, P&L alerts
//	thesis/              — persisted trade theses: every entry carries a falsifiable hypothesis
//	journal/             — append-only JSONL trade journal, one file per UTC day
//	monitor/             — venue health checks with transition alerts
//	events/              — non-blocking notification bus for embedders
//
// How it protects capital:
//
//	Every order passes the pre-trade pipeline (kill switch, circuit breaker,
//	symbol rules, size/exposure/spend/loss limits) before it reaches a venue.
//	The drawdown protector scales position sizing down as equity falls from
//	its peak and halts trading entirely at the emergency threshold. Orders
//	above the approval threshold wait for a human decision.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"riskcore/internal/config"
	"riskcore/internal/engine"
	"riskcore/internal/strategy"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("RISKCORE_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	// The model table is optional; without one the strategy never enters,
	// but the risk stack still guards manual and equities activity.
	model := strategy.StaticModel{}
	if path := os.Getenv("RISKCORE_MODEL"); path != "" {
		model, err = strategy.LoadStaticModel(path)
		if err != nil {
			logger.Error("failed to load model", "error", err)
			os.Exit(1)
		}
		logger.Info("model loaded", "path", path, "markets", len(model))
	}

	eng, err := engine.New(*cfg, model, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	logger.Info("riskcore started",
		"dry_run", cfg.DryRun,
		"journal", cfg.Journal.Enabled,
		"approval_threshold", cfg.Risk.ApprovalNotionalThreshold,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	eng.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
