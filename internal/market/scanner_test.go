package market

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"riskcore/internal/config"
	"riskcore/internal/exchange"
	"riskcore/pkg/types"
)

type fakeLister struct {
	markets []types.PredictionMarket
}

func (f *fakeLister) GetMarkets(_ context.Context, _ exchange.MarketsParams) ([]types.PredictionMarket, string, error) {
	return f.markets, "", nil
}

func testScanner(markets []types.PredictionMarket, cfg config.ScannerConfig) *Scanner {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Minute
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewScanner(&fakeLister{markets: markets}, cfg, logger)
}

func TestScannerFilters(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	markets := []types.PredictionMarket{
		{Ticker: "GOOD", Status: "open", Volume24h: 5000, Category: "Economics", CloseTime: now.Add(72 * time.Hour)},
		{Ticker: "CLOSED", Status: "closed", Volume24h: 9000, Category: "Economics", CloseTime: now.Add(72 * time.Hour)},
		{Ticker: "THIN", Status: "open", Volume24h: 10, Category: "Economics", CloseTime: now.Add(72 * time.Hour)},
		{Ticker: "EXPIRED", Status: "open", Volume24h: 5000, Category: "Economics", CloseTime: now.Add(-time.Hour)},
		{Ticker: "FAR", Status: "open", Volume24h: 5000, Category: "Economics", CloseTime: now.AddDate(1, 0, 0)},
		{Ticker: "WRONG-CAT", Status: "open", Volume24h: 5000, Category: "Politics", CloseTime: now.Add(72 * time.Hour)},
	}

	s := testScanner(markets, config.ScannerConfig{
		MinVolume24h:       100,
		MaxTimeToCloseDays: 30,
		Categories:         []string{"economics"},
	})

	filtered := s.filterMarkets(markets, now)
	if len(filtered) != 1 || filtered[0].Ticker != "GOOD" {
		t.Errorf("filtered = %v, want only GOOD", tickers(filtered))
	}
}

func TestScannerRanksByVolumeAndRunway(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	markets := []types.PredictionMarket{
		{Ticker: "LOW-VOL", Status: "open", Volume24h: 100, CloseTime: now.Add(20 * 24 * time.Hour)},
		{Ticker: "HIGH-VOL", Status: "open", Volume24h: 100000, CloseTime: now.Add(20 * 24 * time.Hour)},
		{Ticker: "CLOSING-SOON", Status: "open", Volume24h: 100000, CloseTime: now.Add(6 * time.Hour)},
	}

	s := testScanner(markets, config.ScannerConfig{MaxTimeToCloseDays: 30})
	ranked := s.rankMarkets(markets, now)

	if ranked[0].Ticker != "HIGH-VOL" {
		t.Errorf("top candidate = %s, want HIGH-VOL", ranked[0].Ticker)
	}
	if ranked[2].Ticker != "LOW-VOL" {
		t.Errorf("last candidate = %s, want LOW-VOL", ranked[2].Ticker)
	}
}

func TestScannerEmitsAndReplacesResult(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	markets := []types.PredictionMarket{
		{Ticker: "A", Status: "open", Volume24h: 5000, CloseTime: now.Add(72 * time.Hour)},
		{Ticker: "B", Status: "open", Volume24h: 2000, CloseTime: now.Add(72 * time.Hour)},
	}

	s := testScanner(markets, config.ScannerConfig{MaxCandidates: 1, MaxTimeToCloseDays: 30})

	// Two scans without a reader: the second result replaces the first
	s.scan(context.Background())
	s.scan(context.Background())

	select {
	case result := <-s.Results():
		if len(result.Markets) != 1 || result.Markets[0].Ticker != "A" {
			t.Errorf("result = %v, want [A]", tickers(result.Markets))
		}
	default:
		t.Fatal("expected a pending scan result")
	}
}

func tickers(markets []types.PredictionMarket) []string {
	out := make([]string, len(markets))
	for i, m := range markets {
		out[i] = m.Ticker
	}
	return out
}
