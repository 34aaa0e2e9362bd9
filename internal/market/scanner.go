package market

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"riskcore/internal/config"
	"riskcore/internal/exchange"
	"riskcore/pkg/types"
)

// Scanner periodically polls the prediction venue for open markets and ranks
// candidates for the value strategy. It ranks by a composite score:
//
//	score = √(volume24h) × timeFactor
//
// where timeFactor decays linearly as the market approaches close. Active,
// liquid markets with enough runway score highest. The engine reads
// ScanResults from the Results() channel and feeds candidates to the
// strategy evaluator.

// MarketLister is the slice of the venue client the scanner needs.
type MarketLister interface {
	GetMarkets(ctx context.Context, p exchange.MarketsParams) ([]types.PredictionMarket, string, error)
}

// ScanResult contains candidate markets ranked by opportunity quality.
type ScanResult struct {
	Markets   []types.PredictionMarket
	ScannedAt time.Time
}

// Scanner polls for open markets on a fixed interval.
type Scanner struct {
	client   MarketLister
	cfg      config.ScannerConfig
	logger   *slog.Logger
	resultCh chan ScanResult
}

// NewScanner creates a market scanner.
func NewScanner(client MarketLister, cfg config.ScannerConfig, logger *slog.Logger) *Scanner {
	return &Scanner{
		client:   client,
		cfg:      cfg,
		logger:   logger.With("component", "scanner"),
		resultCh: make(chan ScanResult, 1),
	}
}

// Results returns the channel the engine reads from.
func (s *Scanner) Results() <-chan ScanResult {
	return s.resultCh
}

// Run starts the polling loop. Blocks until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) {
	// Immediate scan on startup
	s.scan(ctx)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scan(ctx)
		}
	}
}

func (s *Scanner) scan(ctx context.Context) {
	markets, err := s.fetchOpenMarkets(ctx)
	if err != nil {
		s.logger.Error("scan failed", "error", err)
		return
	}

	filtered := s.filterMarkets(markets, time.Now().UTC())
	ranked := s.rankMarkets(filtered, time.Now().UTC())

	if s.cfg.MaxCandidates > 0 && len(ranked) > s.cfg.MaxCandidates {
		ranked = ranked[:s.cfg.MaxCandidates]
	}

	result := ScanResult{
		Markets:   ranked,
		ScannedAt: time.Now(),
	}

	s.logger.Info("scan complete",
		"total", len(markets),
		"filtered", len(filtered),
		"selected", len(ranked),
	)

	// Non-blocking send; replace a stale unread result
	select {
	case s.resultCh <- result:
	default:
		select {
		case <-s.resultCh:
		default:
		}
		s.resultCh <- result
	}
}

func (s *Scanner) fetchOpenMarkets(ctx context.Context) ([]types.PredictionMarket, error) {
	var all []types.PredictionMarket
	cursor := ""

	for {
		page, next, err := s.client.GetMarkets(ctx, exchange.MarketsParams{
			Status: "open",
			Limit:  100,
			Cursor: cursor,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if next == "" || len(page) == 0 {
			break
		}
		cursor = next
	}
	return all, nil
}

// filterMarkets applies hard filters: not open, insufficient 24h volume,
// closing too soon or too far out, category not in the configured set.
func (s *Scanner) filterMarkets(markets []types.PredictionMarket, now time.Time) []types.PredictionMarket {
	categories := make(map[string]bool)
	for _, c := range s.cfg.Categories {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" {
			categories[c] = true
		}
	}

	maxClose := now.AddDate(0, 0, s.cfg.MaxTimeToCloseDays)

	var result []types.PredictionMarket
	for _, m := range markets {
		if m.Status != "open" {
			continue
		}
		if m.Volume24h < s.cfg.MinVolume24h {
			continue
		}
		if !m.CloseTime.After(now) {
			continue
		}
		if s.cfg.MaxTimeToCloseDays > 0 && m.CloseTime.After(maxClose) {
			continue
		}
		if len(categories) > 0 && !categories[strings.ToLower(m.Category)] {
			continue
		}
		result = append(result, m)
	}
	return result
}

// rankMarkets scores and sorts candidates, best first.
func (s *Scanner) rankMarkets(markets []types.PredictionMarket, now time.Time) []types.PredictionMarket {
	maxDays := float64(s.cfg.MaxTimeToCloseDays)
	if maxDays <= 0 {
		maxDays = 30
	}

	type scored struct {
		market types.PredictionMarket
		score  float64
	}

	scoredMarkets := make([]scored, 0, len(markets))
	for _, m := range markets {
		days := m.TimeToClose(now).Hours() / 24
		timeFactor := days / maxDays
		if timeFactor > 1 {
			timeFactor = 1
		}
		score := math.Sqrt(float64(m.Volume24h)) * timeFactor
		scoredMarkets = append(scoredMarkets, scored{market: m, score: score})
	}

	sort.Slice(scoredMarkets, func(i, j int) bool {
		return scoredMarkets[i].score > scoredMarkets[j].score
	})

	result := make([]types.PredictionMarket, len(scoredMarkets))
	for i, sm := range scoredMarkets {
		result[i] = sm.market
	}
	return result
}
