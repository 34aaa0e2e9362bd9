// value.go implements the value/mispricing evaluator: trade markets where
// the model probability diverges from the market price by more than fees.
package strategy

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"riskcore/internal/config"
	"riskcore/internal/market"
	"riskcore/internal/thesis"
	"riskcore/pkg/types"
)

// ModelProvider supplies the strategy's probability estimate for a market.
// ok is false when the model has no opinion on the ticker.
type ModelProvider interface {
	Probability(ticker string) (prob float64, ok bool)
}

// StaticModel is a fixed ticker → probability table, typically loaded from
// a JSON file produced by offline research. Markets absent from the table
// are never traded.
type StaticModel map[string]float64

func (m StaticModel) Probability(ticker string) (float64, bool) {
	p, ok := m[ticker]
	if !ok || p <= 0 || p >= 1 {
		return 0, false
	}
	return p, true
}

// LoadStaticModel reads a StaticModel from a JSON file.
func LoadStaticModel(path string) (StaticModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	var m StaticModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse model %s: %w", path, err)
	}
	return m, nil
}

// Signal is a trade recommendation emitted by the evaluator.
type Signal struct {
	Ticker     string
	Side       types.ContractSide
	PriceCents int   // own-side limit price
	Count      int64 // target contracts
	MaxCount   int64 // overfill allowance
	Edge       float64
	Kelly      float64
	Confidence float64
	ThesisID   string
	Reason     string
}

// ValueStrategy evaluates scanned markets against a pluggable model and
// backs every entry with a tracked thesis.
type ValueStrategy struct {
	cfg     config.StrategyConfig
	pricing *PricingEngine
	theses  *thesis.Tracker
	model   ModelProvider
	logger  *slog.Logger
	now     func() time.Time
}

// NewValueStrategy builds the evaluator. feeCents is the round-trip fee
// per contract.
func NewValueStrategy(
	cfg config.StrategyConfig,
	feeCents int,
	theses *thesis.Tracker,
	model ModelProvider,
	logger *slog.Logger,
) *ValueStrategy {
	return &ValueStrategy{
		cfg:     cfg,
		pricing: NewPricingEngine(FlatFees(feeCents), cfg.MaxKellyFraction, cfg.MinEdge),
		theses:  theses,
		model:   model,
		logger:  logger.With("component", "value"),
		now:     time.Now,
	}
}

// Pricing exposes the underlying engine for ad-hoc analysis.
func (s *ValueStrategy) Pricing() *PricingEngine { return s.pricing }

// passesFilters applies the pre-trade liquidity, spread, and time gates.
func (s *ValueStrategy) passesFilters(m types.PredictionMarket, book *market.Book) (bool, string) {
	if book.Stale() {
		return false, "orderbook stale"
	}
	if score, ok := book.LiquidityScore(); !ok || score < s.cfg.MinLiquidityScore {
		return false, fmt.Sprintf("low liquidity: %.2f", score)
	}
	if spread, ok := book.SpreadPct(); !ok || spread > s.cfg.MaxSpreadPct {
		return false, fmt.Sprintf("wide spread: %.1f%%", spread*100)
	}
	hours := m.TimeToClose(s.now()).Hours()
	if hours < s.cfg.MinTimeToCloseHours {
		return false, fmt.Sprintf("too close to settlement: %.1fh", hours)
	}
	return true, ""
}

// Evaluate checks one market for a value opportunity. Returns nil when the
// market is filtered out or carries no tradeable edge. bankroll is the
// capital available to the strategy in dollars.
func (s *ValueStrategy) Evaluate(
	m types.PredictionMarket,
	book *market.Book,
	bankroll decimal.Decimal,
) *Signal {
	if ok, reason := s.passesFilters(m, book); !ok {
		s.logger.Debug("market filtered", "ticker", m.Ticker, "reason", reason)
		return nil
	}

	modelProb, ok := s.model.Probability(m.Ticker)
	if !ok {
		return nil
	}

	mid, ok := book.MidPrice()
	if !ok {
		return nil
	}
	yesPrice := int(mid + 0.5)

	maxPosition := decimal.NewFromFloat(s.cfg.MaxPositionPerMarket).
		Mul(decimal.NewFromFloat(s.cfg.MaxPositionPct))
	analysis := s.pricing.Analyze(modelProb, yesPrice, bankroll, maxPosition)
	if analysis.Recommendation != RecTrade {
		s.logger.Debug("no trade", "ticker", m.Ticker, "reason", analysis.Reason)
		return nil
	}

	// Confidence scales with how far the edge clears the minimum.
	confidence := analysis.Best.Adjusted / s.cfg.MinEdge
	if confidence > 1 {
		confidence = 1
	}
	if confidence < s.cfg.MinConfidence {
		s.logger.Debug("confidence too low",
			"ticker", m.Ticker, "confidence", confidence)
		return nil
	}

	// Execute at the touch, not the mid.
	bid, ask, ok := book.BestBidAsk()
	if !ok {
		return nil
	}
	target := ask
	if analysis.Best.Side == types.No {
		target = 100 - bid
	}

	thesisID, err := s.ensureThesis(m, analysis.Best, modelProb, target)
	if err != nil {
		s.logger.Error("thesis creation failed", "ticker", m.Ticker, "error", err)
		return nil
	}

	return &Signal{
		Ticker:     m.Ticker,
		Side:       analysis.Best.Side,
		PriceCents: target,
		Count:      analysis.Contracts,
		MaxCount:   analysis.Contracts + analysis.Contracts/2,
		Edge:       analysis.Best.Adjusted,
		Kelly:      analysis.Kelly,
		Confidence: confidence,
		ThesisID:   thesisID,
		Reason: fmt.Sprintf("value edge %.1f%% on %s",
			analysis.Best.Adjusted*100, analysis.Best.Side),
	}
}

// ensureThesis reuses the market's live thesis when it points the same way,
// otherwise documents a new one.
func (s *ValueStrategy) ensureThesis(
	m types.PredictionMarket, edge Edge, modelProb float64, entryTarget int,
) (string, error) {
	if existing, ok := s.theses.ActiveForMarket(m.Ticker); ok && existing.Direction == edge.Side {
		return existing.ID, nil
	}

	ownProb := modelProb
	if edge.Side == types.No {
		ownProb = 1 - modelProb
	}
	created, err := s.theses.Create(thesis.CreateParams{
		Ticker:       m.Ticker,
		Hypothesis:   hypothesisText(m, modelProb, edge),
		Direction:    edge.Side,
		ModelProb:    modelProb,
		MarketProb:   m.ImpliedProb(),
		AdjustedEdge: edge.Adjusted,
		EntryTarget:  entryTarget,
		ExitTarget:   int(ownProb * 100),
		Signals:      []string{fmt.Sprintf("value_edge=%.4f", edge.Adjusted)},
	})
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

func hypothesisText(m types.PredictionMarket, modelProb float64, edge Edge) string {
	diff := modelProb - m.ImpliedProb()
	if edge.Side == types.Yes {
		return fmt.Sprintf(
			"market underprices YES by %.1f%%: model %.1f%% vs market %.1f%%, fee-adjusted edge %.1f%%",
			diff*100, modelProb*100, m.ImpliedProb()*100, edge.Adjusted*100)
	}
	return fmt.Sprintf(
		"market overprices YES by %.1f%%: model %.1f%% vs market %.1f%%, buying NO with fee-adjusted edge %.1f%%",
		-diff*100, modelProb*100, m.ImpliedProb()*100, edge.Adjusted*100)
}

// ShouldInvalidate checks a live thesis against current conditions. Returns
// the invalidation reason and true when the thesis no longer holds:
// the edge decayed below threshold, the price moved adversely past the
// configured fraction of the average fill, or settlement is imminent.
func (s *ValueStrategy) ShouldInvalidate(th thesis.Thesis, m types.PredictionMarket, book *market.Book) (string, bool) {
	yesPrice := m.LastPrice
	if mid, ok := book.MidPrice(); ok {
		yesPrice = int(mid + 0.5)
	}

	modelProb, ok := s.model.Probability(m.Ticker)
	if ok {
		edge := s.pricing.EdgeFor(modelProb, yesPrice, th.Direction)
		if edge.Adjusted < s.cfg.InvalidationEdgeThreshold {
			return fmt.Sprintf("edge dropped to %.2f%%, below threshold", edge.Adjusted*100), true
		}
	}

	if th.AvgFillPrice.Sign() > 0 {
		ownPrice := yesPrice
		if th.Direction == types.No {
			ownPrice = 100 - yesPrice
		}
		change, _ := decimal.NewFromInt(int64(ownPrice)).
			Sub(th.AvgFillPrice).Div(th.AvgFillPrice).Float64()
		if change < -s.cfg.InvalidationPriceMovePct {
			return fmt.Sprintf("adverse price move: %.1f%%", change*100), true
		}
	}

	if m.TimeToClose(s.now()) < time.Hour {
		return "market closing soon", true
	}
	return "", false
}

// OnFill routes a fill on a linked order back into its thesis.
func (s *ValueStrategy) OnFill(f types.Fill) {
	th, ok := s.theses.ByOrder(f.OrderID)
	if !ok {
		return
	}
	if err := s.theses.RecordFill(th.ID, f.Count, f.Price); err != nil {
		s.logger.Warn("fill not recorded", "thesis", th.ID, "error", err)
	}
}

// OnSettle realizes every live thesis on a settled market. yesWon reports
// the settlement outcome; unfilled drafts expire instead.
func (s *ValueStrategy) OnSettle(ticker string, yesWon bool) {
	exitPrice := 0
	if yesWon {
		exitPrice = 100
	}

	for _, th := range s.theses.ByMarket(ticker) {
		switch th.State {
		case thesis.StateActive:
			correct := (th.Direction == types.Yes) == yesWon
			if err := s.theses.Realize(th.ID, exitPrice, correct); err != nil {
				s.logger.Warn("settlement not realized", "thesis", th.ID, "error", err)
			}
		case thesis.StateDraft:
			if err := s.theses.Expire(th.ID); err != nil {
				s.logger.Warn("draft not expired", "thesis", th.ID, "error", err)
			}
		}
	}
}
