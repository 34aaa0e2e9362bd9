// sizing.go implements Kelly-based position sizing.
//
// The Kelly fraction is a probability-space quantity and is computed in
// floating point; all share math against account equity runs in decimals.
package risk

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"riskcore/internal/config"
)

// SizingMode selects how aggressively the Kelly fraction is applied.
type SizingMode string

const (
	FullKelly          SizingMode = "full"
	HalfKelly          SizingMode = "half"
	QuarterKelly       SizingMode = "quarter"
	VolatilityAdjusted SizingMode = "volatility"
)

// TradeStats summarizes the historical performance the sizer works from.
type TradeStats struct {
	WinRate     float64 // p, in [0, 1]
	AvgWin      float64 // average winning trade, dollars
	AvgLoss     float64 // average losing trade, dollars (positive)
	SampleSize  int
	RealizedVol float64 // annualized, for the volatility mode
}

// SizeResult is the sizer's recommendation.
type SizeResult struct {
	Shares           int64
	KellyFraction    float64 // raw clamped f*
	PositionFraction float64 // fraction of equity actually applied
	RiskPerShare     decimal.Decimal
	Warnings         []string
}

// PositionSizer converts trade statistics and a stop distance into a share
// count bounded by capital, risk tolerance, and the per-position cap.
type PositionSizer struct {
	mode            SizingMode
	maxPositionPct  float64
	maxTotalRiskPct decimal.Decimal
	defaultStopPct  decimal.Decimal
	minSample       int
	targetVol       float64
	logger          *slog.Logger
}

// NewPositionSizer builds a sizer from config.
func NewPositionSizer(cfg config.SizingConfig, logger *slog.Logger) *PositionSizer {
	mode := SizingMode(strings.ToLower(cfg.Mode))
	switch mode {
	case FullKelly, HalfKelly, QuarterKelly, VolatilityAdjusted:
	default:
		mode = HalfKelly
	}
	return &PositionSizer{
		mode:            mode,
		maxPositionPct:  cfg.MaxPositionPct,
		maxTotalRiskPct: decimal.NewFromFloat(cfg.MaxTotalRiskPct),
		defaultStopPct:  decimal.NewFromFloat(cfg.DefaultStopPct),
		minSample:       cfg.MinSampleTrades,
		targetVol:       cfg.TargetVol,
		logger:          logger.With("component", "sizer"),
	}
}

// Kelly returns the clamped Kelly fraction f* = (p·b − (1−p)) / b with
// b = avg_win / avg_loss, clamped to [0, max_position_pct].
func (s *PositionSizer) Kelly(stats TradeStats) float64 {
	if stats.AvgLoss <= 0 || stats.AvgWin <= 0 {
		return 0
	}
	b := stats.AvgWin / stats.AvgLoss
	f := (stats.WinRate*b - (1 - stats.WinRate)) / b
	if f < 0 {
		return 0
	}
	if f > s.maxPositionPct {
		return s.maxPositionPct
	}
	return f
}

// fraction applies the sizing mode and small-sample confidence scaling.
func (s *PositionSizer) fraction(stats TradeStats) (float64, []string) {
	var warnings []string

	f := s.Kelly(stats)
	switch s.mode {
	case HalfKelly:
		f *= 0.5
	case QuarterKelly:
		f *= 0.25
	case VolatilityAdjusted:
		f *= 0.5
		if stats.RealizedVol > 0 && s.targetVol > 0 {
			adj := s.targetVol / stats.RealizedVol
			if adj > 2.0 {
				adj = 2.0
			}
			f *= adj
		}
	}

	if s.minSample > 0 && stats.SampleSize < s.minSample {
		confidence := float64(stats.SampleSize) / float64(s.minSample)
		f *= confidence
		warnings = append(warnings, fmt.Sprintf(
			"small sample: %d trades < %d, confidence scaled to %.2f",
			stats.SampleSize, s.minSample, confidence))
	}

	return f, warnings
}

// Size computes the recommended share count for an entry/stop pair.
// stopLoss may be zero; the default stop distance (2% of entry) applies.
func (s *PositionSizer) Size(
	equity, entry, stopLoss decimal.Decimal,
	stats TradeStats,
) SizeResult {
	result := SizeResult{}
	if equity.Sign() <= 0 || entry.Sign() <= 0 {
		result.Warnings = append(result.Warnings, "no sizable capital")
		return result
	}

	f, warnings := s.fraction(stats)
	result.KellyFraction = s.Kelly(stats)
	result.PositionFraction = f
	result.Warnings = warnings
	if f <= 0 {
		result.Warnings = append(result.Warnings, "no positive edge: recommended size 0")
		return result
	}

	riskPerShare := entry.Sub(stopLoss).Abs()
	if stopLoss.Sign() <= 0 {
		riskPerShare = entry.Mul(s.defaultStopPct)
		result.Warnings = append(result.Warnings, "no stop provided, using default stop distance")
	}
	result.RiskPerShare = riskPerShare

	capitalBound := decimal.NewFromFloat(f).Mul(equity).Div(entry)
	riskBound := capitalBound
	if riskPerShare.Sign() > 0 && s.maxTotalRiskPct.Sign() > 0 {
		riskBound = s.maxTotalRiskPct.Mul(equity).Div(riskPerShare)
	}

	shares := capitalBound
	boundNote := ""
	if riskBound.LessThan(capitalBound) {
		shares = riskBound
		boundNote = "position limited by risk tolerance"
	}

	cap := decimal.NewFromFloat(s.maxPositionPct).Mul(equity).Div(entry)
	if shares.GreaterThan(cap) {
		shares = cap
		boundNote = "position limited by max_position_pct"
	}
	if boundNote != "" {
		result.Warnings = append(result.Warnings, boundNote)
	}

	n := shares.Floor().IntPart()
	if n < 1 {
		n = 1
	}
	result.Shares = n
	return result
}
