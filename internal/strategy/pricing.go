// Package strategy evaluates prediction markets for model-vs-market
// mispricing and sizes entries with fee-aware Kelly fractions.
//
// Prices are integer cents on the YES side unless noted. Edge and Kelly
// math runs in float64 (probability space); dollar amounts use decimals.
package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"riskcore/pkg/types"
)

// FeeSchedule is the venue's flat per-contract fee model: a fixed fee on
// entry and again on exit or settlement.
type FeeSchedule struct {
	EntryCents int
	ExitCents  int
}

// FlatFees splits a round-trip fee evenly between entry and exit.
func FlatFees(roundTripCents int) FeeSchedule {
	half := roundTripCents / 2
	return FeeSchedule{EntryCents: half, ExitCents: roundTripCents - half}
}

// RoundTrip returns the total per-contract fee for entering and exiting.
func (f FeeSchedule) RoundTrip() int { return f.EntryCents + f.ExitCents }

// EntryCost returns the total entry fee in cents for count contracts.
func (f FeeSchedule) EntryCost(count int64) int64 { return count * int64(f.EntryCents) }

// ExitCost returns the total exit fee in cents for count contracts.
func (f FeeSchedule) ExitCost(count int64) int64 { return count * int64(f.ExitCents) }

// Edge is the fee-adjusted advantage of buying one side at a given price.
type Edge struct {
	Side      types.ContractSide
	CostCents int // entry cost per contract on this side
	Raw       float64
	FeeImpact float64
	Adjusted  float64
}

// Recommendation is the outcome of a trade analysis.
type Recommendation string

const (
	RecTrade   Recommendation = "TRADE"
	RecNoTrade Recommendation = "NO_TRADE"
)

// Analysis is a complete trade evaluation for the better direction.
type Analysis struct {
	Best           Edge
	Kelly          float64
	Contracts      int64
	ExpectedValue  decimal.Decimal // dollars, for Contracts (or one contract)
	Recommendation Recommendation
	Reason         string
}

// PricingEngine computes fee-adjusted edge, Kelly fractions, and expected
// value for binary contracts.
type PricingEngine struct {
	fees     FeeSchedule
	maxKelly float64
	minEdge  float64
}

// NewPricingEngine builds an engine. maxKelly caps the Kelly fraction
// (fractional Kelly); minEdge is the recommendation gate.
func NewPricingEngine(fees FeeSchedule, maxKelly, minEdge float64) *PricingEngine {
	return &PricingEngine{fees: fees, maxKelly: maxKelly, minEdge: minEdge}
}

// EdgeFor returns the fee-adjusted edge of buying side when the YES side
// trades at yesPrice cents.
//
// Raw edge is model probability minus the side's implied probability. The
// fee impact is the round-trip fee divided by the profit on a win: a trade
// only clears fees when the raw edge exceeds fee / win_amount.
func (e *PricingEngine) EdgeFor(modelProb float64, yesPrice int, side types.ContractSide) Edge {
	edge := Edge{Side: side}
	marketProb := float64(yesPrice) / 100

	if side == types.Yes {
		edge.CostCents = yesPrice
		edge.Raw = modelProb - marketProb
		if yesPrice < 100 {
			edge.FeeImpact = float64(e.fees.RoundTrip()) / float64(100-yesPrice)
		} else {
			edge.FeeImpact = 1
		}
	} else {
		edge.CostCents = 100 - yesPrice
		edge.Raw = (1 - modelProb) - (1 - marketProb)
		if yesPrice > 0 {
			edge.FeeImpact = float64(e.fees.RoundTrip()) / float64(yesPrice)
		} else {
			edge.FeeImpact = 1
		}
	}
	edge.Adjusted = edge.Raw - edge.FeeImpact
	return edge
}

// Kelly returns the capped Kelly fraction f* = (p·b − q) / b for buying
// side at the current YES price, with odds b computed net of fees.
func (e *PricingEngine) Kelly(modelProb float64, yesPrice int, side types.ContractSide) float64 {
	var p, b float64
	if side == types.Yes {
		p = modelProb
		netWin := 100 - yesPrice - e.fees.RoundTrip()
		if netWin <= 0 || yesPrice <= 0 {
			return 0
		}
		b = float64(netWin) / float64(yesPrice)
	} else {
		p = 1 - modelProb
		noPrice := 100 - yesPrice
		netWin := yesPrice - e.fees.RoundTrip()
		if netWin <= 0 || noPrice <= 0 {
			return 0
		}
		b = float64(netWin) / float64(noPrice)
	}

	kelly := (p*b - (1 - p)) / b
	if kelly < 0 {
		return 0
	}
	if kelly > e.maxKelly {
		return e.maxKelly
	}
	return kelly
}

// ExpectedValue returns the expected value in dollars of holding count
// contracts of side to settlement, fees included on both legs.
func (e *PricingEngine) ExpectedValue(modelProb float64, yesPrice int, count int64, side types.ContractSide) decimal.Decimal {
	entryFee := e.fees.EntryCost(count)
	exitFee := e.fees.ExitCost(count)

	p := modelProb
	price := int64(yesPrice)
	if side == types.No {
		p = 1 - modelProb
		price = int64(100 - yesPrice)
	}

	cost := price*count + entryFee
	winPayout := 100*count - exitFee

	evCents := p*float64(winPayout-cost) + (1-p)*float64(-cost)
	return decimal.NewFromFloat(evCents).Shift(-2)
}

// ContractCount sizes a position: Kelly fraction of bankroll, capped by
// maxPosition, converted to whole contracts. A position that cannot afford
// one contract sizes to zero.
func (e *PricingEngine) ContractCount(
	modelProb float64, yesPrice int, side types.ContractSide,
	bankroll, maxPosition decimal.Decimal,
) int64 {
	kelly := e.Kelly(modelProb, yesPrice, side)
	if kelly <= 0 || bankroll.Sign() <= 0 {
		return 0
	}

	position := bankroll.Mul(decimal.NewFromFloat(kelly))
	if position.GreaterThan(maxPosition) {
		position = maxPosition
	}

	costCents := int64(yesPrice)
	if side == types.No {
		costCents = int64(100 - yesPrice)
	}
	if costCents <= 0 {
		return 0
	}
	contractPrice := decimal.New(costCents, -2)

	contracts := position.Div(contractPrice).Floor().IntPart()
	if contracts < 1 {
		return 0
	}
	return contracts
}

// Analyze compares buying YES against buying NO at the current price,
// keeps the direction with the larger edge, and gates the recommendation
// on minimum edge, positive Kelly, and a nonzero size.
func (e *PricingEngine) Analyze(
	modelProb float64, yesPrice int,
	bankroll, maxPosition decimal.Decimal,
) Analysis {
	yes := e.EdgeFor(modelProb, yesPrice, types.Yes)
	no := e.EdgeFor(modelProb, yesPrice, types.No)

	best := yes
	if no.Adjusted > yes.Adjusted {
		best = no
	}

	a := Analysis{
		Best:  best,
		Kelly: e.Kelly(modelProb, yesPrice, best.Side),
	}
	a.Contracts = e.ContractCount(modelProb, yesPrice, best.Side, bankroll, maxPosition)

	evCount := a.Contracts
	if evCount == 0 {
		evCount = 1
	}
	a.ExpectedValue = e.ExpectedValue(modelProb, yesPrice, evCount, best.Side)

	switch {
	case best.Adjusted < 0:
		a.Recommendation = RecNoTrade
		a.Reason = fmt.Sprintf("negative edge (%.2f%%)", best.Adjusted*100)
	case best.Adjusted < e.minEdge:
		a.Recommendation = RecNoTrade
		a.Reason = fmt.Sprintf("edge %.2f%% below minimum %.2f%%",
			best.Adjusted*100, e.minEdge*100)
	case a.Kelly <= 0:
		a.Recommendation = RecNoTrade
		a.Reason = "kelly criterion suggests no position"
	case a.Contracts == 0 && bankroll.Sign() > 0:
		a.Recommendation = RecNoTrade
		a.Reason = "position size rounds to zero"
	default:
		a.Recommendation = RecTrade
		a.Reason = fmt.Sprintf("edge %.2f%% exceeds minimum", best.Adjusted*100)
	}
	return a
}
