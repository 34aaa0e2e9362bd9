// Package thesis implements the persisted trade-thesis lifecycle: every
// prediction-market entry is backed by a documented hypothesis, every fill
// links back to it, and settled theses feed calibration statistics.
package thesis

import (
	"time"

	"github.com/shopspring/decimal"

	"riskcore/pkg/types"
)

// State is the thesis lifecycle state. Transitions are monotonic:
// DRAFT → ACTIVE → REALIZED, with INVALIDATED/EXPIRED terminal from
// DRAFT or ACTIVE.
type State string

const (
	StateDraft       State = "DRAFT"
	StateActive      State = "ACTIVE"
	StateInvalidated State = "INVALIDATED"
	StateRealized    State = "REALIZED"
	StateExpired     State = "EXPIRED"
)

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	switch s {
	case StateInvalidated, StateRealized, StateExpired:
		return true
	}
	return false
}

// Thesis is one documented trade hypothesis. Prices are integer cents on the
// thesis's own contract side except ExitPrice, which is always YES-quoted.
type Thesis struct {
	ID         string             `json:"id"`
	Ticker     string             `json:"ticker"`
	Hypothesis string             `json:"hypothesis"`
	Direction  types.ContractSide `json:"direction"`

	ModelProb    float64  `json:"model_prob"`
	MarketProb   float64  `json:"market_prob"` // implied at creation
	AdjustedEdge float64  `json:"adjusted_edge"`
	EntryTarget  int      `json:"entry_target"` // cents, this side
	ExitTarget   int      `json:"exit_target"`  // cents, this side
	Signals      []string `json:"signals,omitempty"`

	State    State    `json:"state"`
	OrderIDs []string `json:"order_ids,omitempty"`

	FilledCount  int64           `json:"filled_count"`
	AvgFillPrice decimal.Decimal `json:"avg_fill_price"` // cents, volume-weighted

	ExitPrice          *int            `json:"exit_price,omitempty"` // YES cents
	RealizedPnL        decimal.Decimal `json:"realized_pnl"`         // dollars
	OutcomeCorrect     *bool           `json:"outcome_correct,omitempty"`
	InvalidationReason string          `json:"invalidation_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
