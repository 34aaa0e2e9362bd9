// tracker.go owns the in-memory thesis set and its two secondary indexes
// (by market ticker, by order id). Every mutation is persisted through the
// atomic store before the tracker's maps are updated.
package thesis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"riskcore/internal/config"
	"riskcore/pkg/types"
)

const cleanupInterval = time.Hour

// CreateParams carries everything needed for a new DRAFT thesis.
type CreateParams struct {
	Ticker       string
	Hypothesis   string
	Direction    types.ContractSide
	ModelProb    float64
	MarketProb   float64
	AdjustedEdge float64
	EntryTarget  int // cents, this side
	ExitTarget   int
	Signals      []string
}

// Tracker manages thesis lifecycle, persistence, and indexes.
type Tracker struct {
	mu       sync.Mutex
	theses   map[string]*Thesis
	byMarket map[string][]string // ticker -> thesis ids
	byOrder  map[string]string   // order id -> thesis id

	store    *Store
	feeCents decimal.Decimal // flat round-trip fee per contract
	ttl      time.Duration   // non-ACTIVE retention

	logger *slog.Logger
	now    func() time.Time
}

// NewTracker opens the store, rescans persisted theses, and rebuilds the
// indexes.
func NewTracker(cfg config.ThesisConfig, logger *slog.Logger) (*Tracker, error) {
	store, err := OpenStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	t := &Tracker{
		theses:   make(map[string]*Thesis),
		byMarket: make(map[string][]string),
		byOrder:  make(map[string]string),
		store:    store,
		feeCents: decimal.NewFromInt(int64(cfg.FeeCents)),
		ttl:      time.Duration(cfg.CleanupTTLDay) * 24 * time.Hour,
		logger:   logger.With("component", "thesis"),
		now:      time.Now,
	}

	loaded, errs := store.LoadAll()
	for _, e := range errs {
		t.logger.Warn("skipping unreadable thesis document", "error", e)
	}
	for _, th := range loaded {
		t.indexLocked(th)
	}
	t.logger.Info("thesis store loaded", "count", len(loaded))
	return t, nil
}

// indexLocked inserts a thesis into the maps. Caller holds mu (or is still
// single-threaded in the constructor).
func (t *Tracker) indexLocked(th *Thesis) {
	t.theses[th.ID] = th
	t.byMarket[th.Ticker] = append(t.byMarket[th.Ticker], th.ID)
	for _, oid := range th.OrderIDs {
		t.byOrder[oid] = th.ID
	}
}

// Create persists and returns a new DRAFT thesis.
func (t *Tracker) Create(p CreateParams) (*Thesis, error) {
	now := t.now()
	th := &Thesis{
		ID:           uuid.NewString(),
		Ticker:       p.Ticker,
		Hypothesis:   p.Hypothesis,
		Direction:    p.Direction,
		ModelProb:    p.ModelProb,
		MarketProb:   p.MarketProb,
		AdjustedEdge: p.AdjustedEdge,
		EntryTarget:  p.EntryTarget,
		ExitTarget:   p.ExitTarget,
		Signals:      p.Signals,
		State:        StateDraft,
		AvgFillPrice: decimal.Zero,
		RealizedPnL:  decimal.Zero,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := t.store.Save(th); err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.indexLocked(th)
	t.mu.Unlock()

	t.logger.Info("thesis created",
		"id", th.ID, "ticker", th.Ticker, "direction", th.Direction,
		"model_prob", th.ModelProb, "edge", th.AdjustedEdge)
	return th, nil
}

// Get returns a copy of the thesis, false when unknown.
func (t *Tracker) Get(id string) (Thesis, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	th, ok := t.theses[id]
	if !ok {
		return Thesis{}, false
	}
	return *th, true
}

// ByOrder resolves an order id to its thesis.
func (t *Tracker) ByOrder(orderID string) (Thesis, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.byOrder[orderID]
	if !ok {
		return Thesis{}, false
	}
	return *t.theses[id], true
}

// ByMarket returns every thesis for a ticker, oldest first.
func (t *Tracker) ByMarket(ticker string) []Thesis {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := t.byMarket[ticker]
	out := make([]Thesis, 0, len(ids))
	for _, id := range ids {
		out = append(out, *t.theses[id])
	}
	return out
}

// ActiveForMarket returns the first DRAFT or ACTIVE thesis for a ticker.
func (t *Tracker) ActiveForMarket(ticker string) (Thesis, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range t.byMarket[ticker] {
		th := t.theses[id]
		if !th.State.Terminal() {
			return *th, true
		}
	}
	return Thesis{}, false
}

// LinkOrder records an order id against a thesis and in the reverse index.
func (t *Tracker) LinkOrder(id, orderID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	th, ok := t.theses[id]
	if !ok {
		return fmt.Errorf("thesis %s: unknown", id)
	}
	th.OrderIDs = append(th.OrderIDs, orderID)
	th.UpdatedAt = t.now()
	t.byOrder[orderID] = id
	return t.store.Save(th)
}

// RecordFill updates the volume-weighted average fill price; the first fill
// activates a DRAFT thesis.
func (t *Tracker) RecordFill(id string, count int64, priceCents int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	th, ok := t.theses[id]
	if !ok {
		return fmt.Errorf("thesis %s: unknown", id)
	}
	if th.State.Terminal() {
		return fmt.Errorf("thesis %s: fill on terminal state %s", id, th.State)
	}
	if count <= 0 {
		return fmt.Errorf("thesis %s: non-positive fill count %d", id, count)
	}

	prevNotional := th.AvgFillPrice.Mul(decimal.NewFromInt(th.FilledCount))
	fillNotional := decimal.NewFromInt(count).Mul(decimal.NewFromInt(int64(priceCents)))
	th.FilledCount += count
	th.AvgFillPrice = prevNotional.Add(fillNotional).Div(decimal.NewFromInt(th.FilledCount))

	if th.State == StateDraft {
		th.State = StateActive
		t.logger.Info("thesis activated", "id", id, "ticker", th.Ticker)
	}
	th.UpdatedAt = t.now()
	return t.store.Save(th)
}

// Invalidate terminally abandons a thesis with a reason.
func (t *Tracker) Invalidate(id, reason string) error {
	return t.terminate(id, StateInvalidated, reason)
}

// Expire terminally closes a thesis whose market ended without settlement
// interest.
func (t *Tracker) Expire(id string) error {
	return t.terminate(id, StateExpired, "")
}

func (t *Tracker) terminate(id string, state State, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	th, ok := t.theses[id]
	if !ok {
		return fmt.Errorf("thesis %s: unknown", id)
	}
	if th.State.Terminal() {
		return fmt.Errorf("thesis %s: already %s", id, th.State)
	}
	th.State = state
	th.InvalidationReason = reason
	th.UpdatedAt = t.now()

	t.logger.Info("thesis closed", "id", id, "state", state, "reason", reason)
	return t.store.Save(th)
}

// Realize settles a filled thesis. exitPrice is YES-quoted cents (100/0 at
// settlement, or the sale price on early exit). P&L per contract is the
// side-adjusted price change minus the flat round-trip fee.
func (t *Tracker) Realize(id string, exitPrice int, outcomeCorrect bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	th, ok := t.theses[id]
	if !ok {
		return fmt.Errorf("thesis %s: unknown", id)
	}
	if th.State != StateActive {
		return fmt.Errorf("thesis %s: realize from %s", id, th.State)
	}

	exitOwnSide := decimal.NewFromInt(int64(exitPrice))
	if th.Direction == types.No {
		exitOwnSide = decimal.NewFromInt(100 - int64(exitPrice))
	}
	perContract := exitOwnSide.Sub(th.AvgFillPrice).Sub(t.feeCents)
	pnlCents := perContract.Mul(decimal.NewFromInt(th.FilledCount))

	th.State = StateRealized
	th.ExitPrice = &exitPrice
	th.RealizedPnL = pnlCents.Div(decimal.NewFromInt(100))
	th.OutcomeCorrect = &outcomeCorrect
	th.UpdatedAt = t.now()

	t.logger.Info("thesis realized",
		"id", id, "ticker", th.Ticker, "pnl", th.RealizedPnL.StringFixed(2),
		"correct", outcomeCorrect)
	return t.store.Save(th)
}

// CalibrationBucket aggregates realized theses in one probability band.
type CalibrationBucket struct {
	Low, High     int // percent bounds, [Low, High)
	Count         int
	Correct       int
	Accuracy      float64
	MeanPredicted float64
}

// CalibrationReport summarizes prediction quality over realized theses.
type CalibrationReport struct {
	Buckets  [5]CalibrationBucket
	Brier    float64
	Realized int
}

// Calibration buckets realized theses into five probability bands and
// computes the Brier score mean((predicted − outcome)²).
func (t *Tracker) Calibration() CalibrationReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	var report CalibrationReport
	for i := range report.Buckets {
		report.Buckets[i].Low = i * 20
		report.Buckets[i].High = (i + 1) * 20
	}

	sumSq := 0.0
	sumPred := [5]float64{}
	for _, th := range t.theses {
		if th.State != StateRealized || th.OutcomeCorrect == nil {
			continue
		}
		report.Realized++

		idx := int(th.ModelProb * 100 / 20)
		if idx > 4 {
			idx = 4
		}
		b := &report.Buckets[idx]
		b.Count++
		sumPred[idx] += th.ModelProb
		outcome := 0.0
		if *th.OutcomeCorrect {
			b.Correct++
			outcome = 1.0
		}
		diff := th.ModelProb - outcome
		sumSq += diff * diff
	}

	for i := range report.Buckets {
		b := &report.Buckets[i]
		if b.Count > 0 {
			b.Accuracy = float64(b.Correct) / float64(b.Count)
			b.MeanPredicted = sumPred[i] / float64(b.Count)
		}
	}
	if report.Realized > 0 {
		report.Brier = sumSq / float64(report.Realized)
	}
	return report
}

// Cleanup removes non-ACTIVE theses older than the retention TTL, both from
// disk and the indexes. Returns the number removed.
func (t *Tracker) Cleanup() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.ttl)
	removed := 0
	for id, th := range t.theses {
		if th.State == StateActive || th.UpdatedAt.After(cutoff) {
			continue
		}
		if err := t.store.Delete(id); err != nil {
			t.logger.Warn("thesis cleanup failed", "id", id, "error", err)
			continue
		}
		delete(t.theses, id)
		t.dropFromIndexesLocked(th)
		removed++
	}
	if removed > 0 {
		t.logger.Info("thesis cleanup", "removed", removed)
	}
	return removed
}

func (t *Tracker) dropFromIndexesLocked(th *Thesis) {
	ids := t.byMarket[th.Ticker]
	kept := ids[:0]
	for _, id := range ids {
		if id != th.ID {
			kept = append(kept, id)
		}
	}
	if len(kept) == 0 {
		delete(t.byMarket, th.Ticker)
	} else {
		t.byMarket[th.Ticker] = kept
	}
	for _, oid := range th.OrderIDs {
		delete(t.byOrder, oid)
	}
}

// Run sweeps expired documents until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Cleanup()
		}
	}
}
