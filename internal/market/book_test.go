package market

import (
	"testing"

	"riskcore/pkg/types"
)

func snapshotBook() *Book {
	b := NewBook("FED-DEC")
	b.ApplySnapshot(&types.Orderbook{
		Ticker: "FED-DEC",
		Yes:    []types.OrderbookLevel{{42, 100}, {40, 200}, {35, 500}},
		No:     []types.OrderbookLevel{{55, 150}, {50, 300}},
	})
	return b
}

func TestBookStartsStale(t *testing.T) {
	t.Parallel()

	b := NewBook("FED-DEC")
	if !b.Stale() {
		t.Error("new book should be stale until first snapshot")
	}
	if _, _, ok := b.BestBidAsk(); ok {
		t.Error("stale book must not report a best bid/ask")
	}
}

func TestBookBestBidAsk(t *testing.T) {
	t.Parallel()

	b := snapshotBook()
	bid, ask, ok := b.BestBidAsk()
	if !ok {
		t.Fatal("expected usable book")
	}
	if bid != 42 {
		t.Errorf("best bid = %d, want 42", bid)
	}
	// Best NO bid 55 implies YES ask at 100−55 = 45
	if ask != 45 {
		t.Errorf("best ask = %d, want 45", ask)
	}

	mid, ok := b.MidPrice()
	if !ok || mid != 43.5 {
		t.Errorf("mid = %v (%v), want 43.5", mid, ok)
	}
}

func TestBookApplyDelta(t *testing.T) {
	t.Parallel()

	b := snapshotBook()

	// Lift the whole 42 level
	b.ApplyDelta(types.WSOrderbookDelta{Ticker: "FED-DEC", Side: types.Yes, Price: 42, Delta: -100})
	bid, _, ok := b.BestBidAsk()
	if !ok || bid != 40 {
		t.Errorf("bid after removal = %d (%v), want 40", bid, ok)
	}

	// New best bid appears
	b.ApplyDelta(types.WSOrderbookDelta{Ticker: "FED-DEC", Side: types.Yes, Price: 43, Delta: 50})
	bid, _, _ = b.BestBidAsk()
	if bid != 43 {
		t.Errorf("bid after add = %d, want 43", bid)
	}
}

func TestBookMarkStale(t *testing.T) {
	t.Parallel()

	b := snapshotBook()
	b.MarkStale()

	if _, _, ok := b.BestBidAsk(); ok {
		t.Error("stale book must not report prices")
	}

	// Deltas while stale are dropped
	b.ApplyDelta(types.WSOrderbookDelta{Side: types.Yes, Price: 60, Delta: 100})

	// Snapshot restores service
	b.ApplySnapshot(&types.Orderbook{
		Yes: []types.OrderbookLevel{{41, 100}},
		No:  []types.OrderbookLevel{{56, 100}},
	})
	bid, ask, ok := b.BestBidAsk()
	if !ok || bid != 41 || ask != 44 {
		t.Errorf("after recovery bid/ask = %d/%d (%v), want 41/44", bid, ask, ok)
	}
}

func TestBookSpreadPct(t *testing.T) {
	t.Parallel()

	b := snapshotBook()
	spread, ok := b.SpreadPct()
	if !ok {
		t.Fatal("expected usable book")
	}
	// (45−42)/43.5
	want := 3.0 / 43.5
	if diff := spread - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("spread pct = %v, want %v", spread, want)
	}
}

func TestBookLiquidityScore(t *testing.T) {
	t.Parallel()

	b := snapshotBook()
	score, ok := b.LiquidityScore()
	if !ok {
		t.Fatal("expected usable book")
	}
	// Within 5¢ of touch: YES 42(100)+40(200), NO 55(150)+50(300) → 750/1000
	if diff := score - 0.75; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("liquidity score = %v, want 0.75", score)
	}
}

func TestBookDepthOrdering(t *testing.T) {
	t.Parallel()

	b := snapshotBook()
	levels := b.Depth(2)
	if len(levels) != 2 {
		t.Fatalf("depth levels = %d, want 2", len(levels))
	}
	if levels[0][0] != 42 || levels[1][0] != 40 {
		t.Errorf("levels = %v, want best-first 42 then 40", levels)
	}
}
