// Package market provides local order book management and market discovery
// for the prediction venue.
//
// Book mirrors the venue orderbook for a single binary market. It is updated
// from two sources:
//   - REST snapshots via ApplySnapshot (initial load and gap recovery)
//   - WebSocket deltas via ApplyDelta (incremental updates)
//
// Deltas carry a per-market sequence number. Book itself does not track
// sequence continuity — the feed does — but it exposes MarkStale so the
// owner can flag the book unusable after a gap until the next snapshot.
//
// The Book is concurrency-safe (RWMutex protected) and provides derived
// values like best bid/ask, spread, and a depth-based liquidity score for
// the strategy layer.
package market

import (
	"sort"
	"sync"
	"time"

	"riskcore/pkg/types"
)

// liquidityDepthCents is the price band around the touch that counts toward
// the liquidity score; liquidityDepthNorm is the contract depth that
// saturates the score at 1.0.
const (
	liquidityDepthCents = 5
	liquidityDepthNorm  = 1000.0
)

// Book maintains a local mirror of one prediction market's orderbook.
// Levels are stored as price → contract count, per side. YES asks are not
// stored directly: a resting NO bid at price p implies a YES ask at 100−p.
type Book struct {
	mu     sync.RWMutex
	ticker string
	yes    map[int]int // resting YES bids: price cents → contracts
	no     map[int]int // resting NO bids
	stale  bool        // true until a snapshot arrives, or after a seq gap
	update time.Time
}

// NewBook creates an empty book. It starts stale until the first snapshot.
func NewBook(ticker string) *Book {
	return &Book{
		ticker: ticker,
		yes:    make(map[int]int),
		no:     make(map[int]int),
		stale:  true,
	}
}

// Ticker returns the market ticker this book mirrors.
func (b *Book) Ticker() string { return b.ticker }

// ApplySnapshot replaces the book with a REST snapshot and clears staleness.
func (b *Book) ApplySnapshot(ob *types.Orderbook) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.yes = make(map[int]int, len(ob.Yes))
	for _, lvl := range ob.Yes {
		if lvl[1] > 0 {
			b.yes[lvl[0]] = lvl[1]
		}
	}
	b.no = make(map[int]int, len(ob.No))
	for _, lvl := range ob.No {
		if lvl[1] > 0 {
			b.no[lvl[0]] = lvl[1]
		}
	}
	b.stale = false
	b.update = time.Now()
}

// ApplyDelta applies one incremental change. Deltas received while the book
// is stale are dropped; the next snapshot supersedes them.
func (b *Book) ApplyDelta(d types.WSOrderbookDelta) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stale {
		return
	}

	side := b.yes
	if d.Side == types.No {
		side = b.no
	}
	next := side[d.Price] + d.Delta
	if next <= 0 {
		delete(side, d.Price)
	} else {
		side[d.Price] = next
	}
	b.update = time.Now()
}

// MarkStale flags the book unreliable. Callers invoke this on a sequence
// gap; derived values refuse to answer until ApplySnapshot runs again.
func (b *Book) MarkStale() {
	b.mu.Lock()
	b.stale = true
	b.mu.Unlock()
}

// Stale reports whether the book is awaiting a snapshot.
func (b *Book) Stale() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stale
}

// LastUpdated returns the timestamp of the last book change.
func (b *Book) LastUpdated() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.update
}

// BestBidAsk returns the best YES bid and implied YES ask in cents.
// ok is false when the book is stale or either side is empty.
func (b *Book) BestBidAsk() (bid, ask int, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.stale || len(b.yes) == 0 || len(b.no) == 0 {
		return 0, 0, false
	}

	for p := range b.yes {
		if p > bid {
			bid = p
		}
	}
	bestNoBid := 0
	for p := range b.no {
		if p > bestNoBid {
			bestNoBid = p
		}
	}
	return bid, 100 - bestNoBid, true
}

// MidPrice returns the YES mid price in cents.
func (b *Book) MidPrice() (float64, bool) {
	bid, ask, ok := b.BestBidAsk()
	if !ok {
		return 0, false
	}
	return float64(bid+ask) / 2, true
}

// SpreadPct returns (ask − bid) / mid. ok is false when the book is unusable.
func (b *Book) SpreadPct() (float64, bool) {
	bid, ask, ok := b.BestBidAsk()
	if !ok || bid+ask == 0 {
		return 0, false
	}
	mid := float64(bid+ask) / 2
	return float64(ask-bid) / mid, true
}

// LiquidityScore returns a [0, 1] depth score: total contracts resting
// within liquidityDepthCents of the touch on both sides, normalized so
// liquidityDepthNorm contracts saturate the score.
func (b *Book) LiquidityScore() (float64, bool) {
	bid, ask, ok := b.BestBidAsk()
	if !ok {
		return 0, false
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	depth := 0
	for p, n := range b.yes {
		if bid-p <= liquidityDepthCents {
			depth += n
		}
	}
	impliedAskFloor := 100 - ask // NO-bid price implying the best YES ask
	for p, n := range b.no {
		if impliedAskFloor-p <= liquidityDepthCents {
			depth += n
		}
	}

	score := float64(depth) / liquidityDepthNorm
	if score > 1 {
		score = 1
	}
	return score, true
}

// Depth returns the top n YES bid levels, best first, as [price, count].
func (b *Book) Depth(n int) []types.OrderbookLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()

	levels := make([]types.OrderbookLevel, 0, len(b.yes))
	for p, c := range b.yes {
		levels = append(levels, types.OrderbookLevel{p, c})
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i][0] > levels[j][0] })
	if n > 0 && len(levels) > n {
		levels = levels[:n]
	}
	return levels
}

// ImpliedProb returns the mid-derived YES probability in [0, 1].
func (b *Book) ImpliedProb() (float64, bool) {
	mid, ok := b.MidPrice()
	if !ok {
		return 0, false
	}
	return mid / 100, true
}
