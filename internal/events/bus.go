// Package events carries the core's structured notifications to whatever
// transport the embedder wires up. Publishing never blocks: each subscriber
// has a buffered channel and slow consumers lose events rather than stall
// the trading path.
package events

import (
	"log/slog"
	"sync"
	"time"

	"riskcore/pkg/types"
)

// Kind tags an event payload.
type Kind string

const (
	KindAlert               Kind = "alert"
	KindApprovalNeeded      Kind = "approval_needed"
	KindApprovalResolved    Kind = "approval_resolved"
	KindDrawdownLevelChange Kind = "drawdown_level_change"
	KindLiquidationRequired Kind = "liquidation_required"
)

// Event is one published notification. Data holds the payload type matching
// the Kind: types.Alert, types.ApprovalRequest, DrawdownChange, or
// Liquidation.
type Event struct {
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// DrawdownChange reports a protection-level transition.
type DrawdownChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// Liquidation carries the orders a drawdown level demands.
type Liquidation struct {
	Level  string              `json:"level"`
	Orders []types.OrderIntent `json:"orders"`
}

type subscriber struct {
	ch    chan Event
	kinds map[Kind]bool // empty = all kinds
}

// Bus fans events out to subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]subscriber
	nextID int
	logger *slog.Logger
	now    func() time.Time
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[int]subscriber),
		logger: logger.With("component", "events"),
		now:    time.Now,
	}
}

// Subscribe registers a consumer with the given channel buffer. With no
// kinds listed the subscriber receives everything. The returned cancel
// function unregisters and closes the channel.
func (b *Bus) Subscribe(buffer int, kinds ...Kind) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	sub := subscriber{ch: make(chan Event, buffer)}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if s, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(s.ch)
		}
		b.mu.Unlock()
	}
	return sub.ch, cancel
}

// Publish delivers an event to every matching subscriber without blocking.
func (b *Bus) Publish(kind Kind, data any) {
	evt := Event{Kind: kind, Timestamp: b.now(), Data: data}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.kinds != nil && !sub.kinds[kind] {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			b.logger.Warn("subscriber behind, dropping event", "kind", kind)
		}
	}
}

// Alert publishes a P&L or risk alert.
func (b *Bus) Alert(a types.Alert) { b.Publish(KindAlert, a) }

// ApprovalNeeded publishes a queued approval request.
func (b *Bus) ApprovalNeeded(r types.ApprovalRequest) { b.Publish(KindApprovalNeeded, r) }

// ApprovalResolved publishes a resolved approval request.
func (b *Bus) ApprovalResolved(r types.ApprovalRequest) { b.Publish(KindApprovalResolved, r) }

// DrawdownLevel publishes a protection-level transition.
func (b *Bus) DrawdownLevel(old, new string) {
	b.Publish(KindDrawdownLevelChange, DrawdownChange{Old: old, New: new})
}

// LiquidationRequired publishes the orders a drawdown level demands.
func (b *Bus) LiquidationRequired(level string, orders []types.OrderIntent) {
	b.Publish(KindLiquidationRequired, Liquidation{Level: level, Orders: orders})
}
