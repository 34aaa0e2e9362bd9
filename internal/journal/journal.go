// Package journal writes the append-only audit trail: every order lifecycle
// step, risk decision, and operator action lands as one JSON line in a
// per-UTC-day file. The journal is best-effort — a failed write logs an
// error and never blocks trading.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"riskcore/internal/config"
	"riskcore/pkg/types"
)

// EventType classifies a journal entry.
type EventType string

const (
	EventOrderAttempt         EventType = "order_attempt"
	EventOrderSubmitted       EventType = "order_submitted"
	EventOrderFilled          EventType = "order_filled"
	EventOrderRejected        EventType = "order_rejected"
	EventOrderCanceled        EventType = "order_canceled"
	EventOrderPendingApproval EventType = "order_pending_approval"
	EventOrderDryRun          EventType = "order_dry_run"

	EventRiskCheckPassed EventType = "risk_check_passed"
	EventRiskCheckFailed EventType = "risk_check_failed"

	EventKillSwitch     EventType = "kill_switch"
	EventCircuitBreaker EventType = "circuit_breaker"
	EventTradeDecision  EventType = "trade_decision"
	EventNote           EventType = "note"
)

// Entry is one journal record.
type Entry struct {
	EventID       string         `json:"event_id"`
	Timestamp     time.Time      `json:"timestamp"`
	Type          EventType      `json:"event_type"`
	SessionID     string         `json:"session_id"`
	Symbol        string         `json:"symbol,omitempty"`
	OrderID       string         `json:"order_id,omitempty"`
	ClientOrderID string         `json:"client_order_id,omitempty"`
	Success       *bool          `json:"success,omitempty"`
	Error         string         `json:"error,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
}

// Summary aggregates one day's activity.
type Summary struct {
	Day             string  `json:"day"`
	TotalEntries    int     `json:"total_entries"`
	OrdersAttempted int     `json:"orders_attempted"`
	OrdersSubmitted int     `json:"orders_submitted"`
	OrdersFilled    int     `json:"orders_filled"`
	OrdersRejected  int     `json:"orders_rejected"`
	FillRate        float64 `json:"fill_rate"`
	RejectionRate   float64 `json:"rejection_rate"`
	RiskFailures    int     `json:"risk_failures"`
}

// Filter narrows an Entries query. Zero values match everything.
type Filter struct {
	Type   EventType
	Symbol string
	Limit  int
}

// Journal appends structured events to day files. Safe for concurrent use.
// A disabled journal accepts every call and writes nothing.
type Journal struct {
	mu      sync.Mutex
	enabled bool
	dir     string
	session string
	logger  *slog.Logger
	now     func() time.Time
}

// New opens the journal directory. The session id ties together all entries
// written by one process lifetime.
func New(cfg config.JournalConfig, logger *slog.Logger) (*Journal, error) {
	j := &Journal{
		enabled: cfg.Enabled,
		dir:     cfg.Dir,
		session: uuid.NewString(),
		logger:  logger.With("component", "journal"),
		now:     time.Now,
	}
	if !cfg.Enabled {
		return j, nil
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	return j, nil
}

// Enabled reports whether entries are persisted.
func (j *Journal) Enabled() bool { return j.enabled }

func (j *Journal) dayFile(t time.Time) string {
	return filepath.Join(j.dir, t.UTC().Format("2006-01-02")+".jsonl")
}

func (j *Journal) write(e Entry) {
	if !j.enabled {
		return
	}

	line, err := json.Marshal(e)
	if err != nil {
		j.logger.Error("journal marshal failed", "type", e.Type, "error", err)
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.dayFile(e.Timestamp), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		j.logger.Error("journal open failed", "error", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		j.logger.Error("journal write failed", "error", err)
	}
}

// Record appends a generic entry and returns it.
func (j *Journal) Record(t EventType, symbol string, data map[string]any) Entry {
	e := Entry{
		EventID:   uuid.NewString(),
		Timestamp: j.now().UTC(),
		Type:      t,
		SessionID: j.session,
		Symbol:    symbol,
		Data:      data,
	}
	j.write(e)
	return e
}

// ————————————————————————————————————————————————————————————————————————
// Typed helpers
// ————————————————————————————————————————————————————————————————————————

func intentData(intent types.OrderIntent) map[string]any {
	data := map[string]any{
		"side":          intent.Side,
		"qty":           intent.Qty,
		"type":          intent.Type,
		"time_in_force": intent.TimeInForce,
	}
	if intent.LimitPrice != nil {
		data["limit_price"] = intent.LimitPrice.String()
	}
	if intent.StopPrice != nil {
		data["stop_price"] = intent.StopPrice.String()
	}
	return data
}

// OrderAttempt records an order entering the pipeline.
func (j *Journal) OrderAttempt(intent types.OrderIntent) {
	e := Entry{
		EventID:       uuid.NewString(),
		Timestamp:     j.now().UTC(),
		Type:          EventOrderAttempt,
		SessionID:     j.session,
		Symbol:        intent.Symbol,
		ClientOrderID: intent.ClientOrderID,
		Data:          intentData(intent),
	}
	j.write(e)
}

// OrderSubmitted records a broker acknowledgement.
func (j *Journal) OrderSubmitted(intent types.OrderIntent, order types.Order) {
	ok := true
	e := Entry{
		EventID:       uuid.NewString(),
		Timestamp:     j.now().UTC(),
		Type:          EventOrderSubmitted,
		SessionID:     j.session,
		Symbol:        intent.Symbol,
		OrderID:       order.ID,
		ClientOrderID: order.ClientOrderID,
		Success:       &ok,
		Data:          map[string]any{"status": order.Status},
	}
	j.write(e)
}

// OrderFilled records a fill event from the trading stream.
func (j *Journal) OrderFilled(symbol, orderID string, qty int64, price string) {
	ok := true
	e := Entry{
		EventID:   uuid.NewString(),
		Timestamp: j.now().UTC(),
		Type:      EventOrderFilled,
		SessionID: j.session,
		Symbol:    symbol,
		OrderID:   orderID,
		Success:   &ok,
		Data:      map[string]any{"qty": qty, "price": price},
	}
	j.write(e)
}

// OrderRejected records a venue or policy rejection.
func (j *Journal) OrderRejected(intent types.OrderIntent, reason string) {
	failed := false
	e := Entry{
		EventID:       uuid.NewString(),
		Timestamp:     j.now().UTC(),
		Type:          EventOrderRejected,
		SessionID:     j.session,
		Symbol:        intent.Symbol,
		ClientOrderID: intent.ClientOrderID,
		Success:       &failed,
		Error:         reason,
		Data:          intentData(intent),
	}
	j.write(e)
}

// RiskCheck records the outcome of a pre-trade pipeline run.
func (j *Journal) RiskCheck(symbol string, decision types.RiskDecision) {
	t := EventRiskCheckPassed
	if decision.Action == types.ActionReject {
		t = EventRiskCheckFailed
	}
	j.Record(t, symbol, map[string]any{
		"action":   decision.Action,
		"passed":   decision.Passed,
		"failed":   decision.Failed,
		"warnings": decision.Warnings,
	})
}

// KillSwitch records an operator halt or resume.
func (j *Journal) KillSwitch(active bool, reason string) {
	j.Record(EventKillSwitch, "", map[string]any{
		"active": active,
		"reason": reason,
	})
}

// CircuitBreaker records a breaker trip or reset.
func (j *Journal) CircuitBreaker(tripped bool, reason string) {
	j.Record(EventCircuitBreaker, "", map[string]any{
		"tripped": tripped,
		"reason":  reason,
	})
}

// TradeDecision records a strategy decision and its inputs.
func (j *Journal) TradeDecision(symbol, action, reason string, inputs map[string]any) {
	j.Record(EventTradeDecision, symbol, map[string]any{
		"action": action,
		"reason": reason,
		"inputs": inputs,
	})
}

// Note records a freeform operator annotation.
func (j *Journal) Note(text string) {
	j.Record(EventNote, "", map[string]any{"text": text})
}

// ————————————————————————————————————————————————————————————————————————
// Queries
// ————————————————————————————————————————————————————————————————————————

// Entries reads one UTC day's file, newest first, applying the filter.
// A missing day file yields an empty result.
func (j *Journal) Entries(day time.Time, f Filter) ([]Entry, error) {
	if !j.enabled {
		return nil, nil
	}

	file, err := os.Open(j.dayFile(day))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	var out []Entry
	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			j.logger.Warn("skipping malformed journal line", "error", err)
			continue
		}
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		if f.Symbol != "" && e.Symbol != f.Symbol {
			continue
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}

	// Newest first.
	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// DailySummary aggregates counts and rates for one UTC day.
func (j *Journal) DailySummary(day time.Time) (Summary, error) {
	entries, err := j.Entries(day, Filter{})
	if err != nil {
		return Summary{}, err
	}

	s := Summary{
		Day:          day.UTC().Format("2006-01-02"),
		TotalEntries: len(entries),
	}
	for _, e := range entries {
		switch e.Type {
		case EventOrderAttempt:
			s.OrdersAttempted++
		case EventOrderSubmitted:
			s.OrdersSubmitted++
		case EventOrderFilled:
			s.OrdersFilled++
		case EventOrderRejected:
			s.OrdersRejected++
		case EventRiskCheckFailed:
			s.RiskFailures++
		}
	}
	if s.OrdersSubmitted > 0 {
		s.FillRate = float64(s.OrdersFilled) / float64(s.OrdersSubmitted)
	}
	if s.OrdersAttempted > 0 {
		s.RejectionRate = float64(s.OrdersRejected) / float64(s.OrdersAttempted)
	}
	return s, nil
}
