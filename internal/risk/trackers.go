// trackers.go implements the calendar-windowed spend and loss trackers.
//
// Resets happen lazily at UTC day/week/month boundaries: each mutation or
// read first rolls any window whose boundary has passed. Weeks start on
// Monday. The trackers use a wall clock for calendar math; cooldowns and
// backoffs elsewhere use the monotonic clock.
package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// startOfDay truncates t to the UTC day boundary.
func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// startOfWeek truncates t to the most recent UTC Monday 00:00.
func startOfWeek(t time.Time) time.Time {
	day := startOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	return day.AddDate(0, 0, -offset)
}

// startOfMonth truncates t to the first of the UTC month.
func startOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// SpendTracker accumulates buy notional over rolling daily, weekly, and
// monthly windows.
type SpendTracker struct {
	mu         sync.Mutex
	daily      decimal.Decimal
	weekly     decimal.Decimal
	monthly    decimal.Decimal
	dayStart   time.Time
	weekStart  time.Time
	monthStart time.Time
	now        func() time.Time
}

// NewSpendTracker creates a tracker anchored at the current UTC boundaries.
func NewSpendTracker() *SpendTracker {
	return newSpendTrackerAt(time.Now)
}

func newSpendTrackerAt(now func() time.Time) *SpendTracker {
	t := now()
	return &SpendTracker{
		dayStart:   startOfDay(t),
		weekStart:  startOfWeek(t),
		monthStart: startOfMonth(t),
		now:        now,
	}
}

// roll resets any window whose boundary has passed. Caller holds mu.
func (s *SpendTracker) roll() {
	t := s.now()
	if day := startOfDay(t); day.After(s.dayStart) {
		s.daily = decimal.Zero
		s.dayStart = day
	}
	if week := startOfWeek(t); week.After(s.weekStart) {
		s.weekly = decimal.Zero
		s.weekStart = week
	}
	if month := startOfMonth(t); month.After(s.monthStart) {
		s.monthly = decimal.Zero
		s.monthStart = month
	}
}

// Record adds buy notional to all three windows.
func (s *SpendTracker) Record(notional decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roll()
	s.daily = s.daily.Add(notional)
	s.weekly = s.weekly.Add(notional)
	s.monthly = s.monthly.Add(notional)
}

// Totals returns current daily, weekly, and monthly spend.
func (s *SpendTracker) Totals() (daily, weekly, monthly decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roll()
	return s.daily, s.weekly, s.monthly
}

// LossTracker maintains the equity high-water mark and daily/weekly P&L
// baselines.
type LossTracker struct {
	mu           sync.Mutex
	peak         decimal.Decimal
	current      decimal.Decimal
	dayBaseline  decimal.Decimal
	weekBaseline decimal.Decimal
	dayStart     time.Time
	weekStart    time.Time
	initialized  bool
	now          func() time.Time
}

// NewLossTracker creates an empty tracker; the first UpdateEquity call sets
// all baselines.
func NewLossTracker() *LossTracker {
	return newLossTrackerAt(time.Now)
}

func newLossTrackerAt(now func() time.Time) *LossTracker {
	t := now()
	return &LossTracker{
		dayStart:  startOfDay(t),
		weekStart: startOfWeek(t),
		now:       now,
	}
}

// UpdateEquity records a new equity observation, advancing the peak
// (monotonic high-water mark) and rolling period baselines at boundaries.
func (l *LossTracker) UpdateEquity(equity decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := l.now()
	if day := startOfDay(t); day.After(l.dayStart) {
		l.dayBaseline = l.current
		l.dayStart = day
	}
	if week := startOfWeek(t); week.After(l.weekStart) {
		l.weekBaseline = l.current
		l.weekStart = week
	}

	if !l.initialized {
		l.peak = equity
		l.dayBaseline = equity
		l.weekBaseline = equity
		l.initialized = true
	}

	l.current = equity
	if equity.GreaterThan(l.peak) {
		l.peak = equity
	}
}

// DailyPnL returns equity change since the start of the UTC day.
func (l *LossTracker) DailyPnL() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current.Sub(l.dayBaseline)
}

// WeeklyPnL returns equity change since the start of the UTC week.
func (l *LossTracker) WeeklyPnL() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current.Sub(l.weekBaseline)
}

// DrawdownPct returns (peak − current) / peak, zero before initialization.
func (l *LossTracker) DrawdownPct() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized || l.peak.Sign() <= 0 {
		return decimal.Zero
	}
	return l.peak.Sub(l.current).Div(l.peak)
}

// Peak returns the equity high-water mark.
func (l *LossTracker) Peak() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peak
}

// Current returns the last observed equity.
func (l *LossTracker) Current() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}
