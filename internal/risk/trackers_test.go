package risk

import (
	"testing"
	"time"
)

// Wednesday, mid-month, mid-day UTC.
var trackerEpoch = time.Date(2025, 7, 9, 15, 0, 0, 0, time.UTC)

func TestSpendTrackerAccumulates(t *testing.T) {
	t.Parallel()
	clock := trackerEpoch
	s := newSpendTrackerAt(func() time.Time { return clock })

	s.Record(d("100"))
	s.Record(d("50"))
	daily, weekly, monthly := s.Totals()
	if !daily.Equal(d("150")) || !weekly.Equal(d("150")) || !monthly.Equal(d("150")) {
		t.Fatalf("totals = %s/%s/%s", daily, weekly, monthly)
	}
}

func TestSpendTrackerRollsWindows(t *testing.T) {
	t.Parallel()
	clock := trackerEpoch
	s := newSpendTrackerAt(func() time.Time { return clock })
	s.Record(d("100"))

	// Next UTC day: daily resets, week and month carry.
	clock = trackerEpoch.AddDate(0, 0, 1)
	daily, weekly, monthly := s.Totals()
	if !daily.IsZero() || !weekly.Equal(d("100")) || !monthly.Equal(d("100")) {
		t.Fatalf("after day roll: %s/%s/%s", daily, weekly, monthly)
	}

	// Following Monday: weekly resets too.
	clock = time.Date(2025, 7, 14, 0, 0, 1, 0, time.UTC)
	_, weekly, monthly = s.Totals()
	if !weekly.IsZero() || !monthly.Equal(d("100")) {
		t.Fatalf("after week roll: weekly=%s monthly=%s", weekly, monthly)
	}

	// First of next month: monthly resets.
	clock = time.Date(2025, 8, 1, 0, 0, 1, 0, time.UTC)
	_, _, monthly = s.Totals()
	if !monthly.IsZero() {
		t.Fatalf("after month roll: monthly=%s", monthly)
	}
}

func TestLossTrackerBaselines(t *testing.T) {
	t.Parallel()
	clock := trackerEpoch
	l := newLossTrackerAt(func() time.Time { return clock })

	l.UpdateEquity(d("1000"))
	if !l.DailyPnL().IsZero() || !l.WeeklyPnL().IsZero() {
		t.Fatalf("first observation: daily=%s weekly=%s", l.DailyPnL(), l.WeeklyPnL())
	}

	l.UpdateEquity(d("950"))
	if !l.DailyPnL().Equal(d("-50")) {
		t.Fatalf("daily = %s, want -50", l.DailyPnL())
	}

	// Next day: the daily baseline rolls to the last close.
	clock = trackerEpoch.AddDate(0, 0, 1)
	l.UpdateEquity(d("930"))
	if !l.DailyPnL().Equal(d("-20")) {
		t.Fatalf("daily after roll = %s, want -20", l.DailyPnL())
	}
	if !l.WeeklyPnL().Equal(d("-70")) {
		t.Fatalf("weekly = %s, want -70", l.WeeklyPnL())
	}
}

func TestLossTrackerWeeklyRoll(t *testing.T) {
	t.Parallel()
	clock := trackerEpoch
	l := newLossTrackerAt(func() time.Time { return clock })
	l.UpdateEquity(d("1000"))
	l.UpdateEquity(d("940"))

	// Monday: both baselines roll.
	clock = time.Date(2025, 7, 14, 9, 0, 0, 0, time.UTC)
	l.UpdateEquity(d("940"))
	if !l.DailyPnL().IsZero() || !l.WeeklyPnL().IsZero() {
		t.Fatalf("after week roll: daily=%s weekly=%s", l.DailyPnL(), l.WeeklyPnL())
	}
}

func TestLossTrackerPeakMonotonic(t *testing.T) {
	t.Parallel()
	clock := trackerEpoch
	l := newLossTrackerAt(func() time.Time { return clock })

	l.UpdateEquity(d("1000"))
	l.UpdateEquity(d("1100"))
	l.UpdateEquity(d("1045"))

	if !l.Peak().Equal(d("1100")) {
		t.Fatalf("peak = %s, want 1100", l.Peak())
	}
	if !l.DrawdownPct().Equal(d("0.05")) {
		t.Fatalf("drawdown = %s, want 0.05", l.DrawdownPct())
	}
}

func TestDrawdownZeroBeforeInit(t *testing.T) {
	t.Parallel()
	l := NewLossTracker()
	if !l.DrawdownPct().IsZero() {
		t.Fatalf("drawdown = %s, want 0", l.DrawdownPct())
	}
}

func TestStartOfWeekIsMonday(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   time.Time
		want time.Time
	}{
		{time.Date(2025, 7, 9, 15, 0, 0, 0, time.UTC), time.Date(2025, 7, 7, 0, 0, 0, 0, time.UTC)},  // Wednesday
		{time.Date(2025, 7, 7, 0, 0, 0, 0, time.UTC), time.Date(2025, 7, 7, 0, 0, 0, 0, time.UTC)},   // Monday itself
		{time.Date(2025, 7, 13, 23, 0, 0, 0, time.UTC), time.Date(2025, 7, 7, 0, 0, 0, 0, time.UTC)}, // Sunday
	}
	for _, tc := range cases {
		if got := startOfWeek(tc.in); !got.Equal(tc.want) {
			t.Fatalf("startOfWeek(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}
