package record

import "time"

// RecentHistorySize bounds the interaction-history ring.
const RecentHistorySize = 10

// Window lengths for the decaying interaction counters.
const (
	Window7Days  = 7 * 24 * time.Hour
	Window30Days = 30 * 24 * time.Hour
)

// Metrics tracks time-decayed interaction frequency for ranking.
//
// The windowed counters are approximations: they decay to zero once their
// window has fully elapsed since the last recorded event, rather than
// tracking a precise sliding window per event. RecentHistory keeps the last
// few timestamps so the average gap can be recomputed exactly.
type Metrics struct {
	CountLast7Days      int
	CountLast30Days     int
	LastInteractionTime time.Time
	AverageDaysBetween  float64
	RecentHistory       []time.Time // bounded ring, oldest first
}

// Decay zeroes a window counter once its full window has elapsed since the
// last recorded interaction. Safe to call repeatedly; idempotent for a fixed
// now.
func (m *Metrics) Decay(now time.Time) {
	if m.LastInteractionTime.IsZero() {
		return
	}
	elapsed := now.Sub(m.LastInteractionTime)
	if elapsed >= Window7Days {
		m.CountLast7Days = 0
	}
	if elapsed >= Window30Days {
		m.CountLast30Days = 0
	}
}

// Record registers one interaction at now: decays stale window counts,
// increments both windows, appends to the bounded history, and recomputes
// the average gap between recent interactions.
func (m *Metrics) Record(now time.Time) {
	m.Decay(now)

	m.CountLast7Days++
	m.CountLast30Days++
	m.LastInteractionTime = now

	m.RecentHistory = append(m.RecentHistory, now)
	if len(m.RecentHistory) > RecentHistorySize {
		m.RecentHistory = m.RecentHistory[len(m.RecentHistory)-RecentHistorySize:]
	}

	m.AverageDaysBetween = averageGapDays(m.RecentHistory)
}

// averageGapDays returns the mean gap in days between consecutive
// timestamps, or 0 with fewer than two samples.
func averageGapDays(history []time.Time) float64 {
	if len(history) < 2 {
		return 0
	}
	total := history[len(history)-1].Sub(history[0])
	gaps := len(history) - 1
	return total.Hours() / 24 / float64(gaps)
}
