package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveType(t *testing.T) {
	assert.Equal(t, TypeUser, DeriveType("u-123"))
	assert.Equal(t, TypeChannel, DeriveType(""))
}

func TestCarryIdentity_PreservesFrozenFields(t *testing.T) {
	existing := &Record{
		Identity: Identity{
			ID:                "sg-100",
			OriginalID:        42,
			UserID:            "u-1",
			Name:              "Dana Voss",
			ChannelIdentifier: "sg-100",
		},
		Type:       TypeUser,
		IsVerified: true,
		Avatar:     "https://old/avatar",
	}

	candidate := &Record{
		Identity: Identity{
			ID:                "sg-999",
			UserID:            "u-other",
			Name:              "Someone Else",
			ChannelIdentifier: "sg-999",
		},
		Type:   TypeChannel,
		Avatar: "https://new/avatar",
	}

	candidate.CarryIdentity(existing)

	assert.Equal(t, existing.Identity, candidate.Identity)
	assert.Equal(t, TypeUser, candidate.Type)
	// Avatar is never frozen.
	assert.Equal(t, "https://new/avatar", candidate.Avatar)
}

func TestTouch_UpdatesInteractionState(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	r := &Record{}

	r.Touch(now)

	assert.Equal(t, 1, r.InteractionCount)
	assert.Equal(t, now, r.LastOpenedTime)
	assert.Equal(t, now, r.LastSeen)
	assert.True(t, r.IsRecent)
	assert.Equal(t, 1, r.Metrics.CountLast7Days)
	assert.Equal(t, 1, r.Metrics.CountLast30Days)
}

func TestMetrics_DecayAfterWindowElapsed(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	m := Metrics{}
	for i := 0; i < 5; i++ {
		m.Record(base.Add(time.Duration(i) * time.Hour))
	}
	require.Equal(t, 5, m.CountLast7Days)

	// 8 days after the last event the 7-day window has fully elapsed.
	m.Decay(base.Add(8 * 24 * time.Hour))
	assert.Equal(t, 0, m.CountLast7Days)
	assert.Equal(t, 5, m.CountLast30Days, "30-day window has not elapsed")

	m.Decay(base.Add(31 * 24 * time.Hour))
	assert.Equal(t, 0, m.CountLast30Days)
}

func TestMetrics_DecayIdempotent(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	m := Metrics{}
	m.Record(base)

	at := base.Add(10 * 24 * time.Hour)
	m.Decay(at)
	snapshot := m
	m.Decay(at)
	assert.Equal(t, snapshot, m)
}

func TestMetrics_HistoryBounded(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	m := Metrics{}
	for i := 0; i < 25; i++ {
		m.Record(base.Add(time.Duration(i) * time.Minute))
	}
	assert.Len(t, m.RecentHistory, RecentHistorySize)
	// Oldest retained entry is the 16th event.
	assert.Equal(t, base.Add(15*time.Minute), m.RecentHistory[0])
}

func TestMetrics_AverageGap(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	m := Metrics{}
	m.Record(base)
	m.Record(base.Add(2 * 24 * time.Hour))
	m.Record(base.Add(4 * 24 * time.Hour))
	assert.InDelta(t, 2.0, m.AverageDaysBetween, 0.001)
}

func TestAddKeywords_NormalizedAndDeduplicated(t *testing.T) {
	r := &Record{}
	r.AddKeywords("CRM", "crm", "  Flight   Ops ", "")
	assert.Equal(t, []string{"crm", "flight ops"}, r.SearchKeywords)
	assert.True(t, r.HasKeyword("Crm"))
	assert.False(t, r.HasKeyword("ops"))
}

func TestMarkVerified_ClearsDegradedState(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	r := &Record{
		IsUnverified:           true,
		UnverificationReason:   "identifier mismatch",
		VerificationRetryCount: 3,
	}
	r.MarkVerified(now, "remote")

	assert.True(t, r.IsVerified)
	assert.False(t, r.IsUnverified)
	assert.Empty(t, r.UnverificationReason)
	assert.Zero(t, r.VerificationRetryCount)
	assert.Equal(t, now, r.VerifiedAt)
}

func TestMarkUnverified_IncrementsRetryCount(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	r := &Record{IsVerified: true}

	r.MarkUnverified(now, "not found")
	r.MarkUnverified(now.Add(time.Hour), "not found")

	assert.False(t, r.IsVerified)
	assert.True(t, r.IsUnverified)
	assert.Equal(t, "not found", r.UnverificationReason)
	assert.Equal(t, 2, r.VerificationRetryCount)
}
