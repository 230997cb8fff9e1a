package rank

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castlight/rolodex/internal/clock"
	"github.com/castlight/rolodex/internal/record"
)

var rankNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestRanker() *Ranker {
	return New(clock.NewFake(rankNow))
}

func TestExactChannelNameBeatsWholeWord(t *testing.T) {
	rk := newTestRanker()
	records := []*record.Record{
		{
			Identity:    record.Identity{ID: "mpc-2", Name: "Flight x CRM", ChannelIdentifier: "mpc-2"},
			Type:        record.TypeChannel,
			MemberCount: 6,
		},
		{
			Identity:    record.Identity{ID: "mpc-1", Name: "CRM", ChannelIdentifier: "mpc-1"},
			Type:        record.TypeChannel,
			MemberCount: 4,
		},
	}

	got := rk.Search(records, "CRM", 0)
	require.Len(t, got, 2)
	assert.Equal(t, "CRM", got[0].Record.Name)
	assert.Equal(t, "Flight x CRM", got[1].Record.Name)
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestMultiWordQueryWholeWordBoost(t *testing.T) {
	rk := newTestRanker()
	records := []*record.Record{
		{
			Identity:    record.Identity{ID: "mpc-1", Name: "Flight Ops Weekly", ChannelIdentifier: "mpc-1"},
			Type:        record.TypeChannel,
			MemberCount: 6,
		},
		{
			// Substring hit only: "ops" runs into "opsec".
			Identity:    record.Identity{ID: "mpc-2", Name: "Flight Opsec Review", ChannelIdentifier: "mpc-2"},
			Type:        record.TypeChannel,
			MemberCount: 6,
		},
	}

	got := rk.Search(records, "flight ops", 0)
	require.Len(t, got, 2)
	assert.Equal(t, "mpc-1", got[0].Record.ID)
	assert.Equal(t, 1000, got[0].Score)
	assert.Equal(t, 100, got[1].Score)
}

func TestNoTextMatchIsExcluded(t *testing.T) {
	rk := newTestRanker()
	// Heavy interaction history, but nothing matches the term.
	hot := &record.Record{
		Identity:         record.Identity{ID: "sg-1", UserID: "u-1", Name: "Alice", ChannelIdentifier: "sg-1"},
		Type:             record.TypeUser,
		IsPinned:         true,
		InteractionCount: 40,
	}

	got := rk.Search([]*record.Record{hot}, "zzz", 0)
	assert.Empty(t, got)
}

func TestSelfKeywordSurfacesSelfChannel(t *testing.T) {
	rk := newTestRanker()
	self := &record.Record{
		Identity:    record.Identity{ID: "sg-self", ChannelIdentifier: "sg-self"},
		Type:        record.TypeChannel,
		MemberCount: 1,
	}
	other := &record.Record{
		Identity:    record.Identity{ID: "mpc-9", Name: "Media Table", ChannelIdentifier: "mpc-9"},
		Type:        record.TypeChannel,
		MemberCount: 5,
	}

	got := rk.Search([]*record.Record{other, self}, "me", 0)
	require.NotEmpty(t, got)
	assert.Equal(t, "sg-self", got[0].Record.ID)
}

func TestInteractionBoostsBreakTextTies(t *testing.T) {
	rk := newTestRanker()
	cold := &record.Record{
		Identity: record.Identity{ID: "sg-cold", UserID: "u-1", Name: "Dana Fox", ChannelIdentifier: "sg-cold"},
		Type:     record.TypeUser,
	}
	warm := &record.Record{
		Identity:         record.Identity{ID: "sg-warm", UserID: "u-2", Name: "Dana Fay", ChannelIdentifier: "sg-warm"},
		Type:             record.TypeUser,
		InteractionCount: 5,
		LastOpenedTime:   rankNow.Add(-time.Hour),
	}

	got := rk.Search([]*record.Record{cold, warm}, "dana", 0)
	require.Len(t, got, 2)
	assert.Equal(t, "sg-warm", got[0].Record.ID)
}

func TestInteractionCountBoostIsCapped(t *testing.T) {
	rk := newTestRanker()
	r := &record.Record{
		Identity:         record.Identity{ID: "sg-1", UserID: "u-1", Name: "Eve", ChannelIdentifier: "sg-1"},
		Type:             record.TypeUser,
		InteractionCount: 500,
	}

	got := rk.Search([]*record.Record{r}, "eve", 0)
	require.Len(t, got, 1)
	// name +100, relationship +200, capped interaction boost +100.
	assert.Equal(t, 400, got[0].Score)
}

func TestStaleFrequencyCountersDoNotScore(t *testing.T) {
	rk := newTestRanker()
	r := &record.Record{
		Identity: record.Identity{ID: "sg-1", UserID: "u-1", Name: "Eve", ChannelIdentifier: "sg-1"},
		Type:     record.TypeUser,
		Metrics: record.Metrics{
			CountLast7Days:      6,
			LastInteractionTime: rankNow.Add(-8 * 24 * time.Hour),
		},
	}

	got := rk.Search([]*record.Record{r}, "eve", 0)
	require.Len(t, got, 1)
	// name +100, relationship +200; the decayed 7-day counter adds nothing.
	assert.Equal(t, 300, got[0].Score)
}

func TestSearchLimitAndTies(t *testing.T) {
	rk := newTestRanker()
	var records []*record.Record
	for i := 0; i < 5; i++ {
		records = append(records, &record.Record{
			Identity: record.Identity{
				ID:                fmt.Sprintf("sg-%d", i),
				UserID:            fmt.Sprintf("u-%d", i),
				Name:              "Sam",
				ChannelIdentifier: fmt.Sprintf("sg-%d", i),
			},
			Type: record.TypeUser,
		})
	}

	got := rk.Search(records, "sam", 3)
	require.Len(t, got, 3)
	// Identical scores keep the input order.
	assert.Equal(t, "sg-0", got[0].Record.ID)
	assert.Equal(t, "sg-1", got[1].Record.ID)
	assert.Equal(t, "sg-2", got[2].Record.ID)
}

func TestSearchRankingGolden(t *testing.T) {
	rk := newTestRanker()
	records := []*record.Record{
		{
			Identity:    record.Identity{ID: "mpc-crm", Name: "CRM", ChannelIdentifier: "mpc-crm"},
			Type:        record.TypeChannel,
			MemberCount: 4,
		},
		{
			Identity:    record.Identity{ID: "mpc-flight", Name: "Flight x CRM", ChannelIdentifier: "mpc-flight"},
			Type:        record.TypeChannel,
			MemberCount: 6,
		},
		{
			Identity: record.Identity{
				ID: "sg-carmen", UserID: "u-carmen",
				Name: "Carmen Reyes", ChannelIdentifier: "sg-carmen",
			},
			Type:             record.TypeUser,
			SearchKeywords:   []string{"crm"},
			SharedChannelIDs: []string{"mpc-flight"},
			InteractionCount: 3,
			LastOpenedTime:   rankNow.Add(-48 * time.Hour),
			Metrics: record.Metrics{
				CountLast7Days:      3,
				LastInteractionTime: rankNow.Add(-48 * time.Hour),
				AverageDaysBetween:  2,
			},
		},
		{
			Identity: record.Identity{ID: "sg-bob", UserID: "u-bob", Name: "Bob", ChannelIdentifier: "sg-bob"},
			Type:     record.TypeUser,
		},
	}

	matches := rk.Search(records, "crm", 0)

	var b strings.Builder
	fmt.Fprintln(&b, "query: crm")
	for i, m := range matches {
		fmt.Fprintf(&b, "%d. %s (%s) score=%d\n", i+1, m.Record.Name, m.Record.ID, m.Score)
	}

	g := goldie.New(t, goldie.WithNameSuffix(".golden"))
	g.Assert(t, "search_ranking", []byte(b.String()))
}
