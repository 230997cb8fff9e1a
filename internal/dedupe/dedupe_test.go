package dedupe

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castlight/rolodex/internal/clock"
	"github.com/castlight/rolodex/internal/record"
	"github.com/castlight/rolodex/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store, *clock.Fake) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "rolodex.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return New(st, clk), st, clk
}

func put(t *testing.T, st *store.Store, r *record.Record) {
	t.Helper()
	require.NoError(t, st.Put(context.Background(), r))
}

func person(id, userID, name string) *record.Record {
	return &record.Record{
		Identity: record.Identity{ID: id, UserID: userID, Name: name, ChannelIdentifier: id},
		Type:     record.TypeUser,
	}
}

func channel(id, name string) *record.Record {
	return &record.Record{
		Identity:    record.Identity{ID: id, Name: name, ChannelIdentifier: id},
		Type:        record.TypeChannel,
		MemberCount: 4,
	}
}

func TestByNamePersonBeatsChannel(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	ctx := context.Background()

	p := person("sg-1", "u-2", "Alice")
	p.InteractionCount = 4
	put(t, st, p)

	c := channel(record.NewLocalID(), "alice")
	c.InteractionCount = 3
	c.SearchKeywords = []string{"ali"}
	put(t, st, c)

	removed, err := eng.ByName(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	got, err := st.Get(ctx, "sg-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 7, got.InteractionCount)
	assert.True(t, got.HasKeyword("ali"))

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestByNameServerIDBeatsLocalPlaceholder(t *testing.T) {
	eng, st, clk := newTestEngine(t)
	ctx := context.Background()

	local := channel(record.NewLocalID(), "Flight Ops")
	local.UpdatedAt = clk.Now() // fresher, but still loses
	put(t, st, local)

	server := channel("mpc-5", "Flight Ops")
	put(t, st, server)

	removed, err := eng.ByName(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	got, err := st.Get(ctx, "mpc-5")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestByNameSelfChannelsStayApart(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	ctx := context.Background()

	for _, id := range []string{"sg-self-1", "sg-self-2"} {
		r := channel(id, "Self Notes")
		r.MemberCount = 1
		put(t, st, r)
	}

	removed, err := eng.ByName(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestByNameLegacyChannelsWithoutIdentifierKeepTheirNames(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	ctx := context.Background()

	// Pinned pre-migration rows: no channel identifier yet, unknown
	// member count. Different names means they are not duplicates.
	for i, name := range []string{"Budget", "Ops"} {
		r := &record.Record{
			Identity:  record.Identity{ID: record.NewLocalID(), OriginalID: int64(2001 + i), Name: name},
			Type:      record.TypeChannel,
			IsPinned:  true,
			PinnedAt:  time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
			UpdatedAt: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		}
		put(t, st, r)
	}

	removed, err := eng.ByName(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestByChannelIdentifier(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	ctx := context.Background()

	stale := &record.Record{
		Identity: record.Identity{
			ID:                record.NewLocalID(),
			OriginalID:        42,
			Name:              "Bob",
			ChannelIdentifier: "sg-7",
		},
		Type:             record.TypeChannel,
		InteractionCount: 2,
	}
	put(t, st, stale)
	put(t, st, person("sg-7", "u-7", "Robert B."))

	removed, err := eng.ByChannelIdentifier(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	got, err := st.Get(ctx, "sg-7")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Robert B.", got.Name)
	assert.Equal(t, 2, got.InteractionCount)
	assert.Equal(t, int64(42), got.OriginalID, "legacy id backfills from the loser")
}

func TestMergeFoldsPins(t *testing.T) {
	eng, st, clk := newTestEngine(t)
	ctx := context.Background()

	earlier := clk.Now().Add(-48 * time.Hour)

	keeper := person("sg-1", "u-2", "Alice")
	keeper.IsPinned = true
	keeper.PinnedAt = clk.Now()
	keeper.PinnedOrder = 3
	put(t, st, keeper)

	loser := channel(record.NewLocalID(), "Alice")
	loser.IsPinned = true
	loser.PinnedAt = earlier
	loser.PinnedOrder = 1
	put(t, st, loser)

	_, err := eng.ByName(ctx)
	require.NoError(t, err)

	got, err := st.Get(ctx, "sg-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.IsPinned)
	assert.Equal(t, earlier, got.PinnedAt)
	assert.Equal(t, 1, got.PinnedOrder)
}

func TestConsolidateDirectChannels(t *testing.T) {
	eng, st, clk := newTestEngine(t)
	ctx := context.Background()

	pinned := person("sg-1", "u-2", "Alice")
	pinned.IsPinned = true
	pinned.InteractionCount = 2
	put(t, st, pinned)

	busier := person("sg-2", "u-2", "Alice")
	busier.InteractionCount = 9
	busier.LastOpenedTime = clk.Now()
	put(t, st, busier)

	removed, err := eng.ConsolidateDirectChannels(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	got, err := st.Get(ctx, "sg-1")
	require.NoError(t, err)
	require.NotNil(t, got, "the pinned conversation survives")
	assert.Equal(t, 11, got.InteractionCount)
	assert.Equal(t, clk.Now(), got.LastOpenedTime)

	gone, err := st.Get(ctx, "sg-2")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestPassesAreIdempotent(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	ctx := context.Background()

	put(t, st, person("sg-1", "u-2", "Alice"))
	put(t, st, channel(record.NewLocalID(), "Alice"))
	put(t, st, person("sg-2", "u-2", "Alice B."))

	first, err := eng.ByName(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first)
	_, err = eng.ConsolidateDirectChannels(ctx)
	require.NoError(t, err)

	again, err := eng.ByName(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again)
	again, err = eng.ConsolidateDirectChannels(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again)
}
