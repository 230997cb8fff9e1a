package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castlight/rolodex/internal/clock"
	"github.com/castlight/rolodex/internal/respcache"
)

func TestChannelInfo_MemberHelpers(t *testing.T) {
	info := ChannelInfo{
		ChannelIdentifier: "sg-1",
		Members: []Member{
			{UserID: "u-me", Name: "Me"},
			{UserID: "u-dana", Name: "Dana Voss", Avatar: "https://cdn/dana"},
		},
	}

	assert.True(t, info.HasMember("u-dana"))
	assert.False(t, info.HasMember("u-nobody"))

	other := info.OtherMember("u-me")
	require.NotNil(t, other)
	assert.Equal(t, "u-dana", other.UserID)

	solo := ChannelInfo{Members: []Member{{UserID: "u-me"}}}
	assert.Nil(t, solo.OtherMember("u-me"))
}

func TestHTTPAuthority_GetChannel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/channels/sg-1":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"channel_identifier": "sg-1",
				"name": "Flight Ops",
				"members": [{"user_id": "u-1", "name": "Dana Voss", "avatar": ""}],
				"member_count": 4,
				"is_distinct": false,
				"custom_type": "team"
			}`))
		case "/channels/sg-missing":
			http.NotFound(w, r)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	a := NewHTTPAuthority(srv.URL, time.Second)
	ctx := context.Background()

	info, err := a.GetChannel(ctx, "sg-1")
	require.NoError(t, err)
	assert.Equal(t, "Flight Ops", info.Name)
	assert.Equal(t, 4, info.MemberCount)
	assert.Equal(t, "team", info.CustomType)

	_, err = a.GetChannel(ctx, "sg-missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = a.GetChannel(ctx, "sg-boom")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound, "server errors are not not-found")
}

func TestHTTPAuthority_FindChannelsByMembers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/channels", r.URL.Path)
		require.Equal(t, []string{"Dana Voss", "Tom Hale"}, r.URL.Query()["members"])
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"channels": [{"channel_identifier": "mpc-9", "name": "", "member_count": 3}]}`))
	}))
	defer srv.Close()

	a := NewHTTPAuthority(srv.URL, time.Second)
	channels, err := a.FindChannelsByMembers(context.Background(), []string{"Dana Voss", "Tom Hale"})
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, "mpc-9", channels[0].ChannelIdentifier)
}

func TestCachedAuthority_ServesFromCache(t *testing.T) {
	fake := NewFake()
	fake.SetChannel(ChannelInfo{ChannelIdentifier: "sg-1", Name: "Flight Ops"})

	cache := respcache.New(clock.NewFake(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)))
	cache.Configure(respcache.CacheChannelMeta, time.Minute, 10)
	cached := NewCachedAuthority(fake, cache)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		info, err := cached.GetChannel(ctx, "sg-1")
		require.NoError(t, err)
		assert.Equal(t, "Flight Ops", info.Name)
	}
	assert.Equal(t, 1, fake.Calls(), "repeat lookups should be cache hits")

	cached.Invalidate("sg-1")
	_, err := cached.GetChannel(ctx, "sg-1")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.Calls(), "invalidate forces a fresh remote call")
}

func TestCachedAuthority_ErrorsNotCached(t *testing.T) {
	fake := NewFake()
	boom := errors.New("network down")
	fake.SetError("sg-1", boom)

	cache := respcache.New(clock.NewFake(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)))
	cache.Configure(respcache.CacheChannelMeta, time.Minute, 10)
	cached := NewCachedAuthority(fake, cache)

	_, err := cached.GetChannel(context.Background(), "sg-1")
	assert.ErrorIs(t, err, boom)

	fake.SetChannel(ChannelInfo{ChannelIdentifier: "sg-1", Name: "Flight Ops"})
	info, err := cached.GetChannel(context.Background(), "sg-1")
	require.NoError(t, err)
	assert.Equal(t, "Flight Ops", info.Name)
}

func TestFake_FindChannelsByMembers(t *testing.T) {
	fake := NewFake()
	fake.SetChannel(ChannelInfo{
		ChannelIdentifier: "mpc-9",
		Members: []Member{
			{UserID: "u-1", Name: "Dana Voss"},
			{UserID: "u-2", Name: "Tom Hale"},
			{UserID: "u-3", Name: "Priya Nair"},
		},
	})

	got, err := fake.FindChannelsByMembers(context.Background(), []string{"Dana Voss", "Tom Hale"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = fake.FindChannelsByMembers(context.Background(), []string{"Nobody"})
	require.NoError(t, err)
	assert.Empty(t, got)
}
