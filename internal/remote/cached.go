package remote

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/castlight/rolodex/internal/respcache"
)

// CachedAuthority layers the channel-metadata response cache and request
// collapsing over another Authority. Concurrent lookups for the same
// channel identifier issue exactly one remote call; lookups within the
// sub-cache TTL issue none.
//
// Members lookups are not cached: they run rarely (orphan recovery) and
// their results go stale the moment the group is renamed.
type CachedAuthority struct {
	inner Authority
	cache *respcache.Cache
	group singleflight.Group
}

// NewCachedAuthority wraps inner with the given response cache. The cache's
// channel_meta sub-cache must be configured by the caller.
func NewCachedAuthority(inner Authority, cache *respcache.Cache) *CachedAuthority {
	return &CachedAuthority{inner: inner, cache: cache}
}

// GetChannel implements Authority.
func (a *CachedAuthority) GetChannel(ctx context.Context, channelID string) (*ChannelInfo, error) {
	if v, ok := a.cache.Get(respcache.CacheChannelMeta, channelID); ok {
		return v.(*ChannelInfo), nil
	}

	v, err, _ := a.group.Do(channelID, func() (any, error) {
		info, err := a.inner.GetChannel(ctx, channelID)
		if err != nil {
			return nil, err
		}
		a.cache.Put(respcache.CacheChannelMeta, channelID, info)
		return info, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ChannelInfo), nil
}

// FindChannelsByMembers implements Authority.
func (a *CachedAuthority) FindChannelsByMembers(ctx context.Context, memberNames []string) ([]ChannelInfo, error) {
	return a.inner.FindChannelsByMembers(ctx, memberNames)
}

// Invalidate drops the cached metadata for a channel, forcing the next
// lookup to hit the authority. Called after fix_and_verify rewrites.
func (a *CachedAuthority) Invalidate(channelID string) {
	a.cache.Invalidate(respcache.CacheChannelMeta, channelID)
}

var _ Authority = (*CachedAuthority)(nil)
