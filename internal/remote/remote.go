// Package remote defines the boundary to the authoritative messaging
// backend: the channel-metadata query used by verification and the
// members-lookup call used for orphan recovery.
//
// The engine only ever talks to the Authority interface; HTTPAuthority is
// the production implementation and Fake the scriptable test double. The
// CachedAuthority wrapper adds the response cache and request collapsing in
// front of any implementation.
package remote

import (
	"context"
	"errors"
)

// ErrNotFound reports that the authority has no channel for the requested
// identifier. Verification treats it differently from transport errors for
// pinned records, so it must stay distinguishable.
var ErrNotFound = errors.New("remote: channel not found")

// Member is one participant of a channel as reported by the authority.
type Member struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// ChannelInfo is the authoritative description of one channel.
type ChannelInfo struct {
	ChannelIdentifier string   `json:"channel_identifier"`
	Name              string   `json:"name"`
	Members           []Member `json:"members"`
	MemberCount       int      `json:"member_count"`
	IsDistinct        bool     `json:"is_distinct"`
	CustomType        string   `json:"custom_type"`
}

// HasMember reports whether the given user identifier appears in the
// channel's member list.
func (ci *ChannelInfo) HasMember(userID string) bool {
	for _, m := range ci.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// OtherMember returns the member that is not the given user, for
// re-deriving a two-party conversation's identity from the counterpart.
// Returns nil if no such member exists.
func (ci *ChannelInfo) OtherMember(userID string) *Member {
	for i := range ci.Members {
		if ci.Members[i].UserID != userID {
			return &ci.Members[i]
		}
	}
	return nil
}

// Authority is the remote source of truth for channel identity.
type Authority interface {
	// GetChannel returns authoritative data for a channel identifier.
	// Returns ErrNotFound when the authority does not know the channel.
	GetChannel(ctx context.Context, channelID string) (*ChannelInfo, error)

	// FindChannelsByMembers returns candidate channels whose member
	// display names match the given set, used to recover the true
	// identifier of an orphaned no-name group.
	FindChannelsByMembers(ctx context.Context, memberNames []string) ([]ChannelInfo, error)
}
