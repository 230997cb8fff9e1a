// Package dedupe collapses duplicate identity records. Years of
// uncoordinated writers (legacy ids, placeholder ids, renamed channels)
// leave the store with several rows describing the same identity; these
// passes pick one survivor per group and fold the rest into it. Every pass
// is idempotent and safe to re-run: a converged store is a no-op.
package dedupe

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/castlight/rolodex/internal/clock"
	"github.com/castlight/rolodex/internal/record"
	"github.com/castlight/rolodex/internal/store"
)

// Engine runs the duplicate-collapse passes.
type Engine struct {
	store *store.Store
	clk   clock.Clock
}

// New creates a dedup engine over the given store.
func New(s *store.Store, clk clock.Clock) *Engine {
	return &Engine{store: s, clk: clk}
}

// ByName collapses records sharing a normalized name. Self conversations
// carry no counterpart name, so they group by their own channel identifier
// and never merge with each other.
func (e *Engine) ByName(ctx context.Context) (int, error) {
	all, err := e.store.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("dedupe by name: %w", err)
	}

	groups := make(map[string][]*record.Record)
	for _, r := range all {
		key := record.NormalizeName(r.Name)
		// Legacy self channels without an identifier keep their name key;
		// a shared "self:" bucket would merge unrelated records.
		if r.IsChannel() && r.MemberCount <= 1 && r.ChannelIdentifier != "" {
			key = "self:" + r.ChannelIdentifier
		}
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], r)
	}
	return e.collapse(ctx, groups)
}

// ByChannelIdentifier collapses records sharing a non-empty channel
// identifier. Distinct rows with the same identifier only arise from
// partially applied legacy migrations.
func (e *Engine) ByChannelIdentifier(ctx context.Context) (int, error) {
	all, err := e.store.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("dedupe by channel identifier: %w", err)
	}

	groups := make(map[string][]*record.Record)
	for _, r := range all {
		if r.ChannelIdentifier == "" {
			continue
		}
		groups[r.ChannelIdentifier] = append(groups[r.ChannelIdentifier], r)
	}
	return e.collapse(ctx, groups)
}

// ConsolidateDirectChannels collapses person records that resolved the same
// user through different direct channels, keeping one conversation per
// counterpart. Keeper: pinned, then most recent interaction, then highest
// interaction count.
func (e *Engine) ConsolidateDirectChannels(ctx context.Context) (int, error) {
	all, err := e.store.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("consolidate direct channels: %w", err)
	}

	groups := make(map[string][]*record.Record)
	for _, r := range all {
		if !r.IsPerson() || r.UserID == "" {
			continue
		}
		groups[r.UserID] = append(groups[r.UserID], r)
	}

	removed := 0
	for userID, group := range groups {
		if len(group) < 2 {
			continue
		}
		keeper := group[0]
		for _, r := range group[1:] {
			keeper = preferDirectKeeper(keeper, r)
		}
		n, err := e.fold(ctx, keeper, group)
		if err != nil {
			slog.Warn("direct channel consolidation failed", "user", userID, "error", err)
			continue
		}
		removed += n
	}
	return removed, nil
}

// collapse folds every multi-member group into its keeper. A failing group
// is logged and skipped so one bad row cannot stall convergence.
func (e *Engine) collapse(ctx context.Context, groups map[string][]*record.Record) (int, error) {
	removed := 0
	for key, group := range groups {
		if len(group) < 2 {
			continue
		}
		keeper := group[0]
		for _, r := range group[1:] {
			keeper = preferKeeper(keeper, r)
		}
		n, err := e.fold(ctx, keeper, group)
		if err != nil {
			slog.Warn("dedup group failed", "key", key, "error", err)
			continue
		}
		removed += n
	}
	return removed, nil
}

func (e *Engine) fold(ctx context.Context, keeper *record.Record, group []*record.Record) (int, error) {
	removed := 0
	for _, loser := range group {
		if loser.ID == keeper.ID {
			continue
		}
		absorb(keeper, loser)
		if err := e.store.Delete(ctx, loser.ID); err != nil {
			return removed, err
		}
		removed++
	}
	keeper.UpdatedAt = e.clk.Now()
	if err := e.store.Put(ctx, keeper); err != nil {
		return removed, err
	}
	slog.Debug("duplicates folded", "keeper", keeper.ID, "removed", removed)
	return removed, nil
}

// preferKeeper picks the survivor of two duplicates: a person beats a
// channel, a server-issued id beats a local placeholder, then the more
// recently updated row wins.
func preferKeeper(a, b *record.Record) *record.Record {
	if a.IsPerson() != b.IsPerson() {
		if a.IsPerson() {
			return a
		}
		return b
	}
	aServer := !record.IsLocalID(a.ID)
	bServer := !record.IsLocalID(b.ID)
	if aServer != bServer {
		if aServer {
			return a
		}
		return b
	}
	if b.UpdatedAt.After(a.UpdatedAt) {
		return b
	}
	return a
}

func preferDirectKeeper(a, b *record.Record) *record.Record {
	if a.IsPinned != b.IsPinned {
		if a.IsPinned {
			return a
		}
		return b
	}
	if !a.LastOpenedTime.Equal(b.LastOpenedTime) {
		if a.LastOpenedTime.After(b.LastOpenedTime) {
			return a
		}
		return b
	}
	if b.InteractionCount > a.InteractionCount {
		return b
	}
	return a
}

// absorb folds the loser's accumulated local state into the keeper: pins OR
// together keeping the earliest pin time and lowest explicit order,
// interaction counts sum, window counters and timestamps take the maximum,
// keywords and shared channels union. Identity fields stay the keeper's.
func absorb(keeper, loser *record.Record) {
	keeper.InteractionCount += loser.InteractionCount
	if loser.LastOpenedTime.After(keeper.LastOpenedTime) {
		keeper.LastOpenedTime = loser.LastOpenedTime
	}
	if loser.LastSeen.After(keeper.LastSeen) {
		keeper.LastSeen = loser.LastSeen
	}
	keeper.IsRecent = keeper.IsRecent || loser.IsRecent

	if loser.Metrics.CountLast7Days > keeper.Metrics.CountLast7Days {
		keeper.Metrics.CountLast7Days = loser.Metrics.CountLast7Days
	}
	if loser.Metrics.CountLast30Days > keeper.Metrics.CountLast30Days {
		keeper.Metrics.CountLast30Days = loser.Metrics.CountLast30Days
	}
	if loser.Metrics.LastInteractionTime.After(keeper.Metrics.LastInteractionTime) {
		keeper.Metrics.LastInteractionTime = loser.Metrics.LastInteractionTime
	}

	if loser.IsPinned {
		if !keeper.IsPinned {
			keeper.IsPinned = true
			keeper.PinnedAt = loser.PinnedAt
			keeper.PinnedOrder = loser.PinnedOrder
		} else {
			if !loser.PinnedAt.IsZero() &&
				(keeper.PinnedAt.IsZero() || loser.PinnedAt.Before(keeper.PinnedAt)) {
				keeper.PinnedAt = loser.PinnedAt
			}
			if loser.PinnedOrder > 0 &&
				(keeper.PinnedOrder == 0 || loser.PinnedOrder < keeper.PinnedOrder) {
				keeper.PinnedOrder = loser.PinnedOrder
			}
		}
	}

	keeper.AddKeywords(loser.SearchKeywords...)
	keeper.AddSharedChannels(loser.SharedChannelIDs...)

	if keeper.OriginalID == 0 {
		keeper.OriginalID = loser.OriginalID
	}
	if keeper.Email == "" {
		keeper.Email = loser.Email
	}
	if keeper.Avatar == "" {
		keeper.Avatar = loser.Avatar
	}
}
