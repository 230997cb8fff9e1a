package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/castlight/rolodex/internal/record"
)

// MigrationStats reports what a data migration pass changed.
type MigrationStats struct {
	Rewritten int // rows whose primary key was rewritten
	Merged    int // rows absorbed into an existing row under the new key
	Deleted   int // rows removed (no channel identifier, not pinned)
	Flagged   int // pinned rows retained but flagged for repair
}

// MigratePrimaryKeys rewrites every record's primary key to its channel
// identifier (CP-1). Records with no channel identifier are deleted unless
// pinned; pinned ones are retained and flagged unverified for later repair.
// A rewrite that collides with an existing row keeps the more recently
// updated row and sums interaction counts.
//
// The pass is idempotent: a store where every id already equals its channel
// identifier is left unchanged (CP-3).
func (s *Store) MigratePrimaryKeys(ctx context.Context) (MigrationStats, error) {
	var stats MigrationStats

	records, err := s.All(ctx)
	if err != nil {
		return stats, fmt.Errorf("migrate primary keys: %w", err)
	}

	for _, r := range records {
		if r.ChannelIdentifier == "" {
			if !r.IsPinned {
				if err := s.Delete(ctx, r.ID); err != nil {
					return stats, fmt.Errorf("migrate primary keys: %w", err)
				}
				stats.Deleted++
				continue
			}
			// Pinned legacy record pending repair. Flag directly rather
			// than via MarkUnverified so re-running does not inflate the
			// retry counter.
			if !r.IsUnverified {
				r.IsUnverified = true
				r.IsVerified = false
				r.UnverificationReason = "missing channel identifier"
				if err := s.Put(ctx, r); err != nil {
					return stats, fmt.Errorf("migrate primary keys: %w", err)
				}
				stats.Flagged++
			}
			continue
		}

		if r.ID == r.ChannelIdentifier {
			continue
		}

		existing, err := s.Get(ctx, r.ChannelIdentifier)
		if err != nil {
			return stats, fmt.Errorf("migrate primary keys: %w", err)
		}
		if existing == nil {
			if _, err := s.db.ExecContext(ctx,
				`UPDATE records SET id = ? WHERE id = ?`,
				r.ChannelIdentifier, r.ID,
			); err != nil {
				return stats, fmt.Errorf("migrate primary keys: rewrite %s: %w", r.ID, err)
			}
			stats.Rewritten++
			continue
		}

		// Collision: the target key is already occupied. Keep the more
		// recently updated row, fold interaction counts together. The
		// legacy row is deleted by its pre-rewrite id; Put then upserts
		// the merged keeper over the occupant.
		keeper, loser := existing, r
		if r.UpdatedAt.After(existing.UpdatedAt) {
			keeper, loser = r, existing
		}
		mergeCounters(keeper, loser)
		legacyID := r.ID
		keeper.ID = keeper.ChannelIdentifier
		if err := s.Delete(ctx, legacyID); err != nil {
			return stats, fmt.Errorf("migrate primary keys: %w", err)
		}
		if err := s.Put(ctx, keeper); err != nil {
			return stats, fmt.Errorf("migrate primary keys: %w", err)
		}
		stats.Merged++
	}

	if err := s.SetMeta(ctx, MetaPrimaryKeyMigrated, "1"); err != nil {
		return stats, err
	}
	return stats, nil
}

// RemoveStructuralDuplicates deletes rows that describe the same identity
// under different primary keys: identical (original id, user id, channel
// identifier, normalized name) tuples. The most recently updated row wins;
// pin flags and interaction counts fold into it.
//
// Exact duplicates under a real primary key cannot exist, so this pass only
// finds work on stores still keyed by legacy ids. Idempotent.
func (s *Store) RemoveStructuralDuplicates(ctx context.Context) (int, error) {
	records, err := s.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("remove structural duplicates: %w", err)
	}

	groups := make(map[string][]*record.Record)
	for _, r := range records {
		if r.OriginalID == 0 && r.ChannelIdentifier == "" {
			continue
		}
		key := fmt.Sprintf("%d|%s|%s|%s",
			r.OriginalID, r.UserID, r.ChannelIdentifier, record.NormalizeName(r.Name))
		groups[key] = append(groups[key], r)
	}

	removed := 0
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			if !group[i].UpdatedAt.Equal(group[j].UpdatedAt) {
				return group[i].UpdatedAt.After(group[j].UpdatedAt)
			}
			return group[i].ID < group[j].ID
		})
		keeper := group[0]
		for _, loser := range group[1:] {
			mergeCounters(keeper, loser)
			if err := s.Delete(ctx, loser.ID); err != nil {
				return removed, fmt.Errorf("remove structural duplicates: %w", err)
			}
			removed++
		}
		if err := s.Put(ctx, keeper); err != nil {
			return removed, fmt.Errorf("remove structural duplicates: %w", err)
		}
	}
	return removed, nil
}

// mergeCounters folds a duplicate's interaction and organization state into
// the keeper: summed interaction counts, max window counts, OR of pin flags
// with the earliest pin timestamp.
func mergeCounters(keeper, loser *record.Record) {
	keeper.InteractionCount += loser.InteractionCount
	if loser.Metrics.CountLast7Days > keeper.Metrics.CountLast7Days {
		keeper.Metrics.CountLast7Days = loser.Metrics.CountLast7Days
	}
	if loser.Metrics.CountLast30Days > keeper.Metrics.CountLast30Days {
		keeper.Metrics.CountLast30Days = loser.Metrics.CountLast30Days
	}
	if loser.Metrics.LastInteractionTime.After(keeper.Metrics.LastInteractionTime) {
		keeper.Metrics.LastInteractionTime = loser.Metrics.LastInteractionTime
	}
	if loser.LastOpenedTime.After(keeper.LastOpenedTime) {
		keeper.LastOpenedTime = loser.LastOpenedTime
	}
	if loser.LastSeen.After(keeper.LastSeen) {
		keeper.LastSeen = loser.LastSeen
	}
	keeper.IsRecent = keeper.IsRecent || loser.IsRecent

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
}
