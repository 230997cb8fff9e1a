// Package upsert is the write path of the identity cache: search-result
// ingestion and chat-opened interaction events from many uncoordinated
// producers funnel through here, get corruption-checked and merged against
// the existing record, and pass the verification gate before commit.
//
// # Critical Patterns
//
// CP-1: Reject, Never Repair
//   - Internally inconsistent identity fields abort the whole write with a
//     logged WriteError. Silently "fixing" corrupt input would launder bad
//     identities into the store.
//
// CP-2: Verification Gates Every Commit
//   - The merged candidate routes through verify.Check before persisting.
//     A delete verdict aborts the write; mark_unverified commits with the
//     degraded-trust flag set.
//
// CP-3: Idempotent Under Concurrency
//   - Producers overlap without locking. Writes are keyed by stable
//     identity fields and a 2-second anti-flood window absorbs duplicate
//     interaction events from overlapping sources.
package upsert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/castlight/rolodex/internal/clock"
	"github.com/castlight/rolodex/internal/record"
	"github.com/castlight/rolodex/internal/remote"
	"github.com/castlight/rolodex/internal/store"
	"github.com/castlight/rolodex/internal/verify"
)

// AntiFloodWindow suppresses a second interaction on the same record within
// this span of the first. Overlapping event sources routinely deliver the
// same chat-open twice.
const AntiFloodWindow = 2 * time.Second

// Pipeline merges incoming writes into the store.
type Pipeline struct {
	store     *store.Store
	verifier  *verify.Verifier
	authority remote.Authority
	clk       clock.Clock
}

// New creates a Pipeline. The authority is only used for no-name-group
// recovery; routine writes reach it indirectly through the verifier.
func New(s *store.Store, v *verify.Verifier, authority remote.Authority, clk clock.Clock) *Pipeline {
	return &Pipeline{store: s, verifier: v, authority: authority, clk: clk}
}

// IngestSearchResults merges raw search results into the store. Items
// without a channel identifier are rejected. Returns how many items were
// committed; per-item failures are logged and never abort the batch.
func (p *Pipeline) IngestSearchResults(ctx context.Context, term string, items []SearchItem) (int, error) {
	accepted := 0
	for _, item := range items {
		if item.ChannelIdentifier == "" {
			slog.Debug("search item rejected: no channel identifier", "name", item.Name)
			continue
		}
		committed, err := p.ingestOne(ctx, term, item)
		if err != nil {
			slog.Warn("search item not ingested",
				"channel", item.ChannelIdentifier, "error", err)
			continue
		}
		if committed {
			accepted++
		}
	}
	return accepted, nil
}

func (p *Pipeline) ingestOne(ctx context.Context, term string, item SearchItem) (bool, error) {
	now := p.clk.Now()

	existing, err := p.store.GetByChannelIdentifier(ctx, item.ChannelIdentifier)
	if err != nil {
		return false, err
	}
	if existing == nil && item.OriginalID != 0 {
		existing, err = p.store.GetByOriginalID(ctx, item.OriginalID)
		if err != nil {
			return false, err
		}
	}

	cand := p.candidateFromItem(existing, item, now)
	cand.AddKeywords(term)

	out := p.verifier.Check(ctx, cand)
	if out.Verdict == verify.VerdictDelete {
		slog.Debug("search item dropped by verification",
			"channel", item.ChannelIdentifier, "reason", out.Reason)
		return false, nil
	}

	cand.UpdatedAt = now
	if err := p.commit(ctx, existing, cand); err != nil {
		return false, err
	}

	if err := p.purgeStaleLegacyDuplicates(ctx, cand); err != nil {
		// The commit stands; duplicate cleanup retries on the next pass.
		slog.Warn("stale duplicate purge failed", "record", cand.ID, "error", err)
	}
	return true, nil
}

// candidateFromItem builds the merged record for a search sighting,
// preserving the existing record's interaction, pin and verification state,
// and its frozen identity when verified.
func (p *Pipeline) candidateFromItem(existing *record.Record, item SearchItem, now time.Time) *record.Record {
	var cand record.Record
	if existing != nil {
		cand = *existing
	} else {
		cand.CreatedAt = now
	}

	// Profile and channel metadata refresh on every sighting; avatar is
	// never frozen.
	applyIfSet(&cand.Email, item.Email)
	applyIfSet(&cand.Avatar, item.Avatar)
	applyIfSet(&cand.JobTitle, item.JobTitle)
	applyIfSet(&cand.DepartmentName, item.DepartmentName)
	applyIfSet(&cand.LocationName, item.LocationName)
	applyIfSet(&cand.Bio, item.Bio)
	if item.MemberCount > 0 {
		cand.MemberCount = item.MemberCount
	}
	applyIfSet(&cand.CustomType, item.CustomType)
	cand.LastSeen = now

	if existing != nil && existing.IsVerified {
		cand.CarryIdentity(existing)
	} else {
		cand.ChannelIdentifier = item.ChannelIdentifier
		cand.ID = item.ChannelIdentifier
		if item.OriginalID != 0 {
			cand.OriginalID = item.OriginalID
		}
		applyIfSet(&cand.Name, item.Name)
		applyIfSet(&cand.UserID, item.UserID)
		cand.Type = record.DeriveType(cand.UserID)
		cand.IsDistinct = item.IsDistinct
		if cand.Type == record.TypeChannel && !cand.IsDistinct &&
			record.LooksLikeNoNameGroup(cand.Name) {
			cand.IsNoNameGroup = true
		}
	}

	if cand.IsPerson() {
		for _, sc := range item.SharedChannels {
			cand.AddSharedChannels(sc.ChannelIdentifier)
		}
	}
	return &cand
}

// RecordInteraction merges one chat-opened event. Corruption checks run
// before anything else; a rejected write leaves the store untouched.
func (p *Pipeline) RecordInteraction(ctx context.Context, chat ChatData) error {
	now := p.clk.Now()

	// A group-prefixed id must agree with its own channel identifier.
	if record.IsGroupChannelID(chat.ID) {
		if chat.ChannelIdentifier != "" && chat.ChannelIdentifier != chat.ID {
			err := newWriteError(ErrCodeGroupIdentifierMismatch, chat.ID,
				"channel identifier %q disagrees with group id", chat.ChannelIdentifier)
			slog.Warn("corrupt interaction rejected", "id", chat.ID, "error", err)
			return err
		}
		if chat.ChannelIdentifier == "" {
			chat.ChannelIdentifier = chat.ID
		}
	}

	// A person payload must agree with the direct entry of its own
	// shared-channel metadata.
	if chat.UserID != "" {
		if direct := directSharedChannel(chat.SharedChannels); direct != nil {
			switch {
			case chat.ChannelIdentifier == "":
				chat.ChannelIdentifier = direct.ChannelIdentifier
			case chat.ChannelIdentifier != direct.ChannelIdentifier:
				err := newWriteError(ErrCodeSharedChannelMismatch, chat.ID,
					"channel identifier %q disagrees with direct shared channel %q",
					chat.ChannelIdentifier, direct.ChannelIdentifier)
				slog.Warn("corrupt interaction rejected", "id", chat.ID, "error", err)
				return err
			}
		}
	}

	existing, err := p.resolve(ctx, chat.ChannelIdentifier, chat.OriginalID, chat.Name)
	if err != nil {
		return err
	}

	// A write with no channel identifier is only tolerated as a repair of
	// an already-pinned legacy record.
	if chat.ChannelIdentifier == "" && (existing == nil || !existing.IsPinned) {
		return newWriteError(ErrCodeMissingChannelIdentifier, chat.ID,
			"interaction without channel identifier")
	}

	// Anti-flood: overlapping producers deliver the same open twice.
	if existing != nil && !existing.LastOpenedTime.IsZero() &&
		now.Sub(existing.LastOpenedTime) < AntiFloodWindow {
		slog.Debug("duplicate interaction suppressed", "id", existing.ID)
		return nil
	}

	cand := p.candidateFromChat(existing, chat, now)
	cand.Touch(now)

	out := p.verifier.Check(ctx, cand)
	if out.Verdict == verify.VerdictDelete {
		slog.Warn("interaction write aborted by verification",
			"id", cand.ID, "reason", out.Reason)
		return nil
	}

	cand.UpdatedAt = now
	return p.commit(ctx, existing, cand)
}

// candidateFromChat builds the merged record for an interaction event.
func (p *Pipeline) candidateFromChat(existing *record.Record, chat ChatData, now time.Time) *record.Record {
	var cand record.Record
	if existing != nil {
		cand = *existing
	} else {
		cand.CreatedAt = now
	}

	applyIfSet(&cand.Avatar, chat.Avatar)
	applyIfSet(&cand.Email, chat.Email)
	if chat.MemberCount > 0 {
		cand.MemberCount = chat.MemberCount
	}
	applyIfSet(&cand.CustomType, chat.CustomType)

	if existing != nil && existing.IsVerified {
		cand.CarryIdentity(existing)
	} else {
		if chat.ChannelIdentifier != "" {
			cand.ChannelIdentifier = chat.ChannelIdentifier
			cand.ID = chat.ChannelIdentifier
		} else if cand.ID == "" {
			cand.ID = record.NewLocalID()
		}
		if chat.OriginalID != 0 {
			cand.OriginalID = chat.OriginalID
		}
		applyIfSet(&cand.Name, chat.Name)
		applyIfSet(&cand.UserID, chat.UserID)
		cand.Type = record.DeriveType(cand.UserID)
		if chat.IsDistinct || cand.Type == record.TypeUser {
			cand.IsDistinct = true
		}

		if cand.Type == record.TypeChannel && !cand.IsDistinct &&
			record.LooksLikeNoNameGroup(cand.Name) {
			cand.IsNoNameGroup = true
		}
	}

	if cand.IsPerson() {
		for _, sc := range chat.SharedChannels {
			cand.AddSharedChannels(sc.ChannelIdentifier)
		}
	}
	return &cand
}

// resolve finds the existing record for a write: by channel identifier
// first, then by legacy id. A legacy-id-keyed hit whose stored name
// disagrees with the incoming one is corruption.
func (p *Pipeline) resolve(ctx context.Context, channelID string, originalID int64, name string) (*record.Record, error) {
	if channelID != "" {
		r, err := p.store.GetByChannelIdentifier(ctx, channelID)
		if err != nil || r != nil {
			return r, err
		}
	}
	if originalID == 0 {
		return nil, nil
	}
	r, err := p.store.GetByOriginalID(ctx, originalID)
	if err != nil || r == nil {
		return nil, err
	}
	legacyKeyed := r.ChannelIdentifier == "" || r.ID != r.ChannelIdentifier
	if legacyKeyed && name != "" && r.Name != "" &&
		record.NormalizeName(r.Name) != record.NormalizeName(name) {
		err := newWriteError(ErrCodeLegacyNameMismatch, r.ID,
			"stored name %q disagrees with incoming %q for legacy id %d",
			r.Name, name, originalID)
		slog.Warn("corrupt interaction rejected", "id", r.ID, "error", err)
		return nil, err
	}
	return r, nil
}

// commit persists the candidate, removing the superseded row first when the
// merge moved the record to a new primary key.
func (p *Pipeline) commit(ctx context.Context, existing, cand *record.Record) error {
	if existing != nil && existing.ID != cand.ID {
		if err := p.store.Delete(ctx, existing.ID); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
	}
	return p.store.Put(ctx, cand)
}

// purgeStaleLegacyDuplicates removes unpinned legacy-keyed records that
// share the committed record's name but never resolved a channel
// identifier. They are shadows of the same identity from before migration.
func (p *Pipeline) purgeStaleLegacyDuplicates(ctx context.Context, cand *record.Record) error {
	if cand.Name == "" {
		return nil
	}
	sameName, err := p.store.ListByNormalizedName(ctx, cand.Name)
	if err != nil {
		return err
	}
	for _, r := range sameName {
		if r.ID == cand.ID || r.IsPinned {
			continue
		}
		if r.OriginalID != 0 && r.ChannelIdentifier == "" {
			slog.Debug("purging stale legacy duplicate", "id", r.ID, "name", r.Name)
			if err := p.store.Delete(ctx, r.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecoverNoNameGroups tries to resolve the true channel identifier of
// flagged orphan groups via the members-lookup call, rewriting the record
// and purging lingering references to the placeholder identifier. Failures
// leave the flag in place for the next run. Returns how many groups were
// recovered.
func (p *Pipeline) RecoverNoNameGroups(ctx context.Context) (int, error) {
	flagged, err := p.store.ListNoNameGroups(ctx)
	if err != nil {
		return 0, fmt.Errorf("recover no-name groups: %w", err)
	}

	recovered := 0
	for _, r := range flagged {
		names := memberNamesFromPlaceholder(r.Name)
		if len(names) < 2 {
			continue
		}
		candidates, err := p.authority.FindChannelsByMembers(ctx, names)
		if err != nil {
			slog.Warn("members lookup failed", "id", r.ID, "error", err)
			continue
		}
		info := pickRecoveryCandidate(candidates, len(names))
		if info == nil {
			continue
		}

		oldID := r.ID
		if info.ChannelIdentifier != r.ID {
			if err := p.store.Delete(ctx, r.ID); err != nil {
				slog.Warn("orphan rewrite failed", "id", r.ID, "error", err)
				continue
			}
		}
		r.ID = info.ChannelIdentifier
		r.ChannelIdentifier = info.ChannelIdentifier
		r.MemberCount = info.MemberCount
		if info.Name != "" {
			r.Name = info.Name
			r.IsNoNameGroup = false
		}
		r.UpdatedAt = p.clk.Now()
		if err := p.store.Put(ctx, r); err != nil {
			slog.Warn("orphan rewrite failed", "id", r.ID, "error", err)
			continue
		}

		if err := p.purgeZombieReferences(ctx, oldID, info.ChannelIdentifier); err != nil {
			slog.Warn("zombie reference purge failed", "old", oldID, "error", err)
		}
		slog.Info("no-name group recovered", "old", oldID, "new", info.ChannelIdentifier)
		recovered++
	}
	return recovered, nil
}

// pickRecoveryCandidate selects the first multi-party candidate large
// enough to contain all the placeholder's member names plus the current
// user.
func pickRecoveryCandidate(candidates []remote.ChannelInfo, memberNames int) *remote.ChannelInfo {
	for i := range candidates {
		c := &candidates[i]
		if c.IsDistinct {
			continue
		}
		if c.MemberCount >= memberNames {
			return c
		}
	}
	return nil
}

// memberNamesFromPlaceholder splits a comma-joined placeholder name into
// member names, dropping the truncation dash.
func memberNamesFromPlaceholder(name string) []string {
	trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(name), "-"))
	var names []string
	for _, part := range strings.Split(trimmed, ",") {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, part)
		}
	}
	return names
}

// purgeZombieReferences rewrites lingering references to a replaced
// placeholder identifier in other records' shared-channel lists.
func (p *Pipeline) purgeZombieReferences(ctx context.Context, oldID, newID string) error {
	all, err := p.store.All(ctx)
	if err != nil {
		return err
	}
	for _, r := range all {
		changed := false
		for i, id := range r.SharedChannelIDs {
			if id == oldID {
				r.SharedChannelIDs[i] = newID
				changed = true
			}
		}
		if !changed {
			continue
		}
		r.SharedChannelIDs = dedupeStrings(r.SharedChannelIDs)
		if err := p.store.Put(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func dedupeStrings(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	out := ss[:0]
	for _, s := range ss {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func applyIfSet(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
