// Package verify reconciles cached identity records against the remote
// authority.
//
// Every write routes through Check before commit. The verdicts:
//
//	verify          - authority agrees; record freezes
//	fix_and_verify  - identifier right, name/type wrong; record corrected
//	                  from authoritative data, then freezes
//	mark_unverified - authority disagrees or is unreachable and the record
//	                  is pinned; kept visible as degraded with a retry count
//	delete          - authority disagrees or is unreachable and the record
//	                  is unpinned; caller removes it
//	skip            - verified within the recheck interval; nothing to do
//
// The channel identifier is the trust anchor: an identifier mismatch is
// never silently repaired, only degraded or deleted.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/castlight/rolodex/internal/clock"
	"github.com/castlight/rolodex/internal/record"
	"github.com/castlight/rolodex/internal/remote"
)

// Verdict is the result of reconciling one record against the authority.
type Verdict string

const (
	VerdictVerify         Verdict = "verify"
	VerdictFixAndVerify   Verdict = "fix_and_verify"
	VerdictMarkUnverified Verdict = "mark_unverified"
	VerdictDelete         Verdict = "delete"
	VerdictSkip           Verdict = "skip"
)

// Outcome reports the verdict and, for degraded verdicts, why.
type Outcome struct {
	Verdict Verdict
	Reason  string
}

// DefaultRecheckInterval is how long a successful verification stays fresh.
const DefaultRecheckInterval = 24 * time.Hour

// Source recorded on records verified by this engine.
const sourceRemoteAuthority = "remote_authority"

// Verifier runs the reconciliation state machine.
type Verifier struct {
	authority        remote.Authority
	clk              clock.Clock
	currentUserID    string
	recheckInterval  time.Duration
	transientRetries uint64
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithRecheckInterval overrides the 24-hour freshness window.
func WithRecheckInterval(d time.Duration) Option {
	return func(v *Verifier) { v.recheckInterval = d }
}

// WithTransientRetries sets how many times a transient authority error is
// retried with exponential backoff before the verdict degrades. Use 0 in
// tests to avoid backoff sleeps.
func WithTransientRetries(n uint64) Option {
	return func(v *Verifier) { v.transientRetries = n }
}

// New creates a Verifier. currentUserID is the locally known identity of
// the signed-in user, needed to pick the other member of a two-party
// conversation.
func New(authority remote.Authority, clk clock.Clock, currentUserID string, opts ...Option) *Verifier {
	v := &Verifier{
		authority:        authority,
		clk:              clk,
		currentUserID:    currentUserID,
		recheckInterval:  DefaultRecheckInterval,
		transientRetries: 2,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Check reconciles rec against the authority and stamps it according to the
// verdict: verify and fix_and_verify leave rec verified (fix_and_verify
// also rewrites its identity from authoritative data); mark_unverified
// stamps the degraded state and bumps the retry counter. The caller
// persists or deletes rec based on the verdict; Check never touches the
// store.
func (v *Verifier) Check(ctx context.Context, rec *record.Record) Outcome {
	if rec.IsVerified && !rec.VerifiedAt.IsZero() &&
		v.clk.Now().Sub(rec.VerifiedAt) < v.recheckInterval {
		return Outcome{Verdict: VerdictSkip}
	}
	return v.Recheck(ctx, rec)
}

// Recheck is Check without the freshness skip, for forced full sweeps.
func (v *Verifier) Recheck(ctx context.Context, rec *record.Record) Outcome {
	now := v.clk.Now()

	// Nothing to ask the authority about: no channel identifier, or only a
	// locally-synthesized placeholder.
	if rec.ChannelIdentifier == "" || record.IsLocalID(rec.ChannelIdentifier) {
		return v.degrade(rec, now, "missing channel identifier")
	}

	info, err := v.fetch(ctx, rec.ChannelIdentifier)
	if err != nil {
		reason := "not found"
		if !errors.Is(err, remote.ErrNotFound) {
			reason = fmt.Sprintf("authority unreachable: %v", err)
		}
		return v.degrade(rec, now, reason)
	}

	// Identifier mismatch is a hard failure, never repaired in place.
	if info.ChannelIdentifier != rec.ChannelIdentifier {
		return v.degrade(rec, now, "identifier mismatch")
	}

	isDirect := info.IsDistinct && info.MemberCount == 2
	expectedType := record.TypeChannel
	if isDirect {
		expectedType = record.TypeUser
	}

	// A person record's locally-held user id must appear in the
	// authoritative member list.
	if expectedType == record.TypeUser && rec.UserID != "" && !info.HasMember(rec.UserID) {
		return v.degrade(rec, now, "membership check failed")
	}

	if v.matches(rec, info, expectedType, isDirect) {
		rec.MarkVerified(now, sourceRemoteAuthority)
		return Outcome{Verdict: VerdictVerify}
	}

	// Identifier is right but name/type/distinct-flag is wrong: rebuild the
	// identity from authoritative data and verify the result.
	v.applyAuthoritative(rec, info, isDirect)
	rec.MarkVerified(now, sourceRemoteAuthority)
	slog.Debug("record corrected from authority",
		"id", rec.ID,
		"channel", rec.ChannelIdentifier,
		"type", rec.Type)
	return Outcome{Verdict: VerdictFixAndVerify}
}

// degrade returns mark_unverified for pinned records (stamping the degraded
// state and retry counter) and delete for unpinned ones.
func (v *Verifier) degrade(rec *record.Record, now time.Time, reason string) Outcome {
	if !rec.IsPinned {
		return Outcome{Verdict: VerdictDelete, Reason: reason}
	}
	rec.MarkUnverified(now, reason)
	slog.Debug("record degraded",
		"id", rec.ID,
		"reason", reason,
		"retries", rec.VerificationRetryCount)
	return Outcome{Verdict: VerdictMarkUnverified, Reason: reason}
}

// matches reports whether the locally-held identity agrees with the
// authoritative channel data.
func (v *Verifier) matches(rec *record.Record, info *remote.ChannelInfo, expectedType record.Type, isDirect bool) bool {
	if rec.Type != expectedType {
		return false
	}
	if rec.IsDistinct != isDirect {
		return false
	}
	if isDirect {
		other := info.OtherMember(v.currentUserID)
		if other == nil {
			return false
		}
		return rec.Name == other.Name && rec.UserID == other.UserID
	}
	return rec.Name == info.Name
}

// applyAuthoritative rewrites rec's identity from the authoritative channel
// data: for a two-party conversation, from the member that is not the
// current user; for a multi-party channel, from the channel itself.
func (v *Verifier) applyAuthoritative(rec *record.Record, info *remote.ChannelInfo, isDirect bool) {
	rec.MemberCount = info.MemberCount
	rec.IsDistinct = isDirect
	rec.CustomType = info.CustomType

	if isDirect {
		if other := info.OtherMember(v.currentUserID); other != nil {
			rec.Name = other.Name
			rec.UserID = other.UserID
			if other.Avatar != "" {
				rec.Avatar = other.Avatar
			}
		}
		rec.Type = record.TypeUser
		rec.IsNoNameGroup = false
		return
	}

	rec.Name = info.Name
	rec.UserID = ""
	rec.Type = record.TypeChannel
	if info.Name != "" {
		rec.IsNoNameGroup = false
	}
}

// fetch calls the authority with bounded exponential backoff over transient
// errors. Not-found is permanent and returns immediately.
func (v *Verifier) fetch(ctx context.Context, channelID string) (*remote.ChannelInfo, error) {
	var info *remote.ChannelInfo
	op := func() error {
		ci, err := v.authority.GetChannel(ctx, channelID)
		if err != nil {
			if errors.Is(err, remote.ErrNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}
		info = ci
		return nil
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), v.transientRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return info, nil
}
