// Package record defines the identity records cached by the engine: one per
// known person or conversation channel, mirrored from the remote messaging
// directory.
//
// # Critical Patterns
//
// CP-1: Frozen Identity
//   - Identity is a distinct sub-structure so that "verified ⇒ identity
//     frozen" is enforced at one place (CarryIdentity) instead of ad-hoc
//     checks at every write site. Avatar is deliberately NOT part of
//     Identity: it is a signed, expiring reference and always mutable.
//
// CP-2: Type From Evidence
//   - A record's Type is derived strictly from the presence of a resolved
//     user identifier, never trusted from callers.
//
// CP-3: Normalized Keys
//   - All name-based grouping and matching uses NormalizeName (NFC, lower,
//     collapsed whitespace) so dedup and search agree on what "same name"
//     means.
package record

import "time"

// Type distinguishes person records from conversation-channel records.
type Type string

const (
	// TypeUser is a person record (has a resolved user identifier).
	TypeUser Type = "user"

	// TypeChannel is a conversation-channel record.
	TypeChannel Type = "channel"
)

// Identity is the freezable identity core of a record.
//
// Once a record is verified, routine writes must not alter these fields;
// they change only through a fresh successful verification (CP-1).
type Identity struct {
	// ID is the primary key. After the primary-key migration this equals
	// ChannelIdentifier for every record that has one.
	ID string

	// OriginalID is the legacy numeric identifier, retained for
	// traceability. Zero means the record never had one.
	OriginalID int64

	// UserID is the remote user identifier. Empty for channel records.
	UserID string

	// Name is the display name as last resolved.
	Name string

	// ChannelIdentifier is the remote authority's stable identifier for
	// the conversation. It is the trust anchor: identifier mismatches are
	// never silently repaired.
	ChannelIdentifier string
}

// Record is one cached person or conversation channel.
type Record struct {
	Identity

	Type Type

	// Channel metadata.
	MemberCount   int
	IsDistinct    bool // exactly-two-party direct conversation
	CustomType    string
	IsNoNameGroup bool // unnamed multi-party channel pending recovery

	// Profile. Avatar is exempt from identity freezing at all times.
	Email          string
	Avatar         string
	JobTitle       string
	DepartmentName string
	LocationName   string
	Bio            string

	// Interaction.
	LastOpenedTime   time.Time
	LastSeen         time.Time
	IsRecent         bool
	InteractionCount int
	Metrics          Metrics

	// Organization.
	IsPinned    bool
	PinnedAt    time.Time
	PinnedOrder int // dense rank among pinned records; 0 = unset (recency fallback)

	// Search support: deduplicated, case-normalized.
	SearchKeywords []string

	// SharedChannelIDs lists other channels this person is known to share
	// with the current user. Empty for channel records. Feeds the
	// relationship ranking boost and orphan-recovery reference cleanup.
	SharedChannelIDs []string

	// Verification.
	IsVerified              bool
	VerifiedAt              time.Time
	VerificationSource      string
	IsUnverified            bool
	UnverificationReason    string
	LastVerificationAttempt time.Time
	VerificationRetryCount  int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsPerson reports whether the record describes a person.
func (r *Record) IsPerson() bool {
	return r.Type == TypeUser
}

// IsChannel reports whether the record describes a conversation channel.
func (r *Record) IsChannel() bool {
	return r.Type == TypeChannel
}

// DeriveType returns the record type implied by a resolved user identifier
// (CP-2). Callers must use this over any externally supplied type.
func DeriveType(userID string) Type {
	if userID != "" {
		return TypeUser
	}
	return TypeChannel
}

// CarryIdentity copies the frozen identity core from an existing verified
// record onto r, discarding whatever identity the candidate write proposed.
// Avatar and all non-identity metadata on r are left untouched (CP-1).
func (r *Record) CarryIdentity(from *Record) {
	r.Identity = from.Identity
	r.Type = from.Type
}

// Touch records one interaction at the given time: bumps the interaction
// count, refreshes recency fields, and feeds the frequency metrics.
func (r *Record) Touch(now time.Time) {
	r.InteractionCount++
	r.LastOpenedTime = now
	r.LastSeen = now
	r.IsRecent = true
	r.Metrics.Record(now)
}

// AddKeywords merges the given terms into the record's search keywords,
// case-normalized and deduplicated. Empty terms are ignored.
func (r *Record) AddKeywords(terms ...string) {
	seen := make(map[string]bool, len(r.SearchKeywords)+len(terms))
	for _, k := range r.SearchKeywords {
		seen[k] = true
	}
	for _, t := range terms {
		n := NormalizeName(t)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		r.SearchKeywords = append(r.SearchKeywords, n)
	}
}

// AddSharedChannels merges channel identifiers into the shared-channel set,
// skipping empties, duplicates, and the record's own channel.
func (r *Record) AddSharedChannels(ids ...string) {
	seen := make(map[string]bool, len(r.SharedChannelIDs)+len(ids))
	for _, id := range r.SharedChannelIDs {
		seen[id] = true
	}
	for _, id := range ids {
		if id == "" || id == r.ChannelIdentifier || seen[id] {
			continue
		}
		seen[id] = true
		r.SharedChannelIDs = append(r.SharedChannelIDs, id)
	}
}

// HasKeyword reports whether the normalized form of term is among the
// record's search keywords.
func (r *Record) HasKeyword(term string) bool {
	n := NormalizeName(term)
	for _, k := range r.SearchKeywords {
		if k == n {
			return true
		}
	}
	return false
}

// MarkVerified stamps a successful verification and clears any degraded
// state, including the retry counter.
func (r *Record) MarkVerified(now time.Time, source string) {
	r.IsVerified = true
	r.VerifiedAt = now
	r.VerificationSource = source
	r.IsUnverified = false
	r.UnverificationReason = ""
	r.LastVerificationAttempt = now
	r.VerificationRetryCount = 0
}

// MarkUnverified stamps a degraded-trust state with the given reason and
// bumps the retry counter. The record stays user-visible rather than
// disappearing.
func (r *Record) MarkUnverified(now time.Time, reason string) {
	r.IsVerified = false
	r.IsUnverified = true
	r.UnverificationReason = reason
	r.LastVerificationAttempt = now
	r.VerificationRetryCount++
}
