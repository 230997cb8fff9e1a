package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/castlight/rolodex/internal/record"
)

// recordColumns is the canonical column list shared by every records query.
// Scan order in scanRecord must match.
const recordColumns = `
	id, original_id, user_id, name, name_normalized, type,
	channel_identifier, member_count, is_distinct, custom_type,
	is_no_name_group, email, avatar, job_title, department_name,
	location_name, bio, last_opened_time, last_seen, is_recent,
	interaction_count, metrics_count_7d, metrics_count_30d,
	metrics_last_interaction, metrics_avg_days, recent_history,
	is_pinned, pinned_at, pinned_order, search_keywords, shared_channels,
	is_verified, verified_at, verification_source, is_unverified,
	unverification_reason, last_verification_attempt,
	verification_retry_count, created_at, updated_at`

// Put writes a record as a full-row upsert keyed by id. The normalized name
// column is maintained here so every write keeps the name index consistent
// (CP-2).
func (s *Store) Put(ctx context.Context, r *record.Record) error {
	history, err := json.Marshal(timesToUnix(r.Metrics.RecentHistory))
	if err != nil {
		return fmt.Errorf("put record: marshal history: %w", err)
	}
	keywords, err := json.Marshal(emptyIfNil(r.SearchKeywords))
	if err != nil {
		return fmt.Errorf("put record: marshal keywords: %w", err)
	}
	shared, err := json.Marshal(emptyIfNil(r.SharedChannelIDs))
	if err != nil {
		return fmt.Errorf("put record: marshal shared channels: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
		        ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			original_id = excluded.original_id,
			user_id = excluded.user_id,
			name = excluded.name,
			name_normalized = excluded.name_normalized,
			type = excluded.type,
			channel_identifier = excluded.channel_identifier,
			member_count = excluded.member_count,
			is_distinct = excluded.is_distinct,
			custom_type = excluded.custom_type,
			is_no_name_group = excluded.is_no_name_group,
			email = excluded.email,
			avatar = excluded.avatar,
			job_title = excluded.job_title,
			department_name = excluded.department_name,
			location_name = excluded.location_name,
			bio = excluded.bio,
			last_opened_time = excluded.last_opened_time,
			last_seen = excluded.last_seen,
			is_recent = excluded.is_recent,
			interaction_count = excluded.interaction_count,
			metrics_count_7d = excluded.metrics_count_7d,
			metrics_count_30d = excluded.metrics_count_30d,
			metrics_last_interaction = excluded.metrics_last_interaction,
			metrics_avg_days = excluded.metrics_avg_days,
			recent_history = excluded.recent_history,
			is_pinned = excluded.is_pinned,
			pinned_at = excluded.pinned_at,
			pinned_order = excluded.pinned_order,
			search_keywords = excluded.search_keywords,
			shared_channels = excluded.shared_channels,
			is_verified = excluded.is_verified,
			verified_at = excluded.verified_at,
			verification_source = excluded.verification_source,
			is_unverified = excluded.is_unverified,
			unverification_reason = excluded.unverification_reason,
			last_verification_attempt = excluded.last_verification_attempt,
			verification_retry_count = excluded.verification_retry_count,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`,
		r.ID,
		r.OriginalID,
		r.UserID,
		r.Name,
		record.NormalizeName(r.Name),
		string(r.Type),
		r.ChannelIdentifier,
		r.MemberCount,
		boolToInt(r.IsDistinct),
		r.CustomType,
		boolToInt(r.IsNoNameGroup),
		r.Email,
		r.Avatar,
		r.JobTitle,
		r.DepartmentName,
		r.LocationName,
		r.Bio,
		timeToUnix(r.LastOpenedTime),
		timeToUnix(r.LastSeen),
		boolToInt(r.IsRecent),
		r.InteractionCount,
		r.Metrics.CountLast7Days,
		r.Metrics.CountLast30Days,
		timeToUnix(r.Metrics.LastInteractionTime),
		r.Metrics.AverageDaysBetween,
		string(history),
		boolToInt(r.IsPinned),
		timeToUnix(r.PinnedAt),
		r.PinnedOrder,
		string(keywords),
		string(shared),
		boolToInt(r.IsVerified),
		timeToUnix(r.VerifiedAt),
		r.VerificationSource,
		boolToInt(r.IsUnverified),
		r.UnverificationReason,
		timeToUnix(r.LastVerificationAttempt),
		r.VerificationRetryCount,
		timeToUnix(r.CreatedAt),
		timeToUnix(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put record %s: %w", r.ID, err)
	}
	return nil
}

// Get returns the record with the given id, or nil if absent.
func (s *Store) Get(ctx context.Context, id string) (*record.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	return scanOne(row, "get record")
}

// GetByChannelIdentifier returns the record holding the given channel
// identifier, or nil if absent. Multiple matches (possible before a dedup
// pass converges) resolve to the most recently updated.
func (s *Store) GetByChannelIdentifier(ctx context.Context, channelID string) (*record.Record, error) {
	if channelID == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE channel_identifier = ?
		ORDER BY updated_at DESC, id ASC
		LIMIT 1
	`, channelID)
	return scanOne(row, "get by channel identifier")
}

// GetByOriginalID returns the record with the given legacy numeric id, or
// nil if absent.
func (s *Store) GetByOriginalID(ctx context.Context, originalID int64) (*record.Record, error) {
	if originalID == 0 {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE original_id = ?
		ORDER BY updated_at DESC, id ASC
		LIMIT 1
	`, originalID)
	return scanOne(row, "get by original id")
}

// Delete removes the record with the given id. Deleting an absent record is
// a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	return nil
}

// All returns every record, ordered deterministically by id.
func (s *Store) All(ctx context.Context) ([]*record.Record, error) {
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM records
		ORDER BY id COLLATE BINARY ASC
	`)
}

// ListByNormalizedName returns records whose normalized name equals the
// normalized form of name.
func (s *Store) ListByNormalizedName(ctx context.Context, name string) ([]*record.Record, error) {
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE name_normalized = ?
		ORDER BY updated_at DESC, id COLLATE BINARY ASC
	`, record.NormalizeName(name))
}

// ListByUserID returns person records for the given user identifier.
func (s *Store) ListByUserID(ctx context.Context, userID string) ([]*record.Record, error) {
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE user_id = ?
		ORDER BY updated_at DESC, id COLLATE BINARY ASC
	`, userID)
}

// ListUnverified returns records currently flagged unverified.
func (s *Store) ListUnverified(ctx context.Context) ([]*record.Record, error) {
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE is_unverified = 1
		ORDER BY id COLLATE BINARY ASC
	`)
}

// ListNoNameGroups returns channel records flagged as unresolved no-name
// groups, for background recovery.
func (s *Store) ListNoNameGroups(ctx context.Context) ([]*record.Record, error) {
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE is_no_name_group = 1
		ORDER BY id COLLATE BINARY ASC
	`)
}

// ListPinned returns pinned records ordered by explicit pinned order where
// set, falling back to recency for records without one.
func (s *Store) ListPinned(ctx context.Context) ([]*record.Record, error) {
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE is_pinned = 1
		ORDER BY
			CASE WHEN pinned_order > 0 THEN 0 ELSE 1 END,
			pinned_order ASC,
			last_opened_time DESC,
			id COLLATE BINARY ASC
	`)
}

// ListRecent returns records marked recent, most recently opened first,
// bounded to limit. Name-level deduplication is the caller's concern.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]*record.Record, error) {
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE is_recent = 1
		ORDER BY last_opened_time DESC, id COLLATE BINARY ASC
		LIMIT ?
	`, limit)
}

// MaxPinnedOrder returns the highest explicit pinned order in use, 0 when
// nothing is pinned with an explicit order.
func (s *Store) MaxPinnedOrder(ctx context.Context) (int, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(pinned_order) FROM records WHERE is_pinned = 1`).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max pinned order: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64), nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]*record.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []*record.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	// Return empty slice instead of nil
	if records == nil {
		records = []*record.Record{}
	}
	return records, nil
}

// scanner abstracts sql.Row and sql.Rows for scanRecord.
type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row *sql.Row, op string) (*record.Record, error) {
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return r, nil
}

func scanRecord(sc scanner) (*record.Record, error) {
	var (
		r                                     record.Record
		typ                                   string
		isDistinct, isNoName, isRecent        int
		isPinned, isVerified, isUnverified    int
		lastOpened, lastSeen, lastInteraction int64
		pinnedAt, verifiedAt, lastAttempt     int64
		createdAt, updatedAt                  int64
		nameNormalized, historyJSON           string
		keywordJSON, sharedJSON               string
	)

	err := sc.Scan(
		&r.ID,
		&r.OriginalID,
		&r.UserID,
		&r.Name,
		&nameNormalized,
		&typ,
		&r.ChannelIdentifier,
		&r.MemberCount,
		&isDistinct,
		&r.CustomType,
		&isNoName,
		&r.Email,
		&r.Avatar,
		&r.JobTitle,
		&r.DepartmentName,
		&r.LocationName,
		&r.Bio,
		&lastOpened,
		&lastSeen,
		&isRecent,
		&r.InteractionCount,
		&r.Metrics.CountLast7Days,
		&r.Metrics.CountLast30Days,
		&lastInteraction,
		&r.Metrics.AverageDaysBetween,
		&historyJSON,
		&isPinned,
		&pinnedAt,
		&r.PinnedOrder,
		&keywordJSON,
		&sharedJSON,
		&isVerified,
		&verifiedAt,
		&r.VerificationSource,
		&isUnverified,
		&r.UnverificationReason,
		&lastAttempt,
		&r.VerificationRetryCount,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Type = record.Type(typ)
	r.IsDistinct = isDistinct != 0
	r.IsNoNameGroup = isNoName != 0
	r.IsRecent = isRecent != 0
	r.IsPinned = isPinned != 0
	r.IsVerified = isVerified != 0
	r.IsUnverified = isUnverified != 0
	r.LastOpenedTime = unixToTime(lastOpened)
	r.LastSeen = unixToTime(lastSeen)
	r.Metrics.LastInteractionTime = unixToTime(lastInteraction)
	r.PinnedAt = unixToTime(pinnedAt)
	r.VerifiedAt = unixToTime(verifiedAt)
	r.LastVerificationAttempt = unixToTime(lastAttempt)
	r.CreatedAt = unixToTime(createdAt)
	r.UpdatedAt = unixToTime(updatedAt)

	var history []int64
	if err := json.Unmarshal([]byte(historyJSON), &history); err != nil {
		return nil, fmt.Errorf("unmarshal history for %s: %w", r.ID, err)
	}
	r.Metrics.RecentHistory = unixToTimes(history)

	if err := json.Unmarshal([]byte(keywordJSON), &r.SearchKeywords); err != nil {
		return nil, fmt.Errorf("unmarshal keywords for %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(sharedJSON), &r.SharedChannelIDs); err != nil {
		return nil, fmt.Errorf("unmarshal shared channels for %s: %w", r.ID, err)
	}
	// Empty JSON arrays scan back to nil so round trips compare equal.
	if len(r.SearchKeywords) == 0 {
		r.SearchKeywords = nil
	}
	if len(r.SharedChannelIDs) == 0 {
		r.SharedChannelIDs = nil
	}

	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// timeToUnix stores times as unix nanoseconds; the zero time maps to 0 so
// "never" survives round-trips.
func timeToUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func unixToTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func timesToUnix(ts []time.Time) []int64 {
	out := make([]int64, len(ts))
	for i, t := range ts {
		out[i] = timeToUnix(t)
	}
	return out
}

func unixToTimes(ns []int64) []time.Time {
	if len(ns) == 0 {
		return nil
	}
	out := make([]time.Time, len(ns))
	for i, n := range ns {
		out[i] = unixToTime(n)
	}
	return out
}

func emptyIfNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
