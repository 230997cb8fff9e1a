package upsert

import (
	"errors"
	"fmt"
)

// WriteError reports a write rejected before it reached the store.
//
// Corruption rejections are deliberate: internally inconsistent identity
// fields are never auto-repaired, the write is dropped and logged so the
// store keeps converging from trustworthy input only.
type WriteError struct {
	// Code identifies the rejection category.
	Code WriteErrorCode

	// Message is a human-readable description.
	Message string

	// RecordID identifies the affected record, when known.
	RecordID string
}

// WriteErrorCode categorizes write rejections.
type WriteErrorCode string

const (
	// ErrCodeGroupIdentifierMismatch indicates a group-prefixed id whose
	// channel identifier disagrees with the id.
	ErrCodeGroupIdentifierMismatch WriteErrorCode = "GROUP_IDENTIFIER_MISMATCH"

	// ErrCodeSharedChannelMismatch indicates a person record whose channel
	// identifier disagrees with the direct entry of its own shared-channel
	// metadata.
	ErrCodeSharedChannelMismatch WriteErrorCode = "SHARED_CHANNEL_MISMATCH"

	// ErrCodeLegacyNameMismatch indicates a legacy-id-keyed record whose
	// stored name disagrees with the incoming write.
	ErrCodeLegacyNameMismatch WriteErrorCode = "LEGACY_NAME_MISMATCH"

	// ErrCodeMissingChannelIdentifier indicates a write with no channel
	// identifier and no pinned record to repair.
	ErrCodeMissingChannelIdentifier WriteErrorCode = "MISSING_CHANNEL_IDENTIFIER"
)

// Error implements the error interface.
func (e *WriteError) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("%s: %s (record=%s)", e.Code, e.Message, e.RecordID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsCorruption reports whether err is a corruption rejection (as opposed to
// a missing required field). Uses errors.As to handle wrapped errors.
func IsCorruption(err error) bool {
	var we *WriteError
	if !errors.As(err, &we) {
		return false
	}
	switch we.Code {
	case ErrCodeGroupIdentifierMismatch, ErrCodeSharedChannelMismatch, ErrCodeLegacyNameMismatch:
		return true
	}
	return false
}

func newWriteError(code WriteErrorCode, recordID, format string, args ...any) *WriteError {
	return &WriteError{
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		RecordID: recordID,
	}
}
