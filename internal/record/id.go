package record

import (
	"strings"

	"github.com/google/uuid"
)

// LocalIDPrefix marks identifiers synthesized locally for records first seen
// without a remote channel identifier. Local identifiers lose keeper
// selection against server-issued identifiers during consolidation.
const LocalIDPrefix = "local-"

// GroupChannelPrefix is the reserved prefix for multi-party channel
// identifiers. A record carrying a group-prefixed id whose channel
// identifier disagrees with the id is corrupt and rejected at write time.
const GroupChannelPrefix = "mpc-"

// NewLocalID returns a fresh locally-synthesized placeholder identifier.
//
// Uses UUIDv7 so placeholder ids sort by creation time, which helps when
// eyeballing a store dump.
func NewLocalID() string {
	return LocalIDPrefix + uuid.Must(uuid.NewV7()).String()
}

// IsLocalID reports whether id is a locally-synthesized placeholder.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// IsGroupChannelID reports whether id carries the reserved multi-party
// channel prefix.
func IsGroupChannelID(id string) bool {
	return strings.HasPrefix(id, GroupChannelPrefix)
}
