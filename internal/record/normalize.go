package record

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName canonicalizes a display name for matching: NFC
// normalization, lower case, collapsed internal whitespace. The result is
// the key used by dedup grouping, keyword storage, and search matching
// (CP-3).
func NormalizeName(s string) string {
	s = norm.NFC.String(s)
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}

// LooksLikeNoNameGroup reports whether a display name matches the
// placeholder patterns the client synthesizes for multi-party channels with
// no resolvable identity: empty, a comma-joined list of member names, or a
// truncated list with a trailing dash.
//
// This is a best-effort signal, not a correctness guarantee. Callers must
// additionally gate on the record being a non-distinct channel before
// flagging it.
func LooksLikeNoNameGroup(name string) bool {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return true
	}
	if strings.HasSuffix(trimmed, "-") {
		return true
	}
	return strings.Contains(trimmed, ",")
}
