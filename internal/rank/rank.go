// Package rank scores the record set against a search term. Scoring is a
// pure function of the records, the term, and the current time; it holds no
// state and never touches the store, so callers can rank any snapshot they
// already have in hand.
//
// A record scores only if at least one text signal matches. Interaction,
// frequency and relationship boosts then stack on top, so a frequently used
// match outranks a cold one, and an exact channel-name match outranks
// everything else.
package rank

import (
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/castlight/rolodex/internal/clock"
	"github.com/castlight/rolodex/internal/record"
)

// selfKeywords are the terms that surface the user's own self conversation.
var selfKeywords = map[string]bool{
	"me":     true,
	"self":   true,
	"myself": true,
	"you":    true,
}

// Match is one scored search hit.
type Match struct {
	Record *record.Record
	Score  int
}

// Ranker scores records against search terms.
type Ranker struct {
	clk clock.Clock
}

// New creates a Ranker. The clock drives the recency and frequency boosts.
func New(clk clock.Clock) *Ranker {
	return &Ranker{clk: clk}
}

// Search scores every record against the term and returns the top matches
// by descending score, at most limit (no bound when limit <= 0). Records
// with no matching text signal are excluded entirely. Ties keep the input
// order.
func (rk *Ranker) Search(records []*record.Record, term string, limit int) []Match {
	q := record.NormalizeName(term)
	if q == "" {
		return nil
	}
	now := rk.clk.Now()

	var out []Match
	for _, r := range records {
		if s := rk.score(r, q, now); s > 0 {
			out = append(out, Match{Record: r, Score: s})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (rk *Ranker) score(r *record.Record, q string, now time.Time) int {
	text := textScore(r, q)
	if text == 0 {
		return 0
	}
	return text + interactionScore(r, now) + frequencyScore(r, now) + relationshipScore(r)
}

func textScore(r *record.Record, q string) int {
	s := 0
	name := record.NormalizeName(r.Name)
	if name != "" && strings.Contains(name, q) {
		s += 100
	}
	if isSelfChannel(r) && selfKeywords[q] {
		s += 150
	}
	if containsFold(r.Email, q) {
		s += 80
	}
	if containsFold(r.Bio, q) {
		s += 110
	}
	if containsFold(r.JobTitle, q) {
		s += 60
	}
	if containsFold(r.DepartmentName, q) {
		s += 40
	}
	if r.HasKeyword(q) {
		s += 70
	}
	if r.IsChannel() && containsFold(r.ChannelIdentifier, q) {
		s += 50
	}

	// Intentional group-name searches outrank every relationship boost.
	if r.IsChannel() && name != "" {
		switch {
		case name == q:
			s += 1000
		case hasWholeWord(name, q):
			s += 900
		}
	}
	return s
}

func interactionScore(r *record.Record, now time.Time) int {
	s := 0
	if r.IsPinned {
		s += 500
	}
	if r.IsRecent {
		s += 200
	}
	s += min(r.InteractionCount*10, 100)
	if !r.LastOpenedTime.IsZero() && now.Sub(r.LastOpenedTime) < 7*24*time.Hour {
		s += 50
	}
	return s
}

func frequencyScore(r *record.Record, now time.Time) int {
	m := r.Metrics
	m.Decay(now)

	s := 0
	switch {
	case m.CountLast7Days >= 5:
		s += 150
	case m.CountLast7Days >= 3:
		s += 100
	case m.CountLast7Days >= 1:
		s += 50
	}
	switch {
	case m.AverageDaysBetween > 0 && m.AverageDaysBetween < 3:
		s += 75
	case m.AverageDaysBetween > 0 && m.AverageDaysBetween < 7:
		s += 50
	}
	if !m.LastInteractionTime.IsZero() && now.Sub(m.LastInteractionTime) < 24*time.Hour {
		s += 100
	}
	return s
}

// relationshipScore boosts people the user demonstrably talks to: +200 for
// an established direct conversation, +100 per additional shared channel up
// to four.
func relationshipScore(r *record.Record) int {
	if !r.IsPerson() || r.ChannelIdentifier == "" {
		return 0
	}
	return 200 + 100*min(len(r.SharedChannelIDs), 4)
}

func isSelfChannel(r *record.Record) bool {
	return r.IsChannel() && r.MemberCount <= 1
}

func containsFold(field, q string) bool {
	return field != "" && strings.Contains(strings.ToLower(field), q)
}

// hasWholeWord reports whether q occurs in name bounded by word breaks on
// both sides. q may span several words ("flight ops" inside "flight ops
// weekly").
func hasWholeWord(name, q string) bool {
	if q == "" {
		return false
	}
	for from := 0; from+len(q) <= len(name); {
		idx := strings.Index(name[from:], q)
		if idx < 0 {
			return false
		}
		start := from + idx
		end := start + len(q)
		before, _ := utf8.DecodeLastRuneInString(name[:start])
		after, _ := utf8.DecodeRuneInString(name[end:])
		if (start == 0 || !isWordRune(before)) && (end == len(name) || !isWordRune(after)) {
			return true
		}
		from = start + 1
	}
	return false
}

func isWordRune(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c)
}
