package service

import (
	"regexp"
	"strings"
)

// MatchType ranks how specifically a rule pattern matches a description.
// Lower is more specific.
type MatchType int

const (
	MatchExact     MatchType = 0
	MatchPrefix    MatchType = 1
	MatchWord      MatchType = 2
	MatchSubstring MatchType = 3
	// MatchNone is the sentinel for "rule does not apply"; it is never
	// returned inside a MatchResult.
	MatchNone MatchType = 99
)

// MatchResult is one applicable rule for a transaction description.
type MatchResult struct {
	RuleID       int64
	CategoryID   int64
	CategoryName string
	Pattern      string
	Type         MatchType
}

// Match classifies how pattern matches description. Both operands are
// trimmed and lowercased first. Precedence: exact equality, then prefix
// (merchant codes with trailing transaction ids), then whole-word (so "GAS"
// does not match "VEGAS"), then plain substring.
func Match(pattern, description string) MatchType {
	p := strings.ToLower(strings.TrimSpace(pattern))
	d := strings.ToLower(strings.TrimSpace(description))
	switch {
	case p == d:
		return MatchExact
	case strings.HasPrefix(d, p):
		return MatchPrefix
	case wordBoundaryMatch(p, d):
		return MatchWord
	case strings.Contains(d, p):
		return MatchSubstring
	default:
		return MatchNone
	}
}

// wordBoundaryMatch reports whether p occurs in d as a standalone word. The
// pattern is user-supplied free text, so it is always regex-escaped before
// the boundary anchors are added.
func wordBoundaryMatch(p, d string) bool {
	if p == "" {
		return false
	}
	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(p) + `\b`)
	if err != nil {
		return false
	}
	return re.MatchString(d)
}

// BestMatches returns the subset of matches achieving the lowest (most
// specific) match type, plus that type. An empty input yields an empty set
// and MatchNone.
func BestMatches(matches []MatchResult) ([]MatchResult, MatchType) {
	if len(matches) == 0 {
		return nil, MatchNone
	}
	best := matches[0].Type
	for _, m := range matches[1:] {
		if m.Type < best {
			best = m.Type
		}
	}
	out := make([]MatchResult, 0, len(matches))
	for _, m := range matches {
		if m.Type == best {
			out = append(out, m)
		}
	}
	return out, best
}
