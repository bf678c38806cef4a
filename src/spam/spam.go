// Package spam classifies chat text as unsolicited advertising or link spam.
package spam

import (
	"regexp"
	"slices"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

// DefaultKeywords is the denylist used when none is configured.
var DefaultKeywords = []string{"viagra", "cialis", "casino", "lottery", "prize", "winner"}

var linkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(http|https|www\.)\b`),
	regexp.MustCompile(`(?i)\b([a-z0-9]([a-z0-9\-]{0,61}[a-z0-9])?\.)+[a-z]{2,6}\b`),
	regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`),
}

// Classifier reports whether text looks like spam. It is safe for concurrent use.
type Classifier struct {
	matcher *goahocorasick.Machine
}

// NewClassifier builds the keyword automaton from keywords. Keywords are
// matched case-insensitively and only as whole words.
func NewClassifier(keywords []string) (*Classifier, error) {
	words := lo.Uniq(lo.FilterMap(keywords, func(k string, _ int) (string, bool) {
		k = strings.ToLower(strings.TrimSpace(k))
		return k, k != ""
	}))
	if len(words) == 0 {
		return &Classifier{}, nil
	}
	// The double-array trie under the automaton expects sorted keys.
	slices.Sort(words)

	patterns := lo.Map(words, func(w string, _ int) []rune { return []rune(w) })
	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Classifier{matcher: m}, nil
}

// IsSpam reports whether text contains a denylisted keyword, a bare URL
// scheme or www token, a domain-shaped token or an email-shaped token.
func (c *Classifier) IsSpam(text string) bool {
	if text == "" {
		return false
	}
	if c.hasKeyword(text) {
		return true
	}
	for _, p := range linkPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func (c *Classifier) hasKeyword(text string) bool {
	if c == nil || c.matcher == nil {
		return false
	}
	runes := lo.Map([]rune(text), func(r rune, _ int) rune { return unicode.ToLower(r) })
	for _, term := range c.matcher.MultiPatternSearch(runes, false) {
		start, end := term.Pos, term.Pos+len(term.Word)
		if start < 0 || end > len(runes) {
			continue
		}
		if start > 0 && isWordRune(runes[start-1]) {
			continue
		}
		if end < len(runes) && isWordRune(runes[end]) {
			continue
		}
		return true
	}
	return false
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

var defaultClassifier = lo.Must(NewClassifier(DefaultKeywords))

// IsSpam classifies text with the default keyword list.
func IsSpam(text string) bool {
	return defaultClassifier.IsSpam(text)
}
