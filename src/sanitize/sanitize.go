// Package sanitize turns raw client text into inert, length-bounded display text.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxTextLength caps chat message text, in runes.
	MaxTextLength = 1000
	// MaxNicknameLength caps display nicknames, in runes.
	MaxNicknameLength = 32
)

// Single pass: entities introduced here are never re-escaped.
var escaper = strings.NewReplacer(
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#039;",
)

var schemePattern = regexp.MustCompile(`(?i)(javascript|data|vbscript):`)

// Text escapes HTML-significant characters, strips control and invisible
// format characters, removes script-capable URL schemes and truncates the
// result to MaxTextLength runes.
func Text(text string) string {
	return pipeline(text, MaxTextLength)
}

// Nickname runs the Text pipeline on a trimmed nickname with the shorter
// MaxNicknameLength cap.
func Nickname(nickname string) string {
	return strings.TrimSpace(pipeline(strings.TrimSpace(nickname), MaxNicknameLength))
}

func pipeline(text string, limit int) string {
	if text == "" {
		return ""
	}
	out := escaper.Replace(text)
	out = strings.Map(dropDangerous, out)
	out = stripSchemes(out)
	return Truncate(out, limit)
}

// dropDangerous removes C0 controls, DEL and C1 controls, the U+2000..U+200D
// space/format block and the byte-order mark.
func dropDangerous(r rune) rune {
	switch {
	case r <= 0x1F:
		return -1
	case r >= 0x7F && r <= 0x9F:
		return -1
	case r >= 0x2000 && r <= 0x200D:
		return -1
	case r == 0xFEFF:
		return -1
	}
	return r
}

// stripSchemes repeats until no scheme remains so "jajavascript:vascript:"
// cannot reassemble one.
func stripSchemes(text string) string {
	for schemePattern.MatchString(text) {
		text = schemePattern.ReplaceAllString(text, "")
	}
	return text
}

// Truncate cuts text to at most limit runes.
func Truncate(text string, limit int) string {
	if limit < 0 {
		limit = 0
	}
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	n := 0
	for i := range text {
		if n == limit {
			return text[:i]
		}
		n++
	}
	return text
}
