package synth

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DefaultMaxChars is the provider input limit applied after sanitizing.
const DefaultMaxChars = 2800

var paragraphBreak = regexp.MustCompile(`\n{2,}`)

// Sanitize prepares text for a speech provider: NFC-normalize, keep only
// tab/LF/CR, printable ASCII and Latin-1 letters, spell out "&", drop angle
// brackets, turn paragraph breaks into sentence pauses, and cut to limit runes.
func Sanitize(text string, limit int) string {
	text, _ = sanitize(text, limit)
	return text
}

// sanitize is Sanitize that also reports how many runes the limit cut.
func sanitize(text string, limit int) (string, int) {
	if limit <= 0 {
		limit = DefaultMaxChars
	}

	text = norm.NFC.String(text)
	text = strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			return r
		case r >= 0x20 && r <= 0x7e:
			return r
		case r >= 0xc0 && r <= 0xff:
			return r
		default:
			return -1
		}
	}, text)

	text = strings.ReplaceAll(text, "&", "and")
	text = strings.NewReplacer("<", "", ">", "").Replace(text)
	text = paragraphBreak.ReplaceAllString(text, ". ")
	text = strings.TrimSpace(text)

	if n := utf8.RuneCountInString(text); n > limit {
		return string([]rune(text)[:limit]), n - limit
	}
	return text, 0
}
