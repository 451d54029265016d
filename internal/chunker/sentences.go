package chunker

import (
	"strings"
	"unicode"
)

var commonAbbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}, "sr": {}, "jr": {},
	"st": {}, "mt": {}, "vs": {}, "etc": {}, "no": {}, "vol": {}, "rev": {},
	"fig": {}, "al": {}, "inc": {}, "ltd": {}, "co": {}, "dept": {}, "est": {},
	"jan": {}, "feb": {}, "mar": {}, "apr": {}, "jun": {}, "jul": {}, "aug": {},
	"sep": {}, "sept": {}, "oct": {}, "nov": {}, "dec": {}, "approx": {},
	"gen": {}, "gov": {}, "sen": {}, "rep": {}, "lt": {}, "col": {}, "capt": {},
	"a.m": {}, "p.m": {}, "e.g": {}, "i.e": {}, "u.s": {}, "u.k": {},
}

// splitIntoSentences splits a paragraph at sentence-ending punctuation,
// skipping abbreviations, decimals, ellipses and initials.
func splitIntoSentences(text string) []string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}

	var sentences []string
	start := 0

	for i := 0; i < len(text); i++ {
		ch := text[i]
		if !isSentencePunctuation(ch) {
			continue
		}
		if ch == '.' && shouldSkipPeriodSplit(text, i) {
			continue
		}
		if !isBoundary(text, i) {
			continue
		}

		// Include closing quotes and brackets with the sentence.
		end := i + 1
		for end < len(text) && isClosingPunctuation(text[end]) {
			end++
		}
		if s := strings.TrimSpace(text[start:end]); s != "" {
			sentences = append(sentences, s)
		}
		start = end
		i = end - 1
	}

	if tail := strings.TrimSpace(text[start:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

func isSentencePunctuation(ch byte) bool {
	return ch == '.' || ch == '!' || ch == '?'
}

func shouldSkipPeriodSplit(text string, idx int) bool {
	// Ellipsis
	if (idx > 0 && text[idx-1] == '.') || (idx+1 < len(text) && text[idx+1] == '.') {
		return true
	}

	// Decimal numbers
	if idx > 0 && idx+1 < len(text) && isDigit(text[idx-1]) && isDigit(text[idx+1]) {
		return true
	}

	token := tokenBeforePeriod(text, idx)
	if token == "" {
		return false
	}

	// Initials and single-letter abbreviations (e.g., "A.")
	if len(token) == 1 && isAlpha(token[0]) {
		return true
	}

	// Known abbreviations
	if _, ok := commonAbbreviations[strings.ToLower(token)]; ok {
		return true
	}

	return false
}

func tokenBeforePeriod(text string, idx int) string {
	i := idx - 1
	for i >= 0 && !isTokenBoundary(text[i]) {
		i--
	}
	return text[i+1 : idx]
}

func isBoundary(text string, punctIdx int) bool {
	i := punctIdx + 1
	for i < len(text) && isClosingPunctuation(text[i]) {
		i++
	}
	if i >= len(text) {
		return true
	}
	if !isSpace(text[i]) {
		return false
	}
	for i < len(text) && isSpace(text[i]) {
		i++
	}
	if i >= len(text) {
		return true
	}

	return isLikelySentenceStart(text, i)
}

func isLikelySentenceStart(text string, idx int) bool {
	if idx >= len(text) {
		return false
	}
	r := rune(text[idx])
	if unicode.IsUpper(r) || unicode.IsDigit(r) {
		return true
	}
	if isOpeningQuoteOrBracket(text[idx]) {
		j := idx + 1
		for j < len(text) && isOpeningQuoteOrBracket(text[j]) {
			j++
		}
		if j < len(text) {
			rr := rune(text[j])
			return unicode.IsUpper(rr) || unicode.IsDigit(rr)
		}
	}
	return false
}

func isTokenBoundary(ch byte) bool {
	return isSpace(ch) || ch == '"' || ch == '\'' || ch == '(' || ch == ')' || ch == '[' || ch == ']' || ch == '{' || ch == '}'
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\n' || ch == '\t'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isAlpha(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isClosingPunctuation(ch byte) bool {
	switch ch {
	case '"', '\'', ')', ']', '}':
		return true
	default:
		return false
	}
}

func isOpeningQuoteOrBracket(ch byte) bool {
	switch ch {
	case '"', '\'', '(', '[', '{':
		return true
	default:
		return false
	}
}
