// Package chunker splits a transcript into provider-sized pieces.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxChars is the chunk size used when callers pass zero.
const DefaultMaxChars = 5800

// Chunk is one ordered piece of the transcript. Size is in runes.
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Size  int    `json:"size"`
}

var blankLineRun = regexp.MustCompile(`\n{3,}`)

// Normalize unifies line endings, collapses runs of blank lines, and trims.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = blankLineRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Split breaks text into chunks of at most maxChars runes, preferring
// paragraph, then sentence, then word boundaries. The result is
// deterministic for a given input.
func Split(text string, maxChars int) []Chunk {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	text = Normalize(text)
	if text == "" {
		return []Chunk{}
	}
	if runeLen(text) <= maxChars {
		return []Chunk{{Index: 0, Text: text, Size: runeLen(text)}}
	}

	p := &packer{max: maxChars}
	for _, para := range paragraphs(text) {
		if runeLen(para) <= maxChars {
			p.add(para, "\n\n")
			continue
		}

		p.flush()
		for _, sentence := range splitIntoSentences(para) {
			if runeLen(sentence) <= maxChars {
				p.add(sentence, " ")
				continue
			}
			p.flush()
			p.addWords(sentence)
			p.flush()
		}
		p.flush()
	}
	p.flush()

	pieces := enforceLimit(p.out, maxChars)

	chunks := make([]Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, Chunk{Index: i, Text: piece, Size: runeLen(piece)})
	}
	return chunks
}

// packer greedily joins units while the joined text fits.
type packer struct {
	max int
	cur strings.Builder
	n   int
	out []string
}

func (p *packer) add(unit, sep string) {
	size := runeLen(unit)
	if p.n > 0 && p.n+runeLen(sep)+size <= p.max {
		p.cur.WriteString(sep)
		p.cur.WriteString(unit)
		p.n += runeLen(sep) + size
		return
	}
	p.flush()
	p.cur.WriteString(unit)
	p.n = size
}

func (p *packer) addWords(text string) {
	for _, word := range strings.Fields(text) {
		if runeLen(word) > p.max {
			word = truncate(word, p.max)
		}
		p.add(word, " ")
	}
}

func (p *packer) flush() {
	if p.n == 0 {
		return
	}
	if s := strings.TrimSpace(p.cur.String()); s != "" {
		p.out = append(p.out, s)
	}
	p.cur.Reset()
	p.n = 0
}

// enforceLimit re-splits any piece that still exceeds max on word boundaries.
func enforceLimit(pieces []string, max int) []string {
	out := make([]string, 0, len(pieces))
	for _, piece := range pieces {
		if runeLen(piece) <= max {
			out = append(out, piece)
			continue
		}
		p := &packer{max: max}
		p.addWords(piece)
		p.flush()
		out = append(out, p.out...)
	}
	return out
}

func paragraphs(text string) []string {
	var out []string
	for _, para := range strings.Split(text, "\n\n") {
		if para = strings.TrimSpace(para); para != "" {
			out = append(out, para)
		}
	}
	return out
}

// truncate cuts s to max runes, ending in "...".
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
