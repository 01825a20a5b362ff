// Package textsplit cuts document text into overlapping chunks sized for
// embedding. Cuts prefer natural boundaries: paragraph break, then line
// break, then sentence end, then word gap, falling back to a hard rune
// split when the window contains none of those.
package textsplit

import (
	"strings"
	"unicode"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// Split returns the chunks of text in order. size is the target chunk
// length in runes; consecutive chunks overlap by roughly overlap runes.
// Chunks are trimmed of surrounding whitespace; blank chunks are dropped.
func Split(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 10
	}

	runes := []rune(text)
	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			appendChunk(&chunks, runes[start:])
			break
		}
		cut := boundary(runes, start, end)
		appendChunk(&chunks, runes[start:cut])

		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return chunks
}

func appendChunk(chunks *[]string, part []rune) {
	chunk := strings.TrimSpace(string(part))
	if chunk != "" {
		*chunks = append(*chunks, chunk)
	}
}

// boundary picks the cut position in (floor, end], scanning backwards so
// the chunk stays as close to the target size as possible. The floor at
// half the window keeps a pathological boundary near the chunk start from
// producing tiny chunks.
func boundary(runes []rune, start, end int) int {
	floor := start + (end-start)/2

	for i := end; i > floor; i-- {
		if i >= 2 && runes[i-1] == '\n' && runes[i-2] == '\n' {
			return i
		}
	}
	for i := end; i > floor; i-- {
		if runes[i-1] == '\n' {
			return i
		}
	}
	for i := end; i > floor; i-- {
		if isSentenceEnd(runes[i-1]) && i < len(runes) && unicode.IsSpace(runes[i]) {
			return i
		}
	}
	for i := end; i > floor; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
