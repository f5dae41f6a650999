package polybot

import (
	"fmt"
	"strings"
)

// Marker renders the pagination marker appended to part n of total.
type Marker func(n, total int) string

// DefaultMarker renders " (n/total)". The leading space separates the marker
// from the text and counts against the limit like the rest of the marker, so
// a limit of 10 leaves four columns per part while there are fewer than ten.
func DefaultMarker(n, total int) string {
	return fmt.Sprintf(" (%d/%d)", n, total)
}

// maxDigits bounds the part count search; nobody threads a billion posts.
const maxDigits = 9

// Wrap splits text into parts of at most limit code points, each suffixed
// with a marker. Text that already fits is returned as a single part without
// a marker.
//
// Parts break at spaces; the breaking space is dropped, so joining the
// unmarked parts with single spaces gives back text. Extra spaces in a run
// stay with the following word. A word longer than a whole part is split
// mid-word, and pieces of it that are only spaces are dropped, so a part is
// never blank.
func Wrap(text string, limit int, marker Marker) ([]string, error) {
	if limit <= 0 || Length(text) <= limit {
		return []string{text}, nil
	}
	if marker == nil {
		marker = DefaultMarker
	}

	for digits, bound := 1, 9; digits <= maxDigits; digits, bound = digits+1, bound*10+9 {
		width := limit - Length(marker(bound, bound))
		if width < 1 {
			return nil, ErrLimitTooSmall
		}
		parts := split(text, width)
		if len(parts) > bound {
			continue
		}
		for i := range parts {
			parts[i] += marker(i+1, len(parts))
		}
		return parts, nil
	}
	return nil, ErrLimitTooSmall
}

// split greedily packs words into parts of at most width code points.
func split(text string, width int) []string {
	var (
		parts   []string
		current strings.Builder
		curLen  int
		started bool
	)
	flush := func() {
		parts = append(parts, current.String())
		current.Reset()
		curLen = 0
		started = false
	}

	for _, word := range words(text) {
		wordLen := Length(word)
		if started && curLen+1+wordLen <= width {
			current.WriteByte(' ')
			current.WriteString(word)
			curLen += 1 + wordLen
			continue
		}
		if started {
			flush()
		}
		for wordLen > width {
			runes := []rune(word)
			parts = append(parts, string(runes[:width]))
			word = string(runes[width:])
			wordLen -= width
		}
		current.WriteString(word)
		curLen = wordLen
		started = true
	}
	if started {
		flush()
	}

	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.Trim(p, " ") != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return parts
	}
	return kept
}

// words splits text at spaces, gluing each run of extra spaces to the word
// after it. Joining the words with single spaces gives back text.
func words(text string) []string {
	fields := strings.Split(text, " ")
	out := make([]string, 0, len(fields))
	pending := 0
	for _, f := range fields {
		if f == "" {
			pending++
			continue
		}
		out = append(out, strings.Repeat(" ", pending)+f)
		pending = 0
	}
	switch {
	case pending == 0:
	case len(out) > 0:
		out[len(out)-1] += strings.Repeat(" ", pending)
	default:
		out = append(out, strings.Repeat(" ", pending-1))
	}
	return out
}
