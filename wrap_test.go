package polybot

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func bareMarker(n, total int) string {
	return fmt.Sprintf("(%d/%d)", n, total)
}

// unwrap strips markers and rejoins the parts.
func unwrap(t *testing.T, parts []string, marker Marker) string {
	t.Helper()
	stripped := make([]string, len(parts))
	for i, p := range parts {
		m := marker(i+1, len(parts))
		if !strings.HasSuffix(p, m) {
			t.Fatalf("part %d %q lacks marker %q", i+1, p, m)
		}
		stripped[i] = strings.TrimSuffix(p, m)
	}
	return strings.Join(stripped, " ")
}

func TestWrapFits(t *testing.T) {
	tests := []string{"", "short", "exactly ten"[:10]}
	for _, text := range tests {
		parts, err := Wrap(text, 10, nil)
		if err != nil {
			t.Fatalf("Wrap(%q): %v", text, err)
		}
		if len(parts) != 1 || parts[0] != text {
			t.Errorf("Wrap(%q) = %q, want single unmarked part", text, parts)
		}
	}
}

func TestWrapScenario(t *testing.T) {
	text := "one two three four five"
	parts, err := Wrap(text, 10, bareMarker)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if len(parts) < 2 {
		t.Fatalf("Wrap produced %d parts, want several", len(parts))
	}
	for _, p := range parts {
		if Length(p) > 10 {
			t.Errorf("part %q exceeds limit", p)
		}
	}
	if got := unwrap(t, parts, bareMarker); got != text {
		t.Errorf("round trip = %q, want %q", got, text)
	}
	if parts[0] != "one(1/5)" {
		t.Errorf("first part = %q, want %q", parts[0], "one(1/5)")
	}
}

func TestWrapRoundTrip(t *testing.T) {
	texts := []string{
		strings.Repeat("lorem ipsum dolor sit amet ", 40),
		"a b c d e f g h i j k l m n o p q r s t u v w x y z",
		"spaces  inside   survive the trip because only one space is dropped at a break",
		"ünïcödé wörds with ačćents and 日本語 mixed in " + strings.Repeat("é", 20),
	}
	for _, text := range texts {
		for _, limit := range []int{30, 50, 280} {
			parts, err := Wrap(text, limit, DefaultMarker)
			if err != nil {
				t.Fatalf("Wrap(limit=%d): %v", limit, err)
			}
			for _, p := range parts {
				if Length(p) > limit {
					t.Errorf("limit %d: part %q is %d long", limit, p, Length(p))
				}
			}
			if len(parts) == 1 {
				if parts[0] != text {
					t.Errorf("limit %d: single part %q != text", limit, parts[0])
				}
				continue
			}
			if got := unwrap(t, parts, DefaultMarker); got != text {
				t.Errorf("limit %d: round trip = %q, want %q", limit, got, text)
			}
		}
	}
}

func TestWrapManyParts(t *testing.T) {
	// More than nine parts forces a two digit marker reservation.
	text := strings.TrimSpace(strings.Repeat("word ", 60))
	parts, err := Wrap(text, 20, DefaultMarker)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if len(parts) < 10 {
		t.Fatalf("got %d parts, want at least 10", len(parts))
	}
	for _, p := range parts {
		if Length(p) > 20 {
			t.Errorf("part %q exceeds limit", p)
		}
	}
	if got := unwrap(t, parts, DefaultMarker); got != text {
		t.Errorf("round trip mismatch")
	}
	if !strings.HasSuffix(parts[len(parts)-1], fmt.Sprintf(" (%d/%d)", len(parts), len(parts))) {
		t.Errorf("last part %q lacks final marker", parts[len(parts)-1])
	}
}

func TestWrapLongWord(t *testing.T) {
	word := strings.Repeat("x", 25)
	parts, err := Wrap("a "+word+" b", 12, DefaultMarker)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	var joined strings.Builder
	for i, p := range parts {
		if Length(p) > 12 {
			t.Errorf("part %q exceeds limit", p)
		}
		joined.WriteString(strings.TrimSuffix(p, DefaultMarker(i+1, len(parts))))
	}
	if got := joined.String(); strings.Count(got, "x") != 25 {
		t.Errorf("hard split lost characters: %q", got)
	}
}

func TestWrapLimitTooSmall(t *testing.T) {
	_, err := Wrap("this will never fit", 5, DefaultMarker)
	if !errors.Is(err, ErrLimitTooSmall) {
		t.Errorf("Wrap error = %v, want ErrLimitTooSmall", err)
	}
}

func TestWrapDefaultMarkerWidth(t *testing.T) {
	text := "one two three four five"

	// " (n/m)" takes six of ten columns, leaving "three" too long for a part.
	parts, err := Wrap(text, 10, DefaultMarker)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	want := []string{"one (1/6)", "two (2/6)", "thre (3/6)", "e (4/6)", "four (5/6)", "five (6/6)"}
	if !reflect.DeepEqual(parts, want) {
		t.Errorf("Wrap(limit=10) = %q, want %q", parts, want)
	}

	parts, err = Wrap(text, 11, DefaultMarker)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if len(parts) != 5 {
		t.Errorf("Wrap(limit=11) = %q, want one word per part", parts)
	}
	if got := unwrap(t, parts, DefaultMarker); got != text {
		t.Errorf("round trip = %q, want %q", got, text)
	}
}

func TestWrapSpaceRuns(t *testing.T) {
	tests := []struct {
		text  string
		limit int
		want  []string
	}{
		{"aaaa  bbbb cccc", 13, []string{"aaaa (1/3)", " bbbb (2/3)", "cccc (3/3)"}},
		{"aaaa     bbbb", 10, []string{"aaaa (1/2)", "bbbb (2/2)"}},
		{"aaaa bbbb   ", 10, []string{"aaaa (1/2)", "bbbb (2/2)"}},
	}
	for _, tt := range tests {
		parts, err := Wrap(tt.text, tt.limit, DefaultMarker)
		if err != nil {
			t.Fatalf("Wrap(%q): %v", tt.text, err)
		}
		if !reflect.DeepEqual(parts, tt.want) {
			t.Errorf("Wrap(%q, %d) = %q, want %q", tt.text, tt.limit, parts, tt.want)
		}
		for i, p := range parts {
			if strings.TrimSpace(strings.TrimSuffix(p, DefaultMarker(i+1, len(parts)))) == "" {
				t.Errorf("Wrap(%q) part %d is blank", tt.text, i+1)
			}
		}
	}

	// Runs shorter than a part keep the round trip.
	if got := unwrap(t, []string{"aaaa (1/3)", " bbbb (2/3)", "cccc (3/3)"}, DefaultMarker); got != "aaaa  bbbb cccc" {
		t.Errorf("round trip = %q", got)
	}
}

func TestWords(t *testing.T) {
	for _, text := range []string{"", "a", " a", "a  b", "a b ", "a   ", "   ", "x  y   z "} {
		if got := strings.Join(words(text), " "); got != text {
			t.Errorf("join(words(%q)) = %q", text, got)
		}
	}
}
