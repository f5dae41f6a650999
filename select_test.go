package polybot

import (
	"errors"
	"testing"
)

func TestSelect(t *testing.T) {
	tests := []struct {
		name       string
		candidates []string
		limit      int
		want       string
	}{
		{"only short fits", []string{"Hi", "Hello there, world!"}, 10, "Hi"},
		{"longest fitting wins", []string{"Hi", "Hello", "Hello there, world!"}, 10, "Hello"},
		{"order is not by length", []string{"Hello there", "Hey", "Hello"}, 5, "Hello"},
		{"exact length fits", []string{"abc", "abcde"}, 5, "abcde"},
		{"tie goes to first", []string{"abc", "xyz", "a"}, 3, "abc"},
		{"unlimited", []string{"short", "a much longer candidate"}, 0, "a much longer candidate"},
		{"code points not bytes", []string{"日本語テスト", "abc"}, 6, "日本語テスト"},
		{"emoji counts once", []string{"🙂🙂", "ab"}, 2, "🙂🙂"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Select(tt.candidates, tt.limit)
			if err != nil {
				t.Fatalf("Select: %v", err)
			}
			if got != tt.want {
				t.Errorf("Select(%q, %d) = %q, want %q", tt.candidates, tt.limit, got, tt.want)
			}
		})
	}
}

func TestSelectNoFit(t *testing.T) {
	_, err := Select([]string{"Hello there", "Hello"}, 3)
	var noFit *NoFittingMessageError
	if !errors.As(err, &noFit) {
		t.Fatalf("Select error = %v, want NoFittingMessageError", err)
	}
	if noFit.Limit != 3 || noFit.Shortest != 5 {
		t.Errorf("NoFittingMessageError = %+v, want limit 3 shortest 5", noFit)
	}
}

func TestSelectEmpty(t *testing.T) {
	if _, err := Select(nil, 10); !errors.Is(err, ErrNoCandidates) {
		t.Errorf("Select(nil) error = %v, want ErrNoCandidates", err)
	}
}

func TestSelectProperties(t *testing.T) {
	candidates := []string{"a", "bbbb", "cc", "dddd", "eeeeeeee", "fff", ""}
	for limit := 1; limit <= 10; limit++ {
		got, err := Select(candidates, limit)
		if err != nil {
			t.Fatalf("Select(limit=%d): %v", limit, err)
		}
		if Length(got) > limit {
			t.Errorf("limit %d: %q exceeds limit", limit, got)
		}
		for _, c := range candidates {
			if Length(c) <= limit && Length(c) > Length(got) {
				t.Errorf("limit %d: %q is longer than selected %q", limit, c, got)
			}
		}
		again, _ := Select(candidates, limit)
		if again != got {
			t.Errorf("limit %d: not deterministic: %q vs %q", limit, got, again)
		}
	}
	if got, _ := Select(candidates, 4); got != "bbbb" {
		t.Errorf("tie at 4 = %q, want first occurrence %q", got, "bbbb")
	}
}
