package polybot

import "unicode/utf8"

// Length returns the length of s in code points, the unit networks count in.
func Length(s string) int {
	return utf8.RuneCountInString(s)
}

// Select returns the longest candidate that fits within limit code points.
// Ties go to the candidate that comes first. A limit of zero or less means
// unlimited.
func Select(candidates []string, limit int) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoCandidates
	}

	best, bestLen := -1, -1
	shortest := -1
	for i, c := range candidates {
		n := Length(c)
		if shortest < 0 || n < shortest {
			shortest = n
		}
		if limit > 0 && n > limit {
			continue
		}
		if n > bestLen {
			best, bestLen = i, n
		}
	}

	if best < 0 {
		return "", &NoFittingMessageError{Limit: limit, Shortest: shortest}
	}
	return candidates[best], nil
}
