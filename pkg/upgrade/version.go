package upgrade

import (
	"regexp"
	"strconv"
	"strings"
)

var trailingZeros = regexp.MustCompile(`(\.0+)+$`)

// CompareVersions compares dotted version strings. Trailing zero segments
// are ignored ("1.2.0" equals "1.2"); segments compare by their leading
// integer, and a shared prefix orders the shorter version first. The result
// is negative, zero or positive like strings.Compare, with the magnitude of
// the first differing segment.
func CompareVersions(a, b string) int {
	segsA := strings.Split(trailingZeros.ReplaceAllString(strings.TrimSpace(a), ""), ".")
	segsB := strings.Split(trailingZeros.ReplaceAllString(strings.TrimSpace(b), ""), ".")

	n := len(segsA)
	if len(segsB) < n {
		n = len(segsB)
	}

	for i := 0; i < n; i++ {
		x, okA := leadingInt(segsA[i])
		y, okB := leadingInt(segsB[i])
		// Non-numeric segments don't order versions.
		if !okA || !okB {
			continue
		}
		if diff := x - y; diff != 0 {
			return diff
		}
	}

	return len(segsA) - len(segsB)
}

// Available reports whether latest is newer than current.
func Available(current, latest string) bool {
	if strings.TrimSpace(latest) == "" {
		return false
	}
	return CompareVersions(current, latest) < 0
}

// leadingInt parses the optional sign and digits at the start of s.
func leadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0, false
	}
	v, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return v, true
}
