package scale

import (
	"strconv"
	"strings"
)

func isStart(c byte) bool {
	return (c >= '0' && c <= '9') || c == '-'
}

func isNumeric(c byte) bool {
	return (c >= '0' && c <= '9') || c == '.' || c == '-'
}

// ParseWeight extracts the weight from one scale line. Leading vendor
// framing up to the first digit or '-' is skipped, then the run of digits,
// '.' and '-' is taken and everything after it (the unit) is ignored.
// ok is false when the line carries no number.
func ParseWeight(line string) (value float64, ok bool) {
	s := strings.TrimSpace(line)

	start := -1
	for i := 0; i < len(s); i++ {
		if isStart(s[i]) {
			start = i
			break
		}
	}
	if start < 0 {
		return 0, false
	}

	end := start
	for end < len(s) && isNumeric(s[end]) {
		end++
	}

	return ParseLeadingFloat(s[start:end])
}

// ParseLeadingFloat parses the longest prefix of s that is a valid decimal
// number, the way C atof does ("12-3" is 12). ok is false when no prefix
// parses.
func ParseLeadingFloat(s string) (float64, bool) {
	n := 0
	for n < len(s) && isNumeric(s[n]) {
		n++
	}
	for end := n; end > 0; end-- {
		if v, err := strconv.ParseFloat(s[:end], 64); err == nil {
			return v, true
		}
	}
	return 0, false
}
