// Package numeric parses locale-formatted population counts into exact integers.
package numeric

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ParseError reports a token that is not a well-formed integer count.
type ParseError struct {
	Token  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse count %q: %s", e.Token, e.Reason)
}

var (
	plainDigits = regexp.MustCompile(`^[0-9]+$`)
	// One separator kind per token; the first group may be short, every
	// later group is exactly three digits.
	groupedDot   = regexp.MustCompile(`^[0-9]{1,3}(\.[0-9]{3})+$`)
	groupedComma = regexp.MustCompile(`^[0-9]{1,3}(,[0-9]{3})+$`)
	groupedSpace = regexp.MustCompile(`^[0-9]{1,3}( [0-9]{3})+$`)

	thousandsPattern = regexp.MustCompile(`\b[0-9]{1,3}\.[0-9]{3}(?:\.[0-9]{3})*\b`)
)

// ParseCount converts a raw count token into an integer. Thousands separators
// ('.', ',' or a space) are removed only when the token is a complete grouped
// pattern, so "380.350" yields 380350 while "380.35" is rejected.
func ParseCount(token string) (int64, error) {
	raw := strings.ReplaceAll(token, "\u00a0", " ")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, &ParseError{Token: token, Reason: "empty token"}
	}
	var digits string
	switch {
	case plainDigits.MatchString(raw):
		digits = raw
	case groupedDot.MatchString(raw):
		digits = strings.ReplaceAll(raw, ".", "")
	case groupedComma.MatchString(raw):
		digits = strings.ReplaceAll(raw, ",", "")
	case groupedSpace.MatchString(raw):
		digits = strings.ReplaceAll(raw, " ", "")
	default:
		return 0, &ParseError{Token: token, Reason: "not an integer count"}
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, &ParseError{Token: token, Reason: "out of range"}
	}
	return n, nil
}

// FormatCount renders n with sep every three digits. A zero sep yields plain digits.
func FormatCount(n int64, sep rune) string {
	neg := n < 0
	if neg {
		if n == math.MinInt64 {
			return strconv.FormatInt(n, 10)
		}
		n = -n
	}
	s := strconv.FormatInt(n, 10)
	if sep != 0 && len(s) > 3 {
		var b strings.Builder
		lead := len(s) % 3
		if lead > 0 {
			b.WriteString(s[:lead])
		}
		for i := lead; i < len(s); i += 3 {
			if b.Len() > 0 {
				b.WriteRune(sep)
			}
			b.WriteString(s[i : i+3])
		}
		s = b.String()
	}
	if neg {
		return "-" + s
	}
	return s
}

// HasThousandsPattern reports whether s still contains a dot-grouped number
// such as "1.234" or "12.345.678".
func HasThousandsPattern(s string) bool {
	return thousandsPattern.MatchString(s)
}
