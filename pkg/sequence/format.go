package sequence

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Width is the minimum number of digits of an identifier's counter part
const Width = 6

var prefixPattern = regexp.MustCompile(`^[A-Z][A-Z_]{0,15}$`)

// NormalizePrefix upper-cases prefix and validates it
func NormalizePrefix(prefix string) (string, error) {
	p := strings.ToUpper(strings.TrimSpace(prefix))
	if !prefixPattern.MatchString(p) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPrefix, prefix)
	}
	return p, nil
}

// Format renders PREFIX-NNNNNN. Values wider than six digits are not truncated.
func Format(prefix string, n int64) string {
	return fmt.Sprintf("%s-%0*d", prefix, Width, n)
}

// Parse splits an identifier into its prefix and counter value
func Parse(id string) (string, int64, error) {
	i := strings.LastIndexByte(id, '-')
	if i <= 0 || i == len(id)-1 {
		return "", 0, fmt.Errorf("%w: %q", ErrMalformedIdentifier, id)
	}

	prefix, digits := id[:i], id[i+1:]
	if !prefixPattern.MatchString(prefix) || len(digits) < Width {
		return "", 0, fmt.Errorf("%w: %q", ErrMalformedIdentifier, id)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", 0, fmt.Errorf("%w: %q", ErrMalformedIdentifier, id)
		}
	}

	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n <= 0 {
		return "", 0, fmt.Errorf("%w: %q", ErrMalformedIdentifier, id)
	}
	return prefix, n, nil
}
