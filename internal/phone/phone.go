// Package phone canonicalizes user-supplied phone numbers.
package phone

import (
	"strings"

	"github.com/mahalle/mahalle-api/internal/apperr"
)

// ErrInvalid is returned for input that cannot be canonicalized.
var ErrInvalid = apperr.Invalid("invalid phone number")

// Normalize returns the canonical form of raw. Turkish mobile numbers are
// mapped to the national 05XXXXXXXXX form; other international numbers are
// kept as +digits.
func Normalize(raw string) (string, error) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return "", ErrInvalid
		}
	}
	s := b.String()
	plus := strings.HasPrefix(s, "+")
	digits := strings.TrimPrefix(s, "+")

	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, "905"):
		return "0" + digits[2:], nil
	case !plus && len(digits) == 11 && strings.HasPrefix(digits, "05"):
		return digits, nil
	case !plus && len(digits) == 10 && strings.HasPrefix(digits, "5"):
		return "0" + digits, nil
	case plus && len(digits) >= 8 && len(digits) <= 15 && digits[0] != '0':
		return s, nil
	}
	return "", ErrInvalid
}

// Mask hides the middle of a canonical phone number for logging.
func Mask(p string) string {
	if len(p) <= 6 {
		return strings.Repeat("*", len(p))
	}
	return p[:4] + strings.Repeat("*", len(p)-6) + p[len(p)-2:]
}
