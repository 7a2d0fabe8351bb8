package dispatch

import (
	"regexp"
	"strings"
)

var (
	malagasyPhone = regexp.MustCompile(`^(\+261|0)[0-9]{9}$`)
	nonDigit      = regexp.MustCompile(`\D`)
)

// ValidMalagasyPhone accepts +261XXXXXXXXX or 0XXXXXXXXX, ignoring spaces.
func ValidMalagasyPhone(phone string) bool {
	return malagasyPhone.MatchString(strings.Join(strings.Fields(phone), ""))
}

// FormatPhone rewrites a Malagasy number to international form. Numbers it
// does not recognize come back unchanged.
func FormatPhone(phone string) string {
	digits := nonDigit.ReplaceAllString(phone, "")
	switch {
	case strings.HasPrefix(digits, "261"):
		return "+" + digits
	case strings.HasPrefix(digits, "0") && len(digits) == 10:
		return "+261" + digits[1:]
	default:
		return phone
	}
}
