package utils

import (
	"strings"

	"github.com/ttacon/libphonenumber"
)

// CustomerPhoneLength is the exact digit count required for customer phones
const CustomerPhoneLength = 10

// ValidCustomerPhone reports whether phone is exactly ten numeric digits
func ValidCustomerPhone(phone string) bool {
	if len(phone) != CustomerPhoneLength {
		return false
	}
	for _, r := range phone {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NormalizePhone turns a stored phone into international digits for chat
// links: non-digits are removed, one leading zero is dropped and the
// country code is prefixed when missing. Returns "" when nothing is left.
func NormalizePhone(raw, countryCode string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimPrefix(b.String(), "0")
	if digits == "" {
		return ""
	}
	if !strings.HasPrefix(digits, countryCode) {
		digits = countryCode + digits
	}
	return digits
}

// PlausiblePhone checks that normalized international digits parse as a
// phone number with a known country calling code.
func PlausiblePhone(normalized string) bool {
	if normalized == "" {
		return false
	}
	p, err := libphonenumber.Parse("+"+normalized, "")
	if err != nil {
		return false
	}
	return p.GetCountryCode() != 0
}
