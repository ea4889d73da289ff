// internal/service/phone.go
package service

import "strings"

// NormalizePhone reduces a raw phone number to +<digits>, prefixing the
// default country code when the number looks local. Recipients are
// stored in this form and the provider client strips the plus again.
func NormalizePhone(phone, countryCode string) string {
	digits := digitsOnly(phone)
	if digits == "" {
		return ""
	}

	// Numbers that already carry a country code pass through.
	if strings.HasPrefix(digits, "1") && len(digits) >= 10 {
		return "+" + digits
	}
	if len(digits) >= 10 && countryCode == "" {
		return "+" + digits
	}

	if countryCode != "" {
		cc := digitsOnly(countryCode)
		if cc != "" && !strings.HasPrefix(digits, cc) {
			digits = cc + digits
		}
	}
	return "+" + digits
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
