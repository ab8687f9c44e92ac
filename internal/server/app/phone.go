package app

import "strings"

// localNumberMaxDigits is the longest national significant number; anything
// longer is assumed to already carry a country code.
const localNumberMaxDigits = 10

// NormalizePhone strips everything but digits and prefixes the configured
// default country code when the number looks local. The default code is
// deployment policy, never inferred.
func NormalizePhone(raw, defaultCountryCode string) (string, error) {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	phone := digits.String()
	if len(phone) < 8 {
		return "", ValidationError("phone number must contain at least 8 digits")
	}
	if len(phone) <= localNumberMaxDigits && defaultCountryCode != "" {
		phone = defaultCountryCode + phone
	}
	return phone, nil
}
