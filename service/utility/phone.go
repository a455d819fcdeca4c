package utility

import (
	"errors"
	"strings"
)

var ErrInvalidPhone = errors.New("phone number is not a valid Kenyan mobile number")

// NormalisePhone returns a Kenyan mobile number as 2547XXXXXXXX / 2541XXXXXXXX,
// the only form Daraja accepts.
func NormalisePhone(phone string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		if r == ' ' || r == '-' || r == '+' {
			return -1
		}
		return 'x'
	}, strings.TrimSpace(phone))

	if strings.ContainsRune(digits, 'x') {
		return "", ErrInvalidPhone
	}

	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, "254"):
	case len(digits) == 10 && strings.HasPrefix(digits, "0"):
		digits = "254" + digits[1:]
	case len(digits) == 9:
		digits = "254" + digits
	default:
		return "", ErrInvalidPhone
	}

	if digits[3] != '7' && digits[3] != '1' {
		return "", ErrInvalidPhone
	}
	return digits, nil
}
