package mpesa

import "strings"

// NormalizePhone converts a subscriber number into the canonical
// international form (2547XXXXXXXX / 2541XXXXXXXX). Accepted inputs are
// 07XXXXXXXX, 01XXXXXXXX, 7XXXXXXXX, 1XXXXXXXX and the already-prefixed
// 254 forms, with or without a leading + and incidental separators.
func NormalizePhone(raw string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)

	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, "254"):
		if digits[3] != '7' && digits[3] != '1' {
			return "", ErrInvalidPhone
		}
		return digits, nil
	case len(digits) == 10 && digits[0] == '0':
		if digits[1] != '7' && digits[1] != '1' {
			return "", ErrInvalidPhone
		}
		return "254" + digits[1:], nil
	case len(digits) == 9:
		if digits[0] != '7' && digits[0] != '1' {
			return "", ErrInvalidPhone
		}
		return "254" + digits, nil
	default:
		return "", ErrInvalidPhone
	}
}
