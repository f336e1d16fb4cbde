package validation

import (
	"strings"
	"unicode"
)

// NormalizeRUT strips dots, spaces and the hyphen and returns BODY-DV with an
// uppercase check digit.
func NormalizeRUT(s string) (string, bool) {
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == 'k' || r == 'K':
			b.WriteRune('K')
		case r == '.' || r == '-' || r == ' ':
		default:
			return "", false
		}
	}
	clean := b.String()
	if len(clean) < 2 {
		return "", false
	}
	body, dv := clean[:len(clean)-1], clean[len(clean)-1:]
	if strings.Contains(body, "K") {
		return "", false
	}
	return body + "-" + dv, true
}

// ValidRUT checks a Chilean RUT against its modulo 11 check digit.
func ValidRUT(s string) bool {
	norm, ok := NormalizeRUT(s)
	if !ok {
		return false
	}
	body, dv := norm[:len(norm)-2], norm[len(norm)-1]
	if len(body) < 6 || len(body) > 8 {
		return false
	}
	return checkDigit(body) == dv
}

func checkDigit(body string) byte {
	sum, mul := 0, 2
	for i := len(body) - 1; i >= 0; i-- {
		sum += int(body[i]-'0') * mul
		mul++
		if mul > 7 {
			mul = 2
		}
	}
	switch r := 11 - sum%11; r {
	case 11:
		return '0'
	case 10:
		return 'K'
	default:
		return byte('0' + r)
	}
}

// ValidPhone accepts Chilean numbers with or without the +56 prefix.
func ValidPhone(s string) bool {
	var digits strings.Builder
	for i, r := range strings.TrimSpace(s) {
		switch {
		case unicode.IsDigit(r):
			digits.WriteRune(r)
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return false
		}
	}
	d := digits.String()
	if len(d) == 11 && strings.HasPrefix(d, "56") {
		d = d[2:]
	}
	return len(d) == 9 && d[0] >= '2' && d[0] <= '9'
}
