// Package orgnr cleans and validates Norwegian organization numbers.
package orgnr

import "unicode"

// Length is the number of digits in an organization number.
const Length = 9

var weights = [Length - 1]int{3, 2, 7, 6, 5, 4, 3, 2}

// Clean strips everything but ASCII digits, so "923 609 016" and
// "NO923609016MVA" both become "923609016".
func Clean(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r < unicode.MaxASCII && unicode.IsDigit(r) {
			out = append(out, r)
		}
	}
	return string(out)
}

// Valid reports whether s is a 9-digit organization number with a correct
// MOD11 control digit. s must already be cleaned.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	sum := 0
	for i := 0; i < Length-1; i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return false
		}
		sum += int(c-'0') * weights[i]
	}
	last := s[Length-1]
	if last < '0' || last > '9' {
		return false
	}

	check := 11 - sum%11
	switch check {
	case 11:
		check = 0
	case 10:
		return false
	}
	return int(last-'0') == check
}
