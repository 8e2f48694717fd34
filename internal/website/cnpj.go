package website

import "strings"

// NormalizeCNPJ strips punctuation from a CNPJ and checks its two verifier
// digits. It returns the 14 bare digits and whether they form a valid CNPJ.
func NormalizeCNPJ(s string) (string, bool) {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '/' || r == '-' || r == ' ':
		default:
			return "", false
		}
	}
	digits := b.String()
	if len(digits) != 14 || strings.Count(digits, digits[:1]) == 14 {
		return "", false
	}

	d := make([]int, 14)
	for i := range digits {
		d[i] = int(digits[i] - '0')
	}
	if checkDigit(d[:12], []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}) != d[12] {
		return "", false
	}
	if checkDigit(d[:13], []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}) != d[13] {
		return "", false
	}
	return digits, true
}

func checkDigit(digits, weights []int) int {
	sum := 0
	for i, w := range weights {
		sum += digits[i] * w
	}
	if r := sum % 11; r >= 2 {
		return 11 - r
	}
	return 0
}
