package utils

import "strings"

// NormalizePlate reduces a plate reading to its canonical key form:
// trimmed, uppercased, with separators and any other non-alphanumeric
// characters stripped. "abc-123" and "ABC 123" both normalize to "ABC123".
func NormalizePlate(raw string) string {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	var b strings.Builder
	b.Grow(len(upper))
	for _, r := range upper {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
