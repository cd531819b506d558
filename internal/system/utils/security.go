package utils

import (
	"html"
	"strings"
	"unicode"
)

// SanitizeString trims the input, strips control characters and escapes
// HTML metacharacters. Used on free-text fields before persistence.
func SanitizeString(input string) string {
	trimmed := strings.TrimSpace(input)
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, trimmed)
	return html.EscapeString(cleaned)
}
