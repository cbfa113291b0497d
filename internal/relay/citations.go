package relay

import (
	"regexp"
	"strconv"
)

var citationRe = regexp.MustCompile(`\[(\d+)\]`)

// RewriteCitations turns [n] markers into [[n]](url) links against citations.
// Markers outside the list become [[n]].
func RewriteCitations(text string, citations []string) string {
	if text == "" {
		return text
	}
	return citationRe.ReplaceAllStringFunc(text, func(m string) string {
		digits := m[1 : len(m)-1]
		n, err := strconv.Atoi(digits)
		if err == nil && n >= 1 && n <= len(citations) {
			return "[[" + digits + "]](" + citations[n-1] + ")"
		}
		return "[[" + digits + "]]"
	})
}
