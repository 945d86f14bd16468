// pkg/normalize/name.go
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	middleInitialRe = regexp.MustCompile(`\b[a-z]\.?\s`)
	nameSuffixes    = []string{"jr", "sr", "ii", "iii", "iv"}
)

// PersonName normalizes a person name for matching: lowercase, diacritics
// stripped, generational suffixes and middle initials dropped, whitespace
// collapsed, "Last, First" reordered. Used only for match-key comparison;
// the stored display name keeps its original form.
func PersonName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	if s == "" {
		return s
	}

	s = stripDiacritics(s)

	for _, suffix := range nameSuffixes {
		s = strings.TrimSuffix(s, " "+suffix)
		s = strings.TrimSuffix(s, ","+suffix)
	}

	s = middleInitialRe.ReplaceAllString(s, "")
	s = internalWhitespaceRe.ReplaceAllString(s, " ")

	if parts := strings.SplitN(s, ",", 2); len(parts) == 2 {
		first := strings.TrimSpace(parts[1])
		last := strings.TrimSpace(parts[0])
		if first != "" && last != "" {
			s = first + " " + last
		}
	}

	return strings.TrimSpace(s)
}

// stripDiacritics decomposes to NFD and drops combining marks
func stripDiacritics(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
