package orgmode

import (
	"strings"
	"unicode"
)

func isTagRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r) || strings.ContainsRune("_@#%", r)
}

// CleanTag maps every character a headline tag cannot hold to '_', so
// "home-office" becomes "home_office".
func CleanTag(tag string) string {
	return strings.Map(func(r rune) rune {
		if isTagRune(r) {
			return r
		}
		return '_'
	}, strings.TrimSpace(tag))
}

// CleanTags cleans every tag, dropping empty ones and duplicates.
func CleanTags(tags []string) []string {
	var out []string
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = CleanTag(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}
