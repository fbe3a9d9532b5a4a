package services

import (
	"regexp"
	"strings"
)

var (
	slugInvalid   = regexp.MustCompile(`[^\w\s-]`)
	slugSeparator = regexp.MustCompile(`[-\s]+`)
)

// slugify converts a room name into a lowercase URL-safe slug.
func slugify(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = slugInvalid.ReplaceAllString(text, "")
	text = slugSeparator.ReplaceAllString(text, "-")
	return strings.Trim(text, "-")
}
