// Package slug turns user input into a canonical, URL-safe path fragment.
package slug

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	whitespace = regexp.MustCompile(`\s+`)
	disallowed = regexp.MustCompile(`[^\w\-]+`)
	dashRuns   = regexp.MustCompile(`\-\-+`)
)

// Normalize converts arbitrary input into a slug. An empty result means the
// input carries no usable path. When the input is a full http(s) URL the last
// non-empty path segment is used instead; an unparseable URL falls back to
// treating the whole input as a plain string.
func Normalize(input string) string {
	candidate := strings.TrimSpace(input)
	if candidate == "" {
		return ""
	}

	lower := strings.ToLower(candidate)
	if strings.HasPrefix(lower, "http:") || strings.HasPrefix(lower, "https:") {
		if parsed, err := url.Parse(candidate); err == nil {
			candidate = lastSegment(parsed.Path)
		}
	}

	candidate = strings.ToLower(candidate)
	candidate = whitespace.ReplaceAllString(candidate, "-")
	candidate = disallowed.ReplaceAllString(candidate, "")
	candidate = dashRuns.ReplaceAllString(candidate, "-")
	candidate = strings.Trim(candidate, "-")
	return candidate
}

func lastSegment(path string) string {
	last := ""
	for _, segment := range strings.Split(path, "/") {
		if segment != "" {
			last = segment
		}
	}
	return last
}
