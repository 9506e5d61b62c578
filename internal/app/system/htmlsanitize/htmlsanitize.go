// internal/app/system/htmlsanitize/htmlsanitize.go
//
// Package htmlsanitize strips markup from user-entered text before it is
// stored. Group names, descriptions and tags are plain text; any HTML a
// client submits is removed rather than escaped so the stored value stays
// readable. Rendering layers are responsible for output escaping.
package htmlsanitize

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictOnce sync.Once
	strict     *bluemonday.Policy
)

func policy() *bluemonday.Policy {
	strictOnce.Do(func() {
		strict = bluemonday.StrictPolicy()
	})
	return strict
}

// IsPlainText reports whether s contains nothing that looks like a tag.
func IsPlainText(s string) bool {
	lt := strings.IndexByte(s, '<')
	return lt < 0 || strings.IndexByte(s[lt:], '>') < 0
}

// PlainText removes all markup from s and trims surrounding whitespace.
// Entities produced by the sanitizer are decoded so "Q&A" stays "Q&A".
func PlainText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if IsPlainText(s) {
		return s
	}
	return strings.TrimSpace(html.UnescapeString(policy().Sanitize(s)))
}
