package scrape

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// DefaultExcludePatterns drop pages that rarely describe the business itself.
var DefaultExcludePatterns = []string{
	"/blog/*",
	"/noticias/*",
	"/noticia/*",
	"/news/*",
	"/artigos/*",
	"/press/*",
	"/tag/*",
	"/tags/*",
	"/categoria/*",
	"/category/*",
	"/autor/*",
	"/author/*",
	"/page/*",
	"/pagina/*",
	"/wp-content/*",
	"/wp-json/*",
	"/feed/*",
	"/carrinho/*",
	"/cart/*",
	"/checkout/*",
	"/*.pdf",
	"/*.jpg",
	"/*.jpeg",
	"/*.png",
	"/*.webp",
	"/*.zip",
}

var excludeRes = []*regexp.Regexp{
	regexp.MustCompile(`/\d{4}/\d{1,2}(/|$)`), // dated archives
	regexp.MustCompile(`[/?&](page|pagina|paged)[=/]\d+`),
}

// PathMatcher filters URLs based on glob-style path patterns. A pattern like
// "/blog/*" matches multi-level paths like "/blog/deep/path".
type PathMatcher struct {
	patterns []string
}

// NewPathMatcher creates a PathMatcher from glob patterns (e.g. "/blog/*",
// "/*.pdf"). Falls back to DefaultExcludePatterns if none are provided.
func NewPathMatcher(patterns []string) *PathMatcher {
	if len(patterns) == 0 {
		patterns = DefaultExcludePatterns
	}
	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(p)
	}
	return &PathMatcher{patterns: lowered}
}

// Patterns returns the configured patterns.
func (m *PathMatcher) Patterns() []string {
	return m.patterns
}

// IsExcluded reports whether a URL is unparseable, matches an exclude
// pattern, or looks like an archive or pagination page.
func (m *PathMatcher) IsExcluded(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	p := strings.ToLower(u.Path)
	for _, pattern := range m.patterns {
		if matchSegmented(pattern, p) {
			return true
		}
	}
	full := p
	if u.RawQuery != "" {
		full += "?" + u.RawQuery
	}
	for _, re := range excludeRes {
		if re.MatchString(full) {
			return true
		}
	}
	return false
}

// matchSegmented tries path.Match first, then treats a trailing "/*" as a
// prefix match and a leading "/*." as a suffix match at any depth.
func matchSegmented(pattern, urlPath string) bool {
	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/") {
			return true
		}
	}
	if ext, ok := strings.CutPrefix(pattern, "/*."); ok {
		return strings.HasSuffix(urlPath, "."+ext)
	}
	return false
}
