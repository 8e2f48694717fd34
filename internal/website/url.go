package website

import (
	"net/url"
	"strings"

	"github.com/sells-group/place-enrich/internal/model"
)

// NormalizeURL trims raw, adds an https scheme when none is present, and
// returns the parsed URL. Anything without a host, with embedded whitespace
// or with a non-HTTP scheme is a ValidationError.
func NormalizeURL(raw string) (*url.URL, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, invalidURL(raw, "empty")
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return nil, invalidURL(raw, "contains whitespace")
	}
	if strings.HasPrefix(s, "//") {
		s = "https:" + s
	} else if !strings.Contains(s, "://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return nil, invalidURL(raw, "unparseable")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, invalidURL(raw, "unsupported scheme "+u.Scheme)
	}
	if u.Hostname() == "" || !strings.Contains(u.Hostname(), ".") {
		return nil, invalidURL(raw, "missing host")
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u, nil
}

func invalidURL(raw, reason string) error {
	return &model.ValidationError{Field: "URL", Reason: reason + " (" + raw + ")"}
}

// canonical renders u without query, fragment or trailing slash, which is
// the key pages are deduplicated by.
func canonical(u *url.URL) string {
	p := strings.TrimRight(u.EscapedPath(), "/")
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + p
}

// homepage returns the site root for base.
func homepage(base *url.URL) *url.URL {
	return &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/"}
}

// sameSite reports whether two hosts name the same site, ignoring a leading
// "www.".
func sameSite(a, b string) bool {
	return strings.TrimPrefix(strings.ToLower(a), "www.") == strings.TrimPrefix(strings.ToLower(b), "www.")
}
