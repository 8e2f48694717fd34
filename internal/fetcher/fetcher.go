// Package fetcher downloads crawl-policy files, sitemaps and pages from
// business websites with a fixed client identity.
package fetcher

import (
	"context"
	"fmt"
	"mime"
	"net/http"
)

// Fetcher performs identified GET requests.
type Fetcher interface {
	// Get returns the response for any status. Errors are transport failures
	// only.
	Get(ctx context.Context, url string) (*Response, error)
	UserAgent() string
}

// Response is a fully read, size-capped HTTP response.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	// Truncated is set when the body hit the size cap.
	Truncated bool
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// MediaType returns the lower-cased media type and its charset parameter.
func (r *Response) MediaType() (string, string) {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return "", ""
	}
	mt, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return "", ""
	}
	return mt, params["charset"]
}

// StatusError is a non-2xx response where a success was required.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetcher: unexpected status %d from %s", e.StatusCode, e.URL)
}

// HTTPStatus returns the response status code.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }
