// Package website enriches a company from its own website: it honours the
// site's robots.txt, picks a handful of informative pages, fetches them
// politely and hands the combined text to a structured extractor.
package website

import (
	"context"
	"net/url"

	"github.com/sells-group/place-enrich/internal/model"
)

// Store persists enrichment results onto the company record. Writes
// overwrite earlier results for the same company.
type Store interface {
	UpdateWebsiteData(ctx context.Context, upd model.WebsiteUpdate) error
}

// Policy decides whether a site may be crawled.
type Policy interface {
	Allowed(ctx context.Context, base *url.URL) bool
}
