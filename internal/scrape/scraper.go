// Package scrape turns fetched website pages into plain text.
package scrape

import (
	"context"

	"github.com/sells-group/place-enrich/internal/model"
)

// Scraper fetches a single URL and returns its visible text.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*model.CrawledPage, error)
}
