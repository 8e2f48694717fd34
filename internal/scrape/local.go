package scrape

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/place-enrich/internal/fetcher"
	"github.com/sells-group/place-enrich/internal/model"
)

// minBodyBytes is the smallest body considered a real page.
const minBodyBytes = 100

// LocalScraper fetches HTML through a fetcher.Fetcher, detects blocks, and
// converts the document to plain text. A page counts as fetched only with a
// 200 status, a body within the fetcher's size cap, no block markers and some
// visible text.
type LocalScraper struct {
	fetcher fetcher.Fetcher
}

// NewLocalScraper creates a LocalScraper.
func NewLocalScraper(f fetcher.Fetcher) *LocalScraper {
	return &LocalScraper{fetcher: f}
}

// Scrape fetches targetURL and extracts its title and visible text.
func (l *LocalScraper) Scrape(ctx context.Context, targetURL string) (*model.CrawledPage, error) {
	resp, err := l.fetcher.Get(ctx, targetURL)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: fetch")
	}

	if blocked, kind := DetectBlock(resp); blocked {
		return nil, &BlockedError{URL: targetURL, Kind: kind}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &fetcher.StatusError{URL: targetURL, StatusCode: resp.StatusCode}
	}
	// A cut-off document would parse into partial text.
	if resp.Truncated {
		return nil, eris.Errorf("scrape: page %s exceeds %d bytes", targetURL, len(resp.Body))
	}
	if len(resp.Body) < minBodyBytes {
		return nil, eris.Errorf("scrape: empty page %s", targetURL)
	}

	_, charset := resp.MediaType()
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(fetcher.DecodeHTML(resp.Body, charset)))
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: parse %s", targetURL)
	}

	text := ExtractText(doc)
	if text == "" {
		return nil, eris.Errorf("scrape: no visible text on %s", targetURL)
	}

	return &model.CrawledPage{
		URL:        targetURL,
		Title:      strings.TrimSpace(doc.Find("title").First().Text()),
		Text:       text,
		StatusCode: resp.StatusCode,
	}, nil
}

// BlockedError reports anti-bot protection on a page.
type BlockedError struct {
	URL  string
	Kind BlockType
}

func (e *BlockedError) Error() string {
	return "scrape: blocked (" + string(e.Kind) + ") " + e.URL
}
