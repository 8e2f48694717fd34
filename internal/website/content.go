package website

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sells-group/place-enrich/internal/model"
	"github.com/sells-group/place-enrich/internal/resilience"
	"github.com/sells-group/place-enrich/internal/scrape"
)

const (
	DefaultMaxCharsPerPage = 20000
	DefaultMaxTotalChars   = 300000

	pageSeparator = "\n\n"
)

// ContentOptions bounds content extraction. Limits count characters (runes),
// headers and separators included.
type ContentOptions struct {
	MinDelay        time.Duration
	MaxDelay        time.Duration
	MaxCharsPerPage int
	MaxTotalChars   int
}

// ContentResult is the combined text of a site plus fetch tallies.
type ContentResult struct {
	Text         string
	PagesFetched int
	PagesFailed  int
	Pages        []model.PageOutcome
}

// ContentExtractor fetches discovered pages one at a time and builds a
// bounded combined text from them.
type ContentExtractor struct {
	scraper scrape.Scraper
	opts    ContentOptions
	sleep   resilience.Sleeper
	jitter  func(n int64) int64
}

// NewContentExtractor creates a ContentExtractor.
func NewContentExtractor(s scrape.Scraper, opts ContentOptions) *ContentExtractor {
	if opts.MaxCharsPerPage <= 0 {
		opts.MaxCharsPerPage = DefaultMaxCharsPerPage
	}
	if opts.MaxTotalChars <= 0 {
		opts.MaxTotalChars = DefaultMaxTotalChars
	}
	if opts.MaxDelay < opts.MinDelay {
		opts.MaxDelay = opts.MinDelay
	}
	return &ContentExtractor{
		scraper: s,
		opts:    opts,
		sleep:   resilience.SleepContext,
		jitter:  rand.Int64N,
	}
}

// Extract fetches pages in order. A failed page is counted and skipped. Once
// the text budget is spent, later pages are still fetched and counted but
// add no text. The only error is context cancellation, returned with the
// partial result.
func (c *ContentExtractor) Extract(ctx context.Context, pages []model.DiscoveredPage) (*ContentResult, error) {
	res := &ContentResult{}
	var b strings.Builder
	used := 0

	for i, p := range pages {
		if i > 0 {
			if err := c.sleep(ctx, c.delay()); err != nil {
				return c.finish(res, &b), err
			}
		}

		page, err := c.scraper.Scrape(ctx, p.URL)
		if err != nil {
			if ctx.Err() != nil {
				return c.finish(res, &b), ctx.Err()
			}
			res.PagesFailed++
			res.Pages = append(res.Pages, model.PageOutcome{URL: p.URL, Error: err.Error()})
			zap.L().Debug("website: page fetch failed", zap.String("url", p.URL), zap.Error(err))
			continue
		}

		res.PagesFetched++
		added := c.appendPage(&b, used, p.URL, page.Text)
		used += added
		res.Pages = append(res.Pages, model.PageOutcome{URL: p.URL, Chars: added})
	}
	return c.finish(res, &b), nil
}

// appendPage writes one page block, truncated to what remains of the total
// budget after used characters, and returns the number of characters written.
func (c *ContentExtractor) appendPage(b *strings.Builder, used int, pageURL, text string) int {
	block := "=== Page: " + pageURL + " ===\n" + scrape.Truncate(text, c.opts.MaxCharsPerPage)
	if b.Len() > 0 {
		block = pageSeparator + block
	}
	remaining := c.opts.MaxTotalChars - used
	if remaining <= 0 {
		return 0
	}
	block = scrape.Truncate(block, remaining)
	b.WriteString(block)
	return utf8.RuneCountInString(block)
}

func (c *ContentExtractor) finish(res *ContentResult, b *strings.Builder) *ContentResult {
	res.Text = b.String()
	return res
}

func (c *ContentExtractor) delay() time.Duration {
	span := int64(c.opts.MaxDelay - c.opts.MinDelay)
	if span <= 0 {
		return c.opts.MinDelay
	}
	return c.opts.MinDelay + time.Duration(c.jitter(span+1))
}
