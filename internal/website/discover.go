package website

import (
	"bytes"
	"context"
	"net/url"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/place-enrich/internal/fetcher"
	"github.com/sells-group/place-enrich/internal/model"
	"github.com/sells-group/place-enrich/internal/scrape"
)

// DefaultMaxPages caps how many pages are fetched per site.
const DefaultMaxPages = 7

// PriorityKeywords mark paths that usually describe the business. Each
// keyword contained in a path adds one to its score.
var PriorityKeywords = []string{
	"about", "sobre", "quem-somos",
	"contact", "contato", "fale-conosco",
	"service", "servico", "servicos",
	"product", "produto", "produtos",
	"empresa", "company", "historia",
}

// FallbackPaths are guessed when neither the sitemap nor the homepage
// navigation yields anything.
var FallbackPaths = []string{
	"/", "/sobre", "/quem-somos", "/about", "/contato", "/contact",
	"/produtos", "/products", "/servicos", "/services", "/empresa", "/company",
}

// navSelector scopes homepage link extraction to navigation regions.
const navSelector = `nav a[href], header a[href], footer a[href], menu a[href], ` +
	`[class*="nav"] a[href], [class*="menu"] a[href], [class*="header"] a[href], ` +
	`[class*="Nav"] a[href], [class*="Menu"] a[href], [class*="Header"] a[href]`

type candidate struct {
	url   *url.URL
	score float64
}

// Discoverer selects the pages of a site worth extracting.
type Discoverer struct {
	fetcher  fetcher.Fetcher
	matcher  *scrape.PathMatcher
	maxPages int
}

// NewDiscoverer creates a Discoverer. maxPages <= 0 means DefaultMaxPages.
func NewDiscoverer(f fetcher.Fetcher, matcher *scrape.PathMatcher, maxPages int) *Discoverer {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	if matcher == nil {
		matcher = scrape.NewPathMatcher(nil)
	}
	return &Discoverer{fetcher: f, matcher: matcher, maxPages: maxPages}
}

// Discover returns at most maxPages pages for base, homepage first. The
// sitemap is tried first, then homepage navigation links, then a fixed list
// of conventional paths; a later strategy runs only when every earlier one
// found nothing.
func (d *Discoverer) Discover(ctx context.Context, base *url.URL) ([]model.DiscoveredPage, error) {
	home := homepage(base)
	seen := map[string]bool{canonical(home): true}
	pages := []model.DiscoveredPage{{URL: home.String(), Source: model.PageSourceHomepage}}

	add := func(cands []candidate, source model.PageSource) {
		for _, c := range cands {
			if len(pages) >= d.maxPages {
				return
			}
			key := canonical(c.url)
			if seen[key] {
				continue
			}
			seen[key] = true
			pages = append(pages, model.DiscoveredPage{URL: c.url.String(), Score: c.score, Source: source})
		}
	}

	log := zap.L().With(zap.String("site", home.String()))

	if cands := d.fromSitemaps(ctx, base); len(cands) > 0 {
		sortByScore(cands)
		add(cands, model.PageSourceSitemap)
		log.Debug("website: pages from sitemap", zap.Int("pages", len(pages)))
		return pages, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return pages, err
	}

	if cands := d.fromNavigation(ctx, home); len(cands) > 0 {
		sortByScore(cands)
		add(cands, model.PageSourceNavigation)
		log.Debug("website: pages from navigation", zap.Int("pages", len(pages)))
		return pages, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return pages, err
	}

	add(fallbackCandidates(home), model.PageSourceFallback)
	log.Debug("website: using fallback paths", zap.Int("pages", len(pages)))
	return pages, nil
}

// fromNavigation extracts same-site links from the homepage's navigation,
// header and footer regions.
func (d *Discoverer) fromNavigation(ctx context.Context, home *url.URL) []candidate {
	resp, err := d.fetcher.Get(ctx, home.String())
	if err != nil || resp.StatusCode != 200 {
		return nil
	}
	_, charset := resp.MediaType()
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(fetcher.DecodeHTML(resp.Body, charset)))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var out []candidate
	doc.Find(navSelector).Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if skipHref(href) {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		u := home.ResolveReference(ref)
		if (u.Scheme != "http" && u.Scheme != "https") || !sameSite(u.Host, home.Host) {
			return
		}
		u.RawQuery = ""
		u.Fragment = ""
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = ""
		if u.Path == "" || d.matcher.IsExcluded(u.String()) {
			return
		}
		key := canonical(u)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, candidate{url: u, score: navScore(u.Path)})
	})
	return out
}

func skipHref(href string) bool {
	if href == "" {
		return true
	}
	lower := strings.ToLower(href)
	for _, prefix := range []string{"#", "javascript:", "mailto:", "tel:", "whatsapp:", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

func fallbackCandidates(home *url.URL) []candidate {
	out := make([]candidate, 0, len(FallbackPaths))
	for _, p := range FallbackPaths {
		out = append(out, candidate{url: home.ResolveReference(&url.URL{Path: p})})
	}
	return out
}

// keywordScore counts the priority keywords contained in path.
func keywordScore(path string) float64 {
	path = strings.ToLower(path)
	var n float64
	for _, kw := range PriorityKeywords {
		if strings.Contains(path, kw) {
			n++
		}
	}
	return n
}

// navScore prefers keyword-rich paths close to the root.
func navScore(path string) float64 {
	return keywordScore(path) - 0.1*float64(strings.Count(path, "/"))
}

// sortByScore orders by descending score, keeping input order on ties.
func sortByScore(cands []candidate) {
	slices.SortStableFunc(cands, func(a, b candidate) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return 0
	})
}
