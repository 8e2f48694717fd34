package website

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/place-enrich/internal/fetcher"
)

// SitemapPaths are probed in order; the first one that yields pages wins.
var SitemapPaths = []string{"/sitemap.xml", "/sitemap_index.xml", "/sitemap-index.xml", "/sitemap1.xml"}

const (
	// maxChildSitemaps bounds how many children of a sitemap index are read.
	maxChildSitemaps = 3
	// maxSitemapEntries bounds how many <url> entries are read per file.
	maxSitemapEntries = 1000
)

type locEntry struct {
	Loc string `xml:"loc"`
}

// fromSitemaps returns candidate pages from the first conventional sitemap
// that lists any usable URL, in document order.
func (d *Discoverer) fromSitemaps(ctx context.Context, base *url.URL) []candidate {
	for _, p := range SitemapPaths {
		if ctx.Err() != nil {
			return nil
		}
		sitemapURL := base.ResolveReference(&url.URL{Path: p}).String()
		locs := d.readSitemap(ctx, sitemapURL, true)
		if len(locs) == 0 {
			continue
		}

		var out []candidate
		for _, loc := range locs {
			if c, ok := d.sitemapCandidate(base, loc); ok {
				out = append(out, c)
			}
		}
		if len(out) > 0 {
			zap.L().Debug("website: sitemap found",
				zap.String("sitemap", sitemapURL),
				zap.Int("entries", len(locs)),
				zap.Int("kept", len(out)),
			)
			return out
		}
	}
	return nil
}

// readSitemap returns the <loc> values of a urlset, or of the first child
// sitemaps when the document is a sitemap index and followIndex is set.
func (d *Discoverer) readSitemap(ctx context.Context, sitemapURL string, followIndex bool) []string {
	resp, err := d.fetcher.Get(ctx, sitemapURL)
	if err != nil || !resp.OK() || len(resp.Body) == 0 {
		return nil
	}

	if isSitemapIndex(resp.Body) {
		if !followIndex {
			return nil
		}
		children := streamLocs(ctx, resp.Body, "sitemap", maxChildSitemaps)
		var locs []string
		for _, child := range children {
			locs = append(locs, d.readSitemap(ctx, child, false)...)
		}
		return locs
	}
	return streamLocs(ctx, resp.Body, "url", maxSitemapEntries)
}

func isSitemapIndex(body []byte) bool {
	head := body
	if len(head) > 2048 {
		head = head[:2048]
	}
	return bytes.Contains(bytes.ToLower(head), []byte("<sitemapindex"))
}

// streamLocs collects loc values from element entries. A decode error keeps
// whatever was read before it.
func streamLocs(ctx context.Context, body []byte, element string, limit int) []string {
	out, errc := fetcher.StreamXML[locEntry](ctx, bytes.NewReader(body), element, limit)
	var locs []string
	for e := range out {
		if loc := strings.TrimSpace(e.Loc); loc != "" {
			locs = append(locs, loc)
		}
	}
	if err := <-errc; err != nil {
		zap.L().Debug("website: sitemap decode stopped early", zap.String("element", element), zap.Error(err))
	}
	return locs
}

// sitemapCandidate keeps same-site URLs without query strings or anchors
// that the path matcher does not exclude.
func (d *Discoverer) sitemapCandidate(base *url.URL, loc string) (candidate, bool) {
	u, err := url.Parse(loc)
	if err != nil || u.Host == "" {
		return candidate{}, false
	}
	if u.RawQuery != "" || u.Fragment != "" || strings.Contains(loc, "#") {
		return candidate{}, false
	}
	if !sameSite(u.Host, base.Host) || d.matcher.IsExcluded(loc) {
		return candidate{}, false
	}
	return candidate{url: u, score: keywordScore(u.Path)}, true
}
