package website

import (
	"context"
	"net/url"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/sells-group/place-enrich/internal/fetcher"
)

// PolicyChecker evaluates a site's robots.txt for the fetcher's identity.
type PolicyChecker struct {
	fetcher fetcher.Fetcher
}

// NewPolicyChecker creates a PolicyChecker.
func NewPolicyChecker(f fetcher.Fetcher) *PolicyChecker {
	return &PolicyChecker{fetcher: f}
}

// Allowed reports whether base may be crawled. A missing, unreachable or
// unparseable robots.txt imposes no restriction; only a readable document
// that disallows the identity returns false.
func (p *PolicyChecker) Allowed(ctx context.Context, base *url.URL) bool {
	robotsURL := (&url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/robots.txt"}).String()
	log := zap.L().With(zap.String("robots_url", robotsURL))

	resp, err := p.fetcher.Get(ctx, robotsURL)
	if err != nil {
		log.Debug("website: robots.txt unreachable, allowing", zap.Error(err))
		return true
	}
	if !resp.OK() {
		log.Debug("website: no robots.txt, allowing", zap.Int("status", resp.StatusCode))
		return true
	}

	data, err := robotstxt.FromBytes(resp.Body)
	if err != nil {
		log.Warn("website: unparseable robots.txt, allowing", zap.Error(err))
		return true
	}

	path := base.EscapedPath()
	if path == "" {
		path = "/"
	}
	allowed := data.TestAgent(path, p.fetcher.UserAgent())
	log.Debug("website: robots.txt checked", zap.String("path", path), zap.Bool("allowed", allowed))
	return allowed
}
