package model

import (
	"encoding/json"
	"time"
)

// PageSource records which discovery strategy produced a page.
type PageSource string

const (
	PageSourceHomepage   PageSource = "homepage"
	PageSourceSitemap    PageSource = "sitemap"
	PageSourceNavigation PageSource = "navigation"
	PageSourceFallback   PageSource = "fallback"
)

// DiscoveredPage is a page selected for fetching. Score orders candidates
// within one strategy.
type DiscoveredPage struct {
	URL    string     `json:"url"`
	Score  float64    `json:"score"`
	Source PageSource `json:"source"`
}

// CrawledPage represents a page fetched during content extraction.
type CrawledPage struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	Text       string `json:"text"`
	HTML       string `json:"html,omitempty"`
	StatusCode int    `json:"status_code"`
}

// PageOutcome records what happened to a single fetch.
type PageOutcome struct {
	URL   string `json:"url"`
	Chars int    `json:"chars"`
	Error string `json:"error,omitempty"`
}

// ExtractionResult is what the website engine produced for one company.
type ExtractionResult struct {
	CompanyID    string           `json:"company_id"`
	Website      string           `json:"website"`
	State        WebsiteState     `json:"state"`
	Status       EnrichmentStatus `json:"status"`
	Reason       string           `json:"reason"`
	Data         json.RawMessage  `json:"data,omitempty"`
	Pages        []PageOutcome    `json:"pages,omitempty"`
	PagesFetched int              `json:"pages_fetched"`
	PagesFailed  int              `json:"pages_failed"`
	CNPJ         string           `json:"cnpj,omitempty"`
	Usage        TokenUsage       `json:"usage"`
	ScrapedAt    time.Time        `json:"scraped_at"`
}
