package model

import "fmt"

// CollectionStatus is the terminal or in-flight state of a collection run.
type CollectionStatus string

const (
	CollectionPending              CollectionStatus = "pending"
	CollectionInProgress           CollectionStatus = "in_progress"
	CollectionCompleted            CollectionStatus = "completed"
	CollectionCompletedNoResults   CollectionStatus = "completed_no_results"
	CollectionPartialQuotaExceeded CollectionStatus = "partial_quota_exceeded"
	CollectionFailedNoSearchTerms  CollectionStatus = "failed_no_search_terms"
	CollectionFailedAPIError       CollectionStatus = "failed_api_error"
	CollectionFailedDatabaseError  CollectionStatus = "failed_database_error"
)

// IsTerminal reports whether no further transition is expected.
func (s CollectionStatus) IsTerminal() bool {
	switch s {
	case CollectionPending, CollectionInProgress:
		return false
	}
	return true
}

// CollectionOutcome accumulates the classification of a collection run. Quota
// exhaustion, once recorded, takes precedence over every later signal.
type CollectionOutcome struct {
	Status CollectionStatus `json:"status"`
	Reason string           `json:"reason,omitempty"`
	// Incomplete is set when the run budget ran out before every term and
	// place was worked through.
	Incomplete bool `json:"incomplete,omitempty"`
}

// NewCollectionOutcome returns an outcome in the pending state.
func NewCollectionOutcome() *CollectionOutcome {
	return &CollectionOutcome{Status: CollectionPending}
}

// Start moves a pending run into progress.
func (o *CollectionOutcome) Start() {
	if o.Status == CollectionPending {
		o.Status = CollectionInProgress
	}
}

// QuotaExceeded records a denied reservation.
func (o *CollectionOutcome) QuotaExceeded(used, limit int64) {
	if o.Status == CollectionFailedNoSearchTerms {
		return
	}
	o.Status = CollectionPartialQuotaExceeded
	o.Reason = fmt.Sprintf("daily quota reached: %d/%d units used", used, limit)
}

// APIError records a provider failure unless quota was already exceeded.
func (o *CollectionOutcome) APIError(err error) {
	if o.Status == CollectionPartialQuotaExceeded || o.Status == CollectionFailedAPIError {
		return
	}
	o.Status = CollectionFailedAPIError
	o.Reason = fmt.Sprintf("provider error: %v", err)
}

// NoSearchTerms records an unknown niche or an empty term list.
func (o *CollectionOutcome) NoSearchTerms(niche string) {
	o.Status = CollectionFailedNoSearchTerms
	o.Reason = fmt.Sprintf("no search terms configured for niche %q", niche)
}

// DatabaseError records a persistence failure. Quota exhaustion still wins
// because the data that was gathered reflects the quota stop.
func (o *CollectionOutcome) DatabaseError(err error) {
	if o.Status == CollectionPartialQuotaExceeded {
		return
	}
	o.Status = CollectionFailedDatabaseError
	o.Reason = fmt.Sprintf("persistence error: %v", err)
}

// Interrupt records a run cut short by its time budget. The run stays in
// progress and is retried. Quota and provider outcomes recorded earlier win.
func (o *CollectionOutcome) Interrupt(progress string) {
	if o.Status != CollectionInProgress {
		return
	}
	o.Incomplete = true
	o.Reason = "run budget spent, interrupted " + progress
}

// Finish settles an in-progress run by result count. Terminal states set
// earlier, and interrupted runs, are kept.
func (o *CollectionOutcome) Finish(accepted int) {
	if o.Incomplete || (o.Status != CollectionInProgress && o.Status != CollectionPending) {
		return
	}
	if accepted == 0 {
		o.Status = CollectionCompletedNoResults
		o.Reason = "no places found"
		return
	}
	o.Status = CollectionCompleted
	o.Reason = fmt.Sprintf("collected %d places", accepted)
}

// Retryable reports whether the task should be redelivered.
func (o *CollectionOutcome) Retryable() bool {
	return o.Status == CollectionFailedDatabaseError ||
		(o.Incomplete && o.Status == CollectionInProgress)
}

// EnrichmentStatus is the outcome of website enrichment for one company.
type EnrichmentStatus string

const (
	EnrichmentCompleted     EnrichmentStatus = "completed"
	EnrichmentPartial       EnrichmentStatus = "partial"
	EnrichmentFailed        EnrichmentStatus = "failed"
	EnrichmentDatabaseError EnrichmentStatus = "failed_database_error"
)

// WebsiteState is a stage of the website enrichment pipeline.
type WebsiteState string

const (
	WebsiteStart           WebsiteState = "start"
	WebsiteRobotsChecked   WebsiteState = "robots_checked"
	WebsitePagesDiscovered WebsiteState = "pages_discovered"
	WebsiteContentFetched  WebsiteState = "content_fetched"
	WebsiteExtracted       WebsiteState = "extracted"
	WebsitePersisted       WebsiteState = "persisted"
)

// Reasons persisted alongside enrichment statuses.
const (
	ReasonPolicyDisallowed = "scraping disallowed: respects site crawl policy"
	ReasonNoPages          = "no pages discovered"
)

// ReasonNoPagesFetched explains a run where every fetch failed.
func ReasonNoPagesFetched(tried int) string {
	return fmt.Sprintf("no pages fetched (tried %d)", tried)
}

// ClassifyScrape picks the status and reason for a successful extraction.
func ClassifyScrape(fetched, failed int) (EnrichmentStatus, string) {
	if failed > 0 {
		return EnrichmentPartial, fmt.Sprintf("data extracted from %d pages, %d pages failed", fetched, failed)
	}
	return EnrichmentCompleted, fmt.Sprintf("successfully scraped %d pages", fetched)
}
