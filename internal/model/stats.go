package model

import "time"

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Add merges token usage from another instance.
func (t *TokenUsage) Add(other TokenUsage) {
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.Cost += other.Cost
}

// RunStats counts what one collection run did.
type RunStats struct {
	TextSearches         int     `json:"text_searches"`
	DetailsFetched       int     `json:"details_fetched"`
	DetailsFailed        int     `json:"details_failed"`
	DuplicatesByID       int     `json:"duplicates_by_id"`
	DuplicatesByLocation int     `json:"duplicates_by_location"`
	Accepted             int     `json:"accepted"`
	NewPlaces            int     `json:"new_places"`
	UpdatedPlaces        int     `json:"updated_places"`
	SkippedPlaces        int     `json:"skipped_places"`
	WebsiteTasksQueued   int     `json:"website_tasks_queued"`
	UnitsConsumed        int64   `json:"units_consumed"`
	EstimatedCostUSD     float64 `json:"estimated_cost_usd"`
}

// QuotaState is the provider budget for one day.
type QuotaState struct {
	Day           string `json:"day"`
	UnitsConsumed int64  `json:"units_consumed"`
	DailyLimit    int64  `json:"daily_limit"`
}

// Remaining returns the units still available today.
func (q QuotaState) Remaining() int64 {
	if q.UnitsConsumed >= q.DailyLimit {
		return 0
	}
	return q.DailyLimit - q.UnitsConsumed
}

// Fraction returns consumption as a share of the limit.
func (q QuotaState) Fraction() float64 {
	if q.DailyLimit <= 0 {
		return 1
	}
	return float64(q.UnitsConsumed) / float64(q.DailyLimit)
}

// CollectionRun is the transient state of one collection task.
type CollectionRun struct {
	ID        string            `json:"id"`
	Task      CollectionTask    `json:"task"`
	Outcome   CollectionOutcome `json:"outcome"`
	Stats     RunStats          `json:"stats"`
	Quota     QuotaState        `json:"quota"`
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration"`
}

// SaveResult reports how one batch of places was written. Inserted carries
// the newly created places with their assigned company IDs.
type SaveResult struct {
	Inserted []Place
	Updated  int
	Skipped  int
	// Saved holds every place of the batch with its owning company,
	// inserted, updated or skipped alike.
	Saved []Place
	// Scraped marks company IDs that already carry a website enrichment status.
	Scraped map[string]bool
}
