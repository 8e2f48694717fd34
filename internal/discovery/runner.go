package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/place-enrich/internal/config"
	"github.com/sells-group/place-enrich/internal/cost"
	"github.com/sells-group/place-enrich/internal/model"
	"github.com/sells-group/place-enrich/internal/queue"
	"github.com/sells-group/place-enrich/internal/quota"
	"github.com/sells-group/place-enrich/internal/resilience"
	"github.com/sells-group/place-enrich/pkg/google"
)

// flushTimeout bounds the final checkpoint, which runs after the run
// context may already be done.
const flushTimeout = 30 * time.Second

// Runner executes collection tasks end to end.
type Runner struct {
	store     Store
	publisher queue.Publisher
	quota     quota.Tracker
	calc      *cost.Calculator
	collector *Collector
	enricher  *Enricher
	cfg       config.CollectConfig
	terms     func(niche string) []string
}

// NewRunner wires a Runner from configuration. publisher may be nil, in which
// case website tasks are not enqueued.
func NewRunner(cfg *config.Config, store Store, publisher queue.Publisher, client google.Client, tracker quota.Tracker, breaker *resilience.Breaker) *Runner {
	rps := cfg.Google.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	limiter := rate.NewLimiter(rate.Limit(rps), 1)
	calc := cost.NewCalculator(cost.RatesFromConfig(cfg.Pricing))
	if breaker == nil {
		breaker = resilience.NewBreaker(resilience.ServicePlaces, resilience.DefaultBreakerConfig())
	}

	return &Runner{
		store:     store,
		publisher: publisher,
		quota:     tracker,
		calc:      calc,
		collector: NewCollector(client, tracker, limiter, calc, cfg.Collect),
		enricher: NewEnricher(client, tracker, limiter, breaker, calc,
			cfg.Collect.EnrichConcurrency, cfg.Collect.LanguageCode, cfg.Collect.FlushMargin),
		cfg:   cfg.Collect,
		terms: cfg.SearchTerms,
	}
}

// Run collects places for one task. The returned run is always non-nil once
// the task validates. An error is returned only when the task should be
// redelivered (validation failures aside), which today means a persistence
// failure.
func (r *Runner) Run(ctx context.Context, task model.CollectionTask) (*model.CollectionRun, error) {
	task = task.Normalize()
	if err := task.Validate(); err != nil {
		return nil, err
	}

	run := &model.CollectionRun{
		ID:        uuid.NewString(),
		Task:      task,
		Outcome:   *model.NewCollectionOutcome(),
		StartedAt: time.Now(),
	}
	log := zap.L().With(zap.String("run_id", run.ID), zap.String("task", task.String()))
	run.Outcome.Start()

	terms := r.terms(task.Niche)
	if len(terms) == 0 {
		run.Outcome.NoSearchTerms(task.Niche)
		log.Error("no search terms for niche", zap.String("niche", task.Niche))
		return r.finish(ctx, run, nil, log)
	}
	log.Info("starting collection", zap.Int("terms", len(terms)))

	if r.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.RunTimeout)
		defer cancel()
	}

	s := newSession(r, run, log)
	dedup := NewDeduplicator(r.cfg.DedupMeters)

	h, err := r.collector.Collect(ctx, task, terms, dedup)
	run.Stats.TextSearches = h.Searches
	run.Stats.DuplicatesByID = h.DuplicatesByID
	run.Stats.DuplicatesByLocation = h.DuplicatesByLocation
	switch {
	case err != nil:
		run.Outcome.DatabaseError(err)
	case h.Denied != nil:
		run.Outcome.QuotaExceeded(h.Denied.Used, h.Denied.Limit)
	case h.ProviderErr != nil:
		run.Outcome.APIError(h.ProviderErr)
	case h.Interrupted:
		run.Outcome.Interrupt(fmt.Sprintf("after term %d of %d", h.TermsDone, len(terms)))
	}

	candidates := dedup.Accepted()
	run.Stats.Accepted = len(candidates)
	for _, c := range candidates {
		s.track(model.NewEnrichedPlace(c))
	}

	if nearDeadline(ctx, r.cfg.FlushMargin) {
		if err := s.Checkpoint(ctx); err != nil {
			log.Error("checkpoint after collection failed", zap.Error(err))
		}
	}

	if len(candidates) > 0 && err == nil && h.Denied == nil && h.ProviderErr == nil && !h.Interrupted {
		en, err := r.enricher.Enrich(ctx, candidates)
		run.Stats.DetailsFetched = en.Fetched
		run.Stats.DetailsFailed = en.Failed
		for _, p := range en.Places {
			if p.Enriched {
				s.track(p)
			}
		}
		switch {
		case err != nil:
			run.Outcome.DatabaseError(err)
		case en.Denied != nil:
			run.Outcome.QuotaExceeded(en.Denied.Used, en.Denied.Limit)
		case en.ProviderErr != nil:
			run.Outcome.APIError(en.ProviderErr)
		case en.Interrupted:
			run.Outcome.Interrupt(fmt.Sprintf("during details, %d of %d places looked up",
				en.Fetched+en.Failed, len(candidates)))
		}
	}

	return r.finish(ctx, run, s, log)
}

// finish persists what the run has, settles the outcome, projects it onto
// every company the run touched and enqueues website tasks. A redelivered run
// therefore settles companies created by an earlier attempt too.
func (r *Runner) finish(ctx context.Context, run *model.CollectionRun, s *session, log *zap.Logger) (*model.CollectionRun, error) {
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()

	var persistErr error
	if s != nil {
		if err := s.Checkpoint(flushCtx); err != nil {
			persistErr = err
			run.Outcome.DatabaseError(err)
		}
	}
	run.Outcome.Finish(run.Stats.Accepted)

	if s != nil && len(s.saved) > 0 {
		if err := r.store.SetCollectionOutcome(flushCtx, s.companyIDs(), run.Outcome); err != nil {
			persistErr = &model.PersistenceError{Op: "set collection outcome", Err: err}
			run.Outcome.DatabaseError(persistErr)
		}
		// A failed attempt is redelivered and enqueues on the retry.
		if persistErr == nil {
			r.enqueueWebsiteTasks(flushCtx, run, s.pendingWebsites(), log)
		}
	}

	details := run.Stats.DetailsFetched + run.Stats.DetailsFailed
	run.Stats.UnitsConsumed = r.calc.Units(run.Stats.TextSearches, details)
	run.Stats.EstimatedCostUSD = r.calc.Places(run.Stats.TextSearches, details)
	if st, err := r.quota.State(flushCtx); err == nil {
		run.Quota = st
	} else {
		log.Warn("read quota state failed", zap.Error(err))
	}
	run.Duration = time.Since(run.StartedAt)

	log.Info("collection finished",
		zap.String("status", string(run.Outcome.Status)),
		zap.String("reason", run.Outcome.Reason),
		zap.Int("accepted", run.Stats.Accepted),
		zap.Int("new", run.Stats.NewPlaces),
		zap.Int("updated", run.Stats.UpdatedPlaces),
		zap.Int("skipped", run.Stats.SkippedPlaces),
		zap.Int("duplicates_by_id", run.Stats.DuplicatesByID),
		zap.Int("duplicates_by_location", run.Stats.DuplicatesByLocation),
		zap.Int64("units", run.Stats.UnitsConsumed),
		zap.Int64("quota_used", run.Quota.UnitsConsumed),
		zap.Int64("quota_limit", run.Quota.DailyLimit),
		zap.Duration("duration", run.Duration),
	)

	if run.Outcome.Retryable() {
		if persistErr != nil {
			return run, eris.Wrapf(persistErr, "discovery: run %s", run.ID)
		}
		if run.Outcome.Incomplete {
			return run, eris.Wrapf(resilience.Transient(eris.New(run.Outcome.Reason), 0), "discovery: run %s", run.ID)
		}
		persistErr = &model.PersistenceError{Op: "collect", Err: eris.New(run.Outcome.Reason)}
		return run, eris.Wrapf(persistErr, "discovery: run %s", run.ID)
	}
	return run, nil
}

func (r *Runner) enqueueWebsiteTasks(ctx context.Context, run *model.CollectionRun, places []model.Place, log *zap.Logger) {
	for _, p := range places {
		if p.Website == "" {
			continue
		}
		if r.publisher == nil {
			log.Debug("no publisher configured, skipping website task", zap.String("company_id", p.CompanyID))
			continue
		}
		task := model.WebsiteTask{CompanyID: p.CompanyID, Website: p.Website}
		if _, err := r.publisher.Publish(ctx, queue.TopicWebsite, task); err != nil {
			// A lost website task does not invalidate the collected places.
			log.Error("enqueue website task failed", zap.String("company_id", p.CompanyID), zap.Error(err))
			continue
		}
		run.Stats.WebsiteTasksQueued++
	}
}

// session holds the run-local view of accepted places and what has already
// been written.
type session struct {
	runner  *Runner
	run     *model.CollectionRun
	log     *zap.Logger
	places  []model.EnrichedPlace
	index   map[string]int
	dirty   map[string]bool
	// saved holds the stored version of every written place, keyed by
	// place ID, in first-write order.
	saved   []model.Place
	savedAt map[string]int
	scraped map[string]bool
}

func newSession(r *Runner, run *model.CollectionRun, log *zap.Logger) *session {
	return &session{
		runner:  r,
		run:     run,
		log:     log,
		index:   make(map[string]int),
		dirty:   make(map[string]bool),
		savedAt: make(map[string]int),
		scraped: make(map[string]bool),
	}
}

// track records the latest version of a place and marks it unsaved.
func (s *session) track(p model.EnrichedPlace) {
	id := p.ProviderID
	if i, ok := s.index[id]; ok {
		s.places[i] = p
	} else {
		s.index[id] = len(s.places)
		s.places = append(s.places, p)
	}
	s.dirty[id] = true
}

// Checkpoint writes every place changed since the last checkpoint. It is safe
// to call at any stage boundary; writes are idempotent by place ID.
func (s *session) Checkpoint(ctx context.Context) error {
	var batch []model.Place
	for _, p := range s.places {
		if !s.dirty[p.ProviderID] {
			continue
		}
		batch = append(batch, model.Place{
			EnrichedPlace: p,
			City:          s.run.Task.City,
			State:         s.run.Task.State,
			Niche:         s.run.Task.Niche,
		})
	}
	if len(batch) == 0 {
		return nil
	}

	res, err := s.runner.store.SavePlaces(ctx, batch)
	if err != nil {
		if !model.IsPersistence(err) {
			err = &model.PersistenceError{Op: "save places", Err: err}
		}
		return err
	}

	for _, p := range batch {
		delete(s.dirty, p.ProviderID)
	}
	for _, p := range res.Saved {
		if i, ok := s.savedAt[p.ProviderID]; ok {
			s.saved[i] = p
			continue
		}
		s.savedAt[p.ProviderID] = len(s.saved)
		s.saved = append(s.saved, p)
	}
	for id := range res.Scraped {
		s.scraped[id] = true
	}
	s.run.Stats.NewPlaces += len(res.Inserted)
	s.run.Stats.UpdatedPlaces += res.Updated
	s.run.Stats.SkippedPlaces += res.Skipped

	s.log.Info("checkpoint saved",
		zap.Int("places", len(batch)),
		zap.Int("new", len(res.Inserted)),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
	)
	return nil
}

func (s *session) companyIDs() []string {
	ids := make([]string, 0, len(s.saved))
	for _, p := range s.saved {
		ids = append(ids, p.CompanyID)
	}
	return ids
}

// pendingWebsites returns saved places whose company has a website and has
// never been through website enrichment.
func (s *session) pendingWebsites() []model.Place {
	var out []model.Place
	for _, p := range s.saved {
		if p.Website != "" && !s.scraped[p.CompanyID] {
			out = append(out, p)
		}
	}
	return out
}
