package discovery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/place-enrich/internal/cost"
	"github.com/sells-group/place-enrich/internal/model"
	"github.com/sells-group/place-enrich/internal/quota"
	"github.com/sells-group/place-enrich/internal/resilience"
	"github.com/sells-group/place-enrich/pkg/google"
)

const defaultEnrichConcurrency = 4

// Enrichment is the result of one Enrich call. Places is aligned with the
// input candidates; entries that were not fetched keep their search fields.
type Enrichment struct {
	Places  []model.EnrichedPlace
	Fetched int
	Failed  int
	Denied  *quota.Decision
	// ProviderErr is set when the provider breaker opened mid-run.
	ProviderErr error
	Interrupted bool
}

// Enricher fetches place details with bounded concurrency.
type Enricher struct {
	client      google.Client
	quota       quota.Tracker
	limiter     *rate.Limiter
	breaker     *resilience.Breaker
	units       int64
	concurrency int
	language    string
	margin      time.Duration
}

// NewEnricher creates an Enricher.
func NewEnricher(client google.Client, tracker quota.Tracker, limiter *rate.Limiter, breaker *resilience.Breaker, calc *cost.Calculator, concurrency int, language string, margin time.Duration) *Enricher {
	if concurrency <= 0 {
		concurrency = defaultEnrichConcurrency
	}
	return &Enricher{
		client:      client,
		quota:       tracker,
		limiter:     limiter,
		breaker:     breaker,
		units:       calc.DetailsUnits(),
		concurrency: concurrency,
		language:    language,
		margin:      margin,
	}
}

// Enrich fetches details for each candidate. Every call reserves quota first;
// the first denial stops further dispatch while in-flight calls finish.
// Individual provider failures are logged and skipped.
func (e *Enricher) Enrich(ctx context.Context, candidates []model.PlaceCandidate) (*Enrichment, error) {
	log := zap.L().With(zap.String("stage", "enrich"))
	out := &Enrichment{Places: make([]model.EnrichedPlace, len(candidates))}
	for i, c := range candidates {
		out.Places[i] = model.NewEnrichedPlace(c)
	}

	var (
		mu       sync.Mutex
		stopped  atomic.Bool
		trackErr error
		g        errgroup.Group
	)
	g.SetLimit(e.concurrency)

	stop := func(fn func()) {
		mu.Lock()
		defer mu.Unlock()
		fn()
		stopped.Store(true)
	}

	for i := range candidates {
		if stopped.Load() {
			break
		}
		if nearDeadline(ctx, e.margin) {
			log.Warn("stopping enrichment: run budget nearly spent", zap.Int("dispatched", i))
			out.Interrupted = true
			break
		}

		g.Go(func() error {
			if stopped.Load() {
				return nil
			}
			if err := e.limiter.Wait(ctx); err != nil {
				stop(func() { out.Interrupted = true })
				return nil
			}

			d, err := e.quota.Reserve(ctx, e.units)
			if err != nil {
				stop(func() {
					if trackErr == nil {
						trackErr = err
					}
				})
				return nil
			}
			if !d.Allowed {
				stop(func() {
					if out.Denied == nil {
						out.Denied = &d
					}
				})
				return nil
			}

			id := candidates[i].ProviderID
			p, err := resilience.Call(ctx, e.breaker, func(ctx context.Context) (*google.Place, error) {
				return e.client.PlaceDetails(ctx, id, e.language)
			})
			if errors.Is(err, resilience.ErrBreakerOpen) {
				stop(func() {
					if out.ProviderErr == nil {
						out.ProviderErr = &model.ProviderError{Provider: "google", Scope: model.ScopeRun, Err: err}
					}
				})
				return nil
			}
			if err != nil && ctx.Err() != nil {
				stop(func() { out.Interrupted = true })
				return nil
			}
			if err != nil {
				log.Warn("place details failed, keeping search fields", zap.String("place_id", id), zap.Error(err))
				mu.Lock()
				out.Failed++
				mu.Unlock()
				return nil
			}

			out.Places[i].Merge(detailsFromPlace(*p))
			mu.Lock()
			out.Fetched++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if trackErr != nil {
		return out, &model.PersistenceError{Op: "reserve quota", Err: trackErr}
	}
	return out, nil
}
