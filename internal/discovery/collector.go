package discovery

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/place-enrich/internal/config"
	"github.com/sells-group/place-enrich/internal/cost"
	"github.com/sells-group/place-enrich/internal/model"
	"github.com/sells-group/place-enrich/internal/quota"
	"github.com/sells-group/place-enrich/internal/resilience"
	"github.com/sells-group/place-enrich/pkg/google"
)

const defaultQueryTemplate = "{term} em {city}, {state}, Brasil"

// Harvest is what one Collect call gathered and why it stopped.
type Harvest struct {
	Searches             int
	DuplicatesByID       int
	DuplicatesByLocation int
	MissingID            int
	// Denied is set when a search page was refused by the quota tracker.
	Denied *quota.Decision
	// ProviderErr is a search failure that ends the run.
	ProviderErr error
	// Interrupted is set when the run budget ran out between pages or terms.
	Interrupted bool
	// TermsDone counts terms searched through their last page.
	TermsDone int
}

// Collector pages through text search results term by term.
type Collector struct {
	client  google.Client
	quota   quota.Tracker
	limiter *rate.Limiter
	units   int64
	cfg     config.CollectConfig
	sleep   resilience.Sleeper
}

// NewCollector creates a Collector. limiter gates every provider call and is
// shared with the Enricher.
func NewCollector(client google.Client, tracker quota.Tracker, limiter *rate.Limiter, calc *cost.Calculator, cfg config.CollectConfig) *Collector {
	return &Collector{
		client:  client,
		quota:   tracker,
		limiter: limiter,
		units:   calc.TextSearchUnits(),
		cfg:     cfg,
		sleep:   resilience.SleepContext,
	}
}

// Query renders the text query for one term.
func (c *Collector) Query(term string, task model.CollectionTask) string {
	tmpl := c.cfg.QueryTemplate
	if tmpl == "" {
		tmpl = defaultQueryTemplate
	}
	return strings.NewReplacer(
		"{term}", term,
		"{city}", task.City,
		"{state}", task.State,
		"{niche}", task.Niche,
	).Replace(tmpl)
}

// Collect runs every term in order and feeds results through dedup. It stops
// the whole run on the first quota denial or search failure; everything
// accepted before that stays in dedup. The returned error is set only when
// the quota tracker itself fails.
func (c *Collector) Collect(ctx context.Context, task model.CollectionTask, terms []string, dedup *Deduplicator) (*Harvest, error) {
	log := zap.L().With(zap.String("stage", "collect"), zap.String("task", task.String()))
	h := &Harvest{}

	for i, term := range terms {
		if ctx.Err() != nil {
			h.Interrupted = true
			return h, nil
		}
		if i > 0 {
			if err := c.sleep(ctx, c.cfg.TermDelay); err != nil {
				h.Interrupted = true
				return h, nil
			}
		}

		before := dedup.Len()
		stop, err := c.searchTerm(ctx, task, term, dedup, h)
		if err != nil {
			return h, err
		}
		if !stop {
			h.TermsDone++
		}

		log.Info("term searched",
			zap.Int("term", i+1),
			zap.Int("terms", len(terms)),
			zap.String("query", c.Query(term, task)),
			zap.Int("accepted", dedup.Len()-before),
			zap.Int("total_accepted", dedup.Len()),
		)

		if stop {
			if h.Denied != nil {
				log.Warn("stopping collection: quota limit",
					zap.Int("term", i+1),
					zap.Int64("used", h.Denied.Used),
					zap.Int64("limit", h.Denied.Limit),
				)
			}
			return h, nil
		}
		if i < len(terms)-1 && nearDeadline(ctx, c.cfg.FlushMargin) {
			log.Warn("stopping collection: run budget nearly spent", zap.Int("term", i+1))
			h.Interrupted = true
			return h, nil
		}
	}
	return h, nil
}

// searchTerm pages through one term. It reports stop=true when the run must
// not continue.
func (c *Collector) searchTerm(ctx context.Context, task model.CollectionTask, term string, dedup *Deduplicator, h *Harvest) (bool, error) {
	req := google.TextSearchRequest{
		TextQuery:    c.Query(term, task),
		LanguageCode: c.cfg.LanguageCode,
		RegionCode:   c.cfg.RegionCode,
	}

	for page := 0; ; page++ {
		if req.PageToken != "" {
			// Continuation tokens are not valid until the provider settles.
			if err := c.sleep(ctx, c.cfg.PageTokenDelay); err != nil {
				h.Interrupted = true
				return true, nil
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			h.Interrupted = true
			return true, nil
		}

		d, err := c.quota.Reserve(ctx, c.units)
		if err != nil {
			return true, &model.PersistenceError{Op: "reserve quota", Err: err}
		}
		if !d.Allowed {
			h.Denied = &d
			return true, nil
		}

		resp, err := c.client.TextSearch(ctx, req)
		h.Searches++
		if err != nil && ctx.Err() != nil {
			h.Interrupted = true
			return true, nil
		}
		if err != nil {
			zap.L().Error("text search failed",
				zap.String("query", req.TextQuery),
				zap.Int("page", page),
				zap.Error(err),
			)
			h.ProviderErr = &model.ProviderError{Provider: "google", Scope: model.ScopeRun, Err: err}
			return true, nil
		}

		for _, p := range resp.Places {
			switch v := dedup.Accept(candidateFromPlace(p)); v.Reason {
			case DuplicateByID:
				h.DuplicatesByID++
			case DuplicateByLocation:
				h.DuplicatesByLocation++
				zap.L().Debug("duplicate by location",
					zap.String("place_id", p.ID),
					zap.String("existing", v.Existing.ProviderID),
					zap.Float64("distance_m", v.DistanceM),
				)
			case MissingID:
				h.MissingID++
			}
		}

		if resp.NextPageToken == "" {
			return false, nil
		}
		req.PageToken = resp.NextPageToken
	}
}
