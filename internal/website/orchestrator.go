package website

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/place-enrich/internal/config"
	"github.com/sells-group/place-enrich/internal/extract"
	"github.com/sells-group/place-enrich/internal/fetcher"
	"github.com/sells-group/place-enrich/internal/model"
	"github.com/sells-group/place-enrich/internal/queue"
	"github.com/sells-group/place-enrich/internal/resilience"
	"github.com/sells-group/place-enrich/internal/scrape"
)

// persistTimeout bounds the final write, which runs even when the run
// context is done.
const persistTimeout = 30 * time.Second

// Orchestrator runs website tasks through robots check, page discovery,
// content fetch, extraction and persistence.
type Orchestrator struct {
	store      Store
	policy     Policy
	discoverer *Discoverer
	content    *ContentExtractor
	extractor  extract.Extractor
	schema     json.RawMessage
	publisher  queue.Publisher
	breaker    *resilience.Breaker
	backoff    resilience.Backoff
	cfg        config.WebsiteConfig
	now        func() time.Time
}

// NewOrchestrator wires an Orchestrator. publisher may be nil, in which case
// validated CNPJs are only recorded on the result.
func NewOrchestrator(cfg config.WebsiteConfig, store Store, f fetcher.Fetcher, extractor extract.Extractor, schema json.RawMessage, publisher queue.Publisher, breaker *resilience.Breaker) *Orchestrator {
	if breaker == nil {
		breaker = resilience.NewBreaker(resilience.ServiceAnthropic, resilience.DefaultBreakerConfig())
	}
	return &Orchestrator{
		store:      store,
		policy:     NewPolicyChecker(f),
		discoverer: NewDiscoverer(f, scrape.NewPathMatcher(cfg.ExcludePaths), cfg.MaxPages),
		content: NewContentExtractor(scrape.NewLocalScraper(f), ContentOptions{
			MinDelay:        cfg.MinDelay,
			MaxDelay:        cfg.MaxDelay,
			MaxCharsPerPage: cfg.MaxCharsPerPage,
			MaxTotalChars:   cfg.MaxTotalChars,
		}),
		extractor: extractor,
		schema:    schema,
		publisher: publisher,
		breaker:   breaker,
		backoff:   resilience.DefaultBackoff(),
		cfg:       cfg,
		now:       time.Now,
	}
}

// Run enriches one company. The result is non-nil whenever the task names a
// company. The returned error is non-nil only for a malformed task or when
// the result could not be persisted; the latter must be redelivered.
func (o *Orchestrator) Run(ctx context.Context, task model.WebsiteTask) (*model.ExtractionResult, error) {
	if strings.TrimSpace(task.CompanyID) == "" {
		return nil, &model.ValidationError{Field: "company_id", Reason: "required"}
	}

	res := &model.ExtractionResult{
		CompanyID: task.CompanyID,
		Website:   task.Website,
		State:     model.WebsiteStart,
	}
	log := zap.L().With(zap.String("company_id", task.CompanyID), zap.String("website", task.Website))

	base, err := NormalizeURL(task.Website)
	if err != nil {
		log.Info("website: invalid URL", zap.Error(err))
		return o.finish(ctx, log, res, model.EnrichmentFailed, err.Error())
	}
	res.Website = base.String()

	if o.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RunTimeout)
		defer cancel()
	}

	if !o.policy.Allowed(ctx, base) {
		res.State = model.WebsiteRobotsChecked
		return o.finish(ctx, log, res, model.EnrichmentCompleted, model.ReasonPolicyDisallowed)
	}
	res.State = model.WebsiteRobotsChecked

	pages, err := o.discoverer.Discover(ctx, base)
	if err != nil {
		return o.interrupted(ctx, log, res, err)
	}
	if len(pages) == 0 {
		return o.finish(ctx, log, res, model.EnrichmentPartial, model.ReasonNoPages)
	}
	res.State = model.WebsitePagesDiscovered
	log.Debug("website: pages discovered", zap.Int("pages", len(pages)), zap.String("source", string(pages[len(pages)-1].Source)))

	content, err := o.content.Extract(ctx, pages)
	if content != nil {
		res.Pages = content.Pages
		res.PagesFetched = content.PagesFetched
		res.PagesFailed = content.PagesFailed
	}
	if err != nil {
		return o.interrupted(ctx, log, res, err)
	}
	if content.PagesFetched == 0 {
		return o.finish(ctx, log, res, model.EnrichmentPartial, model.ReasonNoPagesFetched(len(pages)))
	}
	res.State = model.WebsiteContentFetched

	doc, err := o.extract(ctx, content.Text, res)
	if err != nil {
		log.Warn("website: extraction failed", zap.Error(err))
		return o.finish(ctx, log, res, model.EnrichmentFailed, "extraction failed: "+err.Error())
	}
	res.Data = doc
	res.State = model.WebsiteExtracted
	o.recordCNPJ(ctx, log, res)

	status, reason := model.ClassifyScrape(res.PagesFetched, res.PagesFailed)
	return o.finish(ctx, log, res, status, reason)
}

// extract calls the extractor under the extraction timeout, retrying
// transient failures through the circuit breaker.
func (o *Orchestrator) extract(ctx context.Context, text string, res *model.ExtractionResult) (json.RawMessage, error) {
	if o.cfg.ExtractTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.ExtractTimeout)
		defer cancel()
	}

	return resilience.Retry(ctx, o.backoff, "website.extract", func(ctx context.Context) (json.RawMessage, error) {
		return resilience.Call(ctx, o.breaker, func(ctx context.Context) (json.RawMessage, error) {
			doc, usage, err := o.extractor.Extract(ctx, text, o.schema)
			if usage != nil {
				res.Usage.Add(*usage)
			}
			return doc, err
		})
	})
}

// recordCNPJ validates a cnpj field in the extracted document and, when
// valid, queues a federal registry lookup.
func (o *Orchestrator) recordCNPJ(ctx context.Context, log *zap.Logger, res *model.ExtractionResult) {
	var doc struct {
		CNPJ *string `json:"cnpj"`
	}
	if err := json.Unmarshal(res.Data, &doc); err != nil || doc.CNPJ == nil {
		return
	}
	cnpj, ok := NormalizeCNPJ(*doc.CNPJ)
	if !ok {
		log.Debug("website: extracted CNPJ failed validation", zap.String("cnpj", *doc.CNPJ))
		return
	}
	res.CNPJ = cnpj
	log.Info("website: valid CNPJ found", zap.String("cnpj", cnpj))

	if o.publisher == nil {
		return
	}
	if _, err := o.publisher.Publish(ctx, queue.TopicFederal, model.FederalTask{CompanyID: res.CompanyID, CNPJ: cnpj}); err != nil {
		log.Warn("website: enqueue federal lookup failed", zap.Error(err))
	}
}

// interrupted records a run cut short by cancellation or the run timeout.
func (o *Orchestrator) interrupted(ctx context.Context, log *zap.Logger, res *model.ExtractionResult, err error) (*model.ExtractionResult, error) {
	log.Warn("website: run interrupted", zap.String("state", string(res.State)), zap.Error(err))
	return o.finish(ctx, log, res, model.EnrichmentFailed, "interrupted after "+string(res.State)+": "+err.Error())
}

// finish persists the terminal status. A persistence failure marks the
// result failed_database_error and is returned for redelivery.
func (o *Orchestrator) finish(ctx context.Context, log *zap.Logger, res *model.ExtractionResult, status model.EnrichmentStatus, reason string) (*model.ExtractionResult, error) {
	res.Status = status
	res.Reason = reason
	res.ScrapedAt = o.now().UTC()

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	err := o.store.UpdateWebsiteData(pctx, model.WebsiteUpdate{
		CompanyID: res.CompanyID,
		Data:      res.Data,
		Status:    status,
		Reason:    reason,
		ScrapedAt: res.ScrapedAt,
	})
	if err != nil {
		res.Status = model.EnrichmentDatabaseError
		res.Reason = err.Error()
		log.Error("website: persist result failed", zap.Error(err))
		return res, eris.Wrap(&model.PersistenceError{Op: "website data", Err: err}, "website: persist")
	}

	if res.Data != nil {
		res.State = model.WebsitePersisted
	}
	log.Info("website: enrichment finished",
		zap.String("status", string(res.Status)),
		zap.String("reason", res.Reason),
		zap.Int("pages_fetched", res.PagesFetched),
		zap.Int("pages_failed", res.PagesFailed),
		zap.Float64("cost_usd", res.Usage.Cost),
	)
	return res, nil
}
