package website

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/place-enrich/internal/model"
	"github.com/sells-group/place-enrich/internal/queue"
	"github.com/sells-group/place-enrich/internal/resilience"
	"github.com/sells-group/place-enrich/pkg/anthropic"
)

var testSchemaDoc = json.RawMessage(`{"type":"object","required":["nome"]}`)

func newTestOrchestrator(store Store, ex *fakeExtractor, pub queue.Publisher) *Orchestrator {
	o := NewOrchestrator(testWebsiteConfig(), store, testFetcher(), ex, testSchemaDoc, pub,
		resilience.NewBreaker(resilience.ServiceAnthropic, resilience.DefaultBreakerConfig()))
	o.backoff = resilience.Backoff{Attempts: 3, Initial: time.Millisecond, Max: time.Millisecond}
	o.now = func() time.Time { return time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC) }
	return o
}

func TestOrchestrator_PolicyDisallowed(t *testing.T) {
	s := newSite(t, map[string]http.HandlerFunc{
		"/robots.txt": text("User-agent: *\nDisallow: /\n"),
		"/":           page("Padaria", "Pães."),
	})
	store := &fakeStore{}
	ex := &fakeExtractor{doc: `{"nome":"Padaria"}`}

	res, err := newTestOrchestrator(store, ex, nil).Run(context.Background(), model.WebsiteTask{CompanyID: "company-1", Website: s.URL})
	require.NoError(t, err)

	assert.Equal(t, model.EnrichmentCompleted, res.Status)
	assert.Contains(t, res.Reason, "respects site crawl policy")
	assert.Equal(t, []string{"/robots.txt"}, s.requested(), "no page fetches after a disallow")
	assert.Equal(t, 0, ex.calls)

	upd := store.last()
	assert.Equal(t, "company-1", upd.CompanyID)
	assert.Equal(t, model.EnrichmentCompleted, upd.Status)
	assert.Nil(t, upd.Data)
}

func TestOrchestrator_InvalidURL(t *testing.T) {
	store := &fakeStore{}
	ex := &fakeExtractor{}

	res, err := newTestOrchestrator(store, ex, nil).Run(context.Background(), model.WebsiteTask{CompanyID: "company-1", Website: "padaria central"})
	require.NoError(t, err)
	assert.Equal(t, model.EnrichmentFailed, res.Status)
	assert.True(t, strings.HasPrefix(res.Reason, "invalid URL"), res.Reason)
	assert.Equal(t, model.EnrichmentFailed, store.last().Status)
}

func TestOrchestrator_MissingCompany(t *testing.T) {
	_, err := newTestOrchestrator(&fakeStore{}, &fakeExtractor{}, nil).Run(context.Background(), model.WebsiteTask{Website: "a.com.br"})
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}

func TestOrchestrator_CompletedWithCNPJ(t *testing.T) {
	s := newSite(t, map[string]http.HandlerFunc{
		"/sitemap.xml": xmlFor(`<urlset><url><loc>%s/sobre</loc></url><url><loc>%s/contato</loc></url></urlset>`),
		"/":            page("Padaria Central", "Pães artesanais."),
		"/sobre":       page("Sobre", "Desde 1982."),
		"/contato":     page("Contato", "CNPJ 11.222.333/0001-81."),
	})
	store := &fakeStore{}
	ex := &fakeExtractor{doc: `{"nome":"Padaria Central","cnpj":"11.222.333/0001-81"}`}
	pub := queue.NewMemory(0)

	res, err := newTestOrchestrator(store, ex, pub).Run(context.Background(), model.WebsiteTask{CompanyID: "company-1", Website: s.URL})
	require.NoError(t, err)

	assert.Equal(t, model.EnrichmentCompleted, res.Status)
	assert.Equal(t, "successfully scraped 3 pages", res.Reason)
	assert.Equal(t, model.WebsitePersisted, res.State)
	assert.Equal(t, 3, res.PagesFetched)
	assert.Equal(t, "11222333000181", res.CNPJ)
	assert.InDelta(t, 0.01, res.Usage.Cost, 0.0001)

	require.Len(t, ex.texts, 1)
	assert.Contains(t, ex.texts[0], "=== Page: "+s.URL+"/ ===")
	assert.Contains(t, ex.texts[0], "=== Page: "+s.URL+"/contato ===")

	upd := store.last()
	assert.JSONEq(t, `{"nome":"Padaria Central","cnpj":"11.222.333/0001-81"}`, string(upd.Data))
	assert.Equal(t, time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC), upd.ScrapedAt)
	assert.Equal(t, 1, pub.Len(queue.TopicFederal))
}

func TestOrchestrator_PartialWhenSomePagesFail(t *testing.T) {
	s := newSite(t, map[string]http.HandlerFunc{
		"/sitemap.xml": xmlFor(`<urlset><url><loc>%s/sobre</loc></url><url><loc>%s/contato</loc></url></urlset>`),
		"/":            page("Padaria Central", "Pães artesanais."),
		"/sobre":       page("Sobre", "Desde 1982."),
	})
	store := &fakeStore{}
	ex := &fakeExtractor{doc: `{"nome":"Padaria Central","cnpj":"123"}`}
	pub := queue.NewMemory(0)

	res, err := newTestOrchestrator(store, ex, pub).Run(context.Background(), model.WebsiteTask{CompanyID: "company-1", Website: s.URL})
	require.NoError(t, err)
	assert.Equal(t, model.EnrichmentPartial, res.Status)
	assert.Equal(t, "data extracted from 2 pages, 1 pages failed", res.Reason)
	assert.Empty(t, res.CNPJ)
	assert.Equal(t, 0, pub.Len(queue.TopicFederal))
}

func TestOrchestrator_NoPagesFetched(t *testing.T) {
	s := newSite(t, nil)
	store := &fakeStore{}
	ex := &fakeExtractor{}

	res, err := newTestOrchestrator(store, ex, nil).Run(context.Background(), model.WebsiteTask{CompanyID: "company-1", Website: s.URL})
	require.NoError(t, err)
	assert.Equal(t, model.EnrichmentPartial, res.Status)
	assert.Equal(t, "no pages fetched (tried 7)", res.Reason)
	assert.Equal(t, 7, res.PagesFailed)
	assert.Equal(t, 0, ex.calls)
}

func TestOrchestrator_ExtractionFailure(t *testing.T) {
	s := newSite(t, map[string]http.HandlerFunc{"/": page("Padaria", "Pães.")})
	store := &fakeStore{}
	ex := &fakeExtractor{errs: []error{errors.New("extract: malformed response: invalid JSON")}}

	res, err := newTestOrchestrator(store, ex, nil).Run(context.Background(), model.WebsiteTask{CompanyID: "company-1", Website: s.URL})
	require.NoError(t, err)
	assert.Equal(t, model.EnrichmentFailed, res.Status)
	assert.Contains(t, res.Reason, "invalid JSON")
	assert.Equal(t, 1, ex.calls, "malformed replies are not retried")
	assert.Nil(t, store.last().Data)
}

func TestOrchestrator_TransientExtractionRetried(t *testing.T) {
	s := newSite(t, map[string]http.HandlerFunc{"/": page("Padaria", "Pães.")})
	store := &fakeStore{}
	overloaded := &model.ProviderError{Provider: "anthropic", Scope: model.ScopeItem, Err: &anthropic.APIError{StatusCode: 503, Err: errors.New("overloaded")}}
	ex := &fakeExtractor{doc: `{"nome":"Padaria"}`, errs: []error{overloaded}}

	res, err := newTestOrchestrator(store, ex, nil).Run(context.Background(), model.WebsiteTask{CompanyID: "company-1", Website: s.URL})
	require.NoError(t, err)
	assert.Equal(t, 2, ex.calls)
	assert.Equal(t, model.EnrichmentPartial, res.Status, "fallback guesses beyond the homepage 404")
	assert.NotNil(t, res.Data)
}

func TestOrchestrator_PersistenceFailureIsRetryable(t *testing.T) {
	s := newSite(t, map[string]http.HandlerFunc{
		"/robots.txt": text("User-agent: *\nDisallow: /\n"),
	})
	store := &fakeStore{err: errors.New("connection refused")}

	res, err := newTestOrchestrator(store, &fakeExtractor{}, nil).Run(context.Background(), model.WebsiteTask{CompanyID: "company-1", Website: s.URL})
	require.Error(t, err)
	assert.True(t, model.IsPersistence(err))
	assert.Equal(t, model.EnrichmentDatabaseError, res.Status)
}
