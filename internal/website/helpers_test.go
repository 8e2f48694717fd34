package website

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/place-enrich/internal/config"
	"github.com/sells-group/place-enrich/internal/fetcher"
	"github.com/sells-group/place-enrich/internal/model"
)

const testUA = "AurisBot/1.0 (+https://auris.com.br/bot)"

// site is an httptest server with per-path handlers that records every
// requested path. Unknown paths answer 404.
type site struct {
	*httptest.Server
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	requests []string
}

func newSite(t *testing.T, handlers map[string]http.HandlerFunc) *site {
	t.Helper()
	s := &site{handlers: handlers}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.URL.Path)
		h, ok := s.handlers[r.URL.Path]
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *site) requested() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *site) base(t *testing.T) *url.URL {
	t.Helper()
	u, err := NormalizeURL(s.URL)
	require.NoError(t, err)
	return u
}

func html(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}
}

func text(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(body))
	}
}

// xmlFor renders body with %s replaced by the request's scheme and host.
func xmlFor(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(strings.ReplaceAll(format, "%s", "http://"+r.Host)))
	}
}

// page renders a document with enough visible text to count as fetched.
func page(title, content string) http.HandlerFunc {
	return html("<html><head><title>" + title + "</title></head><body><main><h1>" + title +
		"</h1><p>" + content + " Atendimento de segunda a sexta, com equipe especializada e estrutura completa.</p></main></body></html>")
}

func testFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.Options{UserAgent: testUA, Timeout: 5 * time.Second})
}

func testWebsiteConfig() config.WebsiteConfig {
	return config.WebsiteConfig{
		UserAgent:       testUA,
		MaxPages:        7,
		FetchTimeout:    5 * time.Second,
		MaxCharsPerPage: 20000,
		MaxTotalChars:   300000,
		ExtractTimeout:  5 * time.Second,
		RunTimeout:      30 * time.Second,
	}
}

type fakeStore struct {
	mu      sync.Mutex
	updates []model.WebsiteUpdate
	err     error
}

func (s *fakeStore) UpdateWebsiteData(_ context.Context, upd model.WebsiteUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.updates = append(s.updates, upd)
	return nil
}

func (s *fakeStore) last() model.WebsiteUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.updates) == 0 {
		return model.WebsiteUpdate{}
	}
	return s.updates[len(s.updates)-1]
}

// fakeExtractor returns canned results and records the text it was given.
type fakeExtractor struct {
	mu    sync.Mutex
	doc   string
	errs  []error
	calls int
	texts []string
}

func (f *fakeExtractor) Extract(_ context.Context, text string, _ json.RawMessage) (json.RawMessage, *model.TokenUsage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.texts = append(f.texts, text)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, nil, err
		}
	}
	return json.RawMessage(f.doc), &model.TokenUsage{InputTokens: 100, OutputTokens: 10, Cost: 0.01}, nil
}
