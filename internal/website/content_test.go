package website

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/place-enrich/internal/model"
)

type stubScraper struct {
	pages map[string]string
	calls []string
}

func (s *stubScraper) Scrape(_ context.Context, u string) (*model.CrawledPage, error) {
	s.calls = append(s.calls, u)
	txt, ok := s.pages[u]
	if !ok {
		return nil, errors.New("scrape: unexpected status 404")
	}
	return &model.CrawledPage{URL: u, Text: txt, StatusCode: 200}, nil
}

func discovered(us ...string) []model.DiscoveredPage {
	out := make([]model.DiscoveredPage, len(us))
	for i, u := range us {
		out[i] = model.DiscoveredPage{URL: u}
	}
	return out
}

func TestContentExtractor_BudgetAndTallies(t *testing.T) {
	sc := &stubScraper{pages: map[string]string{
		"a": strings.Repeat("x", 50),
		"c": strings.Repeat("y", 50),
		"d": "zzz",
	}}
	ce := NewContentExtractor(sc, ContentOptions{
		MinDelay:        2 * time.Second,
		MaxDelay:        3 * time.Second,
		MaxCharsPerPage: 20,
		MaxTotalChars:   60,
	})
	var slept []time.Duration
	ce.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	ce.jitter = func(n int64) int64 { return n - 1 }

	res, err := ce.Extract(context.Background(), discovered("a", "b", "c", "d"))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c", "d"}, sc.calls, "pages past the budget are still fetched")
	assert.Equal(t, 3, res.PagesFetched)
	assert.Equal(t, 1, res.PagesFailed)
	assert.Len(t, res.Text, 60)
	assert.True(t, strings.HasPrefix(res.Text, "=== Page: a ===\n"+strings.Repeat("x", 20)+"\n\n=== Page: c ===\n"))
	assert.NotContains(t, res.Text, "zzz")

	require.Len(t, res.Pages, 4)
	assert.Equal(t, 36, res.Pages[0].Chars)
	assert.NotEmpty(t, res.Pages[1].Error)
	assert.Equal(t, 24, res.Pages[2].Chars)
	assert.Equal(t, 0, res.Pages[3].Chars)

	// One delay before every fetch after the first, within the range.
	require.Len(t, slept, 3)
	for _, d := range slept {
		assert.Equal(t, 3*time.Second, d)
	}
}

func TestContentExtractor_BudgetCountsCharacters(t *testing.T) {
	sc := &stubScraper{pages: map[string]string{
		"a": strings.Repeat("ç", 50),
		"b": strings.Repeat("ã", 50),
	}}
	ce := NewContentExtractor(sc, ContentOptions{MaxCharsPerPage: 20, MaxTotalChars: 40})
	ce.sleep = func(context.Context, time.Duration) error { return nil }

	res, err := ce.Extract(context.Background(), discovered("a", "b"))
	require.NoError(t, err)

	assert.Equal(t, 40, utf8.RuneCountInString(res.Text))
	assert.Greater(t, len(res.Text), 40)
	assert.Contains(t, res.Text, strings.Repeat("ç", 20))
	require.Len(t, res.Pages, 2)
	assert.Equal(t, 36, res.Pages[0].Chars)
	assert.Equal(t, 4, res.Pages[1].Chars)
}

func TestContentExtractor_AllFail(t *testing.T) {
	ce := NewContentExtractor(&stubScraper{}, ContentOptions{})
	ce.sleep = func(context.Context, time.Duration) error { return nil }

	res, err := ce.Extract(context.Background(), discovered("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, 0, res.PagesFetched)
	assert.Equal(t, 2, res.PagesFailed)
	assert.Empty(t, res.Text)
}

func TestContentExtractor_CancelledDuringDelay(t *testing.T) {
	sc := &stubScraper{pages: map[string]string{"a": "texto", "b": "mais"}}
	ce := NewContentExtractor(sc, ContentOptions{MinDelay: time.Second, MaxDelay: time.Second})
	ce.sleep = func(context.Context, time.Duration) error { return context.DeadlineExceeded }

	res, err := ce.Extract(context.Background(), discovered("a", "b"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, res.PagesFetched)
	assert.Equal(t, "=== Page: a ===\ntexto", res.Text)
	assert.Equal(t, []string{"a"}, sc.calls)
}

func TestContentExtractor_DelayRange(t *testing.T) {
	ce := NewContentExtractor(&stubScraper{}, ContentOptions{MinDelay: 2 * time.Second, MaxDelay: 3 * time.Second})
	for i := 0; i < 50; i++ {
		d := ce.delay()
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 3*time.Second)
	}

	fixed := NewContentExtractor(&stubScraper{}, ContentOptions{MinDelay: time.Second, MaxDelay: time.Second})
	assert.Equal(t, time.Second, fixed.delay())
}
