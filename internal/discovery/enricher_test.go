package discovery

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/place-enrich/internal/cost"
	"github.com/sells-group/place-enrich/internal/model"
	"github.com/sells-group/place-enrich/internal/quota"
	"github.com/sells-group/place-enrich/internal/resilience"
	"github.com/sells-group/place-enrich/pkg/google"
	"github.com/sells-group/place-enrich/pkg/google/mocks"
)

func newTestEnricher(client google.Client, tracker quota.Tracker, concurrency int) *Enricher {
	return NewEnricher(client, tracker, rate.NewLimiter(rate.Inf, 1),
		resilience.NewBreaker(resilience.ServicePlaces, resilience.DefaultBreakerConfig()),
		cost.NewCalculator(cost.DefaultRates()), concurrency, "pt-BR", 0)
}

func TestEnricher_ConcurrentQuotaNeverOverspent(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("PlaceDetails", mock.Anything, mock.Anything, "pt-BR").
		Return(&google.Place{InternationalPhoneNumber: "+55 19 3232-0000"}, nil)

	// Budget for exactly 3 detail calls.
	tracker := quota.NewMemoryTracker(17*3+5, testClock())

	var cands []model.PlaceCandidate
	for i := 0; i < 10; i++ {
		cands = append(cands, model.PlaceCandidate{ProviderID: fmt.Sprintf("p%d", i), DisplayName: "x"})
	}

	en, err := newTestEnricher(client, tracker, 4).Enrich(context.Background(), cands)
	require.NoError(t, err)

	assert.Equal(t, 3, en.Fetched)
	require.NotNil(t, en.Denied)
	assert.Equal(t, int64(51), en.Denied.Used)
	client.AssertNumberOfCalls(t, "PlaceDetails", 3)

	st, _ := tracker.State(context.Background())
	assert.LessOrEqual(t, st.UnitsConsumed, st.DailyLimit)

	// Output stays aligned with the input order.
	require.Len(t, en.Places, 10)
	enriched := 0
	for i, p := range en.Places {
		assert.Equal(t, cands[i].ProviderID, p.ProviderID)
		if p.Enriched {
			enriched++
			assert.Equal(t, "+55 19 3232-0000", p.InternationalPhone)
		}
	}
	assert.Equal(t, 3, enriched)
}

func TestEnricher_SkipsFailedItems(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("PlaceDetails", mock.Anything, "a", "pt-BR").Return(&google.Place{WebsiteURI: "https://a.com.br"}, nil)
	client.On("PlaceDetails", mock.Anything, "b", "pt-BR").Return(nil, &google.APIError{StatusCode: 400, Body: "bad id"})
	client.On("PlaceDetails", mock.Anything, "c", "pt-BR").Return(&google.Place{PriceLevel: "PRICE_LEVEL_MODERATE"}, nil)

	cands := []model.PlaceCandidate{{ProviderID: "a"}, {ProviderID: "b", Website: "https://b.com.br"}, {ProviderID: "c"}}
	en, err := newTestEnricher(client, quota.NewMemoryTracker(20000, testClock()), 2).Enrich(context.Background(), cands)
	require.NoError(t, err)

	assert.Equal(t, 2, en.Fetched)
	assert.Equal(t, 1, en.Failed)
	assert.Nil(t, en.Denied)
	assert.Equal(t, "https://a.com.br", en.Places[0].Website)
	assert.False(t, en.Places[1].Enriched)
	assert.Equal(t, "https://b.com.br", en.Places[1].Website)
	assert.Equal(t, "PRICE_LEVEL_MODERATE", en.Places[2].PriceLevel)
}
