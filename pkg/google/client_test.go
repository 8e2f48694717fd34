package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextSearch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/places:searchText", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Goog-Api-Key"))
		assert.Contains(t, r.Header.Get("X-Goog-FieldMask"), "places.id")
		assert.Contains(t, r.Header.Get("X-Goog-FieldMask"), "nextPageToken")

		var body TextSearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "dentista em CAMPINAS, SP, Brasil", body.TextQuery)
		assert.Equal(t, "pt-BR", body.LanguageCode)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(TextSearchResponse{
			Places: []Place{
				{
					ID:               "ChIJ-test1",
					DisplayName:      DisplayName{Text: "Clinica Sorriso"},
					FormattedAddress: "Rua A, 100 - Campinas, SP",
					Location:         &LatLng{Latitude: -22.9, Longitude: -47.06},
					Rating:           4.5,
					UserRatingCount:  127,
				},
			},
			NextPageToken: "next-page-token-123",
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.TextSearch(context.Background(), TextSearchRequest{
		TextQuery:    "dentista em CAMPINAS, SP, Brasil",
		LanguageCode: "pt-BR",
	})

	require.NoError(t, err)
	require.Len(t, resp.Places, 1)
	assert.Equal(t, "ChIJ-test1", resp.Places[0].ID)
	assert.Equal(t, "Clinica Sorriso", resp.Places[0].DisplayName.Text)
	assert.InDelta(t, 4.5, resp.Places[0].Rating, 0.001)
	assert.Equal(t, 127, resp.Places[0].UserRatingCount)
	assert.InDelta(t, -22.9, resp.Places[0].Location.Latitude, 0.0001)
	assert.Equal(t, "next-page-token-123", resp.NextPageToken)
}

func TestTextSearch_Pagination(t *testing.T) {
	callCount := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		var body TextSearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		if body.PageToken == "" {
			_ = json.NewEncoder(w).Encode(TextSearchResponse{
				Places:        []Place{{ID: "place-1", DisplayName: DisplayName{Text: "First"}}},
				NextPageToken: "page-2-token",
			})
			return
		}
		assert.Equal(t, "page-2-token", body.PageToken)
		_ = json.NewEncoder(w).Encode(TextSearchResponse{
			Places: []Place{{ID: "place-2", DisplayName: DisplayName{Text: "Second"}}},
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))

	resp, err := client.TextSearch(context.Background(), TextSearchRequest{TextQuery: "test"})
	require.NoError(t, err)
	assert.Equal(t, "page-2-token", resp.NextPageToken)

	resp, err = client.TextSearch(context.Background(), TextSearchRequest{TextQuery: "test", PageToken: resp.NextPageToken})
	require.NoError(t, err)
	require.Len(t, resp.Places, 1)
	assert.Equal(t, "place-2", resp.Places[0].ID)
	assert.Empty(t, resp.NextPageToken)
	assert.Equal(t, 2, callCount)
}

func TestTextSearch_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.TextSearch(context.Background(), TextSearchRequest{TextQuery: "nothing"})

	require.NoError(t, err)
	assert.Empty(t, resp.Places)
	assert.Empty(t, resp.NextPageToken)
}

func TestTextSearch_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": "rate limit exceeded"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.TextSearch(context.Background(), TextSearchRequest{TextQuery: "test"})

	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Contains(t, err.Error(), "429")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
}

func TestTextSearch_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.TextSearch(ctx, TextSearchRequest{TextQuery: "test"})

	assert.Error(t, err)
	assert.Nil(t, resp)
}

func TestPlaceDetails_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/places/ChIJ-abc", r.URL.Path)
		assert.Equal(t, "pt-BR", r.URL.Query().Get("languageCode"))
		assert.Equal(t, "test-key", r.Header.Get("X-Goog-Api-Key"))
		assert.Contains(t, r.Header.Get("X-Goog-FieldMask"), "nationalPhoneNumber")
		assert.Contains(t, r.Header.Get("X-Goog-FieldMask"), "reviews")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "ChIJ-abc",
			"displayName": {"text": "Padaria Central", "languageCode": "pt"},
			"nationalPhoneNumber": "(19) 3232-0000",
			"websiteUri": "https://padariacentral.com.br",
			"googleMapsUri": "https://maps.google.com/?cid=1",
			"regularOpeningHours": {"openNow": true, "weekdayDescriptions": ["segunda-feira: 07:00–19:00"]},
			"reviews": [{"rating": 5, "text": {"text": "Otimo pao"}, "authorAttribution": {"displayName": "Ana"}}],
			"priceLevel": "PRICE_LEVEL_INEXPENSIVE"
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	p, err := client.PlaceDetails(context.Background(), "ChIJ-abc", "pt-BR")

	require.NoError(t, err)
	assert.Equal(t, "Padaria Central", p.DisplayName.Text)
	assert.Equal(t, "(19) 3232-0000", p.NationalPhoneNumber)
	assert.Equal(t, "https://padariacentral.com.br", p.WebsiteURI)
	require.NotNil(t, p.RegularOpeningHours)
	assert.True(t, *p.RegularOpeningHours.OpenNow)
	require.Len(t, p.Reviews, 1)
	assert.Equal(t, "Ana", p.Reviews[0].AuthorAttribution.DisplayName)
	assert.Equal(t, "PRICE_LEVEL_INEXPENSIVE", p.PriceLevel)
}

func TestPlaceDetails_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": {"status": "NOT_FOUND"}}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	p, err := client.PlaceDetails(context.Background(), "missing", "")

	require.Error(t, err)
	assert.Nil(t, p)
	assert.Contains(t, err.Error(), "details missing")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestPlaceDetails_EmptyID(t *testing.T) {
	client := NewClient("test-key")
	_, err := client.PlaceDetails(context.Background(), "", "pt-BR")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "place id is required")
}
