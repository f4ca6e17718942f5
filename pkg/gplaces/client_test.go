package gplaces

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexphiev/empreinte-enrich/internal/resilience"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-key", WithBaseURL(srv.URL))
}

func TestFindPlaceID_WithLocationBias(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/findplacefromtext/json", r.URL.Path)
		assert.Equal(t, "Lac d'Annecy", r.URL.Query().Get("input"))
		assert.Contains(t, r.URL.Query().Get("locationbias"), "circle:5000@")
		w.Write([]byte(`{"status":"OK","candidates":[{"place_id":"ChIJd_abc123"}]}`))
	})

	lon, lat := 6.14, 45.86
	id, err := client.FindPlaceID(context.Background(), "Lac d'Annecy", &lon, &lat)
	require.NoError(t, err)
	assert.Equal(t, "ChIJd_abc123", id)
}

func TestFindPlaceID_ZeroResults(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"ZERO_RESULTS","candidates":[]}`))
	})

	id, err := client.FindPlaceID(context.Background(), "nowhere", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestFetchDetails_PhotosAndRating(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/details/json", r.URL.Path)
		assert.Equal(t, "ChIJd_abc123", r.URL.Query().Get("place_id"))
		w.Write([]byte(`{"status":"OK","result":{"place_id":"ChIJd_abc123","name":"Lac d'Annecy",
			"photos":[{"photo_reference":"ref1","html_attributions":["<a>Someone</a>"]},{"photo_reference":"ref2"}],
			"rating":4.7,"user_ratings_total":15234}}`))
	})

	d, err := client.FetchDetails(context.Background(), "ChIJd_abc123")
	require.NoError(t, err)
	assert.Len(t, d.Photos, 2)
	assert.Equal(t, "ref1", d.Photos[0].Reference)
	require.NotNil(t, d.Rating)
	assert.Equal(t, 4.7, *d.Rating)
	assert.Equal(t, 15234, d.ReviewCount)
}

func TestStatusMapping(t *testing.T) {
	t.Run("over query limit is rate limited", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"status":"OVER_QUERY_LIMIT","error_message":"quota"}`))
		})
		_, err := client.FindPlaceID(context.Background(), "x", nil, nil)
		require.Error(t, err)
		assert.True(t, resilience.IsRateLimited(err))
	})

	t.Run("request denied is fatal", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"status":"REQUEST_DENIED","error_message":"bad key"}`))
		})
		_, err := client.FindPlaceID(context.Background(), "x", nil, nil)
		require.Error(t, err)
		assert.False(t, resilience.IsTransient(err))
	})
}
