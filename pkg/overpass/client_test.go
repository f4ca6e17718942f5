package overpass

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(WithBaseURL(srv.URL))
}

func TestSearchByName_FiltersToNatureFeatures(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Contains(t, r.Form.Get("data"), `"^Lac d'Annecy$"`)
		w.Write([]byte(`{"elements":[
			{"type":"relation","id":1721326,"center":{"lat":45.86,"lon":6.17},"tags":{"name":"Lac d'Annecy","natural":"water"}},
			{"type":"node","id":42,"lat":45.9,"lon":6.1,"tags":{"name":"Lac d'Annecy","shop":"souvenir"}},
			{"type":"node","id":43,"lat":45.9,"lon":6.1,"tags":{"amenity":"parking"}}
		]}`))
	})

	result, err := client.SearchByName(context.Background(), "Lac d'Annecy")
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalFound, "unnamed elements are not counted")
	require.Len(t, result.Elements, 1)

	el := result.Elements[0]
	assert.Equal(t, "relation/1721326", el.ExternalID())
	assert.Equal(t, "natural=water", el.Category())

	lon, lat := el.Coords()
	assert.Equal(t, 6.17, lon)
	assert.Equal(t, 45.86, lat)
}

func TestSearchByName_NothingFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"elements":[]}`))
	})

	result, err := client.SearchByName(context.Background(), "zzz")
	require.NoError(t, err)
	assert.Zero(t, result.TotalFound)
	assert.Empty(t, result.Elements)
}

func TestEscapeRegex(t *testing.T) {
	assert.Equal(t, `Lac \(du\) Bourget`, escapeRegex("Lac (du) Bourget"))
	assert.Equal(t, `Mont Blanc`, escapeRegex("Mont Blanc"))
}
