package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexphiev/empreinte-enrich/internal/catalog"
	"github.com/alexphiev/empreinte-enrich/internal/enrich"
	"github.com/alexphiev/empreinte-enrich/internal/model"
	"github.com/alexphiev/empreinte-enrich/internal/resilience"
	"github.com/alexphiev/empreinte-enrich/internal/scorer"
	"github.com/alexphiev/empreinte-enrich/internal/summarize"
	"github.com/alexphiev/empreinte-enrich/pkg/gplaces"
	"github.com/alexphiev/empreinte-enrich/pkg/wikipedia"
)

type stubWiki struct {
	title   string
	extract string
	langs   []string
}

func (s stubWiki) SearchTitle(context.Context, string, string) (*wikipedia.SearchHit, error) {
	if s.title == "" {
		return nil, nil
	}
	return &wikipedia.SearchHit{Title: s.title}, nil
}

func (s stubWiki) Extract(context.Context, string, string) (string, error) {
	return s.extract, nil
}

func (s stubWiki) Categories(context.Context, string, string) ([]string, error) {
	return nil, nil
}

func (s stubWiki) RawMarkup(context.Context, string, string) (string, error) {
	return "", nil
}

func (s stubWiki) DailyViews(context.Context, string, string, time.Time, time.Time) ([]int64, error) {
	return nil, nil
}

func (s stubWiki) Languages(context.Context, string, string) ([]string, error) {
	return s.langs, nil
}

type stubGPlaces struct {
	details *gplaces.Details
}

func (s stubGPlaces) FindPlaceID(context.Context, string, *float64, *float64) (string, error) {
	return "", nil
}

func (s stubGPlaces) FetchDetails(context.Context, string) (*gplaces.Details, error) {
	return s.details, nil
}

type stubSummarizer struct{ out string }

func (s stubSummarizer) Describe(context.Context, summarize.Request) (string, error) {
	return s.out, nil
}

func enrichTestStore(t *testing.T) *catalog.SQLiteStore {
	t.Helper()
	st, err := catalog.NewSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

func quickRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts: 1,
		Sleep:       func(context.Context, time.Duration) {},
	}
}

func TestEnrichPlaceRecomputesScore(t *testing.T) {
	st := enrichTestStore(t)
	place := &model.Place{ID: "p1", Name: "Gorges du Verdon", Website: "https://verdon.fr", SourceScore: 30}
	place.RecomputeScore()
	require.NoError(t, st.InsertPlace(context.Background(), place))

	deps := enrichDeps{
		store:  st,
		engine: scorer.New(scorer.DefaultRules()),
		enricher: enrich.New(
			stubWiki{title: "Gorges du Verdon", extract: "Un canyon.", langs: []string{"fr", "en", "de"}},
			nil,
			enrich.WithRetryConfig(quickRetry()),
		),
	}

	require.NoError(t, deps.enrichPlace(context.Background(), place, "", false))

	stored, err := st.GetPlace(context.Background(), "p1")
	require.NoError(t, err)
	// presence 10 + 3 languages 3 + website 5; source untouched.
	assert.Equal(t, 30, stored.SourceScore)
	assert.Equal(t, 18, stored.EnhancementScore)
	assert.Equal(t, 48, stored.Score)
	// No summarizer configured: the raw extract becomes the description.
	assert.Equal(t, "Un canyon.", stored.Description)
}

func TestEnrichPlaceNoArticle(t *testing.T) {
	st := enrichTestStore(t)
	place := &model.Place{ID: "p1", Name: "Lieu inconnu"}
	require.NoError(t, st.InsertPlace(context.Background(), place))

	deps := enrichDeps{
		store:    st,
		engine:   scorer.New(scorer.DefaultRules()),
		enricher: enrich.New(stubWiki{}, nil, enrich.WithRetryConfig(quickRetry())),
	}

	require.NoError(t, deps.enrichPlace(context.Background(), place, "", false))

	stored, err := st.GetPlace(context.Background(), "p1")
	require.NoError(t, err)
	assert.Zero(t, stored.EnhancementScore)
	assert.Empty(t, stored.Description)
}

func TestEnrichPlaceUsesSummarizer(t *testing.T) {
	st := enrichTestStore(t)
	place := &model.Place{ID: "p1", Name: "Gorges du Verdon"}
	require.NoError(t, st.InsertPlace(context.Background(), place))

	deps := enrichDeps{
		store:  st,
		engine: scorer.New(scorer.DefaultRules()),
		enricher: enrich.New(
			stubWiki{title: "Gorges du Verdon", extract: "Un canyon."},
			nil,
			enrich.WithRetryConfig(quickRetry()),
		),
		summarizer: stubSummarizer{out: "Un canyon spectaculaire du sud-est."},
	}

	require.NoError(t, deps.enrichPlace(context.Background(), place, "", false))

	stored, err := st.GetPlace(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Un canyon spectaculaire du sud-est.", stored.Description)
}

func TestEnrichPlaceRatingSignal(t *testing.T) {
	st := enrichTestStore(t)
	place := &model.Place{ID: "p1", Name: "Gorges du Verdon", GooglePlaceID: "gp-verdon"}
	require.NoError(t, st.InsertPlace(context.Background(), place))

	rating := 4.5
	deps := enrichDeps{
		store:    st,
		engine:   scorer.New(scorer.DefaultRules()),
		enricher: enrich.New(stubWiki{}, nil, enrich.WithRetryConfig(quickRetry())),
		places:   stubGPlaces{details: &gplaces.Details{Rating: &rating, ReviewCount: 200}},
	}

	require.NoError(t, deps.enrichPlace(context.Background(), place, "", false))

	stored, err := st.GetPlace(context.Background(), "p1")
	require.NoError(t, err)
	// rating presence 5 + delta round((4.5-3)*5) = 8.
	assert.Equal(t, 13, stored.EnhancementScore)
}
