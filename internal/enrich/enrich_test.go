package enrich

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexphiev/empreinte-enrich/internal/cache"
	"github.com/alexphiev/empreinte-enrich/internal/model"
	"github.com/alexphiev/empreinte-enrich/internal/resilience"
	"github.com/alexphiev/empreinte-enrich/pkg/wikipedia"
)

// mockWiki is a hand-written wikipedia.Client double keyed by language.
type mockWiki struct {
	searchHits map[string]*wikipedia.SearchHit
	extracts   map[string]string
	categories []string
	markup     string
	views      []int64
	languages  []string

	searchErr     error
	extractErr    error
	categoriesErr error
	markupErr     error
	viewsErr      error
	languagesErr  error

	searchCalls []string
}

func (m *mockWiki) SearchTitle(_ context.Context, lang, _ string) (*wikipedia.SearchHit, error) {
	m.searchCalls = append(m.searchCalls, lang)
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.searchHits[lang], nil
}

func (m *mockWiki) Extract(_ context.Context, lang, _ string) (string, error) {
	if m.extractErr != nil {
		return "", m.extractErr
	}
	return m.extracts[lang], nil
}

func (m *mockWiki) Categories(context.Context, string, string) ([]string, error) {
	return m.categories, m.categoriesErr
}

func (m *mockWiki) RawMarkup(context.Context, string, string) (string, error) {
	return m.markup, m.markupErr
}

func (m *mockWiki) DailyViews(context.Context, string, string, time.Time, time.Time) ([]int64, error) {
	return m.views, m.viewsErr
}

func (m *mockWiki) Languages(context.Context, string, string) ([]string, error) {
	return m.languages, m.languagesErr
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    1,
		InitialBackoff: time.Millisecond,
		Sleep:          func(context.Context, time.Duration) {},
	}
}

func newTestEnricher(t *testing.T, wiki wikipedia.Client, opts ...Option) *Enricher {
	t.Helper()
	c, err := cache.New(t.TempDir(), "wikipedia")
	require.NoError(t, err)
	opts = append([]Option{WithRetryConfig(fastRetry())}, opts...)
	return New(wiki, c, opts...)
}

func TestFetchByNamePrefersFirstLanguage(t *testing.T) {
	wiki := &mockWiki{
		searchHits: map[string]*wikipedia.SearchHit{
			"fr": {Title: "Gorges du Verdon", PageID: 1},
			"en": {Title: "Verdon Gorge", PageID: 2},
		},
		extracts:  map[string]string{"fr": "Un canyon du sud-est de la France."},
		languages: []string{"fr", "en", "de"},
		views:     []int64{100, 200, 300},
	}
	e := newTestEnricher(t, wiki)

	page, err := e.FetchByName(context.Background(), "Gorges du Verdon", false)
	require.NoError(t, err)
	assert.Equal(t, "fr", page.Language)
	assert.Equal(t, "Gorges du Verdon", page.Title)
	assert.Equal(t, "Un canyon du sud-est de la France.", page.Extract)
	assert.Equal(t, 3, page.LanguageCount)
	require.NotNil(t, page.AvgDailyViews)
	assert.InDelta(t, 200.0, *page.AvgDailyViews, 0.01)
	assert.Equal(t, []string{"fr"}, wiki.searchCalls)
}

func TestFetchByNameFallsThroughEmptyExtract(t *testing.T) {
	wiki := &mockWiki{
		searchHits: map[string]*wikipedia.SearchHit{
			"fr": {Title: "Stub", PageID: 1},
			"en": {Title: "Annecy Lake", PageID: 2},
		},
		extracts: map[string]string{"en": "A lake in the French Alps."},
	}
	e := newTestEnricher(t, wiki)

	page, err := e.FetchByName(context.Background(), "Lac d'Annecy", false)
	require.NoError(t, err)
	assert.Equal(t, "en", page.Language)
	assert.Equal(t, []string{"fr", "en"}, wiki.searchCalls)
}

func TestFetchByNameNoArticle(t *testing.T) {
	e := newTestEnricher(t, &mockWiki{})

	_, err := e.FetchByName(context.Background(), "Nonexistent Place", false)
	assert.ErrorIs(t, err, ErrNoArticle)
}

func TestFetchByNameEmpty(t *testing.T) {
	e := newTestEnricher(t, &mockWiki{})
	_, err := e.FetchByName(context.Background(), "  ", false)
	assert.Error(t, err)
}

func TestFetchByReference(t *testing.T) {
	wiki := &mockWiki{
		extracts: map[string]string{"en": "Mont Blanc is the highest mountain in the Alps."},
	}
	e := newTestEnricher(t, wiki)

	page, err := e.FetchByReference(context.Background(), "en:Mont Blanc", false)
	require.NoError(t, err)
	assert.Equal(t, "en", page.Language)
	assert.Equal(t, "Mont Blanc", page.Title)
	// No search round-trip for explicit references.
	assert.Empty(t, wiki.searchCalls)
}

func TestFetchByReferenceDefaultLanguage(t *testing.T) {
	wiki := &mockWiki{
		extracts: map[string]string{"fr": "Le mont Blanc."},
	}
	e := newTestEnricher(t, wiki)

	page, err := e.FetchByReference(context.Background(), "Mont Blanc", false)
	require.NoError(t, err)
	assert.Equal(t, "fr", page.Language)
}

func TestSecondaryFetchesDegradeIndependently(t *testing.T) {
	wiki := &mockWiki{
		searchHits:    map[string]*wikipedia.SearchHit{"fr": {Title: "Gorges du Verdon"}},
		extracts:      map[string]string{"fr": "Un canyon."},
		categoriesErr: eris.New("categories down"),
		markupErr:     eris.New("markup down"),
		viewsErr:      eris.New("pageviews down"),
		languagesErr:  eris.New("langlinks down"),
	}
	e := newTestEnricher(t, wiki)

	page, err := e.FetchByName(context.Background(), "Gorges du Verdon", false)
	require.NoError(t, err)
	assert.Equal(t, "Un canyon.", page.Extract)
	assert.Empty(t, page.Categories)
	assert.Empty(t, page.Infobox)
	assert.Nil(t, page.AvgDailyViews)
	assert.Equal(t, 1, page.LanguageCount)
}

func TestExtractFailureIsFatal(t *testing.T) {
	wiki := &mockWiki{
		searchHits: map[string]*wikipedia.SearchHit{"fr": {Title: "Gorges du Verdon"}},
		extractErr: eris.New("api down"),
	}
	e := newTestEnricher(t, wiki)

	_, err := e.FetchByName(context.Background(), "Gorges du Verdon", false)
	assert.Error(t, err)
}

func TestZeroViewsYieldNil(t *testing.T) {
	wiki := &mockWiki{
		searchHits: map[string]*wikipedia.SearchHit{"fr": {Title: "Obscur"}},
		extracts:   map[string]string{"fr": "Un lieu."},
		views:      []int64{0, 0, 0},
	}
	e := newTestEnricher(t, wiki)

	page, err := e.FetchByName(context.Background(), "Obscur", false)
	require.NoError(t, err)
	assert.Nil(t, page.AvgDailyViews)
}

func TestInfoboxExtraction(t *testing.T) {
	wiki := &mockWiki{
		searchHits: map[string]*wikipedia.SearchHit{"fr": {Title: "Gorges du Verdon"}},
		extracts:   map[string]string{"fr": "Un canyon."},
		markup:     "{{Infobox Gorge\n| longueur = 25 km\n| profondeur = 700 m\n}}",
	}
	e := newTestEnricher(t, wiki)

	page, err := e.FetchByName(context.Background(), "Gorges du Verdon", false)
	require.NoError(t, err)
	assert.Equal(t, "25 km", page.Infobox["longueur"])
	assert.Equal(t, "700 m", page.Infobox["profondeur"])
}

func TestFilterCategories(t *testing.T) {
	got := filterCategories([]string{
		"Catégorie:Canyon de France",
		"Catégorie:Article géolocalisé en France",
		"Category:Pages using infobox mountain",
		"Catégorie:Portail:Alpes/Articles liés",
		"Category:Canyons of France",
	})
	assert.Equal(t, []string{"Canyon de France", "Canyons of France"}, got)
}

func TestPageCaching(t *testing.T) {
	wiki := &mockWiki{
		searchHits: map[string]*wikipedia.SearchHit{"fr": {Title: "Gorges du Verdon"}},
		extracts:   map[string]string{"fr": "Un canyon."},
	}
	e := newTestEnricher(t, wiki)

	_, err := e.FetchByReference(context.Background(), "fr:Gorges du Verdon", false)
	require.NoError(t, err)

	// Second fetch must come from cache even if the upstream breaks.
	wiki.extractErr = eris.New("api down")
	page, err := e.FetchByReference(context.Background(), "fr:Gorges du Verdon", false)
	require.NoError(t, err)
	assert.Equal(t, "Un canyon.", page.Extract)

	// Force refresh bypasses the cache and hits the broken upstream.
	_, err = e.FetchByReference(context.Background(), "fr:Gorges du Verdon", true)
	assert.Error(t, err)
}

func TestPageSignal(t *testing.T) {
	avg := 150.0
	page := &Page{
		Language:      "fr",
		Title:         "Gorges du Verdon",
		Extract:       "Un canyon.",
		Categories:    []string{"Canyon"},
		Infobox:       map[string]string{"longueur": "25 km"},
		AvgDailyViews: &avg,
		LanguageCount: 4,
	}
	sig := page.Signal()
	assert.Equal(t, model.SignalEncyclopediaPage, sig.Kind)
	assert.Equal(t, "wikipedia", sig.Source)
	assert.Equal(t, "Gorges du Verdon", sig.Title)
	assert.Equal(t, 4, sig.LanguageCount)
	require.NotNil(t, sig.AvgDailyViews)
	assert.Equal(t, 150.0, *sig.AvgDailyViews)
}
