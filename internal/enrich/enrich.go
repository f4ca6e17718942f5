// Package enrich fetches encyclopedia material for places and turns it
// into enrichment signals.
package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/alexphiev/empreinte-enrich/internal/cache"
	"github.com/alexphiev/empreinte-enrich/internal/model"
	"github.com/alexphiev/empreinte-enrich/internal/resilience"
	"github.com/alexphiev/empreinte-enrich/internal/wikimarkup"
	"github.com/alexphiev/empreinte-enrich/pkg/wikipedia"
)

// viewsWindowDays is the lookback window for average daily views.
const viewsWindowDays = 365

// defaultLanguage is tried first when resolving a name without an
// explicit language prefix.
const defaultLanguage = "fr"

// ErrNoArticle means no language edition yielded a usable article.
var ErrNoArticle = eris.New("enrich: no article found")

// Page is the fully assembled encyclopedia material for one place.
type Page struct {
	Language      string            `json:"language"`
	Title         string            `json:"title"`
	Extract       string            `json:"extract"`
	Categories    []string          `json:"categories"`
	Infobox       map[string]string `json:"infobox"`
	AvgDailyViews *float64          `json:"avg_daily_views,omitempty"`
	LanguageCount int               `json:"language_count"`
}

// Signal converts the page into an enrichment signal.
func (p *Page) Signal() model.EnrichmentSignal {
	return model.EnrichmentSignal{
		Kind:          model.SignalEncyclopediaPage,
		Source:        "wikipedia",
		Title:         p.Title,
		Language:      p.Language,
		Summary:       p.Extract,
		Categories:    p.Categories,
		Infobox:       p.Infobox,
		AvgDailyViews: p.AvgDailyViews,
		LanguageCount: p.LanguageCount,
	}
}

// Enricher resolves places to encyclopedia pages.
type Enricher struct {
	wiki      wikipedia.Client
	cache     *cache.Cache
	retry     resilience.RetryConfig
	languages []string
	now       func() time.Time
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithLanguages sets the language fallback order for name resolution.
func WithLanguages(langs ...string) Option {
	return func(e *Enricher) {
		if len(langs) > 0 {
			e.languages = langs
		}
	}
}

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(e *Enricher) { e.retry = cfg }
}

// WithClock overrides the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(e *Enricher) { e.now = now }
}

// New creates an Enricher. The cache may be nil to disable caching.
func New(wiki wikipedia.Client, c *cache.Cache, opts ...Option) *Enricher {
	e := &Enricher{
		wiki:      wiki,
		cache:     c,
		retry:     resilience.DefaultRetryConfig(),
		languages: []string{defaultLanguage, "en"},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FetchByReference fetches the page behind an explicit article
// reference of the form "lang:Title". A bare title defaults to the
// first configured language.
func (e *Enricher) FetchByReference(ctx context.Context, ref string, forceRefresh bool) (*Page, error) {
	lang := e.languages[0]
	title := strings.TrimSpace(ref)
	if idx := strings.Index(title, ":"); idx > 0 && idx <= 3 {
		lang = title[:idx]
		title = strings.TrimSpace(title[idx+1:])
	}
	if title == "" {
		return nil, eris.New("enrich: empty article reference")
	}
	return e.fetchPage(ctx, lang, title, forceRefresh)
}

// FetchByName resolves a free-text place name by searching each
// configured language in order and keeping the first article that has
// a non-empty extract.
func (e *Enricher) FetchByName(ctx context.Context, name string, forceRefresh bool) (*Page, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, eris.New("enrich: empty place name")
	}

	for _, lang := range e.languages {
		hit, err := resilience.Do(ctx, e.retry, "wikipedia search", func(ctx context.Context) (*wikipedia.SearchHit, error) {
			return e.wiki.SearchTitle(ctx, lang, name)
		})
		if err != nil {
			return nil, err
		}
		if hit == nil {
			continue
		}

		page, err := e.fetchPage(ctx, lang, hit.Title, forceRefresh)
		if err != nil {
			return nil, err
		}
		if page.Extract != "" {
			return page, nil
		}
		zap.L().Debug("article has no extract, trying next language",
			zap.String("name", name),
			zap.String("lang", lang),
			zap.String("title", hit.Title),
		)
	}
	return nil, ErrNoArticle
}

// fetchPage assembles the full page for a resolved title. The extract
// is mandatory; categories, infobox, views and languages are
// best-effort and degrade independently.
func (e *Enricher) fetchPage(ctx context.Context, lang, title string, forceRefresh bool) (*Page, error) {
	key := fmt.Sprintf("%s:%s", lang, title)
	compute := func(ctx context.Context) (*Page, error) {
		return e.buildPage(ctx, lang, title)
	}
	if e.cache == nil {
		return compute(ctx)
	}
	return cache.LoadOrFetch(ctx, e.cache, key, forceRefresh, compute)
}

func (e *Enricher) buildPage(ctx context.Context, lang, title string) (*Page, error) {
	extract, err := resilience.Do(ctx, e.retry, "wikipedia extract", func(ctx context.Context) (string, error) {
		return e.wiki.Extract(ctx, lang, title)
	})
	if err != nil {
		return nil, err
	}

	page := &Page{
		Language:      lang,
		Title:         title,
		Extract:       extract,
		LanguageCount: 1,
	}

	if cats, err := resilience.Do(ctx, e.retry, "wikipedia categories", func(ctx context.Context) ([]string, error) {
		return e.wiki.Categories(ctx, lang, title)
	}); err != nil {
		zap.L().Warn("categories fetch failed", zap.String("title", title), zap.Error(err))
	} else {
		page.Categories = filterCategories(cats)
	}

	if markup, err := resilience.Do(ctx, e.retry, "wikipedia markup", func(ctx context.Context) (string, error) {
		return e.wiki.RawMarkup(ctx, lang, title)
	}); err != nil {
		zap.L().Warn("markup fetch failed", zap.String("title", title), zap.Error(err))
	} else {
		page.Infobox = wikimarkup.ExtractInfobox(markup)
	}

	page.AvgDailyViews = e.avgDailyViews(ctx, lang, title)

	if langs, err := resilience.Do(ctx, e.retry, "wikipedia languages", func(ctx context.Context) ([]string, error) {
		return e.wiki.Languages(ctx, lang, title)
	}); err != nil {
		zap.L().Warn("languages fetch failed", zap.String("title", title), zap.Error(err))
	} else if len(langs) > 0 {
		page.LanguageCount = len(langs)
	}

	return page, nil
}

// metaCategoryPrefixes marks encyclopedia housekeeping categories that
// carry no information about the place itself.
var metaCategoryPrefixes = []string{
	"Article", "Articles", "Page", "Pages", "Portail", "Portal",
	"Wikipédia", "Wikipedia", "CS1", "Webarchive",
}

// filterCategories strips the namespace prefix from category titles and
// drops maintenance categories.
func filterCategories(cats []string) []string {
	var out []string
	for _, c := range cats {
		if idx := strings.Index(c, ":"); idx >= 0 {
			c = c[idx+1:]
		}
		c = strings.TrimSpace(c)
		if c == "" || isMetaCategory(c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func isMetaCategory(c string) bool {
	for _, prefix := range metaCategoryPrefixes {
		if !strings.HasPrefix(c, prefix) {
			continue
		}
		rest := c[len(prefix):]
		if rest == "" || rest[0] == ' ' || rest[0] == ':' {
			return true
		}
	}
	return false
}

// avgDailyViews averages the view counts over the trailing year.
// Days with no data are excluded from the denominator. Returns nil
// when the series is unavailable or entirely zero.
func (e *Enricher) avgDailyViews(ctx context.Context, lang, title string) *float64 {
	// The pageviews API has no data for the current day yet, so the
	// window ends yesterday.
	end := e.now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -viewsWindowDays)

	views, err := resilience.Do(ctx, e.retry, "wikipedia pageviews", func(ctx context.Context) ([]int64, error) {
		return e.wiki.DailyViews(ctx, lang, title, start, end)
	})
	if err != nil {
		zap.L().Warn("pageviews fetch failed", zap.String("title", title), zap.Error(err))
		return nil
	}
	if len(views) == 0 {
		return nil
	}

	var total int64
	for _, v := range views {
		total += v
	}
	if total == 0 {
		return nil
	}
	avg := float64(total) / float64(len(views))
	return &avg
}
