// Package wikipedia provides a client for the MediaWiki action API and
// the Wikimedia pageviews REST API.
package wikipedia

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/alexphiev/empreinte-enrich/internal/resilience"
)

const userAgent = "empreinte-enrich/1.0 (places catalog enrichment; contact@empreinte.app)"

// Client defines the encyclopedia service operations.
type Client interface {
	// SearchTitle resolves a free-text name to the best-matching article.
	// Returns nil when the search yields nothing.
	SearchTitle(ctx context.Context, lang, name string) (*SearchHit, error)
	// Extract fetches the plain-text intro extract of an article.
	Extract(ctx context.Context, lang, title string) (string, error)
	// Categories fetches the category titles of an article.
	Categories(ctx context.Context, lang, title string) ([]string, error)
	// RawMarkup fetches the wikitext of the latest revision.
	RawMarkup(ctx context.Context, lang, title string) (string, error)
	// DailyViews fetches the per-day view counts over [start, end].
	DailyViews(ctx context.Context, lang, title string, start, end time.Time) ([]int64, error)
	// Languages fetches the language codes the article exists in,
	// including lang itself.
	Languages(ctx context.Context, lang, title string) ([]string, error)
}

// SearchHit is one title-search result.
type SearchHit struct {
	Title  string `json:"title"`
	PageID int64  `json:"pageid"`
}

// Option configures the wikipedia client.
type Option func(*httpClient)

// WithAPIBase sets the action API base URL template; it must contain one
// %s placeholder for the language code (for testing).
func WithAPIBase(tpl string) Option {
	return func(c *httpClient) { c.apiBase = tpl }
}

// WithPageviewsBase sets the pageviews REST base URL (for testing).
func WithPageviewsBase(base string) Option {
	return func(c *httpClient) { c.pageviewsBase = base }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	apiBase       string
	pageviewsBase string
	http          *http.Client
	limiter       *rate.Limiter
}

// NewClient creates a wikipedia client with a bounded request timeout
// and a polite request-rate ceiling.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		apiBase:       "https://%s.wikipedia.org/w/api.php",
		pageviewsBase: "https://wikimedia.org/api/rest_v1",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(10), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get performs one GET with the shared identification headers and maps
// the status code to the retry taxonomy: 429 is retryable with the
// rate-limit backoff cap, all other non-2xx statuses are fatal.
func (c *httpClient) get(ctx context.Context, reqURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "wikipedia: rate limiter")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "wikipedia: create request")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "wikipedia: request"))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "wikipedia: read body"))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, resilience.NewRateLimitError(eris.Errorf("wikipedia: status 429: %s", string(body)))
	case resp.StatusCode != http.StatusOK:
		return nil, eris.Errorf("wikipedia: unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func (c *httpClient) actionURL(lang string, params url.Values) string {
	params.Set("format", "json")
	params.Set("formatversion", "2")
	return fmt.Sprintf(c.apiBase, lang) + "?" + params.Encode()
}

func (c *httpClient) SearchTitle(ctx context.Context, lang, name string) (*SearchHit, error) {
	params := url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {name},
		"srlimit":  {"1"},
	}
	body, err := c.get(ctx, c.actionURL(lang, params))
	if err != nil {
		return nil, err
	}

	var out struct {
		Query struct {
			Search []SearchHit `json:"search"`
		} `json:"query"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "wikipedia: unmarshal search")
	}
	if len(out.Query.Search) == 0 {
		return nil, nil
	}
	return &out.Query.Search[0], nil
}

func (c *httpClient) Extract(ctx context.Context, lang, title string) (string, error) {
	params := url.Values{
		"action":      {"query"},
		"prop":        {"extracts"},
		"exintro":     {"1"},
		"explaintext": {"1"},
		"titles":      {title},
	}
	body, err := c.get(ctx, c.actionURL(lang, params))
	if err != nil {
		return "", err
	}

	var out struct {
		Query struct {
			Pages []struct {
				Missing bool   `json:"missing"`
				Extract string `json:"extract"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", eris.Wrap(err, "wikipedia: unmarshal extract")
	}
	if len(out.Query.Pages) == 0 || out.Query.Pages[0].Missing {
		return "", nil
	}
	return out.Query.Pages[0].Extract, nil
}

func (c *httpClient) Categories(ctx context.Context, lang, title string) ([]string, error) {
	params := url.Values{
		"action":  {"query"},
		"prop":    {"categories"},
		"cllimit": {"max"},
		"clshow":  {"!hidden"},
		"titles":  {title},
	}
	body, err := c.get(ctx, c.actionURL(lang, params))
	if err != nil {
		return nil, err
	}

	var out struct {
		Query struct {
			Pages []struct {
				Categories []struct {
					Title string `json:"title"`
				} `json:"categories"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "wikipedia: unmarshal categories")
	}
	if len(out.Query.Pages) == 0 {
		return nil, nil
	}

	var cats []string
	for _, c := range out.Query.Pages[0].Categories {
		cats = append(cats, c.Title)
	}
	return cats, nil
}

func (c *httpClient) RawMarkup(ctx context.Context, lang, title string) (string, error) {
	params := url.Values{
		"action":  {"query"},
		"prop":    {"revisions"},
		"rvprop":  {"content"},
		"rvslots": {"main"},
		"titles":  {title},
	}
	body, err := c.get(ctx, c.actionURL(lang, params))
	if err != nil {
		return "", err
	}

	var out struct {
		Query struct {
			Pages []struct {
				Revisions []struct {
					Slots struct {
						Main struct {
							Content string `json:"content"`
						} `json:"main"`
					} `json:"slots"`
				} `json:"revisions"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", eris.Wrap(err, "wikipedia: unmarshal revisions")
	}
	if len(out.Query.Pages) == 0 || len(out.Query.Pages[0].Revisions) == 0 {
		return "", nil
	}
	return out.Query.Pages[0].Revisions[0].Slots.Main.Content, nil
}

func (c *httpClient) DailyViews(ctx context.Context, lang, title string, start, end time.Time) ([]int64, error) {
	reqURL := fmt.Sprintf("%s/metrics/pageviews/per-article/%s.wikipedia/all-access/user/%s/daily/%s/%s",
		c.pageviewsBase,
		lang,
		url.PathEscape(title),
		start.Format("20060102"),
		end.Format("20060102"),
	)
	body, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var out struct {
		Items []struct {
			Views int64 `json:"views"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "wikipedia: unmarshal pageviews")
	}

	views := make([]int64, 0, len(out.Items))
	for _, item := range out.Items {
		views = append(views, item.Views)
	}
	return views, nil
}

func (c *httpClient) Languages(ctx context.Context, lang, title string) ([]string, error) {
	params := url.Values{
		"action":  {"query"},
		"prop":    {"langlinks"},
		"lllimit": {"max"},
		"titles":  {title},
	}
	body, err := c.get(ctx, c.actionURL(lang, params))
	if err != nil {
		return nil, err
	}

	var out struct {
		Query struct {
			Pages []struct {
				Missing   bool `json:"missing"`
				LangLinks []struct {
					Lang string `json:"lang"`
				} `json:"langlinks"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "wikipedia: unmarshal langlinks")
	}
	if len(out.Query.Pages) == 0 || out.Query.Pages[0].Missing {
		return nil, nil
	}

	langs := []string{lang}
	for _, ll := range out.Query.Pages[0].LangLinks {
		langs = append(langs, ll.Lang)
	}
	return langs, nil
}
