// Package overpass provides a client for the OpenStreetMap Overpass
// API, the feature query service backing place verification.
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/alexphiev/empreinte-enrich/internal/resilience"
)

const userAgent = "empreinte-enrich/1.0 (places catalog enrichment; contact@empreinte.app)"

// natureTags are the OSM keys that qualify an element as a natural
// feature for the catalog's domain filter.
var natureTags = []string{"natural", "waterway", "leisure", "boundary"}

// Element is one raw geo-tagged result.
type Element struct {
	Type string            `json:"type"`
	ID   int64             `json:"id"`
	Lat  float64           `json:"lat"`
	Lon  float64           `json:"lon"`
	Tags map[string]string `json:"tags"`

	Center *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"center,omitempty"`
}

// ExternalID returns the stable "<type>/<id>" identifier.
func (e Element) ExternalID() string {
	return fmt.Sprintf("%s/%d", e.Type, e.ID)
}

// Name returns the element's name tag.
func (e Element) Name() string { return e.Tags["name"] }

// Coords returns the element position, falling back to the way/relation
// center when no node coordinates are present.
func (e Element) Coords() (lon, lat float64) {
	if e.Center != nil {
		return e.Center.Lon, e.Center.Lat
	}
	return e.Lon, e.Lat
}

// Category returns the first matching nature tag value.
func (e Element) Category() string {
	for _, key := range natureTags {
		if v := e.Tags[key]; v != "" {
			return key + "=" + v
		}
	}
	return ""
}

// SearchResult is the outcome of a free-text feature search.
type SearchResult struct {
	// Elements are the nature-matching features.
	Elements []Element
	// TotalFound counts all named features before the domain filter, so
	// callers can distinguish "nothing found" from "found but none
	// natural".
	TotalFound int
}

// Client defines the feature query operations.
type Client interface {
	// SearchByName finds named features matching name, applying the
	// nature domain filter.
	SearchByName(ctx context.Context, name string) (*SearchResult, error)
}

// Option configures the overpass client.
type Option func(*httpClient)

// WithBaseURL sets a custom interpreter URL (for testing).
func WithBaseURL(base string) Option {
	return func(c *httpClient) { c.baseURL = base }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates an overpass client with a bounded request timeout.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://overpass-api.de/api/interpreter",
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) SearchByName(ctx context.Context, name string) (*SearchResult, error) {
	query := fmt.Sprintf(`[out:json][timeout:10];nwr["name"~"^%s$",i];out center 50;`, escapeRegex(name))

	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "overpass: create request")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "overpass: request"))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "overpass: read body"))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, resilience.NewRateLimitError(eris.Errorf("overpass: status 429: %s", string(body)))
	case resp.StatusCode != http.StatusOK:
		return nil, eris.Errorf("overpass: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		Elements []Element `json:"elements"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "overpass: unmarshal response")
	}

	result := &SearchResult{}
	for _, el := range out.Elements {
		if el.Name() == "" {
			continue
		}
		result.TotalFound++
		if el.Category() != "" {
			result.Elements = append(result.Elements, el)
		}
	}
	return result, nil
}

var regexMeta = regexp.MustCompile(`[.*+?()\[\]{}|^$\\]`)

// escapeRegex quotes a name for safe interpolation into an Overpass
// regular-expression filter.
func escapeRegex(name string) string {
	return regexMeta.ReplaceAllString(name, `\$0`)
}
