// Package gplaces provides a client for the Google Places API, the
// secondary photo and ratings source.
package gplaces

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

// maxPhotos bounds how many photo references one details call returns.
const maxPhotos = 10

// Details holds the provider data for one resolved place.
type Details struct {
	PlaceID     string   `json:"place_id"`
	Name        string   `json:"name"`
	Photos      []Photo  `json:"photos,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
	ReviewCount int      `json:"review_count"`
}

// Photo is one photo reference with its attributions.
type Photo struct {
	Reference    string   `json:"photo_reference"`
	Attributions []string `json:"html_attributions,omitempty"`
}

// Client defines the Google Places operations used by the media
// orchestrator.
type Client interface {
	// FindPlaceID resolves a name (optionally biased by coordinates) to
	// a provider place id. Empty string means no match.
	FindPlaceID(ctx context.Context, name string, lon, lat *float64) (string, error)
	// FetchDetails fetches photos, rating, and review count for an id.
	FetchDetails(ctx context.Context, placeID string) (*Details, error)
}

// Option configures the gplaces client.
type Option func(*httpClient)

// WithBaseURL sets a custom API base URL (for testing).
func WithBaseURL(base string) Option {
	return func(c *httpClient) { c.baseURL = base }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a places client with a bounded request timeout and a
// per-provider request-rate ceiling.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://maps.googleapis.com/maps/api/place",
		http: &http.Client{
			Timeout: 15 * time.Second,
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

func (c *httpClient) get(ctx context.Context, reqURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "gplaces: rate limiter")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "gplaces: create request")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "gplaces: request"))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "gplaces: read body"))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, resilience.NewRateLimitError(eris.Errorf("gplaces: status 429: %s", string(body)))
	case resp.StatusCode != http.StatusOK:
		return nil, eris.Errorf("gplaces: unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// statusToErr maps the in-body API status to an error. ZERO_RESULTS is
// not an error; OVER_QUERY_LIMIT maps to the rate-limit class.
func statusToErr(status, errMsg string) error {
	switch status {
	case "OK", "ZERO_RESULTS":
		return nil
	case "OVER_QUERY_LIMIT":
		return resilience.NewRateLimitError(eris.Errorf("gplaces: over query limit: %s", errMsg))
	default:
		return eris.Errorf("gplaces: status %s: %s", status, errMsg)
	}
}

func (c *httpClient) FindPlaceID(ctx context.Context, name string, lon, lat *float64) (string, error) {
	params := url.Values{
		"input":     {name},
		"inputtype": {"textquery"},
		"fields":    {"place_id"},
		"key":       {c.apiKey},
	}
	if lon != nil && lat != nil {
		params.Set("locationbias", fmt.Sprintf("circle:5000@%f,%f", *lat, *lon))
	}

	body, err := c.get(ctx, c.baseURL+"/findplacefromtext/json?"+params.Encode())
	if err != nil {
		return "", err
	}

	var out struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"error_message"`
		Candidates   []struct {
			PlaceID string `json:"place_id"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", eris.Wrap(err, "gplaces: unmarshal find place")
	}
	if err := statusToErr(out.Status, out.ErrorMessage); err != nil {
		return "", err
	}
	if len(out.Candidates) == 0 {
		return "", nil
	}
	return out.Candidates[0].PlaceID, nil
}

func (c *httpClient) FetchDetails(ctx context.Context, placeID string) (*Details, error) {
	params := url.Values{
		"place_id": {placeID},
		"fields":   {"place_id,name,photo,rating,user_ratings_total"},
		"key":      {c.apiKey},
	}

	body, err := c.get(ctx, c.baseURL+"/details/json?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var out struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"error_message"`
		Result       struct {
			PlaceID string `json:"place_id"`
			Name    string `json:"name"`
			Photos  []struct {
				Reference    string   `json:"photo_reference"`
				Attributions []string `json:"html_attributions"`
			} `json:"photos"`
			Rating           *float64 `json:"rating"`
			UserRatingsTotal int      `json:"user_ratings_total"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "gplaces: unmarshal details")
	}
	if err := statusToErr(out.Status, out.ErrorMessage); err != nil {
		return nil, err
	}

	d := &Details{
		PlaceID:     out.Result.PlaceID,
		Name:        out.Result.Name,
		Rating:      out.Result.Rating,
		ReviewCount: out.Result.UserRatingsTotal,
	}
	for _, p := range out.Result.Photos {
		d.Photos = append(d.Photos, Photo{Reference: p.Reference, Attributions: p.Attributions})
		if len(d.Photos) >= maxPhotos {
			break
		}
	}
	return d, nil
}
