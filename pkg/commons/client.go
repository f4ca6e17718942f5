// Package commons provides a client for the Wikimedia Commons image
// search API, the free primary photo source.
package commons

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/alexphiev/empreinte-enrich/internal/resilience"
)

const userAgent = "empreinte-enrich/1.0 (places catalog enrichment; contact@empreinte.app)"

// maxPhotos bounds how many photo references one search returns.
const maxPhotos = 10

// Photo is one image reference with its attribution.
type Photo struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Attribution string `json:"attribution,omitempty"`
}

// Client defines the Commons photo search operations.
type Client interface {
	// SearchPhotos finds images for a place name, optionally biased by
	// coordinates. Zero results is not an error.
	SearchPhotos(ctx context.Context, name string, lon, lat *float64) ([]Photo, error)
}

// Option configures the commons client.
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
	baseURL string
	http    *http.Client
}

// NewClient creates a commons client with a bounded request timeout.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://commons.wikimedia.org/w/api.php",
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) SearchPhotos(ctx context.Context, name string, lon, lat *float64) ([]Photo, error) {
	params := url.Values{
		"action":        {"query"},
		"format":        {"json"},
		"formatversion": {"2"},
		"prop":          {"imageinfo"},
		"iiprop":        {"url|extmetadata"},
		"iilimit":       {"1"},
		"gsrlimit":      {fmt.Sprintf("%d", maxPhotos)},
		"gsrnamespace":  {"6"},
		"generator":     {"search"},
		"gsrsearch":     {name},
	}
	if lon != nil && lat != nil {
		// Bias toward images geotagged near the place.
		params.Set("gsrsearch", fmt.Sprintf("%s nearcoord:2km,%f,%f", name, *lat, *lon))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "commons: create request")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "commons: request"))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "commons: read body"))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, resilience.NewRateLimitError(eris.Errorf("commons: status 429: %s", string(body)))
	case resp.StatusCode != http.StatusOK:
		return nil, eris.Errorf("commons: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		Query struct {
			Pages []struct {
				Title     string `json:"title"`
				ImageInfo []struct {
					URL         string `json:"url"`
					ExtMetadata struct {
						Artist struct {
							Value string `json:"value"`
						} `json:"Artist"`
					} `json:"extmetadata"`
				} `json:"imageinfo"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "commons: unmarshal response")
	}

	var photos []Photo
	for _, page := range out.Query.Pages {
		if len(page.ImageInfo) == 0 {
			continue
		}
		photos = append(photos, Photo{
			Title:       page.Title,
			URL:         page.ImageInfo[0].URL,
			Attribution: page.ImageInfo[0].ExtMetadata.Artist.Value,
		})
		if len(photos) >= maxPhotos {
			break
		}
	}
	return photos, nil
}
