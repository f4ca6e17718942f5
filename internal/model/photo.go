package model

import "time"

// PhotoSource identifies which media provider produced a photo.
type PhotoSource string

const (
	PhotoSourceCommons PhotoSource = "commons"
	PhotoSourceGoogle  PhotoSource = "google"
	PhotoSourceNone    PhotoSource = "none"
)

// Photo is one stored photo reference for a place.
type Photo struct {
	ID          string      `json:"id"`
	PlaceID     string      `json:"place_id"`
	Reference   string      `json:"reference"`
	Attribution string      `json:"attribution,omitempty"`
	Source      PhotoSource `json:"source"`
	IsPrimary   bool        `json:"is_primary"`
	CreatedAt   time.Time   `json:"created_at"`
}

// FetchResult is the outcome of one media fetch attempt for a place.
type FetchResult struct {
	Success     bool        `json:"success"`
	PhotosFound int         `json:"photos_found"`
	Source      PhotoSource `json:"source"`
	Error       string      `json:"error,omitempty"`
}
