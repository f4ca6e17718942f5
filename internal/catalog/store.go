// Package catalog provides the persistence collaborator for the places
// catalog: canonical places, their photos, and the generated-places
// staging table awaiting verification.
package catalog

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/alexphiev/empreinte-enrich/internal/model"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = eris.New("not found")

// PlaceFilter specifies criteria for listing places.
type PlaceFilter struct {
	// WithoutPhotos restricts to places with no fetch attempt recorded.
	WithoutPhotos bool `json:"without_photos,omitempty"`
	Limit         int  `json:"limit,omitempty"`
}

// Store defines the catalog persistence interface. Every core component
// operates on places through this interface and never holds a place
// beyond one operation.
type Store interface {
	// Places
	GetPlace(ctx context.Context, id string) (*model.Place, error)
	GetPlaceByOSMID(ctx context.Context, osmID string) (*model.Place, error)
	InsertPlace(ctx context.Context, p *model.Place) error
	ListPlaces(ctx context.Context, filter PlaceFilter) ([]model.Place, error)
	UpdateScores(ctx context.Context, id string, sourceScore, enhancementScore, score int) error
	UpdateDescription(ctx context.Context, id, description string) error
	// SetGooglePlaceID fills the provider id only when none is stored;
	// a previously stored id is never overwritten.
	SetGooglePlaceID(ctx context.Context, id, googlePlaceID string) error
	MarkPhotosFetched(ctx context.Context, id string, at time.Time) error

	// Photos
	HasPhotos(ctx context.Context, placeID string) (bool, error)
	SavePhotos(ctx context.Context, photos []model.Photo) error

	// Staging
	InsertGenerated(ctx context.Context, gp *model.GeneratedPlace) error
	ListPendingGenerated(ctx context.Context, limit int) ([]model.GeneratedPlace, error)
	ResolveGenerated(ctx context.Context, id string, status model.MatchOutcome, placeID *string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
