// Package media fetches photos for places, trying the free provider
// first and falling back to the paid one.
package media

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alexphiev/empreinte-enrich/internal/catalog"
	"github.com/alexphiev/empreinte-enrich/internal/model"
	"github.com/alexphiev/empreinte-enrich/internal/resilience"
	"github.com/alexphiev/empreinte-enrich/internal/scorer"
	"github.com/alexphiev/empreinte-enrich/pkg/commons"
	"github.com/alexphiev/empreinte-enrich/pkg/gplaces"
)

// Orchestrator runs the two-tier photo fetch for one place at a time.
type Orchestrator struct {
	store   catalog.Store
	commons commons.Client
	places  gplaces.Client
	engine  *scorer.Engine
	retry   resilience.RetryConfig
	now     func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithGooglePlaces enables the paid fallback provider. Without it the
// orchestrator stops after the free provider.
func WithGooglePlaces(c gplaces.Client) Option {
	return func(o *Orchestrator) { o.places = c }
}

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(o *Orchestrator) { o.retry = cfg }
}

// WithClock overrides the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator.
func New(store catalog.Store, free commons.Client, engine *scorer.Engine, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:   store,
		commons: free,
		engine:  engine,
		retry:   resilience.DefaultRetryConfig(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// FetchPhotos runs the photo waterfall for one place. Every attempt on
// a named place is marked processed exactly once, success or not, so a
// batch never revisits it. The score bump for gaining photos is applied
// only on the transition from zero photos to some.
func (o *Orchestrator) FetchPhotos(ctx context.Context, place *model.Place) (result model.FetchResult) {
	if place.Name == "" {
		// Nothing to search by. Left unmarked so the place is retried
		// once it gains a name.
		return model.FetchResult{Source: model.PhotoSourceNone, Error: "place has no name"}
	}

	hadPhotosBefore, err := o.store.HasPhotos(ctx, place.ID)
	if err != nil {
		zap.L().Warn("photo presence check failed", zap.String("place_id", place.ID), zap.Error(err))
	}

	defer func() {
		if r := recover(); r != nil {
			result = model.FetchResult{Source: model.PhotoSourceNone, Error: fmt.Sprintf("panic: %v", r)}
		}
		o.markProcessed(ctx, place.ID)
		if result.Success && !hadPhotosBefore {
			o.bumpScore(ctx, place)
		}
	}()

	lon, lat, hasCoords := place.Centroid()
	var lonPtr, latPtr *float64
	if hasCoords {
		lonPtr, latPtr = &lon, &lat
	}

	photos, err := resilience.Do(ctx, o.retry, "commons search", func(ctx context.Context) ([]commons.Photo, error) {
		return o.commons.SearchPhotos(ctx, place.Name, lonPtr, latPtr)
	})
	if err != nil {
		zap.L().Warn("free photo search failed",
			zap.String("place_id", place.ID),
			zap.String("name", place.Name),
			zap.Error(err),
		)
	} else if len(photos) > 0 {
		return o.saveCommons(ctx, place, photos)
	}

	if o.places == nil {
		return model.FetchResult{Source: model.PhotoSourceNone, Error: "no photos found and paid provider disabled"}
	}
	if !hasCoords {
		// The paid lookup needs a location bias; without one the match
		// rate is too poor to spend quota on.
		return model.FetchResult{Source: model.PhotoSourceNone, Error: "no photos found and place has no coordinates"}
	}

	return o.fetchGoogle(ctx, place, lonPtr, latPtr)
}

func (o *Orchestrator) saveCommons(ctx context.Context, place *model.Place, photos []commons.Photo) model.FetchResult {
	records := make([]model.Photo, len(photos))
	for i, p := range photos {
		records[i] = model.Photo{
			ID:          uuid.NewString(),
			PlaceID:     place.ID,
			Reference:   p.URL,
			Attribution: p.Attribution,
			Source:      model.PhotoSourceCommons,
			IsPrimary:   i == 0,
			CreatedAt:   o.now(),
		}
	}
	if err := o.store.SavePhotos(ctx, records); err != nil {
		return model.FetchResult{Source: model.PhotoSourceCommons, Error: err.Error()}
	}
	return model.FetchResult{Success: true, PhotosFound: len(records), Source: model.PhotoSourceCommons}
}

func (o *Orchestrator) fetchGoogle(ctx context.Context, place *model.Place, lon, lat *float64) model.FetchResult {
	placeID := place.GooglePlaceID
	if placeID == "" {
		found, err := resilience.Do(ctx, o.retry, "places find", func(ctx context.Context) (string, error) {
			return o.places.FindPlaceID(ctx, place.Name, lon, lat)
		})
		if err != nil {
			return model.FetchResult{Source: model.PhotoSourceNone, Error: err.Error()}
		}
		if found == "" {
			return model.FetchResult{Source: model.PhotoSourceNone, Error: "no matching place in paid provider"}
		}
		placeID = found
		// Persisted even when the details below yield nothing, so the
		// resolution is never paid for twice.
		if err := o.store.SetGooglePlaceID(ctx, place.ID, placeID); err != nil {
			zap.L().Warn("persisting place id failed", zap.String("place_id", place.ID), zap.Error(err))
		}
	}

	details, err := resilience.Do(ctx, o.retry, "places details", func(ctx context.Context) (*gplaces.Details, error) {
		return o.places.FetchDetails(ctx, placeID)
	})
	if err != nil {
		return model.FetchResult{Source: model.PhotoSourceNone, Error: err.Error()}
	}
	if len(details.Photos) == 0 {
		return model.FetchResult{Source: model.PhotoSourceNone, Error: "paid provider has no photos"}
	}

	records := make([]model.Photo, len(details.Photos))
	for i, p := range details.Photos {
		attribution := ""
		if len(p.Attributions) > 0 {
			attribution = p.Attributions[0]
		}
		records[i] = model.Photo{
			ID:          uuid.NewString(),
			PlaceID:     place.ID,
			Reference:   p.Reference,
			Attribution: attribution,
			Source:      model.PhotoSourceGoogle,
			IsPrimary:   i == 0,
			CreatedAt:   o.now(),
		}
	}
	if err := o.store.SavePhotos(ctx, records); err != nil {
		return model.FetchResult{Source: model.PhotoSourceGoogle, Error: err.Error()}
	}
	return model.FetchResult{Success: true, PhotosFound: len(records), Source: model.PhotoSourceGoogle}
}

// markProcessed records the attempt timestamp. Failure to record is
// logged, not returned: the fetch outcome stands on its own.
func (o *Orchestrator) markProcessed(ctx context.Context, placeID string) {
	if err := o.store.MarkPhotosFetched(ctx, placeID, o.now()); err != nil {
		zap.L().Warn("marking photos fetched failed", zap.String("place_id", placeID), zap.Error(err))
	}
}

// bumpScore applies the one-time enhancement points for gaining photos.
func (o *Orchestrator) bumpScore(ctx context.Context, place *model.Place) {
	place.EnhancementScore += o.engine.PhotoBump()
	place.RecomputeScore()
	if err := o.store.UpdateScores(ctx, place.ID, place.SourceScore, place.EnhancementScore, place.Score); err != nil {
		zap.L().Warn("photo score bump failed", zap.String("place_id", place.ID), zap.Error(err))
	}
}
