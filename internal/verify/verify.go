// Package verify resolves staged generated places against the
// authoritative feature source and promotes accepted matches into the
// catalog.
package verify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/alexphiev/empreinte-enrich/internal/catalog"
	"github.com/alexphiev/empreinte-enrich/internal/model"
	"github.com/alexphiev/empreinte-enrich/internal/resilience"
	"github.com/alexphiev/empreinte-enrich/internal/scorer"
	"github.com/alexphiev/empreinte-enrich/internal/similarity"
	"github.com/alexphiev/empreinte-enrich/pkg/overpass"
)

// minConfidence is the acceptance threshold for a single candidate.
const minConfidence = 50

// Resolution is the outcome of verifying one generated place.
type Resolution struct {
	Outcome    model.MatchOutcome `json:"outcome"`
	PlaceID    string             `json:"place_id,omitempty"`
	Candidate  string             `json:"candidate,omitempty"`
	Confidence int                `json:"confidence,omitempty"`
	Reason     string             `json:"reason,omitempty"`
}

// Resolver verifies generated places against the feature source.
type Resolver struct {
	store    catalog.Store
	features overpass.Client
	engine   *scorer.Engine
	retry    resilience.RetryConfig
	now      func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(r *Resolver) { r.retry = cfg }
}

// WithClock overrides the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// New creates a Resolver.
func New(store catalog.Store, features overpass.Client, engine *scorer.Engine, opts ...Option) *Resolver {
	r := &Resolver{
		store:    store,
		features: features,
		engine:   engine,
		retry:    resilience.DefaultRetryConfig(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve verifies one generated place and records a terminal outcome
// on its staging row. The outcome is recorded exactly once; a row with
// any outcome never re-enters the pending queue.
func (r *Resolver) Resolve(ctx context.Context, gp *model.GeneratedPlace) (*Resolution, error) {
	if gp.Name == "" {
		return nil, eris.New("verify: generated place has no name")
	}

	result, err := resilience.Do(ctx, r.retry, "feature search", func(ctx context.Context) (*overpass.SearchResult, error) {
		return r.features.SearchByName(ctx, gp.Name)
	})
	if err != nil {
		// Transport failure leaves the row pending for a later run.
		return nil, err
	}

	resolution, element := r.classify(gp, result)

	var placeID *string
	if resolution.Outcome == model.MatchAdded {
		id, err := r.promote(ctx, gp, element)
		if err != nil {
			return nil, err
		}
		resolution.PlaceID = id
		placeID = &id
	}

	if err := r.store.ResolveGenerated(ctx, gp.ID, resolution.Outcome, placeID); err != nil {
		return nil, eris.Wrapf(err, "verify: record outcome for %s", gp.ID)
	}

	zap.L().Info("generated place resolved",
		zap.String("id", gp.ID),
		zap.String("name", gp.Name),
		zap.String("outcome", string(resolution.Outcome)),
		zap.Int("confidence", resolution.Confidence),
	)
	return resolution, nil
}

// classify maps a feature search result to a match outcome. For an
// accepted match it also returns the winning element.
func (r *Resolver) classify(gp *model.GeneratedPlace, result *overpass.SearchResult) (*Resolution, *overpass.Element) {
	switch {
	case len(result.Elements) == 0 && result.TotalFound > 0:
		return &Resolution{
			Outcome: model.MatchNoNature,
			Reason:  "named features exist but none are natural",
		}, nil
	case len(result.Elements) == 0:
		return &Resolution{Outcome: model.MatchNone, Reason: "no named feature found"}, nil
	case len(result.Elements) > 1:
		return &Resolution{
			Outcome: model.MatchMultiple,
			Reason:  "multiple natural features share the name",
		}, nil
	}

	candidate := &result.Elements[0]
	confidence := similarity.MatchConfidence(gp.Name, candidate.Name())
	if confidence < minConfidence {
		return &Resolution{
			Outcome:    model.MatchMultiple,
			Candidate:  candidate.Name(),
			Confidence: confidence,
			Reason:     "single candidate below confidence threshold",
		}, nil
	}
	return &Resolution{
		Outcome:    model.MatchAdded,
		Candidate:  candidate.Name(),
		Confidence: confidence,
	}, candidate
}

// promote upserts the matched feature into the catalog and applies the
// verification provenance points to its source score.
func (r *Resolver) promote(ctx context.Context, gp *model.GeneratedPlace, element *overpass.Element) (string, error) {
	existing, err := r.store.GetPlaceByOSMID(ctx, element.ExternalID())
	switch {
	case err == nil:
		existing.SourceScore += r.engine.VerificationBump()
		existing.RecomputeScore()
		if err := r.store.UpdateScores(ctx, existing.ID, existing.SourceScore, existing.EnhancementScore, existing.Score); err != nil {
			return "", eris.Wrapf(err, "verify: bump %s", existing.ID)
		}
		return existing.ID, nil
	case eris.Is(err, catalog.ErrNotFound):
		lon, lat := element.Coords()
		place := &model.Place{
			ID:          uuid.NewString(),
			Name:        element.Name(),
			OSMID:       element.ExternalID(),
			Description: gp.Description,
			Geometry:    geom.NewPointFlat(geom.XY, []float64{lon, lat}),
			SourceScore: r.engine.VerificationBump(),
			CreatedAt:   r.now(),
		}
		place.RecomputeScore()
		if err := r.store.InsertPlace(ctx, place); err != nil {
			return "", eris.Wrapf(err, "verify: insert %s", place.Name)
		}
		return place.ID, nil
	default:
		return "", eris.Wrapf(err, "verify: lookup %s", element.ExternalID())
	}
}

// ResolvePending drains the staging queue oldest first, up to limit.
// Individual failures skip the row and keep going.
func (r *Resolver) ResolvePending(ctx context.Context, limit int) (map[model.MatchOutcome]int, error) {
	pending, err := r.store.ListPendingGenerated(ctx, limit)
	if err != nil {
		return nil, err
	}

	counts := make(map[model.MatchOutcome]int)
	for i := range pending {
		gp := pending[i]
		res, err := r.Resolve(ctx, &gp)
		if err != nil {
			zap.L().Warn("verification failed",
				zap.String("id", gp.ID),
				zap.String("name", gp.Name),
				zap.Error(err),
			)
			continue
		}
		counts[res.Outcome]++
	}
	return counts, nil
}
