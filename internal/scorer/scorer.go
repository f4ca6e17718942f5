// Package scorer maps enrichment signals to additive score deltas via a
// fixed, externally configurable rule table. Scoring is pure and
// idempotent: recomputing with the same inputs yields the same score.
package scorer

import (
	"math"

	"github.com/alexphiev/empreinte-enrich/internal/model"
)

// Engine computes score components from enrichment signals.
type Engine struct {
	rules Rules
}

// New creates an Engine with the given rule table.
func New(rules Rules) *Engine {
	return &Engine{rules: rules}
}

// Rules returns the engine's rule table.
func (e *Engine) Rules() Rules { return e.rules }

// EnhancementScore derives the full enhancement component from the
// current set of signals plus the place's own website flag. It is
// re-computable at any time from current signals.
func (e *Engine) EnhancementScore(signals []model.EnrichmentSignal, hasWebsite bool) int {
	total := 0
	if hasWebsite {
		total += e.rules.HasWebsite
	}
	for _, sig := range signals {
		total += e.scoreSignal(sig)
	}
	return total
}

func (e *Engine) scoreSignal(sig model.EnrichmentSignal) int {
	switch sig.Kind {
	case model.SignalEncyclopediaPage:
		pts := e.rules.EncyclopediaPresence
		if sig.AvgDailyViews != nil {
			pts += tierPoints(e.rules.ViewTiers, *sig.AvgDailyViews)
		}
		pts += tierPoints(e.rules.LanguageTiers, float64(sig.LanguageCount))
		return pts
	case model.SignalPhotoSet:
		if sig.PhotoCount > 0 {
			return e.rules.HasPhotos
		}
		return 0
	case model.SignalRating:
		if sig.Rating == nil {
			return 0
		}
		return e.rules.HasRating + e.RatingDelta(*sig.Rating, sig.ReviewCount)
	case model.SignalVerification:
		return e.rules.VerifiedPlace
	default:
		return 0
	}
}

// VerificationBump returns the provenance points awarded when a
// generated place is verified against the feature source.
func (e *Engine) VerificationBump() int { return e.rules.VerifiedPlace }

// PhotoBump returns the one-time enhancement points for a first
// successful photo fetch.
func (e *Engine) PhotoBump() int { return e.rules.HasPhotos }

// RatingDelta maps a 1–5 star rating and review count to a signed point
// delta. The review count acts as a confidence factor: few reviews pull
// the delta toward zero, many reviews (capped) give the quality-implied
// delta full weight.
func (e *Engine) RatingDelta(stars float64, reviews int) int {
	curve := e.rules.Rating
	if curve.MaxReviews <= 0 || reviews <= 0 {
		return 0
	}
	confidence := float64(reviews) / float64(curve.MaxReviews)
	if confidence > 1 {
		confidence = 1
	}
	delta := (stars - curve.Baseline) * curve.PointsPerStar * confidence
	return int(math.Round(delta))
}

// tierPoints returns the points of the highest tier whose threshold the
// value meets, or 0 below every tier.
func tierPoints(tiers []Tier, value float64) int {
	best := 0
	bestMin := math.Inf(-1)
	for _, t := range tiers {
		if value >= t.Min && t.Min > bestMin {
			best = t.Points
			bestMin = t.Min
		}
	}
	return best
}
