package model

import (
	"time"

	"github.com/twpayne/go-geom"
)

// Place is a canonical catalog entity being enriched.
type Place struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	OSMID           string     `json:"osm_id,omitempty"`
	GooglePlaceID   string     `json:"google_place_id,omitempty"`
	Website         string     `json:"website,omitempty"`
	Description     string     `json:"description,omitempty"`
	Geometry        geom.T     `json:"-"`
	SourceScore     int        `json:"source_score"`
	EnhancementScore int       `json:"enhancement_score"`
	Score           int        `json:"score"`
	PhotosFetchedAt *time.Time `json:"photos_fetched_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// RecomputeScore re-derives the score sum from its two components.
// Callers must never increment Score directly; they update exactly one
// component and call this.
func (p *Place) RecomputeScore() {
	p.Score = p.SourceScore + p.EnhancementScore
}

// Centroid returns the lon/lat centroid of the place geometry. ok is
// false when no geometry is stored.
func (p *Place) Centroid() (lon, lat float64, ok bool) {
	if p.Geometry == nil {
		return 0, 0, false
	}
	switch g := p.Geometry.(type) {
	case *geom.Point:
		c := g.Coords()
		return c.X(), c.Y(), true
	default:
		b := p.Geometry.Bounds()
		if b == nil {
			return 0, 0, false
		}
		return (b.Min(0) + b.Max(0)) / 2, (b.Min(1) + b.Max(1)) / 2, true
	}
}

// MatchOutcome is the terminal result of one verification attempt.
type MatchOutcome string

const (
	MatchAdded         MatchOutcome = "ADDED"
	MatchNone          MatchOutcome = "NO_MATCH"
	MatchNoNature      MatchOutcome = "NO_NATURE_MATCH"
	MatchMultiple      MatchOutcome = "MULTIPLE_MATCHES"
)

// GeneratedPlace is a staging row awaiting verification against the
// canonical catalog. Status is nil until a verification attempt has run;
// once set the row is never re-attempted automatically.
type GeneratedPlace struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Status      *string    `json:"status,omitempty"`
	PlaceID     *string    `json:"place_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
