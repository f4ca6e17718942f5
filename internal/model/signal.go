package model

// SignalKind identifies the type of fact an enrichment source produced.
type SignalKind string

const (
	SignalEncyclopediaPage SignalKind = "encyclopedia_page"
	SignalPhotoSet         SignalKind = "photo_set"
	SignalRating           SignalKind = "rating"
	SignalVerification     SignalKind = "verification_match"
)

// EnrichmentSignal is an append-only observation derived from one source
// for one place. Signals never mutate a Place directly; the scoring
// engine and orchestrators translate them into deltas and field updates.
type EnrichmentSignal struct {
	Kind   SignalKind `json:"kind"`
	Source string     `json:"source"`

	// Encyclopedia payload.
	Title         string            `json:"title,omitempty"`
	Language      string            `json:"language,omitempty"`
	Summary       string            `json:"summary,omitempty"`
	Categories    []string          `json:"categories,omitempty"`
	Infobox       map[string]string `json:"infobox,omitempty"`
	AvgDailyViews *float64          `json:"avg_daily_views,omitempty"`
	LanguageCount int               `json:"language_count,omitempty"`

	// Media payload.
	PhotoCount  int      `json:"photo_count,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
	ReviewCount int      `json:"review_count,omitempty"`
}

// CandidateMatch is a raw result from the feature query service. It is
// transient; only derived Place fields are persisted.
type CandidateMatch struct {
	ExternalID string  `json:"external_id"`
	Name       string  `json:"name"`
	Lon        float64 `json:"lon"`
	Lat        float64 `json:"lat"`
	Category   string  `json:"category,omitempty"`
}
