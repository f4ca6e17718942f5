package scorer

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Tier maps a minimum signal magnitude to the points it is worth.
// Tiers are evaluated highest threshold first; below the lowest
// threshold a signal contributes 0.
type Tier struct {
	Min    float64 `yaml:"min"`
	Points int     `yaml:"points"`
}

// RatingCurve maps a 1–5 star rating and a review-count confidence
// factor to a signed point delta. More reviews pull harder toward the
// quality-implied delta, capped at MaxReviews.
type RatingCurve struct {
	Baseline      float64 `yaml:"baseline"`
	PointsPerStar float64 `yaml:"points_per_star"`
	MaxReviews    int     `yaml:"max_reviews"`
}

// Rules is the externally configurable scoring rule table.
type Rules struct {
	EncyclopediaPresence int   `yaml:"encyclopedia_presence"`
	ViewTiers            []Tier `yaml:"view_tiers"`
	LanguageTiers        []Tier `yaml:"language_tiers"`
	HasWebsite           int   `yaml:"has_website"`
	HasPhotos            int   `yaml:"has_photos"`
	HasRating            int   `yaml:"has_rating"`
	VerifiedPlace        int   `yaml:"verified_place"`
	Rating               RatingCurve `yaml:"rating"`
}

// DefaultRules returns the built-in rule table.
func DefaultRules() Rules {
	return Rules{
		EncyclopediaPresence: 10,
		ViewTiers: []Tier{
			{Min: 10000, Points: 15},
			{Min: 1000, Points: 10},
			{Min: 100, Points: 5},
		},
		LanguageTiers: []Tier{
			{Min: 10, Points: 10},
			{Min: 5, Points: 6},
			{Min: 2, Points: 3},
		},
		HasWebsite:    5,
		HasPhotos:     10,
		HasRating:     5,
		VerifiedPlace: 20,
		Rating: RatingCurve{
			Baseline:      3.0,
			PointsPerStar: 5,
			MaxReviews:    200,
		},
	}
}

// LoadRules reads a rule table from a YAML file, starting from the
// defaults so a partial file only overrides what it names.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	data, err := os.ReadFile(path)
	if err != nil {
		return rules, eris.Wrapf(err, "scorer: read rules %s", path)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return rules, eris.Wrapf(err, "scorer: parse rules %s", path)
	}
	return rules, nil
}
