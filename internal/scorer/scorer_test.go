package scorer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexphiev/empreinte-enrich/internal/model"
)

func floatPtr(v float64) *float64 { return &v }

func TestEnhancementScoreEncyclopedia(t *testing.T) {
	e := New(DefaultRules())

	cases := []struct {
		name   string
		signal model.EnrichmentSignal
		want   int
	}{
		{
			name:   "presence only",
			signal: model.EnrichmentSignal{Kind: model.SignalEncyclopediaPage},
			want:   10,
		},
		{
			name: "popular and widely translated",
			signal: model.EnrichmentSignal{
				Kind:          model.SignalEncyclopediaPage,
				AvgDailyViews: floatPtr(12000),
				LanguageCount: 12,
			},
			want: 10 + 15 + 10,
		},
		{
			name: "mid tiers",
			signal: model.EnrichmentSignal{
				Kind:          model.SignalEncyclopediaPage,
				AvgDailyViews: floatPtr(1000),
				LanguageCount: 5,
			},
			want: 10 + 10 + 6,
		},
		{
			name: "below every tier",
			signal: model.EnrichmentSignal{
				Kind:          model.SignalEncyclopediaPage,
				AvgDailyViews: floatPtr(99),
				LanguageCount: 1,
			},
			want: 10,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := e.EnhancementScore([]model.EnrichmentSignal{tc.signal}, false)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEnhancementScoreCombined(t *testing.T) {
	e := New(DefaultRules())
	signals := []model.EnrichmentSignal{
		{Kind: model.SignalEncyclopediaPage, AvgDailyViews: floatPtr(150), LanguageCount: 3},
		{Kind: model.SignalPhotoSet, PhotoCount: 4},
		{Kind: model.SignalRating, Rating: floatPtr(4.5), ReviewCount: 200},
	}
	// 10+5+3 encyclopedia, 10 photos, 5 rating presence, +8 rating delta.
	want := 18 + 10 + 5 + 8 + 5 // +5 website
	assert.Equal(t, want, e.EnhancementScore(signals, true))

	// Pure function: recomputing gives the same result.
	assert.Equal(t, want, e.EnhancementScore(signals, true))
}

func TestEnhancementScoreEmptySignals(t *testing.T) {
	e := New(DefaultRules())
	assert.Equal(t, 0, e.EnhancementScore(nil, false))
	assert.Equal(t, 5, e.EnhancementScore(nil, true))
}

func TestPhotoSetWithoutPhotos(t *testing.T) {
	e := New(DefaultRules())
	got := e.EnhancementScore([]model.EnrichmentSignal{
		{Kind: model.SignalPhotoSet, PhotoCount: 0},
	}, false)
	assert.Equal(t, 0, got)
}

func TestRatingDelta(t *testing.T) {
	e := New(DefaultRules())

	cases := []struct {
		name    string
		stars   float64
		reviews int
		want    int
	}{
		{"excellent with full confidence", 5.0, 200, 10},
		{"excellent capped reviews", 5.0, 5000, 10},
		{"good half confidence", 4.0, 100, 3}, // (4-3)*5*0.5 = 2.5 rounds to 3
		{"baseline is zero", 3.0, 200, 0},
		{"poor rating goes negative", 2.0, 200, -5},
		{"poor rating low confidence", 2.0, 20, -1},
		{"no reviews no delta", 4.8, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, e.RatingDelta(tc.stars, tc.reviews))
		})
	}
}

func TestRatingSignalMissingValue(t *testing.T) {
	e := New(DefaultRules())
	got := e.EnhancementScore([]model.EnrichmentSignal{
		{Kind: model.SignalRating, ReviewCount: 50},
	}, false)
	assert.Equal(t, 0, got)
}

func TestVerificationSignal(t *testing.T) {
	e := New(DefaultRules())
	got := e.EnhancementScore([]model.EnrichmentSignal{
		{Kind: model.SignalVerification},
	}, false)
	assert.Equal(t, 20, got)
	assert.Equal(t, 20, e.VerificationBump())
	assert.Equal(t, 10, e.PhotoBump())
}

func TestTierPointsBoundaries(t *testing.T) {
	tiers := DefaultRules().ViewTiers
	assert.Equal(t, 0, tierPoints(tiers, 99))
	assert.Equal(t, 5, tierPoints(tiers, 100))
	assert.Equal(t, 10, tierPoints(tiers, 9999))
	assert.Equal(t, 15, tierPoints(tiers, 10000))
}

func TestLoadRulesPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := "verified_place: 40\nrating:\n  baseline: 3.5\n  points_per_star: 5\n  max_reviews: 200\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, 40, rules.VerifiedPlace)
	assert.Equal(t, 3.5, rules.Rating.Baseline)
	// Untouched fields keep their defaults.
	assert.Equal(t, 10, rules.EncyclopediaPresence)
	assert.Len(t, rules.ViewTiers, 3)
}

func TestLoadRulesMissingFile(t *testing.T) {
	rules, err := LoadRules(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
	// Defaults still come back so callers can degrade.
	assert.Equal(t, DefaultRules(), rules)
}
