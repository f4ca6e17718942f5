package summarize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPrompt(t *testing.T) {
	got := buildPrompt(Request{
		PlaceName: "Gorges du Verdon",
		Language:  "fr",
		Extract:   "Les gorges du Verdon constituent un canyon creusé par le Verdon.",
		Infobox: map[string]string{
			"longueur":   "25 km",
			"profondeur": "700 m",
		},
	})

	assert.Contains(t, got, "Place: Gorges du Verdon")
	assert.Contains(t, got, "Language: fr")
	assert.Contains(t, got, "- longueur: 25 km")
	assert.Contains(t, got, "- profondeur: 700 m")
	assert.Contains(t, got, "canyon creusé")
	// Infobox keys emitted in sorted order for prompt stability.
	assert.Less(t, strings.Index(got, "longueur"), strings.Index(got, "profondeur"))
}

func TestBuildPromptEmptyMaterial(t *testing.T) {
	assert.Equal(t, "", buildPrompt(Request{PlaceName: "Lac d'Annecy"}))
	assert.Equal(t, "", buildPrompt(Request{PlaceName: "Lac d'Annecy", Extract: "   "}))
}

func TestBuildPromptTruncatesExtract(t *testing.T) {
	long := strings.Repeat("a", maxExtractChars+500)
	got := buildPrompt(Request{PlaceName: "X", Extract: long})
	assert.LessOrEqual(t, len(got), maxExtractChars+100)
}

func TestBuildPromptInfoboxOnly(t *testing.T) {
	got := buildPrompt(Request{
		PlaceName: "Mont Blanc",
		Infobox:   map[string]string{"altitude": "4806 m"},
	})
	assert.Contains(t, got, "Key facts:")
	assert.Contains(t, got, "- altitude: 4806 m")
	assert.NotContains(t, got, "Article extract:")
}
