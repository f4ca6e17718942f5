// Package similarity provides the textual-similarity scoring shared by
// the catalog cleanup pass and the verification match resolver.
package similarity

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases, strips diacritics, and collapses whitespace.
func Normalize(s string) string {
	folded, _, err := transform.String(foldDiacritics, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// Score returns a normalized similarity in [0, 1] between two names.
// Identical names (after normalization) score 1.0, substring containment
// either direction scores 0.8, otherwise the score is the shared-token
// ratio scaled below the containment band.
func Score(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1.0
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return 0.8
	}
	return tokenRatio(na, nb) * 0.6
}

// MatchConfidence implements the verification acceptance score on a
// 0–100 scale: exact match 100; containment either direction 50, plus 20
// when the candidate name is no more than 10 characters longer than the
// input; otherwise shared-token ratio scaled to 30.
func MatchConfidence(input, candidate string) int {
	ni, nc := Normalize(input), Normalize(candidate)
	if ni == "" || nc == "" {
		return 0
	}
	if ni == nc {
		return 100
	}
	if strings.Contains(ni, nc) || strings.Contains(nc, ni) {
		score := 50
		if len(nc) <= len(ni)+10 {
			score += 20
		}
		return score
	}
	return int(tokenRatio(ni, nc) * 30)
}

// tokenRatio is the count of shared tokens longer than 2 characters
// divided by the larger token count of the two names.
func tokenRatio(na, nb string) float64 {
	ta, tb := strings.Fields(na), strings.Fields(nb)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	set := make(map[string]bool, len(ta))
	for _, tok := range ta {
		if len(tok) > 2 {
			set[tok] = true
		}
	}

	shared := 0
	for _, tok := range tb {
		if set[tok] {
			shared++
			set[tok] = false
		}
	}

	maxLen := len(ta)
	if len(tb) > maxLen {
		maxLen = len(tb)
	}
	return float64(shared) / float64(maxLen)
}
