package model

import (
	"sort"
	"strings"
)

// NormalizeGenres trims genres and drops empty and duplicate entries
// (case-insensitively), keeping the first spelling seen.
func NormalizeGenres(genres []string) []string {
	out := make([]string, 0, len(genres))
	seen := make(map[string]struct{}, len(genres))
	for _, g := range genres {
		g = strings.TrimSpace(g)
		key := strings.ToLower(g)
		if g == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, g)
	}
	return out
}

// PrefersGenre reports whether genre is in prefs, ignoring case.
func PrefersGenre(prefs []string, genre string) bool {
	for _, p := range prefs {
		if strings.EqualFold(p, genre) {
			return true
		}
	}
	return false
}

// RankRecommended moves books whose genre is in prefs ahead of the others.
// Relative order within each group is preserved.
func RankRecommended(books []Book, prefs []string) {
	if len(prefs) == 0 {
		return
	}
	sort.SliceStable(books, func(i, j int) bool {
		return PrefersGenre(prefs, books[i].Genre) && !PrefersGenre(prefs, books[j].Genre)
	})
}
