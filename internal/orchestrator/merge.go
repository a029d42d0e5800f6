package orchestrator

import (
	"fmt"
	"strings"

	"github.com/taste-trails/localguide/internal/cache"
	"github.com/taste-trails/localguide/internal/model"
)

// identityKey is the dedupe identity for a candidate: the normalized
// name. The same place surfacing from both the search index and the
// map API collapses into one candidate with merged provenance.
func identityKey(c model.Candidate) string {
	return cache.Normalize(c.Name)
}

// mergeInto folds a duplicate candidate into the one already kept:
// provenance accumulates, missing fields fill in, and the strongest
// native relevance signal wins.
func mergeInto(dst *model.Candidate, src model.Candidate) {
	for _, p := range src.Provenance {
		dst.AddProvenance(p)
	}
	if dst.Location == nil {
		dst.Location = src.Location
	}
	if dst.Neighborhood == "" {
		dst.Neighborhood = src.Neighborhood
	}
	if dst.Description == "" {
		dst.Description = src.Description
	}
	for _, tag := range src.CulturalTags {
		if !dst.HasTag(tag) {
			dst.CulturalTags = append(dst.CulturalTags, tag)
		}
	}
	if src.Scores.Relevance > dst.Scores.Relevance {
		dst.Scores.Relevance = src.Scores.Relevance
	}
}

// restrictionConflicts maps a declared food restriction onto the menu
// terms that disqualify a candidate.
var restrictionConflicts = map[string][]string{
	"vegetarian": {"bbq", "samgyeopsal", "pork", "chicken", "beef", "seafood"},
	"vegan":      {"bbq", "samgyeopsal", "pork", "chicken", "beef", "seafood", "cheese", "dairy"},
	"halal":      {"pork", "samgyeopsal", "soju", "makgeolli"},
	"no-alcohol": {"bar", "pub", "soju", "makgeolli", "brewery"},
}

// excluded reports whether a candidate conflicts with the profile:
// a food restriction match or a place already visited.
func excluded(c model.Candidate, prof *model.UserProfile) bool {
	if prof == nil {
		return false
	}
	if prof.HasVisited(c.Name) {
		return true
	}

	haystack := strings.ToLower(c.Name + " " + c.Description)
	for _, tag := range c.CulturalTags {
		haystack += " " + strings.ToLower(tag)
	}
	for _, restriction := range prof.Preferences.FoodRestrictions {
		r := strings.ToLower(strings.TrimSpace(restriction))
		terms, ok := restrictionConflicts[r]
		if !ok {
			// "no-pork" style restrictions conflict with their own term.
			terms = []string{strings.TrimPrefix(r, "no-")}
		}
		for _, term := range terms {
			if strings.Contains(haystack, term) {
				return true
			}
		}
	}
	return false
}

// structuredSummary is the deterministic non-prose rendering used when
// language generation is unavailable.
func structuredSummary(query model.Query, ranked []model.Candidate) string {
	if len(ranked) == 0 {
		return fmt.Sprintf("No recommendations found for %q.", query.Text)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Top picks for %q:\n", query.Text)
	for i, c := range ranked {
		fmt.Fprintf(&b, "%d. %s (%s", i+1, c.Name, c.Category)
		if c.Neighborhood != "" {
			fmt.Fprintf(&b, ", %s", c.Neighborhood)
		}
		b.WriteString(")")
		if c.Description != "" {
			fmt.Fprintf(&b, " - %s", c.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}
