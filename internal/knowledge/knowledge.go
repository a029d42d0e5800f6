// Package knowledge is the embedded fallback dataset: Korean cultural
// notes, neighborhood profiles, and a curated set of Seoul places served
// when live providers are unavailable.
package knowledge

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/taste-trails/localguide/internal/cache"
	"github.com/taste-trails/localguide/internal/model"
)

//go:embed data.yaml
var rawData []byte

// Neighborhood profiles one Seoul district.
type Neighborhood struct {
	Character            string   `yaml:"character"`
	BestFor              []string `yaml:"best_for"`
	CulturalSignificance string   `yaml:"cultural_significance"`
	AuthenticExperiences []string `yaml:"authentic_experiences"`
	TouristTraps         []string `yaml:"tourist_traps"`
}

// Place is one curated fallback entry.
type Place struct {
	Name         string   `yaml:"name"`
	Category     string   `yaml:"category"`
	Neighborhood string   `yaml:"neighborhood"`
	Lat          float64  `yaml:"lat"`
	Lng          float64  `yaml:"lng"`
	Description  string   `yaml:"description"`
	Tags         []string `yaml:"tags"`
}

// Experience is a non-geographic cultural activity.
type Experience struct {
	Name        string   `yaml:"name"`
	Category    string   `yaml:"category"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
}

// Base is the parsed dataset. It is immutable after Load.
type Base struct {
	CulturalNorms map[string]string       `yaml:"cultural_norms"`
	FoodCulture   map[string]string       `yaml:"food_culture"`
	LocalSlang    map[string]string       `yaml:"local_slang"`
	Neighborhoods map[string]Neighborhood `yaml:"neighborhoods"`
	Places        []Place                 `yaml:"places"`
	Experiences   []Experience            `yaml:"experiences"`
}

// Load parses the embedded dataset.
func Load() (*Base, error) {
	var b Base
	if err := yaml.Unmarshal(rawData, &b); err != nil {
		return nil, eris.Wrap(err, "parsing embedded knowledge data")
	}
	return &b, nil
}

// MustLoad panics on a malformed embedded dataset. The dataset ships
// inside the binary, so a parse failure is a build defect.
func MustLoad() *Base {
	b, err := Load()
	if err != nil {
		panic(err)
	}
	return b
}

// Lookup returns the entry for topic within category ("cultural_norms",
// "food_culture" or "local_slang").
func (b *Base) Lookup(category, topic string) (string, bool) {
	var m map[string]string
	switch category {
	case "cultural_norms":
		m = b.CulturalNorms
	case "food_culture":
		m = b.FoodCulture
	case "local_slang":
		m = b.LocalSlang
	default:
		return "", false
	}
	v, ok := m[strings.ToLower(strings.TrimSpace(topic))]
	return v, ok
}

// NeighborhoodFor detects which Seoul district a query mentions, if any.
func (b *Base) NeighborhoodFor(q model.Query) (string, *Neighborhood) {
	text := strings.ToLower(q.Text)
	names := make([]string, 0, len(b.Neighborhoods))
	for name := range b.Neighborhoods {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.Contains(text, name) {
			n := b.Neighborhoods[name]
			return name, &n
		}
	}
	return "", nil
}

// Themes extracts the cultural themes a query touches, keyed off the
// dataset's food and slang vocabulary plus a few fixed markers.
func (b *Base) Themes(q model.Query) []string {
	text := strings.ToLower(q.Text)
	var themes []string
	add := func(t string) {
		for _, have := range themes {
			if have == t {
				return
			}
		}
		themes = append(themes, t)
	}

	for topic := range b.FoodCulture {
		if strings.Contains(text, strings.ReplaceAll(topic, "_", " ")) {
			add("food")
		}
	}
	for _, marker := range []string{"food", "eat", "restaurant", "street food"} {
		if strings.Contains(text, marker) {
			add("food")
		}
	}
	for _, marker := range []string{"traditional", "temple", "palace", "heritage", "hanok"} {
		if strings.Contains(text, marker) {
			add("traditional")
		}
	}
	for _, marker := range []string{"nightlife", "bar", "club", "night"} {
		if strings.Contains(text, marker) {
			add("nightlife")
		}
	}
	for _, marker := range []string{"shopping", "market", "shop"} {
		if strings.Contains(text, marker) {
			add("shopping")
		}
	}
	sort.Strings(themes)
	return themes
}

// ContextSnippets assembles the cultural lines relevant to a query:
// universal norms, plus food culture when the query is food-related,
// plus the matched neighborhood's profile.
func (b *Base) ContextSnippets(q model.Query) []string {
	var out []string
	for _, key := range sortedKeys(b.CulturalNorms) {
		out = append(out, b.CulturalNorms[key])
	}
	themes := b.Themes(q)
	for _, t := range themes {
		if t == "food" {
			for _, key := range sortedKeys(b.FoodCulture) {
				out = append(out, b.FoodCulture[key])
			}
			break
		}
	}
	if name, n := b.NeighborhoodFor(q); n != nil {
		out = append(out, fmt.Sprintf("%s: %s", name, n.Character))
		out = append(out, n.CulturalSignificance)
	}
	return out
}

// Candidates returns fallback candidates for a query, filtered by place
// type and neighborhood when the query names them. Every candidate
// carries fallback provenance and a zero cultural tag bonus is left to
// the scorer.
func (b *Base) Candidates(q model.Query, limit int) []model.Candidate {
	neighborhood, _ := b.NeighborhoodFor(q)

	var out []model.Candidate
	for _, p := range b.Places {
		if q.PlaceType != model.PlaceTypeAny && model.PlaceType(p.Category) != q.PlaceType {
			continue
		}
		if neighborhood != "" && p.Neighborhood != neighborhood {
			continue
		}
		loc := model.Location{Lat: p.Lat, Lng: p.Lng}
		out = append(out, model.Candidate{
			ID:           cache.Key(model.ProvenanceFallback, p.Name),
			Name:         p.Name,
			Category:     p.Category,
			Neighborhood: p.Neighborhood,
			Location:     &loc,
			Description:  p.Description,
			CulturalTags: append([]string(nil), p.Tags...),
			Provenance:   []string{model.ProvenanceFallback},
		})
	}

	// A neighborhood filter that matches nothing falls back to the full
	// curated list rather than an empty answer.
	if len(out) == 0 && neighborhood != "" {
		widened := q
		widened.Text = ""
		return b.Candidates(widened, limit)
	}

	if q.PlaceType == model.PlaceTypeAny {
		for _, e := range b.Experiences {
			out = append(out, model.Candidate{
				ID:           cache.Key(model.ProvenanceFallback, e.Name),
				Name:         e.Name,
				Category:     e.Category,
				Description:  e.Description,
				CulturalTags: append([]string(nil), e.Tags...),
				Provenance:   []string{model.ProvenanceFallback},
			})
		}
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
