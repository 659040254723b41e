package importer

import (
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/pmezard/go-difflib/difflib"
)

// FuzzyThreshold is the minimum similarity score for a name match.
const FuzzyThreshold = 70

// Ratio scores the similarity of two strings on a 0..100 scale using
// sequence matching over characters. Case-insensitive.
func Ratio(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 100
	}
	if a == "" || b == "" {
		return 0
	}
	m := difflib.NewMatcher(splitChars(a), splitChars(b))
	// One-decimal rounding keeps threshold comparisons exact.
	return math.Round(m.Ratio()*1000) / 10
}

func splitChars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// matchCache is a fuzzy-match dictionary keyed on lowercased names.
type matchCache struct {
	names []string
	ids   map[string]uuid.UUID
}

func newMatchCache() *matchCache {
	return &matchCache{ids: make(map[string]uuid.UUID)}
}

func (c *matchCache) add(name string, id uuid.UUID) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return
	}
	if _, dup := c.ids[key]; !dup {
		c.names = append(c.names, key)
	}
	c.ids[key] = id
}

// match returns the best candidate at or above the threshold. Exact
// lowercased matches score 100 without scanning.
func (c *matchCache) match(name string) (*uuid.UUID, float64) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, 0
	}
	if id, ok := c.ids[key]; ok {
		return &id, 100
	}

	bestScore := 0.0
	bestName := ""
	for _, candidate := range c.names {
		if score := Ratio(key, candidate); score > bestScore {
			bestScore = score
			bestName = candidate
		}
	}
	if bestScore < FuzzyThreshold {
		return nil, bestScore
	}
	id := c.ids[bestName]
	return &id, bestScore
}
