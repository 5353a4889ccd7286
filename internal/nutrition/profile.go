package nutrition

import (
	"math"

	"mcp-meal-optimizer/internal/models"
)

// ResolveProfiles converts a selection into per-gram coefficient vectors, in
// selection order. The same per-100g rows feed intake calculations, so
// optimizer totals and absolute intake agree.
func ResolveProfiles(selection []string, table FoodTable) ([]models.PerGramProfile, error) {
	if len(selection) == 0 {
		return nil, inputErrorf("selection", "no foods selected")
	}

	seen := make(map[string]struct{}, len(selection))
	profiles := make([]models.PerGramProfile, 0, len(selection))
	for _, name := range selection {
		if _, dup := seen[name]; dup {
			return nil, inputErrorf("selection", "food %q selected more than once", name)
		}
		seen[name] = struct{}{}

		item, ok := table.Lookup(name)
		if !ok {
			return nil, inputErrorf("selection", "food %q not found in table", name)
		}
		for _, axis := range models.Axes {
			if v := item.Per100g.Get(axis); math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return nil, inputErrorf("profile", "food %q has %s value %v", name, axis, v)
			}
		}

		profiles = append(profiles, models.PerGramProfile{
			Name:    name,
			PerGram: item.Per100g.Scale(1.0 / 100.0),
		})
	}
	return profiles, nil
}
