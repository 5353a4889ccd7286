package nutrition

import (
	"sort"
	"strings"

	"mcp-meal-optimizer/internal/models"
)

// Bounds of the ranking size.
const (
	MinRankCount = 3
	MaxRankCount = 100
)

// RankColumns lists the per-100g columns foods can be ranked on.
var RankColumns = []string{"energy", "carbohydrate", "protein", "fat", "sugar", "sodium"}

func columnValue(item models.FoodItem, column string) (float64, bool) {
	switch column {
	case "sugar":
		return item.Sugar, true
	case "sodium":
		return item.Sodium, true
	}
	axis, err := models.ParseAxis(column)
	if err != nil {
		return 0, false
	}
	return item.Per100g.Get(axis), true
}

// Rank returns the n foods with the highest and the n with the lowest
// per-100g value of column. n is clamped to [MinRankCount, MaxRankCount];
// ties keep table order.
func Rank(foods []models.FoodItem, column string, n int) (*models.Ranking, error) {
	column = strings.ToLower(strings.TrimSpace(column))
	if _, ok := columnValue(models.FoodItem{}, column); !ok {
		return nil, inputErrorf("column", "cannot rank on %q", column)
	}
	if axis, err := models.ParseAxis(column); err == nil {
		column = axis.String()
	}
	n = min(max(n, MinRankCount), MaxRankCount)

	desc := make([]models.FoodItem, len(foods))
	copy(desc, foods)
	sort.SliceStable(desc, func(i, j int) bool {
		vi, _ := columnValue(desc[i], column)
		vj, _ := columnValue(desc[j], column)
		return vi > vj
	})

	asc := make([]models.FoodItem, len(foods))
	copy(asc, foods)
	sort.SliceStable(asc, func(i, j int) bool {
		vi, _ := columnValue(asc[i], column)
		vj, _ := columnValue(asc[j], column)
		return vi < vj
	})

	return &models.Ranking{
		Column: column,
		Count:  n,
		Top:    ranked(desc, column, n),
		Bottom: ranked(asc, column, n),
	}, nil
}

func ranked(items []models.FoodItem, column string, n int) []models.RankedFood {
	if n > len(items) {
		n = len(items)
	}
	out := make([]models.RankedFood, 0, n)
	for i, item := range items[:n] {
		v, _ := columnValue(item, column)
		out = append(out, models.RankedFood{
			Rank:   i + 1,
			Name:   item.Name,
			Value:  v,
			Energy: item.Per100g.Energy,
		})
	}
	return out
}
