package nutrition

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-meal-optimizer/internal/models"
)

func TestRank(t *testing.T) {
	ranking, err := Rank(sampleTable().Items(), "prot", 3)
	require.NoError(t, err)

	assert.Equal(t, "protein", ranking.Column)
	require.Len(t, ranking.Top, 3)
	assert.Equal(t, "닭가슴살", ranking.Top[0].Name)
	assert.Equal(t, 1, ranking.Top[0].Rank)
	assert.Equal(t, "아몬드", ranking.Top[1].Name)
	assert.Equal(t, 109.0, ranking.Top[0].Energy)

	require.Len(t, ranking.Bottom, 3)
	// The duplicate 쌀밥 row and water both carry zero protein; ties keep table order.
	assert.Equal(t, "쌀밥", ranking.Bottom[0].Name)
	assert.Equal(t, 0.0, ranking.Bottom[0].Value)
	assert.Equal(t, "물", ranking.Bottom[1].Name)
}

func TestRankExtraColumns(t *testing.T) {
	ranking, err := Rank(sampleTable().Items(), "Sodium", 3)
	require.NoError(t, err)
	assert.Equal(t, "sodium", ranking.Column)
	assert.Equal(t, "닭가슴살", ranking.Top[0].Name)
	assert.Equal(t, 59.0, ranking.Top[0].Value)
}

func TestRankClampsCount(t *testing.T) {
	foods := make([]models.FoodItem, 150)
	for i := range foods {
		foods[i] = models.FoodItem{Name: fmt.Sprintf("food-%03d", i), Per100g: models.Nutrients{Fat: float64(i)}}
	}

	ranking, err := Rank(foods, "fat", 500)
	require.NoError(t, err)
	assert.Equal(t, MaxRankCount, ranking.Count)
	assert.Len(t, ranking.Top, MaxRankCount)
	assert.Equal(t, "food-149", ranking.Top[0].Name)
	assert.Equal(t, "food-000", ranking.Bottom[0].Name)

	ranking, err = Rank(foods, "fat", 0)
	require.NoError(t, err)
	assert.Equal(t, MinRankCount, ranking.Count)
	assert.Len(t, ranking.Bottom, MinRankCount)
}

func TestRankUnknownColumn(t *testing.T) {
	_, err := Rank(sampleTable().Items(), "fiber", 10)
	assert.True(t, errors.Is(err, ErrInput))
}
