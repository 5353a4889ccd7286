package nutrition

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-meal-optimizer/internal/models"
)

func sampleTable() *Table {
	return NewTable([]models.FoodItem{
		{Name: "쌀밥", Per100g: models.Nutrients{Energy: 143, Carbohydrate: 31.7, Protein: 2.5, Fat: 0.3}},
		{Name: "닭가슴살", Per100g: models.Nutrients{Energy: 109, Carbohydrate: 0, Protein: 22.9, Fat: 1.2}, Sodium: 59},
		{Name: "아몬드", Per100g: models.Nutrients{Energy: 597, Carbohydrate: 19.6, Protein: 21.1, Fat: 52.3}, Sugar: 4.4},
		{Name: "쌀밥", Per100g: models.Nutrients{Energy: 999}},
		{Name: "물", Per100g: models.Nutrients{}},
	})
}

func TestResolveProfiles(t *testing.T) {
	profiles, err := ResolveProfiles([]string{"닭가슴살", "쌀밥"}, sampleTable())
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	assert.Equal(t, "닭가슴살", profiles[0].Name)
	assert.InDelta(t, 1.09, profiles[0].PerGram.Energy, 1e-12)
	assert.InDelta(t, 0.229, profiles[0].PerGram.Protein, 1e-12)

	// First row wins for a duplicated name.
	assert.Equal(t, "쌀밥", profiles[1].Name)
	assert.InDelta(t, 1.43, profiles[1].PerGram.Energy, 1e-12)
}

func TestResolveProfilesMatchesIntake(t *testing.T) {
	table := sampleTable()
	profiles, err := ResolveProfiles([]string{"아몬드"}, table)
	require.NoError(t, err)

	report, err := CalculateIntake(table, []models.IntakeEntry{{Name: "아몬드", Grams: 30}}, DefaultDailyReference)
	require.NoError(t, err)

	totals := Totals(profiles, []float64{30})
	for _, axis := range models.Axes {
		assert.InDelta(t, report.Totals.Get(axis), totals.Get(axis), 1e-9)
	}
}

func TestResolveProfilesErrors(t *testing.T) {
	table := sampleTable()
	tests := []struct {
		name      string
		selection []string
		contains  string
	}{
		{"empty", nil, "no foods selected"},
		{"unknown", []string{"쌀밥", "김치"}, `"김치" not found`},
		{"duplicate", []string{"물", "물"}, "more than once"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveProfiles(tt.selection, table)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInput))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestResolveProfilesRejectsNegativeValues(t *testing.T) {
	table := NewTable([]models.FoodItem{{Name: "broken", Per100g: models.Nutrients{Fat: -1}}})
	_, err := ResolveProfiles([]string{"broken"}, table)

	var inputErr *InputError
	require.True(t, errors.As(err, &inputErr))
	assert.Equal(t, "profile", inputErr.Field)
}

func TestTableDuplicates(t *testing.T) {
	table := sampleTable()
	assert.Equal(t, 5, table.Len())
	assert.Equal(t, []string{"쌀밥"}, table.Duplicates())

	_, ok := table.Lookup("없는음식")
	assert.False(t, ok)
}
