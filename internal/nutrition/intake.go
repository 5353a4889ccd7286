package nutrition

import (
	"math"

	"mcp-meal-optimizer/internal/models"
)

// DefaultDailyReference is the adult daily reference intake for the
// macronutrients compared by CalculateIntake (grams). Energy has no reference.
var DefaultDailyReference = models.Nutrients{
	Carbohydrate: 324,
	Protein:      55,
	Fat:          54,
}

// CalculateIntake sums the absolute nutrients of entries and compares the
// macronutrients with reference.
func CalculateIntake(table FoodTable, entries []models.IntakeEntry, reference models.Nutrients) (*models.IntakeReport, error) {
	if len(entries) == 0 {
		return nil, inputErrorf("entries", "no foods given")
	}

	var totals models.Nutrients
	for _, e := range entries {
		if math.IsNaN(e.Grams) || math.IsInf(e.Grams, 0) || e.Grams < 0 {
			return nil, inputErrorf("entries", "amount for %q is %v", e.Name, e.Grams)
		}
		item, ok := table.Lookup(e.Name)
		if !ok {
			return nil, inputErrorf("entries", "food %q not found in table", e.Name)
		}
		totals = totals.Add(item.Per100g.Scale(e.Grams / 100.0))
	}

	report := &models.IntakeReport{
		Entries: entries,
		Totals:  totals,
	}
	for _, axis := range []models.Axis{models.Carbohydrate, models.Protein, models.Fat} {
		amount, ref := totals.Get(axis), reference.Get(axis)
		report.Comparisons = append(report.Comparisons, models.AxisComparison{
			Axis:       axis.String(),
			Amount:     amount,
			Reference:  ref,
			Difference: amount - ref,
		})
	}
	return report, nil
}
