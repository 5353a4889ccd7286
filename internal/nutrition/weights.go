package nutrition

import (
	"fmt"
	"strings"

	"mcp-meal-optimizer/internal/models"
)

const (
	// BaseWeight is the weight of every axis in balanced mode.
	BaseWeight = 1.0
	// PriorityWeight is the weight of the prioritized axis.
	PriorityWeight = 100.0
)

// BalancedWeights returns BaseWeight on every axis.
func BalancedWeights() models.Nutrients {
	return models.Nutrients{Energy: BaseWeight, Carbohydrate: BaseWeight, Protein: BaseWeight, Fat: BaseWeight}
}

// WeightsFor maps a priority to objective weights: PriorityWeight on the
// chosen axis and BaseWeight elsewhere.
func WeightsFor(p models.Priority) (models.Nutrients, error) {
	w := BalancedWeights()
	switch p {
	case models.PriorityBalanced, "":
	case models.PriorityEnergy:
		w.Energy = PriorityWeight
	case models.PriorityCarbohydrate:
		w.Carbohydrate = PriorityWeight
	case models.PriorityProtein:
		w.Protein = PriorityWeight
	case models.PriorityFat:
		w.Fat = PriorityWeight
	default:
		return w, inputErrorf("priority", "unknown priority %q", p)
	}
	return w, nil
}

// ParsePriority normalizes user input into a Priority. Empty input is balanced.
func ParsePriority(s string) (models.Priority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == string(models.PriorityBalanced) {
		return models.PriorityBalanced, nil
	}
	axis, err := models.ParseAxis(s)
	if err != nil {
		return "", fmt.Errorf("unknown priority %q: %w", s, ErrInput)
	}
	return models.Priority(axis.String()), nil
}
