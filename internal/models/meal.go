// internal/models/meal.go
package models

import (
	"time"
)

// Priority selects which axis the optimizer should fill first.
type Priority string

const (
	PriorityBalanced     Priority = "balanced"
	PriorityEnergy       Priority = "energy"
	PriorityCarbohydrate Priority = "carbohydrate"
	PriorityProtein      Priority = "protein"
	PriorityFat          Priority = "fat"
	// PriorityCustom marks runs whose weights were given explicitly.
	PriorityCustom Priority = "custom"
)

// OptimizationResult is the outcome of one optimizer call. Quantities are
// grams aligned with the selection order.
type OptimizationResult struct {
	Quantities  []float64 `json:"quantities"`
	Success     bool      `json:"success"`
	Totals      Nutrients `json:"totals"`
	Fulfillment Nutrients `json:"fulfillment"` // percent of limit, in [0, 100]
	Objective   float64   `json:"objective"`
	Iterations  int       `json:"iterations"`
}

// FoodQuantity pairs a selected food with its bound and optimized amount.
type FoodQuantity struct {
	Name     string  `json:"name"`
	Minimum  float64 `json:"minimum"`
	Quantity float64 `json:"quantity"`
}

// OptimizationRun is a persisted optimizer invocation.
type OptimizationRun struct {
	ID          string         `json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	Priority    Priority       `json:"priority"`
	Limits      Nutrients      `json:"limits"`
	Weights     Nutrients      `json:"weights"`
	Items       []FoodQuantity `json:"items"`
	Success     bool           `json:"success"`
	Totals      Nutrients      `json:"totals"`
	Fulfillment Nutrients      `json:"fulfillment"`
	Objective   float64        `json:"objective"`
	Failure     string         `json:"failure,omitempty"`
}

// IntakeEntry is an eaten amount of one food.
type IntakeEntry struct {
	Name  string  `json:"name"`
	Grams float64 `json:"grams"`
}

// AxisComparison compares an absolute intake with a daily reference value.
type AxisComparison struct {
	Axis       string  `json:"axis"`
	Amount     float64 `json:"amount"`
	Reference  float64 `json:"reference"`
	Difference float64 `json:"difference"` // positive means surplus
}

// IntakeReport is the absolute intake of a set of entries.
type IntakeReport struct {
	Entries     []IntakeEntry    `json:"entries"`
	Totals      Nutrients        `json:"totals"`
	Comparisons []AxisComparison `json:"comparisons"`
}

// RankedFood is a food with the value it was ranked on.
type RankedFood struct {
	Rank   int     `json:"rank"`
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Energy float64 `json:"energy"`
}

// Ranking holds the highest and lowest foods for one column.
type Ranking struct {
	Column string       `json:"column"`
	Count  int          `json:"count"`
	Top    []RankedFood `json:"top"`
	Bottom []RankedFood `json:"bottom"`
}
