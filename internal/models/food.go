// internal/models/food.go
package models

import (
	"fmt"
	"strings"
)

// Axis identifies one of the four optimized nutrient axes.
type Axis int

const (
	Energy Axis = iota
	Carbohydrate
	Protein
	Fat
)

// Axes lists every axis in decision order.
var Axes = [...]Axis{Energy, Carbohydrate, Protein, Fat}

func (a Axis) String() string {
	switch a {
	case Energy:
		return "energy"
	case Carbohydrate:
		return "carbohydrate"
	case Protein:
		return "protein"
	case Fat:
		return "fat"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// Unit returns the display unit of the axis.
func (a Axis) Unit() string {
	if a == Energy {
		return "kcal"
	}
	return "g"
}

// ParseAxis accepts the axis name or its common short forms.
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "energy", "cal", "calories", "kcal":
		return Energy, nil
	case "carbohydrate", "carb", "carbs":
		return Carbohydrate, nil
	case "protein", "prot":
		return Protein, nil
	case "fat":
		return Fat, nil
	}
	return 0, fmt.Errorf("unknown nutrient axis %q", s)
}

// Nutrients is a fixed-shape record of the four axes.
type Nutrients struct {
	Energy       float64 `json:"energy" yaml:"energy" mapstructure:"energy"`
	Carbohydrate float64 `json:"carbohydrate" yaml:"carbohydrate" mapstructure:"carbohydrate"`
	Protein      float64 `json:"protein" yaml:"protein" mapstructure:"protein"`
	Fat          float64 `json:"fat" yaml:"fat" mapstructure:"fat"`
}

// Get returns the value on axis a.
func (n Nutrients) Get(a Axis) float64 {
	switch a {
	case Energy:
		return n.Energy
	case Carbohydrate:
		return n.Carbohydrate
	case Protein:
		return n.Protein
	case Fat:
		return n.Fat
	}
	panic(fmt.Sprintf("models: invalid axis %d", int(a)))
}

// Set stores v on axis a.
func (n *Nutrients) Set(a Axis, v float64) {
	switch a {
	case Energy:
		n.Energy = v
	case Carbohydrate:
		n.Carbohydrate = v
	case Protein:
		n.Protein = v
	case Fat:
		n.Fat = v
	default:
		panic(fmt.Sprintf("models: invalid axis %d", int(a)))
	}
}

// Scale returns n multiplied by f on every axis.
func (n Nutrients) Scale(f float64) Nutrients {
	return Nutrients{
		Energy:       n.Energy * f,
		Carbohydrate: n.Carbohydrate * f,
		Protein:      n.Protein * f,
		Fat:          n.Fat * f,
	}
}

// Add returns the axis-wise sum of n and o.
func (n Nutrients) Add(o Nutrients) Nutrients {
	return Nutrients{
		Energy:       n.Energy + o.Energy,
		Carbohydrate: n.Carbohydrate + o.Carbohydrate,
		Protein:      n.Protein + o.Protein,
		Fat:          n.Fat + o.Fat,
	}
}

// FoodItem is one row of the food-composition table. Values are per 100 g.
type FoodItem struct {
	Name    string    `json:"name"`
	Per100g Nutrients `json:"per_100g"`
	Sugar   float64   `json:"sugar"`  // g per 100 g, display only
	Sodium  float64   `json:"sodium"` // mg per 100 g, display only
}

// PerGramProfile is the per-gram coefficient vector of a selected food.
type PerGramProfile struct {
	Name    string    `json:"name"`
	PerGram Nutrients `json:"per_gram"`
}
