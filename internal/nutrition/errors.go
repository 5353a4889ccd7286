package nutrition

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks. Every typed error below unwraps to one of them.
var (
	ErrInput              = errors.New("invalid input")
	ErrInfeasible         = errors.New("no feasible optimum found")
	ErrNumericInstability = errors.New("conflicting constraints produced a non-finite result")
)

// InputError reports malformed or missing profile data.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InputError) Unwrap() error { return ErrInput }

func inputErrorf(field, format string, args ...interface{}) *InputError {
	return &InputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InfeasibleError reports constraints that cannot hold together. Axis or Food
// names the implicated constraint when it is known.
type InfeasibleError struct {
	Axis     string
	Food     string
	Limit    float64
	Required float64
	Reason   string
}

func (e *InfeasibleError) Error() string {
	switch {
	case e.Axis != "":
		return fmt.Sprintf("%s: minimum quantities already require %.2f %s against a limit of %.2f",
			ErrInfeasible, e.Required, e.Axis, e.Limit)
	case e.Food != "":
		return fmt.Sprintf("%s: minimum of %.2f g for %q exceeds the %.0f g upper bound",
			ErrInfeasible, e.Required, e.Food, e.Limit)
	case e.Reason != "":
		return fmt.Sprintf("%s: %s", ErrInfeasible, e.Reason)
	}
	return ErrInfeasible.Error()
}

func (e *InfeasibleError) Unwrap() error { return ErrInfeasible }

// NumericInstabilityError reports a solver run that ended on a non-finite value.
type NumericInstabilityError struct {
	Food   string
	Value  float64
	Reason string
}

func (e *NumericInstabilityError) Error() string {
	if e.Food != "" {
		return fmt.Sprintf("%s: quantity for %q is %v", ErrNumericInstability, e.Food, e.Value)
	}
	return fmt.Sprintf("%s: %s", ErrNumericInstability, e.Reason)
}

func (e *NumericInstabilityError) Unwrap() error { return ErrNumericInstability }
