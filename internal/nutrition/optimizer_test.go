package nutrition

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-meal-optimizer/internal/models"
	"mcp-meal-optimizer/internal/solver"
)

func profile(name string, cal, carb, prot, fat float64) models.PerGramProfile {
	return models.PerGramProfile{
		Name:    name,
		PerGram: models.Nutrients{Energy: cal, Carbohydrate: carb, Protein: prot, Fat: fat}.Scale(0.01),
	}
}

var (
	foodA = profile("A", 200, 40, 5, 2)
	foodB = profile("B", 150, 0, 30, 5)

	mealLimits = models.Nutrients{Energy: 500, Carbohydrate: 60, Protein: 30, Fat: 15}
)

func assertWithinLimits(t *testing.T, totals, limits models.Nutrients) {
	t.Helper()
	for _, axis := range models.Axes {
		assert.LessOrEqual(t, totals.Get(axis), limits.Get(axis)+1e-6*math.Max(1, limits.Get(axis)), "axis %s", axis)
	}
}

func TestOptimizeTwoFoodsBalanced(t *testing.T) {
	opt := NewOptimizer()
	profiles := []models.PerGramProfile{foodA, foodB}

	res, err := opt.Optimize(profiles, []float64{0, 0}, mealLimits, BalancedWeights())
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Len(t, res.Quantities, 2)

	for _, q := range res.Quantities {
		assert.GreaterOrEqual(t, q, 0.0)
		assert.LessOrEqual(t, q, DefaultUpperBound)
	}
	assertWithinLimits(t, res.Totals, mealLimits)

	// Carbohydrate caps A at 150 g, protein then caps B at 75 g.
	assert.InDelta(t, 150.0, res.Quantities[0], 0.05)
	assert.InDelta(t, 75.0, res.Quantities[1], 0.05)
	assert.InDelta(t, 100.0, res.Fulfillment.Carbohydrate, 0.05)
	assert.InDelta(t, 100.0, res.Fulfillment.Protein, 0.05)
	assert.InDelta(t, 82.5, res.Fulfillment.Energy, 0.05)
	assert.InDelta(t, 45.0, res.Fulfillment.Fat, 0.05)
}

func TestOptimizeNilMinimumsDefaultToZero(t *testing.T) {
	res, err := NewOptimizer().Optimize([]models.PerGramProfile{foodA, foodB}, nil, mealLimits, BalancedWeights())
	require.NoError(t, err)
	assert.InDelta(t, 150.0, res.Quantities[0], 0.05)
}

func TestOptimizeMinimumsExceedLimit(t *testing.T) {
	opt := NewOptimizer()
	profiles := []models.PerGramProfile{foodA, foodB}

	_, err := opt.Optimize(profiles, []float64{160, 0}, mealLimits, BalancedWeights())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInfeasible))

	var infeasible *InfeasibleError
	require.True(t, errors.As(err, &infeasible))
	assert.Equal(t, "carbohydrate", infeasible.Axis)
	assert.InDelta(t, 64.0, infeasible.Required, 1e-9)
	assert.Equal(t, 60.0, infeasible.Limit)
}

func TestOptimizeJointMinimumsInfeasible(t *testing.T) {
	// 100 g of A and 90 g of B already carry 32 g protein against 30 g.
	_, err := NewOptimizer().Optimize([]models.PerGramProfile{foodA, foodB}, []float64{100, 90}, mealLimits, BalancedWeights())

	var infeasible *InfeasibleError
	require.True(t, errors.As(err, &infeasible))
	assert.Equal(t, "protein", infeasible.Axis)
	assert.Contains(t, err.Error(), "protein")
}

func TestOptimizeMinimumAboveUpperBound(t *testing.T) {
	water := profile("water", 0, 0, 0, 0)
	_, err := NewOptimizer().Optimize([]models.PerGramProfile{water}, []float64{2500}, mealLimits, BalancedWeights())

	var infeasible *InfeasibleError
	require.True(t, errors.As(err, &infeasible))
	assert.Equal(t, "water", infeasible.Food)
}

func TestOptimizeRespectsMinimums(t *testing.T) {
	res, err := NewOptimizer().Optimize([]models.PerGramProfile{foodA, foodB}, []float64{0, 90}, mealLimits, BalancedWeights())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Quantities[1], 90.0)
	assert.GreaterOrEqual(t, res.Quantities[0], 0.0)
	assertWithinLimits(t, res.Totals, mealLimits)
}

func TestOptimizeProteinPriorityScenario(t *testing.T) {
	opt := NewOptimizer()
	profiles := []models.PerGramProfile{foodA, foodB}

	balanced, err := opt.Optimize(profiles, nil, mealLimits, BalancedWeights())
	require.NoError(t, err)

	weights, err := WeightsFor(models.PriorityProtein)
	require.NoError(t, err)
	prioritized, err := opt.Optimize(profiles, nil, mealLimits, weights)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, prioritized.Fulfillment.Protein, balanced.Fulfillment.Protein-1e-3)
}

// Two foods competing for the energy budget: X carries carbohydrate and
// protein, Y carries fat. Protein can never reach its limit.
func competingFoods() ([]models.PerGramProfile, models.Nutrients) {
	return []models.PerGramProfile{
			profile("X", 100, 20, 10, 0),
			profile("Y", 100, 0, 0, 10),
		}, models.Nutrients{
			Energy:       200,
			Carbohydrate: 40,
			Protein:      100,
			Fat:          20,
		}
}

func TestOptimizePriorityShiftsOptimum(t *testing.T) {
	opt := NewOptimizer()
	profiles, limits := competingFoods()

	balanced, err := opt.Optimize(profiles, nil, limits, BalancedWeights())
	require.NoError(t, err)
	// Stationary point of (1-u)² + (1-0.2u)² + u² with x = 200u, y = 200(1-u).
	assert.InDelta(t, 200*2.4/4.08, balanced.Quantities[0], 0.05)
	assert.InDelta(t, 200-200*2.4/4.08, balanced.Quantities[1], 0.05)

	protein, err := WeightsFor(models.PriorityProtein)
	require.NoError(t, err)
	res, err := opt.Optimize(profiles, nil, limits, protein)
	require.NoError(t, err)
	assert.InDelta(t, 200.0, res.Quantities[0], 0.05)
	assert.InDelta(t, 0.0, res.Quantities[1], 0.05)
	assert.InDelta(t, 20.0, res.Fulfillment.Protein, 0.05)
	assert.Greater(t, res.Fulfillment.Protein, balanced.Fulfillment.Protein)

	fat, err := WeightsFor(models.PriorityFat)
	require.NoError(t, err)
	res, err = opt.Optimize(profiles, nil, limits, fat)
	require.NoError(t, err)
	assert.Greater(t, res.Fulfillment.Fat, balanced.Fulfillment.Fat)
	assertWithinLimits(t, res.Totals, limits)
}

func TestOptimizeWeightMonotonic(t *testing.T) {
	opt := NewOptimizer()
	profiles, limits := competingFoods()

	for _, axis := range models.Axes {
		base, err := opt.Optimize(profiles, nil, limits, BalancedWeights())
		require.NoError(t, err)

		prev := base.Fulfillment.Get(axis)
		for _, w := range []float64{2, 10, 100} {
			weights := BalancedWeights()
			weights.Set(axis, w)
			res, err := opt.Optimize(profiles, nil, limits, weights)
			require.NoError(t, err)
			got := res.Fulfillment.Get(axis)
			assert.GreaterOrEqual(t, got, prev-1e-3, "axis %s weight %v", axis, w)
			prev = got
		}
	}
}

func TestOptimizeZeroProfileFood(t *testing.T) {
	water := profile("water", 0, 0, 0, 0)
	res, err := NewOptimizer().Optimize([]models.PerGramProfile{foodA, foodB, water}, []float64{0, 0, 5}, mealLimits, BalancedWeights())
	require.NoError(t, err)

	assert.InDelta(t, 150.0, res.Quantities[0], 0.05)
	assert.InDelta(t, 75.0, res.Quantities[1], 0.05)
	assert.GreaterOrEqual(t, res.Quantities[2], 5.0)
	assert.LessOrEqual(t, res.Quantities[2], 5.0+StartOffset+1e-6)
}

func TestOptimizeZeroLimit(t *testing.T) {
	limits := mealLimits
	limits.Fat = 0

	res, err := NewOptimizer().Optimize([]models.PerGramProfile{foodA, foodB}, nil, limits, BalancedWeights())
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Fulfillment.Fat)
	assert.LessOrEqual(t, res.Totals.Fat, 1e-6)
	assertWithinLimits(t, res.Totals, limits)
}

func TestOptimizeZeroLimitKeepsOtherFoods(t *testing.T) {
	// B has no carbohydrate, so a zero carbohydrate limit only excludes A.
	limits := models.Nutrients{Energy: 500, Carbohydrate: 0, Protein: 30, Fat: 15}

	res, err := NewOptimizer().Optimize([]models.PerGramProfile{foodA, foodB}, nil, limits, BalancedWeights())
	require.NoError(t, err)
	assert.InDelta(t, 0.0, res.Quantities[0], 1e-6)
	assert.InDelta(t, 100.0, res.Quantities[1], 1e-3)
	assert.InDelta(t, 30.0, res.Totals.Protein, 1e-3)
	assert.LessOrEqual(t, res.Totals.Carbohydrate, 1e-6)
	assertWithinLimits(t, res.Totals, limits)
}

func TestOptimizePrioritizedFatConverges(t *testing.T) {
	profiles := []models.PerGramProfile{
		profile("a", 520, 12, 9, 44),
		profile("b", 90, 21, 2, 0.3),
		profile("c", 160, 0, 31, 3.6),
		profile("d", 380, 70, 13, 6),
		profile("e", 30, 5, 2, 0.4),
	}
	limits := models.Nutrients{Energy: 700, Carbohydrate: 90, Protein: 35, Fat: 25}
	weights := BalancedWeights()
	weights.Fat = PriorityWeight

	res, err := NewOptimizer().Optimize(profiles, nil, limits, weights)
	require.NoError(t, err)
	assertWithinLimits(t, res.Totals, limits)
	assert.Greater(t, res.Fulfillment.Fat, 95.0)
}

func TestRestoreFeasibilityShrinksContributingFoods(t *testing.T) {
	profiles := []models.PerGramProfile{foodA, foodB}
	limits := models.Nutrients{Energy: 500, Carbohydrate: 0, Protein: 30, Fat: 15}

	// A rounding-level amount of A breaks the zero carbohydrate limit.
	x := []float64{3.3e-14, 100.0000021}
	restoreFeasibility(x, profiles, []float64{0, 0}, limits)

	assert.Equal(t, 0.0, x[0])
	assert.InDelta(t, 100.0, x[1], 1e-5)
	assertWithinLimits(t, Totals(profiles, x), limits)

	// Minimums stay in place while the excess above them is removed.
	x = []float64{200, 50}
	restoreFeasibility(x, profiles, []float64{100, 0}, mealLimits)
	assert.InDelta(t, 150.0, x[0], 1e-9)
	assert.Equal(t, 50.0, x[1])
	assertWithinLimits(t, Totals(profiles, x), mealLimits)
}

func TestOptimizeInputErrors(t *testing.T) {
	opt := NewOptimizer()
	tests := []struct {
		name     string
		profiles []models.PerGramProfile
		minimums []float64
		limits   models.Nutrients
		weights  models.Nutrients
	}{
		{"no foods", nil, nil, mealLimits, BalancedWeights()},
		{"length mismatch", []models.PerGramProfile{foodA}, []float64{0, 0}, mealLimits, BalancedWeights()},
		{"negative minimum", []models.PerGramProfile{foodA}, []float64{-1}, mealLimits, BalancedWeights()},
		{"negative coefficient", []models.PerGramProfile{profile("bad", -1, 0, 0, 0)}, nil, mealLimits, BalancedWeights()},
		{"nan coefficient", []models.PerGramProfile{profile("bad", math.NaN(), 0, 0, 0)}, nil, mealLimits, BalancedWeights()},
		{"negative limit", []models.PerGramProfile{foodA}, nil, models.Nutrients{Energy: -5}, BalancedWeights()},
		{"zero weight", []models.PerGramProfile{foodA}, nil, mealLimits, models.Nutrients{Energy: 1, Carbohydrate: 1, Protein: 0, Fat: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := opt.Optimize(tt.profiles, tt.minimums, tt.limits, tt.weights)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInput), "got %v", err)
		})
	}
}

type stubMinimizer struct {
	result *solver.Result
	err    error
}

func (s stubMinimizer) Minimize(p *solver.Problem, x0 []float64) (*solver.Result, error) {
	return s.result, s.err
}

func TestOptimizeSolverOutcomes(t *testing.T) {
	profiles := []models.PerGramProfile{foodA, foodB}

	t.Run("not converged", func(t *testing.T) {
		opt := NewOptimizer(WithMinimizer(stubMinimizer{result: &solver.Result{Mode: solver.MaxIterations, X: []float64{1, 1}}}))
		_, err := opt.Optimize(profiles, nil, mealLimits, BalancedWeights())
		assert.True(t, errors.Is(err, ErrInfeasible))
		assert.Contains(t, err.Error(), "iteration limit exceeded")
	})

	t.Run("non-finite quantity", func(t *testing.T) {
		opt := NewOptimizer(WithMinimizer(stubMinimizer{result: &solver.Result{Mode: solver.Converged, X: []float64{1, math.NaN()}}}))
		_, err := opt.Optimize(profiles, nil, mealLimits, BalancedWeights())
		assert.True(t, errors.Is(err, ErrNumericInstability))
		assert.False(t, errors.Is(err, ErrInfeasible))

		var unstable *NumericInstabilityError
		require.True(t, errors.As(err, &unstable))
		assert.Equal(t, "B", unstable.Food)
	})

	t.Run("non-finite evaluation", func(t *testing.T) {
		opt := NewOptimizer(WithMinimizer(stubMinimizer{result: &solver.Result{Mode: solver.NonFinite}}))
		_, err := opt.Optimize(profiles, nil, mealLimits, BalancedWeights())
		assert.True(t, errors.Is(err, ErrNumericInstability))
	})

	t.Run("solver error", func(t *testing.T) {
		opt := NewOptimizer(WithMinimizer(stubMinimizer{result: &solver.Result{Mode: solver.BadArgument}, err: errors.New("boom")}))
		_, err := opt.Optimize(profiles, nil, mealLimits, BalancedWeights())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("slightly infeasible answer is pulled back", func(t *testing.T) {
		opt := NewOptimizer(WithMinimizer(stubMinimizer{result: &solver.Result{Mode: solver.Converged, X: []float64{151, 76}}}))
		res, err := opt.Optimize(profiles, nil, mealLimits, BalancedWeights())
		require.NoError(t, err)
		assertWithinLimits(t, res.Totals, mealLimits)
	})
}

func TestOptimizeRandomInvariants(t *testing.T) {
	opt := NewOptimizer()

	for _, seed := range []int64{3, 7} {
		rng := rand.New(rand.NewSource(seed))
		for c := 0; c < 40; c++ {
			n := 1 + rng.Intn(8)
			profiles := make([]models.PerGramProfile, n)
			minimums := make([]float64, n)
			for i := range profiles {
				profiles[i] = profile("f", rng.Float64()*600, rng.Float64()*80, rng.Float64()*40, rng.Float64()*50)
				if rng.Intn(3) == 0 {
					minimums[i] = rng.Float64() * 100
				}
			}
			limits := models.Nutrients{
				Energy:       200 + rng.Float64()*800,
				Carbohydrate: 20 + rng.Float64()*100,
				Protein:      10 + rng.Float64()*50,
				Fat:          5 + rng.Float64()*40,
			}
			weights := BalancedWeights()
			weights.Set(models.Axes[rng.Intn(len(models.Axes))], PriorityWeight)

			res, err := opt.Optimize(profiles, minimums, limits, weights)

			required := Totals(profiles, minimums)
			reachable := true
			for _, axis := range models.Axes {
				if required.Get(axis) > limits.Get(axis) {
					reachable = false
				}
			}
			if !reachable {
				require.True(t, errors.Is(err, ErrInfeasible), "seed %d case %d: %v", seed, c, err)
				continue
			}
			require.NoError(t, err, "seed %d case %d", seed, c)

			require.Len(t, res.Quantities, n)
			for i, q := range res.Quantities {
				assert.GreaterOrEqual(t, q, minimums[i], "seed %d case %d", seed, c)
				assert.LessOrEqual(t, q, DefaultUpperBound, "seed %d case %d", seed, c)
			}
			assertWithinLimits(t, res.Totals, limits)
			for _, axis := range models.Axes {
				f := res.Fulfillment.Get(axis)
				assert.GreaterOrEqual(t, f, 0.0)
				assert.LessOrEqual(t, f, 100.0)
			}

			recomputed := Totals(profiles, res.Quantities)
			for _, axis := range models.Axes {
				assert.InDelta(t, res.Totals.Get(axis), recomputed.Get(axis), 1e-9)
			}
		}
	}
}

func TestOptimizeConcurrentCalls(t *testing.T) {
	opt := NewOptimizer()
	profiles := []models.PerGramProfile{foodA, foodB}

	want, err := opt.Optimize(profiles, nil, mealLimits, BalancedWeights())
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*models.OptimizationResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = opt.Optimize(profiles, nil, mealLimits, BalancedWeights())
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		require.NotNil(t, got)
		assert.Equal(t, want.Quantities, got.Quantities)
	}
}

func TestFulfillment(t *testing.T) {
	got := Fulfillment(
		models.Nutrients{Energy: 250, Carbohydrate: 90, Protein: 5, Fat: 3},
		models.Nutrients{Energy: 500, Carbohydrate: 60, Protein: 0, Fat: 12},
	)
	assert.Equal(t, 50.0, got.Energy)
	assert.Equal(t, 100.0, got.Carbohydrate)
	assert.Equal(t, 0.0, got.Protein)
	assert.Equal(t, 25.0, got.Fat)
}
