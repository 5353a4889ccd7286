// internal/server/tools.go
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mcp-meal-optimizer/internal/metrics"
	"mcp-meal-optimizer/internal/models"
	"mcp-meal-optimizer/internal/nutrition"
)

const (
	defaultRankCount = 10
	defaultFoodLimit = 50
	defaultRunLimit  = 10
	maxRunLimit      = 100
)

type OptimizeMealParams struct {
	Foods    []string           `json:"foods" description:"Food names from the loaded table, in output order"`
	Minimums map[string]float64 `json:"minimums,omitempty" description:"Minimum grams per food (defaults to 0)"`
	Limits   *models.Nutrients  `json:"limits,omitempty" description:"Per-meal nutrient limits (defaults to configured limits)"`
	Priority string             `json:"priority,omitempty" description:"balanced, energy, carbohydrate, protein or fat"`
	Weights  *models.Nutrients  `json:"weights,omitempty" description:"Explicit objective weights, overriding priority"`
}

type OptimizeMealResponse struct {
	RunID       string                `json:"run_id"`
	Priority    models.Priority       `json:"priority"`
	Limits      models.Nutrients      `json:"limits"`
	Weights     models.Nutrients      `json:"weights"`
	Items       []models.FoodQuantity `json:"items"`
	Totals      models.Nutrients      `json:"totals"`
	Fulfillment models.Nutrients      `json:"fulfillment"`
	Objective   float64               `json:"objective"`
	Iterations  int                   `json:"iterations"`
	Cached      bool                  `json:"cached"`
}

type CalculateIntakeParams struct {
	Entries   []models.IntakeEntry `json:"entries" description:"Eaten foods with grams"`
	Reference *models.Nutrients    `json:"reference,omitempty" description:"Daily reference values (defaults to configured reference)"`
}

type RankFoodsParams struct {
	Column string `json:"column" description:"energy, carbohydrate, protein, fat, sugar or sodium"`
	Count  int    `json:"count,omitempty" description:"Foods per side, clamped to 3..100"`
}

type ListFoodsParams struct {
	Query string `json:"query,omitempty" description:"Case-insensitive substring of the food name"`
	Limit int    `json:"limit,omitempty" description:"Maximum number of foods to return"`
}

type ListFoodsResponse struct {
	Foods      []models.FoodItem `json:"foods"`
	Matched    int               `json:"matched"`
	Total      int               `json:"total"`
	Duplicates []string          `json:"duplicates,omitempty"`
}

type GetRunsParams struct {
	Limit int `json:"limit,omitempty" description:"Maximum number of runs to return"`
}

func (s *MealOptimizerServer) registerTools() {
	s.tools = map[string]toolHandler{
		"optimize_meal":    s.handleOptimizeMeal,
		"calculate_intake": s.handleCalculateIntake,
		"rank_foods":       s.handleRankFoods,
		"list_foods":       s.handleListFoods,
		"get_runs":         s.handleGetRuns,
	}
}

// extractParams safely extracts parameters from the request arguments
func extractParams(req *protocol.CallToolRequest, target interface{}) error {
	// Convert the Arguments map to JSON bytes, then unmarshal to target
	jsonBytes, err := json.Marshal(req.Arguments)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal arguments: %v", errInvalidParams, err)
	}

	if err := json.Unmarshal(jsonBytes, target); err != nil {
		return fmt.Errorf("%w: %v", errInvalidParams, err)
	}

	return nil
}

func (s *MealOptimizerServer) handleOptimizeMeal(req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params OptimizeMealParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}

	resp, err := s.Optimize(params)
	if err != nil {
		return nil, err
	}
	return s.createJSONResponse(resp)
}

// Optimize resolves the selected foods, runs the optimizer and records the run.
// Failed optimizations are recorded too; malformed requests are not.
func (s *MealOptimizerServer) Optimize(params OptimizeMealParams) (*OptimizeMealResponse, error) {
	priority, err := nutrition.ParsePriority(params.Priority)
	if err != nil {
		return nil, err
	}
	weights, err := nutrition.WeightsFor(priority)
	if err != nil {
		return nil, err
	}
	if params.Weights != nil {
		weights = *params.Weights
		priority = models.PriorityCustom
	}

	limits := s.config.Limits
	if params.Limits != nil {
		limits = *params.Limits
	}

	profiles, err := nutrition.ResolveProfiles(params.Foods, s.foods())
	if err != nil {
		s.metrics.ObserveOptimization(metrics.OutcomeInput, 0, 0)
		return nil, err
	}

	minimums, err := alignMinimums(params.Foods, params.Minimums)
	if err != nil {
		s.metrics.ObserveOptimization(metrics.OutcomeInput, 0, 0)
		return nil, err
	}

	run := &models.OptimizationRun{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		Priority:  priority,
		Limits:    limits,
		Weights:   weights,
		Items:     make([]models.FoodQuantity, len(profiles)),
	}
	for i, prof := range profiles {
		run.Items[i] = models.FoodQuantity{Name: prof.Name, Minimum: minimums[i]}
	}

	key, keyErr := cacheKey(params.Foods, minimums, limits, weights)
	if keyErr != nil {
		s.logger.Warn("optimization result will not be cached", zap.Error(keyErr))
	}
	var (
		result *models.OptimizationResult
		cached bool
	)
	if keyErr == nil {
		result, cached = s.cachedResult(key)
	}
	if !cached {
		start := time.Now()
		result, err = s.optimizer.Optimize(profiles, minimums, limits, weights)
		elapsed := time.Since(start)
		if err != nil {
			outcome := outcomeFor(err)
			s.metrics.ObserveOptimization(outcome, elapsed, 0)
			if outcome == metrics.OutcomeInput {
				return nil, err
			}
			run.Failure = err.Error()
			if saveErr := s.storage.SaveRun(run); saveErr != nil {
				s.logger.Error("failed to save failed run", zap.String("run_id", run.ID), zap.Error(saveErr))
			}
			s.logger.Info("optimization failed",
				zap.String("run_id", run.ID),
				zap.String("outcome", outcome),
				zap.Error(err))
			return nil, err
		}
		s.metrics.ObserveOptimization(metrics.OutcomeSuccess, elapsed, result.Iterations)
		if s.cache != nil && keyErr == nil {
			s.cache.Add(key, result)
		}
	}

	for i := range run.Items {
		run.Items[i].Quantity = result.Quantities[i]
	}
	run.Success = true
	run.Totals = result.Totals
	run.Fulfillment = result.Fulfillment
	run.Objective = result.Objective

	if err := s.storage.SaveRun(run); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}

	s.logger.Info("optimized meal",
		zap.String("run_id", run.ID),
		zap.String("priority", string(priority)),
		zap.Int("foods", len(profiles)),
		zap.Int("iterations", result.Iterations),
		zap.Bool("cached", cached))

	return &OptimizeMealResponse{
		RunID:       run.ID,
		Priority:    priority,
		Limits:      limits,
		Weights:     weights,
		Items:       run.Items,
		Totals:      result.Totals,
		Fulfillment: result.Fulfillment,
		Objective:   result.Objective,
		Iterations:  result.Iterations,
		Cached:      cached,
	}, nil
}

func (s *MealOptimizerServer) cachedResult(key string) (*models.OptimizationResult, bool) {
	if s.cache == nil {
		return nil, false
	}
	if result, ok := s.cache.Get(key); ok {
		s.metrics.CacheHitsTotal.Inc()
		return result, true
	}
	s.metrics.CacheMissesTotal.Inc()
	return nil, false
}

// alignMinimums orders the per-food minimums like foods. Names missing from
// minimums get 0; names in minimums that were not selected are rejected.
func alignMinimums(foods []string, minimums map[string]float64) ([]float64, error) {
	selected := make(map[string]bool, len(foods))
	for _, name := range foods {
		selected[name] = true
	}
	for name := range minimums {
		if !selected[name] {
			return nil, &nutrition.InputError{Field: "minimums", Reason: fmt.Sprintf("food %q is not selected", name)}
		}
	}

	out := make([]float64, len(foods))
	for i, name := range foods {
		out[i] = minimums[name]
	}
	return out, nil
}

func cacheKey(foods []string, minimums []float64, limits, weights models.Nutrients) (string, error) {
	key, err := json.Marshal(struct {
		Foods    []string         `json:"f"`
		Minimums []float64        `json:"m"`
		Limits   models.Nutrients `json:"l"`
		Weights  models.Nutrients `json:"w"`
	}{foods, minimums, limits, weights})
	if err != nil {
		return "", fmt.Errorf("failed to build cache key: %w", err)
	}
	return string(key), nil
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, nutrition.ErrInput):
		return metrics.OutcomeInput
	case errors.Is(err, nutrition.ErrInfeasible):
		return metrics.OutcomeInfeasible
	case errors.Is(err, nutrition.ErrNumericInstability):
		return metrics.OutcomeUnstable
	default:
		return metrics.OutcomeError
	}
}

func (s *MealOptimizerServer) handleCalculateIntake(req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params CalculateIntakeParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}

	report, err := s.CalculateIntake(params)
	if err != nil {
		return nil, err
	}
	return s.createJSONResponse(report)
}

// CalculateIntake reports the absolute nutrients eaten against the daily reference.
func (s *MealOptimizerServer) CalculateIntake(params CalculateIntakeParams) (*models.IntakeReport, error) {
	reference := s.config.Reference
	if params.Reference != nil {
		reference = *params.Reference
	}
	return nutrition.CalculateIntake(s.foods(), params.Entries, reference)
}

func (s *MealOptimizerServer) handleRankFoods(req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params RankFoodsParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}

	ranking, err := s.RankFoods(params)
	if err != nil {
		return nil, err
	}
	return s.createJSONResponse(ranking)
}

// RankFoods returns the highest and lowest foods of the loaded table for a column.
func (s *MealOptimizerServer) RankFoods(params RankFoodsParams) (*models.Ranking, error) {
	if params.Count == 0 {
		params.Count = defaultRankCount
	}
	return nutrition.Rank(s.foods().Items(), params.Column, params.Count)
}

func (s *MealOptimizerServer) handleListFoods(req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params ListFoodsParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	return s.createJSONResponse(s.ListFoods(params))
}

// ListFoods returns foods whose name contains the query, in table order.
func (s *MealOptimizerServer) ListFoods(params ListFoodsParams) *ListFoodsResponse {
	if params.Limit <= 0 {
		params.Limit = defaultFoodLimit
	}
	query := strings.ToLower(strings.TrimSpace(params.Query))

	table := s.foods()
	resp := &ListFoodsResponse{
		Foods:      []models.FoodItem{},
		Total:      table.Len(),
		Duplicates: s.importDuplicates(),
	}
	for _, item := range table.Items() {
		if query != "" && !strings.Contains(strings.ToLower(item.Name), query) {
			continue
		}
		resp.Matched++
		if len(resp.Foods) < params.Limit {
			resp.Foods = append(resp.Foods, item)
		}
	}
	return resp
}

func (s *MealOptimizerServer) handleGetRuns(req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params GetRunsParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}

	runs, err := s.GetRuns(params)
	if err != nil {
		return nil, err
	}
	return s.createJSONResponse(map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRuns returns the most recent optimization runs.
func (s *MealOptimizerServer) GetRuns(params GetRunsParams) ([]*models.OptimizationRun, error) {
	if params.Limit <= 0 {
		params.Limit = defaultRunLimit
	}
	if params.Limit > maxRunLimit {
		params.Limit = maxRunLimit
	}

	runs, err := s.storage.GetRuns(params.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get runs: %w", err)
	}
	if runs == nil {
		runs = []*models.OptimizationRun{}
	}
	return runs, nil
}
