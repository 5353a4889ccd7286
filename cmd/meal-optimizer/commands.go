package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mcp-meal-optimizer/internal/models"
	"mcp-meal-optimizer/internal/server"
)

func importCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <food-table.csv>",
		Short: "Replace the stored food table with a CSV export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// The configured table would be imported by newServer; the argument wins.
			a.cfg.FoodTable = ""
			srv, err := a.newServer()
			if err != nil {
				return err
			}
			defer srv.Stop()

			n, err := srv.ImportFoods(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d foods from %s\n", n, args[0])
			return nil
		},
	}
}

func optimizeCommand(a *app) *cobra.Command {
	var (
		foods    []string
		minimums []string
		limits   []string
		weights  []string
		priority string
		format   string
	)

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Compute food quantities that fill the meal limits",
		Example: `  meal-optimizer optimize --food 쌀밥 --food 닭가슴살 --min 쌀밥=100 --priority protein
  meal-optimizer optimize --food oats --limit energy=400 --limit fat=10 --format yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := server.OptimizeMealParams{
				Foods:    foods,
				Priority: priority,
			}

			var err error
			if params.Minimums, err = parseAssignments(minimums); err != nil {
				return fmt.Errorf("invalid --min: %w", err)
			}
			if len(limits) > 0 {
				l := a.cfg.Limits
				if err := applyNutrients(&l, limits); err != nil {
					return fmt.Errorf("invalid --limit: %w", err)
				}
				params.Limits = &l
			}
			if len(weights) > 0 {
				w := models.Nutrients{Energy: 1, Carbohydrate: 1, Protein: 1, Fat: 1}
				if err := applyNutrients(&w, weights); err != nil {
					return fmt.Errorf("invalid --weight: %w", err)
				}
				params.Weights = &w
			}

			srv, err := a.newServer()
			if err != nil {
				return err
			}
			defer srv.Stop()

			resp, err := srv.Optimize(params)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), format, resp)
		},
	}

	cmd.Flags().StringArrayVar(&foods, "food", nil, "Food name to include (repeatable, keeps order)")
	cmd.Flags().StringArrayVar(&minimums, "min", nil, "Minimum grams as name=grams (repeatable)")
	cmd.Flags().StringArrayVar(&limits, "limit", nil, "Limit as axis=value (repeatable, defaults from config)")
	cmd.Flags().StringArrayVar(&weights, "weight", nil, "Objective weight as axis=value (repeatable, overrides --priority)")
	cmd.Flags().StringVar(&priority, "priority", "balanced", "balanced, energy, carbohydrate, protein or fat")
	cmd.Flags().StringVar(&format, "format", "json", "Output format: json or yaml")
	_ = cmd.MarkFlagRequired("food")
	return cmd
}

func intakeCommand(a *app) *cobra.Command {
	var (
		entries []string
		format  string
	)

	cmd := &cobra.Command{
		Use:   "intake",
		Short: "Sum the nutrients of eaten foods against the daily reference",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := server.CalculateIntakeParams{}
			for _, e := range entries {
				name, grams, err := parseAssignment(e)
				if err != nil {
					return fmt.Errorf("invalid --food: %w", err)
				}
				params.Entries = append(params.Entries, models.IntakeEntry{Name: name, Grams: grams})
			}

			srv, err := a.newServer()
			if err != nil {
				return err
			}
			defer srv.Stop()

			report, err := srv.CalculateIntake(params)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), format, report)
		},
	}

	cmd.Flags().StringArrayVar(&entries, "food", nil, "Eaten food as name=grams (repeatable)")
	cmd.Flags().StringVar(&format, "format", "json", "Output format: json or yaml")
	_ = cmd.MarkFlagRequired("food")
	return cmd
}

func rankCommand(a *app) *cobra.Command {
	var (
		count  int
		format string
	)

	cmd := &cobra.Command{
		Use:   "rank <column>",
		Short: "List the highest and lowest foods for a nutrient column",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := a.newServer()
			if err != nil {
				return err
			}
			defer srv.Stop()

			ranking, err := srv.RankFoods(server.RankFoodsParams{Column: args[0], Count: count})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), format, ranking)
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 10, "Foods per side (3 to 100)")
	cmd.Flags().StringVar(&format, "format", "json", "Output format: json or yaml")
	return cmd
}

func runsCommand(a *app) *cobra.Command {
	var (
		limit  int
		format string
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent optimization runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := a.newServer()
			if err != nil {
				return err
			}
			defer srv.Stop()

			runs, err := srv.GetRuns(server.GetRunsParams{Limit: limit})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), format, runs)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of runs")
	cmd.Flags().StringVar(&format, "format", "json", "Output format: json or yaml")
	return cmd
}

// parseAssignment splits name=value at the last '=', so food names may contain '='.
func parseAssignment(pair string) (string, float64, error) {
	i := strings.LastIndex(pair, "=")
	if i <= 0 {
		return "", 0, fmt.Errorf("expected name=value, got %q", pair)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(pair[i+1:]), 64)
	if err != nil {
		return "", 0, fmt.Errorf("bad value in %q: %w", pair, err)
	}
	return pair[:i], v, nil
}

func parseAssignments(pairs []string) (map[string]float64, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		name, v, err := parseAssignment(pair)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

func applyNutrients(n *models.Nutrients, pairs []string) error {
	values, err := parseAssignments(pairs)
	if err != nil {
		return err
	}
	for name, v := range values {
		axis, err := models.ParseAxis(name)
		if err != nil {
			return err
		}
		n.Set(axis, v)
	}
	return nil
}

// render writes v as indented JSON or as YAML. YAML goes through the JSON
// form so both formats share field names.
func render(w io.Writer, format string, v interface{}) error {
	switch strings.ToLower(format) {
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		var doc interface{}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("failed to convert output: %w", err)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(doc)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
