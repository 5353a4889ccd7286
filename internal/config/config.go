// Package config loads settings from a yaml file, MEALOPT_* environment
// variables and built-in defaults, in decreasing precedence from env.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"mcp-meal-optimizer/internal/models"
	"mcp-meal-optimizer/internal/nutrition"
	"mcp-meal-optimizer/internal/solver"
)

// EnvPrefix prefixes every environment override, e.g. MEALOPT_SERVER_PORT.
const EnvPrefix = "MEALOPT"

type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Database  DatabaseConfig   `mapstructure:"database"`
	Log       LogConfig        `mapstructure:"log"`
	Optimizer OptimizerConfig  `mapstructure:"optimizer"`
	Cache     CacheConfig      `mapstructure:"cache"`
	Limits    models.Nutrients `mapstructure:"limits"`
	Reference models.Nutrients `mapstructure:"reference"`
	// FoodTable is a CSV imported at startup when set.
	FoodTable string `mapstructure:"food_table"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

type OptimizerConfig struct {
	UpperBound   float64 `mapstructure:"upper_bound"`
	Epsilon      float64 `mapstructure:"epsilon"`
	MaxIter      int     `mapstructure:"max_iter"`
	MaxInnerIter int     `mapstructure:"max_inner_iter"`
	Tol          float64 `mapstructure:"tol"`
	FeasTol      float64 `mapstructure:"feas_tol"`
}

type CacheConfig struct {
	Size int `mapstructure:"size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8011)
	v.SetDefault("database.path", "/data/meal-optimizer.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	opts := solver.DefaultOptions()
	v.SetDefault("optimizer.upper_bound", nutrition.DefaultUpperBound)
	v.SetDefault("optimizer.epsilon", nutrition.DefaultEpsilon)
	v.SetDefault("optimizer.max_iter", opts.MaxIter)
	v.SetDefault("optimizer.max_inner_iter", opts.MaxInnerIter)
	v.SetDefault("optimizer.tol", opts.Tol)
	v.SetDefault("optimizer.feas_tol", opts.FeasTol)

	v.SetDefault("cache.size", 256)

	// Per-meal limits offered when a request leaves them out.
	v.SetDefault("limits.energy", 500.0)
	v.SetDefault("limits.carbohydrate", 60.0)
	v.SetDefault("limits.protein", 30.0)
	v.SetDefault("limits.fat", 15.0)

	v.SetDefault("reference.energy", nutrition.DefaultDailyReference.Energy)
	v.SetDefault("reference.carbohydrate", nutrition.DefaultDailyReference.Carbohydrate)
	v.SetDefault("reference.protein", nutrition.DefaultDailyReference.Protein)
	v.SetDefault("reference.fat", nutrition.DefaultDailyReference.Fat)

	v.SetDefault("food_table", "")
}

// Load reads configFile, or config.yaml from the usual search paths when
// configFile is empty. A missing search-path file is not an error.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/meal-optimizer")
		v.AddConfigPath("/etc/meal-optimizer")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Optimizer.UpperBound <= 0 {
		return fmt.Errorf("optimizer.upper_bound must be positive, got %g", c.Optimizer.UpperBound)
	}
	if c.Optimizer.Epsilon <= 0 {
		return fmt.Errorf("optimizer.epsilon must be positive, got %g", c.Optimizer.Epsilon)
	}
	for _, axis := range models.Axes {
		if c.Limits.Get(axis) < 0 {
			return fmt.Errorf("limits.%s must not be negative", axis)
		}
	}
	return nil
}

// SolverOptions returns the solver caps and tolerances.
func (c *Config) SolverOptions() solver.Options {
	return solver.Options{
		MaxIter:      c.Optimizer.MaxIter,
		MaxInnerIter: c.Optimizer.MaxInnerIter,
		Tol:          c.Optimizer.Tol,
		FeasTol:      c.Optimizer.FeasTol,
	}
}

// NewOptimizer builds an optimizer from the optimizer section.
func (c *Config) NewOptimizer() *nutrition.Optimizer {
	return nutrition.NewOptimizer(
		nutrition.WithUpperBound(c.Optimizer.UpperBound),
		nutrition.WithEpsilon(c.Optimizer.Epsilon),
		nutrition.WithSolverOptions(c.SolverOptions()),
	)
}
