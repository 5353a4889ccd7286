// cmd/meal-optimizer/main.go
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mcp-meal-optimizer/internal/config"
	"mcp-meal-optimizer/internal/logging"
	"mcp-meal-optimizer/internal/server"
)

type app struct {
	configFile string
	dbPath     string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger
}

func main() {
	_ = godotenv.Load()

	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:          "meal-optimizer",
		Short:        "Nutrient-constrained meal optimizer and MCP server",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&a.configFile, "config", "", "Config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&a.dbPath, "db-path", "", "Database path (overrides database.path)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return a.initialize()
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if a.logger != nil {
			_ = a.logger.Sync()
		}
	}

	rootCmd.AddCommand(
		serveCommand(a),
		importCommand(a),
		optimizeCommand(a),
		intakeCommand(a),
		rankCommand(a),
		runsCommand(a),
		versionCommand(),
	)
	return rootCmd
}

// initialize loads configuration, applies flag overrides and builds the logger.
func (a *app) initialize() error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.Database.Path = a.dbPath
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) newServer() (*server.MealOptimizerServer, error) {
	srv, err := server.NewMealOptimizerServer(a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}
	return srv, nil
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", server.Info.Name, server.Info.Version)
		},
	}
}
