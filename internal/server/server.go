// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"mcp-meal-optimizer/internal/config"
	"mcp-meal-optimizer/internal/foodtable"
	"mcp-meal-optimizer/internal/metrics"
	"mcp-meal-optimizer/internal/models"
	"mcp-meal-optimizer/internal/nutrition"
	"mcp-meal-optimizer/internal/storage"
)

// Info identifies the server to MCP clients.
var Info = protocol.Implementation{
	Name:    "meal-optimizer",
	Version: "1.0.0",
}

var errInvalidParams = errors.New("invalid parameters")

type toolHandler func(*protocol.CallToolRequest) (*protocol.CallToolResult, error)

type MealOptimizerServer struct {
	httpServer *http.Server
	storage    *storage.SQLiteStorage
	optimizer  *nutrition.Optimizer
	cache      *lru.Cache[string, *models.OptimizationResult]
	metrics    *metrics.Metrics
	logger     *zap.Logger
	config     *config.Config
	tools      map[string]toolHandler

	mu    sync.RWMutex
	table *nutrition.Table
	// duplicates holds the repeated names of the last import; storage keeps
	// only the first row of each, so the reloaded table cannot report them.
	duplicates []string
}

// NewMealOptimizerServer opens the database named in cfg and builds the server.
func NewMealOptimizerServer(cfg *config.Config, logger *zap.Logger) (*MealOptimizerServer, error) {
	stor, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	srv, err := New(cfg, stor, logger, metrics.New())
	if err != nil {
		stor.Close()
		return nil, err
	}
	return srv, nil
}

// New builds a server over an open storage. The server owns stor from here on.
func New(cfg *config.Config, stor *storage.SQLiteStorage, logger *zap.Logger, m *metrics.Metrics) (*MealOptimizerServer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &MealOptimizerServer{
		storage:   stor,
		optimizer: cfg.NewOptimizer(),
		metrics:   m,
		logger:    logger,
		config:    cfg,
	}

	if cfg.Cache.Size > 0 {
		cache, err := lru.New[string, *models.OptimizationResult](cfg.Cache.Size)
		if err != nil {
			return nil, fmt.Errorf("failed to create result cache: %w", err)
		}
		s.cache = cache
	}

	if cfg.FoodTable != "" {
		if _, err := s.ImportFoods(cfg.FoodTable); err != nil {
			return nil, err
		}
	} else if err := s.ReloadFoods(); err != nil {
		return nil, err
	}

	s.registerTools()

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHTTP)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", m.Handler())

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Handler returns the HTTP handler serving tool calls, health and metrics.
func (s *MealOptimizerServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// ImportFoods loads a CSV food table, stores it and makes it current.
func (s *MealOptimizerServer) ImportFoods(path string) (int, error) {
	imp, err := foodtable.LoadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to import food table: %w", err)
	}
	if imp.SugarDefaulted {
		s.logger.Warn("food table has no sugar column, sugar reads as 0", zap.String("path", path))
	}

	stored, err := s.storage.ReplaceFoods(imp.Foods)
	if err != nil {
		return 0, fmt.Errorf("failed to store food table: %w", err)
	}
	duplicates := nutrition.NewTable(imp.Foods).Duplicates()
	if skipped := len(imp.Foods) - stored; skipped > 0 {
		s.logger.Warn("duplicate food names kept first row only",
			zap.Int("skipped", skipped),
			zap.Strings("names", duplicates))
	}

	s.logger.Info("imported food table",
		zap.String("path", path),
		zap.Int("header_row", imp.HeaderRow),
		zap.Int("foods", stored))

	if err := s.ReloadFoods(); err != nil {
		return stored, err
	}
	s.mu.Lock()
	s.duplicates = duplicates
	s.mu.Unlock()
	return stored, nil
}

// ReloadFoods refreshes the in-memory table from storage and drops cached results.
func (s *MealOptimizerServer) ReloadFoods() error {
	foods, err := s.storage.ListFoods()
	if err != nil {
		return fmt.Errorf("failed to load foods: %w", err)
	}

	table := nutrition.NewTable(foods)
	s.mu.Lock()
	s.table = table
	s.mu.Unlock()

	if s.cache != nil {
		s.cache.Purge()
	}
	s.metrics.FoodsLoaded.Set(float64(table.Len()))
	return nil
}

func (s *MealOptimizerServer) foods() *nutrition.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table
}

func (s *MealOptimizerServer) importDuplicates() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.duplicates
}

func (s *MealOptimizerServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"server": Info,
		"foods":  s.foods().Len(),
	})
}

func (s *MealOptimizerServer) handleHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if r.Method == http.MethodOptions {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Decode the MCP request
	var request protocol.CallToolRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	handler, ok := s.tools[request.Name]
	if !ok {
		s.metrics.ObserveToolCall(request.Name, "unknown")
		http.Error(w, fmt.Sprintf("Unknown tool: %s", request.Name), http.StatusNotFound)
		return
	}

	start := time.Now()
	result, err := handler(&request)
	if err != nil {
		status := statusFor(err)
		s.metrics.ObserveToolCall(request.Name, http.StatusText(status))
		s.logger.Warn("tool call failed",
			zap.String("tool", request.Name),
			zap.Int("status", status),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		http.Error(w, err.Error(), status)
		return
	}

	s.metrics.ObserveToolCall(request.Name, "ok")
	s.logger.Debug("tool call", zap.String("tool", request.Name), zap.Duration("elapsed", time.Since(start)))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errInvalidParams), errors.Is(err, nutrition.ErrInput):
		return http.StatusBadRequest
	case errors.Is(err, nutrition.ErrInfeasible), errors.Is(err, nutrition.ErrNumericInstability):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Start serves until ctx is cancelled or the listener fails.
func (s *MealOptimizerServer) Start(ctx context.Context) error {
	s.logger.Info("starting meal optimizer server", zap.String("addr", s.httpServer.Addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *MealOptimizerServer) Stop() error {
	var shutdownErr error
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownErr = s.httpServer.Shutdown(ctx)
	}
	if s.storage != nil {
		if err := s.storage.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}
	return shutdownErr
}

func (s *MealOptimizerServer) createJSONResponse(data interface{}) (*protocol.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}

	return &protocol.CallToolResult{
		Content: []protocol.Content{
			protocol.TextContent{
				Type: "text",
				Text: string(jsonBytes),
			},
		},
	}, nil
}
