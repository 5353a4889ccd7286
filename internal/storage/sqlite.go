// internal/storage/sqlite.go
package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"mcp-meal-optimizer/internal/models"
	"mcp-meal-optimizer/internal/nutrition"
)

// timeLayout has fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	storage := &SQLiteStorage{db: db}
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) initSchema() error {
	schema := `
    PRAGMA foreign_keys = ON;

    CREATE TABLE IF NOT EXISTS foods (
        name TEXT PRIMARY KEY,
        position INTEGER NOT NULL,
        energy REAL NOT NULL,
        carbohydrate REAL NOT NULL,
        protein REAL NOT NULL,
        fat REAL NOT NULL,
        sugar REAL NOT NULL,
        sodium REAL NOT NULL
    );

    CREATE TABLE IF NOT EXISTS optimization_runs (
        id TEXT PRIMARY KEY,
        created_at TEXT NOT NULL,
        priority TEXT NOT NULL,
        limit_energy REAL NOT NULL,
        limit_carbohydrate REAL NOT NULL,
        limit_protein REAL NOT NULL,
        limit_fat REAL NOT NULL,
        weight_energy REAL NOT NULL,
        weight_carbohydrate REAL NOT NULL,
        weight_protein REAL NOT NULL,
        weight_fat REAL NOT NULL,
        success INTEGER NOT NULL,
        total_energy REAL NOT NULL,
        total_carbohydrate REAL NOT NULL,
        total_protein REAL NOT NULL,
        total_fat REAL NOT NULL,
        objective REAL NOT NULL,
        failure TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS run_items (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        run_id TEXT NOT NULL,
        name TEXT NOT NULL,
        minimum REAL NOT NULL,
        quantity REAL NOT NULL,
        FOREIGN KEY (run_id) REFERENCES optimization_runs(id) ON DELETE CASCADE
    );

    CREATE INDEX IF NOT EXISTS idx_foods_position ON foods(position);
    CREATE INDEX IF NOT EXISTS idx_runs_created_at ON optimization_runs(created_at);
    CREATE INDEX IF NOT EXISTS idx_run_items_run_id ON run_items(run_id);
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// ReplaceFoods swaps the whole food table for foods. When a name repeats,
// the first row is kept. It returns the number of rows stored.
func (s *SQLiteStorage) ReplaceFoods(foods []models.FoodItem) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM foods`); err != nil {
		return 0, fmt.Errorf("failed to clear foods: %w", err)
	}

	foodQuery := `
        INSERT OR IGNORE INTO foods (name, position, energy, carbohydrate, protein, fat, sugar, sodium)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `
	stored := 0
	for i, food := range foods {
		res, err := tx.Exec(foodQuery,
			food.Name, i, food.Per100g.Energy, food.Per100g.Carbohydrate,
			food.Per100g.Protein, food.Per100g.Fat, food.Sugar, food.Sodium)
		if err != nil {
			return 0, fmt.Errorf("failed to insert food %q: %w", food.Name, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			stored += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit foods: %w", err)
	}
	return stored, nil
}

// ListFoods returns the food table in import order.
func (s *SQLiteStorage) ListFoods() ([]models.FoodItem, error) {
	rows, err := s.db.Query(`
        SELECT name, energy, carbohydrate, protein, fat, sugar, sodium
        FROM foods
        ORDER BY position
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to query foods: %w", err)
	}
	defer rows.Close()

	var foods []models.FoodItem
	for rows.Next() {
		var food models.FoodItem
		err := rows.Scan(&food.Name, &food.Per100g.Energy, &food.Per100g.Carbohydrate,
			&food.Per100g.Protein, &food.Per100g.Fat, &food.Sugar, &food.Sodium)
		if err != nil {
			return nil, fmt.Errorf("failed to scan food: %w", err)
		}
		foods = append(foods, food)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read foods: %w", err)
	}

	return foods, nil
}

func (s *SQLiteStorage) SaveRun(run *models.OptimizationRun) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	runQuery := `
        INSERT INTO optimization_runs (
            id, created_at, priority,
            limit_energy, limit_carbohydrate, limit_protein, limit_fat,
            weight_energy, weight_carbohydrate, weight_protein, weight_fat,
            success, total_energy, total_carbohydrate, total_protein, total_fat,
            objective, failure)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err = tx.Exec(runQuery,
		run.ID, run.CreatedAt.UTC().Format(timeLayout), string(run.Priority),
		run.Limits.Energy, run.Limits.Carbohydrate, run.Limits.Protein, run.Limits.Fat,
		run.Weights.Energy, run.Weights.Carbohydrate, run.Weights.Protein, run.Weights.Fat,
		run.Success, run.Totals.Energy, run.Totals.Carbohydrate, run.Totals.Protein, run.Totals.Fat,
		run.Objective, run.Failure)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	itemQuery := `
        INSERT INTO run_items (run_id, name, minimum, quantity)
        VALUES (?, ?, ?, ?)
    `
	for _, item := range run.Items {
		_, err = tx.Exec(itemQuery, run.ID, item.Name, item.Minimum, item.Quantity)
		if err != nil {
			return fmt.Errorf("failed to insert run item: %w", err)
		}
	}

	return tx.Commit()
}

// GetRuns returns the most recent runs first.
func (s *SQLiteStorage) GetRuns(limit int) ([]*models.OptimizationRun, error) {
	query := `
        SELECT id, created_at, priority,
            limit_energy, limit_carbohydrate, limit_protein, limit_fat,
            weight_energy, weight_carbohydrate, weight_protein, weight_fat,
            success, total_energy, total_carbohydrate, total_protein, total_fat,
            objective, failure
        FROM optimization_runs
        ORDER BY created_at DESC LIMIT ?
    `

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.OptimizationRun
	for rows.Next() {
		run := &models.OptimizationRun{}
		var createdAtStr, priorityStr string

		err := rows.Scan(
			&run.ID, &createdAtStr, &priorityStr,
			&run.Limits.Energy, &run.Limits.Carbohydrate, &run.Limits.Protein, &run.Limits.Fat,
			&run.Weights.Energy, &run.Weights.Carbohydrate, &run.Weights.Protein, &run.Weights.Fat,
			&run.Success, &run.Totals.Energy, &run.Totals.Carbohydrate, &run.Totals.Protein, &run.Totals.Fat,
			&run.Objective, &run.Failure)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		if run.CreatedAt, err = time.Parse(timeLayout, createdAtStr); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		run.Priority = models.Priority(priorityStr)
		if run.Success {
			run.Fulfillment = nutrition.Fulfillment(run.Totals, run.Limits)
		}

		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	rows.Close()

	// Items are loaded after the cursor closes; the pool holds one connection.
	for _, run := range runs {
		if err := s.loadItemsForRun(run); err != nil {
			return nil, fmt.Errorf("failed to load items for run %s: %w", run.ID, err)
		}
	}

	return runs, nil
}

func (s *SQLiteStorage) loadItemsForRun(run *models.OptimizationRun) error {
	query := `
        SELECT name, minimum, quantity
        FROM run_items
        WHERE run_id = ?
        ORDER BY id
    `

	rows, err := s.db.Query(query, run.ID)
	if err != nil {
		return fmt.Errorf("failed to query run items: %w", err)
	}
	defer rows.Close()

	var items []models.FoodQuantity
	for rows.Next() {
		item := models.FoodQuantity{}
		if err := rows.Scan(&item.Name, &item.Minimum, &item.Quantity); err != nil {
			return fmt.Errorf("failed to scan run item: %w", err)
		}
		items = append(items, item)
	}

	run.Items = items
	return rows.Err()
}
