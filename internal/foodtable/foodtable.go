// Package foodtable imports a food-composition table exported from a
// spreadsheet whose header row and column names are not known in advance.
package foodtable

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"mcp-meal-optimizer/internal/models"
)

// HeaderScanRows is how many leading rows are searched for the header.
const HeaderScanRows = 10

// TraceValue replaces trace markers ("Tr") in numeric cells.
const TraceValue = 0.01

var (
	ErrHeaderNotFound = errors.New("header row with a food name column not found")
	ErrColumnMissing  = errors.New("required column missing")
)

// Column keys, in the order columns are matched.
const (
	ColumnName         = "name"
	ColumnEnergy       = "energy"
	ColumnCarbohydrate = "carbohydrate"
	ColumnProtein      = "protein"
	ColumnFat          = "fat"
	ColumnSodium       = "sodium"
	ColumnSugar        = "sugar"
)

type columnSpec struct {
	key      string
	keywords []string
}

// A header cell matches a column when it contains any keyword; the first
// matching header cell wins.
var columnSpecs = []columnSpec{
	{ColumnName, []string{"식품명", "식품이름", "food name"}},
	{ColumnEnergy, []string{"에너지", "열량", "energy"}},
	{ColumnCarbohydrate, []string{"탄수화물", "carbohydrate"}},
	{ColumnProtein, []string{"단백질", "protein"}},
	{ColumnFat, []string{"지방", "fat"}},
	{ColumnSodium, []string{"나트륨", "sodium"}},
	{ColumnSugar, []string{"당류", "총당류", "sugar"}},
}

// Import is a loaded table plus what was discovered about its layout.
type Import struct {
	Foods []models.FoodItem
	// HeaderRow is the zero-based row index the header was found on.
	HeaderRow int
	// Columns maps each column key to the header text it matched.
	Columns map[string]string
	// SugarDefaulted is set when no sugar column existed and sugar reads as 0.
	SugarDefaulted bool
}

// LoadFile opens path and calls Load.
func LoadFile(path string) (*Import, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open food table: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a CSV food table.
func Load(r io.Reader) (*Import, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read food table: %w", err)
	}

	headerRow := findHeader(records)
	if headerRow < 0 {
		return nil, ErrHeaderNotFound
	}

	header := records[headerRow]
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	imp := &Import{HeaderRow: headerRow, Columns: make(map[string]string)}
	index := make(map[string]int)
	for _, spec := range columnSpecs {
		i := matchColumn(header, spec.keywords)
		if i < 0 {
			if spec.key == ColumnSugar {
				imp.SugarDefaulted = true
				continue
			}
			return nil, fmt.Errorf("%w: %s", ErrColumnMissing, spec.key)
		}
		index[spec.key] = i
		imp.Columns[spec.key] = header[i]
	}

	for _, record := range records[headerRow+1:] {
		name := strings.TrimSpace(cell(record, index[ColumnName]))
		if name == "" {
			continue
		}
		item := models.FoodItem{
			Name: name,
			Per100g: models.Nutrients{
				Energy:       CleanNumber(cell(record, index[ColumnEnergy])),
				Carbohydrate: CleanNumber(cell(record, index[ColumnCarbohydrate])),
				Protein:      CleanNumber(cell(record, index[ColumnProtein])),
				Fat:          CleanNumber(cell(record, index[ColumnFat])),
			},
			Sodium: CleanNumber(cell(record, index[ColumnSodium])),
		}
		if !imp.SugarDefaulted {
			item.Sugar = CleanNumber(cell(record, index[ColumnSugar]))
		}
		imp.Foods = append(imp.Foods, item)
	}
	return imp, nil
}

func findHeader(records [][]string) int {
	for i := 0; i < len(records) && i < HeaderScanRows; i++ {
		for _, c := range records[i] {
			if containsAny(c, columnSpecs[0].keywords) {
				return i
			}
		}
	}
	return -1
}

func matchColumn(header []string, keywords []string) int {
	for i, h := range header {
		if containsAny(h, keywords) {
			return i
		}
	}
	return -1
}

func containsAny(s string, keywords []string) bool {
	s = strings.ToLower(s)
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func cell(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return record[i]
}

// CleanNumber parses a numeric cell: "-" is 0, "Tr" is TraceValue and
// anything unparseable is 0.
func CleanNumber(s string) float64 {
	s = strings.TrimSpace(s)
	switch {
	case s == "" || s == "-":
		return 0
	case strings.EqualFold(s, "tr"):
		return TraceValue
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
