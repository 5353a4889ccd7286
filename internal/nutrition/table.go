package nutrition

import (
	"mcp-meal-optimizer/internal/models"
)

// FoodTable resolves food names to table rows.
type FoodTable interface {
	Lookup(name string) (models.FoodItem, bool)
}

// Table is an in-memory food table. When a name appears more than once the
// first row wins and the name is recorded in Duplicates.
type Table struct {
	items      []models.FoodItem
	index      map[string]int
	duplicates []string
}

// NewTable indexes items by name.
func NewTable(items []models.FoodItem) *Table {
	t := &Table{
		items: items,
		index: make(map[string]int, len(items)),
	}
	for i, item := range items {
		if _, ok := t.index[item.Name]; ok {
			t.duplicates = append(t.duplicates, item.Name)
			continue
		}
		t.index[item.Name] = i
	}
	return t
}

func (t *Table) Lookup(name string) (models.FoodItem, bool) {
	i, ok := t.index[name]
	if !ok {
		return models.FoodItem{}, false
	}
	return t.items[i], true
}

// Items returns every row in load order, duplicates included.
func (t *Table) Items() []models.FoodItem {
	return t.items
}

// Duplicates lists names that occurred more than once.
func (t *Table) Duplicates() []string {
	return t.duplicates
}

func (t *Table) Len() int {
	return len(t.items)
}
