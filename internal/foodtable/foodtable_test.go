package foodtable

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const koreanTable = `식품성분표 2024,,,,,,,
출처: 농촌진흥청,,,,,,,
식품코드,식품명,에너지(kcal),수분(g),단백질(g),지방(g),탄수화물(g),총당류(g),나트륨(mg)
D101,쌀밥,143,64.0,2.5,0.3,31.7,0.1,2
D102,김치,18,88.0,1.6,0.5,3.9,Tr,498
D103,물,0,100,-,-,-,-,-
D104,,,,,,,,
D105,닭가슴살,109,75.0,22.9,1.2,0,n/a,59
`

func TestLoadKoreanTable(t *testing.T) {
	imp, err := Load(strings.NewReader(koreanTable))
	require.NoError(t, err)

	assert.Equal(t, 2, imp.HeaderRow)
	assert.False(t, imp.SugarDefaulted)
	assert.Equal(t, "식품명", imp.Columns[ColumnName])
	assert.Equal(t, "탄수화물(g)", imp.Columns[ColumnCarbohydrate])
	assert.Equal(t, "총당류(g)", imp.Columns[ColumnSugar])

	require.Len(t, imp.Foods, 4)
	rice := imp.Foods[0]
	assert.Equal(t, "쌀밥", rice.Name)
	assert.Equal(t, 143.0, rice.Per100g.Energy)
	assert.Equal(t, 31.7, rice.Per100g.Carbohydrate)
	assert.Equal(t, 2.5, rice.Per100g.Protein)
	assert.Equal(t, 0.3, rice.Per100g.Fat)
	assert.Equal(t, 2.0, rice.Sodium)

	assert.Equal(t, TraceValue, imp.Foods[1].Sugar)
	assert.Zero(t, imp.Foods[2].Per100g.Protein)
	assert.Zero(t, imp.Foods[3].Sugar, "unparseable cells read as 0")
}

func TestLoadMissingSugarColumnDefaultsToZero(t *testing.T) {
	data := "Food Name,Energy (kcal),Carbohydrate (g),Protein (g),Fat (g),Sodium (mg)\n" +
		"oats,389,66.3,16.9,6.9,2\n"

	imp, err := Load(strings.NewReader(data))
	require.NoError(t, err)
	assert.True(t, imp.SugarDefaulted)
	require.Len(t, imp.Foods, 1)
	assert.Equal(t, "oats", imp.Foods[0].Name)
	assert.Equal(t, 16.9, imp.Foods[0].Per100g.Protein)
	assert.Zero(t, imp.Foods[0].Sugar)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(strings.NewReader("a,b,c\n1,2,3\n"))
	assert.True(t, errors.Is(err, ErrHeaderNotFound))

	_, err = Load(strings.NewReader("식품명,에너지,탄수화물,단백질,지방\n쌀밥,1,2,3,4\n"))
	assert.True(t, errors.Is(err, ErrColumnMissing))
	assert.Contains(t, err.Error(), "sodium")
}

func TestLoadHeaderBeyondScanWindow(t *testing.T) {
	data := strings.Repeat("note\n", HeaderScanRows) + "식품명,에너지,탄수화물,단백질,지방,나트륨\n"
	_, err := Load(strings.NewReader(data))
	assert.True(t, errors.Is(err, ErrHeaderNotFound))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foods.csv")
	require.NoError(t, os.WriteFile(path, []byte(koreanTable), 0o600))

	imp, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, imp.Foods, 4)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestCleanNumber(t *testing.T) {
	tests := map[string]float64{
		"12.5":  12.5,
		" 3 ":   3,
		"-":     0,
		"":      0,
		"Tr":    TraceValue,
		"tr":    TraceValue,
		"1,234": 0,
	}
	for in, want := range tests {
		assert.Equal(t, want, CleanNumber(in), in)
	}
}
