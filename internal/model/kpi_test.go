package model

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonthIndex(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int
	}{
		{"Jan", 0},
		{"jan", 0},
		{" JUNE ", 5},
		{"September", 8},
		{"Dec", 11},
		{"Ju", -1},
		{"Total", -1},
		{"", -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MonthIndex(tt.in), tt.in)
	}
}

func TestParseValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   any
		want float64
		ok   bool
	}{
		{"float", 3.5, 3.5, true},
		{"int", 7, 7, true},
		{"numeric string", "42", 42, true},
		{"thousands", "1,250", 1250, true},
		{"currency", "$19.99", 19.99, true},
		{"percent", "98.5%", 98.5, true},
		{"dash", "-", 0, false},
		{"blank", "  ", 0, false},
		{"null string", "null", 0, false},
		{"excel error", "#DIV/0!", 0, false},
		{"na", "#N/A", 0, false},
		{"text", "pending", 0, false},
		{"nil", nil, 0, false},
		{"bool", true, 0, false},
		{"nan string", "NaN", 0, false},
		{"lower nan", "nan", 0, false},
		{"inf string", "Inf", 0, false},
		{"infinity string", "-Infinity", 0, false},
		{"nan float", math.NaN(), 0, false},
		{"inf float", math.Inf(1), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseValue(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestMonthlyValues_MarshalAllMonthsInOrder(t *testing.T) {
	t.Parallel()

	var mv MonthlyValues
	mv.Set(0, 3)
	mv.Set(11, 97.5)

	data, err := json.Marshal(mv)
	require.NoError(t, err)
	assert.Equal(t,
		`{"Jan":3,"Feb":null,"Mar":null,"Apr":null,"May":null,"Jun":null,"Jul":null,"Aug":null,"Sep":null,"Oct":null,"Nov":null,"Dec":97.5}`,
		string(data))
}

func TestMonthlyValues_UnmarshalFillsMissingWithNull(t *testing.T) {
	t.Parallel()

	var mv MonthlyValues
	err := json.Unmarshal([]byte(`{"Jan": 1, "feb": "2,000", "Mar": "#N/A", "Apr": null, "Total": 99}`), &mv)
	require.NoError(t, err)

	require.NotNil(t, mv[0])
	assert.InDelta(t, 1.0, *mv[0], 1e-9)
	require.NotNil(t, mv[1])
	assert.InDelta(t, 2000.0, *mv[1], 1e-9)
	assert.Nil(t, mv[2])
	assert.Nil(t, mv[3])
	assert.Equal(t, 2, mv.Count())
}

func TestMonthlyValues_NonFiniteRoundTrip(t *testing.T) {
	t.Parallel()

	var mv MonthlyValues
	require.NoError(t, json.Unmarshal([]byte(`{"Jan": "NaN", "Feb": 12, "Mar": "Infinity"}`), &mv))
	assert.Nil(t, mv[0])
	assert.Nil(t, mv[2])
	assert.Equal(t, 1, mv.Count())

	data, err := json.Marshal(mv)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))

	var back MonthlyValues
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, mv, back)
}

func TestMonthlyValues_ShortKeyWins(t *testing.T) {
	t.Parallel()

	for i := 0; i < 20; i++ {
		var mv MonthlyValues
		require.NoError(t, json.Unmarshal([]byte(`{"January": 1, "Jan": 2, "February": 3}`), &mv))
		require.NotNil(t, mv[0])
		assert.InDelta(t, 2.0, *mv[0], 1e-9)
		require.NotNil(t, mv[1])
		assert.InDelta(t, 3.0, *mv[1], 1e-9)
	}
}

func TestMonthlyValues_UnmarshalRejectsNonObject(t *testing.T) {
	t.Parallel()

	var mv MonthlyValues
	err := json.Unmarshal([]byte(`[1,2,3]`), &mv)
	assert.Error(t, err)
}

func TestKPIDocument_MergeAndCompanies(t *testing.T) {
	t.Parallel()

	doc := NewKPIDocument("2025-07-30", map[string]string{"trips": "Trips per month"})

	var acme, globex MonthlyValues
	acme.Set(0, 10)
	globex.Set(1, 20)

	doc.Merge("Acme", map[string]MonthlyValues{"trips": acme})
	doc.Merge("Globex", map[string]MonthlyValues{"trips": globex, "accidents": {}})

	assert.Equal(t, []string{"Acme", "Globex"}, doc.Companies())
	assert.Equal(t, []string{"accidents", "trips"}, doc.KPIKeys())
	assert.False(t, doc.Empty())

	// A later merge for the same company replaces the series.
	var replaced MonthlyValues
	replaced.Set(2, 5)
	doc.Merge("Acme", map[string]MonthlyValues{"trips": replaced})
	assert.Nil(t, doc.KPIs["trips"]["Acme"][0])
	assert.NotNil(t, doc.KPIs["trips"]["Acme"][2])
}

func TestKPIDocument_JSONShape(t *testing.T) {
	t.Parallel()

	doc := NewKPIDocument("2025-07-30", map[string]string{"trips": "Trips per month"})
	var mv MonthlyValues
	mv.Set(0, 4)
	doc.Merge("Acme", map[string]MonthlyValues{"trips": mv})

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "2025-07-30", raw["generatedOn"])
	assert.Contains(t, raw, "kpiMetadata")

	kpis := raw["kpis"].(map[string]any)
	acme := kpis["trips"].(map[string]any)["Acme"].(map[string]any)
	assert.Len(t, acme, 12)
	assert.InDelta(t, 4.0, acme["Jan"].(float64), 1e-9)
	assert.Nil(t, acme["Feb"])
}

func TestKPIDocument_EmptyNil(t *testing.T) {
	t.Parallel()

	var doc *KPIDocument
	assert.True(t, doc.Empty())
	assert.True(t, NewKPIDocument("", nil).Empty())
}
