package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalCountryName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"US to United States", "US", "United States"},
		{"Burma to Myanmar", "Burma", "Myanmar"},
		{"Korea, South to South Korea", "Korea, South", "South Korea"},
		{"Taiwan* to Taiwan", "Taiwan*", "Taiwan"},
		{"Congo (Kinshasa)", "Congo (Kinshasa)", "Democratic Republic of Congo"},
		{"unmapped name passes through", "Kenya", "Kenya"},
		{"canonical name passes through", "United States", "United States"},
		{"empty string", "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, CanonicalCountryName(tc.input))
		})
	}
}

func TestHarmonizeCountryNames(t *testing.T) {
	day := time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC)
	points := []TimeSeriesPoint{
		{Date: day, Country: "US", Confirmed: 100, Deaths: 10},
		{Date: day, Country: "Kenya", Confirmed: 50, Deaths: 5},
		{Date: day, Country: "Holy See", Confirmed: 2},
	}

	harmonized := HarmonizeCountryNames(points)

	// Renamed and re-sorted by canonical name.
	assert.Equal(t, "Kenya", harmonized[0].Country)
	assert.Equal(t, "United States", harmonized[1].Country)
	assert.Equal(t, "Vatican", harmonized[2].Country)
	// Counts ride along untouched.
	assert.Equal(t, int64(100), harmonized[1].Confirmed)
	assert.Equal(t, int64(10), harmonized[1].Deaths)
	// Input is not mutated.
	assert.Equal(t, "US", points[0].Country)
}

// A rename that changes a country's sort position must not leave the output
// out of order: "Burma" sorts before "Burundi" but its canonical name
// "Myanmar" sorts after, and the persisted artifacts carry rows in output
// order.
func TestHarmonizeCountryNames_ResortsRenamedCountries(t *testing.T) {
	d1 := time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	points := []TimeSeriesPoint{
		{Date: d1, Country: "Burma", Confirmed: 1},
		{Date: d2, Country: "Burma", Confirmed: 2},
		{Date: d1, Country: "Burundi", Confirmed: 3},
		{Date: d2, Country: "Burundi", Confirmed: 4},
	}

	got := HarmonizeCountryNames(points)

	want := []TimeSeriesPoint{
		{Date: d1, Country: "Burundi", Confirmed: 3},
		{Date: d2, Country: "Burundi", Confirmed: 4},
		{Date: d1, Country: "Myanmar", Confirmed: 1},
		{Date: d2, Country: "Myanmar", Confirmed: 2},
	}
	assert.Equal(t, want, got)
}

func TestHarmonizeCountryNames_Idempotent(t *testing.T) {
	day := time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC)
	points := []TimeSeriesPoint{
		{Date: day, Country: "US"},
		{Date: day, Country: "Timor-Leste"},
		{Date: day, Country: "Micronesia"},
		{Date: day, Country: "France"},
	}

	once := HarmonizeCountryNames(points)
	twice := HarmonizeCountryNames(once)

	assert.Equal(t, once, twice)
}

// The mapping must never merge two distinct inputs into one canonical name,
// and no canonical output may itself be a mapped input (which would break
// idempotency).
func TestCountryNameOverrides_CollisionFree(t *testing.T) {
	seen := make(map[string]string, len(countryNameOverrides))
	for from, to := range countryNameOverrides {
		if prev, ok := seen[to]; ok {
			t.Errorf("%q and %q both map to %q", prev, from, to)
		}
		seen[to] = from

		if _, ok := countryNameOverrides[to]; ok {
			t.Errorf("canonical name %q is itself remapped", to)
		}
	}
	assert.Len(t, countryNameOverrides, 11)
}

func TestExcludeAggregateRows(t *testing.T) {
	table := Table{
		Columns: []string{ColLocation, ColIsoCode, "Total Cases"},
		Rows: [][]string{
			{"World", "OWID_WRL", "500000"},
			{"Kenya", "KEN", "1000"},
			{"Africa", "OWID_AFR", "90000"},
			{"Germany", "DEU", "2000"},
		},
	}

	got := ExcludeAggregateRows(table)

	assert.Equal(t, [][]string{
		{"Kenya", "KEN", "1000"},
		{"Germany", "DEU", "2000"},
	}, got.Rows)
	assert.Equal(t, table.Columns, got.Columns)
}

func TestExcludeAggregateRows_NoAggregates(t *testing.T) {
	table := Table{
		Columns: []string{ColLocation, ColIsoCode},
		Rows: [][]string{
			{"Kenya", "KEN"},
			{"Germany", "DEU"},
		},
	}

	got := ExcludeAggregateRows(table)
	assert.Equal(t, table.Rows, got.Rows)
}

func TestExcludeAggregateRows_MissingIsoColumn(t *testing.T) {
	table := Table{
		Columns: []string{ColLocation},
		Rows:    [][]string{{"Kenya"}},
	}

	got := ExcludeAggregateRows(table)
	assert.Equal(t, table, got)
}
