package domain

import (
	"sort"
	"strings"
)

// AggregatePrefix marks snapshot rows that represent continent, income-group,
// or world totals rather than individual countries or territories.
const AggregatePrefix = "OWID"

// countryNameOverrides maps historical-source (JHU) spellings to canonical
// (OWID) spellings. This is versioned configuration data: extend it when the
// sources diverge on a new name, never change pipeline logic for it. The
// mapping is injective and its values never appear among its keys, so
// applying it is idempotent and cannot merge two countries into one.
var countryNameOverrides = map[string]string{
	"Cabo Verde":           "Cape Verde",
	"Congo (Brazzaville)":  "Congo",
	"Congo (Kinshasa)":     "Democratic Republic of Congo",
	"Micronesia":           "Micronesia (country)",
	"Burma":                "Myanmar",
	"West Bank and Gaza":   "Palestine",
	"Korea, South":         "South Korea",
	"Taiwan*":              "Taiwan",
	"Timor-Leste":          "Timor",
	"US":                   "United States",
	"Holy See":             "Vatican",
}

// CanonicalCountryName rewrites a historical-source country name into the
// canonical naming space. Names without an override pass through unchanged.
func CanonicalCountryName(name string) string {
	if canonical, ok := countryNameOverrides[name]; ok {
		return canonical
	}
	return name
}

// HarmonizeCountryNames rewrites every point's country into the canonical
// naming space, then re-sorts by (country, date): a rename can move a
// country's sort position ("Burma" joins the M's as "Myanmar"), and the
// persisted artifacts carry rows in this order. Pure and idempotent; the
// input slice is not mutated.
func HarmonizeCountryNames(points []TimeSeriesPoint) []TimeSeriesPoint {
	out := make([]TimeSeriesPoint, len(points))
	for i, p := range points {
		p.Country = CanonicalCountryName(p.Country)
		out[i] = p
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Country != out[j].Country {
			return out[i].Country < out[j].Country
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// ExcludeAggregateRows removes snapshot rows whose identity key (Iso Code)
// starts with the reserved aggregate prefix. A table with no such rows is
// returned unchanged.
func ExcludeAggregateRows(t Table) Table {
	iso := t.ColumnIndex(ColIsoCode)
	if iso < 0 {
		return t
	}
	rows := make([][]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		if iso < len(row) && strings.HasPrefix(row[iso], AggregatePrefix) {
			continue
		}
		rows = append(rows, row)
	}
	return Table{Columns: t.Columns, Rows: rows}
}
