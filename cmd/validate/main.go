// Command validate performs end-to-end integrity checks across the persisted
// pipeline artifacts: the latest-data snapshot, the weekly time series, and
// the daily-differences window. It verifies schemas, reconciliation rules,
// weekly bucketing, window contiguity, and cross-artifact consistency.
//
// Usage:
//
//	go run ./cmd/validate -data-dir covid-19-data
//	go run ./cmd/validate -data-dir covid-19-data -as-of 2021-07-15
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/covid-data-etl/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dataDir := flag.String("data-dir", "", "directory containing persisted artifact CSVs")
	asOf := flag.String("as-of", "", "evaluate staleness as of this date (YYYY-MM-DD, default today)")
	flag.Parse()

	if *dataDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	clock := clockwork.Clock(clockwork.NewRealClock())
	if *asOf != "" {
		d, err := time.Parse(time.DateOnly, *asOf)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: invalid -as-of date: %v\n", err)
			os.Exit(1)
		}
		clock = clockwork.NewFakeClockAt(d.Add(12 * time.Hour))
	}

	if code := run(*dataDir, clock); code != 0 {
		os.Exit(code)
	}
}

func run(dataDir string, clock clockwork.Clock) int {
	fmt.Println("=== Artifact Integrity Validation ===")
	fmt.Println()

	snapshot, err := loadCSV(filepath.Join(dataDir, string(domain.ArtifactLatest)+".csv"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load snapshot artifact: %v\n", err)
		return 1
	}
	series, err := loadCSV(filepath.Join(dataDir, string(domain.ArtifactTimeSeries)+".csv"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load time-series artifact: %v\n", err)
		return 1
	}
	diffs, err := loadCSV(filepath.Join(dataDir, string(domain.ArtifactDailyDifferences)+".csv"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load daily-differences artifact: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateSnapshot(snapshot),
		validateTimeSeries(series),
		validateDailyDifferences(diffs, clock),
		validateCrossArtifact(series, diffs),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-46s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Rows: %d snapshot, %d time series, %d daily differences\n",
		len(snapshot.Rows), len(series.Rows), len(diffs.Rows))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

func loadCSV(path string) (domain.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Table{}, err
	}
	defer f.Close()

	all, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return domain.Table{}, err
	}
	if len(all) < 1 {
		return domain.Table{}, fmt.Errorf("no header row in %s", path)
	}
	return domain.Table{Columns: all[0], Rows: all[1:]}, nil
}

// ── Phase 1: Snapshot Integrity ──
// Validates the latest-data artifact: schema, reconciliation, uniqueness.

func validateSnapshot(t domain.Table) *phase {
	p := &phase{name: "Phase 1: Snapshot Integrity"}

	for _, col := range []string{domain.ColLocation, domain.ColIsoCode, domain.ColLastUpdated} {
		if t.ColumnIndex(col) < 0 {
			p.errorf("missing column %q", col)
		}
	}
	if !p.passed() {
		return p
	}

	locIdx := t.ColumnIndex(domain.ColLocation)
	isoIdx := t.ColumnIndex(domain.ColIsoCode)
	seen := map[string]int{}
	for i, row := range t.Rows {
		line := i + 2
		if len(row) != len(t.Columns) {
			p.errorf("line %d: %d fields, header has %d", line, len(row), len(t.Columns))
			continue
		}
		if row[locIdx] == "" {
			p.errorf("line %d: empty %s", line, domain.ColLocation)
		}
		if strings.HasPrefix(row[isoIdx], domain.AggregatePrefix) {
			p.errorf("line %d: aggregate row %q survived exclusion", line, row[isoIdx])
		}
		if prev, ok := seen[row[locIdx]]; ok {
			p.errorf("line %d: duplicate location %q (first at line %d)", line, row[locIdx], prev)
		}
		seen[row[locIdx]] = line
	}
	return p
}

// ── Phase 2: Time-Series Consistency ──
// Validates ordering, weekly bucketing, and canonical country names.

func validateTimeSeries(t domain.Table) *phase {
	p := &phase{name: "Phase 2: Time-Series Consistency"}

	points, err := parseSeriesRows(p, t)
	if err != nil {
		return p
	}

	type weekKey struct {
		country string
		week    time.Time
	}
	weeks := map[weekKey]time.Time{}
	var prev *domain.TimeSeriesPoint
	for i := range points {
		pt := &points[i]

		if canonical := domain.CanonicalCountryName(pt.Country); canonical != pt.Country {
			p.errorf("row %d: upstream spelling %q, canonical is %q", i+2, pt.Country, canonical)
		}

		// One row per country per Sunday-anchored week.
		week := pt.Date.AddDate(0, 0, -int(pt.Date.Weekday()))
		key := weekKey{country: pt.Country, week: week}
		if first, ok := weeks[key]; ok {
			p.errorf("row %d: second date %s in week of %s for %q (first %s)",
				i+2, pt.Date.Format(time.DateOnly), week.Format(time.DateOnly),
				pt.Country, first.Format(time.DateOnly))
		}
		weeks[key] = pt.Date

		if prev != nil && prev.Country == pt.Country && !pt.Date.After(prev.Date) {
			p.errorf("row %d: dates not strictly increasing for %q", i+2, pt.Country)
		}
		if prev != nil && pt.Country < prev.Country {
			p.errorf("row %d: countries not sorted (%q after %q)", i+2, pt.Country, prev.Country)
		}
		prev = pt
	}
	return p
}

func parseSeriesRows(p *phase, t domain.Table) ([]domain.TimeSeriesPoint, error) {
	want := []string{"Date", "Country/Region", "Confirmed", "Deaths"}
	if len(t.Columns) != len(want) {
		p.errorf("header %v, expected %v", t.Columns, want)
		return nil, fmt.Errorf("bad header")
	}
	for i, col := range want {
		if t.Columns[i] != col {
			p.errorf("column %d is %q, expected %q", i, t.Columns[i], col)
			return nil, fmt.Errorf("bad header")
		}
	}

	points := make([]domain.TimeSeriesPoint, 0, len(t.Rows))
	for i, row := range t.Rows {
		if len(row) != len(want) {
			p.errorf("row %d: %d fields, expected %d", i+2, len(row), len(want))
			continue
		}
		date, err := time.Parse(time.DateOnly, row[0])
		if err != nil {
			p.errorf("row %d: bad date %q", i+2, row[0])
			continue
		}
		confirmed, err := strconv.ParseInt(row[2], 10, 64)
		if err != nil {
			p.errorf("row %d: bad confirmed count %q", i+2, row[2])
			continue
		}
		deaths, err := strconv.ParseInt(row[3], 10, 64)
		if err != nil {
			p.errorf("row %d: bad death count %q", i+2, row[3])
			continue
		}
		points = append(points, domain.TimeSeriesPoint{
			Date: date, Country: row[1], Confirmed: confirmed, Deaths: deaths,
		})
	}
	return points, nil
}

// ── Phase 3: Daily-Differences Window ──
// Validates the 30-day window: size, contiguity, freshness.

func validateDailyDifferences(t domain.Table, clock clockwork.Clock) *phase {
	p := &phase{name: "Phase 3: Daily-Differences Window"}

	want := []string{"Date", "Confirmed", "Deaths"}
	if len(t.Columns) != len(want) || t.Columns[0] != "Date" {
		p.errorf("header %v, expected %v", t.Columns, want)
		return p
	}

	if len(t.Rows) == 0 {
		p.errorf("window is empty")
		return p
	}
	if len(t.Rows) > 30 {
		p.errorf("window has %d rows, expected at most 30", len(t.Rows))
	}

	var prevDate time.Time
	for i, row := range t.Rows {
		date, err := time.Parse(time.DateOnly, row[0])
		if err != nil {
			p.errorf("row %d: bad date %q", i+2, row[0])
			continue
		}
		if i > 0 && !date.Equal(prevDate.AddDate(0, 0, 1)) {
			p.errorf("row %d: gap in window (%s after %s)",
				i+2, date.Format(time.DateOnly), prevDate.Format(time.DateOnly))
		}
		prevDate = date

		for _, col := range []int{1, 2} {
			// Negative deltas are legitimate upstream revisions.
			if _, err := strconv.ParseInt(row[col], 10, 64); err != nil {
				p.errorf("row %d: bad delta %q", i+2, row[col])
			}
		}
	}

	if domain.IsStale(prevDate, clock.Now()) {
		fmt.Printf("  Note: artifacts are stale (last date %s); a refresh is due\n",
			prevDate.Format(time.DateOnly))
	}
	return p
}

// ── Phase 4: Cross-Artifact Consistency ──
// All artifacts regenerate as one unit, so their date ranges must agree.

func validateCrossArtifact(series, diffs domain.Table) *phase {
	p := &phase{name: "Phase 4: Cross-Artifact Consistency"}

	seriesLast := lastDate(series)
	diffsLast := lastDate(diffs)
	if seriesLast.IsZero() || diffsLast.IsZero() {
		p.errorf("cannot compare date ranges (unparseable dates)")
		return p
	}

	// The weekly bucket anchor trails the daily window by at most a week.
	if diffsLast.Before(seriesLast) {
		p.errorf("daily differences end %s before time series end %s",
			diffsLast.Format(time.DateOnly), seriesLast.Format(time.DateOnly))
	}
	if gap := diffsLast.Sub(seriesLast); gap > 7*24*time.Hour {
		p.errorf("time series trails daily differences by %s, expected under a week", gap)
	}
	return p
}

func lastDate(t domain.Table) time.Time {
	var last time.Time
	for _, row := range t.Rows {
		if len(row) == 0 {
			continue
		}
		if d, err := time.Parse(time.DateOnly, row[0]); err == nil && d.After(last) {
			last = d
		}
	}
	return last
}
