// Command genmock generates deterministic mock source feeds in the upstream
// wire formats: an OWID-style flat snapshot CSV and a pair of JHU-style wide
// time-series CSVs. It runs the generated feeds through the actual domain
// transforms so the printed stats match real pipeline behavior, and can serve
// the files over HTTP for pointing a local covid-etl at them.
//
// Usage:
//
//	go run ./cmd/genmock -out-dir data/mock -days 45
//	go run ./cmd/genmock -out-dir data/mock -serve :9090
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/covid-data-etl/internal/domain"
)

// lastDate anchors the generated feeds; counts are a pure function of
// (country, day offset) so repeated runs produce identical files.
var lastDate = time.Date(2021, time.July, 15, 0, 0, 0, 0, time.UTC)

type mockCountry struct {
	name      string // upstream spelling, pre-harmonization
	province  string // non-empty for sub-national rows
	iso       string
	baseCases int64
	baseDead  int64
}

// countries exercises the interesting reconciliation paths: sub-national
// rows that must aggregate, upstream spellings that must harmonize, and an
// aggregate snapshot row that must be excluded.
var countries = []mockCountry{
	{name: "US", iso: "USA", baseCases: 33_000_000, baseDead: 600_000},
	{name: "Korea, South", iso: "KOR", baseCases: 170_000, baseDead: 2_000},
	{name: "France", iso: "FRA", baseCases: 5_800_000, baseDead: 111_000},
	{name: "Australia", province: "New South Wales", iso: "AUS", baseCases: 5_600, baseDead: 56},
	{name: "Australia", province: "Victoria", iso: "AUS", baseCases: 20_000, baseDead: 820},
	{name: "Taiwan*", iso: "TWN", baseCases: 15_000, baseDead: 780},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out-dir", "", "directory to write mock feed CSVs")
	days := flag.Int("days", 45, "number of daily observations to generate")
	serve := flag.String("serve", "", "optional address to serve the mock feeds over HTTP")
	flag.Parse()

	if *outDir == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out-dir")
	}
	if *days < 2 {
		return fmt.Errorf("-days must be at least 2, got %d", *days)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}

	clock := clockwork.NewFakeClockAt(lastDate.Add(6 * time.Hour))

	snapshotPath := filepath.Join(*outDir, "owid-covid-latest.csv")
	if err := writeSnapshotCSV(snapshotPath, clock.Now()); err != nil {
		return fmt.Errorf("writing snapshot feed: %w", err)
	}
	log.Printf("wrote snapshot feed: %s", snapshotPath)

	for _, metric := range []domain.Metric{domain.MetricConfirmed, domain.MetricDeaths} {
		path := filepath.Join(*outDir, fmt.Sprintf("time_series_covid19_%s_global.csv", metric))
		if err := writeSeriesCSV(path, metric, *days); err != nil {
			return fmt.Errorf("writing %s feed: %w", metric, err)
		}
		log.Printf("wrote %s feed: %s", metric, path)
	}

	printStats(*days)

	if *serve != "" {
		log.Printf("serving mock feeds on %s", *serve)
		return http.ListenAndServe(*serve, http.FileServer(http.Dir(*outDir)))
	}
	return nil
}

// cumulative returns the deterministic cumulative count for a country on day
// offset i (0 = oldest). Growth is linear with a per-country step so deltas
// are easy to assert against.
func cumulative(base int64, i, days int) int64 {
	step := base / 100
	if step == 0 {
		step = 1
	}
	return base + step*int64(i-days+1)
}

func writeSnapshotCSV(path string, now time.Time) error {
	header := []string{"iso_code", "location", "last_updated_date", "total_cases", "total_deaths"}
	rows := [][]string{
		// Aggregate row the pipeline must exclude.
		{"OWID_WRL", "World", now.Format(time.DateOnly), "188000000", "4050000"},
	}
	seen := map[string]bool{}
	for _, c := range countries {
		if seen[c.iso] {
			continue
		}
		seen[c.iso] = true
		rows = append(rows, []string{
			c.iso, c.name, now.Format(time.DateOnly),
			strconv.FormatInt(c.baseCases, 10), strconv.FormatInt(c.baseDead, 10),
		})
	}
	return writeCSV(path, header, rows)
}

func writeSeriesCSV(path string, metric domain.Metric, days int) error {
	header := []string{"Province/State", "Country/Region", "Lat", "Long"}
	for i := 0; i < days; i++ {
		d := lastDate.AddDate(0, 0, i-days+1)
		header = append(header, d.Format("1/2/06"))
	}

	rows := make([][]string, 0, len(countries))
	for _, c := range countries {
		base := c.baseCases
		if metric == domain.MetricDeaths {
			base = c.baseDead
		}
		row := []string{c.province, c.name, "0.0", "0.0"}
		for i := 0; i < days; i++ {
			row = append(row, strconv.FormatInt(cumulative(base, i, days), 10))
		}
		rows = append(rows, row)
	}
	return writeCSV(path, header, rows)
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// printStats runs the generated series through the real transforms and prints
// the numbers test assertions care about.
func printStats(days int) {
	confirmed := buildSeries(domain.MetricConfirmed, days)
	deaths := buildSeries(domain.MetricDeaths, days)

	merged, err := domain.MergeSeries(confirmed, deaths)
	if err != nil {
		log.Printf("merge failed: %v", err)
		return
	}
	merged = domain.HarmonizeCountryNames(merged)
	weekly := domain.DownsampleWeekly(merged)
	diffs := domain.BuildDailyDifferences(merged, 30)

	names := map[string]bool{}
	for _, p := range merged {
		names[p.Country] = true
	}

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Countries after harmonization (%d):", len(names))
	for n := range names {
		fmt.Printf(" %q", n)
	}
	fmt.Println()
	fmt.Printf("Daily rows: %d, weekly rows: %d, daily differences: %d\n",
		len(merged), len(weekly), len(diffs))
	if len(diffs) > 0 {
		last := diffs[len(diffs)-1]
		fmt.Printf("Last delta: %s confirmed=%d deaths=%d\n",
			last.Date.Format(time.DateOnly), last.Confirmed, last.Deaths)
	}
}

// buildSeries assembles the MetricSeries the JHU adapter would produce from
// the generated wide CSV, sub-national aggregation included.
func buildSeries(metric domain.Metric, days int) domain.MetricSeries {
	values := map[domain.SeriesKey]int64{}
	for _, c := range countries {
		base := c.baseCases
		if metric == domain.MetricDeaths {
			base = c.baseDead
		}
		for i := 0; i < days; i++ {
			key := domain.SeriesKey{Country: c.name, Date: lastDate.AddDate(0, 0, i-days+1)}
			values[key] += cumulative(base, i, days)
		}
	}
	return domain.MetricSeries{Metric: metric, Values: values}
}
