package domain

import (
	"fmt"
	"time"
)

// Metric names one of the per-metric wide time-series feeds published by the
// historical source.
type Metric string

const (
	MetricConfirmed Metric = "confirmed"
	MetricDeaths    Metric = "deaths"
)

// ParseMetric validates a metric name against the enumerated set.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricConfirmed, MetricDeaths:
		return Metric(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMetric, s)
	}
}

// Artifact identifies one of the persisted canonical datasets.
type Artifact string

const (
	ArtifactLatest           Artifact = "latest-data"
	ArtifactTimeSeries       Artifact = "time-series-data"
	ArtifactDailyDifferences Artifact = "daily-differences"
)

// Artifacts lists every artifact kind regenerated by a refresh cycle.
var Artifacts = []Artifact{ArtifactLatest, ArtifactTimeSeries, ArtifactDailyDifferences}

// SeriesKey identifies one observation in a wide metric feed after
// sub-national aggregation: one national total per (country, date).
type SeriesKey struct {
	Country string
	Date    time.Time // UTC midnight
}

// MetricSeries holds one metric's cumulative counts keyed by country and date.
type MetricSeries struct {
	Metric Metric
	Values map[SeriesKey]int64
}

// TimeSeriesPoint is one canonical long-format record: cumulative confirmed
// and death counts for a country on a date. (Date, Country) pairs are unique
// after sub-national aggregation; Country is drawn from the canonical naming
// space once harmonized.
type TimeSeriesPoint struct {
	Date      time.Time
	Country   string
	Confirmed int64
	Deaths    int64
}

// DailyDifference is one day-over-day change in global cumulative totals.
// Values may be negative when the upstream retroactively revises a past day.
type DailyDifference struct {
	Date      time.Time
	Confirmed int64
	Deaths    int64
}

// Table is a generic column-ordered table, used for the snapshot artifact
// whose several dozen metric columns are carried through without per-column
// typing. Row values align positionally with Columns.
type Table struct {
	Columns []string
	Rows    [][]string
}

// ColumnIndex returns the position of the named column, or -1.
func (t Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns every value of the named column in row order.
func (t Table) Column(name string) []string {
	i := t.ColumnIndex(name)
	if i < 0 {
		return nil
	}
	vals := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		if i < len(row) {
			vals = append(vals, row[i])
		}
	}
	return vals
}

// Snapshot column names shared between the store, the validators, and the
// read path. The remaining metric columns vary with the upstream schema and
// are carried through as-is.
const (
	ColLocation    = "Location"
	ColIsoCode     = "Iso Code"
	ColLastUpdated = "Last Updated Date"
)

// RefreshEvent describes one regenerated artifact, published to the optional
// notification topic after a successful refresh cycle.
type RefreshEvent struct {
	Artifact    Artifact  `json:"artifact"`
	Rows        int       `json:"rows"`
	LastDate    time.Time `json:"last_date"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

// DateOnly truncates t to UTC midnight. All pipeline dates are calendar
// dates; time-of-day never participates in comparisons.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
