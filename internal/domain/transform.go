package domain

import (
	"fmt"
	"sort"
	"time"
)

// MergeSeries outer-joins the confirmed and deaths feeds on (country, date)
// into one long-format point per pair. A key present in one feed but absent
// from the other means the upstream payloads disagree about coverage; no
// value is fabricated to paper over it — the join fails and the refresh
// cycle aborts. Output is sorted by country, then date.
func MergeSeries(confirmed, deaths MetricSeries) ([]TimeSeriesPoint, error) {
	keys := make(map[SeriesKey]struct{}, len(confirmed.Values))
	for k := range confirmed.Values {
		keys[k] = struct{}{}
	}
	for k := range deaths.Values {
		keys[k] = struct{}{}
	}

	points := make([]TimeSeriesPoint, 0, len(keys))
	for k := range keys {
		c, haveConfirmed := confirmed.Values[k]
		d, haveDeaths := deaths.Values[k]
		if !haveConfirmed || !haveDeaths {
			missing := string(MetricConfirmed)
			if !haveDeaths {
				missing = string(MetricDeaths)
			}
			return nil, fmt.Errorf("%w: feeds disagree on coverage: no %s value for %s on %s",
				ErrSourceUnavailable, missing, k.Country, k.Date.Format(time.DateOnly))
		}
		points = append(points, TimeSeriesPoint{
			Date:      k.Date,
			Country:   k.Country,
			Confirmed: c,
			Deaths:    d,
		})
	}

	sort.Slice(points, func(i, j int) bool {
		if points[i].Country != points[j].Country {
			return points[i].Country < points[j].Country
		}
		return points[i].Date.Before(points[j].Date)
	})
	return points, nil
}

// weekStart returns the Sunday that opens the 7-day bucket containing d.
// The weekday is taken from the UTC calendar date, so a non-UTC timestamp
// whose local weekday differs cannot shift the anchor.
func weekStart(d time.Time) time.Time {
	base := DateOnly(d)
	return base.AddDate(0, 0, -int(base.Weekday()))
}

// DownsampleWeekly reduces a daily series to weekly resolution: per country,
// only the first observed date within each Sunday-anchored 7-day bucket is
// kept. This is a deliberate lossy compression to bound artifact size;
// consumers only ever see weekly resolution. Input must be sorted by
// (country, date), as MergeSeries produces.
func DownsampleWeekly(points []TimeSeriesPoint) []TimeSeriesPoint {
	type bucket struct {
		country string
		week    time.Time
	}
	seen := make(map[bucket]struct{})
	out := make([]TimeSeriesPoint, 0, len(points)/7+1)
	for _, p := range points {
		b := bucket{country: p.Country, week: weekStart(p.Date)}
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		out = append(out, p)
	}
	return out
}

// BuildDailyDifferences derives global day-over-day deltas from the
// full-resolution daily series: cumulative totals are summed across all
// countries per date, consecutive dates are differenced, and the most recent
// n entries are kept. The earliest date has no prior day and yields no entry.
// Negative deltas are preserved; they record upstream revisions of past
// cumulative totals and clipping them would hide that signal.
func BuildDailyDifferences(points []TimeSeriesPoint, n int) []DailyDifference {
	type total struct{ confirmed, deaths int64 }
	totals := make(map[time.Time]total)
	for _, p := range points {
		t := totals[p.Date]
		t.confirmed += p.Confirmed
		t.deaths += p.Deaths
		totals[p.Date] = t
	}

	dates := make([]time.Time, 0, len(totals))
	for d := range totals {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	diffs := make([]DailyDifference, 0, len(dates))
	for i := 1; i < len(dates); i++ {
		prev, cur := totals[dates[i-1]], totals[dates[i]]
		diffs = append(diffs, DailyDifference{
			Date:      dates[i],
			Confirmed: cur.confirmed - prev.confirmed,
			Deaths:    cur.deaths - prev.deaths,
		})
	}

	if len(diffs) > n {
		diffs = diffs[len(diffs)-n:]
	}
	return diffs
}
