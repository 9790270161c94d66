// Package jhu fetches the JHU CSSE historical time-series feeds: one wide
// CSV per metric, one row per sub-national or national region, one column
// per calendar date.
package jhu

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/covid-data-etl/internal/domain"
	"github.com/couchcryptid/covid-data-etl/internal/observability"
)

// Fixed leading columns of the wide feed. Lat/Long and Province/State are
// dropped on ingest; only the country column and the date columns survive.
const (
	colProvince = "Province/State"
	colCountry  = "Country/Region"
	colLat      = "Lat"
	colLong     = "Long"
)

// dateLayout is the M/D/YY convention the feed uses for date column headers.
const dateLayout = "1/2/06"

// Client fetches and parses the per-metric wide time-series feeds.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a time-series client. baseURL is the shared file prefix;
// the metric name and "_global.csv" are appended per fetch.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		metrics: metrics,
	}
}

// FetchMetricSeries retrieves one wide time-series feed, drops the coordinate
// and subdivision columns, and sums sub-national rows into one national total
// per (country, date). Only the enumerated metrics are valid.
func (c *Client) FetchMetricSeries(ctx context.Context, metric domain.Metric) (domain.MetricSeries, error) {
	if _, err := domain.ParseMetric(string(metric)); err != nil {
		return domain.MetricSeries{}, err
	}

	start := time.Now()
	series, err := c.fetch(ctx, metric)
	c.metrics.SourceFetchSeconds.WithLabelValues(string(metric)).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.SourceFetches.WithLabelValues(string(metric), "error").Inc()
		return domain.MetricSeries{}, err
	}
	c.metrics.SourceFetches.WithLabelValues(string(metric), "success").Inc()
	c.logger.Debug("metric feed fetched", "metric", metric, "observations", len(series.Values))
	return series, nil
}

func (c *Client) fetch(ctx context.Context, metric domain.Metric) (domain.MetricSeries, error) {
	url := fmt.Sprintf("%s_%s_global.csv", c.baseURL, metric)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.MetricSeries{}, fmt.Errorf("create %s request: %w", metric, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.MetricSeries{}, fmt.Errorf("%w: fetch %s feed: %v", domain.ErrSourceUnavailable, metric, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.MetricSeries{}, fmt.Errorf("%w: %s feed returned status %d", domain.ErrSourceUnavailable, metric, resp.StatusCode)
	}

	records, err := csv.NewReader(resp.Body).ReadAll()
	if err != nil {
		return domain.MetricSeries{}, fmt.Errorf("%w: %s payload is not tabular: %v", domain.ErrSourceUnavailable, metric, err)
	}
	if len(records) < 2 {
		return domain.MetricSeries{}, fmt.Errorf("%w: %s payload has no data rows", domain.ErrSourceUnavailable, metric)
	}

	return parseWideSeries(metric, records)
}

// parseWideSeries collapses the wide feed into national cumulative totals
// keyed by (country, date).
func parseWideSeries(metric domain.Metric, records [][]string) (domain.MetricSeries, error) {
	header := records[0]

	countryIdx := -1
	dates := make(map[int]time.Time) // column index -> parsed date
	for i, h := range header {
		switch h {
		case colCountry:
			countryIdx = i
		case colProvince, colLat, colLong:
			// dropped
		default:
			d, err := time.Parse(dateLayout, h)
			if err != nil {
				return domain.MetricSeries{}, fmt.Errorf("%w: %s feed has unexpected column %q", domain.ErrSourceUnavailable, metric, h)
			}
			dates[i] = d.UTC()
		}
	}
	if countryIdx < 0 {
		return domain.MetricSeries{}, fmt.Errorf("%w: %s feed has no %q column", domain.ErrSourceUnavailable, metric, colCountry)
	}

	values := make(map[domain.SeriesKey]int64, (len(records)-1)*len(dates))
	for rowNum, row := range records[1:] {
		if countryIdx >= len(row) {
			return domain.MetricSeries{}, fmt.Errorf("%w: %s feed row %d is truncated", domain.ErrSourceUnavailable, metric, rowNum+2)
		}
		country := row[countryIdx]
		for i, date := range dates {
			if i >= len(row) {
				return domain.MetricSeries{}, fmt.Errorf("%w: %s feed row %d is truncated", domain.ErrSourceUnavailable, metric, rowNum+2)
			}
			v, err := strconv.ParseInt(row[i], 10, 64)
			if err != nil {
				return domain.MetricSeries{}, fmt.Errorf("%w: %s feed row %d has non-numeric count %q",
					domain.ErrSourceUnavailable, metric, rowNum+2, row[i])
			}
			key := domain.SeriesKey{Country: country, Date: date}
			values[key] += v
		}
	}

	return domain.MetricSeries{Metric: metric, Values: values}, nil
}
