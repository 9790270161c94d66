// Package owid fetches the Our World in Data latest-snapshot feed: one flat
// CSV with one row per country and several dozen metric columns.
package owid

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/couchcryptid/covid-data-etl/internal/domain"
	"github.com/couchcryptid/covid-data-etl/internal/observability"
)

const fetchSource = "snapshot"

// Client fetches and parses the snapshot feed.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a snapshot client with a bounded request timeout.
func NewClient(url string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		metrics: metrics,
	}
}

// FetchSnapshot retrieves the flat latest-snapshot feed and renames its
// underscored-lowercase columns to the shared Title Case convention. It never
// writes to storage; aggregate-row exclusion and persistence belong to later
// pipeline stages.
func (c *Client) FetchSnapshot(ctx context.Context) (domain.Table, error) {
	start := time.Now()
	table, err := c.fetch(ctx)
	c.metrics.SourceFetchSeconds.WithLabelValues(fetchSource).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.SourceFetches.WithLabelValues(fetchSource, "error").Inc()
		return domain.Table{}, err
	}
	c.metrics.SourceFetches.WithLabelValues(fetchSource, "success").Inc()
	c.logger.Debug("snapshot feed fetched", "rows", len(table.Rows), "columns", len(table.Columns))
	return table, nil
}

func (c *Client) fetch(ctx context.Context) (domain.Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return domain.Table{}, fmt.Errorf("create snapshot request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Table{}, fmt.Errorf("%w: fetch snapshot: %v", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Table{}, fmt.Errorf("%w: snapshot feed returned status %d", domain.ErrSourceUnavailable, resp.StatusCode)
	}

	records, err := csv.NewReader(resp.Body).ReadAll()
	if err != nil {
		return domain.Table{}, fmt.Errorf("%w: snapshot payload is not tabular: %v", domain.ErrSourceUnavailable, err)
	}
	if len(records) < 1 {
		return domain.Table{}, fmt.Errorf("%w: snapshot payload is empty", domain.ErrSourceUnavailable)
	}

	table := domain.Table{
		Columns: normalizeColumns(records[0]),
		Rows:    records[1:],
	}

	for _, col := range []string{domain.ColLocation, domain.ColIsoCode, domain.ColLastUpdated} {
		if table.ColumnIndex(col) < 0 {
			return domain.Table{}, fmt.Errorf("%w: snapshot payload has no %q column", domain.ErrSourceUnavailable, col)
		}
	}

	return table, nil
}

// normalizeColumns maps the feed's underscored-lowercase headers
// ("total_cases_per_million") to space-separated Title Case
// ("Total Cases Per Million").
func normalizeColumns(header []string) []string {
	titler := cases.Title(language.English)
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = titler.String(strings.ReplaceAll(h, "_", " "))
	}
	return cols
}
