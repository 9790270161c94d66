// Package store persists the canonical artifacts as CSV files and memoizes
// reads by as-of date. Writes are temp-file-then-rename so a concurrent
// reader sees either the prior artifact or the fully written replacement,
// never a partial file.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/covid-data-etl/internal/domain"
	"github.com/couchcryptid/covid-data-etl/internal/observability"
)

// Column headers of the typed artifacts. The snapshot artifact carries its
// own columns through from the upstream schema.
var (
	timeSeriesHeader = []string{"Date", "Country/Region", "Confirmed", "Deaths"}
	dailyDiffHeader  = []string{"Date", "Confirmed", "Deaths"}
)

// Store owns the artifact directory and the per-kind read caches.
type Store struct {
	dir     string
	logger  *slog.Logger
	metrics *observability.Metrics

	snapshots *lruCache[domain.Table]
	series    *lruCache[[]domain.TimeSeriesPoint]
	diffs     *lruCache[[]domain.DailyDifference]
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string, logger *slog.Logger, metrics *observability.Metrics) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create artifact dir: %v", domain.ErrWriteFailed, err)
	}
	return &Store{
		dir:       dir,
		logger:    logger,
		metrics:   metrics,
		snapshots: newLRUCache[domain.Table](artifactCacheSize),
		series:    newLRUCache[[]domain.TimeSeriesPoint](artifactCacheSize),
		diffs:     newLRUCache[[]domain.DailyDifference](artifactCacheSize),
	}, nil
}

// Path returns the stable on-disk location of an artifact.
func (s *Store) Path(artifact domain.Artifact) string {
	return filepath.Join(s.dir, string(artifact)+".csv")
}

// WriteSnapshot persists the latest-data artifact.
func (s *Store) WriteSnapshot(table domain.Table) error {
	if err := s.writeCSV(domain.ArtifactLatest, table.Columns, table.Rows); err != nil {
		return err
	}
	s.snapshots.clear()
	s.metrics.ArtifactRows.WithLabelValues(string(domain.ArtifactLatest)).Set(float64(len(table.Rows)))
	return nil
}

// WriteTimeSeries persists the weekly time-series artifact.
func (s *Store) WriteTimeSeries(points []domain.TimeSeriesPoint) error {
	rows := make([][]string, len(points))
	for i, p := range points {
		rows[i] = []string{
			p.Date.Format(time.DateOnly),
			p.Country,
			strconv.FormatInt(p.Confirmed, 10),
			strconv.FormatInt(p.Deaths, 10),
		}
	}
	if err := s.writeCSV(domain.ArtifactTimeSeries, timeSeriesHeader, rows); err != nil {
		return err
	}
	s.series.clear()
	s.metrics.ArtifactRows.WithLabelValues(string(domain.ArtifactTimeSeries)).Set(float64(len(rows)))
	return nil
}

// WriteDailyDifferences persists the 30-day global delta artifact.
func (s *Store) WriteDailyDifferences(diffs []domain.DailyDifference) error {
	rows := make([][]string, len(diffs))
	for i, d := range diffs {
		rows[i] = []string{
			d.Date.Format(time.DateOnly),
			strconv.FormatInt(d.Confirmed, 10),
			strconv.FormatInt(d.Deaths, 10),
		}
	}
	if err := s.writeCSV(domain.ArtifactDailyDifferences, dailyDiffHeader, rows); err != nil {
		return err
	}
	s.diffs.clear()
	s.metrics.ArtifactRows.WithLabelValues(string(domain.ArtifactDailyDifferences)).Set(float64(len(rows)))
	return nil
}

// ReadSnapshot returns the latest-data artifact, memoized by asOf date.
func (s *Store) ReadSnapshot(asOf time.Time) (domain.Table, error) {
	key := cacheKey(asOf)
	if table, ok := s.snapshots.get(key); ok {
		s.metrics.ArtifactReads.WithLabelValues(string(domain.ArtifactLatest), "cache_hit").Inc()
		return table, nil
	}

	records, err := s.readCSV(domain.ArtifactLatest)
	if err != nil {
		return domain.Table{}, err
	}
	table := domain.Table{Columns: records[0], Rows: records[1:]}
	s.snapshots.put(key, table)
	return table, nil
}

// ReadTimeSeries returns the weekly time-series artifact, memoized by asOf
// date, with date columns parsed.
func (s *Store) ReadTimeSeries(asOf time.Time) ([]domain.TimeSeriesPoint, error) {
	key := cacheKey(asOf)
	if points, ok := s.series.get(key); ok {
		s.metrics.ArtifactReads.WithLabelValues(string(domain.ArtifactTimeSeries), "cache_hit").Inc()
		return points, nil
	}

	records, err := s.readCSV(domain.ArtifactTimeSeries)
	if err != nil {
		return nil, err
	}

	points := make([]domain.TimeSeriesPoint, 0, len(records)-1)
	for _, row := range records[1:] {
		if len(row) != len(timeSeriesHeader) {
			return nil, fmt.Errorf("malformed %s row: %v", domain.ArtifactTimeSeries, row)
		}
		date, err := time.ParseInLocation(time.DateOnly, row[0], time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse %s date: %w", domain.ArtifactTimeSeries, err)
		}
		confirmed, err := strconv.ParseInt(row[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s confirmed count: %w", domain.ArtifactTimeSeries, err)
		}
		deaths, err := strconv.ParseInt(row[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s death count: %w", domain.ArtifactTimeSeries, err)
		}
		points = append(points, domain.TimeSeriesPoint{
			Date:      date,
			Country:   row[1],
			Confirmed: confirmed,
			Deaths:    deaths,
		})
	}

	s.series.put(key, points)
	return points, nil
}

// ReadDailyDifferences returns the 30-day global delta artifact, memoized by
// asOf date, with date columns parsed.
func (s *Store) ReadDailyDifferences(asOf time.Time) ([]domain.DailyDifference, error) {
	key := cacheKey(asOf)
	if diffs, ok := s.diffs.get(key); ok {
		s.metrics.ArtifactReads.WithLabelValues(string(domain.ArtifactDailyDifferences), "cache_hit").Inc()
		return diffs, nil
	}

	records, err := s.readCSV(domain.ArtifactDailyDifferences)
	if err != nil {
		return nil, err
	}

	diffs := make([]domain.DailyDifference, 0, len(records)-1)
	for _, row := range records[1:] {
		if len(row) != len(dailyDiffHeader) {
			return nil, fmt.Errorf("malformed %s row: %v", domain.ArtifactDailyDifferences, row)
		}
		date, err := time.ParseInLocation(time.DateOnly, row[0], time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse %s date: %w", domain.ArtifactDailyDifferences, err)
		}
		confirmed, err := strconv.ParseInt(row[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s confirmed delta: %w", domain.ArtifactDailyDifferences, err)
		}
		deaths, err := strconv.ParseInt(row[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s death delta: %w", domain.ArtifactDailyDifferences, err)
		}
		diffs = append(diffs, domain.DailyDifference{Date: date, Confirmed: confirmed, Deaths: deaths})
	}

	s.diffs.put(key, diffs)
	return diffs, nil
}

// writeCSV serializes header+rows to the artifact's temp file, then renames
// it over the stable path. The prior file survives any failure.
func (s *Store) writeCSV(artifact domain.Artifact, header []string, rows [][]string) error {
	target := s.Path(artifact)

	tmp, err := os.CreateTemp(s.dir, string(artifact)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file for %s: %v", domain.ErrWriteFailed, artifact, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s header: %v", domain.ErrWriteFailed, artifact, err)
	}
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s rows: %v", domain.ErrWriteFailed, artifact, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: flush %s: %v", domain.ErrWriteFailed, artifact, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s temp file: %v", domain.ErrWriteFailed, artifact, err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("%w: replace %s: %v", domain.ErrWriteFailed, artifact, err)
	}

	s.logger.Debug("artifact written", "artifact", artifact, "rows", len(rows))
	return nil
}

// readCSV loads an artifact file from disk, including its header row.
func (s *Store) readCSV(artifact domain.Artifact) ([][]string, error) {
	f, err := os.Open(s.Path(artifact))
	if errors.Is(err, fs.ErrNotExist) {
		s.metrics.ArtifactReads.WithLabelValues(string(artifact), "missing").Inc()
		return nil, fmt.Errorf("%w: %s", domain.ErrArtifactMissing, artifact)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", artifact, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", artifact, err)
	}
	if len(records) < 1 {
		return nil, fmt.Errorf("%w: %s file is empty", domain.ErrArtifactMissing, artifact)
	}

	s.metrics.ArtifactReads.WithLabelValues(string(artifact), "disk").Inc()
	return records, nil
}

func cacheKey(asOf time.Time) string {
	return domain.DateOnly(asOf).Format(time.DateOnly)
}
