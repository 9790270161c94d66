// Package pipeline orchestrates the fetch-reconcile-persist refresh cycle
// and exposes the three read accessors the presentation layer consumes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/covid-data-etl/internal/domain"
	"github.com/couchcryptid/covid-data-etl/internal/observability"
)

// DailyDifferenceWindow is how many day-over-day global deltas the
// daily-differences artifact retains.
const DailyDifferenceWindow = 30

// SnapshotFetcher retrieves the flat latest-snapshot feed.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context) (domain.Table, error)
}

// SeriesFetcher retrieves one wide per-metric time-series feed.
type SeriesFetcher interface {
	FetchMetricSeries(ctx context.Context, metric domain.Metric) (domain.MetricSeries, error)
}

// ArtifactStore persists and memoizes the canonical artifacts.
type ArtifactStore interface {
	WriteSnapshot(table domain.Table) error
	WriteTimeSeries(points []domain.TimeSeriesPoint) error
	WriteDailyDifferences(diffs []domain.DailyDifference) error
	ReadSnapshot(asOf time.Time) (domain.Table, error)
	ReadTimeSeries(asOf time.Time) ([]domain.TimeSeriesPoint, error)
	ReadDailyDifferences(asOf time.Time) ([]domain.DailyDifference, error)
}

// Notifier publishes refresh-completed events. A nil Notifier disables
// notifications.
type Notifier interface {
	PublishRefresh(ctx context.Context, events []domain.RefreshEvent) error
}

// Status is a point-in-time summary of artifact freshness for the ops
// surface.
type Status struct {
	LastRefresh  time.Time      `json:"last_refresh"`
	ArtifactDate time.Time      `json:"artifact_date"`
	Stale        bool           `json:"stale"`
	ArtifactRows map[string]int `json:"artifact_rows"`
}

// Service gates reads behind the staleness policy and regenerates all three
// artifacts wholesale when a refresh is due.
type Service struct {
	snapshots SnapshotFetcher
	series    SeriesFetcher
	store     ArtifactStore
	notifier  Notifier
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock
	interval  time.Duration

	ready atomic.Bool

	mu sync.Mutex // serializes refresh cycles

	statusMu sync.Mutex
	status   Status
}

// New creates a Service. notifier may be nil.
func New(snapshots SnapshotFetcher, series SeriesFetcher, store ArtifactStore, notifier Notifier,
	logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock, interval time.Duration) *Service {
	return &Service{
		snapshots: snapshots,
		series:    series,
		store:     store,
		notifier:  notifier,
		logger:    logger,
		metrics:   metrics,
		clock:     clock,
		interval:  interval,
	}
}

// LatestSnapshot returns the per-country latest-data artifact, refreshing
// first when the staleness policy requires it.
func (s *Service) LatestSnapshot(ctx context.Context) (domain.Table, error) {
	if err := s.ensureFresh(ctx); err != nil {
		return domain.Table{}, err
	}

	table, err := s.store.ReadSnapshot(s.today())
	if errors.Is(err, domain.ErrArtifactMissing) {
		if err := s.Refresh(ctx); err != nil {
			return domain.Table{}, err
		}
		return s.store.ReadSnapshot(s.today())
	}
	return table, err
}

// TimeSeries returns the weekly-resolution per-country time-series artifact,
// refreshing first when the staleness policy requires it.
func (s *Service) TimeSeries(ctx context.Context) ([]domain.TimeSeriesPoint, error) {
	if err := s.ensureFresh(ctx); err != nil {
		return nil, err
	}

	points, err := s.store.ReadTimeSeries(s.today())
	if errors.Is(err, domain.ErrArtifactMissing) {
		if err := s.Refresh(ctx); err != nil {
			return nil, err
		}
		return s.store.ReadTimeSeries(s.today())
	}
	return points, err
}

// RecentDailyDiffs returns the last 30 days of global day-over-day deltas,
// refreshing first when the staleness policy requires it.
func (s *Service) RecentDailyDiffs(ctx context.Context) ([]domain.DailyDifference, error) {
	if err := s.ensureFresh(ctx); err != nil {
		return nil, err
	}
	// ensureFresh already guarantees this artifact exists.
	return s.store.ReadDailyDifferences(s.today())
}

// Refresh runs one complete fetch-reconcile-persist cycle. All three
// artifacts are rebuilt in memory before anything is written; any failure
// aborts the cycle and leaves the prior artifacts authoritative.
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.RefreshTotal.Inc()
	s.metrics.RefreshRunning.Set(1)
	defer s.metrics.RefreshRunning.Set(0)

	start := s.clock.Now()
	events, err := s.runRefresh(ctx)
	if err != nil {
		s.metrics.RefreshErrors.Inc()
		return err
	}
	s.metrics.RefreshDuration.Observe(s.clock.Since(start).Seconds())
	s.metrics.LastRefreshUnix.Set(float64(s.clock.Now().Unix()))
	s.ready.Store(true)

	s.notify(ctx, events)
	return nil
}

func (s *Service) runRefresh(ctx context.Context) ([]domain.RefreshEvent, error) {
	s.logger.Info("refresh cycle started")

	snapshot, err := s.snapshots.FetchSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh snapshot: %w", err)
	}

	confirmed, err := s.series.FetchMetricSeries(ctx, domain.MetricConfirmed)
	if err != nil {
		return nil, fmt.Errorf("refresh time series: %w", err)
	}
	deaths, err := s.series.FetchMetricSeries(ctx, domain.MetricDeaths)
	if err != nil {
		return nil, fmt.Errorf("refresh time series: %w", err)
	}

	daily, err := domain.MergeSeries(confirmed, deaths)
	if err != nil {
		return nil, fmt.Errorf("refresh time series: %w", err)
	}
	daily = domain.HarmonizeCountryNames(daily)

	// Deltas come from the full-resolution daily series; the weekly
	// down-sample would destroy day-over-day precision.
	diffs := domain.BuildDailyDifferences(daily, DailyDifferenceWindow)
	weekly := domain.DownsampleWeekly(daily)
	snapshot = domain.ExcludeAggregateRows(snapshot)

	if err := s.store.WriteSnapshot(snapshot); err != nil {
		return nil, err
	}
	if err := s.store.WriteTimeSeries(weekly); err != nil {
		return nil, err
	}
	if err := s.store.WriteDailyDifferences(diffs); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	artifactDate := now
	if len(diffs) > 0 {
		artifactDate = diffs[len(diffs)-1].Date
	}
	s.setStatus(Status{
		LastRefresh:  now,
		ArtifactDate: artifactDate,
		ArtifactRows: map[string]int{
			string(domain.ArtifactLatest):           len(snapshot.Rows),
			string(domain.ArtifactTimeSeries):       len(weekly),
			string(domain.ArtifactDailyDifferences): len(diffs),
		},
	})

	s.logger.Info("refresh cycle complete",
		"snapshot_rows", len(snapshot.Rows),
		"time_series_rows", len(weekly),
		"daily_diff_rows", len(diffs),
		"artifact_date", artifactDate.Format(time.DateOnly),
	)

	return []domain.RefreshEvent{
		{Artifact: domain.ArtifactLatest, Rows: len(snapshot.Rows), LastDate: artifactDate, RefreshedAt: now},
		{Artifact: domain.ArtifactTimeSeries, Rows: len(weekly), LastDate: artifactDate, RefreshedAt: now},
		{Artifact: domain.ArtifactDailyDifferences, Rows: len(diffs), LastDate: artifactDate, RefreshedAt: now},
	}, nil
}

// notify publishes refresh-completed events. Failures are logged, not
// propagated: the artifacts are already durable.
func (s *Service) notify(ctx context.Context, events []domain.RefreshEvent) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishRefresh(ctx, events); err != nil {
		s.logger.Warn("refresh notification failed", "error", err)
		return
	}
	s.metrics.RefreshesSent.Add(float64(len(events)))
}

// Run re-checks artifact staleness on the configured interval until the
// context is cancelled. Failed cycles retry with exponential backoff so an
// upstream outage does not produce a tight fetch loop.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("refresh loop started", "interval", s.interval)

	const (
		initialBackoff = 200 * time.Millisecond
		maxBackoff     = 5 * time.Minute
	)
	backoff := initialBackoff

	for {
		wait := s.interval
		err := s.RefreshIfStale(ctx)
		switch {
		case ctx.Err() != nil:
			s.logger.Info("refresh loop stopping", "reason", ctx.Err())
			return nil
		case err != nil:
			s.logger.Error("refresh cycle failed", "error", err, "retry_in", backoff)
			wait = backoff
			backoff = nextBackoff(backoff, maxBackoff)
		default:
			backoff = initialBackoff
		}

		select {
		case <-ctx.Done():
			s.logger.Info("refresh loop stopping", "reason", ctx.Err())
			return nil
		case <-s.clock.After(wait):
		}
	}
}

// RefreshIfStale refreshes only when the persisted artifacts are missing or
// stale per the staleness policy.
func (s *Service) RefreshIfStale(ctx context.Context) error {
	asOf := s.today()
	last, err := s.lastKnownDate(asOf)
	switch {
	case errors.Is(err, domain.ErrArtifactMissing):
		return s.Refresh(ctx)
	case err != nil:
		return err
	}

	if domain.IsStale(last, asOf) {
		return s.Refresh(ctx)
	}
	s.ready.Store(true)
	return nil
}

// CheckReadiness reports whether artifacts are available to serve. Used by
// the ops server's /readyz endpoint.
func (s *Service) CheckReadiness(_ context.Context) error {
	if s.ready.Load() {
		return nil
	}
	if _, err := s.lastKnownDate(s.today()); err != nil {
		return fmt.Errorf("artifacts not yet available: %w", err)
	}
	s.ready.Store(true)
	return nil
}

// Status returns the freshness summary for the ops surface.
func (s *Service) Status() Status {
	st := s.getStatus()
	st.Stale = st.ArtifactDate.IsZero() || domain.IsStale(st.ArtifactDate, s.today())
	return st
}

// ensureFresh applies the staleness policy ahead of a read. A missing
// freshness marker forces a refresh and propagates its failure (there is
// nothing to serve); a stale-but-present one attempts a refresh and, when
// that fails, falls back to the prior artifacts, which remain authoritative.
func (s *Service) ensureFresh(ctx context.Context) error {
	asOf := s.today()
	last, err := s.lastKnownDate(asOf)
	switch {
	case errors.Is(err, domain.ErrArtifactMissing):
		return s.Refresh(ctx)
	case err != nil:
		return err
	}

	if !domain.IsStale(last, asOf) {
		return nil
	}
	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("refresh failed, serving prior artifacts",
			"error", err, "artifact_date", last.Format(time.DateOnly))
		s.metrics.StaleReadsServed.Inc()
	}
	return nil
}

// lastKnownDate reads the freshness marker: the newest date in the
// daily-differences artifact. All artifacts regenerate as one unit, so one
// marker covers the set; the weekly time-series artifact cannot serve here
// because its last bucket legitimately lags by up to six days.
func (s *Service) lastKnownDate(asOf time.Time) (time.Time, error) {
	diffs, err := s.store.ReadDailyDifferences(asOf)
	if err != nil {
		return time.Time{}, err
	}
	if len(diffs) == 0 {
		return time.Time{}, fmt.Errorf("%w: %s has no rows", domain.ErrArtifactMissing, domain.ArtifactDailyDifferences)
	}
	return diffs[len(diffs)-1].Date, nil
}

func (s *Service) today() time.Time {
	return domain.DateOnly(s.clock.Now())
}

func (s *Service) setStatus(st Status) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status = st
}

func (s *Service) getStatus() Status {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
