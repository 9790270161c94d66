package domain

import "time"

// IsStale reports whether the persisted artifacts must be regenerated before
// a read is served. The historical source publishes once daily for the prior
// day, so a gap of exactly one calendar day is expected; only a gap of two or
// more days is stale. Advisory: the orchestration layer decides when to act
// on it, this never fetches or writes.
func IsStale(artifactLast, current time.Time) bool {
	return DateOnly(current).Sub(DateOnly(artifactLast)) > 24*time.Hour
}
