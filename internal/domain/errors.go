package domain

import "errors"

// Sentinel errors for the refresh pipeline. Call sites wrap these with
// fmt.Errorf("...: %w", err) so callers can branch with errors.Is while
// keeping the failing context in the message.
var (
	// ErrSourceUnavailable marks a network failure, a non-tabular payload,
	// or mutually inconsistent payloads from an upstream feed. A refresh
	// cycle that hits it aborts; the prior artifacts stay authoritative.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrInvalidMetric marks a request for a metric outside the enumerated
	// set. This is a programmer error, not an upstream condition.
	ErrInvalidMetric = errors.New("invalid metric")

	// ErrWriteFailed marks a filesystem or permission failure while
	// persisting an artifact. The previously persisted file is untouched.
	ErrWriteFailed = errors.New("artifact write failed")

	// ErrArtifactMissing marks a read for which no cached or on-disk data
	// exists. The orchestration layer decides whether to trigger a refresh.
	ErrArtifactMissing = errors.New("artifact missing")
)
