// Package domain defines the business logic for the route service.
package domain

import (
	"fmt"
	"time"
)

// Workout is the canonical route record stored in Postgres. ExternalID is
// the stable identifier assigned by the health data source and is the sole
// matching key for upserts.
type Workout struct {
	ID          string
	ExternalID  string
	Kind        ActivityKind
	StartedAt   time.Time
	EndedAt     time.Time
	Indoor      bool
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// GeoSample is one timestamped location reading on a workout's recorded
// path. A workout with zero or one sample has no drawable path but is still
// a valid record.
type GeoSample struct {
	Latitude   float64
	Longitude  float64
	CapturedAt time.Time
}

// DateRange is an inclusive time window. The zero value is the "all time"
// sentinel: callers that want a full-history pass pass AllTime().
type DateRange struct {
	Start time.Time
	End   time.Time
}

// AllTime returns the sentinel range covering the full workout history.
func AllTime() DateRange {
	return DateRange{}
}

// IsAllTime reports whether the range is the full-history sentinel.
func (r DateRange) IsAllTime() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// SyncOutcome summarises one completed sync pass. The counts exist purely
// for progress reporting, not for reconciliation.
type SyncOutcome struct {
	WorkoutsProcessed int
	WorkoutsFailed    int
	SamplesInserted   int
	StartedAt         time.Time
	CompletedAt       time.Time
	// FullRebuild is set when the pass was a clear-and-resync rather than an
	// incremental window sync.
	FullRebuild bool
}

// DefaultDisplayName generates the name given to a workout on first sync,
// e.g. "Run on Jun 3, 2025 at 10:02 AM". User edits are preserved on
// subsequent passes.
func DefaultDisplayName(kind ActivityKind, start time.Time) string {
	return fmt.Sprintf("%s on %s", kind.Label(), start.Format("Jan 2, 2006 at 3:04 PM"))
}
