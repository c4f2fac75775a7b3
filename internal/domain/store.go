package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSourceUnavailable indicates the health data source denied
	// authorization or is unreachable. The sync pass aborts; callers may
	// retry a fresh pass.
	ErrSourceUnavailable = errors.New("health data source unavailable")
	// ErrSyncInProgress is returned when a sync pass is requested while
	// another is in flight. Concurrent passes could race find-or-create for
	// the same external identifier, so the second call is coalesced away.
	ErrSyncInProgress = errors.New("sync pass already in progress")
	// ErrWorkoutNotFound is returned when a workout cannot be located.
	ErrWorkoutNotFound = errors.New("workout not found")
	// ErrClearFailed indicates the delete phase of a rebuild failed and the
	// fetch phase was never entered.
	ErrClearFailed = errors.New("route store clear failed")
	// ErrInvalidDisplayName rejects empty or blank workout names.
	ErrInvalidDisplayName = errors.New("display name must not be blank")
)

// Cursor models the keyset pagination token over (started_at, id).
type Cursor struct {
	StartedAt time.Time
	ID        string
}

// ListFilter narrows workout listings.
type ListFilter struct {
	Kind *ActivityKind
}

// UpsertResult reports what a single find-or-create upsert did.
type UpsertResult struct {
	WorkoutID       string
	Created         bool
	SamplesInserted int
}

// WorkoutStore captures persistence operations for workout records and their
// geo samples. Implementations must make Upsert atomic: a workout's metadata
// and samples become visible to readers together, never metadata without
// samples.
type WorkoutStore interface {
	FindByExternalID(ctx context.Context, externalID string) (*Workout, error)
	// Upsert inserts or refreshes the workout keyed by ExternalID and
	// replaces its samples in the same transaction. An existing record keeps
	// its DisplayName.
	Upsert(ctx context.Context, workout Workout, samples []GeoSample) (UpsertResult, error)
	Get(ctx context.Context, workoutID string) (*Workout, error)
	List(ctx context.Context, filter ListFilter, cursor *Cursor, limit int) ([]Workout, *Cursor, error)
	Samples(ctx context.Context, workoutID string) ([]GeoSample, error)
	Rename(ctx context.Context, workoutID, displayName string) error
	// DeleteAll removes every workout and sample in one transaction and
	// returns the number of workouts removed.
	DeleteAll(ctx context.Context) (int64, error)
	Count(ctx context.Context) (int, error)
	LastSyncCompletedAt(ctx context.Context) (*time.Time, error)
	RecordSyncCompleted(ctx context.Context, outcome SyncOutcome) error
}
