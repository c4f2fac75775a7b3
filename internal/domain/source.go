package domain

import (
	"context"
	"time"
)

// WorkoutSession is one recorded exercise activity as reported by the health
// data source, before it has been reconciled into the store.
type WorkoutSession struct {
	ExternalID string
	Kind       ActivityKind
	StartedAt  time.Time
	EndedAt    time.Time
	Indoor     bool
}

// HealthSource is the external health-data collaborator. Implementations are
// black boxes that may fail with permission-denied or transient I/O errors;
// both surface as ErrSourceUnavailable.
type HealthSource interface {
	FetchWorkouts(ctx context.Context, kinds []ActivityKind, window DateRange) ([]WorkoutSession, error)
	FetchSamples(ctx context.Context, session WorkoutSession) ([]GeoSample, error)
}
