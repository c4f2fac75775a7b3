package domain

import (
	"context"
	"strings"
)

// Service orchestrates read and edit workflows over the route store.
type Service struct {
	store WorkoutStore
}

// NewService constructs a Service.
func NewService(store WorkoutStore) *Service {
	return &Service{store: store}
}

// GetWorkout fetches a workout by ID.
func (s *Service) GetWorkout(ctx context.Context, workoutID string) (*Workout, error) {
	workout, err := s.store.Get(ctx, workoutID)
	if err != nil {
		return nil, err
	}
	if workout == nil {
		return nil, ErrWorkoutNotFound
	}
	return workout, nil
}

// ListWorkouts fetches workouts with cursor pagination, newest first.
func (s *Service) ListWorkouts(ctx context.Context, filter ListFilter, cursor *Cursor, limit int) ([]Workout, *Cursor, error) {
	return s.store.List(ctx, filter, cursor, limit)
}

// GetRoute returns a workout's samples in capture order. The workout must
// exist; an empty sample list is a valid result (no drawable path).
func (s *Service) GetRoute(ctx context.Context, workoutID string) ([]GeoSample, error) {
	workout, err := s.store.Get(ctx, workoutID)
	if err != nil {
		return nil, err
	}
	if workout == nil {
		return nil, ErrWorkoutNotFound
	}
	return s.store.Samples(ctx, workoutID)
}

// RenameWorkout applies a user edit to the display name. The edited name
// survives later sync passes.
func (s *Service) RenameWorkout(ctx context.Context, workoutID, displayName string) (*Workout, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, ErrInvalidDisplayName
	}
	if err := s.store.Rename(ctx, workoutID, displayName); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, workoutID)
}
