// Package events defines the payloads published through the outbox.
package events

import "time"

// WorkoutSynced is emitted after a workout and its samples are committed
// during a sync pass. Downstream consumers (share feed, presentation caches)
// key on WorkoutID.
type WorkoutSynced struct {
	WorkoutID   string    `json:"workout_id"`
	ExternalID  string    `json:"external_id"`
	Kind        string    `json:"kind"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	Indoor      bool      `json:"indoor"`
	DisplayName string    `json:"display_name"`
	SampleCount int       `json:"sample_count"`
	Created     bool      `json:"created"`
}

// SyncCompleted is emitted once per finished sync pass.
type SyncCompleted struct {
	WorkoutsProcessed int       `json:"workouts_processed"`
	WorkoutsFailed    int       `json:"workouts_failed"`
	SamplesInserted   int       `json:"samples_inserted"`
	StartedAt         time.Time `json:"started_at"`
	CompletedAt       time.Time `json:"completed_at"`
	FullRebuild       bool      `json:"full_rebuild"`
}
