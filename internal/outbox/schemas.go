package outbox

const workoutSyncedSchema = `{
  "type": "object",
  "title": "WorkoutSynced",
  "properties": {
    "workout_id": {"type": "string"},
    "external_id": {"type": "string"},
    "kind": {"type": "string"},
    "started_at": {"type": "string", "format": "date-time"},
    "ended_at": {"type": "string", "format": "date-time"},
    "indoor": {"type": "boolean"},
    "display_name": {"type": "string"},
    "sample_count": {"type": "integer"},
    "created": {"type": "boolean"}
  },
  "required": ["workout_id", "external_id", "kind", "started_at", "ended_at", "indoor", "display_name", "sample_count", "created"],
  "additionalProperties": false
}`

const syncCompletedSchema = `{
  "type": "object",
  "title": "SyncCompleted",
  "properties": {
    "workouts_processed": {"type": "integer"},
    "workouts_failed": {"type": "integer"},
    "samples_inserted": {"type": "integer"},
    "started_at": {"type": "string", "format": "date-time"},
    "completed_at": {"type": "string", "format": "date-time"},
    "full_rebuild": {"type": "boolean"}
  },
  "required": ["workouts_processed", "workouts_failed", "samples_inserted", "started_at", "completed_at"],
  "additionalProperties": false
}`
