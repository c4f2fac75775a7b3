package domain

// ActivityKind is the closed set of workout kinds the route store tracks.
// Platform raw codes are converted exactly once, at the ingestion boundary;
// nothing past the health-source edge sees a raw code.
type ActivityKind string

const (
	KindWalking ActivityKind = "walking"
	KindRunning ActivityKind = "running"
	KindCycling ActivityKind = "cycling"
	KindOther   ActivityKind = "other"
)

// Raw platform activity-type codes as delivered by the health gateway.
const (
	rawCodeWalking = "52"
	rawCodeRunning = "37"
	rawCodeCycling = "13"
)

// ParseKind maps a platform raw activity-type code to an ActivityKind.
// Unknown codes collapse to KindOther.
func ParseKind(raw string) ActivityKind {
	switch raw {
	case rawCodeWalking, string(KindWalking):
		return KindWalking
	case rawCodeRunning, string(KindRunning):
		return KindRunning
	case rawCodeCycling, string(KindCycling):
		return KindCycling
	default:
		return KindOther
	}
}

// ParseKindFilter validates a user-supplied kind value for list filtering.
func ParseKindFilter(value string) (ActivityKind, bool) {
	switch ActivityKind(value) {
	case KindWalking, KindRunning, KindCycling, KindOther:
		return ActivityKind(value), true
	default:
		return "", false
	}
}

// TrackedKinds returns the kinds the synchronizer pulls from the health
// source. Sessions of any other kind never produce a workout record.
func TrackedKinds() []ActivityKind {
	return []ActivityKind{KindWalking, KindRunning, KindCycling}
}

// Tracked reports whether the kind is one of the synced kinds.
func (k ActivityKind) Tracked() bool {
	switch k {
	case KindWalking, KindRunning, KindCycling:
		return true
	default:
		return false
	}
}

// Label returns the user-facing noun used in generated display names.
func (k ActivityKind) Label() string {
	switch k {
	case KindWalking:
		return "Walk"
	case KindRunning:
		return "Run"
	case KindCycling:
		return "Ride"
	default:
		return "Workout"
	}
}
