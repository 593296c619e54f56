package cycle

// State is the step a wake cycle is in. Every boot starts at StateBooting and
// ends at StateSleeping.
type State int

const (
	StateBooting State = iota
	StateAcquiringTime
	StateFetchingSunData
	StateAwaitingPhaseBoundary
	StateDraining
	StateSleeping
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateBooting:
		return "booting"
	case StateAcquiringTime:
		return "acquiring_time"
	case StateFetchingSunData:
		return "fetching_sun_data"
	case StateAwaitingPhaseBoundary:
		return "awaiting_phase_boundary"
	case StateDraining:
		return "draining"
	case StateSleeping:
		return "sleeping"
	default:
		return "unknown"
	}
}
