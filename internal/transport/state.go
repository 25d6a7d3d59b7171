package transport

// State is the transport state machine's current mode.
type State int

const (
	// StateIdle indicates no audio is loaded.
	StateIdle State = iota
	// StateLoading indicates an audio file load is in flight.
	StateLoading
	// StateReady indicates audio is loaded and positioned but not playing.
	StateReady
	// StatePlaying indicates audio is actively playing.
	StatePlaying
	// StatePaused indicates playback is paused at a known position.
	StatePaused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// transitions lists the legal state changes. Playing and paused re-enter
// loading when the next entry's audio file differs from the loaded one.
var transitions = map[State][]State{
	StateIdle:    {StateLoading},
	StateLoading: {StateReady, StateIdle},
	StateReady:   {StatePlaying, StatePaused, StateLoading, StateIdle},
	StatePlaying: {StatePaused, StateLoading, StateIdle},
	StatePaused:  {StatePlaying, StateLoading, StateIdle},
}

// canTransition reports whether moving from s to next is legal.
func (s State) canTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
