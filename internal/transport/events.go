package transport

// Event is the interface implemented by all transport events.
type Event interface {
	isTransportEvent()
}

// Emitter receives transport events. The session loop fans them out to the
// narration and progress layers.
type Emitter func(Event)

// StateChanged is emitted on every state machine transition.
type StateChanged struct {
	From State
	To   State
	// Continuation marks transitions that are part of an entry change the
	// transport resumes from on its own, such as playing->loading when a
	// section crossing switches audio files. Playback has not stopped from
	// the listener's point of view.
	Continuation bool
}

func (StateChanged) isTransportEvent() {}

// EntryChanged is emitted when the transport moves to a new alignment entry,
// whether by natural advance, seek, or chapter change.
type EntryChanged struct {
	Section int
	Entry   int
}

func (EntryChanged) isTransportEvent() {}

// Tick is emitted on each progress-timer fire while playing.
type Tick struct {
	Section int
	Entry   int
	// AudioTime is the playhead offset into the entry's audio file, seconds.
	AudioTime float64
}

func (Tick) isTransportEvent() {}

// Finished is emitted once when the last aligned entry of the book completes.
type Finished struct{}

func (Finished) isTransportEvent() {}

// LoadFailed is emitted when an audio file fails to load. The transport
// drops to idle but keeps its position bookkeeping intact.
type LoadFailed struct {
	Path string
	Err  error
}

func (LoadFailed) isTransportEvent() {}
