package voice

// State is the voice interaction state of the module.
type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateProcessing State = "processing"
	StateSpeaking   State = "speaking"
)

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StateIdle, StateListening, StateProcessing, StateSpeaking:
		return true
	}
	return false
}

// intent is a locally initiated state change request.
type intent int

const (
	intentPress intent = iota
	intentRelease
	intentPlaybackDone
)

// transition is the local transition function. It is total: pairs it does
// not define leave the state unchanged and report false.
func transition(from State, in intent) (State, bool) {
	switch {
	case from == StateIdle && in == intentPress:
		return StateListening, true
	case from == StateListening && in == intentRelease:
		return StateProcessing, true
	case from == StateSpeaking && in == intentPlaybackDone:
		return StateIdle, true
	}
	return from, false
}
