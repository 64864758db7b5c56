package coordinator

// State is where a single hook invocation ended up.
type State int

const (
	StateStart State = iota
	StateParsed
	StateIdentified
	// StateSuppressed means the fingerprint was accepted inside the window.
	StateSuppressed
	// StateGuardDenied means another process holds the execution guard.
	StateGuardDenied
	StateProceeding
	StateLogged
	StateDispatched
	StateDone
)

var stateNames = [...]string{
	StateStart:       "start",
	StateParsed:      "parsed",
	StateIdentified:  "identified",
	StateSuppressed:  "suppressed",
	StateGuardDenied: "guard-denied",
	StateProceeding:  "proceeding",
	StateLogged:      "logged",
	StateDispatched:  "dispatched",
	StateDone:        "done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Skipped reports whether the invocation ended early without error because
// another process owns or recently owned the work.
func (s State) Skipped() bool {
	return s == StateSuppressed || s == StateGuardDenied
}
