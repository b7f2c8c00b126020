package session

// Phase is the readiness phase of a Store.
type Phase uint8

const (
	// PhaseInitializing means the stored token has not been read yet.
	PhaseInitializing Phase = iota
	// PhaseReady means the token is known: either present or explicitly absent.
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseReady:
		return "ready"
	default:
		return "unknown"
	}
}

// State is the tagged authentication state derived from a Snapshot.
type State uint8

const (
	// StateInitializing: no routing decision may be made yet.
	StateInitializing State = iota
	// StateAuthenticated: Ready with a non-empty token.
	StateAuthenticated
	// StateUnauthenticated: Ready with the token explicitly absent.
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Snapshot is a consistent view of a Store at one instant.
// Token is always empty while Phase is PhaseInitializing.
type Snapshot struct {
	Phase Phase
	Token string
}

// State classifies the snapshot.
func (s Snapshot) State() State {
	if s.Phase != PhaseReady {
		return StateInitializing
	}
	if s.Token == "" {
		return StateUnauthenticated
	}
	return StateAuthenticated
}

// Authenticated reports whether the snapshot is Ready with a token present.
func (s Snapshot) Authenticated() bool {
	return s.State() == StateAuthenticated
}
