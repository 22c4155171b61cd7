package portal

import "fmt"

// SessionState tracks progress through one report-acquisition attempt.
// Transitions are strictly forward; the only shortcut is jumping to
// Exported when a finished artifact is already sitting in the download
// directory.
type SessionState int

const (
	Unauthenticated SessionState = iota
	Authenticated
	ReportParameterized
	ReportGenerated
	Exported
	LoggedOut
)

func (s SessionState) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case ReportParameterized:
		return "report-parameterized"
	case ReportGenerated:
		return "report-generated"
	case Exported:
		return "exported"
	case LoggedOut:
		return "logged-out"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// advance moves the state machine forward. A backward or repeated
// transition indicates a programming error and is rejected.
func advance(from, to SessionState) (SessionState, error) {
	if to <= from {
		return from, fmt.Errorf("illegal session transition %s → %s", from, to)
	}
	return to, nil
}

// SessionError reports that one step of the remote acquisition could not
// progress within its wait budget.
type SessionError struct {
	State SessionState
	Err   error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session stalled at %s: %v", e.State, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }
