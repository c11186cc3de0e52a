package session

import "fmt"

// State is the lifecycle state of a session.
type State int

const (
	StateUninitialized State = iota
	StateConfiguring
	StateProvisioned
	StateOpen
	StateTerminating
	StateSaved
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConfiguring:
		return "configuring"
	case StateProvisioned:
		return "provisioned"
	case StateOpen:
		return "open"
	case StateTerminating:
		return "terminating"
	case StateSaved:
		return "saved"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// validNext lists the allowed transitions. Anything else is a programming
// error.
var validNext = map[State][]State{
	StateUninitialized: {StateConfiguring},
	StateConfiguring:   {StateProvisioned, StateUninitialized},
	StateProvisioned:   {StateOpen},
	StateOpen:          {StateTerminating},
	StateTerminating:   {StateSaved, StateClosed},
}

// transition advances the manager's state, panicking on an invalid move.
func (m *Manager) transition(to State) {
	for _, next := range validNext[m.state] {
		if next == to {
			m.state = to
			return
		}
	}
	panic(fmt.Sprintf("session: invalid state transition %s -> %s", m.state, to))
}
