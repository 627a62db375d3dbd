package domain

import "fmt"

// PeerState is the session state of one call peer.
type PeerState int

const (
	StateUnknown PeerState = iota
	StateInitiatingCall
	StateConnecting
	StateAlertingRemoteSide
	StateIncomingCall
	StateConnected
	StateOnHold
	StateDisconnected
	StateFailed
)

var stateNames = map[PeerState]string{
	StateUnknown:            "UNKNOWN",
	StateInitiatingCall:     "INITIATING_CALL",
	StateConnecting:         "CONNECTING",
	StateAlertingRemoteSide: "ALERTING_REMOTE_SIDE",
	StateIncomingCall:       "INCOMING_CALL",
	StateConnected:          "CONNECTED",
	StateOnHold:             "ON_HOLD",
	StateDisconnected:       "DISCONNECTED",
	StateFailed:             "FAILED",
}

func (s PeerState) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "INVALID"
}

func (s PeerState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *PeerState) UnmarshalText(b []byte) error {
	for k, n := range stateNames {
		if n == string(b) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown peer state %q", b)
}

// IsTerminal reports whether no transition may leave s.
func (s PeerState) IsTerminal() bool {
	return s == StateDisconnected || s == StateFailed
}

// IsEstablished covers the states in which media is flowing or paused.
func (s PeerState) IsEstablished() bool {
	return s == StateConnected || s == StateOnHold
}

var transitions = map[PeerState][]PeerState{
	StateUnknown: {
		StateInitiatingCall, StateConnecting, StateIncomingCall,
		StateConnected, StateDisconnected, StateFailed,
	},
	StateInitiatingCall: {
		StateConnecting, StateAlertingRemoteSide, StateConnected, StateDisconnected, StateFailed,
	},
	StateConnecting: {
		StateAlertingRemoteSide, StateConnected, StateDisconnected, StateFailed,
	},
	StateAlertingRemoteSide: {StateConnected, StateDisconnected, StateFailed},
	StateIncomingCall:       {StateConnected, StateDisconnected, StateFailed},
	StateConnected:          {StateOnHold, StateDisconnected, StateFailed},
	StateOnHold:             {StateConnected, StateDisconnected, StateFailed},
}

// CanTransition reports whether s may move to next.
// Terminal states have no outgoing edges.
func (s PeerState) CanTransition(next PeerState) bool {
	for _, n := range transitions[s] {
		if n == next {
			return true
		}
	}
	return false
}
