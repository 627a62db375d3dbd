package call

import "github.com/dkeye/VoiceSignal/internal/domain"

type EventKind int

const (
	CallInitiated EventKind = iota
	CallReceived
	PeerAdded
	PeerRemoved
	PeerStateChanged
	FocusChanged
	MembersChanged
	MemberError
)

var eventNames = [...]string{
	"call-initiated", "call-received", "peer-added", "peer-removed",
	"peer-state-changed", "focus-changed", "members-changed", "member-error",
}

func (k EventKind) String() string {
	if k >= 0 && int(k) < len(eventNames) {
		return eventNames[k]
	}
	return "unknown"
}

type Event struct {
	Kind EventKind
	Call *Call
	Peer *Peer

	// PeerStateChanged
	Old, New domain.PeerState
	Reason   string

	// CallReceived: offered direction per media, seen from our side.
	Directions map[domain.MediaType]domain.Direction
}
