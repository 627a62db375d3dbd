package domain

type MediaType string

const (
	MediaAudio MediaType = "audio"
	MediaVideo MediaType = "video"
)

// Direction is a media direction seen from the local side.
type Direction string

const (
	DirectionInactive Direction = "inactive"
	DirectionSendOnly Direction = "sendonly"
	DirectionRecvOnly Direction = "recvonly"
	DirectionSendRecv Direction = "sendrecv"
)

func (d Direction) Sends() bool    { return d == DirectionSendOnly || d == DirectionSendRecv }
func (d Direction) Receives() bool { return d == DirectionRecvOnly || d == DirectionSendRecv }

// Reverse turns the remote view of a stream into the local one.
func (d Direction) Reverse() Direction {
	switch d {
	case DirectionSendOnly:
		return DirectionRecvOnly
	case DirectionRecvOnly:
		return DirectionSendOnly
	case DirectionSendRecv, DirectionInactive:
		return d
	}
	return DirectionInactive
}

// And keeps only what both directions allow.
func (d Direction) And(o Direction) Direction {
	return DirectionFrom(d.Sends() && o.Sends(), d.Receives() && o.Receives())
}

func DirectionFrom(send, recv bool) Direction {
	switch {
	case send && recv:
		return DirectionSendRecv
	case send:
		return DirectionSendOnly
	case recv:
		return DirectionRecvOnly
	default:
		return DirectionInactive
	}
}

// Content is one negotiated media stream of a session.
type Content struct {
	Name       string     `json:"name"`
	Creator    string     `json:"creator,omitempty"`
	Media      MediaType  `json:"media"`
	Senders    Direction  `json:"senders,omitempty"`
	SSRC       uint32     `json:"ssrc,omitempty"`
	Encryption []string   `json:"encryption,omitempty"`
	Transport  *Transport `json:"transport,omitempty"`
}

// Transport is the transport extension attached to a content.
type Transport struct {
	Ufrag      string      `json:"ufrag,omitempty"`
	Pwd        string      `json:"pwd,omitempty"`
	Candidates []Candidate `json:"candidates,omitempty"`
}

type CandidateType string

const (
	CandidateHost  CandidateType = "host"
	CandidateSrflx CandidateType = "srflx"
	CandidatePrflx CandidateType = "prflx"
	CandidateRelay CandidateType = "relay"
)

const (
	ComponentRTP  = 1
	ComponentRTCP = 2
)

// Candidate is one address/port offered for a media component.
type Candidate struct {
	ID         string        `json:"id"`
	Component  int           `json:"component"`
	Foundation string        `json:"foundation"`
	Generation int           `json:"generation"`
	IP         string        `json:"ip"`
	Port       int           `json:"port"`
	Protocol   string        `json:"protocol"`
	Priority   uint32        `json:"priority"`
	Type       CandidateType `json:"type"`
	RelAddr    string        `json:"rel_addr,omitempty"`
	RelPort    int           `json:"rel_port,omitempty"`
}

// FindContent returns the content called name, or nil.
func FindContent(cs []Content, name string) *Content {
	for i := range cs {
		if cs[i].Name == name {
			return &cs[i]
		}
	}
	return nil
}

// FindMedia returns the first content carrying media type mt, or nil.
func FindMedia(cs []Content, mt MediaType) *Content {
	for i := range cs {
		if cs[i].Media == mt {
			return &cs[i]
		}
	}
	return nil
}

// FeatureSet is the set of protocol features an entity advertises.
type FeatureSet map[string]struct{}

func NewFeatureSet(features ...string) FeatureSet {
	fs := make(FeatureSet, len(features))
	for _, f := range features {
		fs[f] = struct{}{}
	}
	return fs
}

func (fs FeatureSet) Has(feature string) bool {
	_, ok := fs[feature]
	return ok
}

const (
	FeatureJingle      = "urn:xmpp:jingle:1"
	FeatureICEUDP      = "urn:xmpp:jingle:transports:ice-udp:1"
	FeatureRawUDP      = "urn:xmpp:jingle:transports:raw-udp:1"
	FeatureCoin        = "urn:xmpp:coin"
	FeatureJingleNodes = "http://jabber.org/protocol/jinglenodes"
	FeatureTransfer    = "urn:xmpp:jingle:transfer:0"
	FeatureInputEvents = "http://jitsi.org/protocol/inputevt"
)
