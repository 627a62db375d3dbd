// Package coin keeps conference participants informed when we act as focus,
// and applies conference documents received from a remote focus.
package coin

import (
	"strconv"

	"github.com/dkeye/VoiceSignal/internal/app/call"
	"github.com/dkeye/VoiceSignal/internal/domain"
)

// EndpointStatus maps a peer state onto the conference endpoint status.
func EndpointStatus(s domain.PeerState) domain.EndpointStatus {
	switch s {
	case domain.StateAlertingRemoteSide:
		return domain.EndpointAlerting
	case domain.StateConnecting:
		return domain.EndpointPending
	case domain.StateConnected:
		return domain.EndpointConnected
	case domain.StateDisconnected, domain.StateFailed:
		return domain.EndpointDisconnected
	case domain.StateIncomingCall:
		return domain.EndpointDialingIn
	case domain.StateInitiatingCall:
		return domain.EndpointDialingOut
	case domain.StateOnHold:
		return domain.EndpointOnHold
	}
	return ""
}

// Snapshot builds the full conference document of c: the local user first,
// then one user per peer.
func Snapshot(c *call.Call) *domain.ConferenceInfo {
	self := c.Local()
	doc := domain.NewConferenceInfo(string(self))
	peers := c.Peers()
	doc.UserCount = 1 + len(peers)

	var media []domain.ConferenceMedia
	if m := c.Media(); m != nil {
		for _, mt := range []domain.MediaType{domain.MediaAudio, domain.MediaVideo} {
			d := m.Direction(mt)
			if !m.HasDevice(mt) || (mt == domain.MediaVideo && !c.LocalVideoAllowed()) {
				d = domain.DirectionFrom(false, d.Receives())
			}
			media = append(media, mediaEntry(mt, m.SSRC(mt), d))
		}
	}
	doc.Users.List = append(doc.Users.List, domain.ConferenceUser{
		Entity:      string(self.Bare()),
		DisplayText: self.Local(),
		Endpoints: []domain.Endpoint{{
			Entity: string(self),
			Status: domain.EndpointConnected,
			Media:  media,
		}},
	})

	for _, p := range peers {
		doc.Users.List = append(doc.Users.List, peerUser(p))
	}
	return doc
}

func peerUser(p *call.Peer) domain.ConferenceUser {
	addr := p.Address()
	ep := domain.Endpoint{
		Entity: string(addr),
		Status: EndpointStatus(p.State()),
	}
	for _, c := range p.RemoteContents() {
		d := c.Senders
		if d == "" {
			d = domain.DirectionSendRecv
		}
		ep.Media = append(ep.Media, mediaEntry(c.Media, c.SSRC, d))
	}
	return domain.ConferenceUser{
		Entity:      string(addr),
		DisplayText: addr.Local(),
		Endpoints:   []domain.Endpoint{ep},
	}
}

func mediaEntry(mt domain.MediaType, ssrc uint32, d domain.Direction) domain.ConferenceMedia {
	m := domain.ConferenceMedia{ID: string(mt), Type: mt, Status: d}
	if ssrc != 0 {
		m.SrcID = strconv.FormatUint(uint64(ssrc), 10)
	}
	return m
}
