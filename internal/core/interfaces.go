package core

import "github.com/dkeye/VoiceSignal/internal/domain"

// CapabilityService answers feature questions about remote entities.
type CapabilityService interface {
	SupportsFeature(entity domain.Address, feature string) bool
}

// Roster exposes presence of contacts, used by relay discovery.
type Roster interface {
	OnlineResources() []domain.Address
}

// CallInfo is a read-only view for APIs.
type CallInfo struct {
	ID              domain.CallID `json:"id"`
	ConferenceFocus bool          `json:"conference_focus"`
	Peers           []PeerInfo    `json:"peers"`
}

type PeerInfo struct {
	SID     domain.SessionID          `json:"sid"`
	Address domain.Address            `json:"address"`
	State   domain.PeerState          `json:"state"`
	Reason  string                    `json:"reason,omitempty"`
	Members []domain.ConferenceMember `json:"members,omitempty"`
}
