package core

import (
	"context"

	"github.com/dkeye/VoiceSignal/internal/domain"
)

// SignalChannel abstracts the stanza transport toward remote parties.
// Owned by the adapter; Send is best-effort and fails when the route is down.
type SignalChannel interface {
	Send(msg domain.Message) error
	SendConferenceInfo(n domain.ConferenceNotice) error
}

// CapabilityQuerier performs a feature query on the wire.
type CapabilityQuerier interface {
	QueryCapabilities(ctx context.Context, entity domain.Address) (domain.FeatureSet, error)
}

// InboundHandler receives everything the channel decodes.
type InboundHandler interface {
	HandleMessage(ctx context.Context, msg domain.Message)
	HandleConferenceInfo(ctx context.Context, n domain.ConferenceNotice)
	HandlePresence(p domain.Presence)
}
