// Package transport coordinates local candidate harvesting for one call peer.
package transport

import (
	"context"

	"github.com/dkeye/VoiceSignal/internal/domain"
)

// Request describes one transport component to harvest for.
type Request struct {
	Peer      domain.Address
	Content   string
	Media     domain.MediaType
	Component int
	// Components is how many components the round harvests per content.
	Components int
	Generation int
}

// Harvester produces local candidates for a single component.
// Returned candidates need not carry an id or generation; the manager assigns both.
type Harvester interface {
	Name() string
	Harvest(ctx context.Context, req Request) ([]domain.Candidate, error)
}

// Trickler is implemented by harvesters whose answers arrive late. When the
// caller supplies a TransportInfoSender their candidates are pushed right away
// instead of waiting for wrap-up.
type Trickler interface {
	Trickle() bool
}

// TransportInfoSender pushes candidates for one content outside the main offer/answer.
type TransportInfoSender interface {
	SendTransportInfo(content domain.Content) error
}
