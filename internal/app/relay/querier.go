package relay

import (
	"context"

	"github.com/dkeye/VoiceSignal/internal/domain"
)

// Services is the answer of a Jingle Nodes services query.
type Services struct {
	Relays   []Entry `json:"relays,omitempty"`
	Trackers []Entry `json:"trackers,omitempty"`
}

// Querier performs the network queries discovery needs.
type Querier interface {
	// QueryServices asks node for the relays and trackers it knows.
	QueryServices(ctx context.Context, node domain.Address) (Services, error)
	// QueryItems lists the service items hosted under entity.
	QueryItems(ctx context.Context, entity domain.Address) ([]domain.Address, error)
}

type HostPort struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Channel is one relay allocation: a media pair and its companion pair.
type Channel struct {
	ID        string   `json:"id,omitempty"`
	Media     HostPort `json:"media"`
	Companion HostPort `json:"companion"`
}

// Allocator requests channels from a relay.
type Allocator interface {
	AllocateChannel(ctx context.Context, relay domain.Address, protocol string) (Channel, error)
}
