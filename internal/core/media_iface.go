package core

import (
	"context"

	"github.com/dkeye/VoiceSignal/internal/domain"
)

// MediaHandler is the slice of the media layer the signaling side consumes.
type MediaHandler interface {
	// HasDevice reports whether a local capture device exists for mt.
	HasDevice(mt domain.MediaType) bool
	// Direction is the locally preferred direction for mt.
	Direction(mt domain.MediaType) domain.Direction
	// SSRC of the local stream for mt, zero when unknown.
	SSRC(mt domain.MediaType) uint32
	// Start brings media up once both sides of the negotiation are known.
	Start(ctx context.Context, local, remote []domain.Content) error
}
