package app

import (
	"context"
	"encoding/binary"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceSignal/internal/domain"
)

// StaticMedia is a media handler with a fixed device set. The node only
// signals, so Start records the negotiated streams and nothing else.
type StaticMedia struct {
	devices map[domain.MediaType]bool
	ssrc    map[domain.MediaType]uint32
}

func NewStaticMedia(audio, video bool) *StaticMedia {
	m := &StaticMedia{
		devices: map[domain.MediaType]bool{domain.MediaAudio: audio, domain.MediaVideo: video},
		ssrc:    make(map[domain.MediaType]uint32, 2),
	}
	for _, mt := range []domain.MediaType{domain.MediaAudio, domain.MediaVideo} {
		id := uuid.New()
		m.ssrc[mt] = binary.BigEndian.Uint32(id[:4])
	}
	return m
}

func (m *StaticMedia) HasDevice(mt domain.MediaType) bool { return m.devices[mt] }

func (m *StaticMedia) Direction(mt domain.MediaType) domain.Direction {
	return domain.DirectionFrom(m.devices[mt], true)
}

func (m *StaticMedia) SSRC(mt domain.MediaType) uint32 { return m.ssrc[mt] }

func (m *StaticMedia) Start(_ context.Context, local, remote []domain.Content) error {
	for _, c := range local {
		r := domain.FindContent(remote, c.Name)
		if r == nil {
			continue
		}
		log.Info().
			Str("module", "app.media").
			Str("content", c.Name).
			Str("senders", string(c.Senders)).
			Uint32("ssrc", c.SSRC).
			Uint32("remote_ssrc", r.SSRC).
			Msg("media negotiated")
	}
	return nil
}
