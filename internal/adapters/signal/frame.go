package signal

import (
	"github.com/dkeye/VoiceSignal/internal/app/relay"
	"github.com/dkeye/VoiceSignal/internal/domain"
)

const (
	FrameSession        = "session"
	FrameConferenceInfo = "conference-info"
	FramePresence       = "presence"
	FramePing           = "ping"
	FramePong           = "pong"
	FrameDiscoInfo      = "disco-info"
	FrameDiscoItems     = "disco-items"
	FrameServices       = "jn-services"
	FrameChannel        = "jn-channel"
	FrameResult         = "result"
	FrameError          = "error"
)

// Frame is the JSON envelope of everything on a signaling connection.
// Queries and their result or error share ID.
type Frame struct {
	Type string         `json:"type"`
	ID   string         `json:"id,omitempty"`
	From domain.Address `json:"from,omitempty"`
	To   domain.Address `json:"to,omitempty"`

	Message  *domain.Message          `json:"message,omitempty"`
	Notice   *domain.ConferenceNotice `json:"notice,omitempty"`
	Presence *domain.Presence         `json:"presence,omitempty"`

	Features []string         `json:"features,omitempty"`
	Items    []domain.Address `json:"items,omitempty"`
	Services *relay.Services  `json:"services,omitempty"`
	Channel  *relay.Channel   `json:"channel,omitempty"`
	Protocol string           `json:"protocol,omitempty"`

	Error string `json:"error,omitempty"`
}
