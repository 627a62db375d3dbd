// Package call holds calls and the per-peer session state machine.
package call

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"

	"github.com/dkeye/VoiceSignal/internal/app/transport"
	"github.com/dkeye/VoiceSignal/internal/core"
	"github.com/dkeye/VoiceSignal/internal/domain"
)

// Transport is the harvesting side a peer drives. *transport.Manager implements it.
type Transport interface {
	StartCandidateHarvest(theirOffer, ourAnswer []domain.Content, sender transport.TransportInfoSender) error
	StartOfferHarvest(ourOffer []domain.Content, sender transport.TransportInfoSender) error
	WrapupCandidateHarvest(ctx context.Context) ([]domain.Content, error)
	AddRemoteCandidates(contents []domain.Content) int
	RemoveContent(name string)
	Generation() int
	Close()
}

// Deps are the collaborators shared by every peer of a call.
type Deps struct {
	Local      domain.Address
	Channel    core.SignalChannel
	Media      core.MediaHandler
	Events     *core.Bus[Event]
	Transports func(peer domain.Address) Transport
	// Encryption lists the methods we offer and accept.
	Encryption []string
	// Bind is called once a peer has a session id, before anything is sent with
	// it. It runs with the peer locked and must not call back into the peer.
	Bind func(domain.SessionID, *Peer)
	// TransportWait bounds how long transport-info waits for session-initiate processing.
	TransportWait time.Duration
}

// Call groups the peers sharing one signaling context.
type Call struct {
	id   domain.CallID
	deps Deps

	mu              sync.RWMutex
	peers           []*Peer
	focus           bool
	videoAllowed    bool
	inputEventAware bool

	logger zerolog.Logger
}

func New(deps Deps) *Call {
	if deps.Events == nil {
		deps.Events = core.NewBus[Event]()
	}
	id := domain.NewCallID()
	return &Call{
		id:     id,
		deps:   deps,
		logger: log.With().Str("module", "call").Str("call", string(id)).Logger(),
	}
}

func (c *Call) ID() domain.CallID        { return c.id }
func (c *Call) Local() domain.Address    { return c.deps.Local }
func (c *Call) Media() core.MediaHandler { return c.deps.Media }

func (c *Call) Peers() []*Peer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.peers)
}

func (c *Call) IsConferenceFocus() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.focus
}

// SetConferenceFocus flips the focus flag and reports whether it changed.
func (c *Call) SetConferenceFocus(focus bool) bool {
	c.mu.Lock()
	changed := c.focus != focus
	c.focus = focus
	c.mu.Unlock()
	if changed {
		c.logger.Info().Bool("focus", focus).Msg("conference focus changed")
		c.deps.Events.Publish(Event{Kind: FocusChanged, Call: c})
	}
	return changed
}

func (c *Call) LocalVideoAllowed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.videoAllowed
}

func (c *Call) SetLocalVideoAllowed(allowed bool) {
	c.mu.Lock()
	c.videoAllowed = allowed
	c.mu.Unlock()
}

func (c *Call) LocalInputEventAware() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inputEventAware
}

func (c *Call) SetLocalInputEventAware(aware bool) {
	c.mu.Lock()
	c.inputEventAware = aware
	c.mu.Unlock()
}

// addPeer reports whether p is the first peer of the call.
func (c *Call) addPeer(p *Peer) bool {
	c.mu.Lock()
	c.peers = append(c.peers, p)
	first := len(c.peers) == 1
	c.mu.Unlock()
	c.deps.Events.Publish(Event{Kind: PeerAdded, Call: c, Peer: p})
	return first
}

// RemovePeer discards p and returns how many peers remain.
func (c *Call) RemovePeer(p *Peer) int {
	c.mu.Lock()
	before := len(c.peers)
	c.peers = slices.DeleteFunc(c.peers, func(x *Peer) bool { return x == p })
	left := len(c.peers)
	c.mu.Unlock()
	if left < before {
		c.deps.Events.Publish(Event{Kind: PeerRemoved, Call: c, Peer: p})
	}
	return left
}

// PeerBySID finds a peer of this call.
func (c *Call) PeerBySID(sid domain.SessionID) (*Peer, bool) {
	for _, p := range c.Peers() {
		if p.SID() == sid {
			return p, true
		}
	}
	return nil, false
}

// InitiateSession places an outgoing session to target inside this call.
func (c *Call) InitiateSession(ctx context.Context, target domain.Address, opts ...OfferOption) (*Peer, error) {
	var o offerOptions
	for _, opt := range opts {
		opt(&o)
	}
	p := newPeer(c, target, "", true)
	first := c.addPeer(p)
	return p, p.initiate(ctx, first, o)
}

// NewIncomingPeer creates the peer for an inbound session-initiate.
// It reports whether the peer is the first of the call.
func (c *Call) NewIncomingPeer(msg domain.Message) (*Peer, bool) {
	p := newPeer(c, msg.From, msg.SID, false)
	if c.deps.Bind != nil {
		c.deps.Bind(msg.SID, p)
	}
	return p, c.addPeer(p)
}

// ModifyVideoContent turns local video on or off for every peer.
func (c *Call) ModifyVideoContent(ctx context.Context, on bool) error {
	c.SetLocalVideoAllowed(on)
	var err error
	for _, p := range c.Peers() {
		err = multierr.Append(err, p.ModifyVideoContent(ctx, on))
	}
	return err
}

func (c *Call) Info() core.CallInfo {
	info := core.CallInfo{ID: c.id, ConferenceFocus: c.IsConferenceFocus()}
	for _, p := range c.Peers() {
		info.Peers = append(info.Peers, p.Info())
	}
	return info
}
