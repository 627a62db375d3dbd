package call

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceSignal/internal/core"
	"github.com/dkeye/VoiceSignal/internal/domain"
	"github.com/dkeye/VoiceSignal/internal/metrics"
)

// Peer is one remote party of a call. Session handlers serialize on mu, so
// transitions of a single peer are totally ordered. Events raised while mu is
// held are published after it is released.
type Peer struct {
	call      *Call
	address   domain.Address
	outgoing  bool
	transport Transport
	logger    zerolog.Logger

	initiated chan struct{}
	initOnce  sync.Once

	mu              sync.Mutex
	sid             domain.SessionID
	state           domain.PeerState
	reason          string
	cancelled       bool
	videoAllowed    bool
	inputEventAware bool
	local           []domain.Content
	remote          []domain.Content
	caps            domain.FeatureSet
	pending         []Event

	conf peerConference
}

// peerConference is the COIN bookkeeping of a peer. It has its own lock so the
// conferencing engine never waits on a session handler.
type peerConference struct {
	mu         sync.Mutex
	lastSent   *domain.ConferenceInfo
	lastSentAt time.Time
	scheduled  bool

	remoteFocus bool
	received    *domain.ConferenceInfo
	members     []domain.ConferenceMember
}

func newPeer(c *Call, address domain.Address, sid domain.SessionID, outgoing bool) *Peer {
	p := &Peer{
		call:      c,
		address:   address,
		outgoing:  outgoing,
		sid:       sid,
		initiated: make(chan struct{}),
		logger: log.With().
			Str("module", "call.peer").
			Str("call", string(c.id)).
			Str("peer", string(address)).
			Logger(),
	}
	if c.deps.Transports != nil {
		p.transport = c.deps.Transports(address)
	}
	if outgoing {
		p.markInitiated()
	}
	direction := "incoming"
	if outgoing {
		direction = "outgoing"
	}
	metrics.CallCreated(direction)
	return p
}

func (p *Peer) markInitiated() {
	p.initOnce.Do(func() { close(p.initiated) })
}

// unlock releases mu and publishes the events queued meanwhile.
func (p *Peer) unlock() {
	events := p.pending
	p.pending = nil
	p.mu.Unlock()
	for _, e := range events {
		p.call.deps.Events.Publish(e)
	}
}

func (p *Peer) queue(e Event) {
	e.Call, e.Peer = p.call, p
	p.pending = append(p.pending, e)
}

func (p *Peer) Call() *Call             { return p.call }
func (p *Peer) Address() domain.Address { return p.address }
func (p *Peer) IsOutgoing() bool        { return p.outgoing }
func (p *Peer) Transport() Transport    { return p.transport }

func (p *Peer) SID() domain.SessionID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sid
}

func (p *Peer) State() domain.PeerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Reason is the text attached to the last transition.
func (p *Peer) Reason() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reason
}

func (p *Peer) Capabilities() domain.FeatureSet {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.caps
}

func (p *Peer) SetCapabilities(fs domain.FeatureSet) {
	p.mu.Lock()
	p.caps = fs
	p.mu.Unlock()
}

func (p *Peer) LocalContents() []domain.Content {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.local)
}

func (p *Peer) RemoteContents() []domain.Content {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.remote)
}

// SetState moves the peer to next if the state machine allows it.
func (p *Peer) SetState(next domain.PeerState, reason string) bool {
	p.mu.Lock()
	defer p.unlock()
	return p.setStateLocked(next, reason)
}

func (p *Peer) setStateLocked(next domain.PeerState, reason string) bool {
	if p.state == next {
		return false
	}
	if !p.state.CanTransition(next) {
		p.logger.Warn().Stringer("from", p.state).Stringer("to", next).Msg("transition refused")
		return false
	}
	old := p.state
	p.state = next
	p.reason = reason
	metrics.PeerState(next.String())
	p.logger.Info().Stringer("from", old).Stringer("to", next).Str("reason", reason).Msg("state changed")

	if next.IsTerminal() && p.transport != nil {
		p.transport.Close()
	}
	p.queue(Event{Kind: PeerStateChanged, Old: old, New: next, Reason: reason})
	return true
}

func (p *Peer) sendLocked(msg domain.Message) error {
	if p.sid == "" {
		return ErrNoSession
	}
	msg.SID = p.sid
	msg.From = p.call.deps.Local
	msg.To = p.address
	if err := p.call.deps.Channel.Send(msg); err != nil {
		p.logger.Error().Err(err).Str("action", string(msg.Action)).Msg("send failed")
		return fmt.Errorf("send %s: %w", msg.Action, err)
	}
	return nil
}

func (p *Peer) terminateLocked(code domain.ReasonCode, text string) error {
	return p.sendLocked(domain.Message{
		Action: domain.ActionSessionTerminate,
		Reason: &domain.Reason{Condition: code, Text: text},
	})
}

// SendTransportInfo pushes early candidates to the remote party.
func (p *Peer) SendTransportInfo(content domain.Content) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.IsTerminal() {
		return ErrInvalidState
	}
	return p.sendLocked(domain.Message{
		Action:   domain.ActionTransportInfo,
		Contents: []domain.Content{content},
	})
}

// SendConferenceFocus tells the peer whether we act as conference focus.
func (p *Peer) SendConferenceFocus(focus bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sendLocked(domain.Message{Action: domain.ActionSessionInfo, Focus: &focus})
}

// OffersEncryption reports whether any remote content advertises one of methods.
func (p *Peer) OffersEncryption(methods []string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.remote {
		for _, m := range c.Encryption {
			if slices.Contains(methods, m) {
				return true
			}
		}
	}
	return false
}

// Reject ends the session from our side because of a protocol or policy problem.
func (p *Peer) Reject(code domain.ReasonCode, text string) error {
	p.mu.Lock()
	defer p.unlock()
	err := p.terminateLocked(code, text)
	p.setStateLocked(domain.StateFailed, text)
	return err
}

// Directions returns the offered direction per media from our point of view.
// Media that were not offered are inactive.
func (p *Peer) Directions() map[domain.MediaType]domain.Direction {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.directionsLocked()
}

func (p *Peer) directionsLocked() map[domain.MediaType]domain.Direction {
	out := map[domain.MediaType]domain.Direction{
		domain.MediaAudio: domain.DirectionInactive,
		domain.MediaVideo: domain.DirectionInactive,
	}
	for _, c := range p.remote {
		out[c.Media] = c.Senders.Reverse()
	}
	return out
}

// AnnounceReceived raises the call-received event for this peer.
func (p *Peer) AnnounceReceived() {
	p.mu.Lock()
	defer p.unlock()
	p.queue(Event{Kind: CallReceived, Directions: p.directionsLocked()})
}

func (p *Peer) Info() core.PeerInfo {
	p.mu.Lock()
	info := core.PeerInfo{SID: p.sid, Address: p.address, State: p.state, Reason: p.reason}
	p.mu.Unlock()
	info.Members = p.ConferenceMembers()
	return info
}

// SendTransfer asks the remote party to move its session as described by t.
func (p *Peer) SendTransfer(t domain.Transfer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.state.IsEstablished() {
		return fmt.Errorf("%w: transfer in %s", ErrInvalidState, p.state)
	}
	return p.sendLocked(domain.Message{Action: domain.ActionSessionInfo, Transfer: &t})
}
