// Package orch routes signaling to calls and drives the telephony operations
// exposed to the API.
package orch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceSignal/internal/app"
	"github.com/dkeye/VoiceSignal/internal/app/call"
	"github.com/dkeye/VoiceSignal/internal/app/coin"
	"github.com/dkeye/VoiceSignal/internal/app/disco"
	"github.com/dkeye/VoiceSignal/internal/app/progress"
	"github.com/dkeye/VoiceSignal/internal/app/relay"
	"github.com/dkeye/VoiceSignal/internal/core"
	"github.com/dkeye/VoiceSignal/internal/domain"
)

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrUnknownCall    = errors.New("unknown call")
)

type Options struct {
	Local           domain.Address
	Paranoia        bool
	Encryption      []string
	VideoAllowed    bool
	InputEventAware bool
	TransportWait   time.Duration
	// ProgressInterval is how often outgoing calls are polled for progress logs.
	ProgressInterval time.Duration
}

type Orchestrator struct {
	Registry   *app.Registry
	Roster     *app.Roster
	Policy     app.Policy
	Channel    core.SignalChannel
	Media      core.MediaHandler
	Transports func(domain.Address) call.Transport
	Coin       *coin.Engine
	// Caps and Relays are optional.
	Caps   *disco.Service
	Relays *relay.Discoverer
	Clock  clockwork.Clock

	opts   Options
	events *core.Bus[call.Event]
	logger zerolog.Logger
}

// New subscribes o to the events of every call it creates and returns it.
func New(o *Orchestrator, opts Options) *Orchestrator {
	if o.Registry == nil {
		o.Registry = app.NewRegistry()
	}
	if o.Roster == nil {
		o.Roster = app.NewRoster()
	}
	if o.Policy == nil {
		o.Policy = app.SimplePolicy{}
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 500 * time.Millisecond
	}
	o.opts = opts
	o.events = core.NewBus[call.Event]()
	o.events.Subscribe(o.onEvent)
	o.logger = log.With().Str("module", "orch").Logger()
	return o
}

// Events exposes the call event bus.
func (o *Orchestrator) Events() *core.Bus[call.Event] { return o.events }

func (o *Orchestrator) newCall() *call.Call {
	c := call.New(call.Deps{
		Local:         o.opts.Local,
		Channel:       o.Channel,
		Media:         o.Media,
		Events:        o.events,
		Transports:    o.Transports,
		Encryption:    o.opts.Encryption,
		Bind:          o.Registry.BindSession,
		TransportWait: o.opts.TransportWait,
	})
	c.SetLocalVideoAllowed(o.opts.VideoAllowed)
	c.SetLocalInputEventAware(o.opts.InputEventAware)
	o.Registry.AddCall(c)
	return c
}

// CreateOutgoingCall places a call to target in a new Call.
func (o *Orchestrator) CreateOutgoingCall(ctx context.Context, target domain.Address, opts ...call.OfferOption) (*call.Call, *call.Peer, error) {
	c := o.newCall()
	p, err := c.InitiateSession(ctx, target, opts...)
	if err != nil {
		o.logger.Warn().Err(err).Str("target", string(target)).Msg("outgoing call failed")
		return c, p, err
	}
	o.watch(p)
	return c, p, nil
}

// AddPeer invites target into an existing call.
func (o *Orchestrator) AddPeer(ctx context.Context, id domain.CallID, target domain.Address) (*call.Peer, error) {
	c, ok := o.Registry.Call(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCall, id)
	}
	p, err := c.InitiateSession(ctx, target)
	if err != nil {
		return p, err
	}
	o.watch(p)
	return p, nil
}

// watch logs the progress of an outgoing session until it ends.
func (o *Orchestrator) watch(p *call.Peer) {
	ctx, cancel := context.WithCancel(context.Background())
	if !o.Registry.SetCancel(p.SID(), cancel) {
		cancel()
		return
	}
	logger := o.logger.With().Str("peer", string(p.Address())).Str("sid", string(p.SID())).Logger()
	go progress.Watch(ctx, o.Clock, o.opts.ProgressInterval,
		func() (domain.PeerState, bool) {
			s := p.State()
			return s, s.IsTerminal()
		},
		func(e progress.Event[domain.PeerState]) {
			logger.Debug().Stringer("state", e.Status).Bool("final", e.Final).Bool("cancelled", e.Cancelled).Msg("call progress")
		},
	)
}

func (o *Orchestrator) peer(sid domain.SessionID) (*call.Peer, error) {
	p, ok := o.Registry.Peer(sid)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sid)
	}
	return p, nil
}

func (o *Orchestrator) Answer(ctx context.Context, sid domain.SessionID) error {
	p, err := o.peer(sid)
	if err != nil {
		return err
	}
	return p.Answer(ctx)
}

func (o *Orchestrator) Hangup(sid domain.SessionID, reason call.HangupReason, text string) error {
	p, err := o.peer(sid)
	if err != nil {
		return err
	}
	return p.Hangup(false, text, reason)
}

func (o *Orchestrator) Hold(sid domain.SessionID, on bool) error {
	p, err := o.peer(sid)
	if err != nil {
		return err
	}
	return p.Hold(on)
}

func (o *Orchestrator) SetConferenceFocus(id domain.CallID, focus bool) error {
	c, ok := o.Registry.Call(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCall, id)
	}
	c.SetConferenceFocus(focus)
	return nil
}

func (o *Orchestrator) ModifyVideo(ctx context.Context, id domain.CallID, on bool) error {
	c, ok := o.Registry.Call(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCall, id)
	}
	return c.ModifyVideoContent(ctx, on)
}

// Transfer asks the party of sid to call the party of targetSID, replacing
// our session with it. With an empty targetSID the transfer is unattended
// and goes to to.
func (o *Orchestrator) Transfer(sid, targetSID domain.SessionID, to domain.Address) error {
	p, err := o.peer(sid)
	if err != nil {
		return err
	}
	t := domain.Transfer{From: o.opts.Local, To: to}
	if targetSID != "" {
		target, err := o.peer(targetSID)
		if err != nil {
			return err
		}
		t.SID = targetSID
		t.To = target.Address()
	}
	return p.SendTransfer(t)
}

func (o *Orchestrator) Calls() []core.CallInfo {
	calls := o.Registry.Calls()
	out := make([]core.CallInfo, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Info())
	}
	return out
}

func (o *Orchestrator) CallInfo(id domain.CallID) (core.CallInfo, error) {
	c, ok := o.Registry.Call(id)
	if !ok {
		return core.CallInfo{}, fmt.Errorf("%w: %s", ErrUnknownCall, id)
	}
	return c.Info(), nil
}
