package orch

import (
	"context"

	"github.com/dkeye/VoiceSignal/internal/app/call"
	"github.com/dkeye/VoiceSignal/internal/app/coin"
	"github.com/dkeye/VoiceSignal/internal/domain"
)

const encryptionRequired = "Encryption required"

// HandleMessage routes one inbound session message.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg domain.Message) {
	if msg.Action == domain.ActionSessionInitiate {
		o.onSessionInitiate(ctx, msg)
		return
	}

	p, ok := o.Registry.Peer(msg.SID)
	if !ok {
		o.logger.Warn().Str("sid", string(msg.SID)).Str("action", string(msg.Action)).Msg("message for unknown session")
		return
	}
	if msg.From != p.Address() {
		o.logger.Warn().Str("sid", string(msg.SID)).Str("from", string(msg.From)).Str("peer", string(p.Address())).Msg("message from foreign address dropped")
		return
	}
	var err error
	switch msg.Action {
	case domain.ActionSessionAccept:
		err = p.ProcessSessionAccept(ctx, msg)
	case domain.ActionSessionTerminate:
		p.ProcessSessionTerminate(msg)
	case domain.ActionTransportInfo:
		err = p.ProcessTransportInfo(ctx, msg)
	case domain.ActionSessionInfo:
		if msg.Transfer != nil {
			err = o.onTransferRequest(ctx, p, msg)
			break
		}
		p.ProcessSessionInfo(msg)
	case domain.ActionContentAdd:
		err = p.ProcessContentAdd(ctx, msg)
	case domain.ActionContentAccept:
		err = p.ProcessContentAccept(msg)
	case domain.ActionContentModify:
		err = p.ProcessContentModify(msg)
	case domain.ActionContentRemove:
		p.ProcessContentRemove(msg)
	default:
		o.logger.Debug().Str("action", string(msg.Action)).Msg("unhandled action")
	}
	if err != nil {
		o.logger.Warn().Err(err).Str("sid", string(msg.SID)).Str("action", string(msg.Action)).Msg("message handling failed")
	}
}

// attendantFor returns the peer an attended transfer in msg replaces, if the
// transfer record matches it.
func (o *Orchestrator) attendantFor(msg domain.Message) *call.Peer {
	t := msg.Transfer
	if t == nil || t.SID == "" {
		return nil
	}
	a, ok := o.Registry.Peer(t.SID)
	if !ok || a.Address() != t.From || t.To != o.opts.Local {
		return nil
	}
	return a
}

func (o *Orchestrator) onSessionInitiate(ctx context.Context, msg domain.Message) {
	logger := o.logger.With().Str("sid", string(msg.SID)).Str("from", string(msg.From)).Logger()
	if _, ok := o.Registry.Peer(msg.SID); ok {
		logger.Warn().Msg("duplicate session-initiate ignored")
		return
	}

	c := o.newCall()
	p, first := c.NewIncomingPeer(msg)
	attendant := o.attendantFor(msg)
	if msg.Focus != nil {
		p.SetRemoteFocus(*msg.Focus)
	}

	if err := p.ProcessSessionInitiate(msg); err != nil {
		// Dropped without a reply; the peer stays ringing and nobody is told.
		logger.Warn().Err(err).Msg("session-initiate rejected")
		p.SetState(domain.StateIncomingCall, err.Error())
		return
	}

	if o.opts.Paranoia && !p.OffersEncryption(o.opts.Encryption) {
		logger.Warn().Msg("peer offers no supported encryption")
		if err := p.Reject(domain.ReasonSecurityError, encryptionRequired); err != nil {
			logger.Error().Err(err).Msg("security-error terminate failed")
		}
		return
	}
	p.SetState(domain.StateIncomingCall, "")

	if attendant != nil {
		if err := p.Answer(ctx); err != nil {
			logger.Error().Err(err).Msg("transferred call answer failed")
			return
		}
		if err := attendant.Hangup(false, "Attended transfer success", call.HangupNormal); err != nil {
			logger.Error().Err(err).Str("attendant", string(attendant.Address())).Msg("attendant hangup failed")
		}
		return
	}
	if first {
		p.AnnounceReceived()
	}
	if o.Caps != nil {
		o.Caps.Prefetch(msg.From)
	}
}

// onTransferRequest places the call the remote party asked for and ends the
// session it came from.
func (o *Orchestrator) onTransferRequest(ctx context.Context, p *call.Peer, msg domain.Message) error {
	t := *msg.Transfer
	if t.From == "" {
		t.From = msg.From
	}
	if t.To == "" {
		return nil
	}
	if err := p.Hold(true); err != nil {
		o.logger.Debug().Err(err).Msg("hold before transfer failed")
	}

	next := domain.Transfer{From: t.From}
	kind := "Unattended"
	if t.SID != "" {
		next.SID, next.To = t.SID, t.To
		kind = "Attended"
	}
	if _, _, err := o.CreateOutgoingCall(ctx, t.To, call.WithTransfer(next)); err != nil {
		return err
	}
	return p.Hangup(false, kind+" transfer success", call.HangupNormal)
}

// HandleConferenceInfo applies a conference document from a remote focus, or
// reports its rejection of one of ours.
func (o *Orchestrator) HandleConferenceInfo(_ context.Context, n domain.ConferenceNotice) {
	p, ok := o.Registry.Peer(n.SID)
	if !ok {
		o.logger.Warn().Str("sid", string(n.SID)).Msg("conference-info for unknown session")
		return
	}
	if n.From != p.Address() {
		o.logger.Warn().Str("sid", string(n.SID)).Str("from", string(n.From)).Msg("conference-info from foreign address dropped")
		return
	}
	if n.Error != nil {
		reason := n.Error.Text
		if reason == "" {
			reason = string(n.Error.Condition)
		}
		p.ReportConferenceError(reason)
		return
	}
	doc, err := domain.ParseConferenceInfo(n.Document)
	if err != nil {
		o.logger.Warn().Err(err).Str("sid", string(n.SID)).Msg("conference-info decode failed")
		return
	}
	if err := coin.Apply(p, o.opts.Local, doc); err != nil {
		o.logger.Debug().Err(err).Str("sid", string(n.SID)).Int("version", doc.Version).Msg("conference-info ignored")
	}
}

// HandlePresence tracks contact availability. A resource coming online is
// worth a capability lookup and a relay discovery pass.
func (o *Orchestrator) HandlePresence(pr domain.Presence) {
	if !o.Roster.Update(pr) {
		return
	}
	if !pr.Available {
		if o.Caps != nil {
			o.Caps.Forget(pr.From)
		}
		return
	}
	if o.Caps != nil {
		o.Caps.Prefetch(pr.From)
	}
	if o.Relays != nil {
		o.Relays.Request(o.opts.Local)
	}
}
