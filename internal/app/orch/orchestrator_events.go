package orch

import (
	"context"

	"github.com/dkeye/VoiceSignal/internal/app"
	"github.com/dkeye/VoiceSignal/internal/app/call"
	"github.com/dkeye/VoiceSignal/internal/domain"
)

func (o *Orchestrator) onEvent(e call.Event) {
	switch e.Kind {
	case call.PeerStateChanged:
		if e.New.IsTerminal() {
			o.cleanupPeer(e.Call, e.Peer)
		}
		if o.Coin != nil {
			o.Coin.NotifyAll(e.Call)
		}
	case call.FocusChanged:
		focus := e.Call.IsConferenceFocus()
		for _, p := range e.Call.Peers() {
			if p.State() != domain.StateConnected {
				continue
			}
			if err := p.SendConferenceFocus(focus); err != nil {
				o.logger.Warn().Err(err).Str("peer", string(p.Address())).Msg("focus update failed")
			}
		}
		if o.Coin != nil {
			o.Coin.NotifyAll(e.Call)
		}
	case call.CallReceived:
		o.onCallReceived(e)
	case call.MembersChanged:
		o.logger.Info().Str("call", string(e.Call.ID())).Int("members", len(e.Peer.ConferenceMembers())).Msg("conference members changed")
	case call.MemberError:
		o.logger.Warn().Str("call", string(e.Call.ID())).Str("peer", string(e.Peer.Address())).Str("reason", e.Reason).Msg("conference member error")
	}
}

// cleanupPeer unroutes a finished session and drops its call once empty.
func (o *Orchestrator) cleanupPeer(c *call.Call, p *call.Peer) {
	if sid := p.SID(); sid != "" {
		o.Registry.Unbind(sid)
	}
	if c.RemovePeer(p) == 0 {
		o.Registry.RemoveCall(c.ID())
	}
}

func (o *Orchestrator) onCallReceived(e call.Event) {
	switch o.Policy.OnCallReceived(e.Peer, e.Directions) {
	case app.AnswerCall:
		p := e.Peer
		go func() {
			if err := p.Answer(context.Background()); err != nil {
				o.logger.Warn().Err(err).Str("sid", string(p.SID())).Msg("auto answer failed")
			}
		}()
	case app.RejectBusy:
		if err := e.Peer.Hangup(false, "Busy", call.HangupBusy); err != nil {
			o.logger.Warn().Err(err).Str("sid", string(e.Peer.SID())).Msg("busy reject failed")
		}
	}
}
