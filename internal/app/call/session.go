package call

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/VoiceSignal/internal/domain"
)

type offerOptions struct {
	transfer *domain.Transfer
}

// OfferOption adds an extension to an outgoing session-initiate.
type OfferOption func(*offerOptions)

// WithTransfer marks the new session as the result of a transfer.
func WithTransfer(t domain.Transfer) OfferOption {
	return func(o *offerOptions) { o.transfer = &t }
}

func (p *Peer) initiate(ctx context.Context, first bool, o offerOptions) error {
	p.mu.Lock()
	p.setStateLocked(domain.StateInitiatingCall, "")
	if first {
		p.queue(Event{Kind: CallInitiated})
	}
	p.videoAllowed = p.call.LocalVideoAllowed()
	p.inputEventAware = p.call.LocalInputEventAware()
	offer := p.buildOffer()
	p.local = offer
	p.setStateLocked(domain.StateConnecting, "")
	var err error
	if p.transport != nil {
		err = p.transport.StartOfferHarvest(offer, p)
	}
	p.unlock()

	contents := offer
	if err == nil && p.transport != nil {
		contents, err = p.transport.WrapupCandidateHarvest(ctx)
	}

	p.mu.Lock()
	defer p.unlock()
	if p.cancelled || p.state.IsTerminal() {
		return ErrCancelled
	}
	if err != nil {
		p.setStateLocked(domain.StateFailed, "candidate harvest failed: "+err.Error())
		return fail(domain.ReasonGeneralError, err)
	}
	p.local = contents

	p.sid = domain.NewSessionID()
	if p.call.deps.Bind != nil {
		p.call.deps.Bind(p.sid, p)
	}
	msg := domain.Message{
		Action:      domain.ActionSessionInitiate,
		Initiator:   p.call.deps.Local,
		Contents:    contents,
		Transfer:    o.transfer,
		InputEvents: p.inputEventAware,
	}
	if p.call.IsConferenceFocus() {
		focus := true
		msg.Focus = &focus
	}
	if err := p.sendLocked(msg); err != nil {
		p.setStateLocked(domain.StateFailed, "could not send session-initiate")
		return fail(domain.ReasonConnectivityError, err)
	}
	return nil
}

// ProcessSessionInitiate validates an inbound offer and starts harvesting our
// answer. It does not move the peer out of its current state.
func (p *Peer) ProcessSessionInitiate(msg domain.Message) error {
	defer p.markInitiated()
	if err := validateOffer(msg); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.unlock()
	p.videoAllowed = p.call.LocalVideoAllowed()
	p.inputEventAware = p.call.LocalInputEventAware() && msg.InputEvents
	p.remote = msg.Contents
	if p.transport != nil {
		p.transport.AddRemoteCandidates(msg.Contents)
	}
	p.local = p.buildAnswer(msg.Contents)
	if p.transport == nil {
		return nil
	}
	if err := p.transport.StartCandidateHarvest(msg.Contents, p.local, p); err != nil {
		return fmt.Errorf("start harvest: %w", err)
	}
	return nil
}

// Answer accepts an incoming session.
func (p *Peer) Answer(ctx context.Context) error {
	p.mu.Lock()
	if p.state != domain.StateIncomingCall {
		state := p.state
		p.unlock()
		return fmt.Errorf("%w: answer in %s", ErrInvalidState, state)
	}
	p.unlock()

	contents := p.LocalContents()
	var err error
	if p.transport != nil {
		contents, err = p.transport.WrapupCandidateHarvest(ctx)
	}

	p.mu.Lock()
	defer p.unlock()
	if p.state != domain.StateIncomingCall {
		return fmt.Errorf("%w: answer in %s", ErrInvalidState, p.state)
	}
	if err != nil {
		_ = p.terminateLocked(domain.ReasonFailedApplication, "candidate harvest failed")
		p.setStateLocked(domain.StateFailed, "candidate harvest failed: "+err.Error())
		return fail(domain.ReasonFailedApplication, err)
	}
	p.local = contents

	if err := p.sendLocked(domain.Message{
		Action:      domain.ActionSessionAccept,
		Contents:    contents,
		InputEvents: p.inputEventAware,
	}); err != nil {
		p.setStateLocked(domain.StateFailed, "could not send session-accept")
		return fail(domain.ReasonConnectivityError, err)
	}

	if m := p.call.deps.Media; m != nil {
		if err := m.Start(ctx, p.local, p.remote); err != nil {
			_ = p.terminateLocked(domain.ReasonGeneralError, "media start failed")
			p.setStateLocked(domain.StateFailed, "media start failed: "+err.Error())
			return fail(domain.ReasonGeneralError, err)
		}
	}
	p.setStateLocked(domain.StateConnected, "")
	return nil
}

// ProcessSessionAccept completes an outgoing session.
func (p *Peer) ProcessSessionAccept(ctx context.Context, msg domain.Message) error {
	p.mu.Lock()
	defer p.unlock()
	switch p.state {
	case domain.StateConnecting, domain.StateAlertingRemoteSide, domain.StateInitiatingCall:
	default:
		return fmt.Errorf("%w: session-accept in %s", ErrInvalidState, p.state)
	}

	for _, c := range msg.Contents {
		if domain.FindContent(p.local, c.Name) == nil {
			err := fmt.Errorf("%w: %q", ErrUnknownContent, c.Name)
			_ = p.terminateLocked(domain.ReasonIncompatibleParameters, "unknown content "+c.Name)
			p.setStateLocked(domain.StateFailed, err.Error())
			return fail(domain.ReasonIncompatibleParameters, err)
		}
	}
	p.remote = msg.Contents
	if p.transport != nil {
		p.transport.AddRemoteCandidates(msg.Contents)
	}

	if m := p.call.deps.Media; m != nil {
		if err := m.Start(ctx, p.local, p.remote); err != nil {
			_ = p.terminateLocked(domain.ReasonIncompatibleParameters, "media start failed")
			p.setStateLocked(domain.StateFailed, "media start failed: "+err.Error())
			return fail(domain.ReasonIncompatibleParameters, err)
		}
	}
	p.setStateLocked(domain.StateConnected, "")
	return nil
}

// ProcessSessionTerminate ends the session on the remote party's request.
func (p *Peer) ProcessSessionTerminate(msg domain.Message) {
	text := "Call ended by remote side."
	if msg.Reason != nil {
		text += " Reason: " + string(msg.Reason.Condition) + "."
		if msg.Reason.Text != "" {
			text += " " + msg.Reason.Text
		}
	}
	p.SetState(domain.StateDisconnected, text)
}

// ProcessTransportInfo adds candidates the remote party trickled. It waits for
// the session-initiate of this peer to be processed first.
func (p *Peer) ProcessTransportInfo(ctx context.Context, msg domain.Message) error {
	wait := p.call.deps.TransportWait
	if wait <= 0 {
		wait = 10 * time.Second
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-p.initiated:
	case <-t.C:
		p.logger.Warn().Dur("wait", wait).Msg("transport-info before session-initiate was processed, dropped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	p.mu.Lock()
	defer p.unlock()
	if p.state.IsTerminal() {
		return nil
	}
	for _, c := range msg.Contents {
		if domain.FindContent(p.local, c.Name) == nil {
			err := fmt.Errorf("%w: %q", ErrUnknownContent, c.Name)
			_ = p.terminateLocked(domain.ReasonGeneralError, err.Error())
			p.setStateLocked(domain.StateFailed, err.Error())
			return err
		}
	}
	if p.transport != nil {
		n := p.transport.AddRemoteCandidates(msg.Contents)
		p.logger.Debug().Int("kept", n).Msg("remote candidates added")
	}
	return nil
}

// ProcessSessionInfo handles ringing, hold and the conference focus marker.
// Transfer requests are left to the caller.
func (p *Peer) ProcessSessionInfo(msg domain.Message) {
	if msg.Focus != nil {
		p.SetRemoteFocus(*msg.Focus)
	}

	p.mu.Lock()
	defer p.unlock()
	switch msg.Info {
	case domain.InfoRinging:
		if p.state == domain.StateConnecting || p.state == domain.StateInitiatingCall {
			p.setStateLocked(domain.StateAlertingRemoteSide, "")
		}
	case domain.InfoHold:
		if p.state == domain.StateConnected {
			p.setStateLocked(domain.StateOnHold, "")
		}
	case domain.InfoUnhold, domain.InfoActive:
		if p.state == domain.StateOnHold {
			p.setStateLocked(domain.StateConnected, "")
		}
	}
}

// ProcessContentAdd renegotiates: it starts a new harvest generation for the
// added contents and replies with content-accept.
func (p *Peer) ProcessContentAdd(ctx context.Context, msg domain.Message) error {
	if err := validateContents(msg.Contents); err != nil {
		return err
	}
	p.mu.Lock()
	if !p.state.IsEstablished() {
		state := p.state
		p.unlock()
		return fmt.Errorf("%w: content-add in %s", ErrInvalidState, state)
	}
	answer := p.buildAnswer(msg.Contents)
	p.remote = upsertContents(p.remote, msg.Contents)
	var err error
	if p.transport != nil {
		err = p.transport.StartCandidateHarvest(msg.Contents, answer, p)
	}
	p.unlock()

	if err == nil && p.transport != nil {
		answer, err = p.transport.WrapupCandidateHarvest(ctx)
	}

	p.mu.Lock()
	defer p.unlock()
	if err != nil {
		return fmt.Errorf("content-add harvest: %w", err)
	}
	if p.transport != nil {
		p.transport.AddRemoteCandidates(msg.Contents)
	}
	p.local = upsertContents(p.local, answer)
	return p.sendLocked(domain.Message{Action: domain.ActionContentAccept, Contents: answer})
}

// ProcessContentAccept records contents the remote party accepted.
func (p *Peer) ProcessContentAccept(msg domain.Message) error {
	p.mu.Lock()
	defer p.unlock()
	for _, c := range msg.Contents {
		if domain.FindContent(p.local, c.Name) == nil {
			return fmt.Errorf("%w: %q", ErrUnknownContent, c.Name)
		}
	}
	p.remote = upsertContents(p.remote, msg.Contents)
	if p.transport != nil {
		p.transport.AddRemoteCandidates(msg.Contents)
	}
	return nil
}

// ProcessContentModify updates the senders of existing contents.
func (p *Peer) ProcessContentModify(msg domain.Message) error {
	p.mu.Lock()
	defer p.unlock()
	for _, c := range msg.Contents {
		cur := domain.FindContent(p.remote, c.Name)
		if cur == nil {
			return fmt.Errorf("%w: %q", ErrUnknownContent, c.Name)
		}
		cur.Senders = c.Senders
	}
	return nil
}

// ProcessContentRemove drops contents and everything harvested for them.
func (p *Peer) ProcessContentRemove(msg domain.Message) {
	p.mu.Lock()
	defer p.unlock()
	for _, c := range msg.Contents {
		p.remote = withoutContent(p.remote, c.Name)
		p.local = withoutContent(p.local, c.Name)
		if p.transport != nil {
			p.transport.RemoveContent(c.Name)
		}
	}
}

// ModifyVideoContent switches local video for an established session. A peer
// already carrying video gets a content-modify; otherwise a video content is
// added with a fresh harvest generation.
func (p *Peer) ModifyVideoContent(ctx context.Context, on bool) error {
	p.mu.Lock()
	if !p.state.IsEstablished() {
		p.unlock()
		return nil
	}
	p.videoAllowed = on
	if cur := domain.FindMedia(p.local, domain.MediaVideo); cur != nil {
		cur.Senders = p.localDirection(domain.MediaVideo)
		if r := domain.FindMedia(p.remote, domain.MediaVideo); r != nil {
			cur.Senders = cur.Senders.And(senders(*r).Reverse())
		}
		c := stripTransport(*cur)
		defer p.unlock()
		return p.sendLocked(domain.Message{Action: domain.ActionContentModify, Contents: []domain.Content{c}})
	}
	if !on {
		p.unlock()
		return nil
	}

	video := []domain.Content{p.newContent(domain.MediaVideo)}
	var err error
	if p.transport != nil {
		err = p.transport.StartOfferHarvest(video, p)
	}
	p.unlock()

	if err == nil && p.transport != nil {
		video, err = p.transport.WrapupCandidateHarvest(ctx)
	}

	p.mu.Lock()
	defer p.unlock()
	if err != nil {
		return fmt.Errorf("content-add harvest: %w", err)
	}
	if !p.state.IsEstablished() {
		return nil
	}
	p.local = upsertContents(p.local, video)
	return p.sendLocked(domain.Message{Action: domain.ActionContentAdd, Contents: video})
}

// Hangup ends the session from our side. The terminate reason depends on the
// state the peer was in. A peer without a session id yet is only marked
// cancelled so the pending initiate gives up.
func (p *Peer) Hangup(failed bool, text string, reason HangupReason) error {
	p.mu.Lock()
	defer p.unlock()

	var (
		code domain.ReasonCode
		err  error
	)
	switch p.state {
	case domain.StateDisconnected, domain.StateFailed:
		return nil
	case domain.StateConnected, domain.StateOnHold:
		code = reason.code()
	case domain.StateConnecting, domain.StateInitiatingCall, domain.StateAlertingRemoteSide:
		code = domain.ReasonCancel
	case domain.StateIncomingCall:
		code = domain.ReasonBusy
	}

	switch {
	case code == "":
	case p.sid == "":
		p.cancelled = true
	default:
		err = p.terminateLocked(code, text)
	}

	next := domain.StateDisconnected
	if failed {
		next = domain.StateFailed
	}
	p.setStateLocked(next, text)
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	return err
}

// Hold puts an established session on hold or resumes it.
func (p *Peer) Hold(on bool) error {
	p.mu.Lock()
	defer p.unlock()
	if !p.state.IsEstablished() {
		return fmt.Errorf("%w: hold in %s", ErrInvalidState, p.state)
	}
	info, next := domain.InfoUnhold, domain.StateConnected
	if on {
		info, next = domain.InfoHold, domain.StateOnHold
	}
	if err := p.sendLocked(domain.Message{Action: domain.ActionSessionInfo, Info: info}); err != nil {
		return err
	}
	p.setStateLocked(next, "")
	return nil
}
