package call

import (
	"slices"
	"time"

	"github.com/dkeye/VoiceSignal/internal/domain"
)

// LastConferenceInfoSent is the full snapshot last delivered to the peer, or nil.
func (p *Peer) LastConferenceInfoSent() *domain.ConferenceInfo {
	p.conf.mu.Lock()
	defer p.conf.mu.Unlock()
	return p.conf.lastSent.Clone()
}

func (p *Peer) LastConferenceInfoSentAt() time.Time {
	p.conf.mu.Lock()
	defer p.conf.mu.Unlock()
	return p.conf.lastSentAt
}

// RecordConferenceInfoSent stores the full snapshot behind a successful send.
// Versions never go backwards.
func (p *Peer) RecordConferenceInfoSent(full *domain.ConferenceInfo, at time.Time) {
	p.conf.mu.Lock()
	defer p.conf.mu.Unlock()
	if p.conf.lastSent != nil && full.Version <= p.conf.lastSent.Version {
		return
	}
	p.conf.lastSent = full.Clone()
	p.conf.lastSentAt = at
}

// ScheduleConferenceInfo marks a deferred notification as pending. It returns
// false when one is already pending.
func (p *Peer) ScheduleConferenceInfo() bool {
	p.conf.mu.Lock()
	defer p.conf.mu.Unlock()
	if p.conf.scheduled {
		return false
	}
	p.conf.scheduled = true
	return true
}

func (p *Peer) ConferenceInfoScheduled() bool {
	p.conf.mu.Lock()
	defer p.conf.mu.Unlock()
	return p.conf.scheduled
}

func (p *Peer) ClearConferenceInfoScheduled() {
	p.conf.mu.Lock()
	p.conf.scheduled = false
	p.conf.mu.Unlock()
}

// IsConferenceFocus reports whether the remote party announced itself as focus.
func (p *Peer) IsConferenceFocus() bool {
	p.conf.mu.Lock()
	defer p.conf.mu.Unlock()
	return p.conf.remoteFocus
}

// SetRemoteFocus records whether the remote party acts as conference focus.
func (p *Peer) SetRemoteFocus(focus bool) {
	p.conf.mu.Lock()
	p.conf.remoteFocus = focus
	p.conf.mu.Unlock()
}

// ReceivedConferenceVersion is -1 until a document from the peer was applied.
func (p *Peer) ReceivedConferenceVersion() int {
	p.conf.mu.Lock()
	defer p.conf.mu.Unlock()
	if p.conf.received == nil {
		return -1
	}
	return p.conf.received.Version
}

func (p *Peer) ConferenceInfoReceived() *domain.ConferenceInfo {
	p.conf.mu.Lock()
	defer p.conf.mu.Unlock()
	return p.conf.received.Clone()
}

// UpdateConferenceInfoReceived replaces the stored remote document with the
// result of update. The remote side is marked as focus first. When update
// fails the stored document is kept.
func (p *Peer) UpdateConferenceInfoReceived(update func(current *domain.ConferenceInfo) (*domain.ConferenceInfo, error)) error {
	p.conf.mu.Lock()
	defer p.conf.mu.Unlock()
	p.conf.remoteFocus = true
	next, err := update(p.conf.received.Clone())
	if err != nil {
		return err
	}
	p.conf.received = next
	return nil
}

func (p *Peer) ConferenceMembers() []domain.ConferenceMember {
	p.conf.mu.Lock()
	defer p.conf.mu.Unlock()
	return slices.Clone(p.conf.members)
}

// SetConferenceMembers replaces the members announced by this peer and
// reports whether they changed.
func (p *Peer) SetConferenceMembers(members []domain.ConferenceMember) bool {
	p.conf.mu.Lock()
	changed := !slices.Equal(p.conf.members, members)
	if changed {
		p.conf.members = slices.Clone(members)
	}
	p.conf.mu.Unlock()
	if changed {
		p.call.deps.Events.Publish(Event{Kind: MembersChanged, Call: p.call, Peer: p})
	}
	return changed
}

// ReportConferenceError raises a member error for a rejected notification.
func (p *Peer) ReportConferenceError(reason string) {
	p.logger.Warn().Str("reason", reason).Msg("conference-info rejected by peer")
	p.call.deps.Events.Publish(Event{Kind: MemberError, Call: p.call, Peer: p, Reason: reason})
}
