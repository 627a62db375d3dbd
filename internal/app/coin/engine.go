package coin

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceSignal/internal/app/call"
	"github.com/dkeye/VoiceSignal/internal/core"
	"github.com/dkeye/VoiceSignal/internal/domain"
	"github.com/dkeye/VoiceSignal/internal/metrics"
)

type Options struct {
	MinInterval time.Duration
	Disabled    bool
	// Partial sends structural diffs. When false every change resends the
	// whole document.
	Partial bool
}

// Engine pushes conference documents to the peers of calls we are focus of.
type Engine struct {
	clock   clockwork.Clock
	caps    core.CapabilityService
	channel core.SignalChannel
	opts    Options

	// serializes compute-send-record so versions to one peer stay ordered
	mu sync.Mutex

	logger zerolog.Logger
}

func NewEngine(clock clockwork.Clock, caps core.CapabilityService, channel core.SignalChannel, opts Options) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		clock:   clock,
		caps:    caps,
		channel: channel,
		opts:    opts,
		logger:  log.With().Str("module", "coin").Logger(),
	}
}

// NotifyAll runs one notify cycle over the peers of c. It does nothing unless
// we are the focus of c.
func (e *Engine) NotifyAll(c *call.Call) {
	if e.opts.Disabled || !c.IsConferenceFocus() {
		return
	}
	for _, p := range c.Peers() {
		e.notify(c, p)
	}
}

func skipped(s domain.PeerState) bool {
	switch s {
	case domain.StateConnecting, domain.StateUnknown, domain.StateInitiatingCall,
		domain.StateDisconnected, domain.StateFailed:
		return true
	}
	return false
}

// postpone schedules the single retry a peer may have pending.
func (e *Engine) postpone(c *call.Call, p *call.Peer, wait time.Duration) {
	metrics.Coin("deferred")
	if !p.ScheduleConferenceInfo() {
		return
	}
	e.clock.AfterFunc(wait, func() {
		p.ClearConferenceInfoScheduled()
		if !e.opts.Disabled && c.IsConferenceFocus() {
			e.notify(c, p)
		}
	})
	e.logger.Debug().Str("peer", string(p.Address())).Dur("wait", wait).Msg("conference-info deferred")
}

func (e *Engine) notify(c *call.Call, p *call.Peer) {
	if skipped(p.State()) {
		metrics.Coin("skipped")
		return
	}

	if e.caps != nil && !e.caps.SupportsFeature(p.Address(), domain.FeatureCoin) {
		metrics.Coin("unsupported")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// The interval is checked under mu so that concurrent cycles see each
	// other's sends.
	if last := p.LastConferenceInfoSentAt(); !last.IsZero() {
		if elapsed := e.clock.Since(last); elapsed < e.opts.MinInterval {
			e.postpone(c, p, e.opts.MinInterval-elapsed)
			return
		}
	}

	current := Snapshot(c)
	last := p.LastConferenceInfoSent()
	var diff *domain.ConferenceInfo
	if e.opts.Partial {
		diff = Diff(last, current)
	} else {
		diff = FullDiff(last, current)
	}
	if diff == nil {
		metrics.Coin("unchanged")
		return
	}

	version := 1
	if last != nil {
		version = last.Version + 1
	}
	diff.Version = version
	diff.SID = p.SID()
	data, err := diff.MarshalDocument()
	if err != nil {
		e.logger.Error().Err(err).Msg("conference-info encode failed")
		metrics.Coin("failed")
		return
	}
	err = e.channel.SendConferenceInfo(domain.ConferenceNotice{
		SID:      diff.SID,
		From:     c.Local(),
		To:       p.Address(),
		Document: data,
	})
	if err != nil {
		e.logger.Warn().Err(err).Str("peer", string(p.Address())).Int("version", version).Msg("conference-info send failed")
		metrics.Coin("failed")
		return
	}

	current.Version = version
	current.SID = diff.SID
	p.RecordConferenceInfoSent(current, e.clock.Now())
	metrics.Coin("sent")
	e.logger.Debug().Str("peer", string(p.Address())).Int("version", version).Str("state", string(diff.State)).Msg("conference-info sent")
}
