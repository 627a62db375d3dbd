package transport

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/VoiceSignal/internal/domain"
	"github.com/dkeye/VoiceSignal/internal/metrics"
)

var (
	ErrClosed     = errors.New("transport manager closed")
	ErrNotStarted = errors.New("no candidate harvest started")
)

type Options struct {
	Peer       domain.Address
	Harvesters []Harvester
	IDs        *IDSource
	// Timeout bounds wrap-up. Zero waits for the caller's context only.
	Timeout time.Duration
	// Components per content: 1 for RTP only, 2 for RTP and RTCP.
	Components int
}

// Manager runs harvesters for one call peer in two phases: StartCandidateHarvest
// returns at once and WrapupCandidateHarvest collects what the probes found.
type Manager struct {
	mu         sync.Mutex
	opts       Options
	generation int
	started    bool
	closed     bool
	round      *round
	remote     map[string][]domain.Candidate

	logger zerolog.Logger
}

func NewManager(opts Options) *Manager {
	if opts.IDs == nil {
		opts.IDs = NewIDSource()
	}
	if opts.Components <= 0 {
		opts.Components = domain.ComponentRTCP
	}
	return &Manager{
		opts:   opts,
		remote: make(map[string][]domain.Candidate),
		logger: log.With().Str("module", "transport").Str("peer", string(opts.Peer)).Logger(),
	}
}

// round is one harvest generation.
type round struct {
	generation int
	ufrag, pwd string
	startedAt  time.Time
	answer     []domain.Content
	sender     TransportInfoSender

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup
	done   chan struct{}

	mu       sync.Mutex
	wrapped  bool
	found    map[string][]domain.Candidate
	trickled map[string]bool
	removed  map[string]bool
}

func newCredentials() (string, string) {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return raw[:8], raw[8:]
}

// Generation is the current harvest generation. It starts at 0 and grows by
// one with every harvest restarted on the same manager.
func (m *Manager) Generation() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// StartOfferHarvest starts harvesting for an offer we are about to send.
func (m *Manager) StartOfferHarvest(ourOffer []domain.Content, sender TransportInfoSender) error {
	return m.StartCandidateHarvest(nil, ourOffer, sender)
}

// StartCandidateHarvest kicks off asynchronous probes for every content of
// theirOffer (or of ourAnswer when there is no offer) that ourAnswer keeps.
func (m *Manager) StartCandidateHarvest(theirOffer, ourAnswer []domain.Content, sender TransportInfoSender) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.started {
		m.generation++
	}
	m.started = true
	if m.round != nil {
		m.round.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	ufrag, pwd := newCredentials()
	r := &round{
		generation: m.generation,
		ufrag:      ufrag,
		pwd:        pwd,
		startedAt:  time.Now(),
		answer:     append([]domain.Content(nil), ourAnswer...),
		sender:     sender,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		found:      make(map[string][]domain.Candidate),
		trickled:   make(map[string]bool),
		removed:    make(map[string]bool),
	}
	m.round = r

	src := theirOffer
	if src == nil {
		src = ourAnswer
	}
	for _, c := range src {
		ours := domain.FindContent(ourAnswer, c.Name)
		if ours == nil {
			m.logger.Debug().Str("content", c.Name).Msg("content not in our answer, skipped")
			continue
		}
		name, media := ours.Name, c.Media
		r.wg.Go(func() { m.harvestContent(r, name, media) })
	}
	go func() {
		if rec := r.wg.WaitAndRecover(); rec != nil {
			m.logger.Error().Err(rec.AsError()).Msg("harvester panicked")
		}
		close(r.done)
	}()

	m.logger.Info().Int("generation", r.generation).Int("contents", len(src)).Msg("candidate harvest started")
	return nil
}

func (m *Manager) harvestContent(r *round, name string, media domain.MediaType) {
	for comp := 1; comp <= m.opts.Components; comp++ {
		for _, h := range m.opts.Harvesters {
			if r.ctx.Err() != nil {
				return
			}
			req := Request{
				Peer:       m.opts.Peer,
				Content:    name,
				Media:      media,
				Component:  comp,
				Components: m.opts.Components,
				Generation: r.generation,
			}
			cands, err := h.Harvest(r.ctx, req)
			if err != nil {
				m.logger.Warn().Err(err).Str("harvester", h.Name()).Str("content", name).Int("component", comp).Msg("harvest failed")
				continue
			}
			if len(cands) == 0 {
				continue
			}
			for i := range cands {
				cands[i].ID = m.opts.IDs.Next()
				cands[i].Generation = r.generation
				if cands[i].Component == 0 {
					cands[i].Component = comp
				}
			}
			trickle := false
			if t, ok := h.(Trickler); ok {
				trickle = t.Trickle()
			}
			m.deliver(r, h.Name(), name, media, cands, trickle)
		}
	}
}

// deliver folds candidates into the round, or pushes them as transport-info
// when they trickle or arrive after wrap-up.
func (m *Manager) deliver(r *round, harvester, name string, media domain.MediaType, cands []domain.Candidate, trickle bool) {
	r.mu.Lock()
	late := r.wrapped
	removed := r.removed[name]
	r.mu.Unlock()
	if removed {
		return
	}

	if (trickle || late) && r.sender != nil {
		content := domain.Content{
			Name:      name,
			Media:     media,
			Transport: &domain.Transport{Ufrag: r.ufrag, Pwd: r.pwd, Candidates: cands},
		}
		err := r.sender.SendTransportInfo(content)
		if err == nil {
			r.mu.Lock()
			r.trickled[name] = true
			r.mu.Unlock()
			metrics.Candidates(harvester, "transport-info", len(cands))
			return
		}
		m.logger.Warn().Err(err).Str("content", name).Msg("transport-info send failed, keeping candidates for wrap-up")
	}
	if late {
		m.logger.Debug().Str("content", name).Int("count", len(cands)).Msg("late candidates dropped")
		return
	}

	r.mu.Lock()
	r.found[name] = append(r.found[name], cands...)
	r.mu.Unlock()
	metrics.Candidates(harvester, "wrapup", len(cands))
}

// WrapupCandidateHarvest blocks until every probe of the current generation has
// finished or the timeout elapsed, then returns our contents with their
// transport extensions. Candidates already pushed through transport-info are
// not repeated.
func (m *Manager) WrapupCandidateHarvest(ctx context.Context) ([]domain.Content, error) {
	m.mu.Lock()
	r, closed, timeout := m.round, m.closed, m.opts.Timeout
	m.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if r == nil {
		return nil, ErrNotStarted
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	timedOut := false
	select {
	case <-r.done:
	case <-waitCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		timedOut = true
		r.cancel()
		m.logger.Warn().Int("generation", r.generation).Dur("timeout", timeout).Msg("harvest wrap-up timed out")
	}
	metrics.HarvestDone(time.Since(r.startedAt), timedOut)
	return r.merge(), nil
}

func (r *round) merge() []domain.Content {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wrapped = true

	out := make([]domain.Content, 0, len(r.answer))
	for _, c := range r.answer {
		if r.removed[c.Name] {
			continue
		}
		c.Transport = nil
		found := r.found[c.Name]
		if len(found) > 0 || r.trickled[c.Name] {
			c.Transport = &domain.Transport{
				Ufrag:      r.ufrag,
				Pwd:        r.pwd,
				Candidates: append([]domain.Candidate(nil), found...),
			}
		}
		out = append(out, c)
	}
	return out
}

// AddRemoteCandidates records the remote candidates of contents and returns how
// many were kept. Candidates of another generation are stale and discarded.
func (m *Manager) AddRemoteCandidates(contents []domain.Content) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := 0
	for _, c := range contents {
		if c.Transport == nil {
			continue
		}
		for _, cand := range c.Transport.Candidates {
			if cand.Generation != m.generation {
				m.logger.Debug().
					Str("content", c.Name).
					Int("candidate_generation", cand.Generation).
					Int("generation", m.generation).
					Msg("stale remote candidate discarded")
				continue
			}
			m.remote[c.Name] = append(m.remote[c.Name], cand)
			kept++
		}
	}
	return kept
}

func (m *Manager) RemoteCandidates(content string) []domain.Candidate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Candidate(nil), m.remote[content]...)
}

// RemoveContent forgets everything harvested or received for content.
func (m *Manager) RemoveContent(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.remote, name)
	if r := m.round; r != nil {
		r.mu.Lock()
		r.removed[name] = true
		delete(r.found, name)
		r.mu.Unlock()
	}
}

// Close stops any running probes. Further harvests fail with ErrClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	if m.round != nil {
		m.round.cancel()
	}
	m.logger.Info().Msg("transport manager closed")
}
