package app

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceSignal/internal/app/call"
	"github.com/dkeye/VoiceSignal/internal/domain"
)

type sessionEntry struct {
	Peer *call.Peer
	// Cancel stops background work tied to the session, such as progress watching.
	Cancel context.CancelFunc
}

// Registry tracks the active calls of the account and routes session ids to peers.
type Registry struct {
	mu       sync.RWMutex
	calls    map[domain.CallID]*call.Call
	sessions map[domain.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		calls:    make(map[domain.CallID]*call.Call),
		sessions: make(map[domain.SessionID]*sessionEntry),
	}
}

func (r *Registry) AddCall(c *call.Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[c.ID()] = c
	log.Info().Str("module", "app.registry").Str("call", string(c.ID())).Msg("call added")
}

func (r *Registry) Call(id domain.CallID) (*call.Call, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.calls[id]
	return c, ok
}

func (r *Registry) CallCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.calls)
}

// Calls lists active calls ordered by id.
func (r *Registry) Calls() []*call.Call {
	r.mu.RLock()
	out := make([]*call.Call, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (r *Registry) RemoveCall(id domain.CallID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.calls, id)
	log.Info().Str("module", "app.registry").Str("call", string(id)).Msg("call removed")
}

// BindSession routes sid to p. A sid already bound keeps its peer. It must not
// call into p.
func (r *Registry) BindSession(sid domain.SessionID, p *call.Peer) {
	if sid == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sid]; ok {
		if e.Peer != p {
			log.Warn().Str("module", "app.registry").Str("sid", string(sid)).Str("peer", string(p.Address())).Msg("session already bound")
		}
		return
	}
	r.sessions[sid] = &sessionEntry{Peer: p}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("peer", string(p.Address())).Msg("bound session")
}

func (r *Registry) Peer(sid domain.SessionID) (*call.Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Peer, true
	}
	return nil, false
}

// SetCancel attaches cancel to a bound session. It reports false if sid is unknown.
func (r *Registry) SetCancel(sid domain.SessionID, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	e.Cancel = cancel
	return true
}

// Unbind forgets sid and stops its background work.
func (r *Registry) Unbind(sid domain.SessionID) {
	r.mu.Lock()
	e, ok := r.sessions[sid]
	delete(r.sessions, sid)
	r.mu.Unlock()
	if !ok {
		return
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
}

// FindPeer returns a bound peer matching pred.
func (r *Registry) FindPeer(pred func(domain.SessionID, *call.Peer) bool) (*call.Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for sid, e := range r.sessions {
		if pred(sid, e.Peer) {
			return e.Peer, true
		}
	}
	return nil, false
}
