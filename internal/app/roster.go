package app

import (
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceSignal/internal/domain"
)

// Roster keeps the presence of contact resources.
type Roster struct {
	mu     sync.RWMutex
	online map[domain.Address]struct{}
}

func NewRoster() *Roster {
	return &Roster{online: make(map[domain.Address]struct{})}
}

// Update applies a presence change and reports whether it changed anything.
func (r *Roster) Update(p domain.Presence) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, was := r.online[p.From]
	if was == p.Available {
		return false
	}
	if p.Available {
		r.online[p.From] = struct{}{}
	} else {
		delete(r.online, p.From)
	}
	log.Debug().Str("module", "app.roster").Str("from", string(p.From)).Bool("available", p.Available).Msg("presence changed")
	return true
}

// OnlineResources returns the available resources, sorted.
func (r *Roster) OnlineResources() []domain.Address {
	r.mu.RLock()
	out := make([]domain.Address, 0, len(r.online))
	for a := range r.online {
		out = append(out, a)
	}
	r.mu.RUnlock()
	slices.Sort(out)
	return out
}
