// Package relay discovers Jingle Nodes relays and harvests relayed candidates from them.
package relay

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceSignal/internal/domain"
)

type Kind string

const (
	KindRelay   Kind = "relay"
	KindTracker Kind = "tracker"
)

// Entry is one known relay or tracker.
type Entry struct {
	Address  domain.Address `json:"address"`
	Kind     Kind           `json:"kind"`
	Protocol string         `json:"protocol"`
	// Policy is "public" or "roster".
	Policy        string    `json:"policy,omitempty"`
	Preference    int       `json:"preference"`
	Preconfigured bool      `json:"preconfigured"`
	LastSeen      time.Time `json:"last_seen"`
}

// Table is the relay table of one account. Discovery writes it; harvesters read it.
// Entries are superseded by address. Discovered entries not seen for ttl are
// evicted by Evict; preconfigured entries never expire.
type Table struct {
	mu      sync.RWMutex
	clock   clockwork.Clock
	ttl     time.Duration
	entries map[domain.Address]*Entry
}

func NewTable(clock clockwork.Clock, ttl time.Duration) *Table {
	return &Table{
		clock:   clock,
		ttl:     ttl,
		entries: make(map[domain.Address]*Entry),
	}
}

// Seed installs preconfigured entries.
func (t *Table) Seed(entries []Entry) {
	for _, e := range entries {
		e.Preconfigured = true
		if e.Preference == 0 {
			e.Preference = 1 << 10
		}
		t.Upsert(e)
	}
}

// Upsert adds e or refreshes the entry with the same address.
// It reports whether the address was new.
func (t *Table) Upsert(e Entry) bool {
	if e.Protocol == "" {
		e.Protocol = "udp"
	}
	if e.Kind == "" {
		e.Kind = KindRelay
	}
	e.LastSeen = t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()
	old, ok := t.entries[e.Address]
	if ok {
		e.Preconfigured = e.Preconfigured || old.Preconfigured
		e.Preference = max(e.Preference, old.Preference)
	}
	t.entries[e.Address] = &e
	if !ok {
		log.Info().Str("module", "relay.table").Str("address", string(e.Address)).Str("kind", string(e.Kind)).Msg("entry added")
	}
	return !ok
}

// Evict drops discovered entries older than the ttl and returns how many went.
func (t *Table) Evict() int {
	if t.ttl <= 0 {
		return 0
	}
	cutoff := t.clock.Now().Add(-t.ttl)
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for addr, e := range t.entries {
		if e.Preconfigured || !e.LastSeen.Before(cutoff) {
			continue
		}
		delete(t.entries, addr)
		n++
	}
	if n > 0 {
		log.Info().Str("module", "relay.table").Int("evicted", n).Msg("stale entries evicted")
	}
	return n
}

func (t *Table) list(keep func(*Entry) bool) []Entry {
	t.mu.RLock()
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		if keep(e) {
			out = append(out, *e)
		}
	}
	t.mu.RUnlock()

	slices.SortFunc(out, func(a, b Entry) int {
		if a.Preference != b.Preference {
			return b.Preference - a.Preference
		}
		if c := b.LastSeen.Compare(a.LastSeen); c != 0 {
			return c
		}
		return strings.Compare(string(a.Address), string(b.Address))
	})
	return out
}

// Relays returns relay entries, most preferred first.
func (t *Table) Relays() []Entry {
	return t.list(func(e *Entry) bool { return e.Kind == KindRelay })
}

func (t *Table) Trackers() []Entry {
	return t.list(func(e *Entry) bool { return e.Kind == KindTracker })
}

func (t *Table) Preconfigured() []Entry {
	return t.list(func(e *Entry) bool { return e.Preconfigured })
}

// Preferred returns the best relay speaking protocol.
func (t *Table) Preferred(protocol string) (Entry, bool) {
	for _, e := range t.Relays() {
		if e.Protocol == protocol {
			return e, true
		}
	}
	return Entry{}, false
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
