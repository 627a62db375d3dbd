package relay

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceSignal/internal/app/transport"
	"github.com/dkeye/VoiceSignal/internal/domain"
)

var ErrNoRelay = errors.New("no relay known")

// Harvester allocates Jingle Nodes channels. One allocation yields two pairs;
// the companion pair is kept and handed out on the next call for the same
// peer, content and generation without asking the relay again.
type Harvester struct {
	table    *Table
	alloc    Allocator
	protocol string

	mu      sync.Mutex
	pending map[string]companion

	logger zerolog.Logger
}

func NewHarvester(table *Table, alloc Allocator) *Harvester {
	return &Harvester{
		table:    table,
		alloc:    alloc,
		protocol: "udp",
		pending:  make(map[string]companion),
		logger:   log.With().Str("module", "relay.harvester").Logger(),
	}
}

func (h *Harvester) Name() string { return "jingle-nodes" }

// Trickle reports that relay candidates may be sent as transport-info.
func (h *Harvester) Trickle() bool { return true }

type companion struct {
	hp         HostPort
	generation int
}

func (h *Harvester) Harvest(ctx context.Context, req transport.Request) ([]domain.Candidate, error) {
	key := string(req.Peer) + "|" + req.Content

	h.mu.Lock()
	cached, ok := h.pending[key]
	delete(h.pending, key)
	h.mu.Unlock()
	if ok && req.Component != domain.ComponentRTP && cached.generation == req.Generation {
		return []domain.Candidate{relayCandidate(cached.hp, req.Component)}, nil
	}

	relay, ok := h.table.Preferred(h.protocol)
	if !ok {
		return nil, ErrNoRelay
	}
	ch, err := h.alloc.AllocateChannel(ctx, relay.Address, h.protocol)
	if err != nil {
		return nil, fmt.Errorf("allocate channel on %s: %w", relay.Address, err)
	}
	h.logger.Debug().
		Str("relay", string(relay.Address)).
		Str("content", req.Content).
		Int("generation", req.Generation).
		Str("media", ch.Media.Host).
		Msg("channel allocated")

	if req.Component != domain.ComponentRTP {
		return []domain.Candidate{relayCandidate(ch.Companion, req.Component)}, nil
	}
	if req.Components != 1 {
		h.mu.Lock()
		h.pending[key] = companion{hp: ch.Companion, generation: req.Generation}
		h.mu.Unlock()
	}
	return []domain.Candidate{relayCandidate(ch.Media, req.Component)}, nil
}

func relayCandidate(hp HostPort, component int) domain.Candidate {
	return domain.Candidate{
		Component:  component,
		Foundation: "jn",
		IP:         StripZone(hp.Host),
		Port:       hp.Port,
		Protocol:   "udp",
		Priority:   relayPriority(component),
		Type:       domain.CandidateRelay,
	}
}

// relayPriority follows the ICE formula with type preference 0.
func relayPriority(component int) uint32 {
	const localPref = 65535
	return uint32(localPref<<8 | (256 - component))
}

// StripZone removes an IPv6 zone suffix such as "%eth0".
func StripZone(host string) string {
	if a, err := netip.ParseAddr(host); err == nil {
		return a.WithZone("").String()
	}
	if i := strings.IndexByte(host, '%'); i >= 0 {
		return host[:i]
	}
	return host
}
