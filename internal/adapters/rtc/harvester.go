// Package rtc gathers local ICE candidates with pion. The node only signals:
// sockets opened while gathering are released once the candidates are known.
package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceSignal/internal/app/relay"
	"github.com/dkeye/VoiceSignal/internal/app/transport"
	"github.com/dkeye/VoiceSignal/internal/domain"
)

// ICEServers turns STUN urls from config into pion servers.
func ICEServers(urls []string) []webrtc.ICEServer {
	if len(urls) == 0 {
		return nil
	}
	return []webrtc.ICEServer{{URLs: urls}}
}

// HostHarvester offers host and server reflexive candidates for every
// component it is asked about.
type HostHarvester struct {
	api     *webrtc.API
	servers []webrtc.ICEServer
	logger  zerolog.Logger
}

func NewHostHarvester(servers []webrtc.ICEServer) *HostHarvester {
	se := webrtc.SettingEngine{}
	se.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4, webrtc.NetworkTypeUDP6})
	return &HostHarvester{
		api:     webrtc.NewAPI(webrtc.WithSettingEngine(se)),
		servers: servers,
		logger:  log.With().Str("module", "rtc").Logger(),
	}
}

func (h *HostHarvester) Name() string { return "host" }

func (h *HostHarvester) Harvest(ctx context.Context, req transport.Request) ([]domain.Candidate, error) {
	g, err := h.api.NewICEGatherer(webrtc.ICEGatherOptions{ICEServers: h.servers})
	if err != nil {
		return nil, fmt.Errorf("new ice gatherer: %w", err)
	}
	defer func() {
		if err := g.Close(); err != nil {
			h.logger.Debug().Err(err).Msg("gatherer close")
		}
	}()

	var (
		mu    sync.Mutex
		found []domain.Candidate
		done  = make(chan struct{})
	)
	g.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			close(done)
			return
		}
		mu.Lock()
		found = append(found, toCandidate(*c, req.Component))
		mu.Unlock()
	})
	if err := g.Gather(); err != nil {
		return nil, fmt.Errorf("gather: %w", err)
	}

	select {
	case <-done:
	case <-ctx.Done():
		h.logger.Debug().Str("content", req.Content).Int("component", req.Component).Msg("gathering cut short")
	}

	mu.Lock()
	defer mu.Unlock()
	h.logger.Debug().
		Str("peer", string(req.Peer)).
		Str("content", req.Content).
		Int("component", req.Component).
		Int("candidates", len(found)).
		Msg("host candidates gathered")
	return append([]domain.Candidate(nil), found...), nil
}

// toCandidate maps a pion candidate gathered for the RTP component onto
// component. Priorities follow the ICE formula, which subtracts the component.
func toCandidate(c webrtc.ICECandidate, component int) domain.Candidate {
	if component < domain.ComponentRTP {
		component = domain.ComponentRTP
	}
	return domain.Candidate{
		Component:  component,
		Foundation: c.Foundation,
		IP:         relay.StripZone(c.Address),
		Port:       int(c.Port),
		Protocol:   c.Protocol.String(),
		Priority:   c.Priority - uint32(component-domain.ComponentRTP),
		Type:       domain.CandidateType(c.Typ.String()),
		RelAddr:    c.RelatedAddress,
		RelPort:    int(c.RelatedPort),
	}
}
