package orch

import (
	"time"

	"github.com/dkeye/VoiceSignal/internal/app/call"
	"github.com/dkeye/VoiceSignal/internal/app/transport"
	"github.com/dkeye/VoiceSignal/internal/core"
	"github.com/dkeye/VoiceSignal/internal/domain"
)

// TransportConfig describes how per-peer transport managers are built.
type TransportConfig struct {
	IDs        *transport.IDSource
	Host       transport.Harvester
	Relay      transport.Harvester
	Caps       core.CapabilityService
	Timeout    time.Duration
	Components int
}

// NewTransports returns a factory giving every peer its own manager. The relay
// harvester is used only for peers advertising Jingle Nodes support.
func NewTransports(cfg TransportConfig) func(domain.Address) call.Transport {
	if cfg.IDs == nil {
		cfg.IDs = transport.NewIDSource()
	}
	return func(peer domain.Address) call.Transport {
		var hs []transport.Harvester
		if cfg.Host != nil {
			hs = append(hs, cfg.Host)
		}
		if cfg.Relay != nil && (cfg.Caps == nil || cfg.Caps.SupportsFeature(peer, domain.FeatureJingleNodes)) {
			hs = append(hs, cfg.Relay)
		}
		return transport.NewManager(transport.Options{
			Peer:       peer,
			Harvesters: hs,
			IDs:        cfg.IDs,
			Timeout:    cfg.Timeout,
			Components: cfg.Components,
		})
	}
}
