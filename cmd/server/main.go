package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/VoiceSignal/internal/adapters/http"
	"github.com/dkeye/VoiceSignal/internal/adapters/rtc"
	sig "github.com/dkeye/VoiceSignal/internal/adapters/signal"
	"github.com/dkeye/VoiceSignal/internal/app"
	"github.com/dkeye/VoiceSignal/internal/app/coin"
	"github.com/dkeye/VoiceSignal/internal/app/disco"
	"github.com/dkeye/VoiceSignal/internal/app/orch"
	"github.com/dkeye/VoiceSignal/internal/app/relay"
	"github.com/dkeye/VoiceSignal/internal/app/transport"
	"github.com/dkeye/VoiceSignal/internal/config"
	"github.com/dkeye/VoiceSignal/internal/domain"
	"github.com/dkeye/VoiceSignal/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	local, err := domain.NewAddress(cfg.Account)
	if err != nil {
		log.Fatal().Err(err).Str("account", cfg.Account).Msg("invalid account address")
	}
	metrics.Register()

	if err := run(ctx, cfg, local); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}

func features(cfg *config.Config) []string {
	fs := []string{
		domain.FeatureJingle,
		domain.FeatureICEUDP,
		domain.FeatureRawUDP,
		domain.FeatureCoin,
		domain.FeatureTransfer,
	}
	if cfg.Call.InputEventAware {
		fs = append(fs, domain.FeatureInputEvents)
	}
	return fs
}

func relayEntries(cfg *config.Config) []relay.Entry {
	out := make([]relay.Entry, 0, len(cfg.Relay.Preconfigured))
	for _, e := range cfg.Relay.Preconfigured {
		kind := relay.Kind(e.Kind)
		if kind == "" {
			kind = relay.KindRelay
		}
		protocol := e.Protocol
		if protocol == "" {
			protocol = "udp"
		}
		out = append(out, relay.Entry{Address: domain.Address(e.Address), Kind: kind, Protocol: protocol, Policy: "public"})
	}
	return out
}

func run(ctx context.Context, cfg *config.Config, local domain.Address) error {
	clock := clockwork.NewRealClock()
	registry := app.NewRegistry()
	policy := app.SimplePolicy{
		AutoAnswer: cfg.Call.AutoAnswer,
		MaxCalls:   cfg.Call.MaxCalls,
		Active:     registry.CallCount,
	}

	hub := sig.NewHub(sig.Options{
		Local:        local,
		SendBuffer:   cfg.Signal.SendBuffer,
		ReadLimit:    cfg.ReadLimit,
		PingPeriod:   cfg.PingPeriod,
		RateLimit:    cfg.Signal.RateLimit,
		RateBurst:    cfg.Signal.RateBurst,
		QueryTimeout: cfg.Signal.QueryTimeout,
		Features:     features(cfg),
	}, policy)
	caps := disco.New(hub, cfg.Signal.QueryTimeout)
	roster := app.NewRoster()

	table := relay.NewTable(clock, cfg.Relay.EntryTTL)
	table.Seed(relayEntries(cfg))
	discoverer := relay.NewDiscoverer(relay.Options{
		AutoDiscovery: cfg.Relay.AutoDiscovery,
		Prefixes:      cfg.Relay.Prefixes,
		StopOnFirst:   cfg.Relay.StopOnFirst,
		MaxDepth:      cfg.Relay.MaxDepth,
		MaxEntries:    cfg.Relay.MaxEntries,
		MaxNodes:      cfg.Relay.MaxNodes,
	}, hub, roster, table)

	transports := orch.NewTransports(orch.TransportConfig{
		IDs:        transport.NewIDSource(),
		Host:       rtc.NewHostHarvester(rtc.ICEServers(cfg.ICE.STUNServers)),
		Relay:      relay.NewHarvester(table, hub),
		Caps:       caps,
		Timeout:    cfg.Call.HarvestTimeout,
		Components: cfg.Call.Components,
	})
	engine := coin.NewEngine(clock, caps, hub, coin.Options{
		MinInterval: cfg.Coin.MinInterval,
		Disabled:    cfg.Coin.Disabled,
		Partial:     cfg.Coin.PartialNotifications,
	})

	o := orch.New(&orch.Orchestrator{
		Registry:   registry,
		Roster:     roster,
		Policy:     policy,
		Channel:    hub,
		Media:      app.NewStaticMedia(true, cfg.Call.VideoAllowed),
		Transports: transports,
		Coin:       engine,
		Caps:       caps,
		Relays:     discoverer,
		Clock:      clock,
	}, orch.Options{
		Local:           local,
		Paranoia:        cfg.Call.Paranoia,
		Encryption:      cfg.Call.Encryption,
		VideoAllowed:    cfg.Call.VideoAllowed,
		InputEventAware: cfg.Call.InputEventAware,
		TransportWait:   cfg.Call.TransportWait,
	})
	hub.SetHandler(o)

	r := router.SetupRouter(ctx, cfg, router.Deps{Orch: o, Hub: hub, Relays: table})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("account", string(local)).Msg("VoiceSignal server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return caps.Run(gctx) })
	g.Go(func() error { return discoverer.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return multierr.Combine(srv.Shutdown(shutdownCtx), hub.Close())
	})

	discoverer.Request(local)
	return g.Wait()
}
