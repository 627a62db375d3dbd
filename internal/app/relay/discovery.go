package relay

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceSignal/internal/app/queue"
	"github.com/dkeye/VoiceSignal/internal/core"
	"github.com/dkeye/VoiceSignal/internal/domain"
	"github.com/dkeye/VoiceSignal/internal/metrics"
)

type Options struct {
	AutoDiscovery bool
	// Prefixes are tried in order against the service items of the server.
	Prefixes    []string
	StopOnFirst bool
	// MaxDepth bounds recursion: 1 queries only the starting node.
	MaxDepth int
	// MaxEntries caps relays added per pass; zero means no cap.
	MaxEntries int
	// MaxNodes caps nodes queried per pass; zero means no cap.
	MaxNodes int
}

// Result summarizes one discovery pass.
type Result struct {
	Queried int
	Found   int
	Evicted int
}

// Discoverer searches for relays reachable from an account. One pass runs at a
// time; requests go through a single worker that coalesces duplicates.
type Discoverer struct {
	mu     sync.Mutex
	opts   Options
	q      Querier
	roster core.Roster
	table  *Table
	worker *queue.Worker[domain.Address]
	logger zerolog.Logger
}

func NewDiscoverer(opts Options, q Querier, roster core.Roster, table *Table) *Discoverer {
	d := &Discoverer{
		opts:   opts,
		q:      q,
		roster: roster,
		table:  table,
		logger: log.With().Str("module", "relay.discovery").Logger(),
	}
	d.worker = queue.New("relay-discovery", func(ctx context.Context, account domain.Address) {
		d.Discover(ctx, account)
	})
	return d
}

func (d *Discoverer) Table() *Table { return d.table }

// Request queues a discovery pass for account.
func (d *Discoverer) Request(account domain.Address) bool {
	return d.worker.Enqueue(account)
}

// Run drives the discovery worker until ctx is done.
func (d *Discoverer) Run(ctx context.Context) error {
	return d.worker.Run(ctx)
}

type search struct {
	visited map[domain.Address]struct{}
	queried int
	found   int
}

// Discover runs one full pass: preconfigured entries, prefixed service items
// of the server, the server itself, then online roster resources. The visited
// set spans all phases.
func (d *Discoverer) Discover(ctx context.Context, account domain.Address) (res Result) {
	d.mu.Lock()
	defer d.mu.Unlock()

	res.Evicted = d.table.Evict()
	st := &search{visited: make(map[domain.Address]struct{})}
	defer func() {
		res.Queried, res.Found = st.queried, st.found
		d.logger.Info().
			Str("account", string(account)).
			Int("queried", res.Queried).
			Int("found", res.Found).
			Int("evicted", res.Evicted).
			Msg("discovery pass done")
	}()

	for _, e := range d.table.Preconfigured() {
		d.deepSearch(ctx, st, e.Address, d.opts.MaxDepth, "preconfigured")
	}

	server := domain.Address(account.Domain())
	if d.opts.AutoDiscovery {
		items, err := d.q.QueryItems(ctx, server)
		if err != nil {
			d.logger.Warn().Err(err).Str("server", string(server)).Msg("service items query failed")
		}
		for _, prefix := range d.opts.Prefixes {
			for _, item := range items {
				if !strings.HasPrefix(string(item), prefix) {
					continue
				}
				if d.deepSearch(ctx, st, item, d.opts.MaxDepth, "prefix") && d.opts.StopOnFirst {
					return res
				}
			}
		}
	}

	d.deepSearch(ctx, st, server, d.opts.MaxDepth, "server")

	if d.roster != nil {
		for _, contact := range d.roster.OnlineResources() {
			d.deepSearch(ctx, st, contact, d.opts.MaxDepth, "roster")
		}
	}
	return res
}

// deepSearch queries node and follows its trackers. It reports whether any
// relay was found below node.
func (d *Discoverer) deepSearch(ctx context.Context, st *search, node domain.Address, remaining int, phase string) bool {
	if remaining <= 0 || ctx.Err() != nil {
		return false
	}
	if d.opts.MaxNodes > 0 && st.queried >= d.opts.MaxNodes {
		return false
	}
	if d.opts.MaxEntries > 0 && st.found >= d.opts.MaxEntries {
		return false
	}
	if _, ok := st.visited[node]; ok {
		return false
	}
	st.visited[node] = struct{}{}
	st.queried++

	svc, err := d.q.QueryServices(ctx, node)
	metrics.RelayQuery(phase, err == nil)
	if err != nil {
		d.logger.Debug().Err(err).Str("node", string(node)).Str("phase", phase).Msg("services query failed")
		return false
	}

	found := false
	for _, r := range svc.Relays {
		if d.opts.MaxEntries > 0 && st.found >= d.opts.MaxEntries {
			break
		}
		r.Kind = KindRelay
		r.Preference = remaining
		d.table.Upsert(r)
		st.found++
		found = true
	}
	for _, tr := range svc.Trackers {
		tr.Kind = KindTracker
		tr.Preference = remaining
		d.table.Upsert(tr)
		if d.deepSearch(ctx, st, tr.Address, remaining-1, phase) {
			found = true
		}
	}
	return found
}
