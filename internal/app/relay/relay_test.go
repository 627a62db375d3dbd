package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/VoiceSignal/internal/app/transport"
	"github.com/dkeye/VoiceSignal/internal/domain"
)

type fakeQuerier struct {
	mu       sync.Mutex
	services map[domain.Address]Services
	items    map[domain.Address][]domain.Address
	fail     map[domain.Address]bool
	queried  []domain.Address
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{
		services: map[domain.Address]Services{},
		items:    map[domain.Address][]domain.Address{},
		fail:     map[domain.Address]bool{},
	}
}

func (f *fakeQuerier) QueryServices(_ context.Context, node domain.Address) (Services, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queried = append(f.queried, node)
	if f.fail[node] {
		return Services{}, errors.New("timeout")
	}
	return f.services[node], nil
}

func (f *fakeQuerier) QueryItems(_ context.Context, entity domain.Address) ([]domain.Address, error) {
	return f.items[entity], nil
}

func (f *fakeQuerier) tracker(from, to domain.Address) {
	s := f.services[from]
	s.Trackers = append(s.Trackers, Entry{Address: to})
	f.services[from] = s
}

func (f *fakeQuerier) relay(at, relay domain.Address) {
	s := f.services[at]
	s.Relays = append(s.Relays, Entry{Address: relay, Protocol: "udp"})
	f.services[at] = s
}

type fakeRoster []domain.Address

func (r fakeRoster) OnlineResources() []domain.Address { return r }

func node(i int) domain.Address { return domain.Address(fmt.Sprintf("n%d.example.com", i)) }

func newTable() *Table { return NewTable(clockwork.NewFakeClock(), time.Hour) }

func TestDiscoveryNeverExceedsDepth(t *testing.T) {
	q := newFakeQuerier()
	for i := 0; i < 10; i++ {
		q.tracker(node(i), node(i+1))
	}
	table := newTable()
	table.Seed([]Entry{{Address: node(0), Kind: KindTracker}})
	d := NewDiscoverer(Options{MaxDepth: 3}, q, nil, table)

	d.Discover(context.Background(), "alice@example.com/pc")

	assert.Contains(t, q.queried, node(2))
	assert.NotContains(t, q.queried, node(3))
}

func TestDiscoveryBoundedOnCyclicTopology(t *testing.T) {
	q := newFakeQuerier()
	// every node points at every other node
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			if i != j {
				q.tracker(node(i), node(j))
			}
		}
	}
	table := newTable()
	table.Seed([]Entry{{Address: node(0), Kind: KindTracker}})
	d := NewDiscoverer(Options{MaxDepth: 10, MaxNodes: 4}, q, nil, table)

	res := d.Discover(context.Background(), "alice@example.com/pc")

	assert.Equal(t, 4, res.Queried)
	assert.Len(t, q.queried, 4)
	seen := map[domain.Address]bool{}
	for _, n := range q.queried {
		assert.False(t, seen[n], "node %s queried twice", n)
		seen[n] = true
	}
}

func TestDiscoveryStopsOnFirstPrefixedMatch(t *testing.T) {
	q := newFakeQuerier()
	q.items["example.com"] = []domain.Address{"conference.example.com", "jn.example.com", "relay.example.com"}
	q.relay("relay.example.com", "r1.example.com")
	q.relay("jn.example.com", "r2.example.com")
	d := NewDiscoverer(Options{
		AutoDiscovery: true,
		Prefixes:      []string{"relay", "jn"},
		StopOnFirst:   true,
		MaxDepth:      2,
	}, q, fakeRoster{"bob@example.com/phone"}, newTable())

	res := d.Discover(context.Background(), "alice@example.com/pc")

	assert.Equal(t, []domain.Address{"relay.example.com"}, q.queried)
	assert.Equal(t, 1, res.Found)
	best, ok := d.Table().Preferred("udp")
	require.True(t, ok)
	assert.Equal(t, domain.Address("r1.example.com"), best.Address)
}

func TestDiscoveryPhaseOrderSharesVisitedSet(t *testing.T) {
	q := newFakeQuerier()
	q.items["example.com"] = []domain.Address{"relay.example.com"}
	q.fail["relay.example.com"] = true
	q.tracker("example.com", "relay.example.com")
	table := newTable()
	table.Seed([]Entry{{Address: "tracker.example.org", Kind: KindTracker}})
	d := NewDiscoverer(Options{
		AutoDiscovery: true,
		Prefixes:      []string{"relay"},
		StopOnFirst:   true,
		MaxDepth:      3,
	}, q, fakeRoster{"bob@example.com/phone"}, table)

	d.Discover(context.Background(), "alice@example.com/pc")

	// relay.example.com failed in the prefix phase and is not asked again
	// when the server points at it
	assert.Equal(t, []domain.Address{
		"tracker.example.org",
		"relay.example.com",
		"example.com",
		"bob@example.com/phone",
	}, q.queried)
}

func TestDiscoveryMaxEntries(t *testing.T) {
	q := newFakeQuerier()
	for i := 0; i < 5; i++ {
		q.relay("example.com", node(i))
	}
	d := NewDiscoverer(Options{MaxDepth: 1, MaxEntries: 2}, q, nil, newTable())
	res := d.Discover(context.Background(), "alice@example.com")
	assert.Equal(t, 2, res.Found)
	assert.Len(t, d.Table().Relays(), 2)
}

func TestDiscoveryWorkerRunsRequests(t *testing.T) {
	q := newFakeQuerier()
	q.relay("example.com", "r1.example.com")
	d := NewDiscoverer(Options{MaxDepth: 1}, q, nil, newTable())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	require.True(t, d.Request("alice@example.com/pc"))
	require.Eventually(t, func() bool { return len(d.Table().Relays()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestTableEvictsStaleDiscoveredEntries(t *testing.T) {
	clock := clockwork.NewFakeClock()
	table := NewTable(clock, time.Minute)
	table.Seed([]Entry{{Address: "static.example.com"}})
	table.Upsert(Entry{Address: "old.example.com"})

	clock.Advance(2 * time.Minute)
	table.Upsert(Entry{Address: "fresh.example.com"})

	assert.Equal(t, 1, table.Evict())
	relays := table.Relays()
	require.Len(t, relays, 2)
	assert.Equal(t, domain.Address("static.example.com"), relays[0].Address)
	assert.Equal(t, domain.Address("fresh.example.com"), relays[1].Address)
}

func TestTableUpsertSupersedes(t *testing.T) {
	table := newTable()
	assert.True(t, table.Upsert(Entry{Address: "r.example.com", Preference: 1}))
	assert.False(t, table.Upsert(Entry{Address: "r.example.com", Preference: 3, Policy: "roster"}))
	relays := table.Relays()
	require.Len(t, relays, 1)
	assert.Equal(t, 3, relays[0].Preference)
	assert.Equal(t, "roster", relays[0].Policy)
}

type fakeAllocator struct {
	mu    sync.Mutex
	calls int
	ch    Channel
	err   error
}

func (f *fakeAllocator) AllocateChannel(context.Context, domain.Address, string) (Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.ch, f.err
}

func TestHarvesterStripsZoneAndCachesCompanion(t *testing.T) {
	table := newTable()
	table.Upsert(Entry{Address: "relay.example.com"})
	alloc := &fakeAllocator{ch: Channel{
		Media:     HostPort{Host: "2001:db8::1%eth0", Port: 40000},
		Companion: HostPort{Host: "2001:db8::1%eth0", Port: 40001},
	}}
	h := NewHarvester(table, alloc)
	req := transport.Request{Peer: "bob@example.com/phone", Content: "audio", Media: domain.MediaAudio, Components: 2}

	req.Component = domain.ComponentRTP
	first, err := h.Harvest(context.Background(), req)
	require.NoError(t, err)
	req.Component = domain.ComponentRTCP
	second, err := h.Harvest(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, alloc.calls)
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, "2001:db8::1", first[0].IP)
	assert.Equal(t, 40000, first[0].Port)
	assert.Equal(t, domain.CandidateRelay, first[0].Type)
	assert.Equal(t, "2001:db8::1", second[0].IP)
	assert.Equal(t, 40001, second[0].Port)
	assert.Equal(t, domain.ComponentRTCP, second[0].Component)

	// the cache is consumed; the next round allocates again
	req.Component = domain.ComponentRTP
	_, err = h.Harvest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, alloc.calls)
}

func TestHarvesterCompanionBoundToGeneration(t *testing.T) {
	table := newTable()
	table.Upsert(Entry{Address: "relay.example.com"})
	alloc := &fakeAllocator{ch: Channel{
		Media:     HostPort{Host: "192.0.2.1", Port: 5000},
		Companion: HostPort{Host: "192.0.2.1", Port: 5001},
	}}
	h := NewHarvester(table, alloc)
	req := transport.Request{Peer: "bob@example.com/phone", Content: "audio", Components: 2}

	// the round is cut short after the first component
	req.Component = domain.ComponentRTP
	_, err := h.Harvest(context.Background(), req)
	require.NoError(t, err)

	req.Generation = 1
	alloc.ch.Media.Port, alloc.ch.Companion.Port = 6000, 6001
	req.Component = domain.ComponentRTCP
	got, err := h.Harvest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, alloc.calls)
	require.Len(t, got, 1)
	assert.Equal(t, 6001, got[0].Port)
}

func TestHarvesterSingleComponentKeepsNoCompanion(t *testing.T) {
	table := newTable()
	table.Upsert(Entry{Address: "relay.example.com"})
	alloc := &fakeAllocator{ch: Channel{
		Media:     HostPort{Host: "192.0.2.1", Port: 5000},
		Companion: HostPort{Host: "192.0.2.1", Port: 5001},
	}}
	h := NewHarvester(table, alloc)
	req := transport.Request{Peer: "bob@example.com/phone", Content: "audio", Component: domain.ComponentRTP, Components: 1}

	first, err := h.Harvest(context.Background(), req)
	require.NoError(t, err)
	req.Generation = 1
	alloc.ch.Media.Port = 7000
	second, err := h.Harvest(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 2, alloc.calls)
	assert.Equal(t, 5000, first[0].Port)
	assert.Equal(t, 7000, second[0].Port)
	assert.Empty(t, h.pending)
}

func TestHarvesterWithoutRelay(t *testing.T) {
	h := NewHarvester(newTable(), &fakeAllocator{})
	_, err := h.Harvest(context.Background(), transport.Request{Content: "audio", Component: 1})
	assert.ErrorIs(t, err, ErrNoRelay)
}

func TestStripZone(t *testing.T) {
	assert.Equal(t, "2001:db8::1", StripZone("2001:db8::1%eth0"))
	assert.Equal(t, "fe80::1", StripZone("fe80::1%25"))
	assert.Equal(t, "192.0.2.7", StripZone("192.0.2.7"))
	assert.Equal(t, "relay.example.com", StripZone("relay.example.com"))
}
