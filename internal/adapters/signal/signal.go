// Package signal carries session signaling over websocket connections. Every
// connection is the route to one remote address; frames addressed elsewhere
// fall back to a connection for the bare address or the domain.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"github.com/dkeye/VoiceSignal/internal/app"
	"github.com/dkeye/VoiceSignal/internal/core"
	"github.com/dkeye/VoiceSignal/internal/domain"
	"github.com/dkeye/VoiceSignal/internal/metrics"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
	ErrNotConnected = errors.New("remote not connected")
)

// BackPressurePolicy decides what happens to a remote whose send queue is full.
type BackPressurePolicy interface {
	OnBackPressure(remote domain.Address) app.BackpressureAction
}

type Options struct {
	Local      domain.Address
	SendBuffer int
	ReadLimit  int64
	PingPeriod time.Duration
	// RateLimit is inbound frames per second per remote. Zero disables limiting.
	RateLimit    float64
	RateBurst    int
	QueryTimeout time.Duration
	// Features answer disco-info queries addressed to us.
	Features []string
}

// Hub owns the websocket connections of the node and implements the
// signaling channel on top of them.
type Hub struct {
	opts    Options
	policy  BackPressurePolicy
	limiter *RateLimiter

	mu      sync.RWMutex
	handler core.InboundHandler
	conns   map[domain.Address]*Conn
	closed  bool

	pmu     sync.Mutex
	pending map[string]*pendingQuery

	logger zerolog.Logger
}

func NewHub(opts Options, policy BackPressurePolicy) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 5 * time.Second
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	return &Hub{
		opts:    opts,
		policy:  policy,
		limiter: NewRateLimiter(limit, opts.RateBurst),
		conns:   make(map[domain.Address]*Conn),
		pending: make(map[string]*pendingQuery),
		logger:  log.With().Str("module", "signal").Logger(),
	}
}

// SetHandler installs the receiver of inbound traffic. It must be called
// before the first connection is served.
func (h *Hub) SetHandler(handler core.InboundHandler) {
	h.mu.Lock()
	h.handler = handler
	h.mu.Unlock()
}

func (h *Hub) inbound() core.InboundHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.handler
}

// Conn is one websocket connection and its outbound queue.
type Conn struct {
	addr domain.Address
	ws   *websocket.Conn
	send chan []byte
	// in is drained by the dispatcher so handlers never block the reader.
	in chan Frame

	mu     sync.RWMutex
	closed bool
}

func (c *Conn) Address() domain.Address { return c.addr }

// speaksFor reports whether frames from a may arrive on c: the connection of
// a bare address or a domain carries the traffic routed to it.
func (c *Conn) speaksFor(a domain.Address) bool {
	return a == c.addr || a.Bare() == c.addr || domain.Address(a.Domain()) == c.addr
}

func (c *Conn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.send)
	return c.ws.Close()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Serve upgrades the request and routes addr through the new connection until
// it goes away. A previous connection for addr is replaced.
func (h *Hub) Serve(ctx context.Context, w http.ResponseWriter, r *http.Request, addr domain.Address) error {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("ws upgrade: %w", err)
	}
	c := &Conn{
		addr: addr,
		ws:   ws,
		send: make(chan []byte, h.opts.SendBuffer),
		in:   make(chan Frame, h.opts.SendBuffer),
	}
	if err := h.register(c); err != nil {
		_ = ws.Close()
		return err
	}
	logger := h.logger.With().Str("remote", string(addr)).Logger()
	logger.Info().Msg("connection registered")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	handler := h.inbound()
	if handler != nil {
		handler.HandlePresence(domain.Presence{From: addr, Available: true})
	}

	var wg conc.WaitGroup
	wg.Go(func() { h.writePump(ctx, c) })
	wg.Go(func() { h.dispatch(ctx, c) })
	h.readPump(ctx, c)
	cancel()
	close(c.in)
	wg.Wait()

	h.unregister(c)
	if handler != nil {
		handler.HandlePresence(domain.Presence{From: addr, Available: false})
	}
	logger.Info().Msg("connection closed")
	return nil
}

func (h *Hub) register(c *Conn) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	old := h.conns[c.addr]
	h.conns[c.addr] = c
	h.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	if h.conns[c.addr] == c {
		delete(h.conns, c.addr)
	}
	h.mu.Unlock()
	h.limiter.Forget(c.addr)
	_ = c.Close()
}

// route finds the connection for addr, trying the exact address, then any
// resource of the bare address, then the domain.
func (h *Hub) route(addr domain.Address) (*Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.conns[addr]; ok {
		return c, true
	}
	if c, ok := h.conns[addr.Bare()]; ok {
		return c, true
	}
	var candidates []domain.Address
	for a := range h.conns {
		if a.Bare() == addr.Bare() {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) > 0 {
		sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })
		return h.conns[candidates[0]], true
	}
	c, ok := h.conns[domain.Address(addr.Domain())]
	return c, ok
}

// Remotes lists the connected addresses, sorted.
func (h *Hub) Remotes() []domain.Address {
	h.mu.RLock()
	out := make([]domain.Address, 0, len(h.conns))
	for a := range h.conns {
		out = append(out, a)
	}
	h.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (h *Hub) deliver(to domain.Address, f Frame) error {
	c, ok := h.route(to)
	if !ok {
		metrics.SignalFrame("out", f.Type, "no-route")
		return fmt.Errorf("%w: %s", ErrNotConnected, to)
	}
	return h.sendFrame(c, f)
}

func (h *Hub) sendFrame(c *Conn, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", f.Type, err)
	}
	err = c.TrySend(data)
	switch {
	case err == nil:
		metrics.SignalFrame("out", f.Type, "ok")
		return nil
	case errors.Is(err, ErrBackpressure):
		metrics.SignalFrame("out", f.Type, "backpressure")
		h.onBackPressure(c)
	}
	return fmt.Errorf("send %s to %s: %w", f.Type, c.addr, err)
}

func (h *Hub) onBackPressure(c *Conn) {
	action := app.Disconnect
	if h.policy != nil {
		action = h.policy.OnBackPressure(c.addr)
	}
	switch action {
	case app.Disconnect:
		h.logger.Warn().Str("remote", string(c.addr)).Msg("send queue full, disconnecting")
		_ = c.Close()
	case app.DropMessage:
		h.logger.Warn().Str("remote", string(c.addr)).Msg("send queue full, frame dropped")
	}
}

// Send implements core.SignalChannel.
func (h *Hub) Send(msg domain.Message) error {
	return h.deliver(msg.To, Frame{Type: FrameSession, From: msg.From, To: msg.To, Message: &msg})
}

// SendConferenceInfo implements core.SignalChannel.
func (h *Hub) SendConferenceInfo(n domain.ConferenceNotice) error {
	return h.deliver(n.To, Frame{Type: FrameConferenceInfo, From: n.From, To: n.To, Notice: &n})
}

// Close drops every connection and fails pending queries.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	var err error
	for _, c := range conns {
		err = multierr.Append(err, c.Close())
	}

	h.pmu.Lock()
	for id, q := range h.pending {
		close(q.ch)
		delete(h.pending, id)
	}
	h.pmu.Unlock()
	return err
}
