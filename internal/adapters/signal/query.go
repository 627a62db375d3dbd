package signal

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dkeye/VoiceSignal/internal/app/relay"
	"github.com/dkeye/VoiceSignal/internal/domain"
	"github.com/dkeye/VoiceSignal/internal/metrics"
)

var ErrRemote = errors.New("remote error")

type pendingQuery struct {
	ch   chan Frame
	to   domain.Address
	conn *Conn
}

// request sends a query to entity and waits for the frame carrying its id.
func (h *Hub) request(ctx context.Context, to domain.Address, f Frame) (Frame, error) {
	f.ID = uuid.NewString()
	f.From = h.opts.Local
	f.To = to

	c, ok := h.route(to)
	if !ok {
		metrics.SignalFrame("out", f.Type, "no-route")
		return Frame{}, fmt.Errorf("%w: %s", ErrNotConnected, to)
	}
	q := &pendingQuery{ch: make(chan Frame, 1), to: to, conn: c}
	h.pmu.Lock()
	h.pending[f.ID] = q
	h.pmu.Unlock()
	defer func() {
		h.pmu.Lock()
		delete(h.pending, f.ID)
		h.pmu.Unlock()
	}()

	if err := h.sendFrame(c, f); err != nil {
		return Frame{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, h.opts.QueryTimeout)
	defer cancel()
	select {
	case resp, ok := <-q.ch:
		if !ok {
			return Frame{}, ErrClosed
		}
		if resp.Type == FrameError {
			return Frame{}, fmt.Errorf("%w: %s %s: %s", ErrRemote, f.Type, to, resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		return Frame{}, fmt.Errorf("%s %s: %w", f.Type, to, ctx.Err())
	}
}

// resolve completes the query f answers. Only the queried entity, or the
// connection serving it, may answer.
func (h *Hub) resolve(c *Conn, f Frame) {
	h.pmu.Lock()
	q, ok := h.pending[f.ID]
	if ok && (q.conn != c || (f.From != q.to && f.From != c.addr)) {
		ok = false
	}
	if ok {
		delete(h.pending, f.ID)
	}
	h.pmu.Unlock()
	if !ok {
		h.logger.Debug().Str("id", f.ID).Str("from", string(f.From)).Msg("unsolicited result")
		return
	}
	q.ch <- f
}

// QueryCapabilities implements core.CapabilityQuerier.
func (h *Hub) QueryCapabilities(ctx context.Context, entity domain.Address) (domain.FeatureSet, error) {
	resp, err := h.request(ctx, entity, Frame{Type: FrameDiscoInfo})
	if err != nil {
		return nil, err
	}
	return domain.NewFeatureSet(resp.Features...), nil
}

// QueryItems implements relay.Querier.
func (h *Hub) QueryItems(ctx context.Context, entity domain.Address) ([]domain.Address, error) {
	resp, err := h.request(ctx, entity, Frame{Type: FrameDiscoItems})
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// QueryServices implements relay.Querier.
func (h *Hub) QueryServices(ctx context.Context, node domain.Address) (relay.Services, error) {
	resp, err := h.request(ctx, node, Frame{Type: FrameServices})
	if err != nil {
		return relay.Services{}, err
	}
	if resp.Services == nil {
		return relay.Services{}, nil
	}
	return *resp.Services, nil
}

// AllocateChannel implements relay.Allocator.
func (h *Hub) AllocateChannel(ctx context.Context, relayAddr domain.Address, protocol string) (relay.Channel, error) {
	resp, err := h.request(ctx, relayAddr, Frame{Type: FrameChannel, Protocol: protocol})
	if err != nil {
		return relay.Channel{}, err
	}
	if resp.Channel == nil {
		return relay.Channel{}, fmt.Errorf("%w: %s returned no channel", ErrRemote, relayAddr)
	}
	return *resp.Channel, nil
}
