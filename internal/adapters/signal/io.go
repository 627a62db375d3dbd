package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dkeye/VoiceSignal/internal/metrics"
)

const writeWait = 5 * time.Second

func (h *Hub) writePump(ctx context.Context, c *Conn) {
	ticker := time.NewTicker(h.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				h.logger.Debug().Err(err).Str("remote", string(c.addr)).Msg("writePump ping")
				_ = c.Close()
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				h.logger.Error().Err(err).Str("remote", string(c.addr)).Msg("writePump set deadline")
				_ = c.Close()
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Error().Err(err).Str("remote", string(c.addr)).Msg("writePump write error")
				_ = c.Close()
				return
			}
		}
	}
}

func (h *Hub) readPump(ctx context.Context, c *Conn) {
	if h.opts.ReadLimit > 0 {
		c.ws.SetReadLimit(h.opts.ReadLimit)
	}
	pongWait := h.opts.PingPeriod * 10 / 9
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn().Err(err).Str("remote", string(c.addr)).Msg("readPump read error")
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			metrics.SignalFrame("in", "", "bad")
			h.logger.Warn().Err(err).Str("remote", string(c.addr)).Msg("bad json")
			continue
		}
		if !h.limiter.Allow(c.addr) {
			metrics.SignalFrame("in", f.Type, "limited")
			h.logger.Warn().Str("remote", string(c.addr)).Str("type", f.Type).Msg("rate limited, frame dropped")
			continue
		}
		if f.From == "" {
			f.From = c.addr
		} else if !c.speaksFor(f.From) {
			metrics.SignalFrame("in", f.Type, "spoofed")
			h.logger.Warn().Str("remote", string(c.addr)).Str("from", string(f.From)).Msg("sender not served by connection, frame dropped")
			continue
		}
		metrics.SignalFrame("in", f.Type, "ok")

		// Results complete queries that a handler on the dispatcher may be waiting for.
		if f.Type == FrameResult || f.Type == FrameError {
			h.resolve(c, f)
			continue
		}
		select {
		case c.in <- f:
		case <-ctx.Done():
			return
		}
	}
}

// dispatch hands inbound frames to the handler one at a time, keeping the
// order in which the remote sent them.
func (h *Hub) dispatch(ctx context.Context, c *Conn) {
	for f := range c.in {
		h.handleFrame(ctx, c, f)
	}
}

// handleFrame expects f.From to be checked against c already.
func (h *Hub) handleFrame(ctx context.Context, c *Conn, f Frame) {
	handler := h.inbound()

	switch f.Type {
	case FrameSession:
		if f.Message == nil || handler == nil {
			return
		}
		msg := *f.Message
		msg.From = f.From
		handler.HandleMessage(ctx, msg)
	case FrameConferenceInfo:
		if f.Notice == nil || handler == nil {
			return
		}
		n := *f.Notice
		n.From = f.From
		handler.HandleConferenceInfo(ctx, n)
	case FramePresence:
		if f.Presence == nil || handler == nil {
			return
		}
		pr := *f.Presence
		pr.From = f.From
		handler.HandlePresence(pr)
	case FramePing:
		h.handlePing(c, f)
	case FrameDiscoInfo:
		h.handleDiscoInfo(c, f)
	default:
		h.logger.Warn().Str("remote", string(c.addr)).Str("type", f.Type).Msg("unknown frame")
	}
}
