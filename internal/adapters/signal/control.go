package signal

func (h *Hub) handlePing(c *Conn, f Frame) {
	_ = h.sendFrame(c, Frame{Type: FramePong, ID: f.ID, From: h.opts.Local, To: f.From})
}

// handleDiscoInfo answers a capability query addressed to us.
func (h *Hub) handleDiscoInfo(c *Conn, f Frame) {
	_ = h.sendFrame(c, Frame{
		Type:     FrameResult,
		ID:       f.ID,
		From:     h.opts.Local,
		To:       f.From,
		Features: h.opts.Features,
	})
}
