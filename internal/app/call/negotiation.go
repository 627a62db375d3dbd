package call

import (
	"fmt"
	"slices"

	"github.com/dkeye/VoiceSignal/internal/domain"
)

const creatorInitiator = "initiator"

func validateOffer(msg domain.Message) error {
	if msg.SID == "" {
		return fmt.Errorf("%w: missing sid", ErrMalformedOffer)
	}
	return validateContents(msg.Contents)
}

func validateContents(contents []domain.Content) error {
	if len(contents) == 0 {
		return fmt.Errorf("%w: no contents", ErrMalformedOffer)
	}
	seen := make(map[string]bool, len(contents))
	for _, c := range contents {
		if c.Name == "" {
			return fmt.Errorf("%w: content without name", ErrMalformedOffer)
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: duplicate content %q", ErrMalformedOffer, c.Name)
		}
		seen[c.Name] = true
		if c.Media != domain.MediaAudio && c.Media != domain.MediaVideo {
			return fmt.Errorf("%w: content %q has media %q", ErrMalformedOffer, c.Name, c.Media)
		}
	}
	return nil
}

func senders(c domain.Content) domain.Direction {
	if c.Senders == "" {
		return domain.DirectionSendRecv
	}
	return c.Senders
}

// localDirection is what we are able to do for mt right now.
func (p *Peer) localDirection(mt domain.MediaType) domain.Direction {
	m := p.call.deps.Media
	if m == nil {
		return domain.DirectionRecvOnly
	}
	d := m.Direction(mt)
	if d == "" {
		d = domain.DirectionSendRecv
	}
	send := d.Sends() && m.HasDevice(mt)
	if mt == domain.MediaVideo && !p.videoAllowed {
		send = false
	}
	return domain.DirectionFrom(send, d.Receives())
}

func (p *Peer) ssrc(mt domain.MediaType) uint32 {
	if m := p.call.deps.Media; m != nil {
		return m.SSRC(mt)
	}
	return 0
}

func (p *Peer) newContent(mt domain.MediaType) domain.Content {
	return domain.Content{
		Name:       string(mt),
		Creator:    creatorInitiator,
		Media:      mt,
		Senders:    p.localDirection(mt),
		SSRC:       p.ssrc(mt),
		Encryption: slices.Clone(p.call.deps.Encryption),
	}
}

// buildOffer always carries audio. Video is offered at least receive-only.
func (p *Peer) buildOffer() []domain.Content {
	return []domain.Content{p.newContent(domain.MediaAudio), p.newContent(domain.MediaVideo)}
}

// buildAnswer narrows every offered content to what both sides can do.
func (p *Peer) buildAnswer(offer []domain.Content) []domain.Content {
	out := make([]domain.Content, 0, len(offer))
	for _, c := range offer {
		out = append(out, domain.Content{
			Name:       c.Name,
			Creator:    c.Creator,
			Media:      c.Media,
			Senders:    p.localDirection(c.Media).And(senders(c).Reverse()),
			SSRC:       p.ssrc(c.Media),
			Encryption: intersect(c.Encryption, p.call.deps.Encryption),
		})
	}
	return out
}

func intersect(theirs, ours []string) []string {
	var out []string
	for _, m := range theirs {
		if slices.Contains(ours, m) {
			out = append(out, m)
		}
	}
	return out
}

// upsertContents replaces contents of dst by name and appends new ones.
func upsertContents(dst, src []domain.Content) []domain.Content {
	for _, c := range src {
		if cur := domain.FindContent(dst, c.Name); cur != nil {
			*cur = c
			continue
		}
		dst = append(dst, c)
	}
	return dst
}

func withoutContent(cs []domain.Content, name string) []domain.Content {
	return slices.DeleteFunc(cs, func(c domain.Content) bool { return c.Name == name })
}

// stripTransport drops transport data so contents can be resent in
// content-modify without repeating candidates.
func stripTransport(c domain.Content) domain.Content {
	c.Transport = nil
	return c
}
