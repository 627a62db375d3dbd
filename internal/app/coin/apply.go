package coin

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/VoiceSignal/internal/app/call"
	"github.com/dkeye/VoiceSignal/internal/domain"
)

var (
	ErrStaleVersion    = errors.New("conference-info version not newer than current")
	ErrOutOfOrder      = errors.New("partial conference-info does not follow current version")
	ErrDeletedDocument = errors.New("deleted conference-info not supported")
)

// Apply stores a document received from a remote focus on p and rebuilds the
// peer's conference members from it. Our own user is not a member.
func Apply(p *call.Peer, self domain.Address, doc *domain.ConferenceInfo) error {
	err := p.UpdateConferenceInfoReceived(func(cur *domain.ConferenceInfo) (*domain.ConferenceInfo, error) {
		version := -1
		if cur != nil {
			version = cur.Version
		}
		if doc.Version <= version {
			return nil, fmt.Errorf("%w: got %d, have %d", ErrStaleVersion, doc.Version, version)
		}
		switch doc.State {
		case domain.DocFull, "":
			next := doc.Clone()
			next.State = domain.DocFull
			return next, nil
		case domain.DocPartial:
			if cur == nil || doc.Version != version+1 {
				return nil, fmt.Errorf("%w: got %d, have %d", ErrOutOfOrder, doc.Version, version)
			}
			return Merge(cur, doc), nil
		default:
			return nil, ErrDeletedDocument
		}
	})
	if err != nil {
		return err
	}
	p.SetConferenceMembers(Members(p.ConferenceInfoReceived(), self))
	return nil
}

// Members lists one member per endpoint of every user but self.
func Members(doc *domain.ConferenceInfo, self domain.Address) []domain.ConferenceMember {
	if doc == nil {
		return nil
	}
	var out []domain.ConferenceMember
	for _, u := range doc.Users.List {
		if isSelf(u.Entity, self) {
			continue
		}
		for _, e := range u.Endpoints {
			entity := e.Entity
			if entity == "" {
				entity = u.Entity
			}
			m := domain.ConferenceMember{
				Address:     domain.Address(trimScheme(entity)),
				DisplayName: u.DisplayText,
				Status:      e.Status,
			}
			for _, md := range e.Media {
				switch md.Type {
				case domain.MediaAudio:
					m.AudioSrcID, m.AudioStatus = md.SrcID, md.Status
				case domain.MediaVideo:
					m.VideoSrcID, m.VideoStatus = md.SrcID, md.Status
				}
			}
			out = append(out, m)
		}
	}
	return out
}

func trimScheme(entity string) string {
	for _, scheme := range []string{"xmpp:", "sip:"} {
		if s, ok := strings.CutPrefix(entity, scheme); ok {
			return s
		}
	}
	return entity
}

func isSelf(entity string, self domain.Address) bool {
	return domain.Address(trimScheme(entity)).Bare() == self.Bare()
}
