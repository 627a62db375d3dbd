package coin

import (
	"slices"

	"github.com/dkeye/VoiceSignal/internal/domain"
)

// Diff returns the partial document taking from to to, or nil when nothing
// changed. With no previous document the diff is to itself. Changed and added
// users are carried in full, removed users as deleted entries.
func Diff(from, to *domain.ConferenceInfo) *domain.ConferenceInfo {
	if from == nil {
		return to.Clone()
	}
	diff := &domain.ConferenceInfo{
		Entity: to.Entity,
		State:  domain.DocPartial,
		Users:  domain.Users{State: domain.DocPartial},
	}
	changed := false
	if from.UserCount != to.UserCount {
		diff.UserCount = to.UserCount
		changed = true
	}
	for _, u := range to.Users.List {
		old := from.User(u.Entity)
		if old != nil && old.Equal(u) {
			continue
		}
		nu := u.Clone()
		nu.State = domain.DocFull
		diff.Users.List = append(diff.Users.List, nu)
		changed = true
	}
	for _, u := range from.Users.List {
		if to.User(u.Entity) == nil {
			diff.Users.List = append(diff.Users.List, domain.ConferenceUser{Entity: u.Entity, State: domain.DocDeleted})
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return diff
}

// FullDiff is the diff used when partial notifications are disabled: the
// whole of to whenever anything differs.
func FullDiff(from, to *domain.ConferenceInfo) *domain.ConferenceInfo {
	if from != nil && Equal(from, to) {
		return nil
	}
	return to.Clone()
}

// Equal compares the content of two documents. Version, SID and user order
// are ignored.
func Equal(a, b *domain.ConferenceInfo) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Entity != b.Entity || a.UserCount != b.UserCount || len(a.Users.List) != len(b.Users.List) {
		return false
	}
	for _, u := range a.Users.List {
		o := b.User(u.Entity)
		if o == nil || !stripState(*o).Equal(stripState(u)) {
			return false
		}
	}
	return true
}

func stripState(u domain.ConferenceUser) domain.ConferenceUser {
	u.State = ""
	return u
}

// Merge applies the partial document diff onto base and returns the result as
// a full document carrying the version of diff.
func Merge(base, diff *domain.ConferenceInfo) *domain.ConferenceInfo {
	if base == nil {
		base = domain.NewConferenceInfo(diff.Entity)
	}
	out := base.Clone()
	out.State = domain.DocFull
	out.Users.State = domain.DocFull
	out.Version = diff.Version
	if diff.UserCount != 0 {
		out.UserCount = diff.UserCount
	}
	for _, u := range diff.Users.List {
		switch u.State {
		case domain.DocDeleted:
			removeUser(out, u.Entity)
		case domain.DocPartial:
			cur := out.User(u.Entity)
			if cur == nil {
				out.Users.List = append(out.Users.List, fullUser(u))
				continue
			}
			mergeEndpoints(cur, u)
		default:
			nu := fullUser(u)
			if cur := out.User(u.Entity); cur != nil {
				*cur = nu
				continue
			}
			out.Users.List = append(out.Users.List, nu)
		}
	}
	return out
}

func fullUser(u domain.ConferenceUser) domain.ConferenceUser {
	nu := u.Clone()
	nu.State = ""
	return nu
}

func removeUser(doc *domain.ConferenceInfo, entity string) {
	list := doc.Users.List[:0]
	for _, u := range doc.Users.List {
		if u.Entity != entity {
			list = append(list, u)
		}
	}
	doc.Users.List = list
}

func mergeEndpoints(cur *domain.ConferenceUser, u domain.ConferenceUser) {
	if u.DisplayText != "" {
		cur.DisplayText = u.DisplayText
	}
	for _, e := range u.Endpoints {
		e.Media = slices.Clone(e.Media)
		idx := -1
		for i := range cur.Endpoints {
			if cur.Endpoints[i].Entity == e.Entity {
				idx = i
				break
			}
		}
		switch {
		case e.State == domain.DocDeleted && idx >= 0:
			cur.Endpoints = append(cur.Endpoints[:idx], cur.Endpoints[idx+1:]...)
		case e.State == domain.DocDeleted:
		case idx >= 0:
			e.State = ""
			cur.Endpoints[idx] = e
		default:
			e.State = ""
			cur.Endpoints = append(cur.Endpoints, e)
		}
	}
}
