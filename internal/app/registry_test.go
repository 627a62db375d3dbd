package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/VoiceSignal/internal/app/call"
	"github.com/dkeye/VoiceSignal/internal/core"
	"github.com/dkeye/VoiceSignal/internal/domain"
)

type nopChannel struct{}

func (nopChannel) Send(domain.Message) error                        { return nil }
func (nopChannel) SendConferenceInfo(domain.ConferenceNotice) error { return nil }

func newTestCall(r *Registry) *call.Call {
	c := call.New(call.Deps{
		Local:   "alice@example.com/desk",
		Channel: nopChannel{},
		Events:  core.NewBus[call.Event](),
		Bind:    r.BindSession,
	})
	r.AddCall(c)
	return c
}

func TestRegistryBindAndUnbind(t *testing.T) {
	r := NewRegistry()
	c := newTestCall(r)
	p, first := c.NewIncomingPeer(domain.Message{SID: "s1", From: "bob@example.com/phone"})
	require.True(t, first)

	got, ok := r.Peer("s1")
	require.True(t, ok)
	assert.Same(t, p, got)

	cancelled := false
	require.True(t, r.SetCancel("s1", func() { cancelled = true }))
	assert.False(t, r.SetCancel("s2", func() {}))

	r.Unbind("s1")
	assert.True(t, cancelled)
	_, ok = r.Peer("s1")
	assert.False(t, ok)
}

func TestRegistryKeepsFirstBinding(t *testing.T) {
	r := NewRegistry()
	first, _ := newTestCall(r).NewIncomingPeer(domain.Message{SID: "s1", From: "bob@example.com/phone"})
	newTestCall(r).NewIncomingPeer(domain.Message{SID: "s1", From: "mallory@example.com/phone"})

	got, ok := r.Peer("s1")
	require.True(t, ok)
	assert.Same(t, first, got)
}

func TestRegistryIgnoresEmptySessionID(t *testing.T) {
	r := NewRegistry()
	c := newTestCall(r)
	c.NewIncomingPeer(domain.Message{From: "bob@example.com/phone"})

	_, ok := r.Peer("")
	assert.False(t, ok)
}

func TestRegistryCallsSortedAndRemoved(t *testing.T) {
	r := NewRegistry()
	a, b := newTestCall(r), newTestCall(r)

	calls := r.Calls()
	require.Len(t, calls, 2)
	assert.LessOrEqual(t, calls[0].ID(), calls[1].ID())

	r.RemoveCall(a.ID())
	_, ok := r.Call(a.ID())
	assert.False(t, ok)
	got, ok := r.Call(b.ID())
	require.True(t, ok)
	assert.Same(t, b, got)
}

func TestRegistryFindPeer(t *testing.T) {
	r := NewRegistry()
	c := newTestCall(r)
	c.NewIncomingPeer(domain.Message{SID: "s1", From: "bob@example.com/phone"})
	c.NewIncomingPeer(domain.Message{SID: "s2", From: "carol@example.com/phone"})

	p, ok := r.FindPeer(func(_ domain.SessionID, p *call.Peer) bool {
		return p.Address() == "carol@example.com/phone"
	})
	require.True(t, ok)
	assert.Equal(t, domain.SessionID("s2"), p.SID())
}

func TestRosterUpdate(t *testing.T) {
	r := NewRoster()
	assert.True(t, r.Update(domain.Presence{From: "b@x/2", Available: true}))
	assert.True(t, r.Update(domain.Presence{From: "a@x/1", Available: true}))
	assert.False(t, r.Update(domain.Presence{From: "a@x/1", Available: true}))
	assert.Equal(t, []domain.Address{"a@x/1", "b@x/2"}, r.OnlineResources())

	assert.True(t, r.Update(domain.Presence{From: "a@x/1"}))
	assert.False(t, r.Update(domain.Presence{From: "a@x/1"}))
	assert.Equal(t, []domain.Address{"b@x/2"}, r.OnlineResources())
}

func TestSimplePolicy(t *testing.T) {
	r := NewRegistry()
	c := newTestCall(r)
	p, _ := c.NewIncomingPeer(domain.Message{SID: "s1", From: "bob@example.com/phone"})
	audio := map[domain.MediaType]domain.Direction{
		domain.MediaAudio: domain.DirectionSendRecv,
		domain.MediaVideo: domain.DirectionInactive,
	}
	inactive := map[domain.MediaType]domain.Direction{
		domain.MediaAudio: domain.DirectionInactive,
		domain.MediaVideo: domain.DirectionInactive,
	}

	tests := []struct {
		name    string
		policy  SimplePolicy
		offered map[domain.MediaType]domain.Direction
		want    AnswerAction
	}{
		{"manual", SimplePolicy{}, audio, LeaveRinging},
		{"auto", SimplePolicy{AutoAnswer: true}, audio, AnswerCall},
		{"auto nothing to receive", SimplePolicy{AutoAnswer: true}, inactive, LeaveRinging},
		{"within limit", SimplePolicy{AutoAnswer: true, MaxCalls: 1, Active: r.CallCount}, audio, AnswerCall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.OnCallReceived(p, tt.offered))
		})
	}

	newTestCall(r).NewIncomingPeer(domain.Message{SID: "s2", From: "carol@example.com/phone"})
	assert.Equal(t, 2, r.CallCount())
	assert.Equal(t, RejectBusy, SimplePolicy{AutoAnswer: true, MaxCalls: 1, Active: r.CallCount}.OnCallReceived(p, audio))
	assert.Equal(t, Disconnect, SimplePolicy{}.OnBackPressure("bob@example.com/phone"))
}

func TestStaticMedia(t *testing.T) {
	m := NewStaticMedia(true, false)
	assert.True(t, m.HasDevice(domain.MediaAudio))
	assert.False(t, m.HasDevice(domain.MediaVideo))
	assert.Equal(t, domain.DirectionSendRecv, m.Direction(domain.MediaAudio))
	assert.Equal(t, domain.DirectionRecvOnly, m.Direction(domain.MediaVideo))
	assert.NotEqual(t, m.SSRC(domain.MediaAudio), m.SSRC(domain.MediaVideo))
	assert.NoError(t, m.Start(context.Background(), nil, nil))
}
