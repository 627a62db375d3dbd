package progress

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sink struct {
	mu     sync.Mutex
	events []Event[string]
}

func (s *sink) emit(e Event[string]) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *sink) all() []Event[string] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event[string](nil), s.events...)
}

func TestWatchEmitsChangesUntilTerminal(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var status atomic.Value
	status.Store("connecting")
	poll := func() (string, bool) {
		s := status.Load().(string)
		return s, s == "done"
	}
	out := &sink{}
	finished := make(chan struct{})
	go func() {
		Watch(context.Background(), clock, 50*time.Millisecond, poll, out.emit)
		close(finished)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(50 * time.Millisecond) // unchanged, nothing emitted
	status.Store("ringing")
	clock.Advance(50 * time.Millisecond)
	require.Eventually(t, func() bool { return len(out.all()) == 2 }, time.Second, 5*time.Millisecond)

	status.Store("done")
	clock.Advance(50 * time.Millisecond)
	<-finished

	events := out.all()
	require.Len(t, events, 3)
	assert.Equal(t, "connecting", events[0].Status)
	assert.Equal(t, "ringing", events[1].Status)
	assert.Equal(t, Event[string]{Status: "done", Final: true}, events[2])
}

func TestWatchFinalEventOnCancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	out := &sink{}
	finished := make(chan struct{})
	go func() {
		Watch(ctx, clock, time.Second, func() (string, bool) { return "waiting", false }, out.emit)
		close(finished)
	}()
	cancel()
	<-finished

	events := out.all()
	require.Len(t, events, 2)
	assert.True(t, events[1].Final)
	assert.True(t, events[1].Cancelled)
}

func TestWatchTerminalImmediately(t *testing.T) {
	out := &sink{}
	Watch(context.Background(), clockwork.NewFakeClock(), time.Second,
		func() (string, bool) { return "failed", true }, out.emit)
	assert.Equal(t, []Event[string]{{Status: "failed", Final: true}}, out.all())
}
