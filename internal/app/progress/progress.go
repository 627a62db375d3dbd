// Package progress polls a status source until it reaches a terminal value.
package progress

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

type Event[S comparable] struct {
	Status S
	// Final is set exactly once, on the last event.
	Final bool
	// Cancelled reports that the watch ended before a terminal status was seen.
	Cancelled bool
}

// Watch calls poll immediately and then once per interval, emitting on every
// change. It returns after emitting the final event, which always fires.
func Watch[S comparable](
	ctx context.Context,
	clock clockwork.Clock,
	interval time.Duration,
	poll func() (status S, terminal bool),
	emit func(Event[S]),
) {
	last, terminal := poll()
	emit(Event[S]{Status: last, Final: terminal})
	if terminal {
		return
	}

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			emit(Event[S]{Status: last, Final: true, Cancelled: true})
			return
		case <-ticker.Chan():
			s, term := poll()
			if term {
				emit(Event[S]{Status: s, Final: true})
				return
			}
			if s != last {
				last = s
				emit(Event[S]{Status: s})
			}
		}
	}
}
