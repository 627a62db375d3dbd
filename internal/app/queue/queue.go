// Package queue runs keyed background work on one dedicated goroutine.
package queue

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Worker drains a FIFO of keys one at a time. A key already waiting in the
// queue is not added twice; a key currently being handled may be queued again.
type Worker[K comparable] struct {
	mu      sync.Mutex
	pending map[K]struct{}
	order   []K
	stopped bool

	wake   chan struct{}
	handle func(context.Context, K)
	logger zerolog.Logger
}

func New[K comparable](name string, handle func(context.Context, K)) *Worker[K] {
	return &Worker[K]{
		pending: make(map[K]struct{}),
		wake:    make(chan struct{}, 1),
		handle:  handle,
		logger:  log.With().Str("module", "queue").Str("worker", name).Logger(),
	}
}

// Enqueue adds k unless it is already waiting or the worker has stopped.
func (w *Worker[K]) Enqueue(k K) bool {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return false
	}
	if _, ok := w.pending[k]; ok {
		w.mu.Unlock()
		return false
	}
	w.pending[k] = struct{}{}
	w.order = append(w.order, k)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

func (w *Worker[K]) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.order)
}

func (w *Worker[K]) next() (K, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var zero K
	if len(w.order) == 0 {
		return zero, false
	}
	k := w.order[0]
	w.order[0] = zero
	w.order = w.order[1:]
	delete(w.pending, k)
	return k, true
}

func (w *Worker[K]) drain() {
	w.mu.Lock()
	dropped := len(w.order)
	w.stopped = true
	w.order = nil
	clear(w.pending)
	w.mu.Unlock()
	w.logger.Info().Int("dropped", dropped).Msg("worker stopped")
}

// Run handles queued keys until ctx is done. It parks while the queue is empty.
// On shutdown the remaining keys are dropped and no new work starts.
func (w *Worker[K]) Run(ctx context.Context) error {
	w.logger.Info().Msg("worker started")
	for {
		if ctx.Err() != nil {
			w.drain()
			return nil
		}
		k, ok := w.next()
		if !ok {
			select {
			case <-ctx.Done():
				w.drain()
				return nil
			case <-w.wake:
			}
			continue
		}
		w.handle(ctx, k)
	}
}
