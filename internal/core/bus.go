package core

import (
	"maps"
	"sync"
)

// Bus is an observer registry. Publish fans out to a snapshot of the
// subscribers taken under lock, so handlers may subscribe or unsubscribe freely.
type Bus[E any] struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(E)
}

func NewBus[E any]() *Bus[E] {
	return &Bus[E]{subs: make(map[int]func(E))}
}

// Subscribe registers fn and returns a function removing it.
func (b *Bus[E]) Subscribe(fn func(E)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

func (b *Bus[E]) Publish(e E) {
	b.mu.RLock()
	snapshot := make(map[int]func(E), len(b.subs))
	maps.Copy(snapshot, b.subs)
	b.mu.RUnlock()

	for _, fn := range snapshot {
		fn(e)
	}
}
