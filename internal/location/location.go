// Package location provides observer location sources.
package location

import (
	"sync"

	"github.com/rubiojr/airdb/pkg/api"
)

// Provider supplies the latest observer coordinate and a stream of updates.
type Provider interface {
	CurrentLocation() (api.Coordinate, bool)
	Subscribe() (<-chan api.Coordinate, func())
}

// Broadcaster keeps the latest coordinate and fans updates out to
// subscribers. Subscribers that fall behind only receive the newest value.
type Broadcaster struct {
	mu      sync.RWMutex
	latest  api.Coordinate
	known   bool
	subs    map[int]chan api.Coordinate
	nextID  int
	stopped bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan api.Coordinate)}
}

func (b *Broadcaster) CurrentLocation() (api.Coordinate, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.latest, b.known
}

// Update records c as the latest location and notifies subscribers.
func (b *Broadcaster) Update(c api.Coordinate) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}
	b.latest = c
	b.known = true
	for _, ch := range b.subs {
		select {
		case ch <- c:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- c
		}
	}
}

func (b *Broadcaster) Subscribe() (<-chan api.Coordinate, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan api.Coordinate, 1)
	if b.stopped {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Stop closes all subscriber channels and ignores further updates.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopped = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// NewStatic returns a provider that always reports c and never updates.
func NewStatic(c api.Coordinate) *Broadcaster {
	b := NewBroadcaster()
	b.Update(c)
	return b
}
