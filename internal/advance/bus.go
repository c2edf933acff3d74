// Package advance distributes dataset-advance events to interested
// consumers.
//
// Listeners hold only the most recent advance: publishing into a full
// listener replaces the pending event, so a burst of advances collapses
// into a single wakeup carrying the latest sequence.
package advance

import (
	"sync"
)

// Advance records that a dataset source has progressed to a sequence.
type Advance struct {
	Source string `json:"source"`
	Seq    uint64 `json:"seq"`
}

// Listener receives coalesced advances from a Bus.
type Listener struct {
	ch  chan Advance
	bus *Bus
}

// C returns the channel advances are delivered on.
func (l *Listener) C() <-chan Advance {
	return l.ch
}

// Close detaches the listener from its bus.
func (l *Listener) Close() {
	l.bus.remove(l)
}

// Bus fans advances out to listeners, latest-wins per listener.
type Bus struct {
	mu        sync.Mutex
	listeners map[*Listener]struct{}
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{listeners: map[*Listener]struct{}{}}
}

// Subscribe attaches a new listener.
func (b *Bus) Subscribe() *Listener {
	l := &Listener{ch: make(chan Advance, 1), bus: b}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

// Publish delivers the advance to every listener without blocking. A
// listener that has not consumed its previous advance sees only this
// one.
func (b *Bus) Publish(adv Advance) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for l := range b.listeners {
		select {
		case l.ch <- adv:
		default:
			select {
			case <-l.ch:
			default:
			}
			select {
			case l.ch <- adv:
			default:
			}
		}
	}
}

func (b *Bus) remove(l *Listener) {
	b.mu.Lock()
	delete(b.listeners, l)
	b.mu.Unlock()
}
