package backend

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

type listener struct {
	id uint64
	fn AuthListener
}

// Notifier fans auth events out to listeners, synchronously and in emission order.
// Implementations of Auth embed one.
type Notifier struct {
	mu        sync.RWMutex
	listeners []listener
	nextID    atomic.Uint64
}

// OnAuthStateChange registers fn and returns a function that removes it.
func (n *Notifier) OnAuthStateChange(fn AuthListener) func() {
	id := n.nextID.Add(1)

	n.mu.Lock()
	n.listeners = append(n.listeners, listener{id: id, fn: fn})
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, l := range n.listeners {
			if l.id == id {
				n.listeners = append(n.listeners[:i], n.listeners[i+1:]...)
				return
			}
		}
	}
}

// Emit delivers event to every registered listener.
// Listeners run outside the lock so they may unsubscribe themselves.
func (n *Notifier) Emit(event AuthEvent, session *Session) {
	n.mu.RLock()
	ls := make([]listener, len(n.listeners))
	copy(ls, n.listeners)
	n.mu.RUnlock()

	for _, l := range ls {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("auth_listener_panicked", "event", string(event), "panic", r)
				}
			}()
			l.fn(event, session)
		}()
	}
}
