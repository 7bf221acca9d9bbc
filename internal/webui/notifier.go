package webui

import (
	"sync"

	"github.com/seasr/flowkit/internal/flow"
)

// Notifier fans component status events out to subscribed listeners.
type Notifier struct {
	mu        sync.RWMutex
	listeners map[chan flow.Event]struct{}
}

// NewNotifier creates a notifier with no listeners.
func NewNotifier() *Notifier {
	return &Notifier{
		listeners: make(map[chan flow.Event]struct{}),
	}
}

// Subscribe returns a channel receiving every published event. The caller
// must Unsubscribe when done.
func (n *Notifier) Subscribe() chan flow.Event {
	ch := make(chan flow.Event, 16)
	n.mu.Lock()
	n.listeners[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener and closes its channel.
func (n *Notifier) Unsubscribe(ch chan flow.Event) {
	n.mu.Lock()
	delete(n.listeners, ch)
	n.mu.Unlock()
	close(ch)
}

// Publish sends ev to every listener. Listeners that are full miss it.
func (n *Notifier) Publish(ev flow.Event) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for ch := range n.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Len returns the number of listeners.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}
