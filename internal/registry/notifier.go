package registry

import "sync"

// Notifier is the change broadcast every store mutation goes through:
// a payload-less signal telling subscribers the underlying stores
// changed and the device view should be reconciled again.
//
// Delivery is synchronous and in subscription order, so a subscriber
// always observes store state as of after the mutation that triggered
// the event.
type Notifier struct {
	mu   sync.Mutex
	subs []subscriber
	next int
}

type subscriber struct {
	id int
	fn func()
}

// NewNotifier creates a Notifier with no subscribers.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe registers fn and returns a cancel function. Cancel is
// idempotent.
func (n *Notifier) Subscribe(fn func()) (cancel func()) {
	n.mu.Lock()
	id := n.next
	n.next++
	n.subs = append(n.subs, subscriber{id: id, fn: fn})
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, s := range n.subs {
			if s.id == id {
				n.subs = append(n.subs[:i], n.subs[i+1:]...)
				return
			}
		}
	}
}

// Notify invokes every subscriber, in subscription order, on the
// calling goroutine.
func (n *Notifier) Notify() {
	n.mu.Lock()
	subs := make([]subscriber, len(n.subs))
	copy(subs, n.subs)
	n.mu.Unlock()

	for _, s := range subs {
		s.fn()
	}
}
