// Package notify fans the ledger's change signal out to subscribed views.
package notify

import (
	"sync"

	"github.com/OYH0/ChurrasControl/internal/port"
)

// Notifier is a single-producer, multi-consumer change signal. Each
// subscriber owns a buffered channel of capacity one, so bursts of
// commands coalesce into a single pending signal and a slow consumer
// never blocks the ledger engine or other consumers. A consumer that
// drains its channel and re-queries the read models never observes
// state older than the latest completed command.
type Notifier struct {
	mu     sync.Mutex
	subs   map[int]chan struct{}
	nextID int
	closed bool
}

func New() *Notifier {
	return &Notifier{subs: make(map[int]chan struct{})}
}

// Changed signals every subscriber without blocking. A subscriber with a
// signal already pending is skipped; its next drain covers this change.
func (n *Notifier) Changed() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribe registers a consumer. The returned cancel func must be
// called when the consumer goes away; it closes the channel.
func (n *Notifier) Subscribe() (<-chan struct{}, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan struct{}, 1)
	if n.closed {
		close(ch)
		return ch, func() {}
	}

	id := n.nextID
	n.nextID++
	n.subs[id] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if sub, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// SubscriberCount reports the number of active subscribers.
func (n *Notifier) SubscriberCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// Close terminates all subscriptions. Later Subscribe calls receive an
// already-closed channel.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	n.closed = true
	for id, ch := range n.subs {
		delete(n.subs, id)
		close(ch)
	}
}

// Fanout forwards one change signal to several notifiers, e.g. the
// in-process notifier plus a cross-process publisher.
type Fanout struct {
	targets []port.ChangeNotifier
}

func NewFanout(targets ...port.ChangeNotifier) *Fanout {
	return &Fanout{targets: targets}
}

func (f *Fanout) Changed() {
	for _, t := range f.targets {
		t.Changed()
	}
}
