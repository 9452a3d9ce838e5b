package app

import (
	"sync"

	"learnspace-service/internal/domain"
)

// Notifier fans transient notifications out to subscribers (the event
// stream). Slow subscribers have their stale entry dropped rather than
// blocking the publisher.
type Notifier struct {
	mu   sync.Mutex
	subs map[chan domain.Notification]struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[chan domain.Notification]struct{})}
}

// Subscribe returns a channel of notifications. The caller must invoke the
// returned cancel function to avoid leaks.
func (n *Notifier) Subscribe() (<-chan domain.Notification, func()) {
	ch := make(chan domain.Notification, 8)

	n.mu.Lock()
	n.subs[ch] = struct{}{}
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		if _, ok := n.subs[ch]; ok {
			delete(n.subs, ch)
			close(ch)
		}
		n.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the notification to every subscriber.
func (n *Notifier) Publish(notification domain.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs {
		select {
		case ch <- notification:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- notification
		}
	}
}

// Error publishes an error toast.
func (n *Notifier) Error(message string) {
	n.Publish(domain.Notification{Kind: domain.NotifyError, Message: message})
}

// Info publishes an informational note.
func (n *Notifier) Info(message string) {
	n.Publish(domain.Notification{Kind: domain.NotifyInfo, Message: message})
}
