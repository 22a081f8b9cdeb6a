// Package notify carries user-facing outcome notifications from the flows to
// whatever front end displays them.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind is the display class of a notification.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Notification is one message for the user.
type Notification struct {
	ID      string
	Kind    Kind
	Message string
	At      time.Time
}

// Publisher accepts notifications. Flows depend on this, not on Bus.
type Publisher interface {
	Publish(n Notification)
}

// Success publishes a success notification on p. A nil p drops it.
func Success(p Publisher, message string) {
	if p == nil {
		return
	}
	p.Publish(newNotification(KindSuccess, message))
}

// Error publishes an error notification on p. A nil p drops it.
func Error(p Publisher, message string) {
	if p == nil {
		return
	}
	p.Publish(newNotification(KindError, message))
}

func newNotification(kind Kind, message string) Notification {
	return Notification{ID: uuid.NewString(), Kind: kind, Message: message, At: time.Now()}
}

// subscriberBuffer is the per-listener queue depth.
const subscriberBuffer = 16

// Bus broadcasts notifications to every subscribed listener.
type Bus struct {
	mu        sync.RWMutex
	listeners map[chan Notification]struct{}
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[chan Notification]struct{})}
}

// Subscribe returns a channel that receives every published notification.
// The caller must call Unsubscribe when done.
func (b *Bus) Subscribe() <-chan Notification {
	ch := make(chan Notification, subscriberBuffer)
	b.mu.Lock()
	b.listeners[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener and closes its channel.
func (b *Bus) Unsubscribe(sub <-chan Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.listeners {
		if ch == sub {
			delete(b.listeners, ch)
			close(ch)
			return
		}
	}
}

// Publish delivers n to all listeners without blocking. A listener whose
// queue is full misses n. A nil Bus drops n.
func (b *Bus) Publish(n Notification) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.listeners {
		select {
		case ch <- n:
		default:
		}
	}
}

// Recorder is a Publisher that keeps every notification, for tests.
type Recorder struct {
	mu  sync.Mutex
	all []Notification
}

// Publish records n.
func (r *Recorder) Publish(n Notification) {
	r.mu.Lock()
	r.all = append(r.all, n)
	r.mu.Unlock()
}

// All returns a copy of the recorded notifications in publish order.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.all...)
}

// Count returns how many notifications of kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.all {
		if x.Kind == kind {
			n++
		}
	}
	return n
}

// Last returns the most recent notification, if any.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.all) == 0 {
		return Notification{}, false
	}
	return r.all[len(r.all)-1], true
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.all = nil
	r.mu.Unlock()
}
