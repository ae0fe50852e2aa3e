// Package notify is the in-process pub/sub registry behind the run event
// stream. The registry is constructed in main and handed to whatever needs to
// broadcast; there is no package-level instance.
package notify

import (
	"sync"
	"time"
)

const subscriberBuffer = 16

// Event describes one run lifecycle transition.
type Event struct {
	Type         string    `json:"type"`
	RunID        string    `json:"runId"`
	UserID       string    `json:"userId"`
	Kind         string    `json:"kind"`
	ExperimentID string    `json:"experimentId"`
	At           time.Time `json:"at"`
}

const (
	EventRunStarted   = "run.started"
	EventRunObserved  = "run.observed"
	EventRunFinalized = "run.finalized"
	EventRunDeleted   = "run.deleted"
)

type Registry struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewRegistry() *Registry {
	return &Registry{subs: map[chan Event]struct{}{}}
}

// Subscribe returns a receive channel and a cancel func that must be called
// when the consumer goes away.
func (r *Registry) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	r.mu.Lock()
	r.subs[ch] = struct{}{}
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		if _, ok := r.subs[ch]; ok {
			delete(r.subs, ch)
			close(ch)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

// Broadcast delivers the event to every subscriber, dropping it for any whose
// buffer is full. A slow stream consumer never blocks a request.
func (r *Registry) Broadcast(event Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for ch := range r.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

func (r *Registry) SubscriberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
