// Package events provides a publish/subscribe bus for operational
// observability of the bridge. The connection manager and publisher
// emit events here (state changes, deliveries, dropped messages); the
// status API streams them to WebSocket clients and the sidecar keeps
// running counters from them. The bus is nil-safe: calling Publish on a
// nil *Bus is a no-op, so components do not need guard checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourceConnection identifies events from the MQTT connection manager.
	SourceConnection = "connection"
	// SourcePublisher identifies events from the envelope publisher.
	SourcePublisher = "publisher"
	// SourceHost identifies events from the sidecar host feed.
	SourceHost = "host"
)

// Kind constants describe the type of event within a source.
const (
	// KindStateChange signals a connection state transition.
	// Data: from, to, cause (optional).
	KindStateChange = "state_change"
	// KindDelivered signals a broker acknowledgment.
	// Data: topic, message_id (when the transport reports one).
	KindDelivered = "delivered"
	// KindDeliveryFailed signals a publish the transport could not
	// complete. Data: topic, error.
	KindDeliveryFailed = "delivery_failed"

	// KindPublished signals an envelope handed to the transport.
	// Data: type, topic, bytes.
	KindPublished = "published"
	// KindDropped signals an envelope skipped because the connection was
	// not open. Data: type, state.
	KindDropped = "dropped"

	// KindHook signals a hook invocation read from the host feed.
	// Data: hook.
	KindHook = "hook"
)

// Event represents a single operational event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// NewEvent builds an event stamped with the current time.
func NewEvent(source, kind string, data map[string]any) Event {
	return Event{Timestamp: time.Now(), Source: source, Kind: kind, Data: data}
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers, which matters here because publishers include
// transport callback goroutines.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the bidirectional channel stored in subs.
	recvToSend map[<-chan Event]chan Event
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that
// subscriber. Safe to call on a nil receiver (no-op).
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Safe to
// call with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Counters tallies events by kind. It is fed from a subscription and
// read from the status API; all methods are safe for concurrent use.
type Counters struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewCounters returns an empty tally.
func NewCounters() *Counters {
	return &Counters{counts: make(map[string]int64)}
}

// Run consumes ch until it is closed.
func (c *Counters) Run(ch <-chan Event) {
	for e := range ch {
		c.mu.Lock()
		c.counts[e.Kind]++
		c.mu.Unlock()
	}
}

// Snapshot returns a copy of the current tallies.
func (c *Counters) Snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}
