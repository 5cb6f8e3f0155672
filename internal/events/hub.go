// Package events is the in-process broadcast hub. Every active subscriber
// gets its own bounded buffer; publishing never blocks on a subscriber and a
// full buffer drops its oldest event so the newest state always gets through.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type tags an event on the wire.
type Type string

const (
	TypeDecision    Type = "decision"
	TypeStateUpdate Type = "state_update"
	TypeConnected   Type = "connected"
	TypeHeartbeat   Type = "heartbeat"
)

// DefaultBufferSize is used when NewHub is given a non-positive size.
const DefaultBufferSize = 64

// ErrClosed is returned by Subscription.Next once the subscription is gone.
var ErrClosed = errors.New("events: subscription closed")

// Event is one broadcast notification. Seq is assigned by the hub at publish
// time and increases monotonically across all events.
type Event struct {
	ID        string    `json:"id"`
	Seq       uint64    `json:"seq"`
	Type      Type      `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates an event with a fresh ID and the current time.
func New(t Type, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// Publisher is the write side of the hub.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

// Publish calls f(e).
func (f PublisherFunc) Publish(e Event) { f(e) }

// Hub fans events out to subscribers.
type Hub struct {
	mu         sync.RWMutex
	subs       map[string]*Subscription
	bufferSize int
	seq        uint64
	closed     bool
}

// NewHub creates a hub whose subscribers buffer up to bufferSize events.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		subs:       make(map[string]*Subscription),
		bufferSize: bufferSize,
	}
}

// Subscribe registers a new subscriber. Subscribing to a closed hub returns
// an already-closed subscription.
func (h *Hub) Subscribe() *Subscription {
	s := newSubscription(h.bufferSize)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.close()
		return s
	}
	h.subs[s.id] = s
	return s
}

// Unsubscribe removes s and releases its buffer. It is idempotent and safe to
// call from the subscriber's own teardown.
func (h *Hub) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	h.mu.Lock()
	delete(h.subs, s.id)
	h.mu.Unlock()
	s.close()
}

// Publish delivers e to every active subscriber without blocking. The work
// per subscriber is constant regardless of how fast it consumes.
func (h *Hub) Publish(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	// The write lock orders sequence numbers with delivery, so every
	// subscriber sees events in publish order.
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.seq++
	e.Seq = h.seq
	for _, s := range h.subs {
		s.push(e)
	}
}

// Len returns the number of active subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close unsubscribes everyone. Later publishes are dropped.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*Subscription)
	h.closed = true
	h.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}

// Subscription is one consumer's view of the hub: a ring buffer of pending
// events plus a cursor at the last delivered sequence number.
type Subscription struct {
	id string

	mu      sync.Mutex
	buf     []Event
	head    int
	size    int
	cursor  uint64
	dropped uint64
	closed  bool

	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newSubscription(capacity int) *Subscription {
	return &Subscription{
		id:     uuid.NewString(),
		buf:    make([]Event, capacity),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// ID returns the subscription's unique identifier.
func (s *Subscription) ID() string { return s.id }

// push appends e, evicting the oldest buffered event when full.
func (s *Subscription) push(e Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	n := len(s.buf)
	if s.size == n {
		s.buf[s.head] = Event{}
		s.head = (s.head + 1) % n
		s.size--
		s.dropped++
	}
	s.buf[(s.head+s.size)%n] = e
	s.size++
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// pop removes the oldest buffered event.
func (s *Subscription) pop() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.size == 0 {
		return Event{}, false
	}
	e := s.buf[s.head]
	s.buf[s.head] = Event{}
	s.head = (s.head + 1) % len(s.buf)
	s.size--
	s.cursor = e.Seq
	return e, true
}

// Next blocks until an event is available, ctx is done, or the subscription
// is closed. It only ever waits on this subscription's own buffer.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	for {
		if e, ok := s.pop(); ok {
			return e, nil
		}
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-s.done:
			return Event{}, ErrClosed
		case <-s.notify:
		}
	}
}

// Done is closed when the subscription is unsubscribed or the hub closes.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Pending returns the number of buffered, undelivered events.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Dropped returns how many events were evicted by overflow.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Cursor returns the sequence number of the last event delivered by Next.
func (s *Subscription) Cursor() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.buf = make([]Event, 0)
		s.head, s.size = 0, 0
		s.mu.Unlock()
		close(s.done)
	})
}
