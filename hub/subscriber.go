package hub

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/MustfainTariq/Jama-Translator/channel"
)

// Subscriber is one connected caption consumer. Messages arrive on Out in
// channel order; the hub closes Out when the subscriber is disconnected for
// any reason (explicit, slow, or session end).
type Subscriber struct {
	id      string
	channel channel.ID
	out     chan Message

	lastSeq atomic.Int64
	once    sync.Once
}

func newSubscriber(id channel.ID, queueSize int) *Subscriber {
	return &Subscriber{
		id:      uuid.NewString(),
		channel: id,
		out:     make(chan Message, queueSize),
	}
}

// ID returns the registration identity, fresh per connection.
func (s *Subscriber) ID() string { return s.id }

// Channel returns the stream this subscriber is attached to.
func (s *Subscriber) Channel() channel.ID { return s.channel }

// Out delivers messages in order. The channel is closed on disconnect.
func (s *Subscriber) Out() <-chan Message { return s.out }

// LastDelivered is the highest sequence number enqueued to this subscriber.
func (s *Subscriber) LastDelivered() int64 { return s.lastSeq.Load() }

// enqueue attempts a non-blocking delivery; false means the bounded queue is
// full and the subscriber must be dropped.
func (s *Subscriber) enqueue(msg Message) bool {
	select {
	case s.out <- msg:
		s.lastSeq.Store(msg.Sequence)
		return true
	default:
		return false
	}
}

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.out) })
}
