package hub

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/MustfainTariq/Jama-Translator/channel"
	"github.com/MustfainTariq/Jama-Translator/metrics"
)

var (
	// ErrChannelNotFound is returned for subscriptions to unknown channels.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrChannelExists guards against double registration.
	ErrChannelExists = errors.New("channel already registered")
)

// Config bounds the hub's buffers.
type Config struct {
	// BacklogSize is the per-channel ring capacity replayed to late joiners.
	BacklogSize int
	// SubscriberQueue is the bounded per-subscriber outbound queue; a full
	// queue disconnects that subscriber instead of stalling delivery.
	SubscriberQueue int
}

// DefaultConfig returns the production bounds.
func DefaultConfig() Config {
	return Config{BacklogSize: 32, SubscriberQueue: 64}
}

// Hub maintains the subscriber registry per channel and pushes released
// translations to every registered subscriber in release order.
type Hub struct {
	cfg    Config
	logger *zap.SugaredLogger
	m      *metrics.Metrics

	mu       sync.RWMutex
	channels map[channel.ID]*channelState
}

type channelState struct {
	mu      sync.Mutex
	backlog *ring
	subs    map[string]*Subscriber
}

// New constructs a Hub.
func New(cfg Config, logger *zap.SugaredLogger, m *metrics.Metrics) *Hub {
	if cfg.BacklogSize <= 0 {
		cfg.BacklogSize = DefaultConfig().BacklogSize
	}
	if cfg.SubscriberQueue < cfg.BacklogSize {
		// Replay must always fit in a fresh subscriber queue.
		cfg.SubscriberQueue = cfg.BacklogSize
	}

	return &Hub{
		cfg:      cfg,
		logger:   logger,
		m:        m,
		channels: make(map[channel.ID]*channelState),
	}
}

// Register creates the subscriber registry and backlog ring for a channel.
func (h *Hub) Register(id channel.ID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.channels[id]; ok {
		return fmt.Errorf("%w: %s/%s", ErrChannelExists, id.SessionID, id.Language)
	}
	h.channels[id] = &channelState{
		backlog: newRing(h.cfg.BacklogSize),
		subs:    make(map[string]*Subscriber),
	}
	return nil
}

// Publish records the message in the backlog and delivers it to every current
// subscriber. A subscriber whose queue is full is disconnected on the spot.
func (h *Hub) Publish(id channel.ID, msg Message) {
	h.mu.RLock()
	state, ok := h.channels[id]
	h.mu.RUnlock()
	if !ok {
		h.logger.Warnw("publish to unregistered channel",
			"session", id.SessionID, "language", id.Language)
		return
	}

	state.mu.Lock()
	state.backlog.append(msg)
	for subID, sub := range state.subs {
		if sub.enqueue(msg) {
			continue
		}
		delete(state.subs, subID)
		sub.close()
		h.m.SubscriberDisconnects.WithLabelValues("slow").Inc()
		h.m.Subscribers.WithLabelValues(id.SessionID).Dec()
		h.logger.Warnw("disconnecting slow subscriber",
			"session", id.SessionID,
			"language", id.Language,
			"subscriber", subID,
			"sequence", msg.Sequence,
		)
	}
	state.mu.Unlock()
}

// Subscribe registers a new subscriber and preloads the channel backlog into
// its queue, so the caller sees recent context before live messages resume.
// Reconnection is a fresh Subscribe; there is no resume of old registrations.
func (h *Hub) Subscribe(id channel.ID) (*Subscriber, error) {
	h.mu.RLock()
	state, ok := h.channels[id]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrChannelNotFound, id.SessionID, id.Language)
	}

	sub := newSubscriber(id, h.cfg.SubscriberQueue)

	state.mu.Lock()
	for _, msg := range state.backlog.snapshot() {
		// Queue capacity is at least the ring size, so replay cannot fail.
		sub.enqueue(msg)
	}
	state.subs[sub.id] = sub
	state.mu.Unlock()

	h.m.Subscribers.WithLabelValues(id.SessionID).Inc()
	return sub, nil
}

// Unsubscribe removes a subscriber explicitly (client hangup).
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.RLock()
	state, ok := h.channels[sub.channel]
	h.mu.RUnlock()
	if !ok {
		return
	}

	state.mu.Lock()
	_, registered := state.subs[sub.id]
	delete(state.subs, sub.id)
	state.mu.Unlock()

	if registered {
		sub.close()
		h.m.SubscriberDisconnects.WithLabelValues("client").Inc()
		h.m.Subscribers.WithLabelValues(sub.channel.SessionID).Dec()
	}
}

// CloseChannel tears a channel down, disconnecting every subscriber.
func (h *Hub) CloseChannel(id channel.ID) {
	h.mu.Lock()
	state, ok := h.channels[id]
	delete(h.channels, id)
	h.mu.Unlock()
	if !ok {
		return
	}

	state.mu.Lock()
	for _, sub := range state.subs {
		sub.close()
		h.m.SubscriberDisconnects.WithLabelValues("session_ended").Inc()
		h.m.Subscribers.WithLabelValues(id.SessionID).Dec()
	}
	state.subs = make(map[string]*Subscriber)
	state.mu.Unlock()
}

// SessionSubscribers counts connected subscribers across a session's channels.
func (h *Hub) SessionSubscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for id, state := range h.channels {
		if id.SessionID != sessionID {
			continue
		}
		state.mu.Lock()
		total += len(state.subs)
		state.mu.Unlock()
	}
	return total
}
