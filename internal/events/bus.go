package events

import (
	"sync"

	"github.com/rs/zerolog"
)

// Published is one fanned-out event: the appended log entry's assigned id
// plus its decoded payload, delivered to every subscriber.
type Published struct {
	ID      int64
	Subject string
	Data    EventData
}

// Bus replaces the EventEmitter-style observer chains: subscribers each get
// their own bounded channel and a slow subscriber drops rather than
// blocking the publisher. The allocation engine, risk guardian and treasury
// manager each publish after appending their own event to the log.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]chan Published
	cap    int
	log    zerolog.Logger
}

// NewBus constructs a Bus whose subscriber channels each buffer up to
// capacity items before new publishes are dropped for that subscriber.
func NewBus(capacity int, log zerolog.Logger) *Bus {
	if capacity <= 0 {
		capacity = 256
	}
	return &Bus{
		subs: make(map[string]chan Published),
		cap:  capacity,
		log:  log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a named consumer and returns its delivery channel.
// Re-subscribing under the same name replaces the previous channel.
func (b *Bus) Subscribe(name string) <-chan Published {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Published, b.cap)
	b.subs[name] = ch
	return ch
}

// Unsubscribe closes and removes a named consumer's channel.
func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[name]; ok {
		close(ch)
		delete(b.subs, name)
	}
}

// Publish fans out one event to every current subscriber, non-blocking.
// A subscriber whose channel is full drops the event with a logged warning,
// never stalls the publisher.
func (b *Bus) Publish(msg Published) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for name, ch := range b.subs {
		select {
		case ch <- msg:
		default:
			b.log.Warn().
				Str("subscriber", name).
				Str("subject", msg.Subject).
				Int64("event_id", msg.ID).
				Msg("subscriber channel full, dropping event")
		}
	}
}
