// Package bus implements the command bus (C3): a broadcast, multi-consumer
// channel of RobotCommand frames with a bounded buffer. It is adapted from
// the reference gateway's server/hub.go, which serialized client
// registration and broadcast through a single goroutine reading three
// channels (register, unregister, broadcast). The bus replaces that
// goroutine with an RWMutex-guarded subscriber map and drops per-client
// addressing: every subscriber receives the same stream, and a subscriber
// that falls behind is dropped rather than blocking the sender.
package bus

import (
	"sync"

	"go.uber.org/zap"

	"github.com/tabledelivery/control-core/internal/protocol"
)

// Capacity is the bounded buffer size of each subscriber's outbound channel.
const Capacity = 100

// Subscriber is a single consumer's channel. Callers receive a *Subscriber
// from Subscribe and must call Unsubscribe when done (e.g. on socket close).
type Subscriber struct {
	id string
	ch chan protocol.RobotCommand
}

// C returns the channel to range over for incoming commands.
func (s *Subscriber) C() <-chan protocol.RobotCommand { return s.ch }

// Bus is the broadcast hub. Publish never blocks: a subscriber whose buffer
// is full is dropped rather than holding up the publisher, matching the
// specification's "dropped frame cannot corrupt state" requirement — all
// real dispatch decisions live in the store, not the bus.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*Subscriber
	logger *zap.Logger
	nextID uint64
}

func New(logger *zap.Logger) *Bus {
	return &Bus{
		subs:   make(map[string]*Subscriber),
		logger: logger,
	}
}

// Subscribe registers a new consumer and returns its handle.
func (b *Bus) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscriber{
		id: subscriberID(b.nextID),
		ch: make(chan protocol.RobotCommand, Capacity),
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes a consumer. Safe to call more than once.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, sub.id)
}

// Publish fans a command out to every current subscriber. A subscriber whose
// channel is full is dropped from the bus: Publish does not block and does
// not retry; it removes the subscriber and closes its channel, so the socket
// ranging over C() ends on its next iteration.
func (b *Bus) Publish(cmd protocol.RobotCommand) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		select {
		case sub.ch <- cmd:
		default:
			delete(b.subs, id)
			close(sub.ch)
			if b.logger != nil {
				b.logger.Warn("bus: subscriber buffer full, dropping subscriber", zap.String("subscriber", sub.id))
			}
		}
	}
}

func subscriberID(n uint64) string {
	const hex = "0123456789abcdef"
	if n == 0 {
		return "0"
	}
	buf := make([]byte, 0, 16)
	for n > 0 {
		buf = append([]byte{hex[n%16]}, buf...)
		n /= 16
	}
	return string(buf)
}
