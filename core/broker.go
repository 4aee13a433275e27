package core

import (
	"context"
	"fmt"
	"log/slog"
)

// EventBridge carries room events to subscribers on other instances.
type EventBridge interface {
	Publish(ctx context.Context, roomID string, e *Event) error
}

// Broker fans an event out to every session currently subscribed to a room.
// Delivery is best effort, at most once per connected session: a session
// that leaves or disconnects mid-publish simply does not receive the event,
// and late joiners catch up from the store's history instead.
type Broker struct {
	registry *RoomRegistry
	logger   *slog.Logger
	bridge   EventBridge

	onSlowSubscriber func(*Session)
}

type BrokerOption func(*Broker)

func WithSlowSubscriberPolicy(f func(*Session)) BrokerOption {
	return func(b *Broker) {
		b.onSlowSubscriber = f
	}
}

func NewBroker(registry *RoomRegistry, logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		registry:         registry,
		logger:           logger,
		onSlowSubscriber: func(*Session) {},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AttachBridge adds a cross-instance bridge. Must be called before the
// broker is used.
func (b *Broker) AttachBridge(bridge EventBridge) {
	b.bridge = bridge
}

// Publish delivers the event to every local subscriber of the room and, if
// a bridge is attached, to subscribers on other instances. Events published
// for the same room from the same caller reach each subscriber in call
// order; the write stream of a session is a FIFO.
func (b *Broker) Publish(ctx context.Context, roomID string, e *Event) {
	b.DeliverLocal(roomID, e)

	if b.bridge != nil {
		if err := b.bridge.Publish(ctx, roomID, e); err != nil {
			b.logger.Error(fmt.Sprintf("bridge publish: %v", err),
				slog.String("room_id", roomID))
		}
	}
}

// DeliverLocal pushes the event to this instance's subscribers only. The
// bridge uses it to re-deliver events that originated elsewhere.
func (b *Broker) DeliverLocal(roomID string, e *Event) {
	for _, s := range b.registry.SubscribersOf(roomID) {
		if !s.Send(e) {
			b.logger.Warn("subscriber write stream full, dropping",
				slog.String("session_id", s.ID()), slog.String("room_id", roomID))
			b.onSlowSubscriber(s)
		}
	}
}
