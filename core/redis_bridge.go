package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const roomChannelPrefix = "chat:room:"

// RedisBridge relays room events between instances over redis pub/sub.
// Each instance publishes to chat:room:<id> and pattern-subscribes to
// chat:room:*; events carrying its own origin id are skipped so local
// subscribers never see an event twice.
type RedisBridge struct {
	client  *redis.Client
	origin  string
	logger  *slog.Logger
	deliver func(roomID string, e *Event)
}

type bridgeEnvelope struct {
	Origin string `json:"origin"`
	Event  *Event `json:"event"`
}

func NewRedisBridge(client *redis.Client, logger *slog.Logger, deliver func(roomID string, e *Event)) *RedisBridge {
	return &RedisBridge{
		client:  client,
		origin:  uuid.New().String(),
		logger:  logger,
		deliver: deliver,
	}
}

func (b *RedisBridge) Publish(ctx context.Context, roomID string, e *Event) error {
	payload, err := json.Marshal(bridgeEnvelope{Origin: b.origin, Event: e})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := b.client.Publish(ctx, roomChannelPrefix+roomID, payload).Err(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Run consumes remote events until the context is canceled.
func (b *RedisBridge) Run(ctx context.Context) {
	pubsub := b.client.PSubscribe(ctx, roomChannelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			roomID := strings.TrimPrefix(msg.Channel, roomChannelPrefix)

			var envelope bridgeEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
				b.logger.Error(fmt.Sprintf("unmarshal envelope: %v", err),
					slog.String("channel", msg.Channel))
				continue
			}
			if envelope.Origin == b.origin || envelope.Event == nil {
				continue
			}

			b.deliver(roomID, envelope.Event)
		}
	}
}
