package events

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultChannel = "gigchat:events"

// RedisBridge publishes events to the local hub and to a Redis channel so
// subscribers connected to other instances see them too.
type RedisBridge struct {
	client   *redis.Client
	hub      *Hub
	channel  string
	originID string
	logger   *zap.Logger
}

func NewRedisBridge(client *redis.Client, hub *Hub, channel string, logger *zap.Logger) *RedisBridge {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBridge{
		client:   client,
		hub:      hub,
		channel:  channel,
		originID: uuid.New().String(),
		logger:   logger,
	}
}

func (b *RedisBridge) Publish(ctx context.Context, evt Event) {
	b.hub.Publish(ctx, evt)

	evt.Origin = b.originID
	raw, err := json.Marshal(evt)
	if err != nil {
		b.logger.Error("Failed to encode event", zap.String("type", evt.Type), zap.Error(err))
		return
	}
	if err := b.client.Publish(ctx, b.channel, raw).Err(); err != nil {
		b.logger.Warn("Failed to publish event to redis", zap.String("type", evt.Type), zap.Error(err))
	}
}

// Run relays events from other instances into the local hub until ctx is done.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				b.logger.Warn("Discarding malformed event", zap.Error(err))
				continue
			}
			if evt.Origin == b.originID {
				continue
			}
			b.hub.Publish(ctx, evt)
		}
	}
}
