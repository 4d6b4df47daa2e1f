package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// channelFor builds the pub/sub channel name for one advertisement.
func channelFor(prefix string, advertisementID int64) string {
	return fmt.Sprintf("%sad.%d", prefix, advertisementID)
}

// RedisPublisher publishes bid updates to a per-advertisement Redis channel
// so every replica's bridge can fan them out to its own WebSocket clients.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

// NewRedisPublisher creates a RedisPublisher.
func NewRedisPublisher(client *redis.Client, channelPrefix string) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: channelPrefix}
}

func (p *RedisPublisher) PublishBidUpdate(ctx context.Context, update Update) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshaling bid update: %w", err)
	}
	if err := p.client.Publish(ctx, channelFor(p.prefix, update.AdvertisementID), payload).Err(); err != nil {
		return fmt.Errorf("publishing bid update: %w", err)
	}
	return nil
}

// Bridge subscribes to the Redis bid update channels and re-broadcasts every
// message into the local Hub.
type Bridge struct {
	client *redis.Client
	hub    *Hub
	prefix string
	logger *slog.Logger
}

// NewBridge creates a Bridge.
func NewBridge(client *redis.Client, hub *Hub, channelPrefix string, logger *slog.Logger) *Bridge {
	return &Bridge{client: client, hub: hub, prefix: channelPrefix, logger: logger}
}

// Run consumes the pattern subscription until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, b.prefix+"ad.*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			id, err := advertisementIDFromChannel(b.prefix, msg.Channel)
			if err != nil {
				b.logger.WarnContext(ctx, "ignoring bid update on unexpected channel",
					slog.String("channel", msg.Channel))
				continue
			}
			b.hub.Broadcast(id, []byte(msg.Payload))
		}
	}
}

func advertisementIDFromChannel(prefix, channel string) (int64, error) {
	raw, ok := strings.CutPrefix(channel, prefix+"ad.")
	if !ok {
		return 0, fmt.Errorf("channel %q does not match prefix %q", channel, prefix)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing advertisement id from channel %q: %w", channel, err)
	}
	return id, nil
}
