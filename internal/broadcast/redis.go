package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// envelope wraps a broadcast payload with its event name so a single
// subscriber connection can multiplex event kinds.
type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// RedisTransport publishes broadcast events over Redis pub/sub. The
// websocket edge (external to this service) subscribes to the same
// channels and relays to connected clients.
type RedisTransport struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewRedisTransport creates a Redis-backed broadcast transport.
func NewRedisTransport(rdb *redis.Client, logger *zap.Logger) *RedisTransport {
	return &RedisTransport{
		rdb:    rdb,
		logger: logger,
	}
}

// Publish sends the event to every live subscriber of the channel. Zero
// subscribers is not an error: nobody was connected to care.
func (t *RedisTransport) Publish(ctx context.Context, channel, eventName string, payload []byte) error {
	body, err := json.Marshal(envelope{Event: eventName, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	receivers, err := t.rdb.Publish(ctx, channel, body).Result()
	if err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}

	t.logger.Debug("broadcast published",
		zap.String("channel", channel),
		zap.String("event", eventName),
		zap.Int64("receivers", receivers),
	)

	return nil
}
