package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"orderline/internal/domain"
)

// streamMaxLen bounds the replay stream per prefix.
const streamMaxLen = 10000

// RedisPublisher publishes each event on a firehose channel and on a
// per-item channel, and appends it to a capped stream for replay.
type RedisPublisher struct {
	rdb    *redis.Client
	log    *zap.Logger
	prefix string
}

func NewRedisPublisher(rdb *redis.Client, log *zap.Logger, prefix string) *RedisPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	if prefix == "" {
		prefix = "orderline"
	}
	return &RedisPublisher{rdb: rdb, log: log, prefix: prefix}
}

// Channel is the firehose channel every event goes to.
func (p *RedisPublisher) Channel() string {
	return p.prefix + ":events"
}

// ItemChannel is the channel for a single work item.
func (p *RedisPublisher) ItemChannel(kind domain.Kind, itemID string) string {
	return fmt.Sprintf("%s:%s:%s", p.prefix, kind, itemID)
}

func (p *RedisPublisher) Publish(ctx context.Context, evt domain.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	pipe := p.rdb.Pipeline()
	pipe.Publish(ctx, p.Channel(), data)
	pipe.Publish(ctx, p.ItemChannel(evt.Kind, evt.ItemID), data)
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: "stream:" + p.prefix,
		MaxLen: streamMaxLen,
		Approx: true,
		ID:     "*",
		Values: map[string]any{"data": string(data), "type": evt.Type},
	})
	if _, err := pipe.Exec(ctx); err != nil {
		p.log.Error("failed to publish event",
			zap.String("channel", p.Channel()),
			zap.String("type", evt.Type),
			zap.String("item_id", evt.ItemID),
			zap.Error(err))
		return err
	}
	p.log.Debug("published event", zap.String("type", evt.Type), zap.String("item_id", evt.ItemID))
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
