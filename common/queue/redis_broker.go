package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pubgate/gateway/common/logger"
	"github.com/redis/go-redis/v9"
)

// RedisBroker is a Broker backed by Redis: a ready list per actor plus
// a scheduled sorted set holding delayed messages, scored by ETA.
type RedisBroker struct {
	redis *redis.Client
	log   *logger.Logger

	// pollInterval bounds both the BRPOP block time and how often the
	// scheduled set is checked for due messages.
	pollInterval time.Duration
}

// NewRedisBroker creates a Redis-backed broker
func NewRedisBroker(client *redis.Client, pollInterval time.Duration, log *logger.Logger) *RedisBroker {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &RedisBroker{
		redis:        client,
		log:          log,
		pollInterval: pollInterval,
	}
}

func readyKey(actor string) string {
	return "queue:" + actor
}

func scheduledKey(actor string) string {
	return "queue:" + actor + ":scheduled"
}

// Enqueue dispatches a message, honoring its ETA.
func (b *RedisBroker) Enqueue(ctx context.Context, msg *Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if !msg.ETA.IsZero() && msg.ETA.After(time.Now()) {
		err = b.redis.ZAdd(ctx, scheduledKey(msg.Actor), redis.Z{
			Score:  float64(msg.ETA.UnixMilli()),
			Member: raw,
		}).Err()
	} else {
		err = b.redis.LPush(ctx, readyKey(msg.Actor), raw).Err()
	}
	if err != nil {
		return fmt.Errorf("enqueue message for %s: %w", msg.Actor, err)
	}

	b.log.Debug("enqueued message",
		"actor", msg.Actor,
		"message_id", msg.ID,
		"eta", msg.ETA,
	)
	return nil
}

// Subscribe consumes messages for one actor until ctx is cancelled.
// Handler errors are logged; the message is not redelivered by this
// broker instance (redelivery is the dispatcher's policy).
func (b *RedisBroker) Subscribe(ctx context.Context, actor string, handler Handler) error {
	b.log.Info("subscribing to actor queue", "actor", actor)

	go func() {
		for {
			select {
			case <-ctx.Done():
				b.log.Info("subscription cancelled", "actor", actor)
				return
			default:
			}

			if err := b.promoteDue(ctx, actor); err != nil && ctx.Err() == nil {
				b.log.Error("failed to promote scheduled messages", "actor", actor, "error", err)
			}

			if err := b.consumeOne(ctx, actor, handler); err != nil && ctx.Err() == nil {
				b.log.Error("failed to consume message", "actor", actor, "error", err)
				time.Sleep(time.Second) // back off on error
			}
		}
	}()

	return nil
}

// promoteDue moves scheduled messages whose ETA has passed onto the
// ready list.
func (b *RedisBroker) promoteDue(ctx context.Context, actor string) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)

	due, err := b.redis.ZRangeByScore(ctx, scheduledKey(actor), &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil || len(due) == 0 {
		return err
	}

	pipe := b.redis.TxPipeline()
	for _, raw := range due {
		pipe.LPush(ctx, readyKey(actor), raw)
		pipe.ZRem(ctx, scheduledKey(actor), raw)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (b *RedisBroker) consumeOne(ctx context.Context, actor string, handler Handler) error {
	res, err := b.redis.BRPop(ctx, b.pollInterval, readyKey(actor)).Result()
	if errors.Is(err, redis.Nil) {
		return nil // timed out, loop re-checks scheduled set
	}
	if err != nil {
		return err
	}

	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}

	if err := handler(ctx, &msg); err != nil {
		b.log.Error("message handler error",
			"actor", actor,
			"message_id", msg.ID,
			"error", err,
		)
	}
	return nil
}

// Pending returns the dispatched but not yet consumed messages for an
// actor, scheduled ones included.
func (b *RedisBroker) Pending(ctx context.Context, actor string) ([]*Message, error) {
	ready, err := b.redis.LRange(ctx, readyKey(actor), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list ready messages: %w", err)
	}
	scheduled, err := b.redis.ZRange(ctx, scheduledKey(actor), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list scheduled messages: %w", err)
	}

	var out []*Message
	for _, raw := range append(ready, scheduled...) {
		var msg Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, &msg)
	}
	return out, nil
}

// Close is a no-op; the underlying Redis client is shared and closed
// by its owner.
func (b *RedisBroker) Close() error {
	return nil
}
