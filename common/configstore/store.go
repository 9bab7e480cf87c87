package configstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pubgate/gateway/common/logger"
	"github.com/pubgate/gateway/common/models"
	"github.com/redis/go-redis/v9"
)

// Record is one config document keyed by (environment, effective-from
// timestamp).
type Record struct {
	Env      string
	FromDate time.Time
	Body     []byte
}

// Store persists deployed CDN config documents in Redis. Writes are
// all-or-nothing: every record in a batch lands in one MULTI/EXEC
// transaction together with the per-environment latest pointer.
type Store struct {
	redis *redis.Client
	log   *logger.Logger
}

// New creates a config store
func New(client *redis.Client, log *logger.Logger) *Store {
	return &Store{
		redis: client,
		log:   log,
	}
}

func recordKey(env string, from time.Time) string {
	return fmt.Sprintf("cdn:config:%s:%d", env, from.UnixMilli())
}

func latestKey(env string) string {
	return fmt.Sprintf("cdn:config:%s:latest", env)
}

// BatchWrite writes the records atomically. On failure it returns the
// records that were not processed; a non-empty result is a failed
// deployment.
func (s *Store) BatchWrite(ctx context.Context, records []Record) ([]Record, error) {
	if len(records) == 0 {
		return nil, nil
	}

	pipe := s.redis.TxPipeline()
	for _, rec := range records {
		key := recordKey(rec.Env, rec.FromDate)
		pipe.Set(ctx, key, rec.Body, 0)
		pipe.Set(ctx, latestKey(rec.Env), key, 0)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return records, fmt.Errorf("batch write config: %w", err)
	}

	for _, rec := range records {
		s.log.Info("wrote config record",
			"env", rec.Env,
			"from_date", rec.FromDate,
			"bytes", len(rec.Body),
		)
	}

	return nil, nil
}

// GetLatest returns the most recently deployed config for env, or nil
// when none has ever been deployed.
func (s *Store) GetLatest(ctx context.Context, env string) (*models.CDNConfig, error) {
	key, err := s.redis.Get(ctx, latestKey(env)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read latest config pointer: %w", err)
	}

	body, err := s.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config record: %w", err)
	}

	return DecodeConfig(body)
}
