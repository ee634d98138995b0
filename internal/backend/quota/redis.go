package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	redisTTL        = 48 * time.Hour
	redisMaxRetries = 100
)

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RedisStore keeps records as JSON strings. Reserve runs an optimistic
// WATCH/MULTI transaction and retries when another client touched the key.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Reserve(ctx context.Context, key, day string, limit int) (Record, bool, error) {
	var (
		rec Record
		ok  bool
	)
	txf := func(tx *redis.Tx) error {
		var err error
		rec, err = readRecord(ctx, tx, key)
		if err != nil {
			return err
		}
		if rec.Date != day {
			rec = Record{Date: day}
		}
		if rec.Count >= limit {
			ok = false
			return nil
		}
		rec.Count++
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, redisTTL)
			return nil
		})
		ok = err == nil
		return err
	}

	for i := 0; i < redisMaxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return rec, ok, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return Record{}, false, err
	}
	return Record{}, false, fmt.Errorf("quota transaction for %s kept conflicting", key)
}

func (s *RedisStore) Release(ctx context.Context, key, day string) error {
	txf := func(tx *redis.Tx) error {
		rec, err := readRecord(ctx, tx, key)
		if err != nil {
			return err
		}
		if rec.Date != day || rec.Count == 0 {
			return nil
		}
		rec.Count--
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, redisTTL)
			return nil
		})
		return err
	}

	for i := 0; i < redisMaxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("quota release for %s kept conflicting", key)
}

func (s *RedisStore) Get(ctx context.Context, key string) (Record, error) {
	return readRecord(ctx, s.client, key)
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readRecord(ctx context.Context, c stringGetter, key string) (Record, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, nil
	}
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("corrupt quota record %s: %w", key, err)
	}
	return rec, nil
}
