package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	pipeerrors "github.com/riverlane-stream/live-pipeline/internal/errors"
)

// RedisBroker implements Broker on top of Redis Streams, hashes, string
// keys with NX/PX, and Pub/Sub.
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker dials addr (and optionally authenticates with password)
// and returns a ready Broker. It does not block on a PING; callers that
// need a liveness check should call Ping themselves.
func NewRedisBroker(addr, password string, db int) *RedisBroker {
	return &RedisBroker{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// Ping verifies the broker is reachable.
func (b *RedisBroker) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return pipeerrors.NewBrokerError("ping", err)
	}
	return nil
}

func (b *RedisBroker) Append(ctx context.Context, log string, fields map[string]string) (string, error) {
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	id, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: log,
		Values: values,
	}).Result()
	if err != nil {
		return "", pipeerrors.NewBrokerError("append:"+log, err)
	}
	return id, nil
}

func (b *RedisBroker) ReadFrom(ctx context.Context, log, after string, block time.Duration) ([]LogEntry, error) {
	// A zero Block is sent as BLOCK 0, which waits indefinitely; a
	// negative Block omits BLOCK, so block <= 0 reads without waiting.
	if block <= 0 {
		block = -1
	}
	res, err := b.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{log, after},
		Block:   block,
		Count:   256,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, pipeerrors.NewBrokerError("readFrom:"+log, err)
	}
	var entries []LogEntry
	for _, stream := range res {
		for _, msg := range stream.Messages {
			fields := make(map[string]string, len(msg.Values))
			for k, v := range msg.Values {
				if s, ok := v.(string); ok {
					fields[k] = s
				} else {
					fields[k] = fmt.Sprintf("%v", v)
				}
			}
			entries = append(entries, LogEntry{ID: msg.ID, Fields: fields})
		}
	}
	return entries, nil
}

func (b *RedisBroker) HSet(ctx context.Context, key, field, value string) error {
	if err := b.client.HSet(ctx, key, field, value).Err(); err != nil {
		return pipeerrors.NewBrokerError("hset:"+key, err)
	}
	return nil
}

func (b *RedisBroker) HGet(ctx context.Context, key, field string) (string, bool, error) {
	v, err := b.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, pipeerrors.NewBrokerError("hget:"+key, err)
	}
	return v, true, nil
}

func (b *RedisBroker) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := b.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, pipeerrors.NewBrokerError("hgetall:"+key, err)
	}
	return m, nil
}

func (b *RedisBroker) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	v, err := b.client.HIncrBy(ctx, key, field, delta).Result()
	if err != nil {
		return 0, pipeerrors.NewBrokerError("hincrby:"+key, err)
	}
	return v, nil
}

func (b *RedisBroker) HExpire(ctx context.Context, key string, ttl time.Duration) error {
	if err := b.client.Expire(ctx, key, ttl).Err(); err != nil {
		return pipeerrors.NewBrokerError("hexpire:"+key, err)
	}
	return nil
}

func (b *RedisBroker) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := b.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, pipeerrors.NewBrokerError("setnx:"+key, err)
	}
	return ok, nil
}

func (b *RedisBroker) Refresh(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := b.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return false, pipeerrors.NewBrokerError("refresh:"+key, err)
	}
	return ok, nil
}

func (b *RedisBroker) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := b.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, pipeerrors.NewBrokerError("get:"+key, err)
	}
	return v, true, nil
}

func (b *RedisBroker) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, key).Err(); err != nil {
		return pipeerrors.NewBrokerError("delete:"+key, err)
	}
	return nil
}

func (b *RedisBroker) Keys(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	iter := b.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, pipeerrors.NewBrokerError("keys:"+pattern, err)
	}
	return out, nil
}

func (b *RedisBroker) Publish(ctx context.Context, channel, payload string) error {
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return pipeerrors.NewBrokerError("publish:"+channel, err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, pattern string) (<-chan string, func() error, error) {
	sub := b.client.PSubscribe(ctx, pattern)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, pipeerrors.NewBrokerError("subscribe:"+pattern, err)
	}

	out := make(chan string, 64)
	var once sync.Once
	redisCh := sub.Channel()

	go func() {
		defer close(out)
		for msg := range redisCh {
			select {
			case out <- msg.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()

	unsubscribe := func() error {
		var err error
		once.Do(func() { err = sub.Close() })
		return err
	}
	return out, unsubscribe, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
