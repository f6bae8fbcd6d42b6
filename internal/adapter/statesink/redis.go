// Package statesink mirrors pool state into Redis for observability and
// crash recovery. Writes are best-effort: a circuit breaker fails them
// fast when Redis is down so the engine never stalls on a dead store.
package statesink

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// RedisClient abstracts the Redis operations the sink needs, so a real
// go-redis client or a mock can be used interchangeably.
type RedisClient interface {
	// Set stores key=value with an expiry (0 = no expiry).
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Del deletes one or more keys.
	Del(ctx context.Context, keys ...string) error
	// SAdd adds a member to a set.
	SAdd(ctx context.Context, key, member string) error
	// SRem removes a member from a set.
	SRem(ctx context.Context, key, member string) error
	// RPush appends a value to a list.
	RPush(ctx context.Context, key, value string) error
	// Close shuts down the client.
	Close() error
}

// Breaker defaults.
const (
	defaultMaxFailures uint32        = 5
	defaultOpenTimeout time.Duration = 30 * time.Second
	defaultInterval    time.Duration = 60 * time.Second
)

// RedisSink implements the pool's StateSink against Redis. Every write
// goes through one shared circuit breaker: after repeated failures the
// circuit opens and writes return immediately until a probe succeeds.
type RedisSink struct {
	client  RedisClient
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  *slog.Logger
}

// NewRedisSink wraps client with breaker protection.
func NewRedisSink(client RedisClient, logger *slog.Logger) *RedisSink {
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "statesink:redis",
		MaxRequests: 1, // one probe in half-open state
		Interval:    defaultInterval,
		Timeout:     defaultOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= defaultMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("state sink circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return &RedisSink{client: client, breaker: cb, logger: logger}
}

func (s *RedisSink) execute(op func() error) error {
	_, err := s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

func (s *RedisSink) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.execute(func() error { return s.client.Set(ctx, key, value, ttl) })
}

func (s *RedisSink) Delete(ctx context.Context, key string) error {
	return s.execute(func() error { return s.client.Del(ctx, key) })
}

func (s *RedisSink) AddToSet(ctx context.Context, key, member string) error {
	return s.execute(func() error { return s.client.SAdd(ctx, key, member) })
}

func (s *RedisSink) RemoveFromSet(ctx context.Context, key, member string) error {
	return s.execute(func() error { return s.client.SRem(ctx, key, member) })
}

func (s *RedisSink) PushList(ctx context.Context, key, value string) error {
	return s.execute(func() error { return s.client.RPush(ctx, key, value) })
}

// Close shuts down the underlying client.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
