package statesink

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	op    string
	key   string
	value string
	ttl   time.Duration
}

type mockClient struct {
	calls []call
	err   error
}

func (m *mockClient) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.calls = append(m.calls, call{op: "set", key: key, value: value, ttl: ttl})
	return m.err
}

func (m *mockClient) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.calls = append(m.calls, call{op: "del", key: k})
	}
	return m.err
}

func (m *mockClient) SAdd(_ context.Context, key, member string) error {
	m.calls = append(m.calls, call{op: "sadd", key: key, value: member})
	return m.err
}

func (m *mockClient) SRem(_ context.Context, key, member string) error {
	m.calls = append(m.calls, call{op: "srem", key: key, value: member})
	return m.err
}

func (m *mockClient) RPush(_ context.Context, key, value string) error {
	m.calls = append(m.calls, call{op: "rpush", key: key, value: value})
	return m.err
}

func (m *mockClient) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRedisSinkDelegates(t *testing.T) {
	client := &mockClient{}
	sink := NewRedisSink(client, testLogger())
	ctx := context.Background()

	require.NoError(t, sink.Put(ctx, "pool:instance:a1", `{"id":"a1"}`, time.Hour))
	require.NoError(t, sink.AddToSet(ctx, "pool:type:developer", "a1"))
	require.NoError(t, sink.RemoveFromSet(ctx, "pool:type:developer", "a1"))
	require.NoError(t, sink.PushList(ctx, "pool:queue:high", "t1"))
	require.NoError(t, sink.Delete(ctx, "pool:instance:a1"))

	require.Len(t, client.calls, 5)
	assert.Equal(t, call{op: "set", key: "pool:instance:a1", value: `{"id":"a1"}`, ttl: time.Hour}, client.calls[0])
	assert.Equal(t, "sadd", client.calls[1].op)
	assert.Equal(t, "srem", client.calls[2].op)
	assert.Equal(t, call{op: "rpush", key: "pool:queue:high", value: "t1"}, client.calls[3])
	assert.Equal(t, "del", client.calls[4].op)
}

func TestRedisSinkBreakerOpensAfterFailures(t *testing.T) {
	client := &mockClient{err: errors.New("connection refused")}
	sink := NewRedisSink(client, testLogger())
	ctx := context.Background()

	for i := 0; i < int(defaultMaxFailures); i++ {
		assert.Error(t, sink.Put(ctx, "k", "v", 0))
	}
	before := len(client.calls)

	// Circuit is open now: the client is no longer reached.
	err := sink.Put(ctx, "k", "v", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Len(t, client.calls, before)
}

func TestRedisSinkRecovers(t *testing.T) {
	client := &mockClient{err: errors.New("down")}
	sink := NewRedisSink(client, testLogger())
	ctx := context.Background()

	assert.Error(t, sink.Put(ctx, "k", "v", 0))
	client.err = nil
	assert.NoError(t, sink.Put(ctx, "k", "v", 0))
}
