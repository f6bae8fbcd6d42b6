package pool

import (
	"context"
	"encoding/json"
	"time"

	"agentpool/internal/domain"
)

// StateSink mirrors pool state to an external key-value store for
// observability and crash recovery. The in-memory engine is the source of
// truth: sink failures are logged and swallowed, never rolled back into
// engine state, and the engine passes all its property tests with NopSink.
type StateSink interface {
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	AddToSet(ctx context.Context, key, member string) error
	RemoveFromSet(ctx context.Context, key, member string) error
	PushList(ctx context.Context, key, value string) error
}

// Mirror key layout and TTLs.
const (
	instanceTTL   = 3600 * time.Second
	taskTTL       = 7200 * time.Second
	assignmentTTL = 7200 * time.Second
	resultTTL     = 86400 * time.Second
)

func instanceKey(id string) string { return "pool:instance:" + id }

func typeKey(t domain.AgentType) string { return "pool:type:" + string(t) }

func taskKey(id string) string { return "pool:task:" + id }

func queueKey(p domain.Priority) string { return "pool:queue:" + string(p) }

func assignmentKey(taskID string) string { return "pool:assignment:" + taskID }

func resultKey(taskID string) string { return "pool:result:" + taskID }

// NopSink discards every write. Used when no external store is configured.
type NopSink struct{}

func (NopSink) Put(context.Context, string, string, time.Duration) error { return nil }

func (NopSink) Delete(context.Context, string) error { return nil }

func (NopSink) AddToSet(context.Context, string, string) error { return nil }

func (NopSink) RemoveFromSet(context.Context, string, string) error { return nil }

func (NopSink) PushList(context.Context, string, string) error { return nil }

// sinkPut marshals v and writes it through the sink, logging failures.
func (p *Pool) sinkPut(ctx context.Context, key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		p.logger.Warn("state mirror marshal failed", "key", key, "error", err)
		return
	}
	if err := p.sink.Put(ctx, key, string(data), ttl); err != nil {
		p.logger.Warn("state mirror write failed", "key", key, "error", err)
	}
}

func (p *Pool) sinkDelete(ctx context.Context, key string) {
	if err := p.sink.Delete(ctx, key); err != nil {
		p.logger.Warn("state mirror delete failed", "key", key, "error", err)
	}
}

func (p *Pool) sinkAddToSet(ctx context.Context, key, member string) {
	if err := p.sink.AddToSet(ctx, key, member); err != nil {
		p.logger.Warn("state mirror set add failed", "key", key, "error", err)
	}
}

func (p *Pool) sinkRemoveFromSet(ctx context.Context, key, member string) {
	if err := p.sink.RemoveFromSet(ctx, key, member); err != nil {
		p.logger.Warn("state mirror set remove failed", "key", key, "error", err)
	}
}

func (p *Pool) sinkPushList(ctx context.Context, key, value string) {
	if err := p.sink.PushList(ctx, key, value); err != nil {
		p.logger.Warn("state mirror list push failed", "key", key, "error", err)
	}
}

// mirrorAgent writes the instance record and type-set membership.
func (p *Pool) mirrorAgent(ctx context.Context, a *domain.AgentInstance) {
	p.sinkPut(ctx, instanceKey(a.ID), a, instanceTTL)
	p.sinkAddToSet(ctx, typeKey(a.Type), a.ID)
}

func (p *Pool) unmirrorAgent(ctx context.Context, a *domain.AgentInstance) {
	p.sinkDelete(ctx, instanceKey(a.ID))
	p.sinkRemoveFromSet(ctx, typeKey(a.Type), a.ID)
}
