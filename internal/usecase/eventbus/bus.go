// Package eventbus is an in-process, goroutine-safe pub/sub bus for pool
// lifecycle events.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"agentpool/internal/domain"
)

type subscriber struct {
	id      uint64
	filter  domain.EventType // empty = all events
	handler domain.EventHandler
}

// Bus implements domain.EventBus. Handlers run in their own goroutines;
// panicking handlers are recovered and logged.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscriber
	nextID atomic.Uint64
	wg     sync.WaitGroup
	closed atomic.Bool
	logger *slog.Logger
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{logger: logger}
}

// Publish fans out event to every matching subscriber. Publishes after
// Close are dropped.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}

	b.mu.RLock()
	matched := make([]subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.filter == "" || sub.filter == event.Type {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range matched {
		b.wg.Add(1)
		go func(sub subscriber) {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked",
						"event", string(event.Type),
						"panic", r,
					)
				}
			}()
			sub.handler(ctx, event)
		}(sub)
	}
}

// Subscribe registers a handler for one event type and returns an
// unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return b.add(subscriber{filter: eventType, handler: handler})
}

// SubscribeAll registers a handler for every event and returns an
// unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	return b.add(subscriber{handler: handler})
}

func (b *Bus) add(sub subscriber) func() {
	sub.id = b.nextID.Add(1)

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == sub.id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Close stops accepting publishes and waits for in-flight handlers.
// Idempotent.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.wg.Wait()
}
