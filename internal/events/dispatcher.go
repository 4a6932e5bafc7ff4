package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
}

// inMemoryDispatcher is a simple synchronous dispatcher.
type inMemoryDispatcher struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
}

// NewInMemoryDispatcher creates a dispatcher instance.
func NewInMemoryDispatcher() Dispatcher {
	return &inMemoryDispatcher{
		listeners: make(map[EventType][]EventHandler),
	}
}

// Publish invokes every handler for the event and joins their errors.
// A failing handler does not stop the others.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) error {
	d.mu.RLock()
	handlers := append([]EventHandler{}, d.listeners[event.Type]...)
	d.mu.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers a handler for the given event type.
func (d *inMemoryDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[eventType] = append(d.listeners[eventType], handler)
}

// redisDispatcher mirrors every event onto a Redis channel as JSON before
// running the local handlers.
type redisDispatcher struct {
	local   Dispatcher
	client  *redis.Client
	channel string
}

// NewRedisDispatcher wraps local so external consumers can follow events.
func NewRedisDispatcher(local Dispatcher, client *redis.Client, channel string) Dispatcher {
	return &redisDispatcher{local: local, client: client, channel: channel}
}

func (d *redisDispatcher) Publish(ctx context.Context, event Event) error {
	var errs []error
	data, err := json.Marshal(event)
	if err != nil {
		errs = append(errs, fmt.Errorf("encode event: %w", err))
	} else if err := d.client.Publish(ctx, d.channel, data).Err(); err != nil {
		errs = append(errs, fmt.Errorf("publish %s: %w", d.channel, err))
	}
	if err := d.local.Publish(ctx, event); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (d *redisDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.local.Subscribe(eventType, handler)
}
