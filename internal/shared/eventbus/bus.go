// Package eventbus delivers write notifications from repositories to
// in-process subscribers such as the read cache.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"firestore-odm/internal/shared/logger"
)

// Event is something that happened to a document or a unit of work
type Event interface {
	Type() string
	Timestamp() time.Time
}

// Handler reacts to one event
type Handler func(ctx context.Context, event Event) error

// Publisher is the side of the bus repositories depend on
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// EventBusInterface defines the contract for event bus implementations
type EventBusInterface interface {
	Publisher
	Subscribe(eventType string, handler Handler)
	SubscribeMany(handler Handler, eventTypes ...string)
	Unsubscribe(eventType string)
	GetSubscriberCount(eventType string) int
	GetEventTypes() []string
}

// EventBus is an in-memory, synchronous-by-default event bus
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   logger.Logger
	config   BusConfig
}

// BusConfig holds configuration for the event bus
type BusConfig struct {
	AsyncProcessing bool
	MaxRetries      int
	RetryDelay      time.Duration
}

// DefaultBusConfig delivers synchronously and retries a failing handler twice
func DefaultBusConfig() BusConfig {
	return BusConfig{
		AsyncProcessing: false,
		MaxRetries:      2,
		RetryDelay:      50 * time.Millisecond,
	}
}

// NewEventBus creates a new event bus instance
func NewEventBus(log logger.Logger) *EventBus {
	return NewEventBusWithConfig(log, DefaultBusConfig())
}

// NewEventBusWithConfig creates a new event bus with custom configuration
func NewEventBusWithConfig(log logger.Logger, config BusConfig) *EventBus {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &EventBus{
		handlers: make(map[string][]Handler),
		logger:   log.WithComponent("eventbus"),
		config:   config,
	}
}

// Subscribe adds a handler for a specific event type
func (eb *EventBus) Subscribe(eventType string, handler Handler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
	eb.logger.Debugf("Subscribed handler for event type: %s", eventType)
}

// SubscribeMany adds the same handler for several event types
func (eb *EventBus) SubscribeMany(handler Handler, eventTypes ...string) {
	for _, t := range eventTypes {
		eb.Subscribe(t, handler)
	}
}

// Publish delivers event to every handler of its type and waits for them.
// All handlers run even when some fail; the failures are joined.
func (eb *EventBus) Publish(ctx context.Context, event Event) error {
	eb.mu.RLock()
	handlers := append([]Handler(nil), eb.handlers[event.Type()]...)
	eb.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	errs := make([]error, len(handlers))
	if eb.config.AsyncProcessing {
		var wg sync.WaitGroup
		for i, h := range handlers {
			wg.Add(1)
			go func(i int, h Handler) {
				defer wg.Done()
				errs[i] = eb.deliver(ctx, event, h, i)
			}(i, h)
		}
		wg.Wait()
	} else {
		for i, h := range handlers {
			errs[i] = eb.deliver(ctx, event, h, i)
		}
	}
	return errors.Join(errs...)
}

// deliver calls handler until it succeeds or MaxRetries retries are spent.
// Waiting between attempts stops early when ctx is done.
func (eb *EventBus) deliver(ctx context.Context, event Event, handler Handler, idx int) error {
	log := eb.logger.WithFields(map[string]interface{}{
		"handler": idx,
		"event":   event.Type(),
	})

	attempts := eb.config.MaxRetries + 1
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = handler(ctx, event); err == nil {
			return nil
		}
		log.WithFields(map[string]interface{}{
			"attempt": attempt,
			"error":   err,
		}).Warn("Event handler failed")

		if attempt == attempts {
			break
		}
		timer := time.NewTimer(eb.config.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("handler %d for %s: %w", idx, event.Type(), ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("handler %d for %s failed after %d attempts: %w", idx, event.Type(), attempts, err)
}

// Unsubscribe removes all handlers for a specific event type
func (eb *EventBus) Unsubscribe(eventType string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	delete(eb.handlers, eventType)
	eb.logger.Debugf("Unsubscribed all handlers for event type: %s", eventType)
}

// GetSubscriberCount returns the number of handlers for an event type
func (eb *EventBus) GetSubscriberCount(eventType string) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.handlers[eventType])
}

// GetEventTypes returns all event types with at least one handler, sorted
func (eb *EventBus) GetEventTypes() []string {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	types := make([]string, 0, len(eb.handlers))
	for eventType := range eb.handlers {
		types = append(types, eventType)
	}
	sort.Strings(types)
	return types
}
