package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/alexisbeaulieu97/keyglow/internal/logger"
)

// AllEvents subscribes a handler to every event type.
const AllEvents = "*"

// LoggingPublisher writes each event as a structured log entry and then
// runs the subscribed handlers synchronously.
type LoggingPublisher struct {
	logger *logger.Logger
	subs   map[string][]subscriptionEntry
	nextID int
	mu     sync.RWMutex
}

// NewLoggingPublisher creates a publisher logging through log.
func NewLoggingPublisher(log *logger.Logger) *LoggingPublisher {
	return &LoggingPublisher{
		logger: log,
		subs:   make(map[string][]subscriptionEntry),
	}
}

// Publish logs the event and delivers it to subscribers.
func (p *LoggingPublisher) Publish(ctx context.Context, event Event) error {
	if p == nil || event == nil {
		return nil
	}

	p.mu.RLock()
	handlers := append([]subscriptionEntry(nil), p.subs[event.EventType()]...)
	handlers = append(handlers, p.subs[AllEvents]...)
	p.mu.RUnlock()

	fields := map[string]any{"event_type": event.EventType()}
	switch payload := event.Payload().(type) {
	case map[string]any:
		for key, value := range payload {
			fields[key] = value
		}
	case nil:
	default:
		fields["payload"] = payload
	}
	p.logger.WithFields(fields).Debug("event")

	for _, entry := range handlers {
		if err := deliver(ctx, entry.handler, event); err != nil {
			p.logger.WithFields(map[string]any{"event_type": event.EventType()}).
				WarnErr(err, "event handler failed")
		}
	}
	return nil
}

func deliver(ctx context.Context, handler Handler, event Event) (err error) {
	if handler == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, event)
}

// Subscribe registers a handler for eventType, or AllEvents.
func (p *LoggingPublisher) Subscribe(eventType string, handler Handler) (Subscription, error) {
	if p == nil || handler == nil {
		return noopSubscription{}, nil
	}
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.subs[eventType] = append(p.subs[eventType], subscriptionEntry{id: id, handler: handler})
	p.mu.Unlock()

	return subscription{
		cancel: func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			handlers := p.subs[eventType]
			for i, entry := range handlers {
				if entry.id == id {
					p.subs[eventType] = append(handlers[:i:i], handlers[i+1:]...)
					break
				}
			}
		},
	}, nil
}

type noopSubscription struct{}

func (noopSubscription) Unsubscribe() {}

type subscription struct {
	cancel func()
}

func (s subscription) Unsubscribe() {
	if s.cancel != nil {
		s.cancel()
	}
}

type subscriptionEntry struct {
	id      int
	handler Handler
}
