package events

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"chaincore/exception"
	"chaincore/logx"
)

type SubscriberID string

type Subscriber struct {
	ID      SubscriberID
	Channel chan ChainEvent
	filter  map[EventType]bool
}

// EventBus fans chain events out to subscribers over bounded channels.
// Delivery preserves publish order per subscriber. A subscriber whose queue
// is full is evicted rather than allowed to block the import pipeline; an
// evicted consumer must resynchronize by re-querying the client.
type EventBus struct {
	subscribers map[SubscriberID]*Subscriber
	queueSize   int
	mu          sync.RWMutex
}

// NewEventBus creates a bus whose subscriber queues hold queueSize events.
func NewEventBus(queueSize int) *EventBus {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &EventBus{
		subscribers: make(map[SubscriberID]*Subscriber),
		queueSize:   queueSize,
	}
}

func (eb *EventBus) generateUUIDID() SubscriberID {
	id := uuid.Must(uuid.NewV7())
	return SubscriberID(id.String())
}

// Subscribe registers a subscriber for the given event types, or for all
// events when none are named. The returned channel is closed on Unsubscribe
// or eviction.
func (eb *EventBus) Subscribe(eventTypes ...EventType) (SubscriberID, <-chan ChainEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	id := eb.generateUUIDID()

	var filter map[EventType]bool
	if len(eventTypes) > 0 {
		filter = make(map[EventType]bool, len(eventTypes))
		for _, et := range eventTypes {
			filter[et] = true
		}
	}

	ch := make(chan ChainEvent, eb.queueSize)
	eb.subscribers[id] = &Subscriber{ID: id, Channel: ch, filter: filter}

	logx.Info("EVENTBUS", fmt.Sprintf("Client subscribed to chain events | subscriber_id=%s | total_subscribers=%d", id, len(eb.subscribers)))

	return id, ch
}

// Unsubscribe removes a subscription by ID
func (eb *EventBus) Unsubscribe(id SubscriberID) bool {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subscriber, exists := eb.subscribers[id]
	if !exists {
		logx.Warn("EVENTBUS", fmt.Sprintf("Attempted to unsubscribe non-existent subscriber | subscriber_id=%s", id))
		return false
	}

	delete(eb.subscribers, id)
	close(subscriber.Channel)

	logx.Info("EVENTBUS", fmt.Sprintf("Client unsubscribed from chain events | subscriber_id=%s | remaining_subscribers=%d", id, len(eb.subscribers)))
	return true
}

// Publish delivers an event to every matching subscriber. Subscribers with a
// full queue are dropped so a slow consumer never stalls the publisher.
func (eb *EventBus) Publish(event ChainEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for id, subscriber := range eb.subscribers {
		if subscriber.filter != nil && !subscriber.filter[event.Type()] {
			continue
		}
		select {
		case subscriber.Channel <- event:
			// Event sent successfully
		default:
			// Queue overflow: evict the subscriber, it must re-query and resubscribe.
			delete(eb.subscribers, id)
			close(subscriber.Channel)
			logx.Warn("EVENTBUS", fmt.Sprintf("Subscriber queue full, evicted | subscriber_id=%s | event_type=%s | block=%s", id, event.Type(), event.BlockHash().Short()))
		}
	}
}

// GetTotalSubscriptions returns the total number of active subscriptions
func (eb *EventBus) GetTotalSubscriptions() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	return len(eb.subscribers)
}

// HasSubscriber checks if a subscriber with the given ID exists
func (eb *EventBus) HasSubscriber(id SubscriberID) bool {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	_, exists := eb.subscribers[id]
	return exists
}

// Consume drains a subscription channel on a panic-safe goroutine, invoking
// handler for every event until the channel closes. A panicking handler is
// recovered and logged instead of taking the process down.
func Consume(name string, ch <-chan ChainEvent, handler func(ChainEvent)) {
	exception.SafeGo(name, func() {
		for event := range ch {
			handler(event)
		}
	})
}
