// Package events provides the in-process topic bus used to broadcast live
// stream updates to observers such as the SSE endpoint.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Topics published by the monitor.
const (
	TopicStreamUpdate = "stream:update"
	TopicStreamSignal = "stream:signal"
	TopicStreamSprite = "stream:sprite"
)

// Event is one published message.
type Event struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

// SignalPayload is the live signal-level event emitted after a probe.
type SignalPayload struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Video        float64   `json:"video"`
	Audio        float64   `json:"audio"`
	VideoBitrate int64     `json:"videoBitrate"`
	AudioBitrate int64     `json:"audioBitrate"`
	FPS          float64   `json:"fps"`
	PeakDb       *float64  `json:"peakDb"`
	AvgDb        *float64  `json:"avgDb"`
	IsSilent     bool      `json:"isSilent"`
}

// SpritePayload announces a refreshed thumbnail.
type SpritePayload struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Subscriber represents a client subscribed to bus events.
type Subscriber struct {
	ID     string
	Events chan Event
}

// Bus fans events out to subscribers. Publishing never blocks: events for a
// subscriber with a full buffer are dropped.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	logger      *slog.Logger
}

// NewBus creates a new event bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[string]*Subscriber),
		logger:      logger.With("component", "events"),
	}
}

// Subscribe creates a new subscriber with a buffered event channel.
func (b *Bus) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscriber{
		ID:     uuid.NewString(),
		Events: make(chan Event, 100),
	}
	b.subscribers[sub.ID] = sub

	b.logger.Debug("subscriber added", slog.String("subscriber_id", sub.ID))
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(subscriberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[subscriberID]; ok {
		delete(b.subscribers, subscriberID)
		close(sub.Events)
		b.logger.Debug("subscriber removed", slog.String("subscriber_id", subscriberID))
	}
}

// Publish delivers an event to all subscribers without blocking.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	event := Event{Topic: topic, Payload: payload}
	for _, sub := range b.subscribers {
		select {
		case sub.Events <- event:
		default:
			b.logger.Debug("subscriber buffer full, dropping event",
				slog.String("subscriber_id", sub.ID),
				slog.String("topic", topic),
			)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
