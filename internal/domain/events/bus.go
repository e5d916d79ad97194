package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Topic names one kind of change event.
type Topic string

const (
	TopicTaskCreated   Topic = "task-created"
	TopicTaskUpdated   Topic = "task-updated"
	TopicTaskDeleted   Topic = "task-deleted"
	TopicActivityAdded Topic = "activity-added"
)

// Event is delivered to every subscriber of its topic. Payload carries the
// changed entity, or just its id for deletions.
type Event struct {
	Topic      Topic
	Payload    interface{}
	OccurredAt time.Time
}

var (
	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_events_published_total",
			Help: "Total number of events published per topic",
		},
		[]string{"topic"},
	)

	eventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_events_dropped_total",
			Help: "Events dropped because a subscriber buffer was full",
		},
		[]string{"topic"},
	)
)

// Bus is the in-process change notifier. Publishing never blocks: each
// subscriber has a bounded buffer and events that do not fit are dropped.
// There is no buffering for absent subscribers; a late subscriber never
// sees past events.
type Bus struct {
	mu     sync.Mutex
	topics map[Topic]map[string]chan Event
	buffer int
	logger *zap.Logger
}

// NewBus creates a bus whose subscriber channels hold up to buffer events.
func NewBus(buffer int, logger *zap.Logger) *Bus {
	if buffer <= 0 {
		buffer = 1
	}
	return &Bus{
		topics: make(map[Topic]map[string]chan Event),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a listener on a topic. The cancel function removes
// the subscription and closes the channel; it must be called when the
// consumer goes away or the channel leaks.
func (b *Bus) Subscribe(topic Topic) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.topics[topic]; !exists {
		b.topics[topic] = make(map[string]chan Event)
	}

	ch := make(chan Event, b.buffer)
	subscriberID := uuid.New().String()
	b.topics[topic][subscriberID] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		topicMap, exists := b.topics[topic]
		if !exists {
			return
		}
		if _, exists := topicMap[subscriberID]; !exists {
			return
		}
		delete(topicMap, subscriberID)
		if len(topicMap) == 0 {
			delete(b.topics, topic)
		}
		close(ch)
	}

	return ch, cancel
}

// Publish delivers the payload to every active subscriber of the topic.
// With no subscribers the event is dropped.
func (b *Bus) Publish(topic Topic, payload interface{}) {
	event := Event{Topic: topic, Payload: payload, OccurredAt: time.Now().UTC()}
	eventsPublished.WithLabelValues(string(topic)).Inc()

	// The lock also fences Publish against cancel closing a channel
	// mid-send; every send below is non-blocking, so it is held briefly.
	b.mu.Lock()
	defer b.mu.Unlock()

	subscribers, exists := b.topics[topic]
	if !exists {
		return
	}

	for _, ch := range subscribers {
		select {
		case ch <- event:
		default:
			eventsDropped.WithLabelValues(string(topic)).Inc()
			b.logger.Warn("event dropped, subscriber buffer full",
				zap.String("topic", string(topic)))
		}
	}
}

// SubscriberCount reports active subscribers on a topic.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}
