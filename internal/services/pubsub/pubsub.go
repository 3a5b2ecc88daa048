// Package pubsub provides a simple publish-subscribe mechanism for pushing
// network events to WebSocket clients.
package pubsub

import (
	"sync"

	"github.com/google/uuid"
)

// Topic represents a subscription topic.
type Topic string

const (
	TopicNetworkStatus Topic = "NETWORK_STATUS_UPDATED"
	TopicNetworkState  Topic = "NETWORK_STATE_CHANGED"
	TopicAPMode        Topic = "AP_MODE_CHANGED"
	TopicScan          Topic = "SCAN_COMPLETED"
)

// Subscriber represents a subscription channel.
type Subscriber struct {
	ID      string
	Topic   Topic
	Channel chan interface{}
}

// PubSub manages subscriptions and message distribution.
type PubSub struct {
	mu          sync.RWMutex
	subscribers map[Topic][]*Subscriber
}

// New creates a new PubSub instance.
func New() *PubSub {
	return &PubSub{
		subscribers: make(map[Topic][]*Subscriber),
	}
}

// Subscribe creates a new subscription for a topic.
func (ps *PubSub) Subscribe(topic Topic, bufferSize int) *Subscriber {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	sub := &Subscriber{
		ID:      uuid.NewString(),
		Topic:   topic,
		Channel: make(chan interface{}, bufferSize),
	}

	ps.subscribers[topic] = append(ps.subscribers[topic], sub)
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (ps *PubSub) Unsubscribe(sub *Subscriber) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	subs := ps.subscribers[sub.Topic]
	for i, s := range subs {
		if s.ID == sub.ID {
			close(s.Channel)
			ps.subscribers[sub.Topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish sends a message to all subscribers of a topic. Sends are
// non-blocking; a subscriber with a full channel misses the message rather
// than stalling the poll loop.
func (ps *PubSub) Publish(topic Topic, message interface{}) {
	ps.mu.RLock()
	subs := ps.subscribers[topic]
	ps.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.Channel <- message:
		default:
			// Channel full, skip
		}
	}
}

// SubscriberCount returns the number of subscribers for a topic.
func (ps *PubSub) SubscriberCount(topic Topic) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.subscribers[topic])
}
