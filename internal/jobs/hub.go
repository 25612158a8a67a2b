package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventHub multiplexes the job event channel to many SSE clients without opening a Redis
// subscription per HTTP request
type EventHub struct {
	redis   *redis.Client
	channel string

	mu          sync.RWMutex
	subscribers map[chan []byte]struct{}
}

// NewEventHub creates a hub; call Run to start relaying
func NewEventHub(redis *redis.Client) *EventHub {
	return &EventHub{
		redis:       redis,
		channel:     EventsChannel,
		subscribers: make(map[chan []byte]struct{}),
	}
}

// Run relays published events until ctx is cancelled, resubscribing if Redis drops
func (h *EventHub) Run(ctx context.Context) {
	for ctx.Err() == nil {
		pubsub := h.redis.Subscribe(ctx, h.channel)
		ch := pubsub.Channel(redis.WithChannelSize(1024))

	relay:
		for {
			select {
			case <-ctx.Done():
				break relay
			case msg, ok := <-ch:
				if !ok {
					break relay
				}
				h.broadcast([]byte(msg.Payload))
			}
		}

		_ = pubsub.Close()

		// Avoid tight loop if Redis connection drops
		sleep(ctx, time.Second)
	}
}

func (h *EventHub) broadcast(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers {
		select {
		case sub <- payload:
		default:
			// Subscriber is too slow; drop its oldest event
			select {
			case <-sub:
			default:
			}
			select {
			case sub <- payload:
			default:
			}
		}
	}
}

// Subscribe registers a new listener and returns a channel plus cleanup function
func (h *EventHub) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 64)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}

	return ch, unsubscribe
}
