package hub

import (
	"context"
	"log"
	"sync"

	"github.com/sszokoly/sbctail/internal/model"
)

const subscriberBuffer = 1024

// Hub receives parsed Messages and broadcasts them to all subscribers.
type Hub struct {
	input       <-chan model.Message
	mu          sync.RWMutex
	subscribers []chan model.Message
	dropped     int64
}

// New creates a Hub that reads from the input channel.
func New(input <-chan model.Message) *Hub {
	return &Hub{input: input}
}

// Subscribe returns a buffered channel that will receive every message.
// Multiple consumers can subscribe; each gets a copy.
func (h *Hub) Subscribe() <-chan model.Message {
	ch := make(chan model.Message, subscriberBuffer)
	h.mu.Lock()
	h.subscribers = append(h.subscribers, ch)
	h.mu.Unlock()
	return ch
}

// Dropped returns the total number of messages dropped due to slow consumers.
func (h *Hub) Dropped() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Start begins reading from the input channel and broadcasting.
// Blocks until the context is cancelled or the input channel is closed.
func (h *Hub) Start(ctx context.Context) {
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-h.input:
			if !ok {
				return
			}
			h.broadcast(msg)
		}
	}
}

// broadcast sends a message to all subscribers.
// If a subscriber's channel is full, the message is dropped for that subscriber.
func (h *Hub) broadcast(msg model.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers {
		select {
		case ch <- msg:
		default:
			h.dropped++
			log.Printf("hub: dropped message for slow consumer (total dropped: %d)", h.dropped)
		}
	}
}

// closeAll closes all subscriber channels.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subscribers {
		close(ch)
	}
	h.subscribers = nil
}
