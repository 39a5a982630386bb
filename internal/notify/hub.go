package notify

import "sync"

const subscriberBuffer = 16

// Hub broadcasts notifications to live subscribers. A slow subscriber
// loses messages rather than blocking the sender.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Notification
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Notification)}
}

// Subscribe registers a listener. The returned cancel func closes the
// channel and must be called once.
func (h *Hub) Subscribe() (<-chan Notification, func()) {
	ch := make(chan Notification, subscriberBuffer)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers reports the number of live listeners.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) Notify(message string, severity Severity) {
	n := Notification{Message: message, Severity: severity}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- n:
		default:
		}
	}
}
