package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/caramelapple/storefront/internal/database"
	"github.com/google/uuid"
)

// TopicOrders carries order lifecycle events for the admin dashboard.
const TopicOrders = "orders"

// Event represents a WebSocket message to be broadcast
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// topicEvent routes an event to the subscribers of one topic
type topicEvent struct {
	Topic string
	Event Event
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	// Registered clients by topic
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client

	// Outbound messages to broadcast
	broadcast chan *topicEvent

	// Closed when Run returns; join and leave stop waiting on it.
	done chan struct{}

	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *topicEvent, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop and returns when ctx is cancelled.
// This should be called as a goroutine: go hub.Run(ctx)
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.topic] == nil {
				h.rooms[client.topic] = make(map[*Client]bool)
			}
			h.rooms[client.topic][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case event := <-h.broadcast:
			message, err := json.Marshal(event.Event)
			if err != nil {
				log.Printf("ERROR: ws: marshal %s event: %v", event.Event.Type, err)
				continue
			}

			h.mu.Lock()
			for client := range h.rooms[event.Topic] {
				select {
				case client.send <- message:
				default:
					// Slow consumer, drop it
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// join hands c to the running hub. It reports false once the hub has
// stopped, in which case c was never registered.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// leave unregisters c, or returns immediately if the hub has stopped.
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// remove must be called with mu held.
func (h *Hub) remove(client *Client) {
	clients, ok := h.rooms[client.topic]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, client.topic)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.rooms {
		for client := range clients {
			h.remove(client)
		}
	}
}

// ClientCount returns the number of subscribers of topic.
func (h *Hub) ClientCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[topic])
}

// Broadcast queues an event for every subscriber of topic. It never blocks;
// events are dropped when the queue is full.
func (h *Hub) Broadcast(topic string, event Event) {
	select {
	case h.broadcast <- &topicEvent{Topic: topic, Event: event}:
	default:
		log.Printf("WARNING: ws: broadcast queue full, dropping %s event", event.Type)
	}
}

// OrderPayload is the order summary pushed to dashboards.
type OrderPayload struct {
	ID              uuid.UUID `json:"id"`
	CustomerID      uuid.UUID `json:"customer_id"`
	Status          string    `json:"status"`
	RetrievalMethod string    `json:"retrieval_method"`
	PaymentMethod   string    `json:"payment_method"`
	DeliveryDate    string    `json:"delivery_date"`
	TotalCents      int64     `json:"total_cents"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NotifyOrder publishes an order event on TopicOrders.
func (h *Hub) NotifyOrder(eventType string, order database.Order) {
	payload, err := json.Marshal(OrderPayload{
		ID:              order.ID,
		CustomerID:      order.CustomerID,
		Status:          order.Status,
		RetrievalMethod: order.RetrievalMethod,
		PaymentMethod:   order.PaymentMethod,
		DeliveryDate:    database.FormatDate(order.DeliveryDate),
		TotalCents:      order.TotalCents,
		UpdatedAt:       order.UpdatedAt,
	})
	if err != nil {
		log.Printf("ERROR: ws: marshal order %s: %v", order.ID, err)
		return
	}
	h.Broadcast(TopicOrders, Event{Type: eventType, Payload: payload})
}
