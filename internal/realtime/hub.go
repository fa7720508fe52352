package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dipteshhh/learnease-backend/internal/platform/logger"
)

const heartbeatInterval = 15 * time.Second

type Client struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Channels map[string]bool
	Outbound chan Message
	done     chan struct{}
	once     sync.Once
}

type Hub struct {
	mu            sync.RWMutex
	log           *logger.Logger
	subscriptions map[string]map[*Client]bool
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:           log.With("component", "SSEHub"),
		subscriptions: make(map[string]map[*Client]bool),
	}
}

func (hub *Hub) NewClient(userID uuid.UUID) *Client {
	return &Client{
		ID:       uuid.New(),
		UserID:   userID,
		Channels: make(map[string]bool),
		Outbound: make(chan Message, 16),
		done:     make(chan struct{}),
	}
}

func (hub *Hub) AddChannel(client *Client, channel string) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return
	}
	hub.mu.Lock()
	defer hub.mu.Unlock()

	client.Channels[channel] = true
	clients, ok := hub.subscriptions[channel]
	if !ok {
		clients = make(map[*Client]bool)
		hub.subscriptions[channel] = clients
	}
	clients[client] = true
	hub.log.Debug("SSE client subscribed", "client_id", client.ID, "channel", channel)
}

func (hub *Hub) RemoveClient(client *Client) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	for ch := range client.Channels {
		if subs, ok := hub.subscriptions[ch]; ok {
			delete(subs, client)
			if len(subs) == 0 {
				delete(hub.subscriptions, ch)
			}
		}
	}
	client.Channels = make(map[string]bool)
}

// Broadcast never blocks; a client with a full buffer misses the message.
func (hub *Hub) Broadcast(msg Message) {
	if msg.Channel == "" {
		return
	}
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	for c := range hub.subscriptions[msg.Channel] {
		select {
		case c.Outbound <- msg:
		default:
			hub.log.Warn("Dropping SSE message; outbound buffer full", "client_id", c.ID)
		}
	}
}

// Subscribers reports how many clients listen on channel.
func (hub *Hub) Subscribers(channel string) int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.subscriptions[channel])
}

func (hub *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request, client *Client) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-client.done:
			return
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, ok := <-client.Outbound:
			if !ok {
				return
			}
			raw, err := json.Marshal(msg)
			if err != nil {
				hub.log.Warn("Failed to marshal SSE message", "error", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, raw)
			flusher.Flush()
		}
	}
}

// CloseClient unsubscribes client and ends its stream. It is safe to call more than once.
func (hub *Hub) CloseClient(client *Client) {
	client.once.Do(func() {
		hub.RemoveClient(client)
		close(client.done)
	})
}

// CloseAll ends every open stream.
func (hub *Hub) CloseAll() {
	hub.mu.RLock()
	clients := make(map[*Client]struct{})
	for _, subs := range hub.subscriptions {
		for c := range subs {
			clients[c] = struct{}{}
		}
	}
	hub.mu.RUnlock()
	for c := range clients {
		hub.CloseClient(c)
	}
}
