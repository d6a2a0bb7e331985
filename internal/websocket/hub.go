package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chess-tournaments/internal/domain"
)

// Message types
const (
	MessageTypeEvent       = "event"
	MessageTypeSubscribe   = "subscribe"
	MessageTypeUnsubscribe = "unsubscribe"
	MessageTypePing        = "ping"
	MessageTypePong        = "pong"
	MessageTypeError       = "error"
)

// Topic prefixes clients can subscribe to
const (
	TopicTournament = "tournament:"
	TopicPlayer     = "player:"
)

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	Topic     string      `json:"topic,omitempty"`
	Event     string      `json:"event,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// TournamentTopic returns the topic carrying every event of a tournament
func TournamentTopic(tournamentID string) string {
	return TopicTournament + tournamentID
}

// PlayerTopic returns the topic carrying events that concern one player
func PlayerTopic(playerID string) string {
	return TopicPlayer + playerID
}

// ValidTopic reports whether a client may subscribe to topic
func ValidTopic(topic string) bool {
	for _, prefix := range []string{TopicTournament, TopicPlayer} {
		if id, ok := strings.CutPrefix(topic, prefix); ok && id != "" {
			return true
		}
	}
	return false
}

// delivery is one encoded message and the topics it goes out on
type delivery struct {
	data   []byte
	topics []string
}

// Hub maintains the set of active clients and routes events to topic subscribers
type Hub struct {
	// Subscribed clients by topic
	clients map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	broadcast   chan *delivery
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest

	mu     sync.RWMutex
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client *Client
	topic  string
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[string]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *delivery, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				for topic, clients := range h.clients {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.clients, topic)
						}
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.allClients[req.client]; ok {
				if _, ok := h.clients[req.topic]; !ok {
					h.clients[req.topic] = make(map[*Client]bool)
				}
				h.clients[req.topic][req.client] = true
			}
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "topic", req.topic)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.clients[req.topic]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.clients, req.topic)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "topic", req.topic)

		case d := <-h.broadcast:
			h.deliver(d)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// deliver sends a message once to every client subscribed to any of its topics
func (h *Hub) deliver(d *delivery) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := make(map[*Client]bool)
	for _, topic := range d.topics {
		for client := range h.clients[topic] {
			if sent[client] {
				continue
			}
			sent[client] = true
			select {
			case client.send <- d.data:
			default:
				h.logger.Warn("client buffer full, skipping", "client_id", client.id)
			}
		}
	}
}

// topicsFor lists the topics an event is published on
func topicsFor(event domain.Event) []string {
	var topics []string
	if event.TournamentID != "" {
		topics = append(topics, TournamentTopic(event.TournamentID))
	}

	var players []string
	switch data := event.Data.(type) {
	case domain.RoundAdvanced:
		players = data.Participants
	case domain.TournamentCompleted:
		players = data.Participants
	case domain.RatingsUpdated:
		players = []string{data.PlayerID}
	case domain.MatchReplay:
		players = []string{data.WhitePlayerID, data.BlackPlayerID}
	}
	for _, id := range players {
		topics = append(topics, PlayerTopic(id))
	}
	return topics
}

// Name implements events.Sink
func (h *Hub) Name() string {
	return "websocket"
}

// Handle implements events.Sink. Delivery is best effort: a full queue drops the event.
func (h *Hub) Handle(_ context.Context, event domain.Event) error {
	topics := topicsFor(event)
	if len(topics) == 0 {
		return nil
	}

	var topic string
	if event.TournamentID != "" {
		topic = topics[0]
	}
	data, err := json.Marshal(&Message{
		Type:      MessageTypeEvent,
		Topic:     topic,
		Event:     string(event.Type),
		Data:      event.Data,
		Timestamp: event.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	select {
	case h.broadcast <- &delivery{data: data, topics: topics}:
		return nil
	default:
		return fmt.Errorf("broadcast channel full, dropped %s", event.Type)
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe adds a client to a topic
func (h *Hub) Subscribe(client *Client, topic string) {
	h.subscribe <- &subscriptionRequest{
		client: client,
		topic:  topic,
	}
}

// Unsubscribe removes a client from a topic
func (h *Hub) Unsubscribe(client *Client, topic string) {
	h.unsubscribe <- &subscriptionRequest{
		client: client,
		topic:  topic,
	}
}

// GetSubscriberCount returns the number of subscribers for a topic
func (h *Hub) GetSubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
