package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/nandanugg/journey-tracker/module/journey/domain"
	"github.com/nandanugg/journey-tracker/module/journey/internal/repository/publisher"
)

var _ publisher.EventPublisher = (*Hub)(nil)

const sendBuffer = 64

type client struct {
	conn      *websocket.Conn
	journeyID string
	send      chan []byte
}

// Hub fans cycle events out to WebSocket clients watching a journey.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		logger:  logger,
	}
}

// Serve upgrades the request and streams events for journeyID until the
// peer disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, journeyID string) {
	websocket.Handler(func(conn *websocket.Conn) {
		c := &client{conn: conn, journeyID: journeyID, send: make(chan []byte, sendBuffer)}

		h.register(c)
		defer h.unregister(c)

		h.logger.Info("event stream connected", "journey_id", journeyID, "remote", conn.Request().RemoteAddr)

		go func() {
			for msg := range c.send {
				if _, err := conn.Write(msg); err != nil {
					return
				}
			}
		}()

		// reads only detect close
		buf := make([]byte, 512)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}).ServeHTTP(w, r)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[c.journeyID] == nil {
		h.clients[c.journeyID] = make(map[*client]struct{})
	}
	h.clients[c.journeyID][c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[c.journeyID]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.clients, c.journeyID)
	}
	h.logger.Info("event stream disconnected", "journey_id", c.journeyID)
}

// Publish never blocks on a slow client; its frame is dropped instead.
func (h *Hub) Publish(_ context.Context, evt *domain.CycleEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[evt.JourneyID] {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("event stream buffer full", "journey_id", evt.JourneyID)
		}
	}
	return nil
}

func (h *Hub) Subscribers(journeyID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[journeyID])
}

func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for c := range clients {
			close(c.send)
			_ = c.conn.Close()
		}
	}
	h.clients = make(map[string]map[*client]struct{})
}
