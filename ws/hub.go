package ws

import (
	"context"
	"go.uber.org/zap"
)

// Hub holds all connected clients and broadcasts push notifications to them.
type Hub struct {
	logger *zap.Logger
	// clients holds all online clients.
	clients map[*Client]struct{}
	// register receives when a Client wants to register itself.
	register chan *Client
	// unregister receives when a Client wants to unregister itself.
	unregister chan *Client
	// broadcast receives messages for sending to all online clients.
	broadcast chan []byte
}

// NewHub creates a new Hub. Start it with Hub.Run.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte),
	}
}

// Broadcast schedules the given message for sending to all connected clients.
func (h *Hub) Broadcast(ctx context.Context, message []byte) {
	select {
	case <-ctx.Done():
	case h.broadcast <- message:
	}
}

// Run the Hub until the given context.Context is done.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			// Say goodbye to all remaining clients.
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return nil
		case c := <-h.register:
			// Register client.
			h.clients[c] = struct{}{}
			h.logger.Info("client connected", zap.Any("client", c.ID))
		case c := <-h.unregister:
			// Unregister client.
			if _, ok := h.clients[c]; !ok {
				continue
			}
			delete(h.clients, c)
			// Close the send-channel which leads to stopping the write-pump.
			close(c.send)
			h.logger.Info("client disconnected", zap.Any("client", c.ID))
		case message := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					// The client cannot keep up. Drop it.
					delete(h.clients, c)
					close(c.send)
					h.logger.Warn("dropping client because of full send buffer", zap.Any("client", c.ID))
				}
			}
		}
	}
}
