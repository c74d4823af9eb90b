package ws

import (
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"net/http"
)

// HandleWS upgrades requests to websocket connections and registers the new
// clients with the given Hub.
func HandleWS(logger *zap.Logger, hub *Hub) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Debug("upgrade websocket connection", zap.Error(err))
			return
		}
		client := &Client{
			ID:         uuid.New(),
			logger:     logger.Named("client"),
			hub:        hub,
			connection: conn,
			send:       make(chan []byte, 256),
		}
		// Use the client's hub so that the reference from the handler can be dropped.
		client.hub.register <- client
		// Power the pumps.
		go client.writePump()
		go client.readPump()
	}
}
