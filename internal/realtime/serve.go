package realtime

import (
	"net/http"
	"os"
	"strings"

	"log/slog"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser clients (bots, CLI)
		}

		if customOrigins := os.Getenv("ALLOWED_ORIGINS"); customOrigins != "" {
			for _, allowed := range strings.Split(customOrigins, ",") {
				if origin == strings.TrimSpace(allowed) {
					return true
				}
			}
		}

		return strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1")
	},
}

// ServeWS upgrades an HTTP request and hands the connection to the hub. The
// connection starts unauthenticated; the client must send an authenticate
// event before posting.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade WebSocket connection", "error", err)
		return
	}

	client := NewClient(hub, conn)
	if err := hub.Register(client); err != nil {
		slog.Error("Failed to register client", "clientID", client.id, "error", err)
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()

	slog.Info("WebSocket connection established", "clientID", client.id)
}
