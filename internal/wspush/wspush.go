// Package wspush upgrades HTTP connections to WebSocket and streams push
// events from a push.Hub to each subscriber.
package wspush

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ampiolux/lcs-gateway/internal/logging"
	"github.com/ampiolux/lcs-gateway/internal/push"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades requests to WebSocket and registers each connection as a
// push.Hub subscriber for the lifetime of the socket.
type Handler struct {
	hub *push.Hub
}

// NewHandler wires a Handler to hub.
func NewHandler(hub *push.Hub) *Handler { return &Handler{hub: hub} }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.L().Warn("ws_upgrade_failed", "error", err)
		return
	}

	sub := h.hub.NewSubscriber()
	defer h.hub.Remove(sub)

	go readPump(conn, sub)
	writePump(conn, sub)
}

// readPump drains (and discards) inbound client frames purely to detect
// disconnects and respond to pings/pongs; this push surface is one-way.
func readPump(conn *websocket.Conn, sub *push.Subscriber) {
	defer sub.Close()
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(conn *websocket.Conn, sub *push.Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case ev, ok := <-sub.Out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-sub.Closed:
			return
		}
	}
}
